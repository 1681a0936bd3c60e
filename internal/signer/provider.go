// Package signer supplies the registration signing identity. Key material is
// loaded once; each signing operation acquires a short-lived lease whose
// derived private key is wiped on release.
package signer

import (
	"context"
	"crypto/sha256"
	"errors"
	"strings"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/tyler-smith/go-bip39"

	"cctp-forwarder/go-backend/internal/domains/contracts"
	"cctp-forwarder/go-backend/internal/securestore"
)

const DefaultAddressPrefix = "noble"

var (
	ErrInvalidMnemonic = errors.New("signer mnemonic is invalid")
	ErrLeaseReleased   = errors.New("signer lease already released")
)

// CredentialProvider hands out signing leases.
type CredentialProvider interface {
	Acquire(ctx context.Context) (*Lease, error)
	Address() string
}

type Options struct {
	Mnemonic   string
	Keyfile    string
	Passphrase string
	Prefix     string
	HDPath     string
}

// MnemonicProvider derives leases from a BIP-39 mnemonic held in memory.
type MnemonicProvider struct {
	mnemonic string
	path     []uint32
	prefix   string
	address  string
	pubKey   []byte
}

// NewProvider builds a provider from either an inline mnemonic or a sealed
// keyfile. Missing or invalid key material is a configuration error.
func NewProvider(opts Options) (*MnemonicProvider, error) {
	mnemonic := strings.TrimSpace(opts.Mnemonic)
	if mnemonic == "" && securestore.IsKeyfileConfigured(opts.Keyfile, opts.Passphrase) {
		plain, err := securestore.ReadSealedFile(strings.TrimSpace(opts.Keyfile), opts.Passphrase)
		if err != nil {
			return nil, contracts.ConfigError("signer keyfile: %v", err)
		}
		mnemonic = strings.TrimSpace(string(plain))
		securestore.ZeroBytes(plain)
	}
	if mnemonic == "" {
		return nil, contracts.ConfigError("missing signer key material")
	}
	return NewMnemonicProvider(mnemonic, opts.Prefix, opts.HDPath)
}

func NewMnemonicProvider(mnemonic, prefix, hdPath string) (*MnemonicProvider, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, contracts.ConfigError("%v", ErrInvalidMnemonic)
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultAddressPrefix
	}
	if strings.TrimSpace(hdPath) == "" {
		hdPath = DefaultHDPath
	}
	path, err := ParseHDPath(hdPath)
	if err != nil {
		return nil, contracts.ConfigError("%v", err)
	}
	p := &MnemonicProvider{mnemonic: mnemonic, path: path, prefix: prefix}

	priv, err := DerivePrivateKey(mnemonic, path)
	if err != nil {
		return nil, contracts.ConfigError("derive signer key: %v", err)
	}
	defer priv.Zero()
	p.pubKey = priv.PubKey().SerializeCompressed()
	p.address, err = AccountAddress(prefix, p.pubKey)
	if err != nil {
		return nil, contracts.ConfigError("encode signer address: %v", err)
	}
	return p, nil
}

func (p *MnemonicProvider) Address() string {
	return p.address
}

func (p *MnemonicProvider) Acquire(ctx context.Context) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	priv, err := DerivePrivateKey(p.mnemonic, p.path)
	if err != nil {
		return nil, contracts.ConfigError("derive signer key: %v", err)
	}
	return &Lease{
		address: p.address,
		pubKey:  append([]byte(nil), p.pubKey...),
		priv:    priv,
	}, nil
}

// Lease is a scoped signing identity. It is safe for concurrent use until
// Release is called.
type Lease struct {
	mu      sync.Mutex
	address string
	pubKey  []byte
	priv    *secp256k1.PrivateKey
}

func (l *Lease) Address() string {
	return l.address
}

// PubKey returns the 33-byte compressed public key.
func (l *Lease) PubKey() []byte {
	return append([]byte(nil), l.pubKey...)
}

// Sign hashes signBytes with SHA-256 and returns the 64-byte r||s signature
// with low S, the form Cosmos SDK secp256k1 verification expects.
func (l *Lease) Sign(signBytes []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.priv == nil {
		return nil, ErrLeaseReleased
	}
	digest := sha256.Sum256(signBytes)
	compact := ecdsa.SignCompact(l.priv, digest[:], true)
	return compact[1:], nil
}

func (l *Lease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.priv != nil {
		l.priv.Zero()
		l.priv = nil
	}
}
