package signer

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/ripemd160"
)

// DefaultHDPath is the Cosmos SDK coin-type 118 path used by cosmjs wallets.
const DefaultHDPath = "m/44'/118'/0'/0/0"

// ParseHDPath turns a BIP-32 path such as m/44'/118'/0'/0/0 into child
// indexes, hardened components carrying the high bit.
func ParseHDPath(path string) ([]uint32, error) {
	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) < 2 || parts[0] != "m" {
		return nil, fmt.Errorf("hd path %q must start with m/", path)
	}
	out := make([]uint32, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h")
		part = strings.TrimRight(part, "'h")
		idx, err := strconv.ParseUint(part, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("hd path %q has invalid component %q", path, part)
		}
		child := uint32(idx)
		if hardened {
			child += bip32.FirstHardenedChild
		}
		out = append(out, child)
	}
	return out, nil
}

// DerivePrivateKey walks the BIP-32 tree from a BIP-39 mnemonic.
func DerivePrivateKey(mnemonic string, path []uint32) (*secp256k1.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(strings.TrimSpace(mnemonic), "")
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	defer zero(seed)

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	for _, child := range path {
		key, err = key.NewChildKey(child)
		if err != nil {
			return nil, err
		}
	}
	raw := key.Key[len(key.Key)-32:]
	priv := secp256k1.PrivKeyFromBytes(raw)
	zero(key.Key)
	zero(key.ChainCode)
	return priv, nil
}

// AccountAddress encodes a compressed secp256k1 public key as a bech32
// account address: bech32(prefix, ripemd160(sha256(pubkey))).
func AccountAddress(prefix string, compressedPubKey []byte) (string, error) {
	if len(compressedPubKey) != secp256k1.PubKeyBytesLenCompressed {
		return "", fmt.Errorf("public key must be %d bytes", secp256k1.PubKeyBytesLenCompressed)
	}
	sha := sha256.Sum256(compressedPubKey)
	hasher := ripemd160.New()
	_, _ = hasher.Write(sha[:])
	conv, err := bech32.ConvertBits(hasher.Sum(nil), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, conv)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
