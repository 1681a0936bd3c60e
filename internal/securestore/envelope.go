package securestore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	saltSize        = 16
	filePrefix      = "FWDKEY1\n"

	kdfName         = "argon2id"
	defaultKDFTime  = 3
	defaultKDFMemKB = 64 * 1024
	maxKDFTime      = 16
	maxKDFMemKB     = 1024 * 1024
)

var (
	ErrAuthFailed         = errors.New("securestore authentication failed")
	ErrInvalid            = errors.New("securestore envelope is invalid")
	ErrUnsealedData       = errors.New("securestore data is not sealed")
	ErrPassphraseRequired = errors.New("securestore passphrase is required")
)

// Envelope is the on-disk form of a sealed secret. KDF parameters travel with
// the ciphertext so they can be raised without breaking existing files.
type Envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

func Seal(passphrase string, plaintext []byte) ([]byte, error) {
	env, err := SealEnvelope(passphrase, plaintext)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(filePrefix), raw...), nil
}

func SealEnvelope(passphrase string, plaintext []byte) (*Envelope, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, ErrPassphraseRequired
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	env := &Envelope{
		Version:     envelopeVersion,
		KDF:         kdfName,
		KDFTime:     defaultKDFTime,
		KDFMemoryKB: defaultKDFMemKB,
		KDFThreads:  1,
		Salt:        salt,
	}
	key := deriveKey(passphrase, env)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	env.Nonce = make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, err
	}
	env.Ciphertext = aead.Seal(nil, env.Nonce, plaintext, []byte(filePrefix))
	return env, nil
}

func Open(passphrase string, data []byte) ([]byte, error) {
	if !strings.HasPrefix(string(data), filePrefix) {
		return nil, ErrUnsealedData
	}
	var env Envelope
	if err := json.Unmarshal(data[len(filePrefix):], &env); err != nil {
		return nil, ErrInvalid
	}
	return OpenEnvelope(passphrase, &env)
}

func OpenEnvelope(passphrase string, env *Envelope) ([]byte, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, ErrPassphraseRequired
	}
	if err := validateEnvelope(env); err != nil {
		return nil, err
	}
	key := deriveKey(passphrase, env)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(filePrefix))
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func validateEnvelope(env *Envelope) error {
	switch {
	case env == nil, env.Version != envelopeVersion, env.KDF != kdfName:
		return ErrInvalid
	case len(env.Salt) != saltSize, len(env.Nonce) != chacha20poly1305.NonceSizeX:
		return ErrInvalid
	case env.KDFTime == 0 || env.KDFTime > maxKDFTime:
		return ErrInvalid
	case env.KDFMemoryKB == 0 || env.KDFMemoryKB > maxKDFMemKB, env.KDFThreads == 0:
		return ErrInvalid
	}
	return nil
}

func deriveKey(passphrase string, env *Envelope) []byte {
	return argon2.IDKey([]byte(passphrase), env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads, chacha20poly1305.KeySize)
}

// ZeroBytes overwrites b in place.
func ZeroBytes(b []byte) {
	zeroBytes(b)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
