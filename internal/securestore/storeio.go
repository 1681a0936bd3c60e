package securestore

import (
	"os"
	"path/filepath"
	"strings"
)

// IsKeyfileConfigured reports whether a sealed keyfile source is configured.
func IsKeyfileConfigured(path, passphrase string) bool {
	return strings.TrimSpace(path) != "" && strings.TrimSpace(passphrase) != ""
}

// ReadSealedFile reads and opens a sealed file with the provided passphrase.
func ReadSealedFile(path, passphrase string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Open(passphrase, raw)
}

// WriteSealedFile seals plaintext and writes it with owner-only permissions.
// An existing file is never replaced.
func WriteSealedFile(path, passphrase string, plaintext []byte) error {
	sealed, err := Seal(passphrase, plaintext)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(sealed); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
