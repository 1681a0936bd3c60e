// Package privacylog keeps signer key material and caller identifiers out of
// process logs.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

const redactedValue = "[REDACTED]"

type action int

const (
	keep action = iota
	redact
	fingerprint
)

var (
	bootNonce = randomNonce()
	// Exact keys whose values identify a caller or an account.
	fingerprintKeys = map[string]struct{}{
		"recipient":   {},
		"signer":      {},
		"client_ip":   {},
		"remote_addr": {},
	}
	// Any key containing one of these fragments is treated as secret.
	secretKeyFragments = []string{
		"token", "secret", "password", "passphrase", "authorization",
		"mnemonic", "private_key", "seed",
	}
)

// SanitizingHandler redacts secrets and fingerprints caller-identifying
// values before records reach the wrapped handler. String values that form a
// valid BIP-39 mnemonic are redacted whatever their key.
type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SanitizingHandler{next: h.next.WithAttrs(sanitizeAttrs(attrs))}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

// SanitizeAttr applies the key rules to attr, descending into groups.
func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	value := attr.Value.Resolve()
	switch classify(key) {
	case redact:
		return slog.String(key, redactedValue)
	case fingerprint:
		return slog.String(fingerprintKeyName(key), FingerprintID(value.String()))
	}
	switch value.Kind() {
	case slog.KindGroup:
		return slog.Attr{Key: key, Value: slog.GroupValue(sanitizeAttrs(value.Group())...)}
	case slog.KindString:
		if looksLikeMnemonic(value.String()) {
			return slog.String(key, redactedValue)
		}
	}
	return slog.Attr{Key: key, Value: value}
}

// FingerprintID returns a per-process pseudonym for value. Equal inputs map
// to equal fingerprints until the process restarts.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func sanitizeAttrs(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, SanitizeAttr(attr))
	}
	return out
}

func classify(key string) action {
	lower := strings.ToLower(key)
	if _, ok := fingerprintKeys[lower]; ok {
		return fingerprint
	}
	for _, fragment := range secretKeyFragments {
		if strings.Contains(lower, fragment) {
			return redact
		}
	}
	return keep
}

func fingerprintKeyName(key string) string {
	if strings.HasSuffix(strings.ToLower(key), "_fp") {
		return key
	}
	return key + "_fp"
}

func looksLikeMnemonic(s string) bool {
	words := strings.Fields(s)
	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return false
	}
	return bip39.IsMnemonicValid(strings.Join(words, " "))
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback_nonce"
	}
	return hex.EncodeToString(buf)
}
