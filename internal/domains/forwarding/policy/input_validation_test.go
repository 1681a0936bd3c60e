package policy

import (
	"errors"
	"strings"
	"testing"

	"cctp-forwarder/go-backend/internal/domains/contracts"
)

func TestValidateHexRecipient(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0xABC123", "0xABC123", false},
		{"  abc123 ", "abc123", false},
		{"0XdeadBEEF", "0XdeadBEEF", false},
		{"", "", true},
		{"0x", "", true},
		{"0xabc", "", true},
		{"0xzz", "", true},
		{"0x" + strings.Repeat("ab", 66), "", true},
	}
	for _, tc := range cases {
		got, err := ValidateHexRecipient(tc.in)
		if tc.wantErr {
			if !errors.Is(err, contracts.ErrInvalidRecipient) {
				t.Fatalf("%q: expected ErrInvalidRecipient, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeRecipientRejectsBlank(t *testing.T) {
	if _, err := NormalizeRecipient(" \t"); !errors.Is(err, contracts.ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
}

func TestValidateChannelAndFallback(t *testing.T) {
	if err := ValidateChannel("channel-39"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateChannel("channel 39"); err == nil {
		t.Fatal("expected whitespace channel to be rejected")
	}
	if err := ValidateFallback(""); err != nil {
		t.Fatalf("empty fallback must be allowed: %v", err)
	}
	if err := ValidateFallback(strings.Repeat("a", MaxFallbackLen+1)); err == nil {
		t.Fatal("expected oversized fallback to be rejected")
	}
}
