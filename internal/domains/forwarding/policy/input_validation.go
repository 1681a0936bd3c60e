package policy

import (
	"encoding/hex"
	"fmt"
	"strings"

	"cctp-forwarder/go-backend/internal/domains/contracts"
)

const (
	MaxRecipientHexLen = 130
	MaxChannelLen      = 64
	MaxFallbackLen     = 128
)

// NormalizeRecipient trims the recipient. The value itself stays opaque.
func NormalizeRecipient(raw string) (string, error) {
	recipient := strings.TrimSpace(raw)
	if recipient == "" {
		return "", contracts.ErrInvalidRecipient
	}
	return recipient, nil
}

// ValidateHexRecipient checks the transport encoding used by the ingress:
// an optional 0x prefix followed by an even number of hex digits.
func ValidateHexRecipient(raw string) (string, error) {
	recipient, err := NormalizeRecipient(raw)
	if err != nil {
		return "", err
	}
	digits := strings.TrimPrefix(strings.TrimPrefix(recipient, "0x"), "0X")
	if digits == "" || len(digits) > MaxRecipientHexLen {
		return "", fmt.Errorf("%w: hex address has invalid length", contracts.ErrInvalidRecipient)
	}
	if _, err := hex.DecodeString(digits); err != nil {
		return "", fmt.Errorf("%w: hex address is malformed", contracts.ErrInvalidRecipient)
	}
	return recipient, nil
}

func ValidateChannel(channel string) error {
	channel = strings.TrimSpace(channel)
	if len(channel) > MaxChannelLen {
		return fmt.Errorf("channel is too long")
	}
	if strings.ContainsAny(channel, " \t\r\n") {
		return fmt.Errorf("channel must not contain whitespace")
	}
	return nil
}

func ValidateFallback(fallback string) error {
	if len(fallback) > MaxFallbackLen {
		return fmt.Errorf("fallback is too long")
	}
	return nil
}
