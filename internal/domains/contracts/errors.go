package contracts

import (
	"errors"
	"strings"
)

var (
	ErrConfiguration       = errors.New("forwarder is misconfigured")
	ErrInvalidRecipient    = errors.New("recipient is required")
	ErrQueryUnavailable    = errors.New("forwarding account query unavailable")
	ErrRegistrationFailed  = errors.New("failed to broadcast registration tx")
	ErrConfirmationTimeout = errors.New("unable to confirm forwarding account registration")
)

const (
	ErrorCategoryAPI     = "api"
	ErrorCategoryConfig  = "config"
	ErrorCategoryNetwork = "network"
	ErrorCategoryChain   = "chain"
)

// CategorizedError tags an error with the subsystem that produced it.
type CategorizedError struct {
	Category string
	Err      error
}

func (e *CategorizedError) Error() string {
	return e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

func normalizeErrorCategory(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case ErrorCategoryConfig:
		return ErrorCategoryConfig
	case ErrorCategoryNetwork:
		return ErrorCategoryNetwork
	case ErrorCategoryChain:
		return ErrorCategoryChain
	default:
		return ErrorCategoryAPI
	}
}

func WrapCategorizedError(category string, err error) error {
	if err == nil {
		return nil
	}
	var existing *CategorizedError
	if errors.As(err, &existing) {
		return &CategorizedError{
			Category: normalizeErrorCategory(existing.Category),
			Err:      err,
		}
	}
	return &CategorizedError{
		Category: normalizeErrorCategory(category),
		Err:      err,
	}
}

// ErrorCategory resolves the category of err. Untagged taxonomy errors are
// classified by their sentinel so metrics stay meaningful without wrapping.
func ErrorCategory(err error) string {
	var classified *CategorizedError
	if errors.As(err, &classified) {
		return normalizeErrorCategory(classified.Category)
	}
	switch {
	case errors.Is(err, ErrConfiguration):
		return ErrorCategoryConfig
	case errors.Is(err, ErrQueryUnavailable):
		return ErrorCategoryNetwork
	case errors.Is(err, ErrRegistrationFailed), errors.Is(err, ErrConfirmationTimeout):
		return ErrorCategoryChain
	default:
		return ErrorCategoryAPI
	}
}

// ConfigError wraps a validation message as a configuration failure.
func ConfigError(format string, args ...any) error {
	return &CategorizedError{
		Category: ErrorCategoryConfig,
		Err:      wrapf(ErrConfiguration, format, args...),
	}
}
