package usecase

import (
	"time"

	"cctp-forwarder/go-backend/internal/domains/contracts"
	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
)

type BackoffConfig struct {
	InitialInterval     time.Duration
	Multiplier          float64
	MaxInterval         time.Duration
	RandomizationFactor float64
}

type EngineConfig struct {
	DefaultChannel  string
	DefaultFallback string
	Fee             model.Fee
	GasLimit        uint64

	// ConfirmationDelay is the wait between an accepted broadcast and the
	// first re-query.
	ConfirmationDelay time.Duration
	// ConfirmAttempts bounds the number of re-queries after registration.
	ConfirmAttempts int
	ConfirmBackoff  BackoffConfig

	// QueryAttempts bounds retries of the initial existence query when the
	// query itself fails.
	QueryAttempts int
	QueryBackoff  BackoffConfig

	// RegisterOnQueryFailure treats a failed initial query as absence.
	RegisterOnQueryFailure bool
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultChannel:    model.DefaultChannel,
		DefaultFallback:   model.DefaultFallback,
		Fee:               model.Fee{Denom: model.DefaultFeeDenom, Amount: model.DefaultFeeAmount},
		GasLimit:          model.DefaultGasLimit,
		ConfirmationDelay: 5 * time.Second,
		ConfirmAttempts:   3,
		ConfirmBackoff: BackoffConfig{
			InitialInterval: 2 * time.Second,
			Multiplier:      1.5,
			MaxInterval:     10 * time.Second,
		},
		QueryAttempts: 2,
		QueryBackoff: BackoffConfig{
			InitialInterval: 500 * time.Millisecond,
			Multiplier:      2,
			MaxInterval:     2 * time.Second,
		},
	}
}

func (c EngineConfig) validate() error {
	if c.DefaultChannel == "" {
		return contracts.ConfigError("default channel is required")
	}
	if c.ConfirmationDelay < 0 {
		return contracts.ConfigError("confirmation delay must not be negative")
	}
	if c.ConfirmAttempts < 1 {
		return contracts.ConfigError("confirm attempts must be at least 1")
	}
	if c.QueryAttempts < 1 {
		return contracts.ConfigError("query attempts must be at least 1")
	}
	if c.Fee.Denom == "" || c.Fee.Amount == "" {
		return contracts.ConfigError("registration fee is required")
	}
	if c.GasLimit == 0 {
		return contracts.ConfigError("gas limit is required")
	}
	return nil
}
