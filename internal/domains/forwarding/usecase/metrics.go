package usecase

import (
	"time"

	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
)

const (
	OutcomeCacheHit        = "cache_hit"
	OutcomeExisting        = "existing"
	OutcomeRegistered      = "registered"
	OutcomeQueryFailed     = "query_unavailable"
	OutcomeRejected        = "registration_failed"
	OutcomeNotConfirmed    = "confirmation_timeout"
	OutcomeInvalid         = "invalid"
	OutcomeConfigFailure   = "config_error"
	StageInitialQuery      = "initial"
	StageConfirmationQuery = "confirmation"
)

// Metrics receives reconciliation events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveEnsure(outcome string, elapsed time.Duration)
	ObserveQuery(stage string, outcome model.QueryOutcome)
	ObserveBroadcast(accepted bool)
	ObserveCoalesced()
	// ObserveCoalescedMismatch counts joiners whose channel or fallback
	// differed from the flight they shared.
	ObserveCoalescedMismatch()
}

type noopMetrics struct{}

func (noopMetrics) ObserveEnsure(string, time.Duration)     {}
func (noopMetrics) ObserveQuery(string, model.QueryOutcome) {}
func (noopMetrics) ObserveBroadcast(bool)                   {}
func (noopMetrics) ObserveCoalesced()                       {}
func (noopMetrics) ObserveCoalescedMismatch()               {}
