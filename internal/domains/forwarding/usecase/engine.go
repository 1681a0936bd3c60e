package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"cctp-forwarder/go-backend/internal/domains/contracts"
	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
	"cctp-forwarder/go-backend/internal/domains/forwarding/policy"
	"cctp-forwarder/go-backend/internal/domains/forwarding/ports"
)

const engineComponentName = "forwarding"

var (
	errQueryRetry   = errors.New("forwarding query failed")
	errNotConfirmed = errors.New("forwarding account not yet visible")
)

type EngineDeps struct {
	Querier     ports.AccountQuerier
	Broadcaster ports.RegistrationBroadcaster
	Cache       ports.AccountCache
	Clock       clock.Clock
	Metrics     Metrics
	Logger      *slog.Logger
}

// Engine ensures a forwarding account exists for a recipient. Concurrent
// calls for the same recipient share a single reconciliation.
type Engine struct {
	deps    EngineDeps
	cfg     EngineConfig
	flights singleflight.Group
}

func NewEngine(deps EngineDeps, cfg EngineConfig) (*Engine, error) {
	if deps.Querier == nil || deps.Broadcaster == nil || deps.Cache == nil {
		return nil, contracts.ConfigError("engine requires querier, broadcaster and cache")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{deps: deps, cfg: cfg}, nil
}

func (e *Engine) EnsureAccount(ctx context.Context, recipient string, opts model.EnsureOptions) (model.EnsureResult, error) {
	started := e.deps.Clock.Now()
	recipient, err := policy.NormalizeRecipient(recipient)
	if err != nil {
		e.deps.Metrics.ObserveEnsure(OutcomeInvalid, 0)
		return model.EnsureResult{}, err
	}
	channel, fallback := e.resolveOptions(opts)

	if address, ok := e.deps.Cache.Lookup(recipient); ok {
		e.deps.Metrics.ObserveEnsure(OutcomeCacheHit, e.deps.Clock.Since(started))
		return model.EnsureResult{Address: address, Cached: true}, nil
	}

	// The shared reconciliation must outlive any single caller, otherwise one
	// caller giving up would fail every coalesced waiter.
	flightCtx := context.WithoutCancel(ctx)
	results := e.flights.DoChan(recipient, func() (any, error) {
		res, err := e.reconcile(flightCtx, recipient, channel, fallback)
		e.deps.Metrics.ObserveEnsure(outcomeOf(res, err), e.deps.Clock.Since(started))
		return flightResult{res: res, channel: channel, fallback: fallback}, err
	})

	select {
	case <-ctx.Done():
		return model.EnsureResult{}, ctx.Err()
	case out := <-results:
		flight, _ := out.Val.(flightResult)
		if out.Shared {
			e.deps.Metrics.ObserveCoalesced()
			// Flights are keyed by recipient only; a joiner asking for other
			// options receives the leader's answer.
			if flight.channel != channel || flight.fallback != fallback {
				e.deps.Metrics.ObserveCoalescedMismatch()
				e.logWarn("ensure_account", recipient, "coalesced onto a flight with different forwarding options",
					"channel", channel,
					"fallback", fallback,
					"flight_channel", flight.channel,
					"flight_fallback", flight.fallback,
				)
			}
		}
		if out.Err != nil {
			return model.EnsureResult{}, out.Err
		}
		return flight.res, nil
	}
}

// flightResult carries the options the shared reconciliation ran with.
type flightResult struct {
	res      model.EnsureResult
	channel  string
	fallback string
}

// QueryAccount performs a read-only existence check. Present answers are
// remembered like any other confirmation.
func (e *Engine) QueryAccount(ctx context.Context, recipient string, opts model.EnsureOptions) (model.QueryResult, bool, error) {
	recipient, err := policy.NormalizeRecipient(recipient)
	if err != nil {
		return model.QueryResult{}, false, err
	}
	if address, ok := e.deps.Cache.Lookup(recipient); ok {
		return model.Present(address), true, nil
	}
	channel, fallback := e.resolveOptions(opts)
	res := e.queryWithRetry(ctx, StageInitialQuery, recipient, channel, fallback)
	if res.Outcome == model.QueryPresent {
		e.remember(recipient, res.Record.Address)
	}
	return res, false, nil
}

func (e *Engine) reconcile(ctx context.Context, recipient, channel, fallback string) (model.EnsureResult, error) {
	// A flight that finished just before this one started may already have
	// populated the cache.
	if address, ok := e.deps.Cache.Lookup(recipient); ok {
		return model.EnsureResult{Address: address, Cached: true}, nil
	}

	first := e.queryWithRetry(ctx, StageInitialQuery, recipient, channel, fallback)
	switch first.Outcome {
	case model.QueryPresent:
		e.remember(recipient, first.Record.Address)
		return model.EnsureResult{Address: first.Record.Address}, nil
	case model.QueryFailed:
		if !e.cfg.RegisterOnQueryFailure {
			e.logWarn("ensure_account", recipient, "forwarding query unavailable", "error", errString(first.Err))
			return model.EnsureResult{}, contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork,
				fmt.Errorf("%w: %w", contracts.ErrQueryUnavailable, first.Err))
		}
		e.logWarn("ensure_account", recipient, "query failed; treating as absent", "error", errString(first.Err))
	}

	receipt, err := e.deps.Broadcaster.RegisterAccount(ctx, e.registrationSpec(recipient, channel, fallback))
	if err != nil {
		if errors.Is(err, contracts.ErrConfiguration) {
			return model.EnsureResult{}, err
		}
		e.deps.Metrics.ObserveBroadcast(false)
		return model.EnsureResult{}, contracts.WrapCategorizedError(contracts.ErrorCategoryChain,
			fmt.Errorf("%w: %w", contracts.ErrRegistrationFailed, err))
	}
	e.deps.Metrics.ObserveBroadcast(receipt.Accepted)
	if !receipt.Accepted {
		e.logWarn("ensure_account", recipient, "registration rejected", "code", receipt.Code, "raw_log", receipt.Diagnostic)
		return model.EnsureResult{}, contracts.WrapCategorizedError(contracts.ErrorCategoryChain,
			fmt.Errorf("%w: code=%d %s", contracts.ErrRegistrationFailed, receipt.Code, strings.TrimSpace(receipt.Diagnostic)))
	}
	e.logInfo("ensure_account", recipient, "registration accepted", "tx_hash", receipt.TxHash, "channel", channel)

	address, err := e.awaitConfirmation(ctx, recipient, channel, fallback)
	if err != nil {
		e.logWarn("ensure_account", recipient, "registration not confirmed", "tx_hash", receipt.TxHash, "error", err.Error())
		return model.EnsureResult{}, err
	}
	e.remember(recipient, address)
	return model.EnsureResult{Address: address, NewlyRegistered: true, TxHash: receipt.TxHash}, nil
}

func (e *Engine) awaitConfirmation(ctx context.Context, recipient, channel, fallback string) (string, error) {
	if err := e.sleep(ctx, e.cfg.ConfirmationDelay); err != nil {
		return "", err
	}
	var last model.QueryResult
	op := func() error {
		last = e.deps.Querier.QueryAccount(ctx, channel, recipient, fallback)
		e.deps.Metrics.ObserveQuery(StageConfirmationQuery, last.Outcome)
		if last.Outcome == model.QueryPresent {
			return nil
		}
		return errNotConfirmed
	}
	if err := e.retry(ctx, op, e.cfg.ConfirmAttempts, e.cfg.ConfirmBackoff); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return "", cerr
		}
		if last.Outcome == model.QueryFailed && last.Err != nil {
			return "", fmt.Errorf("%w after %d attempts: %w", contracts.ErrConfirmationTimeout, e.cfg.ConfirmAttempts, last.Err)
		}
		return "", fmt.Errorf("%w after %d attempts", contracts.ErrConfirmationTimeout, e.cfg.ConfirmAttempts)
	}
	return last.Record.Address, nil
}

func (e *Engine) queryWithRetry(ctx context.Context, stage, recipient, channel, fallback string) model.QueryResult {
	var last model.QueryResult
	op := func() error {
		last = e.deps.Querier.QueryAccount(ctx, channel, recipient, fallback)
		e.deps.Metrics.ObserveQuery(stage, last.Outcome)
		if last.Outcome == model.QueryFailed {
			return errQueryRetry
		}
		return nil
	}
	if err := e.retry(ctx, op, e.cfg.QueryAttempts, e.cfg.QueryBackoff); err != nil && last.Outcome != model.QueryFailed {
		return model.Failed(err)
	}
	return last
}

func (e *Engine) retry(ctx context.Context, op backoff.Operation, attempts int, cfg BackoffConfig) error {
	if attempts < 1 {
		attempts = 1
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialInterval,
		RandomizationFactor: cfg.RandomizationFactor,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.MaxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               e.deps.Clock,
	}
	bounded := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	return backoff.RetryNotifyWithTimer(op, bounded, nil, &clockTimer{clk: e.deps.Clock})
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := e.deps.Clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) remember(recipient, address string) {
	e.deps.Cache.Store(recipient, address)
}

func (e *Engine) resolveOptions(opts model.EnsureOptions) (string, string) {
	channel := strings.TrimSpace(opts.Channel)
	if channel == "" {
		channel = e.cfg.DefaultChannel
	}
	fallback := opts.Fallback
	if fallback == "" {
		fallback = e.cfg.DefaultFallback
	}
	return channel, fallback
}

func (e *Engine) registrationSpec(recipient, channel, fallback string) model.RegistrationTxSpec {
	return model.RegistrationTxSpec{
		Channel:   channel,
		Recipient: recipient,
		Fallback:  fallback,
		Fee:       e.cfg.Fee,
		GasLimit:  e.cfg.GasLimit,
	}
}

func (e *Engine) logInfo(operation, recipient, message string, attrs ...any) {
	base := []any{
		"component", engineComponentName,
		"operation", operation,
		"recipient", recipient,
	}
	e.deps.Logger.Info(message, append(base, attrs...)...)
}

func (e *Engine) logWarn(operation, recipient, message string, attrs ...any) {
	base := []any{
		"component", engineComponentName,
		"operation", operation,
		"recipient", recipient,
	}
	e.deps.Logger.Warn(message, append(base, attrs...)...)
}

func outcomeOf(res model.EnsureResult, err error) string {
	switch {
	case err == nil && res.Cached:
		return OutcomeCacheHit
	case err == nil && res.NewlyRegistered:
		return OutcomeRegistered
	case err == nil:
		return OutcomeExisting
	case errors.Is(err, contracts.ErrConfiguration):
		return OutcomeConfigFailure
	case errors.Is(err, contracts.ErrQueryUnavailable):
		return OutcomeQueryFailed
	case errors.Is(err, contracts.ErrRegistrationFailed):
		return OutcomeRejected
	default:
		return OutcomeNotConfirmed
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// clockTimer adapts a clock.Clock timer to backoff.Timer.
type clockTimer struct {
	clk   clock.Clock
	timer *clock.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clk.Timer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}
