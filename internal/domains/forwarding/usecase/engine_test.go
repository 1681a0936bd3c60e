package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"cctp-forwarder/go-backend/internal/domains/contracts"
	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
)

type queryCall struct {
	at        time.Time
	channel   string
	recipient string
	fallback  string
}

type fakeQuerier struct {
	mu      sync.Mutex
	clk     clock.Clock
	results []model.QueryResult
	calls   []queryCall
	entered chan struct{}
	release chan struct{}
}

func (f *fakeQuerier) QueryAccount(_ context.Context, channel, recipient, fallback string) model.QueryResult {
	f.mu.Lock()
	f.calls = append(f.calls, queryCall{at: f.clk.Now(), channel: channel, recipient: recipient, fallback: fallback})
	idx := len(f.calls) - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	res := f.results[idx]
	entered, release := f.entered, f.release
	f.entered = nil
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if release != nil {
		<-release
	}
	return res
}

func (f *fakeQuerier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeQuerier) call(i int) queryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type fakeBroadcaster struct {
	mu         sync.Mutex
	clk        clock.Clock
	receipt    model.BroadcastReceipt
	err        error
	specs      []model.RegistrationTxSpec
	returnedAt time.Time
}

func (f *fakeBroadcaster) RegisterAccount(_ context.Context, spec model.RegistrationTxSpec) (model.BroadcastReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	f.returnedAt = f.clk.Now()
	return f.receipt, f.err
}

func (f *fakeBroadcaster) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.specs)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]string)}
}

func (c *mapCache) Lookup(recipient string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[recipient]
	return v, ok
}

func (c *mapCache) Store(recipient, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[recipient]; !ok {
		c.entries[recipient] = address
	}
}

func (c *mapCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type recordingMetrics struct {
	mu         sync.Mutex
	ensures    map[string]int
	coalesced  int
	mismatched int
}

func (m *recordingMetrics) ObserveEnsure(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ensures == nil {
		m.ensures = make(map[string]int)
	}
	m.ensures[outcome]++
}

func (m *recordingMetrics) ObserveQuery(string, model.QueryOutcome) {}
func (m *recordingMetrics) ObserveBroadcast(bool)                   {}

func (m *recordingMetrics) ObserveCoalesced() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coalesced++
}

func (m *recordingMetrics) ObserveCoalescedMismatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mismatched++
}

func (m *recordingMetrics) count(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensures[outcome]
}

type harness struct {
	clk         *clock.Mock
	querier     *fakeQuerier
	broadcaster *fakeBroadcaster
	cache       *mapCache
	metrics     *recordingMetrics
	engine      *Engine
}

func newHarness(t *testing.T, cfg EngineConfig, results ...model.QueryResult) *harness {
	t.Helper()
	clk := clock.NewMock()
	h := &harness{
		clk:         clk,
		querier:     &fakeQuerier{clk: clk, results: results},
		broadcaster: &fakeBroadcaster{clk: clk, receipt: model.BroadcastReceipt{Accepted: true, TxHash: "ABCDEF"}},
		cache:       newMapCache(),
		metrics:     &recordingMetrics{},
	}
	engine, err := NewEngine(EngineDeps{
		Querier:     h.querier,
		Broadcaster: h.broadcaster,
		Cache:       h.cache,
		Clock:       clk,
		Metrics:     h.metrics,
	}, cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	h.engine = engine
	return h
}

// ensure runs EnsureAccount while advancing the mock clock until it returns.
func (h *harness) ensure(t *testing.T, recipient string, opts model.EnsureOptions) (model.EnsureResult, error) {
	t.Helper()
	type outcome struct {
		res model.EnsureResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.engine.EnsureAccount(context.Background(), recipient, opts)
		done <- outcome{res: res, err: err}
	}()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case out := <-done:
			return out.res, out.err
		case <-deadline:
			t.Fatal("EnsureAccount did not return")
			return model.EnsureResult{}, nil
		default:
			h.clk.Add(250 * time.Millisecond)
		}
	}
}

func singleConfirmConfig() EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.ConfirmAttempts = 1
	cfg.QueryAttempts = 1
	return cfg
}

func TestEnsureAccount_RegistersThenServesFromCache(t *testing.T) {
	h := newHarness(t, singleConfirmConfig(), model.Absent(), model.Present("noble1xyz"))

	res, err := h.ensure(t, "0xABC123", model.EnsureOptions{Channel: "channel-39"})
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if res.Address != "noble1xyz" || res.Cached || !res.NewlyRegistered {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.TxHash != "ABCDEF" {
		t.Fatalf("expected tx hash to be propagated, got %q", res.TxHash)
	}
	if got := h.broadcaster.callCount(); got != 1 {
		t.Fatalf("expected exactly one broadcast, got %d", got)
	}
	spec := h.broadcaster.specs[0]
	if spec.Channel != "channel-39" || spec.Recipient != "0xABC123" || spec.Fallback != "" {
		t.Fatalf("unexpected registration spec: %+v", spec)
	}
	if spec.Fee.Denom != "uusdc" || spec.Fee.Amount != "20000" || spec.GasLimit != 200000 {
		t.Fatalf("unexpected fee: %+v gas=%d", spec.Fee, spec.GasLimit)
	}

	again, err := h.engine.EnsureAccount(context.Background(), "0xABC123", model.EnsureOptions{})
	if err != nil {
		t.Fatalf("second EnsureAccount: %v", err)
	}
	if again.Address != "noble1xyz" || !again.Cached || again.NewlyRegistered {
		t.Fatalf("expected cached result, got %+v", again)
	}
	if got := h.querier.callCount(); got != 2 {
		t.Fatalf("expected no further queries after cache hit, got %d total", got)
	}
	if got := h.broadcaster.callCount(); got != 1 {
		t.Fatalf("expected no further broadcasts after cache hit, got %d", got)
	}
	if h.metrics.count(OutcomeRegistered) != 1 || h.metrics.count(OutcomeCacheHit) != 1 {
		t.Fatalf("unexpected metrics: %+v", h.metrics.ensures)
	}
}

func TestEnsureAccount_ExistingAccountNeverBroadcasts(t *testing.T) {
	h := newHarness(t, singleConfirmConfig(), model.Present("noble1existing"))

	res, err := h.engine.EnsureAccount(context.Background(), "0xdead", model.EnsureOptions{})
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if res.Address != "noble1existing" || res.Cached || res.NewlyRegistered {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := h.broadcaster.callCount(); got != 0 {
		t.Fatalf("expected no broadcast, got %d", got)
	}
	if addr, ok := h.cache.Lookup("0xdead"); !ok || addr != "noble1existing" {
		t.Fatalf("expected cache entry, got %q ok=%v", addr, ok)
	}
}

func TestEnsureAccount_DefaultChannelAndFallback(t *testing.T) {
	cfg := singleConfirmConfig()
	cfg.DefaultChannel = "channel-7"
	cfg.DefaultFallback = "noble1fallback"
	h := newHarness(t, cfg, model.Present("noble1a"))

	if _, err := h.engine.EnsureAccount(context.Background(), "0xaa", model.EnsureOptions{}); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	call := h.querier.call(0)
	if call.channel != "channel-7" || call.fallback != "noble1fallback" || call.recipient != "0xaa" {
		t.Fatalf("unexpected query call: %+v", call)
	}
}

func TestEnsureAccount_RegistrationRejectedSkipsConfirmation(t *testing.T) {
	h := newHarness(t, singleConfirmConfig(), model.Absent())
	h.broadcaster.receipt = model.BroadcastReceipt{Accepted: false, Code: 13, Diagnostic: "insufficient fee"}

	_, err := h.engine.EnsureAccount(context.Background(), "0xbeef", model.EnsureOptions{})
	if !errors.Is(err, contracts.ErrRegistrationFailed) {
		t.Fatalf("expected ErrRegistrationFailed, got %v", err)
	}
	var classified *contracts.CategorizedError
	if !errors.As(err, &classified) || classified.Category != contracts.ErrorCategoryChain {
		t.Fatalf("expected rejection tagged with chain category, got %#v", err)
	}
	if got := h.querier.callCount(); got != 1 {
		t.Fatalf("expected no re-query after rejection, got %d queries", got)
	}
	if _, ok := h.cache.Lookup("0xbeef"); ok {
		t.Fatal("expected no cache entry after rejection")
	}
}

func TestEnsureAccount_BroadcastTransportErrorIsRegistrationFailure(t *testing.T) {
	h := newHarness(t, singleConfirmConfig(), model.Absent())
	h.broadcaster.err = errors.New("connection refused")

	_, err := h.engine.EnsureAccount(context.Background(), "0xbeef", model.EnsureOptions{})
	if !errors.Is(err, contracts.ErrRegistrationFailed) {
		t.Fatalf("expected ErrRegistrationFailed, got %v", err)
	}
	if got := contracts.ErrorCategory(err); got != contracts.ErrorCategoryChain {
		t.Fatalf("expected chain category, got %q", got)
	}
}

func TestEnsureAccount_BroadcastConfigurationErrorIsFatal(t *testing.T) {
	h := newHarness(t, singleConfirmConfig(), model.Absent())
	h.broadcaster.err = contracts.ConfigError("signer key material is missing")

	_, err := h.engine.EnsureAccount(context.Background(), "0xbeef", model.EnsureOptions{})
	if !errors.Is(err, contracts.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if errors.Is(err, contracts.ErrRegistrationFailed) {
		t.Fatal("configuration error must not be reported as a registration failure")
	}
	if h.metrics.count(OutcomeConfigFailure) != 1 {
		t.Fatalf("expected config failure metric, got %+v", h.metrics.ensures)
	}
}

func TestEnsureAccount_ConfirmationTimeoutLeavesCacheEmpty(t *testing.T) {
	h := newHarness(t, singleConfirmConfig(), model.Absent(), model.Absent())

	_, err := h.ensure(t, "0xc0ffee", model.EnsureOptions{})
	if !errors.Is(err, contracts.ErrConfirmationTimeout) {
		t.Fatalf("expected ErrConfirmationTimeout, got %v", err)
	}
	if got := h.broadcaster.callCount(); got != 1 {
		t.Fatalf("expected a single registration, got %d", got)
	}
	if got := h.querier.callCount(); got != 2 {
		t.Fatalf("expected exactly one re-query, got %d queries", got)
	}
	if h.cache.Len() != 0 {
		t.Fatal("expected no cache entry after confirmation timeout")
	}
}

func TestEnsureAccount_ReQueryWaitsForConfirmationDelay(t *testing.T) {
	cfg := singleConfirmConfig()
	cfg.ConfirmationDelay = 5 * time.Second
	h := newHarness(t, cfg, model.Absent(), model.Present("noble1late"))

	if _, err := h.ensure(t, "0x01", model.EnsureOptions{}); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	requery := h.querier.call(1).at
	if gap := requery.Sub(h.broadcaster.returnedAt); gap < cfg.ConfirmationDelay {
		t.Fatalf("re-query issued %s after broadcast, want >= %s", gap, cfg.ConfirmationDelay)
	}
}

func TestEnsureAccount_PollsUntilAccountIsVisible(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.QueryAttempts = 1
	cfg.ConfirmAttempts = 3
	h := newHarness(t, cfg, model.Absent(), model.Absent(), model.Failed(errors.New("unavailable")), model.Present("noble1poll"))

	res, err := h.ensure(t, "0x02", model.EnsureOptions{})
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if res.Address != "noble1poll" || !res.NewlyRegistered {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := h.querier.callCount(); got != 4 {
		t.Fatalf("expected 1 initial + 3 confirmation queries, got %d", got)
	}
	first, second := h.querier.call(1).at, h.querier.call(2).at
	if !second.After(first) {
		t.Fatalf("expected backoff between confirmation polls, got %s then %s", first, second)
	}
}

func TestEnsureAccount_PollingGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.QueryAttempts = 1
	cfg.ConfirmAttempts = 2
	h := newHarness(t, cfg, model.Absent(), model.Absent(), model.Failed(errors.New("deadline exceeded")))

	_, err := h.ensure(t, "0x03", model.EnsureOptions{})
	if !errors.Is(err, contracts.ErrConfirmationTimeout) {
		t.Fatalf("expected ErrConfirmationTimeout, got %v", err)
	}
	if got := h.querier.callCount(); got != 3 {
		t.Fatalf("expected 1 initial + 2 confirmation queries, got %d", got)
	}
	if got := h.broadcaster.callCount(); got != 1 {
		t.Fatalf("expected no re-registration, got %d broadcasts", got)
	}
}

func TestEnsureAccount_QueryFailureDoesNotRegister(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.QueryAttempts = 2
	h := newHarness(t, cfg, model.Failed(errors.New("unavailable")))

	_, err := h.ensure(t, "0x04", model.EnsureOptions{})
	if !errors.Is(err, contracts.ErrQueryUnavailable) {
		t.Fatalf("expected ErrQueryUnavailable, got %v", err)
	}
	if got := h.querier.callCount(); got != 2 {
		t.Fatalf("expected query to be retried once, got %d calls", got)
	}
	if got := h.broadcaster.callCount(); got != 0 {
		t.Fatalf("expected no registration on query failure, got %d", got)
	}
}

func TestEnsureAccount_QueryRetryRecovers(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.QueryAttempts = 3
	h := newHarness(t, cfg, model.Failed(errors.New("unavailable")), model.Present("noble1retry"))

	res, err := h.ensure(t, "0x05", model.EnsureOptions{})
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if res.Address != "noble1retry" || res.NewlyRegistered {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestEnsureAccount_RegisterOnQueryFailureRestoresCollapse(t *testing.T) {
	cfg := singleConfirmConfig()
	cfg.RegisterOnQueryFailure = true
	h := newHarness(t, cfg, model.Failed(errors.New("unavailable")), model.Present("noble1legacy"))

	res, err := h.ensure(t, "0x06", model.EnsureOptions{})
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if !res.NewlyRegistered || h.broadcaster.callCount() != 1 {
		t.Fatalf("expected registration after failed query, got %+v broadcasts=%d", res, h.broadcaster.callCount())
	}
}

func TestEnsureAccount_ConcurrentCallersShareOneRegistration(t *testing.T) {
	cfg := singleConfirmConfig()
	cfg.ConfirmationDelay = 0
	h := newHarness(t, cfg, model.Absent(), model.Present("noble1shared"))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.querier.entered = entered
	h.querier.release = release

	const callers = 8
	var wg sync.WaitGroup
	results := make([]model.EnsureResult, callers)
	errs := make([]error, callers)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = h.engine.EnsureAccount(context.Background(), "0xfeed", model.EnsureOptions{})
	}()
	<-entered
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.engine.EnsureAccount(context.Background(), "0xfeed", model.EnsureOptions{})
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	h.querier.mu.Lock()
	h.querier.release = nil
	h.querier.mu.Unlock()
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].Address != "noble1shared" {
			t.Fatalf("caller %d: unexpected address %q", i, results[i].Address)
		}
	}
	if got := h.broadcaster.callCount(); got != 1 {
		t.Fatalf("expected one registration for concurrent callers, got %d", got)
	}
	if got := h.querier.callCount(); got != 2 {
		t.Fatalf("expected one query plus one confirmation, got %d", got)
	}
}

func TestEnsureAccount_CoalescedCallerWithOtherChannelIsCounted(t *testing.T) {
	h := newHarness(t, singleConfirmConfig(), model.Present("noble1leader"))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.querier.entered = entered
	h.querier.release = release

	type outcome struct {
		res model.EnsureResult
		err error
	}
	leader := make(chan outcome, 1)
	go func() {
		res, err := h.engine.EnsureAccount(context.Background(), "0xfeed", model.EnsureOptions{Channel: "channel-39"})
		leader <- outcome{res, err}
	}()
	<-entered

	same := make(chan outcome, 1)
	other := make(chan outcome, 1)
	go func() {
		res, err := h.engine.EnsureAccount(context.Background(), "0xfeed", model.EnsureOptions{Channel: "channel-39"})
		same <- outcome{res, err}
	}()
	go func() {
		res, err := h.engine.EnsureAccount(context.Background(), "0xfeed", model.EnsureOptions{Channel: "channel-7"})
		other <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	for name, ch := range map[string]chan outcome{"leader": leader, "same": same, "other": other} {
		out := <-ch
		if out.err != nil || out.res.Address != "noble1leader" {
			t.Fatalf("%s: unexpected result %+v (%v)", name, out.res, out.err)
		}
	}
	if got := h.querier.callCount(); got != 1 {
		t.Fatalf("expected one shared query, got %d", got)
	}
	if call := h.querier.call(0); call.channel != "channel-39" {
		t.Fatalf("expected flight to run with the leader's channel, got %q", call.channel)
	}
	h.metrics.mu.Lock()
	defer h.metrics.mu.Unlock()
	if h.metrics.mismatched != 1 {
		t.Fatalf("expected exactly one mismatched joiner, got %d", h.metrics.mismatched)
	}
}

func TestEnsureAccount_CallerCancellationDoesNotAbortSharedWork(t *testing.T) {
	h := newHarness(t, singleConfirmConfig(), model.Present("noble1bg"))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.querier.entered = entered
	h.querier.release = release

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := h.engine.EnsureAccount(ctx, "0xcafe", model.EnsureOptions{})
		errCh <- err
	}()
	<-entered
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if addr, ok := h.cache.Lookup("0xcafe"); ok {
			if addr != "noble1bg" {
				t.Fatalf("unexpected cached address %q", addr)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected background reconciliation to populate the cache")
}

func TestEnsureAccount_BlankRecipientIsRejected(t *testing.T) {
	h := newHarness(t, singleConfirmConfig(), model.Absent())
	if _, err := h.engine.EnsureAccount(context.Background(), "   ", model.EnsureOptions{}); !errors.Is(err, contracts.ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	if h.querier.callCount() != 0 {
		t.Fatal("expected no remote call for blank recipient")
	}
}

func TestQueryAccount_RemembersPresentAccounts(t *testing.T) {
	h := newHarness(t, singleConfirmConfig(), model.Present("noble1q"))

	res, cached, err := h.engine.QueryAccount(context.Background(), "0x07", model.EnsureOptions{})
	if err != nil {
		t.Fatalf("QueryAccount: %v", err)
	}
	if cached || res.Outcome != model.QueryPresent || res.Record.Address != "noble1q" {
		t.Fatalf("unexpected query result: %+v cached=%v", res, cached)
	}
	res, cached, err = h.engine.QueryAccount(context.Background(), "0x07", model.EnsureOptions{})
	if err != nil || !cached || res.Record.Address != "noble1q" {
		t.Fatalf("expected cached query result, got %+v cached=%v err=%v", res, cached, err)
	}
	if h.broadcaster.callCount() != 0 {
		t.Fatal("query must never broadcast")
	}
}

func TestNewEngine_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.ConfirmAttempts = 0
	_, err := NewEngine(EngineDeps{
		Querier:     &fakeQuerier{},
		Broadcaster: &fakeBroadcaster{},
		Cache:       newMapCache(),
	}, cfg)
	if !errors.Is(err, contracts.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if _, err := NewEngine(EngineDeps{}, DefaultEngineConfig()); !errors.Is(err, contracts.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for missing ports, got %v", err)
	}
}
