package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
)

func TestMetrics_EngineRecorders(t *testing.T) {
	m := NewMetrics()
	m.ObserveEnsure("registered", 6*time.Second)
	m.ObserveEnsure("cache_hit", time.Millisecond)
	m.ObserveEnsure("cache_hit", time.Millisecond)
	m.ObserveQuery("initial", model.QueryAbsent)
	m.ObserveQuery("confirmation", model.QueryPresent)
	m.ObserveBroadcast(true)
	m.ObserveCoalesced()
	m.ObserveCoalescedMismatch()
	m.ObserveEviction()

	if got := testutil.ToFloat64(m.ensureTotal.WithLabelValues("cache_hit")); got != 2 {
		t.Fatalf("expected 2 cache hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.queryTotal.WithLabelValues("initial", "absent")); got != 1 {
		t.Fatalf("expected 1 absent initial query, got %v", got)
	}
	if got := testutil.ToFloat64(m.broadcastTotal.WithLabelValues("true")); got != 1 {
		t.Fatalf("expected 1 accepted broadcast, got %v", got)
	}
	if got := testutil.ToFloat64(m.coalescedTotal); got != 1 {
		t.Fatalf("expected 1 coalesced caller, got %v", got)
	}
	if got := testutil.ToFloat64(m.mismatchTotal); got != 1 {
		t.Fatalf("expected 1 mismatched joiner, got %v", got)
	}
	if got := testutil.CollectAndCount(m.ensureDuration); got != 2 {
		t.Fatalf("expected 2 duration series, got %d", got)
	}
}

func TestMetrics_CacheGaugeAndHandler(t *testing.T) {
	m := NewMetrics()
	size := 3
	m.RegisterCacheSize(func() int { return size })
	m.RecordHTTPRequest("/process-forwarding", "POST", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	if !strings.Contains(text, "forwarder_cache_entries 3") {
		t.Fatalf("expected cache gauge in exposition, got:\n%s", text)
	}
	if !strings.Contains(text, `forwarder_http_requests_total{method="POST",route="/process-forwarding",status="200"} 1`) {
		t.Fatalf("expected http counter in exposition, got:\n%s", text)
	}
}

func TestMetrics_UnaryClientInterceptorRecordsStatus(t *testing.T) {
	m := NewMetrics()
	intercept := m.UnaryClientInterceptor()
	fail := func(context.Context, string, any, any, *grpc.ClientConn, ...grpc.CallOption) error {
		return status.Error(codes.Unavailable, "down")
	}
	ok := func(context.Context, string, any, any, *grpc.ClientConn, ...grpc.CallOption) error {
		return nil
	}
	const method = "/noble.forwarding.v1.Query/Address"
	_ = intercept(context.Background(), method, nil, nil, nil, fail)
	_ = intercept(context.Background(), method, nil, nil, nil, ok)

	if got := testutil.ToFloat64(m.grpcCalls.WithLabelValues(method, "Unavailable")); got != 1 {
		t.Fatalf("expected 1 unavailable call, got %v", got)
	}
	if got := testutil.ToFloat64(m.grpcCalls.WithLabelValues(method, "OK")); got != 1 {
		t.Fatalf("expected 1 ok call, got %v", got)
	}
}
