// Package observability owns the process metrics registry and the recorders
// used by the engine, the chain adapter and the ingress.
package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
)

const namespace = "forwarder"

type Metrics struct {
	registry *prometheus.Registry

	ensureTotal    *prometheus.CounterVec
	ensureDuration *prometheus.HistogramVec
	queryTotal     *prometheus.CounterVec
	broadcastTotal *prometheus.CounterVec
	coalescedTotal prometheus.Counter
	mismatchTotal  prometheus.Counter
	evictionsTotal prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	grpcCalls      *prometheus.CounterVec
	grpcDuration   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ensureTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ensure_total",
			Help:      "Ensure-account calls by outcome.",
		}, []string{"outcome"}),
		ensureDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ensure_duration_seconds",
			Help:      "Ensure-account latency in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"outcome"}),
		queryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "queries_total",
			Help:      "Forwarding queries by stage and result.",
		}, []string{"stage", "result"}),
		broadcastTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "broadcasts_total",
			Help:      "Registration broadcasts by acceptance.",
		}, []string{"accepted"}),
		coalescedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "coalesced_total",
			Help:      "Callers that joined an in-flight reconciliation.",
		}),
		mismatchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "coalesced_option_mismatch_total",
			Help:      "Joined callers whose channel or fallback differed from the running reconciliation.",
		}),
		evictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Account cache evictions.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		grpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_total",
			Help:      "Chain gRPC calls by method and status code.",
		}, []string{"method", "code"}),
		grpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_duration_seconds",
			Help:      "Chain gRPC call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ensureTotal, m.ensureDuration, m.queryTotal, m.broadcastTotal,
		m.coalescedTotal, m.mismatchTotal, m.evictionsTotal,
		m.httpRequests, m.httpDuration, m.grpcCalls, m.grpcDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterCacheSize exposes the current cache population as a gauge.
func (m *Metrics) RegisterCacheSize(size func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Confirmed forwarding accounts held in memory.",
	}, func() float64 { return float64(size()) }))
}

func (m *Metrics) ObserveEnsure(outcome string, elapsed time.Duration) {
	m.ensureTotal.WithLabelValues(outcome).Inc()
	m.ensureDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveQuery(stage string, outcome model.QueryOutcome) {
	m.queryTotal.WithLabelValues(stage, outcome.String()).Inc()
}

func (m *Metrics) ObserveBroadcast(accepted bool) {
	m.broadcastTotal.WithLabelValues(strconv.FormatBool(accepted)).Inc()
}

func (m *Metrics) ObserveCoalesced() {
	m.coalescedTotal.Inc()
}

func (m *Metrics) ObserveCoalescedMismatch() {
	m.mismatchTotal.Inc()
}

func (m *Metrics) ObserveEviction() {
	m.evictionsTotal.Inc()
}

func (m *Metrics) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(route, method, statusLabel).Inc()
	m.httpDuration.WithLabelValues(route, method, statusLabel).Observe(duration.Seconds())
}

// UnaryClientInterceptor records every chain RPC.
func (m *Metrics) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		m.grpcCalls.WithLabelValues(method, status.Code(err).String()).Inc()
		m.grpcDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return err
	}
}
