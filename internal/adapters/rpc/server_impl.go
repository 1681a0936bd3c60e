package rpc

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
	"cctp-forwarder/go-backend/internal/platform/ratelimiter"
)

const (
	DefaultAddr           = ":3001"
	DefaultRequestTimeout = 60 * time.Second
	componentName         = "ingress"
	bannerText            = "USDC CCTP Noble Forwarding API is running"
	tokenHeader           = "X-FWD-RPC-Token"
	requestIDHeader       = "X-Request-Id"
)

// Forwarder is the reconciliation surface the ingress exposes.
type Forwarder interface {
	EnsureAccount(ctx context.Context, recipient string, opts model.EnsureOptions) (model.EnsureResult, error)
	QueryAccount(ctx context.Context, recipient string, opts model.EnsureOptions) (model.QueryResult, bool, error)
}

type RequestRecorder interface {
	RecordHTTPRequest(route, method string, status int, duration time.Duration)
}

type ServerConfig struct {
	Addr           string
	Token          string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

type ServerDeps struct {
	Forwarder Forwarder
	Recorder  RequestRecorder
	Metrics   http.Handler
	Logger    *slog.Logger
}

type Server struct {
	httpServer *http.Server
	forwarder  Forwarder
	recorder   RequestRecorder
	logger     *slog.Logger
	token      string
	origins    map[string]struct{}
	limiter    *ratelimiter.MapLimiter
	timeout    time.Duration
	maxBody    int64
}

func NewServer(cfg ServerConfig, deps ServerDeps) (*Server, error) {
	if deps.Forwarder == nil {
		return nil, errors.New("ingress requires a forwarder")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = maxRPCBodyBytes
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		forwarder: deps.Forwarder,
		recorder:  deps.Recorder,
		logger:    logger,
		token:     strings.TrimSpace(cfg.Token),
		origins:   make(map[string]struct{}, len(cfg.AllowedOrigins)),
		limiter:   ratelimiter.New(cfg.RateLimitRPS, cfg.RateLimitBurst, 0),
		timeout:   cfg.RequestTimeout,
		maxBody:   cfg.MaxBodyBytes,
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			s.origins[origin] = struct{}{}
		}
	}
	if s.token == "" {
		logger.Warn("FWD_RPC_TOKEN is not set; ingress auth disabled", "component", componentName)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.instrument("/", s.handleBanner))
	mux.HandleFunc("/healthz", s.instrument("/healthz", s.handleHealth))
	mux.HandleFunc("/process-forwarding", s.instrument("/process-forwarding", s.handleProcessForwarding))
	mux.HandleFunc("/rpc", s.instrument("/rpc", s.handleRPC))
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()
	s.logger.Info("ingress listening", "component", componentName, "addr", s.httpServer.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		if s.recorder != nil {
			s.recorder.RecordHTTPRequest(route, r.Method, rec.status, time.Since(started))
		}
	}
}

// preflight applies CORS, auth and rate limiting. It reports false once a
// response has already been written.
func (s *Server) preflight(w http.ResponseWriter, r *http.Request, method string) bool {
	if !s.applyCORS(w, r) {
		return false
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	if r.Method != method {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if !s.authorize(w, r) {
		return false
	}
	allowed, wait := s.limiter.Allow(rateLimitKey(r), time.Now())
	if !allowed {
		if wait > 0 {
			w.Header().Set("Retry-After", retryAfterSeconds(wait))
		}
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(bannerText))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.applyCORS(w, r) {
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin != "" && !s.isAllowedOrigin(origin) {
		writeJSONError(w, http.StatusForbidden, "origin is not allowed")
		return false
	}
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, "+tokenHeader+", "+requestIDHeader)
	return true
}

func (s *Server) isAllowedOrigin(raw string) bool {
	if _, ok := s.origins["*"]; ok {
		return true
	}
	if _, ok := s.origins[raw]; ok {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.TrimSpace(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if s.token == "" {
		return true
	}
	if !tokenMatches(s.extractToken(r), s.token) {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}

// tokenMatches compares digests in constant time so neither the contents nor
// the length of the configured token leak through response timing.
func tokenMatches(given, want string) bool {
	g := sha256.Sum256([]byte(given))
	w := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], w[:]) == 1
}

func (s *Server) extractToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get(tokenHeader))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
