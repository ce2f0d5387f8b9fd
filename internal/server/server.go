// Package server exposes stresslens over HTTP.
//
// Routes (each registered only when its backing component is configured):
//
//	GET  /healthz                      liveness
//	GET  /readyz                       readiness
//	GET  /metrics                      Prometheus scrape
//	POST /v1/analyze                   analyse one WAV upload
//	GET  /v1/recommendations           recent history, filtered
//	POST /v1/recommendations/similar   nearest history by probabilities
//	GET  /v1/recommendations/latest    last surfaced recommendation
//	GET  /v1/feed                      websocket stream of recommendations
//	GET  /v1/ingest                    websocket PCM audio source
//
// Every route runs behind [observe.Middleware].
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/stresslens/internal/health"
	"github.com/MrWong99/stresslens/internal/history"
	"github.com/MrWong99/stresslens/internal/langid"
	"github.com/MrWong99/stresslens/internal/observe"
	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/types"
)

// DefaultMaxUploadBytes bounds POST /v1/analyze bodies.
const DefaultMaxUploadBytes = 32 << 20

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Analyzer classifies one recording. [pipeline.Analyzer] implements it.
type Analyzer interface {
	Analyze(ctx context.Context, r io.Reader, language string) (stress.Recommendation, error)
}

// Config holds listener settings.
type Config struct {
	ListenAddr string

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	MaxUploadBytes int64
}

// Option is a functional option for [New].
type Option func(*Server)

// WithAnalyzer enables POST /v1/analyze.
func WithAnalyzer(a Analyzer) Option { return func(s *Server) { s.analyzer = a } }

// WithHistory enables the recommendation listing routes.
func WithHistory(h history.Store) Option { return func(s *Server) { s.history = h } }

// WithFeed enables the websocket feed and the latest route.
func WithFeed(f *Feed) Option { return func(s *Server) { s.feed = f } }

// WithHealth sets the health handler. Without it /readyz always passes.
func WithHealth(h *health.Handler) Option { return func(s *Server) { s.health = h } }

// WithMetrics sets the metrics used by the request middleware.
func WithMetrics(m *observe.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithMetricsHandler enables GET /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metricsHandler = h } }

// WithIngest mounts a websocket audio source on GET /v1/ingest.
func WithIngest(h http.Handler) Option { return func(s *Server) { s.ingest = h } }

// Server is the HTTP front end.
type Server struct {
	cfg Config

	analyzer       Analyzer
	history        history.Store
	feed           *Feed
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	ingest         http.Handler
}

// New returns a Server. Call [Server.Handler] for tests or
// [Server.ListenAndServe] to serve.
func New(cfg Config, opts ...Option) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.Register(mux)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	if s.analyzer != nil {
		mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	}
	if s.history != nil {
		mux.HandleFunc("GET /v1/recommendations", s.handleRecent)
		mux.HandleFunc("POST /v1/recommendations/similar", s.handleSimilar)
	}
	if s.feed != nil {
		mux.HandleFunc("GET /v1/recommendations/latest", s.handleLatest)
		mux.Handle("GET /v1/feed", s.feed)
	}
	if s.ingest != nil {
		mux.Handle("GET /v1/ingest", s.ingest)
	}
	return observe.Middleware(s.metrics)(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", s.tls())
		if s.tls() {
			errCh <- srv.ServeTLS(ln, s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			errCh <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	<-errCh
	return nil
}

func (s *Server) tls() bool { return s.cfg.CertFile != "" && s.cfg.KeyFile != "" }

// ── Handlers ─────────────────────────────────────────────────────────────────

// handleAnalyze accepts either a multipart form with a "file" field or a raw
// WAV body. The optional language hint comes from the "language" query or
// form value.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	language := r.URL.Query().Get("language")

	var body io.Reader = r.Body
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
			return
		}
		defer file.Close()
		body = file
		if v := r.FormValue("language"); v != "" {
			language = v
		}
	}

	rec, err := s.analyzer.Analyze(r.Context(), body, language)
	if err != nil {
		writeError(w, analyzeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func analyzeStatus(err error) int {
	var (
		maxBytes *http.MaxBytesError
		infErr   *stress.InferenceError
		recErr   *stress.RecommendationError
	)
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &infErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &recErr):
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

type recentResponse struct {
	Recommendations []stress.Recommendation `json:"recommendations"`
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recs, err := s.history.Recent(r.Context(), q)
	if err != nil {
		observe.Logger(r.Context()).Error("history query failed", "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("history unavailable"))
		return
	}
	if recs == nil {
		recs = []stress.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recentResponse{Recommendations: recs})
}

func parseQuery(r *http.Request) (history.Query, error) {
	v := r.URL.Query()
	var q history.Query
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, fmt.Errorf("limit %q must be a non-negative integer", s)
		}
		q.Limit = n
	}
	if s := v.Get("label"); s != "" {
		q.Label = types.Label(s)
		if !q.Label.IsValid() {
			return q, fmt.Errorf("unknown label %q", s)
		}
	}
	if s := v.Get("language"); s != "" {
		lang, ok := langid.Normalize(s)
		if !ok {
			return q, fmt.Errorf("unsupported language %q", s)
		}
		q.Language = lang
	}
	if s := v.Get("tier"); s != "" {
		q.Tier = stress.Tier(s)
		if q.Tier.Rank() < 0 {
			return q, fmt.Errorf("unknown tier %q", s)
		}
	}
	return q, nil
}

type similarRequest struct {
	Probabilities map[types.Label]float64 `json:"probabilities"`
	K             int                     `json:"k"`
}

type similarMatch struct {
	stress.Recommendation
	Distance float64 `json:"distance"`
}

type similarResponse struct {
	Matches []similarMatch `json:"matches"`
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req similarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if len(req.Probabilities) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("probabilities are required"))
		return
	}
	for l := range req.Probabilities {
		if !l.IsValid() {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown label %q", l))
			return
		}
	}
	k := req.K
	if k <= 0 || k > history.MaxLimit {
		k = history.DefaultLimit
	}

	matches, err := s.history.Similar(r.Context(), req.Probabilities, k)
	if err != nil {
		observe.Logger(r.Context()).Error("history similarity search failed", "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("history unavailable"))
		return
	}
	resp := similarResponse{Matches: make([]similarMatch, len(matches))}
	for i, m := range matches {
		resp.Matches[i] = similarMatch{Recommendation: m.Recommendation, Distance: m.Distance}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	rec, ok := s.feed.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
