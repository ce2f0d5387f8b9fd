// Package app wires all stresslens subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the streaming pipeline and the HTTP server, and
// Shutdown tears everything down in order.
//
// For testing, inject test doubles via functional options (WithHistory,
// WithSinks, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/stresslens/internal/config"
	"github.com/MrWong99/stresslens/internal/health"
	"github.com/MrWong99/stresslens/internal/history"
	"github.com/MrWong99/stresslens/internal/history/postgres"
	"github.com/MrWong99/stresslens/internal/inference"
	"github.com/MrWong99/stresslens/internal/langid"
	"github.com/MrWong99/stresslens/internal/model"
	"github.com/MrWong99/stresslens/internal/observe"
	"github.com/MrWong99/stresslens/internal/pipeline"
	"github.com/MrWong99/stresslens/internal/remedy"
	"github.com/MrWong99/stresslens/internal/resilience"
	"github.com/MrWong99/stresslens/internal/server"
	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/provider/classifier"
	"github.com/MrWong99/stresslens/pkg/provider/features"
)

// ErrNothingToRun is returned by Run when neither an audio source nor an
// HTTP listener is configured.
var ErrNothingToRun = errors.New("app: no audio source and no listen address configured")

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry. Source may be nil, in which case no
// streaming pipeline runs and only single-file analysis is available.
type Providers struct {
	Source     audio.Source
	Features   features.Extractor
	Classifier classifier.Classifier
	LangID     langid.Resolver

	// Bundle is the model bundle the providers were built against. Nil
	// loads it from the config.
	Bundle *model.Bundle
}

// App owns all subsystem lifetimes and orchestrates the stresslens pipeline.
type App struct {
	cfg        *config.Config
	configPath string
	providers  *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics        *observe.Metrics
	metricsHandler http.Handler
	levelVar       *slog.LevelVar
	history        history.Store
	aggregator     *stress.Aggregator
	worker         *inference.Worker
	recommender    *pipeline.Recommender
	analyzer       *pipeline.Analyzer
	pipe           *pipeline.Pipeline
	feed           *server.Feed
	health         *health.Handler
	server         *server.Server
	watcher        *config.Watcher
	sinks          []pipeline.Sink

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistory injects a history store instead of creating one from config.
func WithHistory(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithSinks adds recommendation sinks after the built-in log, feed and
// history sinks.
func WithSinks(s ...pipeline.Sink) Option {
	return func(a *App) { a.sinks = append(a.sinks, s...) }
}

// WithMetrics sets the metrics used by every subsystem.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler exposes h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithConfigWatch watches path and applies hot-reloadable changes (log level
// and confidence thresholds) while the app runs. level is the handler level
// to update; nil skips log level reloads.
func WithConfigWatch(path string, level *slog.LevelVar) Option {
	return func(a *App) {
		a.configPath = path
		a.levelVar = level
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: model and catalog loading,
// compatibility checks, history store connection, pipeline assembly and
// HTTP server construction. Any incompatibility between the configured
// providers fails here, before any audio is captured.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Features == nil || providers.Classifier == nil {
		return nil, errors.New("app: feature extractor and classifier are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Model bundle ──────────────────────────────────────────────────
	if err := a.initBundle(); err != nil {
		return nil, fmt.Errorf("app: init model: %w", err)
	}

	// ── 2. Inference worker ──────────────────────────────────────────────
	if err := a.initWorker(); err != nil {
		return nil, fmt.Errorf("app: init inference: %w", err)
	}

	// ── 3. History store ─────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 4. Aggregator, remedies and sinks ────────────────────────────────
	if err := a.initRecommender(); err != nil {
		return nil, fmt.Errorf("app: init recommender: %w", err)
	}
	a.analyzer = pipeline.NewAnalyzer(a.worker, a.recommender, cfg.Audio.SampleRate, cfg.Audio.Window())

	// ── 5. Streaming pipeline ────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 6. Health and HTTP server ────────────────────────────────────────
	a.initServer()

	// ── 7. Config watcher ────────────────────────────────────────────────
	if err := a.initWatcher(); err != nil {
		return nil, fmt.Errorf("app: init config watcher: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initBundle loads the model bundle if main.go did not, then checks that
// the providers agree with it.
func (a *App) initBundle() error {
	b := a.providers.Bundle
	if b == nil {
		var err error
		if b, err = LoadBundle(a.cfg); err != nil {
			return err
		}
		a.providers.Bundle = b
	}

	quality, err := a.cfg.QualityTable()
	if err != nil {
		return err
	}
	return errors.Join(
		b.CheckSampleRate(a.cfg.Audio.SampleRate),
		b.CheckExtractor(a.providers.Features.Names()),
		b.CheckClassifier(a.providers.Classifier),
		b.CheckQuality(quality),
	)
}

// initWorker builds the inference worker.
func (a *App) initWorker() error {
	quality, err := a.cfg.QualityTable()
	if err != nil {
		return err
	}
	opts := []inference.Option{
		inference.WithQuality(quality),
		inference.WithMetrics(a.metrics),
	}
	if b := a.providers.Bundle; b.Scaler.Len() > 0 {
		opts = append(opts, inference.WithScaler(b.Scaler))
	}
	if a.providers.LangID != nil {
		opts = append(opts, inference.WithResolver(a.providers.LangID))
	}

	w, err := inference.New(inference.Config{
		SampleRate:             a.cfg.Audio.SampleRate,
		ChunkSize:              a.cfg.Audio.ChunkSize(),
		MaxConsecutiveFailures: a.cfg.Pipeline.MaxConsecutiveFailures,
		DequeueTimeout:         a.cfg.Pipeline.DequeueTimeout,
	}, a.providers.Features, a.providers.Classifier, opts...)
	if err != nil {
		return err
	}
	a.worker = w
	return nil
}

// initHistory connects the PostgreSQL store when a DSN is configured and
// falls back to the in-memory store otherwise.
func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		return nil
	}

	dsn := a.cfg.History.PostgresDSN
	if dsn == "" {
		a.history = history.NewMemStore(a.cfg.History.Capacity)
		slog.Info("history kept in memory", "capacity", a.cfg.History.Capacity)
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.history = store
	a.closers = append(a.closers, store.Close)
	slog.Info("history stored in postgres")
	return nil
}

// initRecommender builds the aggregator, remedy selector and the sink chain.
func (a *App) initRecommender() error {
	agg, err := stress.NewAggregator(a.cfg.Thresholds())
	if err != nil {
		return err
	}
	a.aggregator = agg

	catalog, err := LoadCatalog(a.cfg)
	if err != nil {
		return err
	}

	a.feed = server.NewFeed(server.WithFeedOrigins(a.cfg.Server.AllowedOrigins...))
	sinks := []pipeline.Sink{
		pipeline.LogSink{},
		a.feed,
		pipeline.SinkFunc(a.record),
	}
	sinks = append(sinks, a.sinks...)

	a.recommender = pipeline.NewRecommender(agg, remedy.NewSelector(catalog), a.metrics, sinks...)
	return nil
}

// record appends a surfaced recommendation to history.
func (a *App) record(ctx context.Context, rec stress.Recommendation) error {
	if err := a.history.Append(ctx, rec); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	return nil
}

// initPipeline builds the streaming pipeline when a source is configured.
func (a *App) initPipeline() error {
	if a.providers.Source == nil {
		return nil
	}
	p, err := pipeline.New(pipeline.Config{
		SampleRate:    a.cfg.Audio.SampleRate,
		Window:        a.cfg.Audio.Window(),
		FrameSize:     a.cfg.Audio.FrameSize,
		QueueCapacity: a.cfg.Audio.QueueCapacity,
		PollInterval:  a.cfg.Pipeline.PollInterval,
		ShutdownGrace: a.cfg.Pipeline.ShutdownGrace,
		DrainOnStop:   a.cfg.Pipeline.Drain(),
		Language:      a.cfg.Pipeline.Language,
	}, a.providers.Source, a.worker, a.recommender, pipeline.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.pipe = p
	return nil
}

// initServer registers health checks and builds the HTTP server when a
// listen address is configured.
func (a *App) initServer() {
	var checks []health.Checker
	if p, ok := a.history.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, health.Ping("history", p.Ping))
	}
	if h, ok := a.providers.LangID.(interface {
		Health() []resilience.EntryHealth
	}); ok {
		checks = append(checks, health.Breakers("langid", h.Health))
	}
	a.health = health.New(checks...)

	if a.cfg.Server.ListenAddr == "" {
		return
	}

	scfg := server.Config{ListenAddr: a.cfg.Server.ListenAddr}
	if tls := a.cfg.Server.TLS; tls != nil {
		scfg.CertFile = tls.CertFile
		scfg.KeyFile = tls.KeyFile
	}
	opts := []server.Option{
		server.WithAnalyzer(a.analyzer),
		server.WithHistory(a.history),
		server.WithFeed(a.feed),
		server.WithHealth(a.health),
		server.WithMetrics(a.metrics),
	}
	if a.metricsHandler != nil {
		opts = append(opts, server.WithMetricsHandler(a.metricsHandler))
	}
	if ingest, ok := a.providers.Source.(http.Handler); ok {
		opts = append(opts, server.WithIngest(ingest))
	}
	a.server = server.New(scfg, opts...)
}

// initWatcher starts the config file watcher when WithConfigWatch was given.
func (a *App) initWatcher() error {
	if a.configPath == "" {
		return nil
	}
	w, err := config.NewWatcher(a.configPath, a.applyConfig)
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

// applyConfig applies the hot-reloadable part of a config change.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ThresholdsChanged {
		if err := a.aggregator.SetThresholds(d.NewThresholds); err != nil {
			slog.Warn("rejected confidence thresholds", "err", err)
		} else {
			slog.Info("confidence thresholds changed", "high", d.NewThresholds.High, "medium", d.NewThresholds.Medium)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Analyzer returns the single-recording analyzer.
func (a *App) Analyzer() *pipeline.Analyzer { return a.analyzer }

// History returns the recommendation store.
func (a *App) History() history.Store { return a.history }

// Feed returns the live recommendation feed.
func (a *App) Feed() *server.Feed { return a.feed }

// Aggregator returns the confidence aggregator.
func (a *App) Aggregator() *stress.Aggregator { return a.aggregator }

// Health returns the readiness checks.
func (a *App) Health() *health.Handler { return a.health }

// Streaming reports whether Run drives a live audio pipeline.
func (a *App) Streaming() bool { return a.pipe != nil }

// Serving reports whether Run serves HTTP.
func (a *App) Serving() bool { return a.server != nil }

// Stop requests a graceful stop of the streaming pipeline. A second call
// forces teardown.
func (a *App) Stop() {
	if a.pipe != nil {
		a.pipe.Stop()
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the streaming pipeline and the HTTP server and blocks until
// they stop.
//
// Without an HTTP server Run returns once the pipeline ends, e.g. at the
// end of a file source. With one, the server keeps serving until ctx is
// cancelled. A failing pipeline or server stops both and its error is
// returned; a stop requested through ctx returns nil.
func (a *App) Run(ctx context.Context) error {
	if a.pipe == nil && a.server == nil {
		return ErrNothingToRun
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error { return a.server.ListenAndServe(gctx) })
	}
	if a.pipe != nil {
		g.Go(func() error {
			err := a.pipe.Run(gctx)
			if err == nil && a.server == nil {
				cancel()
			}
			return err
		})
	}

	slog.Info("app running", "streaming", a.pipe != nil, "listen_addr", a.cfg.Server.ListenAddr)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// LoadBundle loads the configured model bundle, or the built-in one.
func LoadBundle(cfg *config.Config) (*model.Bundle, error) {
	if cfg.Model.Bundle == "" {
		return model.Default()
	}
	return model.LoadBundle(cfg.Model.Bundle)
}

// LoadCatalog loads the configured remedy catalog, or the built-in one.
func LoadCatalog(cfg *config.Config) (*remedy.Catalog, error) {
	if cfg.Remedies.Catalog == "" {
		return remedy.Default()
	}
	return remedy.Load(cfg.Remedies.Catalog)
}
