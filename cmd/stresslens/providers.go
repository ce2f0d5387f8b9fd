package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/stresslens/internal/app"
	"github.com/MrWong99/stresslens/internal/config"
	"github.com/MrWong99/stresslens/internal/langid"
	"github.com/MrWong99/stresslens/internal/langid/whisper"
	"github.com/MrWong99/stresslens/internal/observe"
	"github.com/MrWong99/stresslens/internal/resilience"
	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/audio/wsaudio"
	"github.com/MrWong99/stresslens/pkg/provider/classifier"
	classifierremote "github.com/MrWong99/stresslens/pkg/provider/classifier/remote"
	"github.com/MrWong99/stresslens/pkg/provider/features"
	"github.com/MrWong99/stresslens/pkg/provider/features/energy"
	featuresremote "github.com/MrWong99/stresslens/pkg/provider/features/remote"
)

// extraRegistrations are applied after the built-in providers. Files behind
// build tags append to it from init.
var extraRegistrations []func(*config.Registry)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and the pipeline parameters
// and constructs the provider from the real implementation packages.
// Breaker transitions are counted on m when it is non-nil.
func registerBuiltinProviders(reg *config.Registry, m *observe.Metrics) {
	breakerConfig := func(name string, entry config.ProviderEntry) resilience.CircuitBreakerConfig {
		cfg := resilience.CircuitBreakerConfig{
			Name:         name,
			MaxFailures:  config.OptInt(entry.Options, "breaker_max_failures", 0),
			ResetTimeout: config.OptDuration(entry.Options, "breaker_reset_timeout", 0),
		}
		if m != nil {
			cfg.OnStateChange = func(name string, _, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), name, to.String())
			}
		}
		return cfg
	}

	// ── Audio sources ─────────────────────────────────────────────────────────

	reg.RegisterSource("file", func(_ context.Context, entry config.ProviderEntry, env config.Env) (audio.Source, error) {
		path := config.OptString(entry.Options, "path")
		if path == "" {
			return nil, errors.New("file source: options.path is required")
		}
		samples, err := audio.LoadFile(path, env.SampleRate, 0)
		if err != nil {
			return nil, err
		}
		realtime := config.OptBool(entry.Options, "realtime", true)
		return audio.NewReplaySource(samples, env.SampleRate, realtime), nil
	})

	reg.RegisterSource("websocket", func(_ context.Context, entry config.ProviderEntry, env config.Env) (audio.Source, error) {
		opts := []wsaudio.Option{
			wsaudio.WithChannels(config.OptInt(entry.Options, "channels", 1)),
		}
		if n := config.OptInt(entry.Options, "buffer", 0); n > 0 {
			opts = append(opts, wsaudio.WithBuffer(n))
		}
		if n := config.OptInt(entry.Options, "input_rate", 0); n > 0 {
			opts = append(opts, wsaudio.WithInputRate(n))
		}
		if origins := config.OptStrings(entry.Options, "origins"); len(origins) > 0 {
			opts = append(opts, wsaudio.WithOriginPatterns(origins...))
		}
		return wsaudio.New(env.SampleRate, opts...)
	})

	// ── Feature extractors ────────────────────────────────────────────────────

	reg.RegisterFeatures("energy", func(_ context.Context, entry config.ProviderEntry, env config.Env) (features.Extractor, error) {
		var opts []energy.Option
		if n := config.OptInt(entry.Options, "frame_length", 0); n > 0 {
			opts = append(opts, energy.WithFrameLength(n))
		}
		if n := config.OptInt(entry.Options, "hop", 0); n > 0 {
			opts = append(opts, energy.WithHop(n))
		}
		return energy.New(env.SampleRate, env.ChunkSize, opts...)
	})

	reg.RegisterFeatures("remote", func(ctx context.Context, entry config.ProviderEntry, env config.Env) (features.Extractor, error) {
		opts := []featuresremote.Option{
			featuresremote.WithCircuitBreaker(breakerConfig("features/remote", entry)),
		}
		if d := config.OptDuration(entry.Options, "timeout", 0); d > 0 {
			opts = append(opts, featuresremote.WithTimeout(d))
		}
		e, err := featuresremote.New(ctx, entry.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		if e.SampleRate() != env.SampleRate {
			return nil, fmt.Errorf("remote features: sidecar expects %d Hz, pipeline runs at %d Hz", e.SampleRate(), env.SampleRate)
		}
		return e, nil
	})

	// ── Classifiers ───────────────────────────────────────────────────────────

	reg.RegisterClassifier("linear", func(_ context.Context, _ config.ProviderEntry, env config.Env) (classifier.Classifier, error) {
		if env.Bundle == nil {
			return nil, errors.New("linear classifier: no model bundle loaded")
		}
		return env.Bundle.NewLinear()
	})

	reg.RegisterClassifier("remote", func(ctx context.Context, entry config.ProviderEntry, _ config.Env) (classifier.Classifier, error) {
		opts := []classifierremote.Option{
			classifierremote.WithCircuitBreaker(breakerConfig("classifier/remote", entry)),
		}
		if d := config.OptDuration(entry.Options, "timeout", 0); d > 0 {
			opts = append(opts, classifierremote.WithTimeout(d))
		}
		return classifierremote.New(ctx, entry.BaseURL, opts...)
	})

	// ── Language resolvers ────────────────────────────────────────────────────

	reg.RegisterLangID("centroid", func(context.Context, config.ProviderEntry, config.Env) (langid.Resolver, error) {
		return langid.NewCentroid(), nil
	})

	reg.RegisterLangID("static", func(_ context.Context, entry config.ProviderEntry, _ config.Env) (langid.Resolver, error) {
		hint := config.OptString(entry.Options, "language")
		lang, ok := langid.Normalize(hint)
		if !ok {
			return nil, fmt.Errorf("static langid: unsupported language %q", hint)
		}
		return langid.Static(lang), nil
	})

	// whisper falls back to the spectral centroid heuristic when the API is
	// unavailable.
	reg.RegisterLangID("whisper", func(_ context.Context, entry config.ProviderEntry, _ config.Env) (langid.Resolver, error) {
		var opts []whisper.Option
		if entry.BaseURL != "" {
			opts = append(opts, whisper.WithBaseURL(entry.BaseURL))
		}
		if d := config.OptDuration(entry.Options, "timeout", 0); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		w, err := whisper.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		chain := langid.NewChain("whisper", w, resilience.FallbackConfig{
			CircuitBreaker: breakerConfig("langid/whisper", entry),
		})
		return chain.Add("centroid", langid.NewCentroid()), nil
	})

	for _, register := range extraRegistrations {
		register(reg)
	}

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. The source is only built when withSource is set.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry, withSource bool) (*app.Providers, error) {
	bundle, err := app.LoadBundle(cfg)
	if err != nil {
		return nil, fmt.Errorf("load model bundle: %w", err)
	}
	env := config.Env{
		SampleRate: cfg.Audio.SampleRate,
		ChunkSize:  cfg.Audio.ChunkSize(),
		FrameSize:  cfg.Audio.FrameSize,
		Bundle:     bundle,
	}
	ps := &app.Providers{Bundle: bundle}

	p := cfg.Providers
	if ps.Features, err = reg.CreateFeatures(ctx, p.Features, env); err != nil {
		return nil, fmt.Errorf("create features provider %q: %w", p.Features.Name, err)
	}
	slog.Info("provider created", "kind", "features", "name", p.Features.Name)

	if ps.Classifier, err = reg.CreateClassifier(ctx, p.Classifier, env); err != nil {
		return nil, fmt.Errorf("create classifier provider %q: %w", p.Classifier.Name, err)
	}
	slog.Info("provider created", "kind", "classifier", "name", p.Classifier.Name)

	if ps.LangID, err = reg.CreateLangID(ctx, p.LangID, env); err != nil {
		return nil, fmt.Errorf("create langid provider %q: %w", p.LangID.Name, err)
	}
	slog.Info("provider created", "kind", "langid", "name", p.LangID.Name)

	if withSource {
		ps.Source, err = reg.CreateSource(ctx, p.Source, env)
		if errors.Is(err, config.ErrProviderNotRegistered) && p.Source.Name == "portaudio" {
			return nil, errors.New("the portaudio source is not compiled in; rebuild with -tags portaudio or choose another providers.source")
		}
		if err != nil {
			return nil, fmt.Errorf("create source %q: %w", p.Source.Name, err)
		}
		slog.Info("provider created", "kind", "source", "name", p.Source.Name)
	}

	return ps, nil
}
