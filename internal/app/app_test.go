package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/stresslens/internal/app"
	"github.com/MrWong99/stresslens/internal/config"
	"github.com/MrWong99/stresslens/internal/history"
	"github.com/MrWong99/stresslens/internal/langid"
	"github.com/MrWong99/stresslens/internal/model"
	"github.com/MrWong99/stresslens/internal/observe"
	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/audio"
	audiomock "github.com/MrWong99/stresslens/pkg/audio/mock"
	"github.com/MrWong99/stresslens/pkg/provider/classifier"
	classifiermock "github.com/MrWong99/stresslens/pkg/provider/classifier/mock"
	"github.com/MrWong99/stresslens/pkg/provider/features"
	featuresmock "github.com/MrWong99/stresslens/pkg/provider/features/mock"
	"github.com/MrWong99/stresslens/pkg/types"
)

const (
	testRate = 1000
	testSize = 3000
)

var testNames = []string{"rms_mean", "zcr_mean", "lang_english", "lang_hindi"}

const testBundleYAML = `
name: test-bundle
extractor: mock
sample_rate: 1000
feature_names: [rms_mean, zcr_mean, lang_english, lang_hindi]
classes: [no_stress, low_stress, medium_stress, high_stress]
scaler:
  mean:  [0, 0, 0, 0]
  scale: [1, 1, 1, 1]
classifier:
  type: remote
`

// testConfig returns a config for a 1 kHz pipeline with a 3 s window and no
// HTTP listener.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.SampleRate = testRate
	cfg.Pipeline.PollInterval = 10 * time.Millisecond
	cfg.Pipeline.DequeueTimeout = 10 * time.Millisecond
	cfg.Pipeline.ShutdownGrace = time.Second
	return cfg
}

func testBundle(t *testing.T) *model.Bundle {
	t.Helper()
	b, err := model.Parse(strings.NewReader(testBundleYAML))
	if err != nil {
		t.Fatalf("model.Parse: %v", err)
	}
	return b
}

// testProviders returns mock providers that always predict high stress.
func testProviders(t *testing.T) *app.Providers {
	t.Helper()
	res := classifier.Result{
		Label: types.HighStress,
		Probabilities: map[types.Label]float64{
			types.NoStress: 0.02, types.LowStress: 0.03, types.MediumStress: 0.05, types.HighStress: 0.90,
		},
	}
	return &app.Providers{
		Features: &featuresmock.Extractor{
			NamesValue:       testNames,
			SampleCountValue: testSize,
			ExtractResult:    features.Vector{Names: testNames, Values: make([]float64, len(testNames))},
		},
		Classifier: &classifiermock.Classifier{FeatureNamesValue: testNames, PredictResult: res},
		LangID:     langid.Static(types.English),
		Bundle:     testBundle(t),
	}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func writeWAV(t *testing.T, samples []float32) string {
	t.Helper()
	data, err := audio.EncodeWAV(samples, testRate)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func tone(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%100)/100 - 0.5
	}
	return out
}

func TestNew_AnalyzeOnly(t *testing.T) {
	t.Parallel()

	store := history.NewMemStore(10)
	application, err := app.New(context.Background(), testConfig(), testProviders(t),
		app.WithHistory(store),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if application.Streaming() || application.Serving() {
		t.Errorf("Streaming=%v Serving=%v, want both false", application.Streaming(), application.Serving())
	}
	if err := application.Run(context.Background()); !errors.Is(err, app.ErrNothingToRun) {
		t.Errorf("Run() = %v, want ErrNothingToRun", err)
	}

	rec, err := application.Analyzer().AnalyzeFile(context.Background(), writeWAV(t, tone(testRate)), "english")
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}
	if rec.Label != types.HighStress || rec.Tier != stress.TierHigh {
		t.Errorf("recommendation = %s", rec)
	}

	// The analyzer delivers to the history and feed sinks.
	if store.Len() != 1 {
		t.Errorf("history len = %d, want 1", store.Len())
	}
	latest, ok := application.Feed().Latest()
	if !ok || latest.ID != rec.ID {
		t.Errorf("feed latest = %v (ok=%v), want %s", latest.ID, ok, rec.ID)
	}
}

func TestNew_RejectsIncompatibleProviders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config, *app.Providers)
		wantErr string
	}{
		{
			name: "sample rate differs from bundle",
			mutate: func(cfg *config.Config, _ *app.Providers) {
				cfg.Audio.SampleRate = 22050
			},
			wantErr: "sample rate",
		},
		{
			name: "extractor schema",
			mutate: func(_ *config.Config, p *app.Providers) {
				p.Features = &featuresmock.Extractor{NamesValue: []string{"rms_mean"}, SampleCountValue: testSize}
			},
			wantErr: "extractor schema",
		},
		{
			name: "classifier classes",
			mutate: func(_ *config.Config, p *app.Providers) {
				p.Classifier = &classifiermock.Classifier{
					FeatureNamesValue: testNames,
					ClassesValue:      []types.Label{types.NoStress, types.HighStress},
				}
			},
			wantErr: "classifier classes",
		},
		{
			name: "missing classifier",
			mutate: func(_ *config.Config, p *app.Providers) {
				p.Classifier = nil
			},
			wantErr: "required",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			providers := testProviders(t)
			tc.mutate(cfg, providers)

			_, err := app.New(context.Background(), cfg, providers,
				app.WithHistory(history.NewMemStore(1)),
				app.WithMetrics(testMetrics(t)))
			if err == nil {
				t.Fatal("New() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestApp_RunStreamsUntilEndOfInput(t *testing.T) {
	t.Parallel()

	providers := testProviders(t)
	// Two full windows plus a partial one that is discarded.
	providers.Source = audio.NewReplaySource(tone(2*testSize+500), testRate, false)

	store := history.NewMemStore(10)
	application, err := app.New(context.Background(), testConfig(), providers,
		app.WithHistory(store),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if !application.Streaming() {
		t.Fatal("Streaming() = false with a source configured")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- application.Run(context.Background()) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return at the end of input")
	}

	if store.Len() == 0 {
		t.Fatal("no recommendation was surfaced")
	}
	recs, _ := store.Recent(context.Background(), history.Query{})
	for _, r := range recs {
		if r.Label != types.HighStress || r.Language != types.English {
			t.Errorf("recommendation = %s", r)
		}
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	providers := testProviders(t)
	// Without frames the mock blocks like an idle microphone.
	src := &audiomock.Source{}
	providers.Source = src

	application, err := app.New(context.Background(), testConfig(), providers,
		app.WithHistory(history.NewMemStore(1)),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(ctx)
	}()

	// Give Run a moment to start the pipeline.
	time.Sleep(50 * time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if got := src.CallCountStart(); got != 1 {
		t.Errorf("source Start call count = %d, want 1", got)
	}
	// Shutdown is idempotent.
	if err := application.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}

func TestApp_ConfigWatchReloadsThresholds(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stresslens.yaml")
	if err := os.WriteFile(path, []byte("confidence:\n  high: 0.80\n  medium: 0.65\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	application, err := app.New(context.Background(), testConfig(), testProviders(t),
		app.WithHistory(history.NewMemStore(1)),
		app.WithMetrics(testMetrics(t)),
		app.WithConfigWatch(path, nil),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = application.Shutdown(context.Background()) })

	// Ensure the modification time moves even on coarse filesystems.
	time.Sleep(20 * time.Millisecond)
	if err := os.WriteFile(path, []byte("confidence:\n  high: 0.90\n  medium: 0.50\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	want := stress.Thresholds{High: 0.90, Medium: 0.50}
	deadline := time.Now().Add(10 * time.Second)
	for application.Aggregator().Thresholds() != want {
		if time.Now().After(deadline) {
			t.Fatalf("thresholds = %+v, want %+v", application.Aggregator().Thresholds(), want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
