package pipeline_test

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/stresslens/internal/inference"
	"github.com/MrWong99/stresslens/internal/langid"
	"github.com/MrWong99/stresslens/internal/observe"
	"github.com/MrWong99/stresslens/internal/pipeline"
	"github.com/MrWong99/stresslens/internal/remedy"
	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/provider/classifier"
	classifiermock "github.com/MrWong99/stresslens/pkg/provider/classifier/mock"
	"github.com/MrWong99/stresslens/pkg/provider/features"
	featuresmock "github.com/MrWong99/stresslens/pkg/provider/features/mock"
	"github.com/MrWong99/stresslens/pkg/types"
)

const (
	testRate   = 1000
	testWindow = 3 * time.Second
	testSize   = 3000
)

var testNames = []string{"rms_mean", "zcr_mean", "lang_english", "lang_hindi"}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func result(label types.Label, probs ...float64) classifier.Result {
	r := classifier.Result{Label: label, Probabilities: map[types.Label]float64{}}
	for i, l := range types.Labels {
		r.Probabilities[l] = probs[i]
	}
	return r
}

func newMocks(res classifier.Result) (*featuresmock.Extractor, *classifiermock.Classifier) {
	ext := &featuresmock.Extractor{
		NamesValue:       testNames,
		SampleCountValue: testSize,
		ExtractResult:    features.Vector{Names: testNames, Values: make([]float64, len(testNames))},
	}
	cls := &classifiermock.Classifier{FeatureNamesValue: testNames, PredictResult: res}
	return ext, cls
}

func newWorker(t *testing.T, ext features.Extractor, cls classifier.Classifier, maxFailures int) *inference.Worker {
	t.Helper()
	w, err := inference.New(inference.Config{
		SampleRate:             testRate,
		ChunkSize:              testSize,
		MaxConsecutiveFailures: maxFailures,
		DequeueTimeout:         10 * time.Millisecond,
	}, ext, cls,
		inference.WithMetrics(testMetrics(t)),
		inference.WithResolver(langid.Static(types.English)),
	)
	if err != nil {
		t.Fatalf("inference.New: %v", err)
	}
	return w
}

func newRecommender(t *testing.T, sinks ...pipeline.Sink) *pipeline.Recommender {
	t.Helper()
	cat, err := remedy.Default()
	if err != nil {
		t.Fatalf("remedy.Default: %v", err)
	}
	agg, err := stress.NewAggregator(stress.Thresholds{High: stress.DefaultHighThreshold, Medium: stress.DefaultMediumThreshold})
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	sel := remedy.NewSelector(cat, remedy.WithRand(rand.New(rand.NewPCG(1, 2))))
	return pipeline.NewRecommender(agg, sel, testMetrics(t), sinks...)
}

// recordingSink collects delivered recommendations.
type recordingSink struct {
	mu   sync.Mutex
	recs []stress.Recommendation
}

func (s *recordingSink) Deliver(_ context.Context, rec stress.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *recordingSink) all() []stress.Recommendation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stress.Recommendation(nil), s.recs...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%200)/200 - 0.5
	}
	return out
}
