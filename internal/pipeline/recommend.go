package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MrWong99/stresslens/internal/observe"
	"github.com/MrWong99/stresslens/internal/remedy"
	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/types"
)

// Sink receives every surfaced recommendation.
type Sink interface {
	Deliver(ctx context.Context, rec stress.Recommendation) error
}

// SinkFunc adapts a function to a [Sink].
type SinkFunc func(ctx context.Context, rec stress.Recommendation) error

// Deliver implements [Sink].
func (f SinkFunc) Deliver(ctx context.Context, rec stress.Recommendation) error { return f(ctx, rec) }

// LogSink logs a one-line summary of each recommendation. The most severe
// label is logged at warn level.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver implements [Sink].
func (s LogSink) Deliver(ctx context.Context, rec stress.Recommendation) error {
	l := s.Logger
	if l == nil {
		l = observe.Logger(ctx)
	}
	level := slog.LevelInfo
	if rec.Label == types.Highest() {
		level = slog.LevelWarn
	}
	l.Log(ctx, level, "stress recommendation",
		"id", rec.ID,
		"chunk_id", rec.ChunkID,
		"label", rec.Label,
		"language", rec.Language,
		"tier", rec.Tier,
		"combined_confidence", rec.CombinedConfidence,
		"remedies", len(rec.Remedies))
	return nil
}

// WriterSink prints the full report of each recommendation to W.
type WriterSink struct {
	mu sync.Mutex
	W  io.Writer
}

// Deliver implements [Sink].
func (s *WriterSink) Deliver(_ context.Context, rec stress.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.W, remedy.Format(rec))
	return err
}

// Recommender turns predictions into recommendations and fans them out to
// sinks.
type Recommender struct {
	agg     *stress.Aggregator
	sel     *remedy.Selector
	sinks   []Sink
	metrics *observe.Metrics
}

// NewRecommender returns a Recommender. A nil m uses
// [observe.DefaultMetrics].
func NewRecommender(agg *stress.Aggregator, sel *remedy.Selector, m *observe.Metrics, sinks ...Sink) *Recommender {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Recommender{agg: agg, sel: sel, sinks: sinks, metrics: m}
}

// Aggregator returns the confidence aggregator, for threshold reloads.
func (r *Recommender) Aggregator() *stress.Aggregator { return r.agg }

// Recommend grades p and selects its remedies without delivering the result.
func (r *Recommender) Recommend(ctx context.Context, p stress.Prediction) (stress.Recommendation, error) {
	tier := r.agg.Tier(p)
	rec, err := r.sel.Select(p, tier)
	if err != nil {
		r.metrics.RecommendationErrors.Add(ctx, 1)
		return stress.Recommendation{}, err
	}
	r.metrics.RecordRecommendation(ctx, string(tier), string(p.Label))
	return rec, nil
}

// Surface recommends p and delivers the result to every sink. A failing
// sink is logged and does not stop delivery to the others; the returned
// error joins all sink failures.
func (r *Recommender) Surface(ctx context.Context, p stress.Prediction) (stress.Recommendation, error) {
	rec, err := r.Recommend(ctx, p)
	if err != nil {
		return stress.Recommendation{}, err
	}
	return rec, r.Deliver(ctx, rec)
}

// Deliver sends rec to every sink.
func (r *Recommender) Deliver(ctx context.Context, rec stress.Recommendation) error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Deliver(ctx, rec); err != nil {
			observe.Logger(ctx).Warn("recommendation sink failed", "id", rec.ID, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
