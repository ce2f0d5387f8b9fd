package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/stresslens/internal/inference"
	"github.com/MrWong99/stresslens/internal/observe"
	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/audio"
)

// Analyzer classifies a single recording outside the streaming loop.
//
// The recording is decoded, resampled to the pipeline rate, peak-normalised
// and trimmed or zero-padded to exactly one analysis window before it goes
// through the same worker and recommender as live audio.
type Analyzer struct {
	worker     *inference.Worker
	rec        *Recommender
	sampleRate int
	window     time.Duration
	size       int
}

// NewAnalyzer returns an Analyzer producing chunks of window at sampleRate.
func NewAnalyzer(w *inference.Worker, rec *Recommender, sampleRate int, window time.Duration) *Analyzer {
	return &Analyzer{
		worker:     w,
		rec:        rec,
		sampleRate: sampleRate,
		window:     window,
		size:       audio.ChunkSize(sampleRate, window),
	}
}

// AnalyzeFile analyses the WAV file at path. language is an optional hint;
// when empty the language is resolved from the audio.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path, language string) (stress.Recommendation, error) {
	f, err := os.Open(path)
	if err != nil {
		return stress.Recommendation{}, fmt.Errorf("pipeline: analyze: %w", err)
	}
	defer f.Close()
	return a.Analyze(ctx, f, language)
}

// Analyze analyses a WAV stream. The recommendation is also delivered to the
// recommender's sinks; sink failures are logged but not returned.
func (a *Analyzer) Analyze(ctx context.Context, r io.Reader, language string) (stress.Recommendation, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.analyze",
		trace.WithAttributes(attribute.String("language.hint", language)))
	defer span.End()

	rec, err := a.analyze(ctx, r, language)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stress.Recommendation{}, err
	}
	_ = a.rec.Deliver(ctx, rec)
	return rec, nil
}

func (a *Analyzer) analyze(ctx context.Context, r io.Reader, language string) (stress.Recommendation, error) {
	samples, err := audio.Decode(r, a.sampleRate, a.window)
	if err != nil {
		return stress.Recommendation{}, fmt.Errorf("pipeline: analyze: %w", err)
	}
	audio.Normalize(samples)
	chunk := audio.Chunk{
		ID:         uuid.NewString(),
		Seq:        1,
		Samples:    audio.FitLength(samples, a.size),
		SampleRate: a.sampleRate,
		Language:   language,
		CapturedAt: time.Now(),
	}

	pred, err := a.worker.Process(ctx, chunk)
	if err != nil {
		return stress.Recommendation{}, err
	}
	return a.rec.Recommend(ctx, pred)
}
