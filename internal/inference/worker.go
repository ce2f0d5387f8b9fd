// Package inference turns assembled audio chunks into stress predictions.
//
// A [Worker] owns one feature extractor and one classifier. For every chunk
// it resolves the spoken language, extracts a fixed-schema feature vector,
// checks the schema against what the classifier was fit on, scales it,
// classifies it, and attaches the static model quality of the predicted
// label. [Worker.Run] is the consumer loop of the streaming pipeline: failed
// chunks are logged and skipped, and too many consecutive failures escalate
// to [stress.ErrInferenceEscalated].
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/stresslens/internal/langid"
	"github.com/MrWong99/stresslens/internal/observe"
	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/provider/classifier"
	"github.com/MrWong99/stresslens/pkg/provider/features"
	"github.com/MrWong99/stresslens/pkg/types"
)

const (
	// DefaultMaxConsecutiveFailures is the number of back-to-back failed
	// chunks after which Run gives up.
	DefaultMaxConsecutiveFailures = 5

	// DefaultDequeueTimeout bounds one wait for the next chunk.
	DefaultDequeueTimeout = time.Second
)

// ChunkSource is the consumer side of the chunk queue.
type ChunkSource interface {
	// Dequeue waits up to timeout for the next chunk. ok is false on timeout
	// or when the source is closed and empty.
	Dequeue(timeout time.Duration) (chunk audio.Chunk, ok bool)

	// Drained reports whether the source is closed and empty.
	Drained() bool
}

// Publisher receives every successful prediction.
type Publisher interface {
	Publish(p stress.Prediction)
}

// Config holds the worker's runtime parameters.
type Config struct {
	// SampleRate every chunk must carry.
	SampleRate int

	// ChunkSize is the exact number of samples per chunk.
	ChunkSize int

	// MaxConsecutiveFailures before Run escalates. Default: 5.
	MaxConsecutiveFailures int

	// DequeueTimeout for one wait in Run. Default: 1s.
	DequeueTimeout time.Duration
}

// Option configures a [Worker].
type Option func(*Worker)

// WithScaler standardises every vector before classification.
func WithScaler(s classifier.Scaler) Option {
	return func(w *Worker) { w.scaler = &s }
}

// WithResolver sets the resolver used for chunks without a usable language
// hint. Default: [langid.NewCentroid].
func WithResolver(r langid.Resolver) Option {
	return func(w *Worker) { w.resolver = r }
}

// WithQuality sets the static per-class model quality table.
// Default: [stress.DefaultQualityTable].
func WithQuality(q stress.QualityTable) Option {
	return func(w *Worker) { w.quality = q }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithClock overrides the prediction timestamp source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// Worker classifies chunks. Process is safe for concurrent use as long as
// the extractor and classifier are; Run must only be called once at a time.
type Worker struct {
	cfg        Config
	extractor  features.Extractor
	classifier classifier.Classifier
	scaler     *classifier.Scaler
	resolver   langid.Resolver
	quality    stress.QualityTable
	metrics    *observe.Metrics
	now        func() time.Time

	wantNames []string
	classes   []types.Label
}

// New returns a Worker. It fails with a [*stress.ConfigurationError] when the
// extractor, scaler, classifier and quality table do not agree on chunk
// size, vector length or classes.
func New(cfg Config, ext features.Extractor, cls classifier.Classifier, opts ...Option) (*Worker, error) {
	if ext == nil || cls == nil {
		return nil, &stress.ConfigurationError{Component: "inference", Reason: "extractor and classifier are required"}
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = DefaultDequeueTimeout
	}
	w := &Worker{
		cfg:        cfg,
		extractor:  ext,
		classifier: cls,
		resolver:   langid.NewCentroid(),
		quality:    stress.DefaultQualityTable(),
		now:        time.Now,
		wantNames:  cls.FeatureNames(),
		classes:    cls.Classes(),
	}
	for _, o := range opts {
		o(w)
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}

	var errs []error
	if cfg.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate))
	}
	if got := ext.SampleCount(); got != cfg.ChunkSize {
		errs = append(errs, fmt.Errorf("extractor expects %d samples per chunk, pipeline produces %d", got, cfg.ChunkSize))
	}
	if w.scaler != nil && w.scaler.Len() != len(w.wantNames) {
		errs = append(errs, fmt.Errorf("scaler has %d columns, classifier expects %d features", w.scaler.Len(), len(w.wantNames)))
	}
	if len(w.classes) == 0 {
		errs = append(errs, errors.New("classifier reports no classes"))
	}
	if err := w.quality.Covers(w.classes); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, &stress.ConfigurationError{Component: "inference", Reason: "incompatible providers", Err: err}
	}
	return w, nil
}

// Classes returns the classifier's class labels.
func (w *Worker) Classes() []types.Label { return slices.Clone(w.classes) }

// Process classifies a single chunk. Every failure is an
// [*stress.InferenceError] naming the stage that failed.
func (w *Worker) Process(ctx context.Context, chunk audio.Chunk) (stress.Prediction, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "inference.process",
		trace.WithAttributes(
			attribute.String("chunk.id", chunk.ID),
			attribute.Int64("chunk.seq", int64(chunk.Seq)),
		),
	)
	defer span.End()

	p, err := w.process(ctx, chunk)
	w.metrics.InferenceDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		stage := "unknown"
		var ie *stress.InferenceError
		if errors.As(err, &ie) {
			stage = ie.Stage
		}
		w.metrics.RecordInferenceFailure(ctx, stage)
		return stress.Prediction{}, err
	}

	span.SetAttributes(
		attribute.String("stress.label", string(p.Label)),
		attribute.String("stress.language", string(p.Language)),
	)
	w.metrics.RecordPrediction(ctx, string(p.Label), string(p.Language))
	return p, nil
}

func (w *Worker) process(ctx context.Context, chunk audio.Chunk) (stress.Prediction, error) {
	fail := func(stage string, err error) (stress.Prediction, error) {
		return stress.Prediction{}, &stress.InferenceError{ChunkID: chunk.ID, Stage: stage, Err: err}
	}

	if len(chunk.Samples) != w.cfg.ChunkSize {
		return fail(stress.StageValidate, fmt.Errorf("chunk has %d samples, want %d", len(chunk.Samples), w.cfg.ChunkSize))
	}
	if chunk.SampleRate != w.cfg.SampleRate {
		return fail(stress.StageValidate, fmt.Errorf("chunk sample rate %d Hz, want %d Hz", chunk.SampleRate, w.cfg.SampleRate))
	}

	lang, err := w.language(ctx, chunk)
	if err != nil {
		return fail(stress.StageLanguage, err)
	}

	vec, err := w.extractor.Extract(ctx, chunk, lang)
	if err != nil {
		return fail(stress.StageExtract, err)
	}
	if err := vec.Validate(); err != nil {
		return fail(stress.StageExtract, err)
	}

	if err := checkSchema(vec.Names, w.wantNames); err != nil {
		return fail(stress.StageSchema, err)
	}

	if w.scaler != nil {
		if vec, err = w.scaler.Transform(vec); err != nil {
			return fail(stress.StageScale, err)
		}
	}

	res, err := w.classifier.Predict(ctx, vec)
	if err != nil {
		return fail(stress.StageClassify, err)
	}
	if err := res.Validate(w.classes); err != nil {
		return fail(stress.StageClassify, err)
	}

	return stress.Prediction{
		ChunkID:       chunk.ID,
		Seq:           chunk.Seq,
		At:            w.now(),
		Label:         res.Label,
		Probabilities: res.Probabilities,
		Language:      lang,
		ModelQuality:  w.quality.Score(res.Label),
	}, nil
}

// language returns the chunk's normalised hint, or asks the resolver when
// there is none or it is not recognised.
func (w *Worker) language(ctx context.Context, chunk audio.Chunk) (types.Language, error) {
	if chunk.Language != "" {
		if lang, ok := langid.Normalize(chunk.Language); ok {
			return lang, nil
		}
		observe.ChunkLogger(ctx, chunk.ID, chunk.Seq).Warn("unrecognised language hint, resolving from audio",
			"hint", chunk.Language)
	}
	lang, err := w.resolver.Resolve(ctx, chunk)
	if err != nil {
		return "", err
	}
	if !lang.IsValid() {
		return "", fmt.Errorf("resolver returned unsupported language %q", lang)
	}
	return lang, nil
}

// checkSchema compares extracted feature names against the classifier's
// schema, in length and in order.
func checkSchema(got, want []string) error {
	if slices.Equal(got, want) {
		return nil
	}
	if len(got) != len(want) {
		return fmt.Errorf("extracted %d features, classifier expects %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("feature %d is %q, classifier expects %q", i, got[i], want[i])
		}
	}
	return nil
}

// Run consumes chunks from src until it is drained or ctx is cancelled,
// publishing each prediction to pub. Failed chunks are skipped. Once
// MaxConsecutiveFailures chunks in a row have failed, Run returns an error
// wrapping both [stress.ErrInferenceEscalated] and the last failure.
//
// Run returns nil when src is drained and ctx.Err() when cancelled.
func (w *Worker) Run(ctx context.Context, src ChunkSource, pub Publisher) error {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, ok := src.Dequeue(w.cfg.DequeueTimeout)
		if !ok {
			if src.Drained() {
				slog.Debug("inference worker drained")
				return nil
			}
			continue
		}

		p, err := w.Process(ctx, chunk)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			failures++
			observe.ChunkLogger(ctx, chunk.ID, chunk.Seq).Warn("chunk skipped",
				"err", err,
				"consecutive_failures", failures)
			if failures >= w.cfg.MaxConsecutiveFailures {
				return fmt.Errorf("inference: %w after %d consecutive failures: %w",
					stress.ErrInferenceEscalated, failures, err)
			}
			continue
		}

		failures = 0
		pub.Publish(p)
	}
}
