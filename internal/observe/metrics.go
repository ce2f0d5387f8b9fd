// Package observe provides application-wide observability primitives for
// stresslens: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all stresslens metrics.
const meterName = "github.com/MrWong99/stresslens"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use. The underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture ---

	// ChunksAssembled counts complete analysis windows cut from the capture
	// stream.
	ChunksAssembled metric.Int64Counter

	// FramesDropped counts malformed frames rejected by the assembler. Use
	// with attribute:
	//   attribute.String("reason", ...)
	FramesDropped metric.Int64Counter

	// SamplesDiscarded counts buffered samples dropped at shutdown because
	// they did not fill a whole window.
	SamplesDiscarded metric.Int64Counter

	// QueueDepth tracks the number of chunks waiting for inference.
	QueueDepth metric.Int64UpDownCounter

	// --- Inference ---

	// InferenceDuration tracks the latency of one chunk through language
	// resolution, feature extraction and classification.
	InferenceDuration metric.Float64Histogram

	// InferenceFailures counts skipped chunks. Use with attribute:
	//   attribute.String("stage", ...)
	InferenceFailures metric.Int64Counter

	// Predictions counts successful predictions. Use with attributes:
	//   attribute.String("label", ...), attribute.String("language", ...)
	Predictions metric.Int64Counter

	// HandoffOverwrites counts predictions replaced before the poller took
	// them.
	HandoffOverwrites metric.Int64Counter

	// --- Recommendations ---

	// Recommendations counts surfaced recommendations. Use with attributes:
	//   attribute.String("tier", ...), attribute.String("label", ...)
	Recommendations metric.Int64Counter

	// RecommendationErrors counts catalog lookups that found no remedies.
	RecommendationErrors metric.Int64Counter

	// --- Dependencies ---

	// BreakerTransitions counts circuit breaker state changes of remote
	// providers. Use with attributes:
	//   attribute.String("breaker", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// per-chunk inference, which ranges from a few milliseconds for the local
// classifier to seconds for remote sidecars.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Capture.
	if met.ChunksAssembled, err = m.Int64Counter("stresslens.chunks.assembled",
		metric.WithDescription("Total analysis windows cut from the capture stream."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("stresslens.frames.dropped",
		metric.WithDescription("Total malformed audio frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.SamplesDiscarded, err = m.Int64Counter("stresslens.samples.discarded",
		metric.WithDescription("Total buffered samples discarded at shutdown."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("stresslens.queue.depth",
		metric.WithDescription("Number of chunks waiting for inference."),
	); err != nil {
		return nil, err
	}

	// Inference.
	if met.InferenceDuration, err = m.Float64Histogram("stresslens.inference.duration",
		metric.WithDescription("Latency of classifying one chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InferenceFailures, err = m.Int64Counter("stresslens.inference.failures",
		metric.WithDescription("Total chunks skipped by failing stage."),
	); err != nil {
		return nil, err
	}
	if met.Predictions, err = m.Int64Counter("stresslens.predictions",
		metric.WithDescription("Total predictions by label and language."),
	); err != nil {
		return nil, err
	}
	if met.HandoffOverwrites, err = m.Int64Counter("stresslens.handoff.overwrites",
		metric.WithDescription("Total predictions replaced before they were taken."),
	); err != nil {
		return nil, err
	}

	// Recommendations.
	if met.Recommendations, err = m.Int64Counter("stresslens.recommendations",
		metric.WithDescription("Total recommendations by confidence tier and label."),
	); err != nil {
		return nil, err
	}
	if met.RecommendationErrors, err = m.Int64Counter("stresslens.recommendation.errors",
		metric.WithDescription("Total recommendation lookups with an empty remedy pool."),
	); err != nil {
		return nil, err
	}

	// Dependencies.
	if met.BreakerTransitions, err = m.Int64Counter("stresslens.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("stresslens.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrameDropped records a dropped frame with its reason.
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordInferenceFailure records a skipped chunk with the stage that failed.
func (m *Metrics) RecordInferenceFailure(ctx context.Context, stage string) {
	m.InferenceFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordPrediction records a successful prediction.
func (m *Metrics) RecordPrediction(ctx context.Context, label, language string) {
	m.Predictions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("label", label),
			attribute.String("language", language),
		),
	)
}

// RecordRecommendation records a surfaced recommendation.
func (m *Metrics) RecordRecommendation(ctx context.Context, tier, label string) {
	m.Recommendations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("label", label),
		),
	)
}

// RecordBreakerTransition records a circuit breaker moving to state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("to", to),
		),
	)
}
