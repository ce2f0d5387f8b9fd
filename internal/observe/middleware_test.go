package observe

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup creates both metrics and tracing infrastructure for middleware tests.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

// apiMux mounts a few routes shaped like the stresslens API behind the
// middleware.
func apiMux(m *Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/recommendations/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v1/analyze", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	return Middleware(m)(mux)
}

func TestMiddleware_SetsCorrelationID(t *testing.T) {
	m, _, _ := testSetup(t)

	var captured string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = CorrelationID(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/recommendations/latest", nil))

	if len(captured) != 32 {
		t.Fatalf("correlation ID = %q, want a 32 hex digit trace ID", captured)
	}
	if got := rec.Header().Get(CorrelationHeader); got != captured {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, captured)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	m, _, _ := testSetup(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations/abc", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	apiMux(m).ServeHTTP(rec, req)

	if got := rec.Header().Get(CorrelationHeader); got != traceID {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, traceID)
	}
}

func TestMiddleware_SpanNamedAfterRoute(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		wantSpan  string
		wantCode  int64
		wantError bool
	}{
		{"path parameter collapses", http.MethodGet, "/v1/recommendations/123", "GET /v1/recommendations/{id}", 200, false},
		{"client error", http.MethodPost, "/v1/analyze", "POST /v1/analyze", 422, false},
		{"server error", http.MethodGet, "/healthz", "GET /healthz", 503, true},
		{"unmatched keeps raw path", http.MethodGet, "/nope", "/nope", 404, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, exp := testSetup(t)
			apiMux(m).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			s := spans[0]
			if s.Name != tt.wantSpan {
				t.Errorf("span name = %q, want %q", s.Name, tt.wantSpan)
			}
			var code int64
			for _, a := range s.Attributes {
				if a.Key == "http.response.status_code" {
					code = a.Value.AsInt64()
				}
			}
			if code != tt.wantCode {
				t.Errorf("http.response.status_code = %d, want %d", code, tt.wantCode)
			}
			if gotErr := s.Status.Code == codes.Error; gotErr != tt.wantError {
				t.Errorf("span error status = %v, want %v", gotErr, tt.wantError)
			}
		})
	}
}

func TestMiddleware_RecordsDurationByRoute(t *testing.T) {
	m, reader, _ := testSetup(t)
	h := apiMux(m)
	for _, id := range []string{"a", "b", "c"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/recommendations/"+id, nil))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "stresslens.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("got %d data points, want one per route", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 3 {
		t.Errorf("count = %d, want 3", dp.Count)
	}
	path, _ := dp.Attributes.Value("path")
	if path.AsString() != "GET /v1/recommendations/{id}" {
		t.Errorf("path attribute = %q", path.AsString())
	}
}

func TestAccessLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		route  string
		status int
		want   slog.Level
	}{
		{"GET /healthz", 200, slog.LevelDebug},
		{"GET /metrics", 200, slog.LevelDebug},
		{"GET /healthz", 503, slog.LevelWarn},
		{"POST /v1/analyze", 200, slog.LevelInfo},
		{"POST /v1/analyze", 400, slog.LevelInfo},
		{"POST /v1/analyze", 500, slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := accessLevel(tt.route, tt.status); got != tt.want {
			t.Errorf("accessLevel(%q, %d) = %v, want %v", tt.route, tt.status, got, tt.want)
		}
	}
}
