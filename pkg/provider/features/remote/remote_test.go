package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/stresslens/internal/resilience"
	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/provider/features/remote"
	"github.com/MrWong99/stresslens/pkg/types"
)

// sidecar starts a test server that serves a 3-column schema for 100-sample
// chunks at 1 kHz. extractStatus controls the /extract response code.
func sidecar(t *testing.T, extractStatus *int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /schema", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"names":        []string{"f0", "lang_english", "lang_hindi"},
			"sample_rate":  1000,
			"sample_count": 100,
		})
	})
	mux.HandleFunc("POST /extract", func(w http.ResponseWriter, r *http.Request) {
		if *extractStatus != http.StatusOK {
			http.Error(w, "boom", *extractStatus)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("Content-Type = %q, want audio/wav", ct)
		}
		lang := r.URL.Query().Get("language")
		oneHot := []float64{1, 0}
		if lang == "hindi" {
			oneHot = []float64{0, 1}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"names":  []string{"f0", "lang_english", "lang_hindi"},
			"values": append([]float64{180}, oneHot...),
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractor_FetchesSchemaAndExtracts(t *testing.T) {
	status := http.StatusOK
	srv := sidecar(t, &status)

	e, err := remote.New(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.SampleCount() != 100 || e.SampleRate() != 1000 {
		t.Errorf("schema: count=%d rate=%d", e.SampleCount(), e.SampleRate())
	}
	if len(e.Names()) != 3 {
		t.Errorf("Names() = %v", e.Names())
	}

	v, err := e.Extract(context.Background(), audio.Chunk{Samples: make([]float32, 100), SampleRate: 1000}, types.Hindi)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if v.Values[0] != 180 || v.Values[2] != 1 {
		t.Errorf("Values = %v", v.Values)
	}
	if v.Language != types.Hindi {
		t.Errorf("Language = %q, want hindi", v.Language)
	}
}

func TestExtractor_RejectsWrongLength(t *testing.T) {
	status := http.StatusOK
	srv := sidecar(t, &status)
	e, err := remote.New(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Extract(context.Background(), audio.Chunk{Samples: make([]float32, 99), SampleRate: 1000}, types.English); err == nil {
		t.Fatal("expected length error")
	}
}

func TestExtractor_BreakerOpensOnRepeatedFailures(t *testing.T) {
	status := http.StatusOK
	srv := sidecar(t, &status)
	e, err := remote.New(context.Background(), srv.URL,
		remote.WithCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	status = http.StatusInternalServerError
	chunk := audio.Chunk{Samples: make([]float32, 100), SampleRate: 1000}
	for range 2 {
		if _, err := e.Extract(context.Background(), chunk, types.English); err == nil {
			t.Fatal("expected server error")
		}
	}
	_, err = e.Extract(context.Background(), chunk, types.English)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestNew_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	if _, err := remote.New(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for unreachable sidecar")
	}
}
