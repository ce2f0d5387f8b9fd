package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/stresslens/pkg/provider/classifier/remote"
	"github.com/MrWong99/stresslens/pkg/provider/features"
	"github.com/MrWong99/stresslens/pkg/types"
)

func modelServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /schema", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"feature_names": []string{"a", "b"},
			"classes":       []string{"high_stress", "low_stress", "medium_stress", "no_stress"},
		})
	})
	mux.HandleFunc("POST /predict", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Names  []string  `json:"names"`
			Values []float64 `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Values) != 2 {
			http.Error(w, "bad vector", http.StatusUnprocessableEntity)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"label": "medium_stress",
			"probabilities": map[string]float64{
				"high_stress": 0.1, "low_stress": 0.2, "medium_stress": 0.6, "no_stress": 0.1,
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClassifier_Predict(t *testing.T) {
	c, err := remote.New(context.Background(), modelServer(t).URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Classes(); len(got) != 4 || got[0] != types.HighStress {
		t.Errorf("Classes() = %v", got)
	}

	res, err := c.Predict(context.Background(), features.Vector{Names: c.FeatureNames(), Values: []float64{1, 2}})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.Label != types.MediumStress {
		t.Errorf("Label = %s, want medium_stress", res.Label)
	}
	if err := res.Validate(c.Classes()); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestClassifier_ServerErrorSurfaces(t *testing.T) {
	c, err := remote.New(context.Background(), modelServer(t).URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Predict(context.Background(), features.Vector{Values: []float64{1}}); err == nil {
		t.Fatal("expected error for rejected vector")
	}
}
