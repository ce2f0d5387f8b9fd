package stress_test

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/types"
)

func newAggregator(t *testing.T) *stress.Aggregator {
	t.Helper()
	a, err := stress.NewAggregator(stress.Thresholds{High: stress.DefaultHighThreshold, Medium: stress.DefaultMediumThreshold})
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return a
}

func TestAggregator_Tier(t *testing.T) {
	a := newAggregator(t)
	tests := []struct {
		name     string
		quality  float64
		maxProb  float64
		combined float64
		want     stress.Tier
	}{
		{"high stress scenario", 0.80, 0.90, 0.85, stress.TierHigh},
		{"exactly high", 0.80, 0.80, 0.80, stress.TierHigh},
		{"exactly medium", 0.80, 0.50, 0.65, stress.TierMedium},
		{"low", 0.75, 0.35, 0.55, stress.TierLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The remainder is spread so HighStress stays the most probable.
			rest := (1 - tt.maxProb) / 3
			p := stress.Prediction{
				Label:        types.HighStress,
				ModelQuality: tt.quality,
				Probabilities: map[types.Label]float64{
					types.NoStress:     rest,
					types.LowStress:    rest,
					types.MediumStress: rest,
					types.HighStress:   tt.maxProb,
				},
			}
			if got := a.Combined(p); math.Abs(got-tt.combined) > 1e-9 {
				t.Errorf("Combined() = %v, want %v", got, tt.combined)
			}
			if got := a.Tier(p); got != tt.want {
				t.Errorf("Tier() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAggregator_TierIsMonotonic(t *testing.T) {
	a := newAggregator(t)
	prev := -1
	for i := 0; i <= 1000; i++ {
		rank := a.TierFor(float64(i) / 1000).Rank()
		if rank < prev {
			t.Fatalf("tier rank decreased at combined=%v", float64(i)/1000)
		}
		prev = rank
	}
}

func TestThresholds_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		th      stress.Thresholds
		wantErr bool
	}{
		{"defaults", stress.Thresholds{High: 0.80, Medium: 0.65}, false},
		{"zero medium", stress.Thresholds{High: 0.5, Medium: 0}, false},
		{"equal", stress.Thresholds{High: 0.7, Medium: 0.7}, false},
		{"negative medium", stress.Thresholds{High: 0.8, Medium: -0.1}, true},
		{"high above one", stress.Thresholds{High: 1.1, Medium: 0.5}, true},
		{"medium above high", stress.Thresholds{High: 0.6, Medium: 0.7}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.th.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAggregator_SetThresholds(t *testing.T) {
	a := newAggregator(t)
	err := a.SetThresholds(stress.Thresholds{High: 0.5, Medium: 0.6})
	var ce *stress.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConfigurationError", err)
	}
	if a.Thresholds().High != stress.DefaultHighThreshold {
		t.Error("invalid thresholds must not be installed")
	}

	if err := a.SetThresholds(stress.Thresholds{High: 0.9, Medium: 0.5}); err != nil {
		t.Fatalf("SetThresholds: %v", err)
	}
	if got := a.TierFor(0.85); got != stress.TierMedium {
		t.Errorf("TierFor(0.85) = %s after raising high threshold, want medium", got)
	}
}

func TestAggregator_ConcurrentReload(t *testing.T) {
	a := newAggregator(t)
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = a.SetThresholds(stress.Thresholds{High: 0.8, Medium: 0.6 + float64(i)/100})
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				_ = a.TierFor(0.7)
			}
		}()
	}
	wg.Wait()
}

func TestQualityTable(t *testing.T) {
	q := stress.DefaultQualityTable()
	tests := []struct {
		label types.Label
		want  float64
	}{
		{types.NoStress, 0.85},
		{types.LowStress, 0.78},
		{types.MediumStress, 0.82},
		{types.HighStress, 0.80},
		{"unknown", stress.DefaultQuality},
	}
	for _, tt := range tests {
		if got := q.Score(tt.label); got != tt.want {
			t.Errorf("Score(%s) = %v, want %v", tt.label, got, tt.want)
		}
	}
	if err := q.Covers(types.Labels); err != nil {
		t.Errorf("default table must cover all labels: %v", err)
	}

	partial, err := stress.NewQualityTable(map[types.Label]float64{types.NoStress: 0.9}, 0.75)
	if err != nil {
		t.Fatal(err)
	}
	if err := partial.Covers(types.Labels); err == nil {
		t.Error("expected Covers to fail for partial table")
	}
	if _, err := stress.NewQualityTable(map[types.Label]float64{types.NoStress: 1.5}, 0.75); err == nil {
		t.Error("expected error for score > 1")
	}
}

func TestInferenceError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := error(&stress.InferenceError{ChunkID: "c1", Stage: stress.StageExtract, Err: inner})
	if !errors.Is(err, inner) {
		t.Error("InferenceError must unwrap to its cause")
	}
	var ie *stress.InferenceError
	if !errors.As(err, &ie) || ie.Stage != stress.StageExtract {
		t.Errorf("errors.As failed: %v", err)
	}
}
