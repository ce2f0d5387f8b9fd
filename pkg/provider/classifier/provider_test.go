package classifier_test

import (
	"testing"

	"github.com/MrWong99/stresslens/pkg/provider/classifier"
	"github.com/MrWong99/stresslens/pkg/provider/features"
	"github.com/MrWong99/stresslens/pkg/types"
)

func TestResult_Validate(t *testing.T) {
	tests := []struct {
		name    string
		result  classifier.Result
		wantErr bool
	}{
		{
			name: "valid",
			result: classifier.Result{Label: types.HighStress, Probabilities: map[types.Label]float64{
				types.NoStress: 0.05, types.LowStress: 0.02, types.MediumStress: 0.03, types.HighStress: 0.9,
			}},
		},
		{
			name: "sum off",
			result: classifier.Result{Label: types.HighStress, Probabilities: map[types.Label]float64{
				types.NoStress: 0.1, types.LowStress: 0.1, types.MediumStress: 0.1, types.HighStress: 0.9,
			}},
			wantErr: true,
		},
		{
			name: "missing class",
			result: classifier.Result{Label: types.HighStress, Probabilities: map[types.Label]float64{
				types.NoStress: 0.1, types.HighStress: 0.9,
			}},
			wantErr: true,
		},
		{
			name: "unknown label",
			result: classifier.Result{Label: "panic", Probabilities: map[types.Label]float64{
				types.NoStress: 0.25, types.LowStress: 0.25, types.MediumStress: 0.25, types.HighStress: 0.25,
			}},
			wantErr: true,
		},
		{
			name: "negative",
			result: classifier.Result{Label: types.NoStress, Probabilities: map[types.Label]float64{
				types.NoStress: 1.1, types.LowStress: -0.1, types.MediumStress: 0, types.HighStress: 0,
			}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate(types.Labels)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScaler_Transform(t *testing.T) {
	s := classifier.Scaler{Mean: []float64{1, 2}, Scale: []float64{2, 0}}
	if err := s.Validate(); err != nil {
		t.Fatal(err)
	}
	out, err := s.Transform(features.Vector{Names: []string{"a", "b"}, Values: []float64{5, 3}})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Values[0] != 2 || out.Values[1] != 1 {
		t.Errorf("Values = %v, want [2 1]", out.Values)
	}

	if _, err := s.Transform(features.Vector{Values: []float64{1}}); err == nil {
		t.Error("expected length error")
	}
	if err := (classifier.Scaler{Mean: []float64{1}}).Validate(); err == nil {
		t.Error("expected mismatched scaler to fail validation")
	}
}
