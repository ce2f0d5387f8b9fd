package linear_test

import (
	"context"
	"math"
	"testing"

	"github.com/MrWong99/stresslens/pkg/provider/classifier/linear"
	"github.com/MrWong99/stresslens/pkg/provider/features"
	"github.com/MrWong99/stresslens/pkg/types"
)

func newTwoFeature(t *testing.T) *linear.Classifier {
	t.Helper()
	c, err := linear.New(
		[]string{"rms_mean", "pitch_mean"},
		types.Labels,
		[][]float64{
			{-2, -2},
			{-1, -1},
			{1, 1},
			{2, 2},
		},
		[]float64{0, 0, 0, 0},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestPredict(t *testing.T) {
	c := newTwoFeature(t)
	tests := []struct {
		name   string
		values []float64
		want   types.Label
	}{
		{"calm", []float64{-3, -3}, types.NoStress},
		{"agitated", []float64{3, 3}, types.HighStress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Predict(context.Background(), features.Vector{Names: c.FeatureNames(), Values: tt.values})
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if res.Label != tt.want {
				t.Errorf("Label = %s, want %s", res.Label, tt.want)
			}
			if err := res.Validate(c.Classes()); err != nil {
				t.Errorf("result does not validate: %v", err)
			}
		})
	}
}

func TestPredict_ZeroInputIsUniform(t *testing.T) {
	c := newTwoFeature(t)
	res, err := c.Predict(context.Background(), features.Vector{Values: []float64{0, 0}})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for l, p := range res.Probabilities {
		if math.Abs(p-0.25) > 1e-12 {
			t.Errorf("P(%s) = %v, want 0.25", l, p)
		}
	}
}

func TestPredict_LargeLogitsStayFinite(t *testing.T) {
	c := newTwoFeature(t)
	res, err := c.Predict(context.Background(), features.Vector{Values: []float64{500, 500}})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if err := res.Validate(c.Classes()); err != nil {
		t.Fatalf("overflowed softmax: %v", err)
	}
}

func TestPredict_WrongLength(t *testing.T) {
	c := newTwoFeature(t)
	if _, err := c.Predict(context.Background(), features.Vector{Values: []float64{1}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_Validation(t *testing.T) {
	names := []string{"a"}
	if _, err := linear.New(nil, types.Labels, nil, nil); err == nil {
		t.Error("expected error for empty schema")
	}
	if _, err := linear.New(names, types.Labels[:1], [][]float64{{1}}, []float64{0}); err == nil {
		t.Error("expected error for single class")
	}
	if _, err := linear.New(names, types.Labels[:2], [][]float64{{1}, {1, 2}}, []float64{0, 0}); err == nil {
		t.Error("expected error for ragged weights")
	}
}
