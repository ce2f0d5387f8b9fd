// Package classifier defines the Classifier interface for stress
// classification backends and the [Scaler] applied to feature vectors
// before they are classified.
//
// A classifier consumes a scaled [features.Vector] whose names must equal
// FeatureNames in length and order, and returns the predicted label plus a
// probability for every class in Classes.
//
// Implementations must be safe for concurrent use.
package classifier

import (
	"context"
	"fmt"
	"math"

	"github.com/MrWong99/stresslens/pkg/provider/features"
	"github.com/MrWong99/stresslens/pkg/types"
)

// ProbabilityTolerance is the allowed deviation of a probability
// distribution's sum from 1.
const ProbabilityTolerance = 1e-6

// Result is the raw output of one prediction.
type Result struct {
	// Label is the predicted class.
	Label types.Label

	// Probabilities maps every known class to its probability.
	Probabilities map[types.Label]float64
}

// Validate checks that Label is one of classes, every class has a finite
// probability in [0, 1], and the probabilities sum to 1 within
// [ProbabilityTolerance].
func (r Result) Validate(classes []types.Label) error {
	found := false
	var sum float64
	for _, c := range classes {
		if c == r.Label {
			found = true
		}
		p, ok := r.Probabilities[c]
		if !ok {
			return fmt.Errorf("classifier: no probability for class %q", c)
		}
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("classifier: probability %v for class %q out of range", p, c)
		}
		sum += p
	}
	if !found {
		return fmt.Errorf("classifier: predicted label %q is not a known class", r.Label)
	}
	if len(r.Probabilities) != len(classes) {
		return fmt.Errorf("classifier: %d probabilities for %d classes", len(r.Probabilities), len(classes))
	}
	if math.Abs(sum-1) > ProbabilityTolerance {
		return fmt.Errorf("classifier: probabilities sum to %v", sum)
	}
	return nil
}

// Classifier is the abstraction over any stress classification backend.
type Classifier interface {
	// Predict classifies a scaled feature vector.
	Predict(ctx context.Context, v features.Vector) (Result, error)

	// FeatureNames returns the schema the classifier was fit on.
	FeatureNames() []string

	// Classes returns the label encoder's classes in index order.
	Classes() []types.Label
}

// Scaler standardises feature values as (x - Mean) / Scale, column-wise.
type Scaler struct {
	Mean  []float64 `yaml:"mean"  json:"mean"`
	Scale []float64 `yaml:"scale" json:"scale"`
}

// Len returns the number of columns the scaler was fit on.
func (s Scaler) Len() int { return len(s.Mean) }

// Validate reports whether Mean and Scale agree in length and hold finite
// values.
func (s Scaler) Validate() error {
	if len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("scaler: %d means but %d scales", len(s.Mean), len(s.Scale))
	}
	for i := range s.Mean {
		if math.IsNaN(s.Mean[i]) || math.IsInf(s.Mean[i], 0) || math.IsNaN(s.Scale[i]) || math.IsInf(s.Scale[i], 0) {
			return fmt.Errorf("scaler: column %d is not finite", i)
		}
	}
	return nil
}

// Transform returns a scaled copy of v. Columns with a zero scale are only
// centred.
func (s Scaler) Transform(v features.Vector) (features.Vector, error) {
	if len(v.Values) != len(s.Mean) {
		return features.Vector{}, fmt.Errorf("scaler: vector has %d values, scaler expects %d", len(v.Values), len(s.Mean))
	}
	out := make([]float64, len(v.Values))
	for i, x := range v.Values {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (x - s.Mean[i]) / scale
	}
	return features.Vector{Names: v.Names, Values: out, Language: v.Language}, nil
}
