// Package linear provides a multinomial logistic regression classifier
// evaluated in pure Go. Its weights come from the model bundle.
package linear

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/MrWong99/stresslens/pkg/provider/classifier"
	"github.com/MrWong99/stresslens/pkg/provider/features"
	"github.com/MrWong99/stresslens/pkg/types"
)

// Classifier implements classifier.Classifier as softmax(W·x + b).
type Classifier struct {
	names   []string
	classes []types.Label
	weights [][]float64 // one row per class
	bias    []float64
}

// New creates a Classifier. weights has one row of len(names) coefficients
// per class; bias has one intercept per class.
func New(names []string, classes []types.Label, weights [][]float64, bias []float64) (*Classifier, error) {
	if len(names) == 0 {
		return nil, errors.New("linear: empty feature schema")
	}
	if len(classes) < 2 {
		return nil, fmt.Errorf("linear: need at least 2 classes, got %d", len(classes))
	}
	if len(weights) != len(classes) || len(bias) != len(classes) {
		return nil, fmt.Errorf("linear: %d classes but %d weight rows and %d intercepts", len(classes), len(weights), len(bias))
	}
	for i, row := range weights {
		if len(row) != len(names) {
			return nil, fmt.Errorf("linear: weight row %d (%s) has %d coefficients, want %d", i, classes[i], len(row), len(names))
		}
	}
	return &Classifier{
		names:   slices.Clone(names),
		classes: slices.Clone(classes),
		weights: weights,
		bias:    slices.Clone(bias),
	}, nil
}

// FeatureNames implements classifier.Classifier.
func (c *Classifier) FeatureNames() []string { return slices.Clone(c.names) }

// Classes implements classifier.Classifier.
func (c *Classifier) Classes() []types.Label { return slices.Clone(c.classes) }

// Predict implements classifier.Classifier.
func (c *Classifier) Predict(_ context.Context, v features.Vector) (classifier.Result, error) {
	if len(v.Values) != len(c.names) {
		return classifier.Result{}, fmt.Errorf("linear: vector has %d values, model expects %d", len(v.Values), len(c.names))
	}

	logits := make([]float64, len(c.classes))
	for k, row := range c.weights {
		z := c.bias[k]
		for i, w := range row {
			z += w * v.Values[i]
		}
		logits[k] = z
	}
	probs := softmax(logits)

	res := classifier.Result{Probabilities: make(map[types.Label]float64, len(c.classes))}
	best := -1.0
	for k, p := range probs {
		res.Probabilities[c.classes[k]] = p
		if p > best {
			best = p
			res.Label = c.classes[k]
		}
	}
	return res, nil
}

// softmax is computed relative to the largest logit for numerical stability.
func softmax(z []float64) []float64 {
	m := slices.Max(z)
	out := make([]float64, len(z))
	var sum float64
	for i, x := range z {
		out[i] = math.Exp(x - m)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

var _ classifier.Classifier = (*Classifier)(nil)
