// Package mock provides a test double for the classifier.Classifier
// interface.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/stresslens/pkg/provider/classifier"
	"github.com/MrWong99/stresslens/pkg/provider/features"
	"github.com/MrWong99/stresslens/pkg/types"
)

// Classifier is a mock implementation of classifier.Classifier.
type Classifier struct {
	mu sync.Mutex

	// PredictResult is returned by Predict.
	PredictResult classifier.Result

	// PredictErr, if non-nil, is returned as the error from Predict.
	PredictErr error

	// FeatureNamesValue is returned by FeatureNames.
	FeatureNamesValue []string

	// ClassesValue is returned by Classes. Defaults to types.Labels.
	ClassesValue []types.Label

	// PredictCalls records the vector passed to every Predict call.
	PredictCalls []features.Vector
}

// Predict records the call and returns PredictResult, PredictErr.
func (c *Classifier) Predict(_ context.Context, v features.Vector) (classifier.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PredictCalls = append(c.PredictCalls, features.Vector{
		Names:    slices.Clone(v.Names),
		Values:   slices.Clone(v.Values),
		Language: v.Language,
	})
	return c.PredictResult, c.PredictErr
}

// FeatureNames returns FeatureNamesValue.
func (c *Classifier) FeatureNames() []string { return c.FeatureNamesValue }

// Classes returns ClassesValue, or types.Labels when unset.
func (c *Classifier) Classes() []types.Label {
	if c.ClassesValue == nil {
		return types.Labels
	}
	return c.ClassesValue
}

// CallCount returns how many times Predict was called.
func (c *Classifier) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.PredictCalls)
}

var _ classifier.Classifier = (*Classifier)(nil)
