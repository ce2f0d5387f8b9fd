// Package mock provides a test double for the features.Extractor interface.
//
// Example:
//
//	ext := &mock.Extractor{
//	    NamesValue:       []string{"a", "b"},
//	    SampleCountValue: 66150,
//	    ExtractResult:    features.Vector{Names: []string{"a", "b"}, Values: []float64{1, 2}},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/provider/features"
	"github.com/MrWong99/stresslens/pkg/types"
)

// ExtractCall records a single invocation of Extract.
type ExtractCall struct {
	ChunkID  string
	Samples  int
	Language types.Language
}

// Extractor is a mock implementation of features.Extractor.
type Extractor struct {
	mu sync.Mutex

	// ExtractResult is returned by Extract. When its Language is empty the
	// requested language is filled in.
	ExtractResult features.Vector

	// ExtractErr, if non-nil, is returned as the error from Extract.
	ExtractErr error

	// NamesValue is returned by Names.
	NamesValue []string

	// SampleCountValue is returned by SampleCount.
	SampleCountValue int

	// ExtractCalls records every call to Extract in order.
	ExtractCalls []ExtractCall
}

// Extract records the call and returns ExtractResult, ExtractErr.
func (e *Extractor) Extract(_ context.Context, chunk audio.Chunk, language types.Language) (features.Vector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ExtractCalls = append(e.ExtractCalls, ExtractCall{
		ChunkID:  chunk.ID,
		Samples:  len(chunk.Samples),
		Language: language,
	})
	if e.ExtractErr != nil {
		return features.Vector{}, e.ExtractErr
	}
	v := e.ExtractResult
	if v.Language == "" {
		v.Language = language
	}
	return v, nil
}

// Names returns NamesValue.
func (e *Extractor) Names() []string { return e.NamesValue }

// SampleCount returns SampleCountValue.
func (e *Extractor) SampleCount() int { return e.SampleCountValue }

// Calls returns a copy of ExtractCalls.
func (e *Extractor) Calls() []ExtractCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ExtractCall(nil), e.ExtractCalls...)
}

var _ features.Extractor = (*Extractor)(nil)
