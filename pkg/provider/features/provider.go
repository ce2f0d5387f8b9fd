// Package features defines the Extractor interface for acoustic feature
// backends.
//
// An extractor turns one fixed-length [audio.Chunk] into a [Vector] with a
// stable, named, ordered schema. The schema must match the one the
// classifier was fit on: the inference worker compares [Vector.Names] with
// the classifier's expected feature names before every prediction and
// rejects the chunk on any difference.
//
// Implementations must be safe for concurrent use.
package features

import (
	"context"
	"fmt"
	"slices"

	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/types"
)

// Vector is the fixed-schema numeric summary of one chunk.
type Vector struct {
	// Names lists the feature columns in order.
	Names []string

	// Values holds one value per entry of Names.
	Values []float64

	// Language is the language the chunk was extracted for. It is also
	// encoded in the one-hot language columns when the schema has them.
	Language types.Language
}

// Len returns the number of features.
func (v Vector) Len() int { return len(v.Values) }

// Validate reports whether Names and Values agree in length.
func (v Vector) Validate() error {
	if len(v.Names) != len(v.Values) {
		return fmt.Errorf("features: vector has %d names but %d values", len(v.Names), len(v.Values))
	}
	return nil
}

// Extractor is the abstraction over any feature extraction backend.
type Extractor interface {
	// Extract computes the feature vector of chunk for the given language.
	// It fails when the chunk does not hold exactly SampleCount samples.
	Extract(ctx context.Context, chunk audio.Chunk, language types.Language) (Vector, error)

	// Names returns the ordered feature schema produced by Extract.
	Names() []string

	// SampleCount returns the chunk length the extractor expects.
	SampleCount() int
}

// LanguageColumns returns the one-hot language column names, in the order of
// [types.Languages] (e.g. "lang_english", "lang_hindi").
func LanguageColumns() []string {
	out := make([]string, len(types.Languages))
	for i, l := range types.Languages {
		out[i] = "lang_" + string(l)
	}
	return out
}

// OneHot encodes lang as a one-hot vector aligned with [LanguageColumns].
// Unknown languages encode as all zeros.
func OneHot(lang types.Language) []float64 {
	out := make([]float64, len(types.Languages))
	if i := slices.Index(types.Languages, lang); i >= 0 {
		out[i] = 1
	}
	return out
}

// CheckLength returns an error when chunk does not hold exactly want samples.
func CheckLength(chunk audio.Chunk, want int) error {
	if len(chunk.Samples) != want {
		return fmt.Errorf("features: chunk has %d samples, extractor expects %d", len(chunk.Samples), want)
	}
	return nil
}
