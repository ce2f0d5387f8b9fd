package stress

import (
	"fmt"
	"maps"

	"github.com/MrWong99/stresslens/pkg/types"
)

// DefaultQuality is used for labels missing from a [QualityTable].
const DefaultQuality = 0.75

// QualityTable maps a predicted label to the classifier's historical F1
// score on that class.
//
// The score is looked up by the predicted label, so it describes how good
// the model was at this class during training rather than how sure it is
// about this particular chunk. Recommendation tiers depend on that coupling.
type QualityTable struct {
	scores   map[types.Label]float64
	fallback float64
}

// DefaultQualityTable returns the scores measured on the reference model.
func DefaultQualityTable() QualityTable {
	return QualityTable{
		scores: map[types.Label]float64{
			types.NoStress:     0.85,
			types.LowStress:    0.78,
			types.MediumStress: 0.82,
			types.HighStress:   0.80,
		},
		fallback: DefaultQuality,
	}
}

// NewQualityTable builds a table from scores. Every score, and fallback,
// must lie in [0, 1].
func NewQualityTable(scores map[types.Label]float64, fallback float64) (QualityTable, error) {
	if fallback < 0 || fallback > 1 {
		return QualityTable{}, &ConfigurationError{Component: "quality", Reason: fmt.Sprintf("default score %v outside [0, 1]", fallback)}
	}
	for l, s := range scores {
		if s < 0 || s > 1 {
			return QualityTable{}, &ConfigurationError{Component: "quality", Reason: fmt.Sprintf("score %v for %q outside [0, 1]", s, l)}
		}
	}
	return QualityTable{scores: maps.Clone(scores), fallback: fallback}, nil
}

// Score returns the quality score of label, or the table default.
func (q QualityTable) Score(label types.Label) float64 {
	if s, ok := q.scores[label]; ok {
		return s
	}
	return q.fallback
}

// Covers returns a ConfigurationError when any of classes has no explicit
// score.
func (q QualityTable) Covers(classes []types.Label) error {
	for _, c := range classes {
		if _, ok := q.scores[c]; !ok {
			return &ConfigurationError{Component: "quality", Reason: fmt.Sprintf("no score for class %q", c)}
		}
	}
	return nil
}

// Scores returns a copy of the explicit per-label scores.
func (q QualityTable) Scores() map[types.Label]float64 { return maps.Clone(q.scores) }

// Default returns the score used for labels without an explicit entry.
func (q QualityTable) Default() float64 { return q.fallback }
