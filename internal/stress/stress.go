// Package stress holds the prediction and recommendation values that flow
// through the pipeline, the static model-quality table, and the confidence
// aggregator that turns a prediction into a [Tier].
package stress

import (
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/stresslens/pkg/provider/classifier"
	"github.com/MrWong99/stresslens/pkg/types"
)

// Prediction is the outcome of classifying one chunk. It is a value type and
// is never mutated after creation.
type Prediction struct {
	ChunkID string
	Seq     uint64
	At      time.Time

	Label         types.Label
	Probabilities map[types.Label]float64
	Language      types.Language

	// ModelQuality is the static per-class quality score of the predicted
	// label (see [QualityTable]).
	ModelQuality float64
}

// MaxProbability returns the highest class probability.
func (p Prediction) MaxProbability() float64 {
	var m float64
	for _, v := range p.Probabilities {
		m = math.Max(m, v)
	}
	return m
}

// Validate checks that the prediction's probability distribution covers
// classes and sums to 1.
func (p Prediction) Validate(classes []types.Label) error {
	return classifier.Result{Label: p.Label, Probabilities: p.Probabilities}.Validate(classes)
}

// Tier is a coarse confidence bucket.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Tiers lists the tiers from least to most confident.
var Tiers = []Tier{TierLow, TierMedium, TierHigh}

// Rank returns the position of t in [Tiers], or -1.
func (t Tier) Rank() int {
	for i, x := range Tiers {
		if x == t {
			return i
		}
	}
	return -1
}

// Recommendation is the surfaced result for one prediction. It is never
// mutated after creation.
type Recommendation struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	ChunkID   string    `json:"chunk_id,omitempty"`

	Label    types.Label    `json:"stress_level"`
	Language types.Language `json:"language"`
	Tier     Tier           `json:"confidence_level"`

	ModelQuality         float64 `json:"model_f1_score"`
	PredictionConfidence float64 `json:"prediction_confidence"`
	CombinedConfidence   float64 `json:"combined_confidence"`

	// Prefix is the tier headline in the prediction's language.
	Prefix string `json:"prefix"`

	// Remedies holds 1 to 3 unique remedies.
	Remedies []string `json:"remedies"`

	// AdditionalInfo maps a notice key to a string or a []string.
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`

	Probabilities map[types.Label]float64 `json:"probabilities,omitempty"`
}

// String implements fmt.Stringer for logs.
func (r Recommendation) String() string {
	return fmt.Sprintf("%s/%s tier=%s combined=%.2f remedies=%d", r.Label, r.Language, r.Tier, r.CombinedConfidence, len(r.Remedies))
}
