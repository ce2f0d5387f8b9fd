package stress

import (
	"fmt"
	"sync/atomic"
)

// Default tier thresholds (inclusive lower bounds).
const (
	DefaultHighThreshold   = 0.80
	DefaultMediumThreshold = 0.65
)

// Thresholds are the inclusive lower bounds of the high and medium tiers.
type Thresholds struct {
	High   float64
	Medium float64
}

// Validate checks 0 ≤ Medium ≤ High ≤ 1.
func (t Thresholds) Validate() error {
	if t.Medium < 0 || t.High > 1 || t.Medium > t.High {
		return &ConfigurationError{
			Component: "confidence",
			Reason:    fmt.Sprintf("thresholds must satisfy 0 <= medium (%v) <= high (%v) <= 1", t.Medium, t.High),
		}
	}
	return nil
}

// Aggregator combines model quality and prediction probability into a
// confidence tier. Thresholds can be swapped at runtime; it is safe for
// concurrent use.
type Aggregator struct {
	thresholds atomic.Pointer[Thresholds]
}

// NewAggregator returns an Aggregator using t.
func NewAggregator(t Thresholds) (*Aggregator, error) {
	a := &Aggregator{}
	if err := a.SetThresholds(t); err != nil {
		return nil, err
	}
	return a, nil
}

// Thresholds returns the active thresholds.
func (a *Aggregator) Thresholds() Thresholds { return *a.thresholds.Load() }

// SetThresholds validates and atomically installs t.
func (a *Aggregator) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	a.thresholds.Store(&t)
	return nil
}

// Combined returns (ModelQuality + max probability) / 2.
func Combined(p Prediction) float64 {
	return (p.ModelQuality + p.MaxProbability()) / 2
}

// Combined returns the combined confidence of p. See [Combined].
func (a *Aggregator) Combined(p Prediction) float64 { return Combined(p) }

// Tier returns the tier of p.
func (a *Aggregator) Tier(p Prediction) Tier {
	return a.TierFor(a.Combined(p))
}

// TierFor buckets a combined confidence value.
func (a *Aggregator) TierFor(combined float64) Tier {
	t := a.thresholds.Load()
	switch {
	case combined >= t.High:
		return TierHigh
	case combined >= t.Medium:
		return TierMedium
	default:
		return TierLow
	}
}
