package remedy

import (
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/types"
)

// Info keys used in [stress.Recommendation.AdditionalInfo].
const (
	InfoUrgentNote        = "urgent_note"
	InfoEmergencyContacts = "emergency_contacts"
	InfoNote              = "note"
)

// Count returns how many remedies a tier asks for.
func Count(tier stress.Tier) int {
	switch tier {
	case stress.TierHigh:
		return 3
	case stress.TierMedium:
		return 2
	default:
		return 1
	}
}

// Option is a functional option for configuring a Selector.
type Option func(*Selector)

// WithRand sets the random source. Use a seeded source for reproducible
// selections.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) {
		s.rng = r
	}
}

// WithClock overrides the time source used for recommendation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		s.now = now
	}
}

// Selector draws remedies from a [Catalog]. It is safe for concurrent use.
type Selector struct {
	catalog *Catalog
	now     func() time.Time
	newID   func() string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector returns a Selector over c.
func NewSelector(c *Catalog, opts ...Option) *Selector {
	seed := uint64(time.Now().UnixNano())
	s := &Selector{
		catalog: c,
		now:     time.Now,
		newID:   uuid.NewString,
		rng:     rand.New(rand.NewPCG(seed, seed>>32|1)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Select builds the recommendation for p at tier.
//
// High, medium and low tiers draw 3, 2 and 1 remedies without replacement.
// The low tier draws from the label's pool extended with the language's
// generic fallbacks. A pool smaller than the requested count is returned
// whole. All text is in p.Language.
func (s *Selector) Select(p stress.Prediction, tier stress.Tier) (stress.Recommendation, error) {
	pool := s.catalog.Pool(p.Label, p.Language)
	if len(pool) == 0 {
		return stress.Recommendation{}, &stress.RecommendationError{
			Label:    p.Label,
			Language: p.Language,
			Reason:   "no remedies in catalog",
		}
	}
	notices, ok := s.catalog.Notices(p.Language)
	if !ok {
		return stress.Recommendation{}, &stress.RecommendationError{
			Label:    p.Label,
			Language: p.Language,
			Reason:   "no notices in catalog",
		}
	}
	if tier == stress.TierLow {
		pool = append(pool, s.catalog.Fallbacks(p.Language)...)
	}

	rec := stress.Recommendation{
		ID:                   s.newID(),
		Timestamp:            s.now(),
		ChunkID:              p.ChunkID,
		Label:                p.Label,
		Language:             p.Language,
		Tier:                 tier,
		ModelQuality:         p.ModelQuality,
		PredictionConfidence: p.MaxProbability(),
		CombinedConfidence:   stress.Combined(p),
		Prefix:               notices.Prefixes[tier],
		Remedies:             s.sample(pool, Count(tier)),
		AdditionalInfo:       additionalInfo(p.Label, tier, notices),
		Probabilities:        maps.Clone(p.Probabilities),
	}
	return rec, nil
}

// sample picks n distinct entries of pool by a partial Fisher-Yates shuffle.
// pool must be a private copy; it is reordered in place.
func (s *Selector) sample(pool []string, n int) []string {
	n = min(n, len(pool))
	s.mu.Lock()
	for i := range n {
		j := i + s.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	s.mu.Unlock()
	return pool[:n:n]
}

func additionalInfo(label types.Label, tier stress.Tier, n Notices) map[string]any {
	info := make(map[string]any)
	if label == types.Highest() {
		info[InfoUrgentNote] = n.UrgentNote
		info[InfoEmergencyContacts] = n.EmergencyContacts
	}
	if tier == stress.TierLow {
		info[InfoNote] = n.LowConfidence
	}
	return info
}
