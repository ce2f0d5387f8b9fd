package history

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/types"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory [Store] holding at most a fixed
// number of recommendations. The oldest are evicted first.
type MemStore struct {
	capacity int

	mu   sync.RWMutex
	recs []stress.Recommendation
	ids  map[string]struct{}
}

// NewMemStore returns a MemStore keeping up to capacity recommendations.
// A non-positive capacity selects [MaxLimit].
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = MaxLimit
	}
	return &MemStore{capacity: capacity, ids: make(map[string]struct{})}
}

// Append implements [Store.Append].
func (s *MemStore) Append(_ context.Context, rec stress.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[rec.ID]; dup {
		return ErrDuplicateID
	}
	s.recs = append(s.recs, rec)
	s.ids[rec.ID] = struct{}{}
	if over := len(s.recs) - s.capacity; over > 0 {
		for _, old := range s.recs[:over] {
			delete(s.ids, old.ID)
		}
		s.recs = slices.Delete(s.recs, 0, over)
	}
	return nil
}

// Recent implements [Store.Recent].
func (s *MemStore) Recent(_ context.Context, q Query) ([]stress.Recommendation, error) {
	limit := q.EffectiveLimit()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []stress.Recommendation{}
	for i := len(s.recs) - 1; i >= 0 && len(out) < limit; i-- {
		if q.Matches(s.recs[i]) {
			out = append(out, s.recs[i])
		}
	}
	return out, nil
}

// Similar implements [Store.Similar].
func (s *MemStore) Similar(_ context.Context, probs map[types.Label]float64, k int) ([]Match, error) {
	if k <= 0 {
		k = DefaultLimit
	}
	target := ProbabilityVector(probs)

	s.mu.RLock()
	out := make([]Match, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, Match{
			Recommendation: rec,
			Distance:       CosineDistance(target, ProbabilityVector(rec.Probabilities)),
		})
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Match) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	return out[:min(k, len(out))], nil
}

// Len returns the number of stored recommendations.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}

// Close implements [Store.Close].
func (s *MemStore) Close() error { return nil }
