// Package history keeps surfaced recommendations for later inspection.
//
// The HTTP API lists recent recommendations from a [Store], and similar
// past situations can be looked up by the shape of their class probability
// distribution. [MemStore] keeps everything in memory; the postgres
// sub-package persists to PostgreSQL with the probabilities stored as a
// pgvector column.
//
// Every implementation must be safe for concurrent use.
package history

import (
	"context"
	"errors"
	"math"

	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/types"
)

// DefaultLimit is applied when a [Query] does not set one.
const DefaultLimit = 20

// MaxLimit caps [Query.Limit].
const MaxLimit = 500

// ErrDuplicateID is returned by Append for an ID that is already stored.
var ErrDuplicateID = errors.New("history: duplicate recommendation id")

// Query filters a listing. Zero fields do not filter.
type Query struct {
	Limit    int
	Label    types.Label
	Language types.Language
	Tier     stress.Tier
}

// EffectiveLimit returns Limit clamped to [1, MaxLimit], or DefaultLimit.
func (q Query) EffectiveLimit() int {
	switch {
	case q.Limit <= 0:
		return DefaultLimit
	case q.Limit > MaxLimit:
		return MaxLimit
	default:
		return q.Limit
	}
}

// Matches reports whether rec passes the filter fields of q.
func (q Query) Matches(rec stress.Recommendation) bool {
	return (q.Label == "" || rec.Label == q.Label) &&
		(q.Language == "" || rec.Language == q.Language) &&
		(q.Tier == "" || rec.Tier == q.Tier)
}

// Match is one result of a similarity lookup.
type Match struct {
	Recommendation stress.Recommendation `json:"recommendation"`

	// Distance is the cosine distance between probability vectors, in [0, 2].
	Distance float64 `json:"distance"`
}

// Store persists recommendations.
type Store interface {
	// Append stores rec.
	Append(ctx context.Context, rec stress.Recommendation) error

	// Recent returns matching recommendations, newest first.
	Recent(ctx context.Context, q Query) ([]stress.Recommendation, error)

	// Similar returns the k stored recommendations whose probability
	// distributions are closest to probs, nearest first.
	Similar(ctx context.Context, probs map[types.Label]float64, k int) ([]Match, error)

	// Close releases resources held by the store.
	Close() error
}

// ProbabilityVector lays probs out in the order of [types.Labels].
func ProbabilityVector(probs map[types.Label]float64) []float32 {
	out := make([]float32, len(types.Labels))
	for i, l := range types.Labels {
		out[i] = float32(probs[l])
	}
	return out
}

// ProbabilityMap is the inverse of [ProbabilityVector]. Zero entries are
// kept so the map always covers every label.
func ProbabilityMap(vec []float32) map[types.Label]float64 {
	out := make(map[types.Label]float64, len(types.Labels))
	for i, l := range types.Labels {
		if i < len(vec) {
			out[l] = float64(vec[i])
		}
	}
	return out
}

// CosineDistance returns 1 - cos(a, b). Zero vectors are at distance 1 from
// everything.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range min(len(a), len(b)) {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
