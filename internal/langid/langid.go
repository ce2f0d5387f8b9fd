// Package langid resolves the spoken language of an audio chunk.
//
// The pipeline prefers an explicit language hint. Without one it asks a
// [Resolver]. The default resolver is [Centroid], a single spectral-centroid
// threshold: it is a heuristic, not a language detector, and callers that
// need accuracy should configure the Whisper resolver in front of it with
// [NewChain].
package langid

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/types"
)

// Resolver determines the language of a chunk.
//
// Implementations must be safe for concurrent use.
type Resolver interface {
	Resolve(ctx context.Context, chunk audio.Chunk) (types.Language, error)
}

// ResolverFunc adapts a function to the [Resolver] interface.
type ResolverFunc func(ctx context.Context, chunk audio.Chunk) (types.Language, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, chunk audio.Chunk) (types.Language, error) {
	return f(ctx, chunk)
}

// Static always resolves to one language.
type Static types.Language

// Resolve implements Resolver.
func (s Static) Resolve(context.Context, audio.Chunk) (types.Language, error) {
	return types.Language(s), nil
}

var aliases = map[string]types.Language{
	"en":      types.English,
	"eng":     types.English,
	"en-us":   types.English,
	"en-gb":   types.English,
	"en-in":   types.English,
	"hi":      types.Hindi,
	"hin":     types.Hindi,
	"hi-in":   types.Hindi,
	"हिन्दी":  types.Hindi,
	"हिंदी":   types.Hindi,
	"angrezi": types.English,
}

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a misspelt
// language name ("englsh", "hindee") to be accepted.
const fuzzyThreshold = 0.85

// Normalize maps a free-form language hint onto a supported language.
// It accepts canonical names in any case, ISO codes, and close misspellings.
func Normalize(hint string) (types.Language, bool) {
	h := strings.ToLower(strings.TrimSpace(hint))
	h = strings.ReplaceAll(h, "_", "-")
	if h == "" {
		return "", false
	}
	if lang := types.Language(h); lang.IsValid() {
		return lang, true
	}
	if lang, ok := aliases[h]; ok {
		return lang, true
	}

	var (
		best  types.Language
		score float64
	)
	for _, lang := range types.Languages {
		if s := matchr.JaroWinkler(h, string(lang), false); s > score {
			best, score = lang, s
		}
	}
	if score >= fuzzyThreshold {
		return best, true
	}
	return "", false
}
