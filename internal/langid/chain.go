package langid

import (
	"context"

	"github.com/MrWong99/stresslens/internal/resilience"
	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/types"
)

// Chain tries resolvers in order until one succeeds. Each entry sits behind
// its own circuit breaker, so a remote resolver that keeps failing is
// skipped until it recovers.
type Chain struct {
	group *resilience.FallbackGroup[Resolver]
}

// NewChain returns a Chain with primary first.
func NewChain(primaryName string, primary Resolver, cfg resilience.FallbackConfig) *Chain {
	return &Chain{group: resilience.NewFallbackGroup(primary, primaryName, cfg)}
}

// Add appends a fallback resolver.
func (c *Chain) Add(name string, r Resolver) *Chain {
	c.group.AddFallback(name, r)
	return c
}

// Resolve implements Resolver.
func (c *Chain) Resolve(ctx context.Context, chunk audio.Chunk) (types.Language, error) {
	return resilience.ExecuteWithResult(c.group, func(r Resolver) (types.Language, error) {
		return r.Resolve(ctx, chunk)
	})
}

// Health reports the breaker state of every resolver in the chain.
func (c *Chain) Health() []resilience.EntryHealth {
	return c.group.Health()
}
