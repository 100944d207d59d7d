package spatial

import (
	"context"
	"sync"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/core/observability"
)

// ExtentsCache memoizes the union of stored envelopes until the next mutation.
type ExtentsCache struct {
	mu    sync.Mutex
	env   geom.Envelope
	valid bool
}

// Get returns the cached extents or computes them; failed computations are not cached.
func (c *ExtentsCache) Get(ctx context.Context, compute func(context.Context) (geom.Envelope, error)) (geom.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid {
		observability.IncExtentsHit()
		return c.env, nil
	}
	observability.IncExtentsMiss()
	env, err := compute(ctx)
	if err != nil {
		return geom.EmptyEnvelope(), err
	}
	c.env, c.valid = env, true
	return env, nil
}

func (c *ExtentsCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

// Extend grows env by g's envelope; nil and empty geometries leave it unchanged.
func Extend(env geom.Envelope, g geom.Geometry) geom.Envelope {
	if geom.IsNil(g) || g.IsEmpty() {
		return env
	}
	return env.Union(g.Envelope())
}
