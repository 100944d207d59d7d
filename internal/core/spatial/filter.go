package spatial

import (
	"context"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

// RefineStats counts what the exact step did with the filter's candidates.
type RefineStats struct {
	Candidates int
	Kept       int
}

func (s RefineStats) Discarded() int { return s.Candidates - s.Kept }

// FilterRefine selects the entities intersecting query. candidates is the cheap filter over the
// query envelope and may over-approximate; every candidate is then checked with geom.Intersects.
// Candidates without a readable geometry never match.
func FilterRefine[T any](
	ctx context.Context,
	query geom.Geometry,
	candidates func(context.Context, geom.Envelope) ([]T, error),
	geometryOf func(T) (geom.Geometry, error),
) ([]T, RefineStats, error) {
	if geom.IsNil(query) || query.IsEmpty() {
		return nil, RefineStats{}, nil
	}
	cands, err := candidates(ctx, query.Envelope())
	if err != nil {
		return nil, RefineStats{}, err
	}
	stats := RefineStats{Candidates: len(cands)}
	out := make([]T, 0, len(cands))
	for i, c := range cands {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}
		g, err := geometryOf(c)
		if err != nil {
			continue
		}
		if geom.Intersects(g, query) {
			out = append(out, c)
		}
	}
	stats.Kept = len(out)
	return out, stats, nil
}

// EnvelopeQuery is the rectangle polygon, in the source's srid, an envelope selection is
// evaluated against.
func EnvelopeQuery(srid int, env geom.Envelope) geom.Geometry {
	if env.IsEmpty() {
		return nil
	}
	return geom.EnvelopePolygon(srid, env)
}
