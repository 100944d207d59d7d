// Package memory is the in-process spatial source: a map keyed by id scanned linearly.
package memory

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/core/observability"
	"github.com/mohammed-shakir/spatial-entities/internal/core/spatial"
)

type options struct {
	srid   int
	policy spatial.UpdatePolicy
	log    *slog.Logger
}

type Option func(*options)

// WithSRID sets the coordinate system entities and queries must use; the default is WGS84.
func WithSRID(srid int) Option {
	return func(o *options) { o.srid = srid }
}

func WithUpdatePolicy(p spatial.UpdatePolicy) Option {
	return func(o *options) { o.policy = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Source keeps entities in insertion order so results are deterministic. It is not safe for
// concurrent use; wrap it in spatial.Synchronized when shared.
type Source[T any] struct {
	acc     spatial.Accessor[T]
	opts    options
	life    spatial.Lifecycle
	items   map[uint64]T
	order   []uint64
	extents spatial.ExtentsCache
}

var _ spatial.Source[struct{}] = (*Source[struct{}])(nil)

func New[T any](acc spatial.Accessor[T], opts ...Option) *Source[T] {
	o := options{srid: geom.WGS84, policy: spatial.Upsert, log: slog.New(slog.DiscardHandler)}
	for _, fn := range opts {
		fn(&o)
	}
	return &Source[T]{acc: acc, opts: o, items: make(map[uint64]T)}
}

func (s *Source[T]) Open(context.Context) error {
	_, err := s.life.Open()
	return err
}

func (s *Source[T]) Close(context.Context) error {
	if s.life.Close() {
		s.items = make(map[uint64]T)
		s.order = nil
		s.extents.Invalidate()
	}
	return nil
}

func (s *Source[T]) State() spatial.State { return s.life.State() }

func (s *Source[T]) SelectEnvelope(ctx context.Context, env geom.Envelope) ([]T, error) {
	return s.SelectGeometry(ctx, spatial.EnvelopeQuery(s.opts.srid, env))
}

func (s *Source[T]) SelectGeometry(ctx context.Context, g geom.Geometry) ([]T, error) {
	if err := s.life.Check(); err != nil {
		return nil, err
	}
	if !geom.IsNil(g) {
		if err := codec.CheckSRID(s.opts.srid, g); err != nil {
			return nil, err
		}
	}
	out, stats, err := spatial.FilterRefine(ctx, g, s.scan, s.acc.Geometry)
	if err != nil {
		return nil, err
	}
	observability.ObserveFilterRefine(s.acc.Name(), stats.Kept, stats.Discarded())
	return out, nil
}

// scan is the filter step: envelope overlap over every stored entity.
func (s *Source[T]) scan(_ context.Context, env geom.Envelope) ([]T, error) {
	var out []T
	for _, id := range s.order {
		e := s.items[id]
		g, err := s.acc.Geometry(e)
		if err != nil || g.IsEmpty() {
			continue
		}
		if g.Envelope().Intersects(env) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Source[T]) SelectID(_ context.Context, id uint64) (T, error) {
	var zero T
	if err := s.life.Check(); err != nil {
		return zero, err
	}
	e, ok := s.items[id]
	if !ok {
		return zero, &spatial.NotFoundError{Layer: s.acc.Name(), ID: id}
	}
	return e, nil
}

// Insert is all or nothing: the batch is checked against itself and the store before any write.
func (s *Source[T]) Insert(ctx context.Context, items ...T) error {
	if err := s.life.Check(); err != nil {
		return err
	}
	if err := spatial.CheckBatch(s.acc, items); err != nil {
		return err
	}
	if err := spatial.CheckSRIDs(s.acc, s.opts.srid, items); err != nil {
		return err
	}
	var errs []error
	for _, it := range items {
		if id := s.acc.ID(it); s.has(id) {
			errs = append(errs, spatial.Duplicate(s.acc.Name(), id))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	for _, it := range items {
		s.put(it)
	}
	s.extents.Invalidate()
	s.opts.log.DebugContext(ctx, "inserted", slog.String("layer", s.acc.Name()), slog.Int("n", len(items)))
	return nil
}

func (s *Source[T]) Update(ctx context.Context, items ...T) error {
	if err := s.life.Check(); err != nil {
		return err
	}
	if err := spatial.CheckBatch(s.acc, items); err != nil {
		return err
	}
	if err := spatial.CheckSRIDs(s.acc, s.opts.srid, items); err != nil {
		return err
	}
	if s.opts.policy == spatial.Replace {
		var errs []error
		for _, it := range items {
			if id := s.acc.ID(it); !s.has(id) {
				errs = append(errs, &spatial.NotFoundError{Layer: s.acc.Name(), ID: id})
			}
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
	}
	for _, it := range items {
		s.put(it)
	}
	s.extents.Invalidate()
	s.opts.log.DebugContext(ctx, "updated", slog.String("layer", s.acc.Name()),
		slog.Int("n", len(items)), slog.String("policy", s.opts.policy.String()))
	return nil
}

// Delete removes entities by id; unknown ids are ignored.
func (s *Source[T]) Delete(ctx context.Context, items ...T) error {
	if err := s.life.Check(); err != nil {
		return err
	}
	gone := make(map[uint64]struct{}, len(items))
	for _, it := range items {
		id := s.acc.ID(it)
		if s.has(id) {
			delete(s.items, id)
			gone[id] = struct{}{}
		}
	}
	if len(gone) == 0 {
		return nil
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := gone[id]; !ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
	s.extents.Invalidate()
	s.opts.log.DebugContext(ctx, "deleted", slog.String("layer", s.acc.Name()), slog.Int("n", len(gone)))
	return nil
}

func (s *Source[T]) Count(context.Context) (int, error) {
	if err := s.life.Check(); err != nil {
		return 0, err
	}
	return len(s.items), nil
}

func (s *Source[T]) Extents(ctx context.Context) (geom.Envelope, error) {
	if err := s.life.Check(); err != nil {
		return geom.EmptyEnvelope(), err
	}
	return s.extents.Get(ctx, func(context.Context) (geom.Envelope, error) {
		env := geom.EmptyEnvelope()
		for _, e := range s.items {
			g, err := s.acc.Geometry(e)
			if err != nil {
				continue
			}
			env = spatial.Extend(env, g)
		}
		return env, nil
	})
}

func (s *Source[T]) has(id uint64) bool {
	_, ok := s.items[id]
	return ok
}

// put keeps the original position of an existing id.
func (s *Source[T]) put(e T) {
	id := s.acc.ID(e)
	if !s.has(id) {
		s.order = append(s.order, id)
	}
	s.items[id] = e
}
