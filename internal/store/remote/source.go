package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/entity"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/core/observability"
	"github.com/mohammed-shakir/spatial-entities/internal/core/spatial"
)

type options struct {
	scheme codec.Scheme
	srid   int
	policy spatial.UpdatePolicy
	log    *slog.Logger
}

type Option func(*options)

func WithScheme(s codec.Scheme) Option {
	return func(o *options) { o.scheme = s }
}

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

// Source serves entities of type T from a Backend.
type Source[T any] struct {
	backend Backend
	desc    *entity.Descriptor[T]
	conv    *codec.Converter
	ser     Serializer[T]
	opts    options
	life    spatial.Lifecycle
	extents spatial.ExtentsCache
}

var _ spatial.Source[struct{}] = (*Source[struct{}])(nil)

// New uses the JSON serializer in the configured scheme.
func New[T any](backend Backend, desc *entity.Descriptor[T], opts ...Option) *Source[T] {
	return NewWithSerializer[T](backend, desc, nil, opts...)
}

func NewWithSerializer[T any](backend Backend, desc *entity.Descriptor[T], ser Serializer[T], opts ...Option) *Source[T] {
	o := options{
		scheme: codec.Geographic2D,
		srid:   geom.WGS84,
		policy: spatial.Upsert,
		log:    slog.New(slog.DiscardHandler),
	}
	for _, fn := range opts {
		fn(&o)
	}
	conv := codec.NewConverter(o.scheme, codec.WithSRID(o.srid))
	if ser == nil {
		ser = NewJSONSerializer(desc, conv)
	}
	return &Source[T]{backend: backend, desc: desc, conv: conv, ser: ser, opts: o}
}

// Converter is the codec used for query polygons and the default serializer.
func (s *Source[T]) Converter() *codec.Converter { return s.conv }

func (s *Source[T]) Open(ctx context.Context) error {
	first, err := s.life.Open()
	if err != nil || !first {
		return err
	}
	if op, ok := s.backend.(Opener); ok {
		if err := op.Open(ctx); err != nil {
			return fmt.Errorf("open %s backend: %w", s.desc.Name(), err)
		}
	}
	return nil
}

func (s *Source[T]) Close(ctx context.Context) error {
	if !s.life.Close() {
		return nil
	}
	s.extents.Invalidate()
	if c, ok := s.backend.(Closer); ok {
		return c.Close(ctx)
	}
	return nil
}

func (s *Source[T]) State() spatial.State { return s.life.State() }

// Invalidate drops cached extents after another writer changed the shared store.
func (s *Source[T]) Invalidate() { s.extents.Invalidate() }

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
	out, stats, err := spatial.FilterRefine(ctx, g, s.candidates, s.desc.Geometry)
	if err != nil {
		return nil, err
	}
	observability.ObserveFilterRefine(s.desc.Name(), stats.Kept, stats.Discarded())
	s.opts.log.DebugContext(ctx, "remote select",
		slog.String("layer", s.desc.Name()),
		slog.Int("candidates", stats.Candidates),
		slog.Int("kept", stats.Kept))
	return out, nil
}

func (s *Source[T]) candidates(ctx context.Context, env geom.Envelope) ([]T, error) {
	approx, err := s.conv.EnvelopeToExternalPolygon(env)
	if err != nil {
		return nil, err
	}
	docs, err := s.backend.Query(ctx, approx)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.desc.Name(), err)
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		e, err := s.ser.Decode(d.Body)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Source[T]) SelectID(ctx context.Context, id uint64) (T, error) {
	var zero T
	if err := s.life.Check(); err != nil {
		return zero, err
	}
	d, ok, err := s.backend.FindByID(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("find %s %d: %w", s.desc.Name(), id, err)
	}
	if !ok {
		return zero, &spatial.NotFoundError{Layer: s.desc.Name(), ID: id}
	}
	return s.ser.Decode(d.Body)
}

// Insert checks every id against the backend before writing. Writes are not transactional: a
// backend failure mid-batch leaves the earlier documents stored.
func (s *Source[T]) Insert(ctx context.Context, items ...T) error {
	if err := s.life.Check(); err != nil {
		return err
	}
	docs, err := s.prepare(items)
	if err != nil {
		return err
	}
	var errs []error
	for _, d := range docs {
		_, exists, err := s.backend.FindByID(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("find %s %d: %w", s.desc.Name(), d.ID, err)
		}
		if exists {
			errs = append(errs, spatial.Duplicate(s.desc.Name(), d.ID))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return s.save(ctx, "insert", docs)
}

func (s *Source[T]) Update(ctx context.Context, items ...T) error {
	if err := s.life.Check(); err != nil {
		return err
	}
	docs, err := s.prepare(items)
	if err != nil {
		return err
	}
	if s.opts.policy == spatial.Replace {
		var errs []error
		for _, d := range docs {
			_, exists, err := s.backend.FindByID(ctx, d.ID)
			if err != nil {
				return fmt.Errorf("find %s %d: %w", s.desc.Name(), d.ID, err)
			}
			if !exists {
				errs = append(errs, &spatial.NotFoundError{Layer: s.desc.Name(), ID: d.ID})
			}
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
	}
	return s.save(ctx, "update", docs)
}

func (s *Source[T]) Delete(ctx context.Context, items ...T) error {
	if err := s.life.Check(); err != nil {
		return err
	}
	defer s.extents.Invalidate()
	for _, it := range items {
		id := s.desc.ID(it)
		if err := s.backend.RemoveByID(ctx, id); err != nil {
			return fmt.Errorf("remove %s %d: %w", s.desc.Name(), id, err)
		}
	}
	return nil
}

func (s *Source[T]) Count(ctx context.Context) (int, error) {
	if err := s.life.Check(); err != nil {
		return 0, err
	}
	return s.backend.Count(ctx)
}

// Extents scans stored bounds once and caches the union until the next mutation or Invalidate.
func (s *Source[T]) Extents(ctx context.Context) (geom.Envelope, error) {
	if err := s.life.Check(); err != nil {
		return geom.EmptyEnvelope(), err
	}
	return s.extents.Get(ctx, func(ctx context.Context) (geom.Envelope, error) {
		env := geom.EmptyEnvelope()
		err := s.backend.Scan(ctx, func(d Document) error {
			if !d.Bounds.IsEmpty() {
				env = env.Union(d.Bounds)
			}
			return nil
		})
		return env, err
	})
}

// prepare validates the batch and encodes every entity.
func (s *Source[T]) prepare(items []T) ([]Document, error) {
	if err := spatial.CheckBatch[T](s.desc, items); err != nil {
		return nil, err
	}
	if err := spatial.CheckSRIDs[T](s.desc, s.opts.srid, items); err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(items))
	var errs []error
	for _, it := range items {
		id := s.desc.ID(it)
		g, _ := s.desc.Geometry(it)
		body, err := s.ser.Encode(it)
		if err != nil {
			errs = append(errs, &spatial.ValidationError{Layer: s.desc.Name(), ID: id, Reason: err})
			continue
		}
		docs = append(docs, Document{ID: id, Bounds: spatial.Extend(geom.EmptyEnvelope(), g), Body: body})
	}
	return docs, errors.Join(errs...)
}

func (s *Source[T]) save(ctx context.Context, op string, docs []Document) error {
	defer s.extents.Invalidate()
	for _, d := range docs {
		if err := s.backend.Save(ctx, d); err != nil {
			return fmt.Errorf("%s %s %d: %w", op, s.desc.Name(), d.ID, err)
		}
	}
	s.opts.log.DebugContext(ctx, op, slog.String("layer", s.desc.Name()), slog.Int("n", len(docs)))
	return nil
}
