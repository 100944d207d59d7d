package spatial

import (
	"context"
	"sync"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

// Synchronized serializes every call on the wrapped source. Sources assume a single caller.
type Synchronized[T any] struct {
	mu  sync.Mutex
	src Source[T]
}

func NewSynchronized[T any](src Source[T]) *Synchronized[T] {
	return &Synchronized[T]{src: src}
}

func (s *Synchronized[T]) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Open(ctx)
}

func (s *Synchronized[T]) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Close(ctx)
}

// State does not wait for a running call; sources keep their lifecycle in an atomic.
func (s *Synchronized[T]) State() State { return s.src.State() }

func (s *Synchronized[T]) SelectEnvelope(ctx context.Context, env geom.Envelope) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.SelectEnvelope(ctx, env)
}

func (s *Synchronized[T]) SelectGeometry(ctx context.Context, g geom.Geometry) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.SelectGeometry(ctx, g)
}

func (s *Synchronized[T]) SelectID(ctx context.Context, id uint64) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.SelectID(ctx, id)
}

func (s *Synchronized[T]) Insert(ctx context.Context, items ...T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Insert(ctx, items...)
}

func (s *Synchronized[T]) Update(ctx context.Context, items ...T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Update(ctx, items...)
}

func (s *Synchronized[T]) Delete(ctx context.Context, items ...T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Delete(ctx, items...)
}

func (s *Synchronized[T]) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Count(ctx)
}

func (s *Synchronized[T]) Extents(ctx context.Context) (geom.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Extents(ctx)
}

// Invalidate forwards to the wrapped source when it caches shared state.
func (s *Synchronized[T]) Invalidate() {
	if inv, ok := s.src.(Invalidator); ok {
		s.mu.Lock()
		inv.Invalidate()
		s.mu.Unlock()
	}
}
