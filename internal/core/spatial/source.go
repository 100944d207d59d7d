// Package spatial defines the source contract shared by every entity store: lifecycle, spatial
// selection, id-keyed mutation and cached extents.
package spatial

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

// Source stores entities of type T keyed by their uint64 id.
//
// Selections return entities whose geometry intersects the query, boundaries included. Results
// follow the source's own order; callers must not rely on it across implementations.
type Source[T any] interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	State() State

	SelectEnvelope(ctx context.Context, env geom.Envelope) ([]T, error)
	SelectGeometry(ctx context.Context, g geom.Geometry) ([]T, error)
	SelectID(ctx context.Context, id uint64) (T, error)

	Insert(ctx context.Context, items ...T) error
	Update(ctx context.Context, items ...T) error
	Delete(ctx context.Context, items ...T) error

	Count(ctx context.Context) (int, error)
	Extents(ctx context.Context) (geom.Envelope, error)
}

// Invalidator is implemented by sources that cache derived state of a shared store.
type Invalidator interface {
	Invalidate()
}

// Accessor reads the id and geometry of an entity; *entity.Descriptor[T] satisfies it.
type Accessor[T any] interface {
	Name() string
	ID(e T) uint64
	Geometry(e T) (geom.Geometry, error)
}

type State int32

const (
	Created State = iota
	Opened
	Closed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Opened:
		return "open"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Lifecycle tracks Created -> Open -> Closed. Open is idempotent, Close is terminal.
type Lifecycle struct {
	state atomic.Int32
}

func (l *Lifecycle) State() State { return State(l.state.Load()) }

// Open reports whether this call performed the transition.
func (l *Lifecycle) Open() (bool, error) {
	if l.state.CompareAndSwap(int32(Created), int32(Opened)) {
		return true, nil
	}
	if l.State() == Closed {
		return false, ErrClosed
	}
	return false, nil
}

// Close reports whether this call performed the transition.
func (l *Lifecycle) Close() bool {
	return State(l.state.Swap(int32(Closed))) != Closed
}

// Check fails with ErrClosed once the source is closed.
func (l *Lifecycle) Check() error {
	if l.State() == Closed {
		return ErrClosed
	}
	return nil
}

// UpdatePolicy decides what Update does with ids the source does not hold.
type UpdatePolicy int

const (
	// Upsert inserts missing ids.
	Upsert UpdatePolicy = iota
	// Replace requires every id to exist and writes nothing otherwise.
	Replace
)

func (p UpdatePolicy) String() string {
	if p == Replace {
		return "replace"
	}
	return "upsert"
}

func ParseUpdatePolicy(s string) (UpdatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "upsert":
		return Upsert, nil
	case "replace":
		return Replace, nil
	}
	return Upsert, fmt.Errorf("unknown update policy %q", s)
}
