// Package remote adapts a bbox-indexed document store to spatial.Source: the backend filters by
// bounding box, the source decodes candidates and refines them with exact intersection.
package remote

import (
	"context"

	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

// Document is one stored entity. Bounds is what the backend's spatial index sees; Body is opaque.
type Document struct {
	ID     uint64
	Bounds geom.Envelope
	Body   []byte
}

// Backend is a remote document store with a bounding-box index.
//
// Query may over-approximate but must never miss a document whose Bounds overlaps the query
// polygon's bounds. Save overwrites an existing id. RemoveByID ignores unknown ids.
type Backend interface {
	Query(ctx context.Context, approx codec.ExternalGeometry) ([]Document, error)
	FindByID(ctx context.Context, id uint64) (Document, bool, error)
	Save(ctx context.Context, doc Document) error
	RemoveByID(ctx context.Context, id uint64) error
	Count(ctx context.Context) (int, error)
	Scan(ctx context.Context, fn func(Document) error) error
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close(ctx context.Context) error
}

// Opener is implemented by backends that prepare indexes or connections before first use.
type Opener interface {
	Open(ctx context.Context) error
}
