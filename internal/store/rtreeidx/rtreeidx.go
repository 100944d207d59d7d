// Package rtreeidx is an in-process document backend indexed by an R-tree of bounding boxes.
package rtreeidx

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/dhconnelly/rtreego"

	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/core/observability"
	"github.com/mohammed-shakir/spatial-entities/internal/store/remote"
)

// minPad and relPad widen every rectangle; rtreego treats touching rectangles as disjoint and
// rejects zero lengths, while the backend contract counts touching bounds as overlapping. The
// relative part keeps the pad above float spacing at projected magnitudes.
const (
	minPad = 1e-9
	relPad = 1e-12
)

func padOf(v float64) float64 {
	return math.Max(minPad, math.Abs(v)*relPad)
}

type entry struct {
	doc  remote.Document
	rect rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.rect }

type Option func(*Store)

// WithConverter sets the codec used to read query polygons.
func WithConverter(c *codec.Converter) Option {
	return func(s *Store) { s.conv = c }
}

// WithNodeSize sets the R-tree branching bounds.
func WithNodeSize(minChildren, maxChildren int) Option {
	return func(s *Store) { s.minChildren, s.maxChildren = minChildren, maxChildren }
}

type Store struct {
	mu          sync.RWMutex
	conv        *codec.Converter
	minChildren int
	maxChildren int
	tree        *rtreego.Rtree
	docs        map[uint64]*entry
}

var _ remote.Backend = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{
		conv:        codec.NewConverter(codec.Geographic2D),
		minChildren: 25,
		maxChildren: 50,
		docs:        make(map[uint64]*entry),
	}
	for _, o := range opts {
		o(s)
	}
	s.tree = rtreego.NewTree(2, s.minChildren, s.maxChildren)
	return s
}

func rectOf(env geom.Envelope) rtreego.Rect {
	r, _ := rtreego.NewRectFromPoints(
		rtreego.Point{env.MinX - padOf(env.MinX), env.MinY - padOf(env.MinY)},
		rtreego.Point{env.MaxX + padOf(env.MaxX), env.MaxY + padOf(env.MaxY)},
	)
	return r
}

func sameID(a, b rtreego.Spatial) bool {
	return a.(*entry).doc.ID == b.(*entry).doc.ID
}

func (s *Store) Query(ctx context.Context, approx codec.ExternalGeometry) ([]remote.Document, error) {
	start := time.Now()
	defer func() { observability.ObserveBackendLatency("rtree", "query", time.Since(start).Seconds()) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env, err := s.conv.Bounds(approx)
	if err != nil {
		return nil, err
	}
	if env.IsEmpty() {
		return nil, nil
	}
	s.mu.RLock()
	hits := s.tree.SearchIntersect(rectOf(env))
	out := make([]remote.Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*entry).doc)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b remote.Document) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *Store) FindByID(_ context.Context, id uint64) (remote.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[id]
	if !ok {
		return remote.Document{}, false, nil
	}
	return e.doc, true, nil
}

func (s *Store) Save(_ context.Context, doc remote.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(doc.ID)
	e := &entry{doc: doc}
	s.docs[doc.ID] = e
	if !doc.Bounds.IsEmpty() {
		e.rect = rectOf(doc.Bounds)
		s.tree.Insert(e)
	}
	return nil
}

func (s *Store) RemoveByID(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(id)
	return nil
}

func (s *Store) remove(id uint64) {
	e, ok := s.docs[id]
	if !ok {
		return
	}
	delete(s.docs, id)
	if !e.doc.Bounds.IsEmpty() {
		s.tree.DeleteWithComparator(e, sameID)
	}
}

func (s *Store) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// Scan visits a snapshot so fn may call back into the store.
func (s *Store) Scan(ctx context.Context, fn func(remote.Document) error) error {
	s.mu.RLock()
	docs := make([]remote.Document, 0, len(s.docs))
	for _, e := range s.docs {
		docs = append(docs, e.doc)
	}
	s.mu.RUnlock()
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

// Indexed is the number of documents held by the R-tree.
func (s *Store) Indexed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Size()
}
