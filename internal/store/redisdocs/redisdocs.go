// Package redisdocs is a document backend on Redis with an H3 cell index over document bounds.
package redisdocs

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/mohammed-shakir/spatial-entities/internal/cache/cellindex"
	"github.com/mohammed-shakir/spatial-entities/internal/cache/featurestore"
	"github.com/mohammed-shakir/spatial-entities/internal/cache/redisstore"
	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/observability"
	"github.com/mohammed-shakir/spatial-entities/internal/mapper"
	"github.com/mohammed-shakir/spatial-entities/internal/store/remote"
)

type Option func(*Backend)

func WithConverter(c *codec.Converter) Option {
	return func(b *Backend) { b.conv = c }
}

// WithResolution sets the H3 resolution of the cell index. Changing it requires a re-index.
func WithResolution(res int) Option {
	return func(b *Backend) { b.res = res }
}

type Backend struct {
	cli   *redisstore.Client
	layer string
	conv  *codec.Converter
	res   int
	docs  *featurestore.Store
	idx   *cellindex.Index
}

var _ remote.Backend = (*Backend)(nil)

// New stores the documents of one layer. The caller owns cli.
func New(cli *redisstore.Client, layer string, m mapper.Interface, opts ...Option) *Backend {
	b := &Backend{
		cli:   cli,
		layer: layer,
		conv:  codec.NewConverter(codec.Geographic2D),
		res:   7,
	}
	for _, o := range opts {
		o(b)
	}
	b.docs = featurestore.New(cli)
	b.idx = cellindex.New(cli, m, b.res)
	return b
}

func observe(call string, start time.Time) {
	observability.ObserveBackendLatency("redisdocs", call, time.Since(start).Seconds())
}

// Open checks connectivity.
func (b *Backend) Open(ctx context.Context) error {
	return b.cli.Ping(ctx)
}

func (b *Backend) Query(ctx context.Context, approx codec.ExternalGeometry) ([]remote.Document, error) {
	defer observe("query", time.Now())
	env, err := b.conv.Bounds(approx)
	if err != nil {
		return nil, err
	}
	members, err := b.idx.Candidates(ctx, b.layer, env)
	if err != nil {
		return nil, err
	}
	ids, err := featurestore.ParseIDs(members)
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	entries, err := b.docs.Get(ctx, b.layer, ids)
	if err != nil {
		return nil, err
	}
	out := make([]remote.Document, 0, len(entries))
	for _, id := range ids {
		e, ok := entries[id]
		// cells are coarser than bounds
		if !ok || !e.Bounds.Intersects(env) {
			continue
		}
		out = append(out, remote.Document{ID: id, Bounds: e.Bounds, Body: e.Body})
	}
	return out, nil
}

func (b *Backend) FindByID(ctx context.Context, id uint64) (remote.Document, bool, error) {
	defer observe("find", time.Now())
	entries, err := b.docs.Get(ctx, b.layer, []uint64{id})
	if err != nil {
		return remote.Document{}, false, err
	}
	e, ok := entries[id]
	if !ok {
		return remote.Document{}, false, nil
	}
	return remote.Document{ID: id, Bounds: e.Bounds, Body: e.Body}, true, nil
}

// Save writes the document and moves its index entries in one transaction.
func (b *Backend) Save(ctx context.Context, doc remote.Document) error {
	defer observe("save", time.Now())
	prev, err := b.docs.Get(ctx, b.layer, []uint64{doc.ID})
	if err != nil {
		return err
	}
	batch := &redisstore.Batch{}
	if old, ok := prev[doc.ID]; ok {
		if err := b.idx.StageRemove(batch, b.layer, doc.ID, old.Bounds); err != nil {
			return err
		}
	}
	b.docs.StagePut(batch, b.layer, doc.ID, featurestore.Entry{Body: doc.Body, Bounds: doc.Bounds})
	if err := b.idx.StageAdd(batch, b.layer, doc.ID, doc.Bounds); err != nil {
		return err
	}
	if err := b.cli.Exec(ctx, batch); err != nil {
		return fmt.Errorf("save %d: %w", doc.ID, err)
	}
	return nil
}

func (b *Backend) RemoveByID(ctx context.Context, id uint64) error {
	defer observe("remove", time.Now())
	prev, err := b.docs.Get(ctx, b.layer, []uint64{id})
	if err != nil {
		return err
	}
	old, ok := prev[id]
	if !ok {
		return nil
	}
	batch := &redisstore.Batch{}
	if err := b.idx.StageRemove(batch, b.layer, id, old.Bounds); err != nil {
		return err
	}
	b.docs.StageRemove(batch, b.layer, id)
	if err := b.cli.Exec(ctx, batch); err != nil {
		return fmt.Errorf("remove %d: %w", id, err)
	}
	return nil
}

func (b *Backend) Count(ctx context.Context) (int, error) {
	return b.docs.Count(ctx, b.layer)
}

// scanPage bounds how many documents one MGET reads during Scan.
const scanPage = 256

func (b *Backend) Scan(ctx context.Context, fn func(remote.Document) error) error {
	defer observe("scan", time.Now())
	ids, err := b.docs.IDs(ctx, b.layer)
	if err != nil {
		return err
	}
	slices.Sort(ids)
	for page := range slices.Chunk(ids, scanPage) {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := b.docs.Get(ctx, b.layer, page)
		if err != nil {
			return err
		}
		for _, id := range page {
			e, ok := entries[id]
			if !ok {
				continue
			}
			if err := fn(remote.Document{ID: id, Bounds: e.Bounds, Body: e.Body}); err != nil {
				return err
			}
		}
	}
	return nil
}
