package invalidation

import (
	"context"
	"log/slog"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/core/spatial"
	mylog "github.com/mohammed-shakir/spatial-entities/internal/logger"
)

type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Notifying publishes one event per successful mutation of the wrapped source. A failed publish is
// logged; the mutation itself has already been applied and is not reported as failed.
type Notifying[T any] struct {
	spatial.Source[T]
	acc   spatial.Accessor[T]
	layer string
	srid  int
	pub   EventPublisher
	log   *slog.Logger
}

func NewNotifying[T any](src spatial.Source[T], acc spatial.Accessor[T], layer string, srid int, pub EventPublisher, l *slog.Logger) *Notifying[T] {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &Notifying[T]{Source: src, acc: acc, layer: layer, srid: srid, pub: pub, log: l}
}

func (n *Notifying[T]) Insert(ctx context.Context, items ...T) error {
	if err := n.Source.Insert(ctx, items...); err != nil {
		return err
	}
	n.notify(ctx, OpInsert, items)
	return nil
}

func (n *Notifying[T]) Update(ctx context.Context, items ...T) error {
	if err := n.Source.Update(ctx, items...); err != nil {
		return err
	}
	n.notify(ctx, OpUpdate, items)
	return nil
}

func (n *Notifying[T]) Delete(ctx context.Context, items ...T) error {
	if err := n.Source.Delete(ctx, items...); err != nil {
		return err
	}
	n.notify(ctx, OpDelete, items)
	return nil
}

// Invalidate forwards to the wrapped source.
func (n *Notifying[T]) Invalidate() {
	if inv, ok := n.Source.(spatial.Invalidator); ok {
		inv.Invalidate()
	}
}

func (n *Notifying[T]) notify(ctx context.Context, op string, items []T) {
	if len(items) == 0 {
		return
	}
	ids := make([]uint64, len(items))
	env := geom.EmptyEnvelope()
	for i, it := range items {
		ids[i] = n.acc.ID(it)
		if g, err := n.acc.Geometry(it); err == nil {
			env = env.Union(g.Envelope())
		}
	}
	ev := Event{Op: op, Layer: n.layer, FeatureIDs: ids, BBox: BBoxOf(env, n.srid)}
	if err := n.pub.Publish(ctx, ev); err != nil {
		ctx = mylog.WithOp(mylog.WithLayer(ctx, n.layer), op)
		n.log.WarnContext(ctx, "publish mutation event", "err", err, "ids", len(ids))
	}
}
