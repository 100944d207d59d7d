package spatial

import (
	"context"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/core/observability"
	mylog "github.com/mohammed-shakir/spatial-entities/internal/logger"
)

// wktValue renders a query geometry only when the record is actually written.
type wktValue struct{ g geom.Geometry }

func (w wktValue) LogValue() slog.Value { return slog.StringValue(geom.WKT(w.g)) }

// Instrumented records latency and outcome of every call on the wrapped source.
type Instrumented[T any] struct {
	src   Source[T]
	layer string
	log   *slog.Logger
}

func NewInstrumented[T any](src Source[T], layer string, l *slog.Logger) *Instrumented[T] {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &Instrumented[T]{src: src, layer: layer, log: l}
}

func (s *Instrumented[T]) observe(ctx context.Context, op string, start time.Time, err error, attrs ...slog.Attr) {
	outcome := Outcome(err)
	observability.ObserveSourceOp(s.layer, op, outcome, time.Since(start).Seconds())
	ctx = mylog.WithOp(mylog.WithLayer(ctx, s.layer), op)
	attrs = append(attrs, slog.String("outcome", outcome), slog.Duration("took", time.Since(start)))
	level := slog.LevelDebug
	if outcome == "error" {
		attrs = append(attrs, slog.String("err", err.Error()))
		level = slog.LevelWarn
	}
	s.log.LogAttrs(ctx, level, "source op", attrs...)
}

func (s *Instrumented[T]) Open(ctx context.Context) error {
	start := time.Now()
	err := s.src.Open(ctx)
	s.observe(ctx, "open", start, err)
	return err
}

func (s *Instrumented[T]) Close(ctx context.Context) error {
	start := time.Now()
	err := s.src.Close(ctx)
	s.observe(ctx, "close", start, err)
	return err
}

func (s *Instrumented[T]) State() State { return s.src.State() }

func (s *Instrumented[T]) SelectEnvelope(ctx context.Context, env geom.Envelope) ([]T, error) {
	start := time.Now()
	out, err := s.src.SelectEnvelope(ctx, env)
	s.observe(ctx, "select_envelope", start, err, slog.String("envelope", env.String()), slog.Int("n", len(out)))
	return out, err
}

func (s *Instrumented[T]) SelectGeometry(ctx context.Context, g geom.Geometry) ([]T, error) {
	start := time.Now()
	out, err := s.src.SelectGeometry(ctx, g)
	attrs := []slog.Attr{slog.String("kind", "nil"), slog.Int("n", len(out))}
	if !geom.IsNil(g) {
		attrs[0] = slog.String("kind", g.Kind().String())
		attrs = append(attrs, slog.Any("query", wktValue{g}))
	}
	s.observe(ctx, "select_geometry", start, err, attrs...)
	return out, err
}

func (s *Instrumented[T]) SelectID(ctx context.Context, id uint64) (T, error) {
	start := time.Now()
	out, err := s.src.SelectID(ctx, id)
	s.observe(ctx, "select_id", start, err, slog.Uint64("id", id))
	return out, err
}

func (s *Instrumented[T]) Insert(ctx context.Context, items ...T) error {
	start := time.Now()
	err := s.src.Insert(ctx, items...)
	s.observe(ctx, "insert", start, err, slog.Int("n", len(items)))
	return err
}

func (s *Instrumented[T]) Update(ctx context.Context, items ...T) error {
	start := time.Now()
	err := s.src.Update(ctx, items...)
	s.observe(ctx, "update", start, err, slog.Int("n", len(items)))
	return err
}

func (s *Instrumented[T]) Delete(ctx context.Context, items ...T) error {
	start := time.Now()
	err := s.src.Delete(ctx, items...)
	s.observe(ctx, "delete", start, err, slog.Int("n", len(items)))
	return err
}

func (s *Instrumented[T]) Count(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.src.Count(ctx)
	s.observe(ctx, "count", start, err)
	return n, err
}

func (s *Instrumented[T]) Extents(ctx context.Context) (geom.Envelope, error) {
	start := time.Now()
	env, err := s.src.Extents(ctx)
	s.observe(ctx, "extents", start, err)
	return env, err
}

func (s *Instrumented[T]) Invalidate() {
	if inv, ok := s.src.(Invalidator); ok {
		inv.Invalidate()
	}
}
