// Package featurestore keeps serialized entity bodies and their bounds in Redis.
package featurestore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/spatial-entities/internal/cache/keys"
	"github.com/mohammed-shakir/spatial-entities/internal/cache/redisstore"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

const emptyBounds = "empty"

// Entry is one stored body with the envelope it was indexed under.
type Entry struct {
	Body   []byte
	Bounds geom.Envelope
}

type Store struct {
	cli *redisstore.Client
}

func New(cli *redisstore.Client) *Store {
	return &Store{cli: cli}
}

// Get returns the entries found for ids; missing ids are absent from the map.
func (s *Store) Get(ctx context.Context, layer string, ids []uint64) (map[uint64]Entry, error) {
	out := make(map[uint64]Entry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ks := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		ks = append(ks, keys.Doc(layer, id), keys.Bounds(layer, id))
	}
	raw, err := s.cli.MGet(ctx, ks)
	if err != nil {
		return nil, fmt.Errorf("featurestore MGET %d ids: %w", len(ids), err)
	}
	for i, id := range ids {
		body, ok := raw[ks[2*i]]
		if !ok {
			continue
		}
		env, err := DecodeBounds(string(raw[ks[2*i+1]]))
		if err != nil {
			return nil, fmt.Errorf("featurestore bounds of %d: %w", id, err)
		}
		out[id] = Entry{Body: body, Bounds: env}
	}
	return out, nil
}

// StagePut queues the body and bounds of id and records it in the id set.
func (s *Store) StagePut(b *redisstore.Batch, layer string, id uint64, e Entry) {
	b.Set(keys.Doc(layer, id), e.Body, 0)
	b.Set(keys.Bounds(layer, id), []byte(EncodeBounds(e.Bounds)), 0)
	b.SAdd(keys.IDs(layer), strconv.FormatUint(id, 10))
}

func (s *Store) StageRemove(b *redisstore.Batch, layer string, id uint64) {
	b.Del(keys.Doc(layer, id), keys.Bounds(layer, id))
	b.SRem(keys.IDs(layer), strconv.FormatUint(id, 10))
}

// IDs lists every stored id in no particular order.
func (s *Store) IDs(ctx context.Context, layer string) ([]uint64, error) {
	members, err := s.cli.SMembers(ctx, keys.IDs(layer))
	if err != nil {
		return nil, fmt.Errorf("featurestore ids: %w", err)
	}
	return ParseIDs(members)
}

func (s *Store) Count(ctx context.Context, layer string) (int, error) {
	n, err := s.cli.SCard(ctx, keys.IDs(layer))
	if err != nil {
		return 0, fmt.Errorf("featurestore count: %w", err)
	}
	return int(n), nil
}

// ParseIDs converts set members back to ids.
func ParseIDs(members []string) ([]uint64, error) {
	out := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id member %q: %w", m, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// EncodeBounds writes env as "minx,miny,maxx,maxy" with exact float formatting.
func EncodeBounds(env geom.Envelope) string {
	if env.IsEmpty() {
		return emptyBounds
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return f(env.MinX) + "," + f(env.MinY) + "," + f(env.MaxX) + "," + f(env.MaxY)
}

func DecodeBounds(s string) (geom.Envelope, error) {
	if s == "" || s == emptyBounds {
		return geom.EmptyEnvelope(), nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geom.EmptyEnvelope(), fmt.Errorf("bounds %q: want 4 values", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return geom.EmptyEnvelope(), fmt.Errorf("bounds %q: %w", s, err)
		}
		v[i] = f
	}
	return geom.NewEnvelope(v[0], v[1], v[2], v[3]), nil
}
