// Package cellindex maps H3 cells to the ids whose bounds touch them, stored as Redis sets.
package cellindex

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mohammed-shakir/spatial-entities/internal/cache/keys"
	"github.com/mohammed-shakir/spatial-entities/internal/cache/redisstore"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/mapper"
)

type Index struct {
	cli    *redisstore.Client
	mapper mapper.Interface
	res    int
}

func New(cli *redisstore.Client, m mapper.Interface, res int) *Index {
	return &Index{cli: cli, mapper: m, res: res}
}

// StageAdd queues id into every cell env touches, or into the wide set.
func (ix *Index) StageAdd(b *redisstore.Batch, layer string, id uint64, env geom.Envelope) error {
	return ix.stage(layer, env, func(key string) { b.SAdd(key, strconv.FormatUint(id, 10)) })
}

// StageRemove undoes StageAdd for the same env.
func (ix *Index) StageRemove(b *redisstore.Batch, layer string, id uint64, env geom.Envelope) error {
	return ix.stage(layer, env, func(key string) { b.SRem(key, strconv.FormatUint(id, 10)) })
}

func (ix *Index) stage(layer string, env geom.Envelope, apply func(key string)) error {
	if env.IsEmpty() {
		return nil
	}
	c, err := ix.mapper.Cover(env, ix.res)
	if err != nil {
		return fmt.Errorf("cellindex cover %s: %w", env, err)
	}
	if c.Wide {
		apply(keys.Wide(layer, ix.res))
		return nil
	}
	for _, cell := range c.Cells {
		apply(keys.Cell(layer, ix.res, cell))
	}
	return nil
}

// Candidates returns every id that may overlap env. An envelope too large to cover falls back to
// the full id set.
func (ix *Index) Candidates(ctx context.Context, layer string, env geom.Envelope) ([]string, error) {
	if env.IsEmpty() {
		return nil, nil
	}
	c, err := ix.mapper.Cover(env, ix.res)
	if err != nil {
		return nil, fmt.Errorf("cellindex cover %s: %w", env, err)
	}
	if c.Wide {
		ids, err := ix.cli.SMembers(ctx, keys.IDs(layer))
		if err != nil {
			return nil, fmt.Errorf("cellindex all ids: %w", err)
		}
		return ids, nil
	}
	ks := make([]string, 0, len(c.Cells)+1)
	for _, cell := range c.Cells {
		ks = append(ks, keys.Cell(layer, ix.res, cell))
	}
	ks = append(ks, keys.Wide(layer, ix.res))
	ids, err := ix.cli.SUnion(ctx, ks...)
	if err != nil {
		return nil, fmt.Errorf("cellindex union %d cells: %w", len(c.Cells), err)
	}
	return ids, nil
}
