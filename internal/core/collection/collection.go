// Package collection exposes a typed source as a layer of GeoJSON features, hiding the entity type
// from the HTTP layer.
package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/entity"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/core/projection"
	"github.com/mohammed-shakir/spatial-entities/internal/core/spatial"
)

var errFeatureID = errors.New("feature id must be a non-negative integer")

type Collection[T any] struct {
	name   string
	src    spatial.Source[T]
	desc   *entity.Descriptor[T]
	conv   *codec.Converter
	schema projection.Schema
}

// New serves src as layer name. conv fixes the scheme and SRID of geometry query parameters.
func New[T any](name string, src spatial.Source[T], desc *entity.Descriptor[T], conv *codec.Converter) *Collection[T] {
	return &Collection[T]{name: name, src: src, desc: desc, conv: conv, schema: projection.SchemaOf(desc)}
}

func (c *Collection[T]) Name() string                { return c.name }
func (c *Collection[T]) Schema() projection.Schema   { return c.schema }
func (c *Collection[T]) Converter() *codec.Converter { return c.conv }
func (c *Collection[T]) State() spatial.State        { return c.src.State() }

// Source is the decorated source behind the collection.
func (c *Collection[T]) Source() spatial.Source[T] { return c.src }

func (c *Collection[T]) Count(ctx context.Context) (int, error) { return c.src.Count(ctx) }

func (c *Collection[T]) Extents(ctx context.Context) (geom.Envelope, error) {
	return c.src.Extents(ctx)
}

func (c *Collection[T]) SelectEnvelope(ctx context.Context, env geom.Envelope) (*projection.Table, error) {
	items, err := c.src.SelectEnvelope(ctx, env)
	if err != nil {
		return nil, err
	}
	return projection.ProjectAll(items, c.desc)
}

// SelectExternal decodes ext with the collection's converter and selects by the result.
func (c *Collection[T]) SelectExternal(ctx context.Context, ext codec.ExternalGeometry) (*projection.Table, error) {
	g, err := c.conv.ToInternal(ext)
	if err != nil {
		return nil, err
	}
	items, err := c.src.SelectGeometry(ctx, g)
	if err != nil {
		return nil, err
	}
	return projection.ProjectAll(items, c.desc)
}

func (c *Collection[T]) SelectID(ctx context.Context, id uint64) (*projection.Table, error) {
	it, err := c.src.SelectID(ctx, id)
	if err != nil {
		return nil, err
	}
	return projection.ProjectAll([]T{it}, c.desc)
}

// Insert decodes every feature first; nothing is written if one fails to decode.
func (c *Collection[T]) Insert(ctx context.Context, fc *geojson.FeatureCollection) (int, error) {
	if fc == nil || len(fc.Features) == 0 {
		return 0, nil
	}
	items := make([]T, 0, len(fc.Features))
	var errs []error
	for i, f := range fc.Features {
		it, err := c.Decode(f)
		if err != nil {
			errs = append(errs, fmt.Errorf("feature %d: %w", i, err))
			continue
		}
		items = append(items, it)
	}
	if err := errors.Join(errs...); err != nil {
		return 0, err
	}
	if err := c.src.Insert(ctx, items...); err != nil {
		return 0, err
	}
	return len(items), nil
}

// Decode builds an entity from a GeoJSON feature. Properties are matched to attributes by name;
// unknown properties are ignored.
func (c *Collection[T]) Decode(f *geojson.Feature) (T, error) {
	var e T
	if f == nil {
		return e, &spatial.ValidationError{Layer: c.name, Reason: errors.New("nil feature")}
	}
	id, err := featureID(f.ID)
	if err != nil {
		return e, &spatial.ValidationError{Layer: c.name, Reason: err}
	}
	if err := c.desc.SetID(&e, id); err != nil {
		return e, &spatial.ValidationError{Layer: c.name, ID: id, Reason: err}
	}
	if f.Geometry == nil {
		return e, &spatial.ValidationError{Layer: c.name, ID: id, Reason: entity.ErrNoGeometry}
	}
	g, err := geom.FromOrb(f.Geometry, c.conv.SRID())
	if err != nil {
		return e, &spatial.ValidationError{Layer: c.name, ID: id, Reason: err}
	}
	if err := c.desc.SetGeometry(&e, g); err != nil {
		return e, &spatial.ValidationError{Layer: c.name, ID: id, Reason: err}
	}
	for i, col := range c.schema.Columns {
		v, ok := f.Properties[col.Name]
		if !ok {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return e, &spatial.ValidationError{Layer: c.name, ID: id, Reason: err}
		}
		if err := c.desc.SetAttribute(&e, i, raw); err != nil {
			return e, &spatial.ValidationError{Layer: c.name, ID: id, Reason: err}
		}
	}
	return e, nil
}

func featureID(v any) (uint64, error) {
	switch id := v.(type) {
	case float64:
		if id < 0 || id != math.Trunc(id) || id >= 1<<64 {
			return 0, errFeatureID
		}
		return uint64(id), nil
	case string:
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return 0, errFeatureID
		}
		return n, nil
	case uint64:
		return id, nil
	case int:
		if id < 0 {
			return 0, errFeatureID
		}
		return uint64(id), nil
	}
	return 0, errFeatureID
}
