package codec

import (
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

func (c *Converter) ToPoint(g geom.Geometry) (ExternalGeometry, error) {
	return c.toKind(g, geom.KindPoint)
}

func (c *Converter) ToLineString(g geom.Geometry) (ExternalGeometry, error) {
	return c.toKind(g, geom.KindLineString)
}

func (c *Converter) ToPolygon(g geom.Geometry) (ExternalGeometry, error) {
	return c.toKind(g, geom.KindPolygon)
}

func (c *Converter) ToMultiPoint(g geom.Geometry) (ExternalGeometry, error) {
	return c.toKind(g, geom.KindMultiPoint)
}

func (c *Converter) ToMultiLineString(g geom.Geometry) (ExternalGeometry, error) {
	return c.toKind(g, geom.KindMultiLineString)
}

func (c *Converter) ToMultiPolygon(g geom.Geometry) (ExternalGeometry, error) {
	return c.toKind(g, geom.KindMultiPolygon)
}

func (c *Converter) ToCollection(g geom.Geometry) (ExternalGeometry, error) {
	return c.toKind(g, geom.KindCollection)
}

// toKind checks the kind before the SRID so both failures stay distinguishable.
func (c *Converter) toKind(g geom.Geometry, want geom.Kind) (ExternalGeometry, error) {
	if geom.IsNil(g) {
		return ExternalGeometry{}, malformed("nil geometry")
	}
	if g.Kind() != want {
		return ExternalGeometry{}, &ConversionError{Reason: WrongKind, Want: want.String(), Got: g.Kind().String()}
	}
	return c.ToExternal(g)
}

func (c *Converter) FromPoint(ext ExternalGeometry) (geom.Point, error) {
	return fromKind[geom.Point](c, ext, geom.KindPoint)
}

func (c *Converter) FromLineString(ext ExternalGeometry) (geom.LineString, error) {
	return fromKind[geom.LineString](c, ext, geom.KindLineString)
}

func (c *Converter) FromPolygon(ext ExternalGeometry) (geom.Polygon, error) {
	return fromKind[geom.Polygon](c, ext, geom.KindPolygon)
}

func (c *Converter) FromMultiPoint(ext ExternalGeometry) (geom.MultiPoint, error) {
	return fromKind[geom.MultiPoint](c, ext, geom.KindMultiPoint)
}

func (c *Converter) FromMultiLineString(ext ExternalGeometry) (geom.MultiLineString, error) {
	return fromKind[geom.MultiLineString](c, ext, geom.KindMultiLineString)
}

func (c *Converter) FromMultiPolygon(ext ExternalGeometry) (geom.MultiPolygon, error) {
	return fromKind[geom.MultiPolygon](c, ext, geom.KindMultiPolygon)
}

func (c *Converter) FromCollection(ext ExternalGeometry) (geom.Collection, error) {
	return fromKind[geom.Collection](c, ext, geom.KindCollection)
}

func fromKind[G geom.Geometry](c *Converter, ext ExternalGeometry, want geom.Kind) (G, error) {
	var zero G
	if ext.Type != want.String() {
		return zero, &ConversionError{Reason: WrongKind, Want: want.String(), Got: ext.Type}
	}
	g, err := c.ToInternal(ext)
	if err != nil {
		return zero, err
	}
	out, ok := g.(G)
	if !ok {
		return zero, &ConversionError{Reason: WrongKind, Want: want.String(), Got: g.Kind().String()}
	}
	return out, nil
}
