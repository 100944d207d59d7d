package codec

import (
	"strconv"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

type Option func(*Converter)

// WithSRID binds the converter to a coordinate system other than WGS84.
func WithSRID(srid int) Option {
	return func(c *Converter) { c.srid = srid }
}

// WithCRS makes ToExternal emit a named crs member on the top-level geometry.
func WithCRS() Option {
	return func(c *Converter) { c.emitCRS = true }
}

// Converter encodes and decodes geometries for exactly one scheme and one SRID.
// It holds no mutable state and is safe for concurrent use.
type Converter struct {
	scheme  Scheme
	srid    int
	emitCRS bool
}

func NewConverter(s Scheme, opts ...Option) *Converter {
	c := &Converter{scheme: s, srid: geom.WGS84}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Converter) Scheme() Scheme { return c.scheme }
func (c *Converter) SRID() int      { return c.srid }

func (c *Converter) ToExternal(g geom.Geometry) (ExternalGeometry, error) {
	if geom.IsNil(g) {
		return ExternalGeometry{}, malformed("nil geometry")
	}
	if err := c.checkSRID(g); err != nil {
		return ExternalGeometry{}, err
	}
	if err := geom.Validate(g); err != nil {
		return ExternalGeometry{}, &ConversionError{Reason: Malformed, Got: g.Kind().String(), Err: err}
	}
	ext := c.encode(g)
	if c.emitCRS {
		ext.CRS = NamedCRS(c.srid)
	}
	return ext, nil
}

func (c *Converter) ToInternal(ext ExternalGeometry) (geom.Geometry, error) {
	if ext.CRS != nil {
		srid, ok := ext.CRS.SRID()
		if !ok || srid != c.srid {
			return nil, &ConversionError{
				Reason: WrongSRID,
				Want:   strconv.Itoa(c.srid),
				Got:    ext.CRS.Properties.Name,
			}
		}
	}
	g, err := c.decode(ext)
	if err != nil {
		return nil, err
	}
	if err := geom.Validate(g); err != nil {
		return nil, &ConversionError{Reason: Malformed, Got: ext.Type, Err: err}
	}
	return g, nil
}

// EnvelopeToExternalPolygon encodes env as a closed counter-clockwise 5-point ring.
func (c *Converter) EnvelopeToExternalPolygon(env geom.Envelope) (ExternalGeometry, error) {
	if env.IsEmpty() {
		return ExternalGeometry{}, malformed("empty envelope has no polygon")
	}
	return c.ToExternal(geom.EnvelopePolygon(c.srid, env))
}

// Bounds returns the envelope of ext in internal axis order.
func (c *Converter) Bounds(ext ExternalGeometry) (geom.Envelope, error) {
	g, err := c.decode(ext)
	if err != nil {
		return geom.EmptyEnvelope(), err
	}
	return g.Envelope(), nil
}

func (c *Converter) checkSRID(g geom.Geometry) error { return CheckSRID(c.srid, g) }

// CheckSRID fails with a WrongSRID ConversionError unless g and every collection member carry srid.
func CheckSRID(srid int, g geom.Geometry) error {
	if geom.IsNil(g) {
		return malformed("nil geometry")
	}
	if g.SRID() != srid {
		return &ConversionError{
			Reason: WrongSRID,
			Want:   strconv.Itoa(srid),
			Got:    strconv.Itoa(g.SRID()),
		}
	}
	if col, ok := geom.Value(g).(geom.Collection); ok {
		for _, m := range col.Geometries {
			if geom.IsNil(m) {
				return malformed("nil collection member")
			}
			if err := CheckSRID(srid, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Converter) encode(g geom.Geometry) ExternalGeometry {
	ext := ExternalGeometry{Type: g.Kind().String()}
	switch v := geom.Value(g).(type) {
	case geom.Point:
		ext.Coordinates = ToExternal(v.Coord, c.scheme)
	case geom.LineString:
		ext.Coordinates = c.positions(v.Coords)
	case geom.Polygon:
		ext.Coordinates = c.rings(v.Rings())
	case geom.MultiPoint:
		ext.Coordinates = c.positions(v.Points)
	case geom.MultiLineString:
		ext.Coordinates = c.rings(v.Lines)
	case geom.MultiPolygon:
		polys := make([][][]Position, len(v.Polygons))
		for i, p := range v.Polygons {
			polys[i] = c.rings(p.Rings())
		}
		ext.Coordinates = polys
	case geom.Collection:
		ext.Geometries = make([]ExternalGeometry, len(v.Geometries))
		for i, m := range v.Geometries {
			ext.Geometries[i] = c.encode(m)
		}
	}
	return ext
}

func (c *Converter) positions(cs []geom.Coordinate) []Position {
	out := make([]Position, len(cs))
	for i, co := range cs {
		out[i] = ToExternal(co, c.scheme)
	}
	return out
}

func (c *Converter) rings(rs [][]geom.Coordinate) [][]Position {
	out := make([][]Position, len(rs))
	for i, r := range rs {
		out[i] = c.positions(r)
	}
	return out
}

func (c *Converter) decode(ext ExternalGeometry) (geom.Geometry, error) {
	kind, ok := geom.ParseKind(ext.Type)
	if !ok {
		return nil, &ConversionError{Reason: UnknownType, Got: strconv.Quote(ext.Type)}
	}
	switch kind {
	case geom.KindPoint:
		p, ok := asPosition(ext.Coordinates)
		if !ok {
			return nil, shapeErr(ext)
		}
		co, err := ToInternal(p, c.scheme)
		if err != nil {
			return nil, err
		}
		return geom.NewPoint(c.srid, co), nil

	case geom.KindLineString, geom.KindMultiPoint:
		ps, ok := asPositions(ext.Coordinates)
		if !ok {
			return nil, shapeErr(ext)
		}
		cs, err := c.coords(ps)
		if err != nil {
			return nil, err
		}
		if kind == geom.KindLineString {
			return geom.NewLineString(c.srid, cs...), nil
		}
		return geom.NewMultiPoint(c.srid, cs...), nil

	case geom.KindPolygon, geom.KindMultiLineString:
		rs, ok := asRings(ext.Coordinates)
		if !ok {
			return nil, shapeErr(ext)
		}
		parts, err := c.coordRings(rs)
		if err != nil {
			return nil, err
		}
		if kind == geom.KindMultiLineString {
			return geom.NewMultiLineString(c.srid, parts...), nil
		}
		if len(parts) == 0 {
			return nil, malformed("polygon without shell")
		}
		return newPolygon(c.srid, parts), nil

	case geom.KindMultiPolygon:
		ps, ok := asPolygons(ext.Coordinates)
		if !ok {
			return nil, shapeErr(ext)
		}
		polys := make([]geom.Polygon, 0, len(ps))
		for i, rs := range ps {
			parts, err := c.coordRings(rs)
			if err != nil {
				return nil, err
			}
			if len(parts) == 0 {
				return nil, malformed("multipolygon member %d without shell", i)
			}
			polys = append(polys, newPolygon(c.srid, parts))
		}
		return geom.NewMultiPolygon(c.srid, polys...), nil

	default:
		members := make([]geom.Geometry, 0, len(ext.Geometries))
		for _, m := range ext.Geometries {
			g, err := c.decode(m)
			if err != nil {
				return nil, err
			}
			members = append(members, g)
		}
		return geom.NewCollection(c.srid, members...), nil
	}
}

func (c *Converter) coords(ps []Position) ([]geom.Coordinate, error) {
	out := make([]geom.Coordinate, len(ps))
	for i, p := range ps {
		co, err := ToInternal(p, c.scheme)
		if err != nil {
			return nil, err
		}
		out[i] = co
	}
	return out, nil
}

func (c *Converter) coordRings(rs [][]Position) ([][]geom.Coordinate, error) {
	out := make([][]geom.Coordinate, len(rs))
	for i, r := range rs {
		cs, err := c.coords(r)
		if err != nil {
			return nil, err
		}
		out[i] = cs
	}
	return out, nil
}

func newPolygon(srid int, parts [][]geom.Coordinate) geom.Polygon {
	if len(parts) == 1 {
		return geom.NewPolygon(srid, parts[0])
	}
	return geom.NewPolygon(srid, parts[0], parts[1:]...)
}

func shapeErr(ext ExternalGeometry) *ConversionError {
	return malformed("%s coordinates have shape %T", ext.Type, ext.Coordinates)
}

// The as* helpers accept both the codec's own types and plain float slices built by hand.

func asPosition(v any) (Position, bool) {
	switch t := v.(type) {
	case Position:
		return t, true
	case []float64:
		return Position(t), true
	}
	return nil, false
}

func asPositions(v any) ([]Position, bool) {
	switch t := v.(type) {
	case []Position:
		return t, true
	case [][]float64:
		out := make([]Position, len(t))
		for i, p := range t {
			out[i] = p
		}
		return out, true
	}
	return nil, false
}

func asRings(v any) ([][]Position, bool) {
	switch t := v.(type) {
	case [][]Position:
		return t, true
	case [][][]float64:
		out := make([][]Position, len(t))
		for i, r := range t {
			out[i], _ = asPositions(r)
		}
		return out, true
	}
	return nil, false
}

func asPolygons(v any) ([][][]Position, bool) {
	switch t := v.(type) {
	case [][][]Position:
		return t, true
	case [][][][]float64:
		out := make([][][]Position, len(t))
		for i, p := range t {
			out[i], _ = asRings(p)
		}
		return out, true
	}
	return nil, false
}
