// Package geom holds the internal geometry tree shared by codecs, sources and projections.
package geom

import (
	"fmt"
	"math"
)

// WGS84 is the default spatial reference of every converter and source.
const WGS84 = 4326

type Kind uint8

const (
	KindPoint Kind = iota + 1
	KindLineString
	KindPolygon
	KindMultiPoint
	KindMultiLineString
	KindMultiPolygon
	KindCollection
)

var kindNames = map[Kind]string{
	KindPoint:           "Point",
	KindLineString:      "LineString",
	KindPolygon:         "Polygon",
	KindMultiPoint:      "MultiPoint",
	KindMultiLineString: "MultiLineString",
	KindMultiPolygon:    "MultiPolygon",
	KindCollection:      "GeometryCollection",
}

// String returns the external type discriminator.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

type Coordinate struct {
	X, Y, Z float64
	HasZ    bool
}

func XY(x, y float64) Coordinate { return Coordinate{X: x, Y: y} }

func XYZ(x, y, z float64) Coordinate { return Coordinate{X: x, Y: y, Z: z, HasZ: true} }

func (c Coordinate) Equal2D(o Coordinate) bool { return c.X == o.X && c.Y == o.Y }

func (c Coordinate) String() string {
	if c.HasZ {
		return fmt.Sprintf("(%g %g %g)", c.X, c.Y, c.Z)
	}
	return fmt.Sprintf("(%g %g)", c.X, c.Y)
}

type Geometry interface {
	Kind() Kind
	SRID() int
	Envelope() Envelope
	IsEmpty() bool
}

type Point struct {
	Coord Coordinate
	srid  int
}

func NewPoint(srid int, c Coordinate) Point { return Point{Coord: c, srid: srid} }

func (p Point) Kind() Kind         { return KindPoint }
func (p Point) SRID() int          { return p.srid }
func (p Point) IsEmpty() bool      { return math.IsNaN(p.Coord.X) || math.IsNaN(p.Coord.Y) }
func (p Point) Envelope() Envelope { return envelopeOf(p.Coord) }

type LineString struct {
	Coords []Coordinate
	srid   int
}

func NewLineString(srid int, cs ...Coordinate) LineString {
	return LineString{Coords: cs, srid: srid}
}

func (l LineString) Kind() Kind         { return KindLineString }
func (l LineString) SRID() int          { return l.srid }
func (l LineString) IsEmpty() bool      { return len(l.Coords) == 0 }
func (l LineString) Envelope() Envelope { return envelopeOf(l.Coords...) }

// IsClosed reports whether the line is a ring: first and last coordinates coincide.
func (l LineString) IsClosed() bool { return isClosed(l.Coords) }

// Polygon is a shell ring plus zero or more hole rings.
type Polygon struct {
	Shell []Coordinate
	Holes [][]Coordinate
	srid  int
}

func NewPolygon(srid int, shell []Coordinate, holes ...[]Coordinate) Polygon {
	return Polygon{Shell: shell, Holes: holes, srid: srid}
}

func (p Polygon) Kind() Kind         { return KindPolygon }
func (p Polygon) SRID() int          { return p.srid }
func (p Polygon) IsEmpty() bool      { return len(p.Shell) == 0 }
func (p Polygon) Envelope() Envelope { return envelopeOf(p.Shell...) }

// Rings returns the shell followed by the holes.
func (p Polygon) Rings() [][]Coordinate {
	if len(p.Shell) == 0 {
		return nil
	}
	out := make([][]Coordinate, 0, 1+len(p.Holes))
	out = append(out, p.Shell)
	return append(out, p.Holes...)
}

type MultiPoint struct {
	Points []Coordinate
	srid   int
}

func NewMultiPoint(srid int, cs ...Coordinate) MultiPoint {
	return MultiPoint{Points: cs, srid: srid}
}

func (m MultiPoint) Kind() Kind         { return KindMultiPoint }
func (m MultiPoint) SRID() int          { return m.srid }
func (m MultiPoint) IsEmpty() bool      { return len(m.Points) == 0 }
func (m MultiPoint) Envelope() Envelope { return envelopeOf(m.Points...) }

type MultiLineString struct {
	Lines [][]Coordinate
	srid  int
}

func NewMultiLineString(srid int, lines ...[]Coordinate) MultiLineString {
	return MultiLineString{Lines: lines, srid: srid}
}

func (m MultiLineString) Kind() Kind    { return KindMultiLineString }
func (m MultiLineString) SRID() int     { return m.srid }
func (m MultiLineString) IsEmpty() bool { return len(m.Lines) == 0 }
func (m MultiLineString) Envelope() Envelope {
	env := EmptyEnvelope()
	for _, l := range m.Lines {
		env = env.Union(envelopeOf(l...))
	}
	return env
}

type MultiPolygon struct {
	Polygons []Polygon
	srid     int
}

// NewMultiPolygon stamps srid onto every member polygon.
func NewMultiPolygon(srid int, polys ...Polygon) MultiPolygon {
	out := make([]Polygon, len(polys))
	for i, p := range polys {
		p.srid = srid
		out[i] = p
	}
	return MultiPolygon{Polygons: out, srid: srid}
}

func (m MultiPolygon) Kind() Kind    { return KindMultiPolygon }
func (m MultiPolygon) SRID() int     { return m.srid }
func (m MultiPolygon) IsEmpty() bool { return len(m.Polygons) == 0 }
func (m MultiPolygon) Envelope() Envelope {
	env := EmptyEnvelope()
	for _, p := range m.Polygons {
		env = env.Union(p.Envelope())
	}
	return env
}

type Collection struct {
	Geometries []Geometry
	srid       int
}

func NewCollection(srid int, gs ...Geometry) Collection {
	return Collection{Geometries: gs, srid: srid}
}

func (c Collection) Kind() Kind    { return KindCollection }
func (c Collection) SRID() int     { return c.srid }
func (c Collection) IsEmpty() bool { return len(c.Geometries) == 0 }
func (c Collection) Envelope() Envelope {
	env := EmptyEnvelope()
	for _, g := range c.Geometries {
		if g == nil {
			continue
		}
		env = env.Union(g.Envelope())
	}
	return env
}

// EnvelopePolygon turns env into a closed counter-clockwise ring starting at (MinX, MinY).
func EnvelopePolygon(srid int, env Envelope) Polygon {
	return NewPolygon(srid, []Coordinate{
		XY(env.MinX, env.MinY),
		XY(env.MaxX, env.MinY),
		XY(env.MaxX, env.MaxY),
		XY(env.MinX, env.MaxY),
		XY(env.MinX, env.MinY),
	})
}

// IsNil reports whether g is nil or a typed nil hidden in the interface.
func IsNil(g Geometry) bool {
	if g == nil {
		return true
	}
	switch v := g.(type) {
	case *Point:
		return v == nil
	case *LineString:
		return v == nil
	case *Polygon:
		return v == nil
	case *MultiPoint:
		return v == nil
	case *MultiLineString:
		return v == nil
	case *MultiPolygon:
		return v == nil
	case *Collection:
		return v == nil
	}
	return false
}

func isClosed(cs []Coordinate) bool {
	return len(cs) >= 2 && cs[0].Equal2D(cs[len(cs)-1])
}

func envelopeOf(cs ...Coordinate) Envelope {
	env := EmptyEnvelope()
	for _, c := range cs {
		env = env.ExpandToInclude(c)
	}
	return env
}
