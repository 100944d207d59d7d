package geom

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// Value unwraps pointer geometries so type switches only need the value cases.
func Value(g Geometry) Geometry {
	switch v := g.(type) {
	case *Point:
		return *v
	case *LineString:
		return *v
	case *Polygon:
		return *v
	case *MultiPoint:
		return *v
	case *MultiLineString:
		return *v
	case *MultiPolygon:
		return *v
	case *Collection:
		return *v
	}
	return g
}

// ToOrb drops Z and the SRID; orb geometries are planar 2D.
func ToOrb(g Geometry) (orb.Geometry, error) {
	if IsNil(g) {
		return nil, fmt.Errorf("nil geometry")
	}
	switch v := Value(g).(type) {
	case Point:
		return toOrbPoint(v.Coord), nil
	case LineString:
		return orb.LineString(toPoints(v.Coords)), nil
	case Polygon:
		return toOrbPolygon(v), nil
	case MultiPoint:
		return orb.MultiPoint(toPoints(v.Points)), nil
	case MultiLineString:
		out := make(orb.MultiLineString, len(v.Lines))
		for i, l := range v.Lines {
			out[i] = orb.LineString(toPoints(l))
		}
		return out, nil
	case MultiPolygon:
		out := make(orb.MultiPolygon, len(v.Polygons))
		for i, p := range v.Polygons {
			out[i] = toOrbPolygon(p)
		}
		return out, nil
	case Collection:
		out := make(orb.Collection, 0, len(v.Geometries))
		for i, m := range v.Geometries {
			og, err := ToOrb(m)
			if err != nil {
				return nil, fmt.Errorf("collection member %d: %w", i, err)
			}
			out = append(out, og)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
}

// FromOrb builds a 2D geometry tagged with srid. Bounds become polygons.
func FromOrb(g orb.Geometry, srid int) (Geometry, error) {
	switch v := g.(type) {
	case orb.Point:
		return NewPoint(srid, fromOrbPoint(v)), nil
	case orb.LineString:
		return NewLineString(srid, fromPoints(v)...), nil
	case orb.Ring:
		return NewPolygon(srid, fromPoints(v)), nil
	case orb.Polygon:
		return fromOrbPolygon(v, srid), nil
	case orb.Bound:
		return EnvelopePolygon(srid, EnvelopeFromBound(v)), nil
	case orb.MultiPoint:
		return NewMultiPoint(srid, fromPoints(v)...), nil
	case orb.MultiLineString:
		lines := make([][]Coordinate, len(v))
		for i, l := range v {
			lines[i] = fromPoints(l)
		}
		return NewMultiLineString(srid, lines...), nil
	case orb.MultiPolygon:
		polys := make([]Polygon, len(v))
		for i, p := range v {
			polys[i] = fromOrbPolygon(p, srid)
		}
		return NewMultiPolygon(srid, polys...), nil
	case orb.Collection:
		gs := make([]Geometry, 0, len(v))
		for i, m := range v {
			gm, err := FromOrb(m, srid)
			if err != nil {
				return nil, fmt.Errorf("collection member %d: %w", i, err)
			}
			gs = append(gs, gm)
		}
		return NewCollection(srid, gs...), nil
	default:
		return nil, fmt.Errorf("unsupported orb geometry %T", g)
	}
}

// WKT renders g for logs and error messages.
func WKT(g Geometry) string {
	og, err := ToOrb(g)
	if err != nil {
		return "INVALID"
	}
	return wkt.MarshalString(og)
}

func toOrbPoint(c Coordinate) orb.Point { return orb.Point{c.X, c.Y} }

func fromOrbPoint(p orb.Point) Coordinate { return XY(p.X(), p.Y()) }

func toPoints(cs []Coordinate) []orb.Point {
	out := make([]orb.Point, len(cs))
	for i, c := range cs {
		out[i] = toOrbPoint(c)
	}
	return out
}

func fromPoints(ps []orb.Point) []Coordinate {
	out := make([]Coordinate, len(ps))
	for i, p := range ps {
		out[i] = fromOrbPoint(p)
	}
	return out
}

func toRing(cs []Coordinate) orb.Ring { return orb.Ring(toPoints(cs)) }

func toOrbPolygon(p Polygon) orb.Polygon {
	out := make(orb.Polygon, 0, 1+len(p.Holes))
	out = append(out, toRing(p.Shell))
	for _, h := range p.Holes {
		out = append(out, toRing(h))
	}
	return out
}

func fromOrbPolygon(p orb.Polygon, srid int) Polygon {
	if len(p) == 0 {
		return NewPolygon(srid, nil)
	}
	var holes [][]Coordinate
	for _, r := range p[1:] {
		holes = append(holes, fromPoints(r))
	}
	return NewPolygon(srid, fromPoints(p[0]), holes...)
}
