package geom

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// primitives is a geometry flattened into the three shapes the predicate understands.
type primitives struct {
	points []Coordinate
	lines  [][]Coordinate
	polys  []Polygon
}

func flatten(g Geometry, out *primitives) {
	if IsNil(g) {
		return
	}
	switch v := Value(g).(type) {
	case Point:
		if !v.IsEmpty() {
			out.points = append(out.points, v.Coord)
		}
	case LineString:
		out.addLine(v.Coords)
	case Polygon:
		if len(v.Shell) > 0 {
			out.polys = append(out.polys, v)
		}
	case MultiPoint:
		out.points = append(out.points, v.Points...)
	case MultiLineString:
		for _, l := range v.Lines {
			out.addLine(l)
		}
	case MultiPolygon:
		for _, p := range v.Polygons {
			if len(p.Shell) > 0 {
				out.polys = append(out.polys, p)
			}
		}
	case Collection:
		for _, m := range v.Geometries {
			flatten(m, out)
		}
	}
}

func (p *primitives) addLine(cs []Coordinate) {
	switch len(cs) {
	case 0:
	case 1:
		p.points = append(p.points, cs[0])
	default:
		p.lines = append(p.lines, cs)
	}
}

// Intersects reports whether a and b share at least one point. Boundaries count.
func Intersects(a, b Geometry) bool {
	if IsNil(a) || IsNil(b) || a.IsEmpty() || b.IsEmpty() {
		return false
	}
	if !a.Envelope().Intersects(b.Envelope()) {
		return false
	}

	var pa, pb primitives
	flatten(a, &pa)
	flatten(b, &pb)

	for _, p := range pa.points {
		if pb.coversPoint(p) {
			return true
		}
	}
	for _, p := range pb.points {
		if pa.coversPoint(p) {
			return true
		}
	}
	for _, l := range pa.lines {
		if pb.touchesLine(l) {
			return true
		}
	}
	for _, l := range pb.lines {
		for _, poly := range pa.polys {
			if lineTouchesPolygon(l, poly) {
				return true
			}
		}
	}
	for _, x := range pa.polys {
		for _, y := range pb.polys {
			if polygonsIntersect(x, y) {
				return true
			}
		}
	}
	return false
}

func (p *primitives) coversPoint(c Coordinate) bool {
	for _, q := range p.points {
		if q.Equal2D(c) {
			return true
		}
	}
	for _, l := range p.lines {
		if onPath(l, c) {
			return true
		}
	}
	for _, poly := range p.polys {
		if polygonCovers(poly, c) {
			return true
		}
	}
	return false
}

// touchesLine checks l against every line and polygon of p; points were handled separately.
func (p *primitives) touchesLine(l []Coordinate) bool {
	for _, m := range p.lines {
		if pathsCross(l, m) {
			return true
		}
	}
	for _, poly := range p.polys {
		if lineTouchesPolygon(l, poly) {
			return true
		}
	}
	return false
}

func lineTouchesPolygon(l []Coordinate, poly Polygon) bool {
	for _, c := range l {
		if polygonCovers(poly, c) {
			return true
		}
	}
	for _, r := range poly.Rings() {
		if pathsCross(l, r) {
			return true
		}
	}
	return false
}

func polygonsIntersect(a, b Polygon) bool {
	if !a.Envelope().Intersects(b.Envelope()) {
		return false
	}
	for _, ra := range a.Rings() {
		for _, rb := range b.Rings() {
			if pathsCross(ra, rb) {
				return true
			}
		}
	}
	// no boundary contact: either one contains the other or they are disjoint
	return polygonCovers(b, a.Shell[0]) || polygonCovers(a, b.Shell[0])
}

// polygonCovers is point-in-polygon with the boundary (shell and holes) counted as inside.
func polygonCovers(poly Polygon, c Coordinate) bool {
	pt := orb.Point{c.X, c.Y}
	if !planar.RingContains(toRing(poly.Shell), pt) {
		return false
	}
	for _, h := range poly.Holes {
		if planar.RingContains(toRing(h), pt) && !onPath(h, c) {
			return false
		}
	}
	return true
}

func onPath(path []Coordinate, c Coordinate) bool {
	for i := 0; i+1 < len(path); i++ {
		if onSegment(path[i], path[i+1], c) {
			return true
		}
	}
	return false
}

func pathsCross(a, b []Coordinate) bool {
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

func orient(a, b, c Coordinate) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func within(a, b, v float64) bool {
	if a > b {
		a, b = b, a
	}
	return a <= v && v <= b
}

func onSegment(a, b, p Coordinate) bool {
	return orient(a, b, p) == 0 && within(a.X, b.X, p.X) && within(a.Y, b.Y, p.Y)
}

func segmentsIntersect(p1, p2, q1, q2 Coordinate) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return onSegment(q1, q2, p1) || onSegment(q1, q2, p2) ||
		onSegment(p1, p2, q1) || onSegment(p1, p2, q2)
}
