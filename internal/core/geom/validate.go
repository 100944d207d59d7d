package geom

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalid = errors.New("invalid geometry")

// Validate checks the structural rules: lines need two coordinates, rings must be closed with at
// least four, and members of multi geometries and collections must share the parent SRID.
func Validate(g Geometry) error {
	if IsNil(g) {
		return fmt.Errorf("%w: nil", ErrInvalid)
	}
	switch v := Value(g).(type) {
	case Point:
		if math.IsNaN(v.Coord.X) || math.IsNaN(v.Coord.Y) {
			return fmt.Errorf("%w: point has NaN ordinate", ErrInvalid)
		}
		return nil
	case LineString:
		return validateLine(v.Coords)
	case Polygon:
		return validatePolygon(v)
	case MultiPoint:
		return nil
	case MultiLineString:
		for i, l := range v.Lines {
			if err := validateLine(l); err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}
		}
		return nil
	case MultiPolygon:
		for i, p := range v.Polygons {
			if err := validatePolygon(p); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return nil
	case Collection:
		for i, m := range v.Geometries {
			if err := Validate(m); err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			if m.SRID() != v.srid {
				return fmt.Errorf("%w: member %d srid %d differs from collection srid %d",
					ErrInvalid, i, m.SRID(), v.srid)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalid, g)
	}
}

func validateLine(cs []Coordinate) error {
	if len(cs) < 2 {
		return fmt.Errorf("%w: line has %d coordinates, need at least 2", ErrInvalid, len(cs))
	}
	return nil
}

func validateRing(cs []Coordinate) error {
	if len(cs) < 4 {
		return fmt.Errorf("%w: ring has %d coordinates, need at least 4", ErrInvalid, len(cs))
	}
	if !isClosed(cs) {
		return fmt.Errorf("%w: ring is not closed", ErrInvalid)
	}
	return nil
}

func validatePolygon(p Polygon) error {
	if err := validateRing(p.Shell); err != nil {
		return fmt.Errorf("shell: %w", err)
	}
	for i, h := range p.Holes {
		if err := validateRing(h); err != nil {
			return fmt.Errorf("hole %d: %w", i, err)
		}
	}
	return nil
}
