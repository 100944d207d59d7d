// Package codec converts between the internal geometry tree and the external nested-array form.
package codec

import (
	"fmt"
	"strings"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

// Scheme fixes the ordinate order and naming of external coordinates.
type Scheme uint8

const (
	Regular2D Scheme = iota
	Projected2D
	Geographic2D
	Regular3D
	Projected3D
	Geographic3D
)

var schemeNames = [...]string{
	Regular2D:    "regular2d",
	Projected2D:  "projected2d",
	Geographic2D: "geographic2d",
	Regular3D:    "regular3d",
	Projected3D:  "projected3d",
	Geographic3D: "geographic3d",
}

func (s Scheme) String() string {
	if int(s) < len(schemeNames) {
		return schemeNames[s]
	}
	return fmt.Sprintf("Scheme(%d)", uint8(s))
}

func ParseScheme(name string) (Scheme, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, v := range schemeNames {
		if v == n {
			return Scheme(i), nil
		}
	}
	return 0, fmt.Errorf("unknown coordinate scheme %q", name)
}

func (s Scheme) Is3D() bool { return s >= Regular3D }

func (s Scheme) IsGeographic() bool { return s == Geographic2D || s == Geographic3D }

func (s Scheme) Dims() int {
	if s.Is3D() {
		return 3
	}
	return 2
}

// AxisNames lists the external ordinate names in wire order.
func (s Scheme) AxisNames() []string {
	switch s {
	case Projected2D:
		return []string{"easting", "northing"}
	case Projected3D:
		return []string{"easting", "northing", "height"}
	case Geographic2D:
		return []string{"latitude", "longitude"}
	case Geographic3D:
		return []string{"latitude", "longitude", "altitude"}
	case Regular3D:
		return []string{"x", "y", "z"}
	default:
		return []string{"x", "y"}
	}
}

// Position is one external coordinate, ordered by its scheme.
type Position []float64

// ToExternal never fails. 3D schemes write z as 0 for 2D input; 2D schemes drop z.
func ToExternal(c geom.Coordinate, s Scheme) Position {
	a, b := c.X, c.Y
	if s.IsGeographic() {
		a, b = c.Y, c.X
	}
	if s.Is3D() {
		return Position{a, b, c.Z}
	}
	return Position{a, b}
}

// ToInternal requires every ordinate the scheme declares; extra ordinates are ignored.
func ToInternal(p Position, s Scheme) (geom.Coordinate, error) {
	if len(p) < s.Dims() {
		return geom.Coordinate{}, &ConversionError{
			Reason: Malformed,
			Detail: fmt.Sprintf("%s position needs %d ordinates (%s), got %d",
				s, s.Dims(), strings.Join(s.AxisNames(), ","), len(p)),
		}
	}
	x, y := p[0], p[1]
	if s.IsGeographic() {
		x, y = p[1], p[0]
	}
	if s.Is3D() {
		return geom.XYZ(x, y, p[2]), nil
	}
	return geom.XY(x, y), nil
}
