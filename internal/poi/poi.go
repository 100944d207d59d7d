// Package poi holds the demo layers served by spatiald.
package poi

import (
	"fmt"
	"math/rand/v2"

	"github.com/mohammed-shakir/spatial-entities/internal/core/entity"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

// POI is a point of interest.
type POI struct {
	ID       uint64     `spatial:"id"`
	Location geom.Point `spatial:"geometry"`
	Name     string     `spatial:"attr,ordinal=1,unique,desc=Display name"`
	Category string     `spatial:"attr,ordinal=2"`
	Rating   *float64   `spatial:"attr,ordinal=3,nullable"`
}

// Zone is an arbitrary area, usually a polygon.
type Zone struct {
	ID    uint64        `spatial:"id"`
	Shape geom.Geometry `spatial:"geometry"`
	Name  string        `spatial:"attr,ordinal=1"`
	Level int           `spatial:"attr,ordinal=2,title=Admin level"`
}

var (
	POIs  = entity.MustFor[POI]()
	Zones = entity.MustFor[Zone]()
)

func NewPOI(id uint64, x, y float64, name, category string) POI {
	return POI{ID: id, Location: geom.NewPoint(geom.WGS84, geom.XY(x, y)), Name: name, Category: category}
}

var categories = []string{"cafe", "museum", "park", "station", "shop"}

// Random returns n POIs scattered over env, ids starting at firstID.
func Random(r *rand.Rand, env geom.Envelope, firstID uint64, n int) []POI {
	out := make([]POI, n)
	for i := range out {
		x := env.MinX + r.Float64()*env.Width()
		y := env.MinY + r.Float64()*env.Height()
		id := firstID + uint64(i)
		out[i] = NewPOI(id, x, y, fmt.Sprintf("poi-%d", id), categories[r.IntN(len(categories))])
		if r.IntN(3) > 0 {
			v := float64(r.IntN(50)) / 10
			out[i].Rating = &v
		}
	}
	return out
}

// Box returns a rectangular zone.
func Box(id uint64, env geom.Envelope, name string, level int) Zone {
	return Zone{ID: id, Shape: geom.EnvelopePolygon(geom.WGS84, env), Name: name, Level: level}
}
