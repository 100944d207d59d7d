package projection

import (
	"errors"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

// ToFeatureCollection encodes every row as a GeoJSON feature with the row id as feature id.
// Geometries keep internal axis order (x, y).
func ToFeatureCollection(t *Table) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	var errs []error
	for i, r := range t.Rows {
		g, err := geom.ToOrb(r.Geometry)
		if err != nil {
			errs = append(errs, &RowError{Index: i, ID: r.ID, Err: err})
			continue
		}
		f := geojson.NewFeature(g)
		f.ID = r.ID
		for c, col := range t.Schema.Columns {
			f.Properties[col.Name] = plain(r.Values[c])
		}
		fc.Append(f)
	}
	return fc, errors.Join(errs...)
}
