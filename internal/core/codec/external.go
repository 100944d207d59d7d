package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExternalGeometry is the GeoJSON-shaped geometry stored by remote backends and served over HTTP.
//
// Coordinates holds a Position for Point, []Position for LineString and MultiPoint,
// [][]Position for Polygon and MultiLineString, and [][][]Position for MultiPolygon.
// GeometryCollection members live in Geometries.
type ExternalGeometry struct {
	Type        string
	Coordinates any
	Geometries  []ExternalGeometry
	CRS         *CRS
}

// CRS is the named-CRS member, e.g. {"type":"name","properties":{"name":"EPSG:4326"}}.
type CRS struct {
	Type       string        `json:"type"`
	Properties CRSProperties `json:"properties"`
}

type CRSProperties struct {
	Name string `json:"name"`
}

func NamedCRS(srid int) *CRS {
	return &CRS{Type: "name", Properties: CRSProperties{Name: "EPSG:" + strconv.Itoa(srid)}}
}

// SRID parses the EPSG code out of the name; ok is false for anything else.
func (c *CRS) SRID() (int, bool) {
	if c == nil {
		return 0, false
	}
	name := c.Properties.Name
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	n, err := strconv.Atoi(strings.TrimSpace(name))
	if err != nil {
		return 0, false
	}
	return n, true
}

type wireGeometry struct {
	Type        string             `json:"type"`
	Coordinates json.RawMessage    `json:"coordinates,omitempty"`
	Geometries  []ExternalGeometry `json:"geometries,omitempty"`
	CRS         *CRS               `json:"crs,omitempty"`
}

func (g ExternalGeometry) MarshalJSON() ([]byte, error) {
	w := wireGeometry{Type: g.Type, CRS: g.CRS}
	if g.Type == "GeometryCollection" {
		w.Geometries = g.Geometries
		if w.Geometries == nil {
			w.Geometries = []ExternalGeometry{}
		}
	} else {
		raw, err := json.Marshal(g.Coordinates)
		if err != nil {
			return nil, fmt.Errorf("marshal %s coordinates: %w", g.Type, err)
		}
		w.Coordinates = raw
	}
	return json.Marshal(w)
}

func (g *ExternalGeometry) UnmarshalJSON(data []byte) error {
	var w wireGeometry
	if err := json.Unmarshal(data, &w); err != nil {
		return &ConversionError{Reason: Malformed, Detail: "geometry json", Err: err}
	}
	out := ExternalGeometry{Type: w.Type, Geometries: w.Geometries, CRS: w.CRS}

	var err error
	switch w.Type {
	case "Point":
		var p Position
		err = decodeCoords(w.Coordinates, &p)
		out.Coordinates = p
	case "LineString", "MultiPoint":
		var ps []Position
		err = decodeCoords(w.Coordinates, &ps)
		out.Coordinates = ps
	case "Polygon", "MultiLineString":
		var rs [][]Position
		err = decodeCoords(w.Coordinates, &rs)
		out.Coordinates = rs
	case "MultiPolygon":
		var ps [][][]Position
		err = decodeCoords(w.Coordinates, &ps)
		out.Coordinates = ps
	case "GeometryCollection":
	default:
		// keep the raw payload so the converter reports the unknown discriminator
		if len(w.Coordinates) > 0 {
			var raw any
			_ = json.Unmarshal(w.Coordinates, &raw)
			out.Coordinates = raw
		}
	}
	if err != nil {
		return &ConversionError{Reason: Malformed, Detail: w.Type + " coordinates", Err: err}
	}
	*g = out
	return nil
}

func decodeCoords(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing coordinates")
	}
	return json.Unmarshal(raw, dst)
}
