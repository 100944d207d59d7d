package projection

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

// ErrEmptyTable is returned by WriteFlatGeobuf for a table without rows.
var ErrEmptyTable = errors.New("projection: empty table")

type FGBOptions struct {
	SRID         int
	IncludeIndex bool
	Description  string
}

type FGBOption func(*FGBOptions)

func WithSRID(srid int) FGBOption { return func(o *FGBOptions) { o.SRID = srid } }

func WithoutIndex() FGBOption { return func(o *FGBOptions) { o.IncludeIndex = false } }

func WithDescription(s string) FGBOption { return func(o *FGBOptions) { o.Description = s } }

// WriteFlatGeobuf writes the table with one column per schema attribute.
func WriteFlatGeobuf(w io.Writer, t *Table, opts ...FGBOption) error {
	o := FGBOptions{SRID: geom.WGS84, IncludeIndex: true}
	for _, fn := range opts {
		fn(&o)
	}
	if t == nil || len(t.Rows) == 0 {
		return ErrEmptyTable
	}

	geoms := make([]orb.Geometry, len(t.Rows))
	var errs []error
	for i, r := range t.Rows {
		g, err := geom.ToOrb(r.Geometry)
		if err != nil {
			errs = append(errs, &RowError{Index: i, ID: r.ID, Err: err})
			continue
		}
		geoms[i] = g
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetName(t.Schema.Table)
	if o.Description != "" {
		header.SetDescription(o.Description)
	}
	header.SetGeometryType(commonType(geoms))

	types := make([]flattypes.ColumnType, len(t.Schema.Columns))
	cols := make([]*writer.Column, len(t.Schema.Columns))
	for i, c := range t.Schema.Columns {
		types[i] = columnType(c.Type)
		col := writer.NewColumn(builder)
		col.SetName(c.Name)
		title := c.Title
		if title == "" {
			title = c.Name
		}
		col.SetTitle(title)
		col.SetType(types[i])
		col.SetNullable(c.AllowNull)
		cols[i] = col
	}
	if len(cols) > 0 {
		header.SetColumns(cols)
	}

	if o.SRID > 0 {
		crs := writer.NewCrs(builder)
		crs.SetOrg("EPSG")
		crs.SetCode(int32(o.SRID))
		header.SetCrs(crs)
	}

	gen := &rowGenerator{table: t, geoms: geoms, types: types}
	if _, err := writer.NewWriter(header, o.IncludeIndex, gen, nil).Write(w); err != nil {
		return fmt.Errorf("write flatgeobuf %s: %w", t.Schema.Table, err)
	}
	return nil
}

type rowGenerator struct {
	table *Table
	geoms []orb.Geometry
	types []flattypes.ColumnType
	next  int
}

func (g *rowGenerator) Generate() *writer.Feature {
	for g.next < len(g.geoms) {
		i := g.next
		g.next++
		builder := flatbuffers.NewBuilder(1024)
		fg := toFGB(g.geoms[i], builder)
		if fg == nil {
			continue
		}
		f := writer.NewFeature(builder)
		f.SetGeometry(fg)
		if props := encodeValues(g.table.Rows[i].Values, g.types); len(props) > 0 {
			f.SetProperties(props)
		}
		return f
	}
	return nil
}

func fgbType(g orb.Geometry) flattypes.GeometryType {
	switch g.(type) {
	case orb.Point:
		return flattypes.GeometryTypePoint
	case orb.MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case orb.LineString:
		return flattypes.GeometryTypeLineString
	case orb.MultiLineString:
		return flattypes.GeometryTypeMultiLineString
	case orb.Polygon:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	case orb.Collection:
		return flattypes.GeometryTypeGeometryCollection
	}
	return flattypes.GeometryTypeUnknown
}

func commonType(gs []orb.Geometry) flattypes.GeometryType {
	t := fgbType(gs[0])
	for _, g := range gs[1:] {
		if fgbType(g) != t {
			return flattypes.GeometryTypeUnknown
		}
	}
	return t
}

func toFGB(g orb.Geometry, b *flatbuffers.Builder) *writer.Geometry {
	out := writer.NewGeometry(b)
	out.SetType(fgbType(g))
	switch v := g.(type) {
	case orb.Point:
		out.SetXY([]float64{v[0], v[1]})
	case orb.MultiPoint:
		out.SetXY(flatXY(v))
	case orb.LineString:
		out.SetXY(flatXY(v))
	case orb.MultiLineString:
		parts := make([][]orb.Point, len(v))
		for i, ls := range v {
			parts[i] = ls
		}
		xy, ends := flatXYEnds(parts)
		out.SetXY(xy)
		out.SetEnds(ends)
	case orb.Polygon:
		xy, ends := polygonXYEnds(v)
		out.SetXY(xy)
		out.SetEnds(ends)
	case orb.MultiPolygon:
		parts := make([]writer.Geometry, 0, len(v))
		for _, p := range v {
			pg := writer.NewGeometry(b)
			pg.SetType(flattypes.GeometryTypePolygon)
			xy, ends := polygonXYEnds(p)
			pg.SetXY(xy)
			pg.SetEnds(ends)
			parts = append(parts, *pg)
		}
		out.SetParts(parts)
	case orb.Collection:
		parts := make([]writer.Geometry, 0, len(v))
		for _, m := range v {
			if pg := toFGB(m, b); pg != nil {
				parts = append(parts, *pg)
			}
		}
		out.SetParts(parts)
	default:
		return nil
	}
	return out
}

func flatXY(ps []orb.Point) []float64 {
	xy := make([]float64, 0, 2*len(ps))
	for _, p := range ps {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

func flatXYEnds(parts [][]orb.Point) ([]float64, []uint32) {
	var xy []float64
	ends := make([]uint32, 0, len(parts))
	for _, p := range parts {
		xy = append(xy, flatXY(p)...)
		ends = append(ends, uint32(len(xy)/2))
	}
	return xy, ends
}

func polygonXYEnds(p orb.Polygon) ([]float64, []uint32) {
	parts := make([][]orb.Point, len(p))
	for i, r := range p {
		parts[i] = r
	}
	return flatXYEnds(parts)
}

// columnType maps a Go attribute type to a FlatGeobuf column type.
func columnType(t reflect.Type) flattypes.ColumnType {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return flattypes.ColumnTypeJson
	}
	switch t.Kind() {
	case reflect.Bool:
		return flattypes.ColumnTypeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return flattypes.ColumnTypeLong
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return flattypes.ColumnTypeULong
	case reflect.Float32, reflect.Float64:
		return flattypes.ColumnTypeDouble
	case reflect.String:
		return flattypes.ColumnTypeString
	}
	return flattypes.ColumnTypeJson
}

// encodeValues writes [uint16 column][value] pairs; nulls are omitted.
func encodeValues(vals []any, types []flattypes.ColumnType) []byte {
	var buf bytes.Buffer
	var scratch [8]byte
	for i, raw := range vals {
		v := plain(raw)
		if v == nil {
			continue
		}
		rv := reflect.ValueOf(v)
		binary.LittleEndian.PutUint16(scratch[:2], uint16(i))
		buf.Write(scratch[:2])
		switch types[i] {
		case flattypes.ColumnTypeBool:
			if rv.Bool() {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		case flattypes.ColumnTypeLong:
			binary.LittleEndian.PutUint64(scratch[:], uint64(rv.Int()))
			buf.Write(scratch[:])
		case flattypes.ColumnTypeULong:
			binary.LittleEndian.PutUint64(scratch[:], rv.Uint())
			buf.Write(scratch[:])
		case flattypes.ColumnTypeDouble:
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(rv.Float()))
			buf.Write(scratch[:])
		case flattypes.ColumnTypeString:
			writeString(&buf, rv.String())
		default:
			b, err := json.Marshal(v)
			if err != nil {
				b = []byte("null")
			}
			writeString(&buf, string(b))
		}
	}
	return buf.Bytes()
}

// strings are length-prefixed (uint32) per the FlatGeobuf property encoding
func writeString(buf *bytes.Buffer, s string) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}
