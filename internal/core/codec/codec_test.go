package codec

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

var allSchemes = []Scheme{Regular2D, Projected2D, Geographic2D, Regular3D, Projected3D, Geographic3D}

func coordFor(s Scheme, x, y, z float64) geom.Coordinate {
	if s.Is3D() {
		return geom.XYZ(x, y, z)
	}
	return geom.XY(x, y)
}

func TestCoordinateRoundTrip_AllSchemes(t *testing.T) {
	for _, s := range allSchemes {
		c := coordFor(s, 18.07, 59.33, 42)
		got, err := ToInternal(ToExternal(c, s), s)
		if err != nil {
			t.Fatalf("%s: ToInternal: %v", s, err)
		}
		if got != c {
			t.Fatalf("%s: round trip got %v want %v", s, got, c)
		}
	}
}

func TestCoordinate_GeographicSwapsAxes(t *testing.T) {
	p := ToExternal(geom.XYZ(18, 59, 10), Geographic3D)
	if !reflect.DeepEqual(p, Position{59, 18, 10}) {
		t.Fatalf("geographic order: %v", p)
	}
	p = ToExternal(geom.XYZ(18, 59, 10), Projected2D)
	if !reflect.DeepEqual(p, Position{18, 59}) {
		t.Fatalf("projected order: %v", p)
	}
	if names := Geographic2D.AxisNames(); names[0] != "latitude" {
		t.Fatalf("axis names: %v", names)
	}
}

func TestCoordinate_MissingOrdinateIsMalformed(t *testing.T) {
	_, err := ToInternal(Position{1, 2}, Regular3D)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("want ErrMalformed, got %v", err)
	}
	var ce *ConversionError
	if !errors.As(err, &ce) || ce.Reason != Malformed {
		t.Fatalf("want *ConversionError malformed, got %#v", err)
	}
	if _, err := ToInternal(Position{1}, Regular2D); !errors.Is(err, ErrMalformed) {
		t.Fatalf("2d short position: %v", err)
	}
}

func sampleGeometries(s Scheme) []geom.Geometry {
	c := func(x, y float64) geom.Coordinate { return coordFor(s, x, y, x+y) }
	shell := []geom.Coordinate{c(0, 0), c(10, 0), c(10, 10), c(0, 10), c(0, 0)}
	hole := []geom.Coordinate{c(2, 2), c(4, 2), c(4, 4), c(2, 2)}
	poly := geom.NewPolygon(geom.WGS84, shell, hole)
	return []geom.Geometry{
		geom.NewPoint(geom.WGS84, c(1, 2)),
		geom.NewLineString(geom.WGS84, c(0, 0), c(1, 1), c(2, 0)),
		poly,
		geom.NewMultiPoint(geom.WGS84, c(1, 1), c(2, 2)),
		geom.NewMultiLineString(geom.WGS84, []geom.Coordinate{c(0, 0), c(1, 1)}, []geom.Coordinate{c(5, 5), c(6, 7)}),
		geom.NewMultiPolygon(geom.WGS84, poly, geom.NewPolygon(geom.WGS84,
			[]geom.Coordinate{c(20, 20), c(21, 20), c(21, 21), c(20, 20)})),
		geom.NewCollection(geom.WGS84,
			geom.NewPoint(geom.WGS84, c(3, 3)),
			geom.NewLineString(geom.WGS84, c(0, 0), c(9, 9)),
			geom.NewCollection(geom.WGS84, geom.NewPoint(geom.WGS84, c(4, 4))),
		),
	}
}

func TestGeometryRoundTrip_AllKindsAllSchemes(t *testing.T) {
	for _, s := range allSchemes {
		conv := NewConverter(s)
		for _, g := range sampleGeometries(s) {
			ext, err := conv.ToExternal(g)
			if err != nil {
				t.Fatalf("%s %s: ToExternal: %v", s, g.Kind(), err)
			}
			if ext.Type != g.Kind().String() {
				t.Fatalf("%s: discriminator %q want %q", s, ext.Type, g.Kind())
			}
			back, err := conv.ToInternal(ext)
			if err != nil {
				t.Fatalf("%s %s: ToInternal: %v", s, g.Kind(), err)
			}
			if !reflect.DeepEqual(back, g) {
				t.Fatalf("%s %s: round trip mismatch\n got %#v\nwant %#v", s, g.Kind(), back, g)
			}
		}
	}
}

func TestGeometryRoundTrip_ThroughJSON(t *testing.T) {
	conv := NewConverter(Geographic2D)
	for _, g := range sampleGeometries(Geographic2D) {
		ext, err := conv.ToExternal(g)
		if err != nil {
			t.Fatalf("ToExternal: %v", err)
		}
		raw, err := json.Marshal(ext)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var decoded ExternalGeometry
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		back, err := conv.ToInternal(decoded)
		if err != nil {
			t.Fatalf("ToInternal: %v", err)
		}
		if !reflect.DeepEqual(back, g) {
			t.Fatalf("%s json round trip mismatch: %s", g.Kind(), raw)
		}
	}
}

func TestPolygon_ShellThenHolesOrder(t *testing.T) {
	conv := NewConverter(Regular2D)
	shell := []geom.Coordinate{geom.XY(0, 0), geom.XY(4, 0), geom.XY(4, 4), geom.XY(0, 0)}
	hole := []geom.Coordinate{geom.XY(1, 1), geom.XY(2, 1), geom.XY(2, 2), geom.XY(1, 1)}
	ext, err := conv.ToPolygon(geom.NewPolygon(geom.WGS84, shell, hole))
	if err != nil {
		t.Fatalf("ToPolygon: %v", err)
	}
	rings := ext.Coordinates.([][]Position)
	if len(rings) != 2 || rings[0][1][0] != 4 || rings[1][0][0] != 1 {
		t.Fatalf("unexpected ring order: %v", rings)
	}
}

// Scenario E
func TestToExternal_WrongSRID(t *testing.T) {
	conv := NewConverter(Regular2D)
	_, err := conv.ToPoint(geom.NewPoint(3857, geom.XY(1, 1)))
	if !errors.Is(err, ErrWrongSRID) {
		t.Fatalf("want ErrWrongSRID, got %v", err)
	}
	if errors.Is(err, ErrWrongKind) {
		t.Fatalf("srid failure must not report wrong kind")
	}
	if _, err := conv.ToExternal(geom.NewPoint(3857, geom.XY(1, 1))); !errors.Is(err, ErrWrongSRID) {
		t.Fatalf("generic ToExternal must check srid too: %v", err)
	}
}

func TestTypedVariants_WrongKindBeforeSRID(t *testing.T) {
	conv := NewConverter(Regular2D)
	_, err := conv.ToPolygon(geom.NewPoint(3857, geom.XY(1, 1)))
	if !errors.Is(err, ErrWrongKind) {
		t.Fatalf("want ErrWrongKind, got %v", err)
	}
	ext, err := conv.ToPoint(geom.NewPoint(geom.WGS84, geom.XY(1, 1)))
	if err != nil {
		t.Fatalf("ToPoint: %v", err)
	}
	if _, err := conv.FromLineString(ext); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("FromLineString(point): %v", err)
	}
	p, err := conv.FromPoint(ext)
	if err != nil || p.Coord != geom.XY(1, 1) {
		t.Fatalf("FromPoint: %v %v", p, err)
	}
}

func TestToInternal_ExternalCRSMismatch(t *testing.T) {
	src := NewConverter(Regular2D, WithSRID(3857), WithCRS())
	ext, err := src.ToExternal(geom.NewPoint(3857, geom.XY(1, 1)))
	if err != nil {
		t.Fatalf("ToExternal: %v", err)
	}
	if ext.CRS == nil || ext.CRS.Properties.Name != "EPSG:3857" {
		t.Fatalf("crs not emitted: %#v", ext.CRS)
	}
	if _, err := NewConverter(Regular2D).ToInternal(ext); !errors.Is(err, ErrWrongSRID) {
		t.Fatalf("want ErrWrongSRID, got %v", err)
	}
}

func TestToInternal_UnknownAndMalformed(t *testing.T) {
	conv := NewConverter(Regular2D)
	var ext ExternalGeometry
	if err := json.Unmarshal([]byte(`{"type":"Curve","coordinates":[1,2]}`), &ext); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := conv.ToInternal(ext); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("want ErrUnknownType, got %v", err)
	}

	open := ExternalGeometry{Type: "Polygon", Coordinates: [][]Position{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}}
	if _, err := conv.ToInternal(open); !errors.Is(err, ErrMalformed) {
		t.Fatalf("unclosed ring: %v", err)
	}
	wrongShape := ExternalGeometry{Type: "LineString", Coordinates: Position{1, 2}}
	if _, err := conv.ToInternal(wrongShape); !errors.Is(err, ErrMalformed) {
		t.Fatalf("wrong shape: %v", err)
	}
	if err := json.Unmarshal([]byte(`{"type":"Point","coordinates":"x"}`), &ext); !errors.Is(err, ErrMalformed) {
		t.Fatalf("bad json coordinates: %v", err)
	}
	// hand-built float slices are accepted as well
	hand := ExternalGeometry{Type: "LineString", Coordinates: [][]float64{{0, 0}, {1, 1}}}
	if _, err := conv.ToInternal(hand); err != nil {
		t.Fatalf("plain float slices: %v", err)
	}
}

func TestEnvelopeToExternalPolygon(t *testing.T) {
	conv := NewConverter(Geographic2D)
	ext, err := conv.EnvelopeToExternalPolygon(geom.NewEnvelope(10, 50, 12, 51))
	if err != nil {
		t.Fatalf("EnvelopeToExternalPolygon: %v", err)
	}
	ring := ext.Coordinates.([][]Position)[0]
	if len(ring) != 5 || !reflect.DeepEqual(ring[0], ring[4]) {
		t.Fatalf("ring must be closed with 5 points: %v", ring)
	}
	// geographic: lat first
	if !reflect.DeepEqual(ring[0], Position{50, 10}) || !reflect.DeepEqual(ring[1], Position{50, 12}) {
		t.Fatalf("unexpected ring start: %v", ring[:2])
	}
	env, err := conv.Bounds(ext)
	if err != nil || env != geom.NewEnvelope(10, 50, 12, 51) {
		t.Fatalf("Bounds=%v err=%v", env, err)
	}
	if _, err := conv.EnvelopeToExternalPolygon(geom.EmptyEnvelope()); !errors.Is(err, ErrMalformed) {
		t.Fatalf("empty envelope: %v", err)
	}
}

func TestParseScheme(t *testing.T) {
	for _, s := range allSchemes {
		got, err := ParseScheme(s.String())
		if err != nil || got != s {
			t.Fatalf("ParseScheme(%q)=%v,%v", s.String(), got, err)
		}
	}
	if _, err := ParseScheme("mercator"); err == nil {
		t.Fatalf("unknown scheme accepted")
	}
}

func TestAxisNames(t *testing.T) {
	want := map[Scheme]string{
		Regular2D:    "x,y",
		Projected2D:  "easting,northing",
		Geographic2D: "latitude,longitude",
		Regular3D:    "x,y,z",
		Projected3D:  "easting,northing,height",
		Geographic3D: "latitude,longitude,altitude",
	}
	for _, s := range allSchemes {
		if got := strings.Join(s.AxisNames(), ","); got != want[s] {
			t.Fatalf("%s axes=%s want %s", s, got, want[s])
		}
		if len(s.AxisNames()) != s.Dims() {
			t.Fatalf("%s: %d names for %d dims", s, len(s.AxisNames()), s.Dims())
		}
	}
}

func TestCheckSRID(t *testing.T) {
	if err := CheckSRID(geom.WGS84, geom.NewPoint(geom.WGS84, geom.XY(1, 1))); err != nil {
		t.Fatalf("matching srid: %v", err)
	}
	mixed := geom.NewCollection(3857, geom.NewPoint(3857, geom.XY(0, 0)), geom.NewPoint(geom.WGS84, geom.XY(0, 0)))
	if err := CheckSRID(3857, mixed); !errors.Is(err, ErrWrongSRID) {
		t.Fatalf("mixed collection member: %v", err)
	}
	if err := CheckSRID(geom.WGS84, nil); !errors.Is(err, ErrMalformed) {
		t.Fatalf("nil geometry: %v", err)
	}
}
