package entity

import (
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

type place struct {
	ID       uint64        `spatial:"id"`
	Location geom.Geometry `spatial:"geometry"`
	Label    string        `spatial:"attr,ordinal=1,name=Label,desc=Display label,unique"`
	Rating   *float64      `spatial:"attr,ordinal=3,nullable"`
	Kind     string        `spatial:"attr,ordinal=2,title=Category,readonly"`
	scratch  int
}

type landmark struct {
	place
	// shadows place.Label with a different ordinal
	Label  string `spatial:"attr,ordinal=10,name=Label"`
	Height uint32 `spatial:"attr,ordinal=4"`
}

type noGeometry struct {
	ID    uint32 `spatial:"id"`
	Label string `spatial:"attr,ordinal=1"`
}

type twoIDs struct {
	ID    uint64     `spatial:"id"`
	Other uint64     `spatial:"id"`
	Shape geom.Point `spatial:"geometry"`
}

type ordinalClash struct {
	ID    uint64     `spatial:"id"`
	Shape geom.Point `spatial:"geometry"`
	A     string     `spatial:"attr,ordinal=1"`
	B     string     `spatial:"attr,ordinal=1"`
}

type inheritedClash struct {
	place
	Extra string `spatial:"attr,ordinal=2"`
}

type signedID struct {
	ID    int64      `spatial:"id"`
	Shape geom.Point `spatial:"geometry"`
}

type notAGeometry struct {
	ID    uint64 `spatial:"id"`
	Shape string `spatial:"geometry"`
}

type typedPoint struct {
	ID  uint16      `spatial:"id"`
	Pos *geom.Point `spatial:"geometry"`
}

func TestFor_OrdinalOrderAndFlags(t *testing.T) {
	d, err := For[place]()
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	attrs := d.Attributes()
	var names []string
	for _, a := range attrs {
		names = append(names, a.Name)
	}
	if !reflect.DeepEqual(names, []string{"Label", "Kind", "Rating"}) {
		t.Fatalf("ordinal order: %v", names)
	}
	if !attrs[0].Unique || attrs[0].Description != "Display label" || attrs[0].Title != "Label" {
		t.Fatalf("label flags: %+v", attrs[0])
	}
	if !attrs[1].ReadOnly || attrs[1].Title != "Category" {
		t.Fatalf("kind flags: %+v", attrs[1])
	}
	if !attrs[2].AllowNull {
		t.Fatalf("rating must allow null")
	}
	if d.Name() != "place" || d.IDField() != "ID" || d.GeometryField() != "Location" {
		t.Fatalf("names: %s %s %s", d.Name(), d.IDField(), d.GeometryField())
	}
}

func TestFor_InheritanceAndShadowing(t *testing.T) {
	d, err := For[landmark]()
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	var names []string
	var ords []int
	for _, a := range d.Attributes() {
		names = append(names, a.Name)
		ords = append(ords, a.Ordinal)
	}
	if !reflect.DeepEqual(names, []string{"Kind", "Rating", "Height", "Label"}) {
		t.Fatalf("inherited attrs: %v", names)
	}
	if !reflect.DeepEqual(ords, []int{2, 3, 4, 10}) {
		t.Fatalf("ordinals: %v", ords)
	}

	lm := landmark{place: place{ID: 7, Location: geom.NewPoint(geom.WGS84, geom.XY(1, 2)), Kind: "tower"},
		Label: "outer", Height: 300}
	lm.place.Label = "inner"
	if d.ID(lm) != 7 {
		t.Fatalf("inherited id: %d", d.ID(lm))
	}
	vals := d.Values(lm)
	if vals[3] != "outer" || vals[2] != uint32(300) {
		t.Fatalf("values: %v", vals)
	}
}

func TestFor_MetadataErrors(t *testing.T) {
	cases := []struct {
		name string
		fn   func() error
		want Reason
	}{
		{"missing geometry", func() error { _, err := For[noGeometry](); return err }, MissingGeometry},
		{"two ids", func() error { _, err := For[twoIDs](); return err }, DuplicateID},
		{"ordinal clash", func() error { _, err := For[ordinalClash](); return err }, DuplicateOrdinal},
		{"inherited ordinal clash", func() error { _, err := For[inheritedClash](); return err }, DuplicateOrdinal},
		{"signed id", func() error { _, err := For[signedID](); return err }, BadIDType},
		{"string geometry", func() error { _, err := For[notAGeometry](); return err }, BadGeometryType},
		{"not a struct", func() error { _, err := For[int](); return err }, NotStruct},
	}
	for _, tc := range cases {
		err := tc.fn()
		if !errors.Is(err, ErrMetadata) {
			t.Fatalf("%s: want ErrMetadata, got %v", tc.name, err)
		}
		var me *MetadataError
		if !errors.As(err, &me) || me.Reason != tc.want {
			t.Fatalf("%s: reason got %v want %s", tc.name, err, tc.want)
		}
	}
}

func TestFor_CachedAndRaceFree(t *testing.T) {
	var wg sync.WaitGroup
	infos := make([]*typeInfo, 16)
	for i := range infos {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := For[place]()
			if err != nil {
				t.Errorf("For: %v", err)
				return
			}
			infos[i] = d.info
		}(i)
	}
	wg.Wait()
	for _, in := range infos[1:] {
		if in != infos[0] {
			t.Fatalf("descriptor derived more than once")
		}
	}
	// errors are cached too
	_, e1 := For[twoIDs]()
	_, e2 := For[twoIDs]()
	if e1 != e2 {
		t.Fatalf("metadata error not cached")
	}
}

func TestDescriptor_PointerEntitiesAndSetters(t *testing.T) {
	d, err := For[*typedPoint]()
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	var e *typedPoint
	if _, err := d.Geometry(e); !errors.Is(err, ErrNilEntity) {
		t.Fatalf("nil entity: %v", err)
	}
	if err := d.SetID(&e, 12); err != nil {
		t.Fatalf("SetID: %v", err)
	}
	if e == nil || e.ID != 12 {
		t.Fatalf("SetID did not allocate: %+v", e)
	}
	if _, err := d.Geometry(e); !errors.Is(err, ErrNoGeometry) {
		t.Fatalf("missing geometry: %v", err)
	}
	if err := d.SetGeometry(&e, geom.NewPoint(geom.WGS84, geom.XY(3, 4))); err != nil {
		t.Fatalf("SetGeometry: %v", err)
	}
	row, err := d.Project(e)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if row.ID != 12 || row.Geometry.(geom.Point).Coord != geom.XY(3, 4) || len(row.Values) != 0 {
		t.Fatalf("row: %+v", row)
	}
	err = d.SetGeometry(&e, geom.NewLineString(geom.WGS84, geom.XY(0, 0), geom.XY(1, 1)))
	if !errors.Is(err, ErrGeometryMismatch) {
		t.Fatalf("line into point field: %v", err)
	}
}

func TestDescriptor_SetAttributeFromJSON(t *testing.T) {
	d := MustFor[place]()
	var p place
	if err := d.SetAttribute(&p, 0, json.RawMessage(`"harbour"`)); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	if err := d.SetAttribute(&p, 2, json.RawMessage(`4.5`)); err != nil {
		t.Fatalf("SetAttribute rating: %v", err)
	}
	if p.Label != "harbour" || p.Rating == nil || *p.Rating != 4.5 {
		t.Fatalf("decoded: %+v", p)
	}
	if err := d.SetAttribute(&p, 0, json.RawMessage(`12`)); err == nil {
		t.Fatalf("type mismatch must fail")
	}
	_ = p.scratch
}
