// Package remotetest checks Backend implementations against the in-memory source.
package remotetest

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/entity"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/core/spatial"
	"github.com/mohammed-shakir/spatial-entities/internal/poi"
	"github.com/mohammed-shakir/spatial-entities/internal/store/memory"
	"github.com/mohammed-shakir/spatial-entities/internal/store/remote"
)

// Conv is the geographic converter; Projected is web mercator in the projected2d scheme.
var (
	Conv      = codec.NewConverter(codec.Geographic2D)
	Projected = codec.NewConverter(codec.Projected2D, codec.WithSRID(3857))
)

func sortedIDs(ps []poi.POI) []uint64 {
	out := make([]uint64, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	slices.Sort(out)
	return out
}

// RunBackend exercises the Backend contract on fresh backends from newBackend, which must query
// with conv.
func RunBackend(t *testing.T, newBackend func(t *testing.T, conv *codec.Converter) remote.Backend) {
	t.Run("documents", func(t *testing.T) { documents(t, newBackend(t, Conv)) })
	t.Run("agreement", func(t *testing.T) { agreement(t, newBackend(t, Conv)) })
	t.Run("scenarios", func(t *testing.T) { scenarios(t, newBackend(t, Conv)) })
	t.Run("delete all", func(t *testing.T) { deleteAll(t, newBackend(t, Conv)) })
	t.Run("zones", func(t *testing.T) {
		zoneAgreement(t, Conv, newBackend(t, Conv), 0, 0, 1)
	})
	t.Run("projected zones", func(t *testing.T) {
		zoneAgreement(t, Projected, newBackend(t, Projected), 20000000, 6000000, 100)
	})
	t.Run("projected points", func(t *testing.T) { projectedPoints(t, newBackend(t, Projected)) })
}

// pair opens a memory and a remote source over the same scheme and srid.
func pair[T any](t *testing.T, conv *codec.Converter, b remote.Backend, desc *entity.Descriptor[T]) (*memory.Source[T], *remote.Source[T]) {
	t.Helper()
	mem := memory.New[T](desc, memory.WithSRID(conv.SRID()))
	rem := remote.New[T](b, desc, remote.WithScheme(conv.Scheme()), remote.WithSRID(conv.SRID()))
	if err := rem.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return mem, rem
}

func selected[T any](desc *entity.Descriptor[T], items []T) []uint64 {
	ids := spatial.IDs[T](desc, items)
	slices.Sort(ids)
	return ids
}

type query struct {
	name string
	g    geom.Geometry
	// want is checked when non-nil; both sources must always agree
	want []uint64
}

// agreeOn runs every query against both sources and compares the selections and the extents.
func agreeOn[T any](t *testing.T, desc *entity.Descriptor[T], mem *memory.Source[T], rem *remote.Source[T], qs []query) {
	t.Helper()
	ctx := context.Background()
	for _, q := range qs {
		want, err := mem.SelectGeometry(ctx, q.g)
		if err != nil {
			t.Fatalf("%s: memory select: %v", q.name, err)
		}
		got, err := rem.SelectGeometry(ctx, q.g)
		if err != nil {
			t.Fatalf("%s: remote select: %v", q.name, err)
		}
		w, g := selected(desc, want), selected(desc, got)
		if !slices.Equal(g, w) {
			t.Fatalf("%s: remote %v memory %v", q.name, g, w)
		}
		if q.want != nil && !slices.Equal(w, q.want) {
			t.Fatalf("%s: selected %v want %v", q.name, w, q.want)
		}
		if q.g.Kind() != geom.KindPolygon {
			continue
		}
		byEnv, err := rem.SelectEnvelope(ctx, q.g.Envelope())
		if err != nil {
			t.Fatalf("%s: remote select envelope: %v", q.name, err)
		}
		memEnv, _ := mem.SelectEnvelope(ctx, q.g.Envelope())
		if !slices.Equal(selected(desc, byEnv), selected(desc, memEnv)) {
			t.Fatalf("%s envelope: remote %v memory %v", q.name, selected(desc, byEnv), selected(desc, memEnv))
		}
	}
	wantEnv, _ := mem.Extents(ctx)
	gotEnv, err := rem.Extents(ctx)
	if err != nil || gotEnv != wantEnv {
		t.Fatalf("extents remote %v memory %v err=%v", gotEnv, wantEnv, err)
	}
}

func documents(t *testing.T, b remote.Backend) {
	ctx := context.Background()
	d1 := remote.Document{ID: 1, Bounds: geom.NewEnvelope(0, 0, 1, 1), Body: []byte(`one`)}
	d2 := remote.Document{ID: 2, Bounds: geom.NewEnvelope(5, 5, 6, 6), Body: []byte(`two`)}
	for _, d := range []remote.Document{d1, d2} {
		if err := b.Save(ctx, d); err != nil {
			t.Fatalf("Save %d: %v", d.ID, err)
		}
	}
	got, ok, err := b.FindByID(ctx, 2)
	if err != nil || !ok || string(got.Body) != "two" || got.Bounds != d2.Bounds {
		t.Fatalf("FindByID(2)=%+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, err := b.FindByID(ctx, 3); ok || err != nil {
		t.Fatalf("FindByID(3) ok=%v err=%v", ok, err)
	}

	q, _ := Conv.EnvelopeToExternalPolygon(geom.NewEnvelope(0.5, 0.5, 2, 2))
	docs, err := b.Query(ctx, q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	found := false
	for _, d := range docs {
		if d.ID == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("Query missed overlapping document: %+v", docs)
	}

	d1.Body = []byte(`uno`)
	if err := b.Save(ctx, d1); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if n, err := b.Count(ctx); err != nil || n != 2 {
		t.Fatalf("Count=%d err=%v", n, err)
	}
	if err := b.RemoveByID(ctx, 2); err != nil {
		t.Fatalf("RemoveByID: %v", err)
	}
	if err := b.RemoveByID(ctx, 99); err != nil {
		t.Fatalf("RemoveByID unknown: %v", err)
	}
	var scanned []string
	if err := b.Scan(ctx, func(d remote.Document) error {
		scanned = append(scanned, string(d.Body))
		return nil
	}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(scanned) != 1 || scanned[0] != "uno" {
		t.Fatalf("scan after overwrite and remove: %v", scanned)
	}
	stop := errors.New("stop")
	if err := b.Scan(ctx, func(remote.Document) error { return stop }); !errors.Is(err, stop) {
		t.Fatalf("Scan must return callback error, got %v", err)
	}
}

// agreement checks that the remote source answers exactly like the in-memory one.
func agreement(t *testing.T, b remote.Backend) {
	ctx := context.Background()
	r := rand.New(rand.NewPCG(7, 11))
	world := geom.NewEnvelope(10, 50, 12, 52)
	items := poi.Random(r, world, 1, 200)

	mem, rem := pair(t, Conv, b, poi.POIs)
	if err := mem.Insert(ctx, items...); err != nil {
		t.Fatalf("memory insert: %v", err)
	}
	if err := rem.Insert(ctx, items...); err != nil {
		t.Fatalf("remote insert: %v", err)
	}

	for i := 0; i < 40; i++ {
		x, y := 10+r.Float64()*2, 50+r.Float64()*2
		env := geom.NewEnvelope(x, y, x+r.Float64()*0.5, y+r.Float64()*0.5)
		want, err := mem.SelectEnvelope(ctx, env)
		if err != nil {
			t.Fatalf("memory select: %v", err)
		}
		got, err := rem.SelectEnvelope(ctx, env)
		if err != nil {
			t.Fatalf("remote select: %v", err)
		}
		if !slices.Equal(sortedIDs(got), sortedIDs(want)) {
			t.Fatalf("envelope %v: remote %v memory %v", env, sortedIDs(got), sortedIDs(want))
		}
	}

	tri := geom.NewPolygon(geom.WGS84, []geom.Coordinate{
		geom.XY(10, 50), geom.XY(12, 50), geom.XY(10, 52), geom.XY(10, 50),
	})
	want, _ := mem.SelectGeometry(ctx, tri)
	got, err := rem.SelectGeometry(ctx, tri)
	if err != nil {
		t.Fatalf("remote select geometry: %v", err)
	}
	if !slices.Equal(sortedIDs(got), sortedIDs(want)) || len(want) == 0 || len(want) == len(items) {
		t.Fatalf("triangle: remote %d memory %d of %d", len(got), len(want), len(items))
	}

	wantEnv, _ := mem.Extents(ctx)
	gotEnv, err := rem.Extents(ctx)
	if err != nil || gotEnv != wantEnv {
		t.Fatalf("extents remote %v memory %v err=%v", gotEnv, wantEnv, err)
	}

	p, err := rem.SelectID(ctx, 17)
	if err != nil {
		t.Fatalf("SelectID: %v", err)
	}
	mp, _ := mem.SelectID(ctx, 17)
	if p.Name != mp.Name || p.Location.Coord != mp.Location.Coord || (p.Rating == nil) != (mp.Rating == nil) {
		t.Fatalf("decoded entity %+v want %+v", p, mp)
	}
}

func scenarios(t *testing.T, b remote.Backend) {
	ctx := context.Background()
	s := remote.New[poi.POI](b, poi.POIs)
	if err := s.Insert(ctx, poi.NewPOI(1, 0, 0, "a", "cafe"), poi.NewPOI(2, 2, 2, "b", "park")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	env, err := s.Extents(ctx)
	if err != nil || env != geom.NewEnvelope(0, 0, 2, 2) {
		t.Fatalf("A: extents=%v err=%v", env, err)
	}
	q := geom.NewEnvelope(0.5, 0.5, 1.5, 1.5)
	if got, err := s.SelectEnvelope(ctx, q); err != nil || len(got) != 0 {
		t.Fatalf("B: %v %v", sortedIDs(got), err)
	}
	if err := s.Insert(ctx, poi.NewPOI(5, 1, 1, "c", "shop")); err != nil {
		t.Fatalf("Insert 5: %v", err)
	}
	if got, err := s.SelectEnvelope(ctx, q); err != nil || len(got) != 1 || got[0].ID != 5 {
		t.Fatalf("C: %v %v", sortedIDs(got), err)
	}
	if _, err := s.SelectID(ctx, 99); !errors.Is(err, spatial.ErrNotFound) {
		t.Fatalf("D: %v", err)
	}
	if err := s.Insert(ctx, poi.NewPOI(2, 9, 9, "dup", "cafe")); !errors.Is(err, spatial.ErrDuplicateID) {
		t.Fatalf("duplicate insert: %v", err)
	}
	if err := s.Delete(ctx, poi.POI{ID: 2}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if env, _ := s.Extents(ctx); env != geom.NewEnvelope(0, 0, 1, 1) {
		t.Fatalf("extents after delete=%v", env)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("count=%d", n)
	}
}

func deleteAll(t *testing.T, b remote.Backend) {
	ctx := context.Background()
	s := remote.New[poi.POI](b, poi.POIs)
	items := []poi.POI{poi.NewPOI(1, 0, 0, "a", "cafe"), poi.NewPOI(2, 3, 4, "b", "park")}
	if err := s.Insert(ctx, items...); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if env, _ := s.Extents(ctx); env != geom.NewEnvelope(0, 0, 3, 4) {
		t.Fatalf("extents=%v", env)
	}
	if err := s.Delete(ctx, items...); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	env, err := s.Extents(ctx)
	if err != nil || !env.IsEmpty() {
		t.Fatalf("extents after deleting everything=%v err=%v", env, err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Fatalf("count=%d", n)
	}
	if got, _ := s.SelectEnvelope(ctx, geom.NewEnvelope(-1, -1, 5, 5)); len(got) != 0 {
		t.Fatalf("deleted entities selected: %v", sortedIDs(got))
	}
}

// zoneAgreement lays out a polygon, a line, a triangle and a point at origin (ox, oy) with unit k,
// and selects with envelopes and shapes that straddle or only touch them. Every coordinate is an
// integer multiple of k so touching stays exact.
func zoneAgreement(t *testing.T, conv *codec.Converter, b remote.Backend, ox, oy, k float64) {
	ctx := context.Background()
	srid := conv.SRID()
	at := func(x, y float64) geom.Coordinate { return geom.XY(ox+x*k, oy+y*k) }
	box := func(x1, y1, x2, y2 float64) geom.Envelope {
		return geom.NewEnvelope(ox+x1*k, oy+y1*k, ox+x2*k, oy+y2*k)
	}
	env := func(x1, y1, x2, y2 float64) geom.Geometry { return geom.EnvelopePolygon(srid, box(x1, y1, x2, y2)) }

	zones := []poi.Zone{
		{ID: 1, Shape: geom.EnvelopePolygon(srid, box(0, 0, 2, 2)), Name: "square", Level: 1},
		{ID: 2, Shape: geom.NewLineString(srid, at(3, 0), at(5, 2)), Name: "road", Level: 2},
		{ID: 3, Shape: geom.NewPolygon(srid, []geom.Coordinate{at(6, 0), at(8, 0), at(6, 2), at(6, 0)}), Name: "wedge", Level: 1},
		{ID: 4, Shape: geom.NewPoint(srid, at(10, 10)), Name: "pin", Level: 3},
	}
	mem, rem := pair(t, conv, b, poi.Zones)
	if err := mem.Insert(ctx, zones...); err != nil {
		t.Fatalf("memory insert: %v", err)
	}
	if err := rem.Insert(ctx, zones...); err != nil {
		t.Fatalf("remote insert: %v", err)
	}

	agreeOn(t, poi.Zones, mem, rem, []query{
		{name: "corner touch", g: env(2, 2, 3, 3), want: []uint64{1}},
		{name: "edge and line end", g: env(2, 0, 3, 1), want: []uint64{1, 2}},
		{name: "line bbox only", g: env(4.5, 0, 5, 0.5), want: []uint64{}},
		{name: "triangle bbox only", g: env(7.5, 1.5, 9, 3), want: []uint64{}},
		{name: "hypotenuse touch", g: env(7, 1, 9, 3), want: []uint64{3}},
		{name: "point on corner", g: env(10, 10, 11, 11), want: []uint64{4}},
		{name: "straddles all", g: env(-1, -1, 20, 20), want: []uint64{1, 2, 3, 4}},
		{name: "straddles square", g: env(1, 1, 3, 1.5), want: []uint64{1}},
		{name: "crossing line", g: geom.NewLineString(srid, at(4, -1), at(4, 3)), want: []uint64{2}},
		{name: "point on edge", g: geom.NewPoint(srid, at(2, 1)), want: []uint64{1}},
		{name: "triangle", g: geom.NewPolygon(srid, []geom.Coordinate{at(1, -1), at(7, -1), at(7, 5), at(1, -1)})},
	})

	z, err := rem.SelectID(ctx, 2)
	if err != nil || z.Shape.Kind() != geom.KindLineString || z.Name != "road" {
		t.Fatalf("SelectID(2)=%+v err=%v", z, err)
	}
	if err := rem.Delete(ctx, zones[0]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mem.Delete(ctx, zones[0]); err != nil {
		t.Fatalf("memory delete: %v", err)
	}
	agreeOn(t, poi.Zones, mem, rem, []query{
		{name: "after delete", g: env(-1, -1, 20, 20), want: []uint64{2, 3, 4}},
	})
}

// projectedPoints places points at web mercator magnitudes on the edges of the query envelopes.
func projectedPoints(t *testing.T, b remote.Backend) {
	ctx := context.Background()
	pt := func(id uint64, x, y float64) poi.POI {
		return poi.POI{ID: id, Location: geom.NewPoint(3857, geom.XY(x, y)), Name: "p", Category: "shop"}
	}
	items := []poi.POI{
		pt(1, 20000000, 6000000),
		pt(2, 20000100, 5500000),
		pt(3, -20000000, -6000000),
		pt(4, 19999999.5, 6000000),
	}
	mem, rem := pair(t, Projected, b, poi.POIs)
	if err := mem.Insert(ctx, items...); err != nil {
		t.Fatalf("memory insert: %v", err)
	}
	if err := rem.Insert(ctx, items...); err != nil {
		t.Fatalf("remote insert: %v", err)
	}
	env := func(x1, y1, x2, y2 float64) geom.Geometry { return geom.EnvelopePolygon(3857, geom.NewEnvelope(x1, y1, x2, y2)) }
	agreeOn(t, poi.POIs, mem, rem, []query{
		{name: "edges", g: env(20000000, 5000000, 20000100, 6000000), want: []uint64{1, 2}},
		{name: "corner", g: env(-20000100, -6000100, -20000000, -6000000), want: []uint64{3}},
		{name: "half unit left", g: env(19999990, 6000000, 19999999.5, 6000010), want: []uint64{4}},
		{name: "gap", g: env(20000000.5, 6000000, 20000001, 6000001), want: []uint64{}},
	})

	if _, err := rem.SelectGeometry(ctx, geom.EnvelopePolygon(geom.WGS84, geom.NewEnvelope(0, 0, 1, 1))); !errors.Is(err, codec.ErrWrongSRID) {
		t.Fatalf("wgs84 query on projected source: %v", err)
	}
}
