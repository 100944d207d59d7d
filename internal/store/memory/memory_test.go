package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/core/spatial"
	"github.com/mohammed-shakir/spatial-entities/internal/poi"
)

func ids(ps []poi.POI) []uint64 {
	out := make([]uint64, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func seeded(t *testing.T, opts ...Option) *Source[poi.POI] {
	t.Helper()
	s := New[poi.POI](poi.POIs, opts...)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	err := s.Insert(context.Background(),
		poi.NewPOI(1, 0, 0, "a", "cafe"),
		poi.NewPOI(2, 2, 2, "b", "park"),
	)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return s
}

func TestScenarios_ExtentsSelectAndLookup(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	// A
	env, err := s.Extents(ctx)
	if err != nil || env != geom.NewEnvelope(0, 0, 2, 2) {
		t.Fatalf("extents=%v err=%v", env, err)
	}

	// B
	q := geom.NewEnvelope(0.5, 0.5, 1.5, 1.5)
	got, err := s.SelectEnvelope(ctx, q)
	if err != nil || len(got) != 0 {
		t.Fatalf("select before insert: %v %v", ids(got), err)
	}

	// C
	if err := s.Insert(ctx, poi.NewPOI(5, 1, 1, "c", "shop")); err != nil {
		t.Fatalf("Insert 5: %v", err)
	}
	got, err = s.SelectEnvelope(ctx, q)
	if err != nil || len(got) != 1 || got[0].ID != 5 {
		t.Fatalf("select after insert: %v %v", ids(got), err)
	}

	// D
	_, err = s.SelectID(ctx, 99)
	var nf *spatial.NotFoundError
	if !errors.As(err, &nf) || nf.ID != 99 || !errors.Is(err, spatial.ErrNotFound) {
		t.Fatalf("SelectID(99): %v", err)
	}
}

func TestInsert_DuplicatesAreAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	err := s.Insert(ctx, poi.NewPOI(3, 5, 5, "x", "cafe"), poi.NewPOI(1, 9, 9, "dup", "cafe"))
	if !errors.Is(err, spatial.ErrDuplicateID) {
		t.Fatalf("want ErrDuplicateID, got %v", err)
	}
	if _, err := s.SelectID(ctx, 3); !errors.Is(err, spatial.ErrNotFound) {
		t.Fatalf("partial write of id 3: %v", err)
	}

	err = s.Insert(ctx, poi.NewPOI(7, 1, 1, "x", "cafe"), poi.NewPOI(7, 2, 1, "y", "cafe"))
	if !errors.Is(err, spatial.ErrDuplicateID) {
		t.Fatalf("in-batch duplicate: %v", err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("count=%d want 2", n)
	}
}

func TestUpdate_Policies(t *testing.T) {
	ctx := context.Background()

	up := seeded(t)
	moved := poi.NewPOI(2, 10, 10, "b", "park")
	if err := up.Update(ctx, moved, poi.NewPOI(8, -1, -1, "new", "cafe")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if n, _ := up.Count(ctx); n != 3 {
		t.Fatalf("upsert must insert missing ids, count=%d", n)
	}
	env, _ := up.Extents(ctx)
	if env != geom.NewEnvelope(-1, -1, 10, 10) {
		t.Fatalf("extents after update=%v", env)
	}

	rep := seeded(t, WithUpdatePolicy(spatial.Replace))
	err := rep.Update(ctx, moved, poi.NewPOI(8, -1, -1, "new", "cafe"))
	if !errors.Is(err, spatial.ErrNotFound) {
		t.Fatalf("replace with missing id: %v", err)
	}
	p, _ := rep.SelectID(ctx, 2)
	if p.Location.Coord != geom.XY(2, 2) {
		t.Fatalf("replace failure must write nothing, got %v", p.Location.Coord)
	}
	if err := rep.Update(ctx, moved); err != nil {
		t.Fatalf("replace existing: %v", err)
	}
	p, _ = rep.SelectID(ctx, 2)
	if p.Location.Coord != geom.XY(10, 10) {
		t.Fatalf("replace did not apply: %v", p.Location.Coord)
	}
}

func TestDelete_AbsentIsNoOpAndOrderIsStable(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	_ = s.Insert(ctx, poi.NewPOI(3, 1, 1, "c", "cafe"))

	if err := s.Delete(ctx, poi.POI{ID: 42}); err != nil {
		t.Fatalf("absent delete: %v", err)
	}
	if err := s.Delete(ctx, poi.POI{ID: 2}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ := s.SelectEnvelope(ctx, geom.NewEnvelope(-10, -10, 10, 10))
	if got := ids(all); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("order after delete: %v", got)
	}
	env, _ := s.Extents(ctx)
	if env != geom.NewEnvelope(0, 0, 1, 1) {
		t.Fatalf("extents after delete=%v", env)
	}
}

func TestSelectGeometry_RefinesAgainstPolygon(t *testing.T) {
	ctx := context.Background()
	s := New[poi.POI](poi.POIs)
	_ = s.Insert(ctx,
		poi.NewPOI(1, 1, 1, "in", "cafe"),
		poi.NewPOI(2, 3.5, 3.5, "bbox only", "cafe"),
		poi.NewPOI(3, 4, 0, "vertex", "cafe"),
	)
	// triangle (0,0) (4,0) (0,4): its bbox holds all three points, the shape only 1 and 3
	tri := geom.NewPolygon(geom.WGS84, []geom.Coordinate{geom.XY(0, 0), geom.XY(4, 0), geom.XY(0, 4), geom.XY(0, 0)})
	got, err := s.SelectGeometry(ctx, tri)
	if err != nil {
		t.Fatalf("SelectGeometry: %v", err)
	}
	if r := ids(got); len(r) != 2 || r[0] != 1 || r[1] != 3 {
		t.Fatalf("refined ids: %v", r)
	}
}

func TestEmptyStoreAndLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New[poi.POI](poi.POIs)
	if s.State() != spatial.Created {
		t.Fatalf("state=%s", s.State())
	}
	env, err := s.Extents(ctx)
	if err != nil || !env.IsEmpty() {
		t.Fatalf("empty extents=%v err=%v", env, err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Count(ctx); !errors.Is(err, spatial.ErrClosed) {
		t.Fatalf("count on closed: %v", err)
	}
	if err := s.Insert(ctx, poi.NewPOI(1, 0, 0, "a", "cafe")); !errors.Is(err, spatial.ErrClosed) {
		t.Fatalf("insert on closed: %v", err)
	}
	if err := s.Open(ctx); !errors.Is(err, spatial.ErrClosed) {
		t.Fatalf("reopen: %v", err)
	}
}

func TestZones_NilGeometryRejected(t *testing.T) {
	ctx := context.Background()
	s := New[poi.Zone](poi.Zones)
	err := s.Insert(ctx, poi.Zone{ID: 1, Name: "nowhere"}, poi.Box(2, geom.NewEnvelope(0, 0, 1, 1), "ok", 1))
	if !errors.Is(err, spatial.ErrInvalidEntity) {
		t.Fatalf("want ErrInvalidEntity, got %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Fatalf("rejected batch wrote %d entities", n)
	}
}

func TestDelete_AllLeavesEmptyExtents(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	if env, _ := s.Extents(ctx); env.IsEmpty() {
		t.Fatalf("seeded extents must not be empty")
	}
	if err := s.Delete(ctx, poi.POI{ID: 1}, poi.POI{ID: 2}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	env, err := s.Extents(ctx)
	if err != nil || !env.IsEmpty() {
		t.Fatalf("extents after deleting everything=%v err=%v", env, err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Fatalf("count=%d", n)
	}
}

func TestSRID_EntitiesAndQueriesMustMatch(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	bad := poi.POI{ID: 9, Location: geom.NewPoint(3857, geom.XY(1, 1))}
	err := s.Insert(ctx, bad)
	if !errors.Is(err, spatial.ErrInvalidEntity) || !errors.Is(err, codec.ErrWrongSRID) {
		t.Fatalf("insert wrong srid: %v", err)
	}
	if err := s.Update(ctx, bad); !errors.Is(err, codec.ErrWrongSRID) {
		t.Fatalf("update wrong srid: %v", err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("rejected entity stored, count=%d", n)
	}
	q := geom.EnvelopePolygon(3857, geom.NewEnvelope(-1, -1, 1, 1))
	if _, err := s.SelectGeometry(ctx, q); !errors.Is(err, codec.ErrWrongSRID) {
		t.Fatalf("query wrong srid: %v", err)
	}
}

func TestSRID_ProjectedSource(t *testing.T) {
	ctx := context.Background()
	s := New[poi.POI](poi.POIs, WithSRID(3857))
	edge := poi.POI{ID: 1, Location: geom.NewPoint(3857, geom.XY(20000000, 6000000))}
	if err := s.Insert(ctx, edge); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, poi.NewPOI(2, 0, 0, "wgs", "cafe")); !errors.Is(err, codec.ErrWrongSRID) {
		t.Fatalf("wgs84 entity in projected source: %v", err)
	}
	got, err := s.SelectEnvelope(ctx, geom.NewEnvelope(20000000, 5000000, 20000100, 6000000))
	if err != nil || len(got) != 1 {
		t.Fatalf("touching envelope: %v %v", ids(got), err)
	}
}
