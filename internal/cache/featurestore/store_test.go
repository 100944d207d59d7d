package featurestore

import (
	"context"
	"reflect"
	"slices"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/spatial-entities/internal/cache/keys"
	"github.com/mohammed-shakir/spatial-entities/internal/cache/redisstore"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

func newMini(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	return cli, mr
}

func TestStore_RoundTrip_HitsAndMisses(t *testing.T) {
	cli, mr := newMini(t)
	fs := New(cli)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	layer := "demo:poi"
	b := &redisstore.Batch{}
	fs.StagePut(b, layer, 1, Entry{Body: []byte(`{"id":1}`), Bounds: geom.NewEnvelope(0.1, 0.2, 0.3, 0.7)})
	fs.StagePut(b, layer, 42, Entry{Body: []byte(`{"id":42}`), Bounds: geom.EmptyEnvelope()})
	if err := cli.Exec(ctx, b); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	got, err := fs.Get(ctx, layer, []uint64{1, 42, 7})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Get size=%d want 2 (only hits)", len(got))
	}
	if string(got[1].Body) != `{"id":1}` || got[1].Bounds != geom.NewEnvelope(0.1, 0.2, 0.3, 0.7) {
		t.Fatalf("entry 1 mismatch: %+v", got[1])
	}
	if !got[42].Bounds.IsEmpty() {
		t.Fatalf("empty bounds must survive: %+v", got[42].Bounds)
	}
	if _, ok := got[7]; ok {
		t.Fatalf("unexpected entry for missing id")
	}
	if !mr.Exists(keys.Doc(layer, 1)) || mr.TTL(keys.Doc(layer, 1)) != 0 {
		t.Fatalf("documents must be stored without expiry")
	}

	if n, err := fs.Count(ctx, layer); err != nil || n != 2 {
		t.Fatalf("Count=%d err=%v", n, err)
	}
	ids, err := fs.IDs(ctx, layer)
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	slices.Sort(ids)
	if !reflect.DeepEqual(ids, []uint64{1, 42}) {
		t.Fatalf("IDs=%v", ids)
	}

	b = &redisstore.Batch{}
	fs.StageRemove(b, layer, 1)
	if err := cli.Exec(ctx, b); err != nil {
		t.Fatalf("Exec remove: %v", err)
	}
	if mr.Exists(keys.Doc(layer, 1)) || mr.Exists(keys.Bounds(layer, 1)) {
		t.Fatalf("remove left keys behind")
	}
	if n, _ := fs.Count(ctx, layer); n != 1 {
		t.Fatalf("Count after remove=%d", n)
	}
}

func TestStore_EmptyIDs_ReturnsEmptyMap(t *testing.T) {
	cli, _ := newMini(t)
	got, err := New(cli).Get(context.Background(), "demo:layer", nil)
	if err != nil {
		t.Fatalf("Get(nil): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result map, got len=%d", len(got))
	}
}

func TestBounds_Encoding(t *testing.T) {
	env := geom.NewEnvelope(18.068581, 59.329323, 18.1, 59.4)
	s := EncodeBounds(env)
	if s != "18.068581,59.329323,18.1,59.4" {
		t.Fatalf("encoded=%q", s)
	}
	back, err := DecodeBounds(s)
	if err != nil || back != env {
		t.Fatalf("decoded=%v err=%v", back, err)
	}
	if EncodeBounds(geom.EmptyEnvelope()) != "empty" {
		t.Fatalf("empty bounds encoding")
	}
	for _, bad := range []string{"1,2,3", "a,b,c,d"} {
		if _, err := DecodeBounds(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if _, err := ParseIDs([]string{"1", "x"}); err == nil {
		t.Fatalf("expected error for non-numeric member")
	}
}
