package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestBatch_PersistentAndExpiringKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	var b Batch
	b.Set("doc:poi:1", []byte("body"), 0)
	b.Set("lease", []byte("x"), 2*time.Second)
	b.SAdd("ids:poi", "1")
	if err := rc.Exec(ctx, &b); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if ttl := mr.TTL("doc:poi:1"); ttl != 0 {
		t.Fatalf("document must not expire, ttl=%v", ttl)
	}

	mr.FastForward(3 * time.Second)

	got, err := rc.MGet(ctx, []string{"doc:poi:1", "lease"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if string(got["doc:poi:1"]) != "body" {
		t.Fatalf("document lost: %v", got)
	}
	if _, ok := got["lease"]; ok {
		t.Fatalf("expected lease to be absent after expiry; got=%v", got)
	}
}

func TestBatch_EmptyAndSkippedOps(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	var b Batch
	b.SAdd("ids:poi")
	b.SRem("ids:poi")
	b.Del()
	if b.Len() != 0 {
		t.Fatalf("ops without members must be skipped, len=%d", b.Len())
	}
	if err := rc.Exec(ctx, &b); err != nil {
		t.Fatalf("empty Exec: %v", err)
	}
	if err := rc.Exec(ctx, nil); err != nil {
		t.Fatalf("nil Exec: %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("keys=%v", keys)
	}
}
