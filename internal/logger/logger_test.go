package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(ln), &m); err != nil {
			t.Fatalf("bad json line %q: %v", ln, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewSlog_ContextFieldsAndAttrs(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "spatiald", Backend: "redis"}, &buf)
	l := NewSlog(&zl)

	ctx := WithLayer(WithRequestID(context.Background(), "r1"), "poi")
	l.InfoContext(ctx, "hello",
		"n", 3,
		slog.Group("g", "a", 1),
		"took", time.Second,
		"err", errors.New("boom"))
	l.WithGroup("q").With("k", "v").Debug("grouped", "x", 1)

	got := lines(t, &buf)
	if len(got) != 2 {
		t.Fatalf("lines=%d: %s", len(got), buf.String())
	}
	first := got[0]
	for k, want := range map[string]any{
		"msg":        "hello",
		"level":      "info",
		"request_id": "r1",
		"layer":      "poi",
		"component":  "spatiald",
		"backend":    "redis",
		"n":          float64(3),
		"g.a":        float64(1),
		"err":        "boom",
	} {
		if first[k] != want {
			t.Fatalf("%s=%v want %v (line %v)", k, first[k], want, first)
		}
	}
	if _, ok := first["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", first)
	}
	second := got[1]
	if second["q.k"] != "v" || second["q.x"] != float64(1) || second["level"] != "debug" {
		t.Fatalf("grouped line=%v", second)
	}
}

func TestNewSlog_LevelGate(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	l := NewSlog(&zl)

	if l.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info must be disabled at warn")
	}
	l.Info("dropped")
	l.Warn("kept")
	got := lines(t, &buf)
	if len(got) != 1 || got[0]["msg"] != "kept" || got[0]["level"] != "warn" {
		t.Fatalf("got=%v", got)
	}
}

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" {
		t.Fatalf("empty context must have no id")
	}
	if got := RequestID(WithRequestID(ctx, "abc")); got != "abc" {
		t.Fatalf("got %q", got)
	}
	a, b := NewID(), NewID()
	if len(a) == 0 || a == b {
		t.Fatalf("ids %q %q", a, b)
	}
}
