package keys

import (
	"regexp"
	"testing"
	"unicode"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

func TestLayout(t *testing.T) {
	cases := [][2]string{
		{Doc("POI", 42), "doc:POI:42"},
		{Bounds("POI", 42), "bounds:POI:42"},
		{IDs("POI"), "ids:POI"},
		{Cell("POI", 7, " 872a1072bffffff "), "cell:POI:7:872a1072bffffff"},
		{Wide("POI", 7), "wide:POI:7"},
	}
	for _, c := range cases {
		if c[0] != c[1] {
			t.Fatalf("got %q want %q", c[0], c[1])
		}
	}
}

func TestLayer_SeparatorsCannotForgeKeys(t *testing.T) {
	k := Doc("demo:places  Göteborg", 1)
	if k != "doc:demo-places_G-teborg:1" {
		t.Fatalf("sanitized key %q", k)
	}
	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	if !regexp.MustCompile(`^[A-Za-z0-9:_\-]+$`).MatchString(k) {
		t.Fatalf("key contains disallowed characters: %s", k)
	}
	if Layer("   ") != "_" {
		t.Fatalf("empty layer must map to a placeholder")
	}
}

func TestEnvelopeHash_Determinism(t *testing.T) {
	a := EnvelopeHash(geom.NewEnvelope(1, 2, 3, 4), 7)
	b := EnvelopeHash(geom.NewEnvelope(3, 4, 1, 2), 7)
	if a != b {
		t.Fatalf("same normalized envelope must hash equally")
	}
	if a == EnvelopeHash(geom.NewEnvelope(1, 2, 3, 4), 8) {
		t.Fatalf("resolution must change the hash")
	}
	if a == EnvelopeHash(geom.NewEnvelope(1, 2, 3, 4.0000001), 7) {
		t.Fatalf("different envelopes collided")
	}
}
