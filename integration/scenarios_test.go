package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/spatial-entities/internal/cache/redisstore"
	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/collection"
	"github.com/mohammed-shakir/spatial-entities/internal/core/router"
	"github.com/mohammed-shakir/spatial-entities/internal/core/server"
	"github.com/mohammed-shakir/spatial-entities/internal/core/spatial"
	h3mapper "github.com/mohammed-shakir/spatial-entities/internal/mapper/h3"
	"github.com/mohammed-shakir/spatial-entities/internal/poi"
	"github.com/mohammed-shakir/spatial-entities/internal/store/memory"
	"github.com/mohammed-shakir/spatial-entities/internal/store/redisdocs"
	"github.com/mohammed-shakir/spatial-entities/internal/store/remote"
	"github.com/mohammed-shakir/spatial-entities/internal/store/rtreeidx"
)

var conv = codec.NewConverter(codec.Geographic2D)

func sources(t *testing.T) map[string]func(t *testing.T) spatial.Source[poi.POI] {
	return map[string]func(t *testing.T) spatial.Source[poi.POI]{
		"memory": func(*testing.T) spatial.Source[poi.POI] {
			return memory.New[poi.POI](poi.POIs)
		},
		"rtree": func(*testing.T) spatial.Source[poi.POI] {
			return remote.New[poi.POI](rtreeidx.New(rtreeidx.WithConverter(conv)), poi.POIs)
		},
		"redis": func(t *testing.T) spatial.Source[poi.POI] {
			mr := miniredis.RunT(t)
			cli, err := redisstore.New(context.Background(), mr.Addr())
			if err != nil {
				t.Fatalf("redis: %v", err)
			}
			t.Cleanup(func() { _ = cli.Close() })
			b := redisdocs.New(cli, "poi", h3mapper.New(), redisdocs.WithConverter(conv))
			return remote.New[poi.POI](b, poi.POIs)
		},
	}
}

type client struct {
	t   *testing.T
	url string
}

func (c client) get(path string) (int, []byte) {
	c.t.Helper()
	resp, err := http.Get(c.url + path)
	if err != nil {
		c.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func (c client) post(body string) int {
	c.t.Helper()
	resp, err := http.Post(c.url+"/collections/poi/items", "application/geo+json", strings.NewReader(body))
	if err != nil {
		c.t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func (c client) ids(path string) []uint64 {
	c.t.Helper()
	code, body := c.get(path)
	if code != http.StatusOK {
		c.t.Fatalf("GET %s: status=%d body=%s", path, code, body)
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		c.t.Fatalf("decode %s: %v", path, err)
	}
	out := make([]uint64, 0, len(fc.Features))
	for _, f := range fc.Features {
		out = append(out, uint64(f.ID.(float64)))
	}
	return out
}

func point(id int, x, y float64) string {
	b, _ := json.Marshal(map[string]any{
		"type": "Feature",
		"id":   id,
		"geometry": map[string]any{
			"type":        "Point",
			"coordinates": []float64{x, y},
		},
		"properties": map[string]any{"Name": "p"},
	})
	return string(b)
}

func features(fs ...string) string {
	return `{"type":"FeatureCollection","features":[` + strings.Join(fs, ",") + `]}`
}

func TestScenarios_OverHTTP(t *testing.T) {
	for name, newSource := range sources(t) {
		t.Run(name, func(t *testing.T) {
			src := newSource(t)
			if err := src.Open(context.Background()); err != nil {
				t.Fatalf("Open: %v", err)
			}
			col := collection.New[poi.POI]("poi", spatial.NewSynchronized[poi.POI](src), poi.POIs, conv)
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			srv := httptest.NewServer(server.Handler(logger, []router.Collection{col}))
			defer srv.Close()
			c := client{t: t, url: srv.URL}

			// two points span the extent
			if code := c.post(features(point(1, 0, 0), point(2, 2, 2))); code != http.StatusCreated {
				t.Fatalf("insert status=%d", code)
			}
			_, body := c.get("/collections/poi")
			var doc struct {
				Count  int       `json:"count"`
				Extent []float64 `json:"extent"`
			}
			if err := json.Unmarshal(body, &doc); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if doc.Count != 2 || len(doc.Extent) != 4 ||
				doc.Extent[0] != 0 || doc.Extent[1] != 0 || doc.Extent[2] != 2 || doc.Extent[3] != 2 {
				t.Fatalf("doc=%+v", doc)
			}

			// a box between the points is empty
			if got := c.ids("/collections/poi/items?bbox=0.5,0.5,1.5,1.5"); len(got) != 0 {
				t.Fatalf("middle box=%v", got)
			}

			// a third point lands in it
			if code := c.post(features(point(5, 1, 1))); code != http.StatusCreated {
				t.Fatalf("insert status=%d", code)
			}
			if got := c.ids("/collections/poi/items?bbox=0.5,0.5,1.5,1.5"); len(got) != 1 || got[0] != 5 {
				t.Fatalf("middle box=%v", got)
			}

			// re-inserting an id conflicts and leaves the store unchanged
			if code := c.post(features(point(7, 3, 3), point(5, 1, 1))); code != http.StatusConflict {
				t.Fatalf("duplicate status=%d", code)
			}
			if code, _ := c.get("/collections/poi/items/7"); code != http.StatusNotFound {
				t.Fatalf("partial insert leaked, status=%d", code)
			}

			// unknown id
			if code, _ := c.get("/collections/poi/items/99"); code != http.StatusNotFound {
				t.Fatalf("missing id status=%d", code)
			}

			// a geometry in another crs is rejected
			g := `{"type":"Point","coordinates":[1,1],"crs":{"type":"name","properties":{"name":"EPSG:3857"}}}`
			if code, _ := c.get("/collections/poi/items?geometry=" + url.QueryEscape(g)); code != http.StatusBadRequest {
				t.Fatalf("wrong srid status=%d", code)
			}

			// touching boundaries count as intersecting
			if got := c.ids("/collections/poi/items?bbox=2,2,3,3"); len(got) != 1 || got[0] != 2 {
				t.Fatalf("touching box=%v", got)
			}
		})
	}
}
