package router

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

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/collection"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	mylog "github.com/mohammed-shakir/spatial-entities/internal/logger"
	"github.com/mohammed-shakir/spatial-entities/internal/poi"
	"github.com/mohammed-shakir/spatial-entities/internal/store/memory"
)

func TestParseBBox_Valid(t *testing.T) {
	env, err := ParseBBox("11.9,57.6,18.2,59.4", 4326)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.MinX != 11.9 || env.MinY != 57.6 || env.MaxX != 18.2 || env.MaxY != 59.4 {
		t.Fatalf("env=%v", env)
	}
	if _, err := ParseBBox(" 1, 1, 1, 1 ,epsg:4326", 4326); err != nil {
		t.Fatalf("degenerate box with srid: %v", err)
	}
}

func TestParseBBox_Invalid(t *testing.T) {
	for _, s := range []string{
		"",
		"1,2,3",
		"a,2,3,4",
		"3,2,1,4",
		"1,4,3,2",
		"1,2,3,4,EPSG:3857",
		"1,2,3,4,5,6",
	} {
		if _, err := ParseBBox(s, 4326); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	src := memory.New[poi.POI](poi.POIs)
	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := src.Insert(context.Background(),
		poi.NewPOI(1, 0, 0, "origin", "park"),
		poi.NewPOI(2, 10, 10, "far", "cafe"),
		poi.NewPOI(3, 0.5, 0.5, "near", "shop"),
	); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	col := collection.New[poi.POI]("poi", src, poi.POIs, codec.NewConverter(codec.Geographic2D))

	r := chi.NewRouter()
	Mount(r, slog.New(slog.NewTextHandler(io.Discard, nil)), col)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, u string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("GET %s: %v", u, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestItems_BBox(t *testing.T) {
	srv := newServer(t)

	resp, body := get(t, srv.URL+"/collections/poi/items?bbox=-1,-1,1,1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Fatalf("content-type=%q", ct)
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("features=%d want 2", len(fc.Features))
	}
}

func TestItems_Geometry(t *testing.T) {
	srv := newServer(t)
	g := `{"type":"Polygon","coordinates":[[[9,9],[9,11],[11,11],[11,9],[9,9]]]}`

	resp, body := get(t, srv.URL+"/collections/poi/items?geometry="+url.QueryEscape(g))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fc.Features) != 1 || fc.Features[0].Properties["Name"] != "far" {
		t.Fatalf("features=%+v", fc.Features)
	}

	wrong := `{"type":"Point","coordinates":[0,0],"crs":{"type":"name","properties":{"name":"EPSG:3857"}}}`
	resp, _ = get(t, srv.URL+"/collections/poi/items?geometry="+url.QueryEscape(wrong))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong srid status=%d", resp.StatusCode)
	}
}

func TestItems_BadRequests(t *testing.T) {
	srv := newServer(t)
	for _, q := range []string{
		"",
		"?bbox=1,2,3",
		"?bbox=1,2,3,4,EPSG:3857",
		"?bbox=0,0,1,1&geometry=%7B%7D",
		"?geometry=not-json",
	} {
		resp, _ := get(t, srv.URL+"/collections/poi/items"+q)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%q: status=%d", q, resp.StatusCode)
		}
	}
	resp, _ := get(t, srv.URL+"/collections/nope/items?bbox=0,0,1,1")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown layer status=%d", resp.StatusCode)
	}
}

func TestItems_FlatGeobuf(t *testing.T) {
	srv := newServer(t)

	resp, body := get(t, srv.URL+"/collections/poi/items?bbox=-1,-1,1,1&f=fgb")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/flatgeobuf" {
		t.Fatalf("content-type=%q", ct)
	}
	if len(body) < 8 || body[0] != 0x66 || body[1] != 0x67 || body[2] != 0x62 {
		t.Fatalf("missing fgb magic: % x", body[:min(8, len(body))])
	}

	resp, _ = get(t, srv.URL+"/collections/poi/items?bbox=50,50,51,51&f=fgb")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("empty fgb status=%d", resp.StatusCode)
	}
}

func TestItem_ByID(t *testing.T) {
	srv := newServer(t)

	resp, body := get(t, srv.URL+"/collections/poi/items/3")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	f, err := geojson.UnmarshalFeature(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Properties["Name"] != "near" {
		t.Fatalf("props=%v", f.Properties)
	}

	if resp, _ := get(t, srv.URL+"/collections/poi/items/99"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing id status=%d", resp.StatusCode)
	}
	if resp, _ := get(t, srv.URL+"/collections/poi/items/-4"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status=%d", resp.StatusCode)
	}
}

func TestInsert(t *testing.T) {
	srv := newServer(t)
	post := func(body string) int {
		t.Helper()
		resp, err := http.Post(srv.URL+"/collections/poi/items", "application/geo+json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	fresh := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":7,"geometry":{"type":"Point","coordinates":[20,20]},"properties":{"Name":"new"}}]}`
	if code := post(fresh); code != http.StatusCreated {
		t.Fatalf("insert status=%d", code)
	}
	if code := post(fresh); code != http.StatusConflict {
		t.Fatalf("duplicate status=%d", code)
	}
	noID := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[1,1]},"properties":{}}]}`
	if code := post(noID); code != http.StatusBadRequest {
		t.Fatalf("missing id status=%d", code)
	}
	if code := post("{"); code != http.StatusBadRequest {
		t.Fatalf("bad json status=%d", code)
	}

	resp, _ := get(t, srv.URL+"/collections/poi/items/7")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("inserted feature status=%d", resp.StatusCode)
	}
}

func TestDescribeAndList(t *testing.T) {
	srv := newServer(t)

	resp, body := get(t, srv.URL+"/collections/poi")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var doc struct {
		Name    string      `json:"name"`
		Count   int         `json:"count"`
		Extent  []float64   `json:"extent"`
		SRID    int         `json:"srid"`
		Scheme  string      `json:"coord_scheme"`
		Columns []columnDoc `json:"columns"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Name != "poi" || doc.Count != 3 || doc.SRID != geom.WGS84 || len(doc.Columns) != 3 {
		t.Fatalf("doc=%+v", doc)
	}
	if len(doc.Extent) != 4 || doc.Extent[2] != 10 {
		t.Fatalf("extent=%v", doc.Extent)
	}
	if doc.Scheme != codec.Geographic2D.String() {
		t.Fatalf("scheme=%q", doc.Scheme)
	}

	resp, body = get(t, srv.URL+"/collections")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"/collections/poi"`) {
		t.Fatalf("list status=%d body=%s", resp.StatusCode, body)
	}
}

func TestFail_ServerErrorsCarryRequestID(t *testing.T) {
	src := memory.New[poi.POI](poi.POIs)
	_ = src.Close(context.Background())
	col := collection.New[poi.POI]("poi", src, poi.POIs, codec.NewConverter(codec.Geographic2D))
	r := chi.NewRouter()
	Mount(r, slog.New(slog.NewTextHandler(io.Discard, nil)), col)

	req := httptest.NewRequest(http.MethodGet, "/collections/poi/items?bbox=0,0,1,1", nil)
	req = req.WithContext(mylog.WithRequestID(req.Context(), "req-7"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "(request req-7)") {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/collections/poi/items/abc", nil)
	req = req.WithContext(mylog.WithRequestID(req.Context(), "req-8"))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest || strings.Contains(rr.Body.String(), "req-8") {
		t.Fatalf("client errors keep the plain message: status=%d body=%q", rr.Code, rr.Body.String())
	}
}
