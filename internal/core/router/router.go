// Package router serves layers as OGC-API-Features-like collections.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/core/projection"
	"github.com/mohammed-shakir/spatial-entities/internal/core/spatial"
	mylog "github.com/mohammed-shakir/spatial-entities/internal/logger"
)

// Collection is one served layer.
type Collection interface {
	Name() string
	Schema() projection.Schema
	Converter() *codec.Converter
	Count(ctx context.Context) (int, error)
	Extents(ctx context.Context) (geom.Envelope, error)
	SelectEnvelope(ctx context.Context, env geom.Envelope) (*projection.Table, error)
	SelectExternal(ctx context.Context, ext codec.ExternalGeometry) (*projection.Table, error)
	SelectID(ctx context.Context, id uint64) (*projection.Table, error)
	Insert(ctx context.Context, fc *geojson.FeatureCollection) (int, error)
}

const maxBodyBytes = 8 << 20

type api struct {
	log   *slog.Logger
	cols  map[string]Collection
	names []string
}

// Mount registers the collection routes on r.
func Mount(r chi.Router, logger *slog.Logger, cols ...Collection) {
	a := &api{log: logger, cols: make(map[string]Collection, len(cols))}
	for _, c := range cols {
		a.cols[c.Name()] = c
		a.names = append(a.names, c.Name())
	}
	sort.Strings(a.names)

	r.Get("/collections", a.list)
	r.Route("/collections/{layer}", func(r chi.Router) {
		r.Get("/", a.describe)
		r.Get("/items", a.items)
		r.Post("/items", a.insert)
		r.Get("/items/{id}", a.item)
	})
}

func (a *api) collection(w http.ResponseWriter, r *http.Request) (Collection, bool) {
	name := chi.URLParam(r, "layer")
	c, ok := a.cols[name]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown collection %q", name), http.StatusNotFound)
	}
	return c, ok
}

func (a *api) list(w http.ResponseWriter, _ *http.Request) {
	type link struct {
		Name string `json:"name"`
		Href string `json:"href"`
	}
	out := struct {
		Collections []link `json:"collections"`
	}{Collections: make([]link, 0, len(a.names))}
	for _, n := range a.names {
		out.Collections = append(out.Collections, link{Name: n, Href: "/collections/" + n})
	}
	writeJSON(w, "application/json", out)
}

type columnDoc struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Ordinal     int    `json:"ordinal"`
	Nullable    bool   `json:"nullable"`
	ReadOnly    bool   `json:"readonly"`
	Unique      bool   `json:"unique"`
}

func (a *api) describe(w http.ResponseWriter, r *http.Request) {
	c, ok := a.collection(w, r)
	if !ok {
		return
	}
	n, err := c.Count(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	env, err := c.Extents(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	s := c.Schema()
	cols := make([]columnDoc, len(s.Columns))
	for i, col := range s.Columns {
		typ := "unknown"
		if col.Type != nil {
			typ = col.Type.String()
		}
		cols[i] = columnDoc{
			Name: col.Name, Title: col.Title, Description: col.Description, Type: typ,
			Ordinal: col.Ordinal, Nullable: col.AllowNull, ReadOnly: col.ReadOnly, Unique: col.Unique,
		}
	}
	var extent []float64
	if !env.IsEmpty() {
		extent = []float64{env.MinX, env.MinY, env.MaxX, env.MaxY}
	}
	writeJSON(w, "application/json", map[string]any{
		"name":           c.Name(),
		"table":          s.Table,
		"id_field":       s.IDField,
		"geometry_field": s.GeometryField,
		"columns":        cols,
		"count":          n,
		"extent":         extent,
		"srid":           c.Converter().SRID(),
		"coord_scheme":   c.Converter().Scheme().String(),
	})
}

func (a *api) items(w http.ResponseWriter, r *http.Request) {
	c, ok := a.collection(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	rawBBox := strings.TrimSpace(q.Get("bbox"))
	rawGeom := strings.TrimSpace(q.Get("geometry"))

	var (
		tab *projection.Table
		err error
	)
	switch {
	case rawBBox != "" && rawGeom != "":
		http.Error(w, "bbox and geometry are mutually exclusive", http.StatusBadRequest)
		return
	case rawGeom != "":
		var ext codec.ExternalGeometry
		if err := json.Unmarshal([]byte(rawGeom), &ext); err != nil {
			http.Error(w, "invalid geometry: "+err.Error(), http.StatusBadRequest)
			return
		}
		tab, err = c.SelectExternal(r.Context(), ext)
	case rawBBox != "":
		env, perr := ParseBBox(rawBBox, c.Converter().SRID())
		if perr != nil {
			http.Error(w, "invalid bbox: "+perr.Error(), http.StatusBadRequest)
			return
		}
		tab, err = c.SelectEnvelope(r.Context(), env)
	default:
		http.Error(w, "one of bbox or geometry is required", http.StatusBadRequest)
		return
	}
	if err != nil && !a.partial(r, tab, err) {
		a.fail(w, r, err)
		return
	}
	a.writeTable(w, r, tab, c.Converter().SRID())
}

// partial reports whether err only lists rows that could not be projected; those are logged and the
// rest of the table is served.
func (a *api) partial(r *http.Request, tab *projection.Table, err error) bool {
	var re *projection.RowError
	if tab == nil || !errors.As(err, &re) {
		return false
	}
	a.log.WarnContext(r.Context(), "rows skipped", "path", r.URL.Path, "err", err)
	return true
}

func (a *api) item(w http.ResponseWriter, r *http.Request) {
	c, ok := a.collection(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	tab, err := c.SelectID(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if r.URL.Query().Get("f") == "fgb" {
		a.writeTable(w, r, tab, c.Converter().SRID())
		return
	}
	fc, err := projection.ToFeatureCollection(tab)
	if err != nil || len(fc.Features) != 1 {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, "application/geo+json", fc.Features[0])
}

func (a *api) insert(w http.ResponseWriter, r *http.Request) {
	c, ok := a.collection(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r.Body).Decode(&fc); err != nil {
		http.Error(w, "invalid feature collection: "+err.Error(), http.StatusBadRequest)
		return
	}
	n, err := c.Insert(r.Context(), &fc)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]int{"inserted": n})
}

func (a *api) writeTable(w http.ResponseWriter, r *http.Request, tab *projection.Table, srid int) {
	if r.URL.Query().Get("f") == "fgb" {
		if tab.Len() == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/flatgeobuf")
		if err := projection.WriteFlatGeobuf(w, tab, projection.WithSRID(srid)); err != nil {
			a.log.WarnContext(r.Context(), "write flatgeobuf", "err", err)
		}
		return
	}
	fc, err := projection.ToFeatureCollection(tab)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, "application/geo+json", fc)
}

// fail maps source errors to status codes.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		err = errors.New("unexpected empty result")
	}
	code := http.StatusInternalServerError
	var conv *codec.ConversionError
	switch {
	case errors.Is(err, spatial.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, spatial.ErrDuplicateID):
		code = http.StatusConflict
	case errors.Is(err, spatial.ErrInvalidEntity), errors.As(err, &conv):
		code = http.StatusBadRequest
	case errors.Is(err, spatial.ErrClosed):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	msg := err.Error()
	if code >= 500 {
		a.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		if id := mylog.RequestID(r.Context()); id != "" {
			msg += " (request " + id + ")"
		}
	}
	http.Error(w, msg, code)
}

func writeJSON(w http.ResponseWriter, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	_ = json.NewEncoder(w).Encode(v)
}

// ParseBBox reads "minx,miny,maxx,maxy[,EPSG:code]". A given code must equal srid.
func ParseBBox(s string, srid int) (geom.Envelope, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return geom.EmptyEnvelope(), errors.New("expected minx,miny,maxx,maxy[,EPSG:code]")
	}
	var v [4]float64
	for i := range v {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return geom.EmptyEnvelope(), fmt.Errorf("value %d: %w", i+1, err)
		}
		v[i] = f
	}
	if len(parts) == 5 {
		want := "EPSG:" + strconv.Itoa(srid)
		if got := strings.ToUpper(strings.TrimSpace(parts[4])); got != want {
			return geom.EmptyEnvelope(), fmt.Errorf("srid %q does not match collection %s", got, want)
		}
	}
	if v[2] < v[0] || v[3] < v[1] {
		return geom.EmptyEnvelope(), errors.New("coordinates must satisfy maxx>=minx and maxy>=miny")
	}
	return geom.NewEnvelope(v[0], v[1], v[2], v[3]), nil
}
