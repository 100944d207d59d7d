package h3mapper

import (
	"errors"
	"fmt"
	"math"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/spatial-entities/internal/cache/keys"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/core/observability"
	"github.com/mohammed-shakir/spatial-entities/internal/mapper"
)

// average hexagon edge length in km per resolution
var edgeKm = [16]float64{
	1281.256011, 483.0568391, 182.5129565, 68.97922179,
	26.07175968, 9.854090990, 3.724532667, 1.406475763,
	0.531414010, 0.200786148, 0.075863783, 0.028663897,
	0.010830188, 0.004092010, 0.001546100, 0.000584169,
}

const (
	kmPerDegree = 111.32
	// sample spacing as a fraction of the average edge; small enough that every cell the
	// envelope touches neighbours a sampled cell
	sampleFactor = 0.3
)

type Option func(*Mapper)

// WithMaxCells bounds a covering; larger envelopes come back Wide.
func WithMaxCells(n int) Option {
	return func(m *Mapper) {
		if n > 0 {
			m.maxCells = n
		}
	}
}

func WithCacheSize(n int) Option {
	return func(m *Mapper) { m.cacheSize = n }
}

type Mapper struct {
	maxCells  int
	cacheSize int
	cache     *lru.Cache[uint64, mapper.Covering]
}

var _ mapper.Interface = (*Mapper)(nil)

func New(opts ...Option) *Mapper {
	m := &Mapper{maxCells: 4096, cacheSize: 1024}
	for _, o := range opts {
		o(m)
	}
	if m.cacheSize > 0 {
		c, err := lru.New[uint64, mapper.Covering](m.cacheSize)
		if err == nil {
			m.cache = c
		}
	}
	return m
}

// Cover returns every cell at res that env touches, expanded by one ring, sorted.
// Coordinates are lon (X) and lat (Y) in degrees.
func (m *Mapper) Cover(env geom.Envelope, res int) (mapper.Covering, error) {
	if err := validateRes(res); err != nil {
		return mapper.Covering{}, err
	}
	if env.IsEmpty() {
		return mapper.Covering{}, nil
	}
	var key uint64
	if m.cache != nil {
		key = keys.EnvelopeHash(env, res)
		if c, ok := m.cache.Get(key); ok {
			observability.IncCoveringHit()
			return c, nil
		}
		observability.IncCoveringMiss()
	}
	c, err := m.cover(env, res)
	if err != nil {
		return mapper.Covering{}, err
	}
	if m.cache != nil {
		m.cache.Add(key, c)
	}
	return c, nil
}

func (m *Mapper) cover(env geom.Envelope, res int) (mapper.Covering, error) {
	if env.MinY < -90 || env.MaxY > 90 || env.MinX < -180 || env.MaxX > 180 {
		return mapper.Covering{Wide: true}, nil
	}
	step := edgeKm[res] / kmPerDegree * sampleFactor
	nx := int(math.Ceil(env.Width()/step)) + 1
	ny := int(math.Ceil(env.Height()/step)) + 1
	if nx*ny > m.maxCells {
		return mapper.Covering{Wide: true}, nil
	}

	seen := make(map[h3.Cell]struct{})
	for i := 0; i < nx; i++ {
		x := env.MinX
		if nx > 1 {
			x += env.Width() * float64(i) / float64(nx-1)
		}
		for j := 0; j < ny; j++ {
			y := env.MinY
			if ny > 1 {
				y += env.Height() * float64(j) / float64(ny-1)
			}
			c, err := h3.LatLngToCell(h3.LatLng{Lat: y, Lng: x}, res)
			if err != nil {
				return mapper.Covering{}, fmt.Errorf("h3 cell for (%g,%g): %w", x, y, err)
			}
			seen[c] = struct{}{}
		}
	}
	if env.Width() > 0 && env.Height() > 0 && env.Width() < 180 {
		inner, err := polyfillOne(envelopeLoop(env), nil, res)
		if err != nil {
			return mapper.Covering{}, err
		}
		for _, c := range inner {
			seen[c] = struct{}{}
		}
	}

	ring := make(map[h3.Cell]struct{}, len(seen)*7)
	for c := range seen {
		disk, err := h3.GridDisk(c, 1)
		if err != nil {
			return mapper.Covering{}, fmt.Errorf("h3 grid disk: %w", err)
		}
		for _, d := range disk {
			ring[d] = struct{}{}
		}
		if len(ring) > m.maxCells {
			return mapper.Covering{Wide: true}, nil
		}
	}
	out := make([]string, 0, len(ring))
	for c := range ring {
		out = append(out, c.String())
	}
	sort.Strings(out)
	return mapper.Covering{Cells: out}, nil
}

// Cell returns the cell containing a lon/lat position.
func (m *Mapper) Cell(lon, lat float64, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

// CachedCoverings reports how many coverings the LRU holds.
func (m *Mapper) CachedCoverings() int {
	if m.cache == nil {
		return 0
	}
	return m.cache.Len()
}

// --- helpers ---

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// envelopeLoop is the open rectangular loop of env in degrees.
func envelopeLoop(env geom.Envelope) h3.GeoLoop {
	return h3.GeoLoop{
		{Lat: env.MinY, Lng: env.MinX},
		{Lat: env.MinY, Lng: env.MaxX},
		{Lat: env.MaxY, Lng: env.MaxX},
		{Lat: env.MaxY, Lng: env.MinX},
	}
}

// polyfillOne returns the cells whose centers fall inside the loop.
func polyfillOne(outer h3.GeoLoop, holes []h3.GeoLoop, res int) ([]h3.Cell, error) {
	if len(outer) < 3 {
		return nil, errors.New("outer ring has < 3 vertices")
	}
	poly := h3.GeoPolygon{
		GeoLoop: outer,
		Holes:   holes,
	}
	cells, err := h3.PolygonToCells(poly, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	return cells, nil
}
