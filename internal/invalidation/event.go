// Package invalidation carries mutation events between processes sharing a remote store.
package invalidation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

const Version = 1

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event announces one successful mutation batch on a layer.
type Event struct {
	Version    int       `json:"version"`
	Op         string    `json:"op"`
	Layer      string    `json:"layer"`
	TS         time.Time `json:"ts"`
	FeatureIDs []uint64  `json:"feature_ids"`
	Source     string    `json:"source"`
	Seq        uint64    `json:"seq"`
	BBox       *BBox     `json:"bbox,omitempty"`
}

// BBox is the union of the affected entity envelopes.
type BBox struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid"`
}

// BBoxOf returns nil for an empty envelope.
func BBoxOf(env geom.Envelope, srid int) *BBox {
	if env.IsEmpty() {
		return nil
	}
	return &BBox{X1: env.MinX, Y1: env.MinY, X2: env.MaxX, Y2: env.MaxY, SRID: fmt.Sprintf("EPSG:%d", srid)}
}

func (b BBox) Envelope() geom.Envelope {
	return geom.NewEnvelope(b.X1, b.Y1, b.X2, b.Y2)
}

var ErrInvalidEvent = errors.New("invalid event")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEvent, fmt.Sprintf(format, args...))
}

func (e Event) Validate() error {
	if e.Version != Version {
		return invalid("version must be %d", Version)
	}
	switch e.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return invalid("op must be insert|update|delete")
	}
	if strings.TrimSpace(e.Layer) == "" {
		return invalid("layer is required")
	}
	if e.TS.IsZero() {
		return invalid("ts is required")
	}
	if strings.TrimSpace(e.Source) == "" {
		return invalid("source is required")
	}
	if len(e.FeatureIDs) == 0 {
		return invalid("feature_ids must not be empty")
	}
	if e.BBox != nil {
		bb := *e.BBox
		if !strings.HasPrefix(bb.SRID, "EPSG:") {
			return invalid("bbox.srid must be EPSG:<code>")
		}
		if !(bb.X2 >= bb.X1 && bb.Y2 >= bb.Y1) {
			return invalid("bbox must satisfy x2>=x1 and y2>=y1")
		}
	}
	return nil
}
