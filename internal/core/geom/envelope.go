package geom

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Envelope is an axis-aligned rectangle. MinX > MaxX marks the empty envelope.
type Envelope struct {
	MinX, MinY, MaxX, MaxY float64
}

func EmptyEnvelope() Envelope {
	return Envelope{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

// NewEnvelope normalizes the corner order.
func NewEnvelope(x1, y1, x2, y2 float64) Envelope {
	return Envelope{
		MinX: math.Min(x1, x2), MinY: math.Min(y1, y2),
		MaxX: math.Max(x1, x2), MaxY: math.Max(y1, y2),
	}
}

func (e Envelope) IsEmpty() bool {
	return !(e.MinX <= e.MaxX && e.MinY <= e.MaxY)
}

func (e Envelope) Width() float64 {
	if e.IsEmpty() {
		return 0
	}
	return e.MaxX - e.MinX
}

func (e Envelope) Height() float64 {
	if e.IsEmpty() {
		return 0
	}
	return e.MaxY - e.MinY
}

func (e Envelope) ExpandToInclude(c Coordinate) Envelope {
	if math.IsNaN(c.X) || math.IsNaN(c.Y) {
		return e
	}
	if e.IsEmpty() {
		return Envelope{MinX: c.X, MinY: c.Y, MaxX: c.X, MaxY: c.Y}
	}
	return Envelope{
		MinX: math.Min(e.MinX, c.X), MinY: math.Min(e.MinY, c.Y),
		MaxX: math.Max(e.MaxX, c.X), MaxY: math.Max(e.MaxY, c.Y),
	}
}

func (e Envelope) Union(o Envelope) Envelope {
	switch {
	case o.IsEmpty():
		return e
	case e.IsEmpty():
		return o
	}
	return Envelope{
		MinX: math.Min(e.MinX, o.MinX), MinY: math.Min(e.MinY, o.MinY),
		MaxX: math.Max(e.MaxX, o.MaxX), MaxY: math.Max(e.MaxY, o.MaxY),
	}
}

// Intersects is closed on both sides: touching edges overlap.
func (e Envelope) Intersects(o Envelope) bool {
	if e.IsEmpty() || o.IsEmpty() {
		return false
	}
	return e.Bound().Intersects(o.Bound())
}

func (e Envelope) Contains(c Coordinate) bool {
	if e.IsEmpty() {
		return false
	}
	return e.Bound().Contains(orb.Point{c.X, c.Y})
}

// Bound converts to orb; callers must check IsEmpty first.
func (e Envelope) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e.MinX, e.MinY}, Max: orb.Point{e.MaxX, e.MaxY}}
}

func EnvelopeFromBound(b orb.Bound) Envelope {
	return NewEnvelope(b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
}

func (e Envelope) String() string {
	if e.IsEmpty() {
		return "Env[empty]"
	}
	return fmt.Sprintf("Env[%g,%g : %g,%g]", e.MinX, e.MinY, e.MaxX, e.MaxY)
}
