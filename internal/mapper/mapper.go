// Package mapper converts envelopes to H3 cell coverings.
package mapper

import "github.com/mohammed-shakir/spatial-entities/internal/core/geom"

// Covering is the set of cells touching an envelope. Wide means the envelope could not be covered
// within the cell budget and callers must treat it as overlapping everything.
type Covering struct {
	Cells []string
	Wide  bool
}

type Interface interface {
	Cover(env geom.Envelope, res int) (Covering, error)
}
