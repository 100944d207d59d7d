package spatial

import (
	"errors"
	"fmt"

	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

// CheckBatch validates a mutation batch before anything is written: every entity needs a readable
// geometry and ids must be unique within the batch. All failures are joined.
func CheckBatch[T any](acc Accessor[T], items []T) error {
	seen := make(map[uint64]struct{}, len(items))
	var errs []error
	for _, it := range items {
		id := acc.ID(it)
		g, err := acc.Geometry(it)
		if err != nil {
			errs = append(errs, &ValidationError{Layer: acc.Name(), ID: id, Reason: err})
			continue
		}
		if geom.IsNil(g) {
			errs = append(errs, &ValidationError{Layer: acc.Name(), ID: id, Reason: fmt.Errorf("nil geometry")})
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, &ValidationError{Layer: acc.Name(), ID: id,
				Reason: fmt.Errorf("%w: repeated in batch", ErrDuplicateID)})
			continue
		}
		seen[id] = struct{}{}
	}
	return errors.Join(errs...)
}

// CheckSRIDs rejects entities whose geometry is not in srid. Entities CheckBatch already
// rejected are skipped.
func CheckSRIDs[T any](acc Accessor[T], srid int, items []T) error {
	var errs []error
	for _, it := range items {
		g, err := acc.Geometry(it)
		if err != nil || geom.IsNil(g) {
			continue
		}
		if err := codec.CheckSRID(srid, g); err != nil {
			errs = append(errs, &ValidationError{Layer: acc.Name(), ID: acc.ID(it), Reason: err})
		}
	}
	return errors.Join(errs...)
}

// Duplicate builds the error for an id that is already stored.
func Duplicate(layer string, id uint64) error {
	return &ValidationError{Layer: layer, ID: id, Reason: fmt.Errorf("%w: already stored", ErrDuplicateID)}
}

// IDs returns the ids of items in order.
func IDs[T any](acc Accessor[T], items []T) []uint64 {
	out := make([]uint64, len(items))
	for i, it := range items {
		out[i] = acc.ID(it)
	}
	return out
}
