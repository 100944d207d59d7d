package entity

import (
	"errors"
	"fmt"
)

type Reason string

const (
	MissingID         Reason = "missing_id"
	DuplicateID       Reason = "duplicate_id"
	MissingGeometry   Reason = "missing_geometry"
	DuplicateGeometry Reason = "duplicate_geometry"
	DuplicateOrdinal  Reason = "duplicate_ordinal"
	BadIDType         Reason = "bad_id_type"
	BadGeometryType   Reason = "bad_geometry_type"
	BadTag            Reason = "bad_tag"
	NotStruct         Reason = "not_struct"
)

// ErrMetadata matches every *MetadataError.
var ErrMetadata = errors.New("entity metadata error")

var (
	ErrNoGeometry       = errors.New("entity has no geometry")
	ErrGeometryMismatch = errors.New("geometry does not fit the entity field")
	ErrNilEntity        = errors.New("nil entity")
)

// MetadataError reports a type whose markers cannot form a descriptor.
type MetadataError struct {
	Type   string
	Reason Reason
	Field  string
	Detail string
}

func (e *MetadataError) Error() string {
	msg := fmt.Sprintf("entity %s: %s", e.Type, e.Reason)
	if e.Field != "" {
		msg += " (field " + e.Field + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *MetadataError) Is(target error) bool { return target == ErrMetadata }
