package spatial

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("entity not found")
	ErrDuplicateID   = errors.New("duplicate entity id")
	ErrInvalidEntity = errors.New("invalid entity")
	ErrClosed        = errors.New("source is closed")
)

// NotFoundError matches ErrNotFound.
type NotFoundError struct {
	Layer string
	ID    uint64
}

func (e *NotFoundError) Error() string {
	if e.Layer == "" {
		return fmt.Sprintf("entity %d: not found", e.ID)
	}
	return fmt.Sprintf("%s %d: not found", e.Layer, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError rejects one entity of a mutation batch. It matches ErrInvalidEntity and unwraps
// to its Reason, so errors.Is(err, ErrDuplicateID) works for id clashes.
type ValidationError struct {
	Layer  string
	ID     uint64
	Reason error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Layer, e.ID, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidEntity }

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateID):
		return "duplicate"
	case errors.Is(err, ErrInvalidEntity):
		return "invalid"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
