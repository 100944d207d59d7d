package codec

import (
	"errors"
	"fmt"
)

type Reason string

const (
	WrongKind   Reason = "wrong_kind"
	WrongSRID   Reason = "wrong_srid"
	UnknownType Reason = "unknown_type"
	Malformed   Reason = "malformed"
)

var (
	ErrWrongKind   = errors.New("codec: wrong geometry kind")
	ErrWrongSRID   = errors.New("codec: wrong srid")
	ErrUnknownType = errors.New("codec: unknown geometry type")
	ErrMalformed   = errors.New("codec: malformed geometry")
)

// ConversionError is returned by every failed conversion; match with errors.Is on the Err* sentinels.
type ConversionError struct {
	Reason Reason
	Want   string
	Got    string
	Detail string
	Err    error
}

func (e *ConversionError) Error() string {
	msg := "conversion error: " + string(e.Reason)
	if e.Want != "" || e.Got != "" {
		msg += fmt.Sprintf(" (want %s, got %s)", e.Want, e.Got)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Err }

func (e *ConversionError) Is(target error) bool {
	switch target {
	case ErrWrongKind:
		return e.Reason == WrongKind
	case ErrWrongSRID:
		return e.Reason == WrongSRID
	case ErrUnknownType:
		return e.Reason == UnknownType
	case ErrMalformed:
		return e.Reason == Malformed
	}
	return false
}

func malformed(format string, args ...any) *ConversionError {
	return &ConversionError{Reason: Malformed, Detail: fmt.Sprintf(format, args...)}
}
