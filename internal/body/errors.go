package body

import (
	"errors"
	"fmt"
)

var (
	// ErrDisturbedOrLocked is returned when a body was already consumed or is
	// held by a reader.
	ErrDisturbedOrLocked = errors.New("the response's stream is disturbed or locked")

	// ErrInappropriateMIME is returned by the form decoder for any content
	// type other than application/x-www-form-urlencoded.
	ErrInappropriateMIME = errors.New("inappropriate MIME-type for body")

	// ErrRuntimeFailure signals that the runtime could not complete an
	// operation and left no exception value behind.
	ErrRuntimeFailure = errors.New("runtime operation failed")

	// ErrUnknownKind is returned for a Kind outside Kinds.
	ErrUnknownKind = errors.New("unknown body kind")
)

// ForeignException carries an exception value raised by the runtime's parser.
// The value is surfaced as-is so callers can rethrow it.
type ForeignException struct {
	Value any
}

func (e *ForeignException) Error() string {
	if err, ok := e.Value.(error); ok {
		return "runtime exception: " + err.Error()
	}
	return fmt.Sprintf("runtime exception: %v", e.Value)
}

// Unwrap exposes the exception value when it is itself an error.
func (e *ForeignException) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Error codes reported by ErrorCode.
const (
	CodeDisturbed         = "disturbed_or_locked"
	CodeInappropriateMIME = "inappropriate_mime"
	CodeRuntimeFailure    = "runtime_failure"
	CodeForeignException  = "foreign_exception"
	CodeUnknownKind       = "unknown_kind"
	CodeUnknown           = "unknown"
)

// ErrorCode maps a rejection error to a stable code.
func ErrorCode(err error) string {
	var foreign *ForeignException
	switch {
	case err == nil:
		return ""
	case errors.As(err, &foreign):
		return CodeForeignException
	case errors.Is(err, ErrDisturbedOrLocked):
		return CodeDisturbed
	case errors.Is(err, ErrInappropriateMIME):
		return CodeInappropriateMIME
	case errors.Is(err, ErrRuntimeFailure):
		return CodeRuntimeFailure
	case errors.Is(err, ErrUnknownKind):
		return CodeUnknownKind
	default:
		return CodeUnknown
	}
}
