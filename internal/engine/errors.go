package engine

import (
	"errors"
	"fmt"
)

// UnknownControlError is thrown into a generator that yields an effect no
// handler is registered for.
type UnknownControlError struct {
	// Type is the control tag, the action type, or the Go type of an
	// unrecognized effect value.
	Type string

	// Kind is "control", "action" or "effect".
	Kind string
}

// Error implements the error interface.
func (e *UnknownControlError) Error() string {
	return fmt.Sprintf("no handler registered for %s %q", e.Kind, e.Type)
}

// DuplicateControlError is returned when a control tag is registered twice.
type DuplicateControlError struct {
	Type string
}

// Error implements the error interface.
func (e *DuplicateControlError) Error() string {
	return fmt.Sprintf("control %q is already registered", e.Type)
}

// PanicError carries a panic recovered from a generator body, a reducer or
// a request callback.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// IsUnknownControlError returns true if the error is an UnknownControlError.
// Uses errors.As to handle wrapped errors.
func IsUnknownControlError(err error) bool {
	var uc *UnknownControlError
	return errors.As(err, &uc)
}

// IsDuplicateControlError returns true if the error is a DuplicateControlError.
func IsDuplicateControlError(err error) bool {
	var dc *DuplicateControlError
	return errors.As(err, &dc)
}

// IsPanicError returns true if the error is a recovered panic.
func IsPanicError(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
