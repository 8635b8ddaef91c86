package core

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned when no owner identity can be resolved for
// an operation. The operation aborts before any network call.
var ErrUnauthenticated = errors.New("no authenticated owner")

// ValidationError reports a missing or malformed form field. It is raised
// before any state is touched and never reaches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreError is a non-2xx response or transport failure from the record
// store. Message carries the store's own message when the body had one,
// otherwise a generic fallback suitable for display.
type StoreError struct {
	StatusCode int // 0 on transport failure
	Message    string
	Err        error
}

func (e *StoreError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("record store: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("record store: %s", e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ParseError reports a malformed local mirror document. Callers recover by
// treating the mirror as empty; the error is logged, not surfaced.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse mirror %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
