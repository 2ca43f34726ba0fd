// Package validate defines the client-input error taxonomy shared by the
// domain packages. Any error that unwraps to *Error is the caller's fault and
// maps to a 400 response; everything else is treated as an upstream failure.
package validate

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Error is a validation failure kind. Values are compared by identity, so
// declare them once as package-level sentinels.
type Error struct {
	msg string
}

// New returns a new validation sentinel.
func New(msg string) *Error {
	return &Error{msg: msg}
}

func (e *Error) Error() string { return e.msg }

// FieldError attaches the offending field path to a validation sentinel.
type FieldError struct {
	Field string
	Err   *Error
}

// Field wraps kind with the name of the field that caused it.
func Field(field string, kind *Error) *FieldError {
	return &FieldError{Field: field, Err: kind}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Err.msg)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Is reports whether err is a validation failure.
func Is(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

// FieldOf returns the field path carried by err, if any.
func FieldOf(err error) string {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Field
	}
	return ""
}

// Cause strips wrapping added by callers and decoders, returning the
// innermost *FieldError or *Error carried by err. Non-validation errors are
// returned unchanged.
func Cause(err error) error {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe
	}
	var ve *Error
	if errors.As(err, &ve) {
		return ve
	}
	return err
}
