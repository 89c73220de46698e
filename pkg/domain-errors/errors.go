// Package domainerrors defines the discriminated error type used across the
// service layer. Stores return infrastructure sentinels; services translate
// them into one of these codes so every caller handles the taxonomy
// explicitly instead of matching on error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a member of the error taxonomy.
type Code string

const (
	// CodeBadRequest marks invalid caller input: neither identifier supplied,
	// or an attempt to create a contact with both fields absent.
	CodeBadRequest Code = "bad_request"
	// CodeNotFound marks a reference to a nonexistent contact. Against a
	// consistent store the engine never produces this; it indicates an
	// internal invariant violation.
	CodeNotFound Code = "not_found"
	// CodeConsistency marks stored data the engine refuses to paper over:
	// secondary contacts whose linked primary cannot be resolved.
	CodeConsistency Code = "consistency"
	// CodeTimeout marks an operation abandoned because its context expired.
	CodeTimeout Code = "timeout"
	// CodeUnavailable marks a transient storage or transport failure.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks everything else; details are logged, not returned.
	CodeInternal Code = "internal_error"
)

// Error couples a taxonomy code with a human-readable message and an optional
// wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a domain error that keeps cause available for errors.Is and
// errors.As chains.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the taxonomy code from err, defaulting to CodeInternal for
// errors that did not originate in the service layer.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
