// Package errs holds the sentinel errors shared by services and handlers.
// Services wrap them with fmt.Errorf("...: %w", ...) and the HTTP layer maps
// them to status codes in one place.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrGone         = errors.New("gone")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("service unavailable")
)

// ErrIllegalTransition is returned when a status change is not an edge of the
// quotation state machine. It also matches ErrConflict.
var ErrIllegalTransition = fmt.Errorf("%w: illegal status transition", ErrConflict)

// Validation wraps ErrValidation with a human readable reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the entity name, e.g. "quotation not found".
func NotFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}
