// Package errors provides common domain error types for penf-live.
//
// Sentinel errors describe conditions shared by the session, storage and API
// layers so callers can branch with errors.Is() instead of string matching.
//
// Usage:
//
//	import plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
//
//	if plerrors.IsNotFound(err) {
//	    // handle missing item or session
//	}
package errors

import "errors"

// Domain errors.
var (
	// ErrNotFound indicates the requested session or item was not found.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g., duplicate session ID).
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates invalid input or validation failure.
	ErrValidation = errors.New("validation error")

	// ErrInvalidState indicates the operation is not valid for the current state,
	// such as retrying an item whose enhancement is still in flight.
	ErrInvalidState = errors.New("invalid state")

	// ErrSessionClosed indicates the session was closed and accepts no more input.
	ErrSessionClosed = errors.New("session closed")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether any error in err's chain is ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsSessionClosed reports whether any error in err's chain is ErrSessionClosed.
func IsSessionClosed(err error) bool {
	return errors.Is(err, ErrSessionClosed)
}
