/*
errors.go - Centralized error types for the benefit domain

PURPOSE:
  All error types in one place for consistency and discoverability.
  The store, reminder and api packages wrap these with context; handlers
  map them onto HTTP status codes.

ERROR CATEGORIES:
  1. Lookup errors     - missing users, cards, benefits
  2. Validation errors - malformed benefit schedules and amounts
  3. Delivery errors   - no notification channel for a user

USAGE:
    if benefit.IsNotFound(err) {
        writeError(w, http.StatusNotFound, "card not found", err)
    }

SEE ALSO:
  - types.go: Validate methods returning these errors
  - api/handlers.go: status code mapping
*/
package benefit

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique record already exists, e.g. a
	// user adding the same card twice.
	ErrDuplicate = errors.New("already exists")

	// ErrInvalidInput is the root of every validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyArchived is returned when an archived user benefit is modified.
	ErrAlreadyArchived = errors.New("user benefit already archived")

	// ErrNoChannel is returned when a user has no configured way to be notified.
	ErrNoChannel = errors.New("no notification channel configured")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Kind string // "card", "benefit", "user", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrAlreadyArchived)
}

// IsConflict returns true if the error is a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
