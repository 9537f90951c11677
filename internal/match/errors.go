package match

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing or invalid field on an event,
// participant selection, or MVP pick. It is raised locally, before any
// persistence call, and always names the offending field so the UI can
// attach the message to the right input.
type ValidationError struct {
	// Field is the offending field in wire naming (e.g. "minute",
	// "primaryPlayerId").
	Field string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
