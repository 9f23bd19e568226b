package domain

import "fmt"

// ValidationError signals malformed or incomplete domain input: a
// non-positive amount, or a missing source/destination/body before the
// connector builds its request. It is surfaced to the caller as a
// client-side rejection and is never retried automatically.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
