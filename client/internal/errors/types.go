// Package errors classifies remote failures so callers can tell transient
// outages from rejections.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory determines how errors should be handled by retry logic.
type ErrorCategory int

const (
	// Recoverable errors may succeed on a later attempt.
	// Examples: 500 Internal Server Error, timeouts, connection failures.
	Recoverable ErrorCategory = iota

	// Irrecoverable errors will fail again unchanged.
	// Examples: 400 Bad Request, 401 Unauthorized, 403 Forbidden.
	Irrecoverable
)

// String returns a human-readable representation of the error category.
func (c ErrorCategory) String() string {
	switch c {
	case Recoverable:
		return "Recoverable"
	case Irrecoverable:
		return "Irrecoverable"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// ClassifiedError wraps an error with categorization metadata.
type ClassifiedError struct {
	Category   ErrorCategory
	Operation  string
	StatusCode int    // 0 for network errors
	Body       string // truncated response body for debugging
	Underlying error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%s] HTTP %d: %v", e.Category, e.StatusCode, e.Underlying)
	}
	return fmt.Sprintf("[%s] %v", e.Category, e.Underlying)
}

// Unwrap returns the underlying error for error chain compatibility.
func (e *ClassifiedError) Unwrap() error {
	return e.Underlying
}

// IsIrrecoverable returns true if the error should not be retried.
func IsIrrecoverable(err error) bool {
	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified.Category == Irrecoverable
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified.StatusCode
	}
	return 0
}
