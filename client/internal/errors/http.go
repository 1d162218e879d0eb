package errors

import (
	"fmt"
	"net/http"
)

const maxBodyInError = 512

// ClassifyHTTPError determines whether an HTTP failure is worth retrying:
//   - 4xx client errors (except 408 and 429) are irrecoverable
//   - 5xx server errors are recoverable
//   - anything else unexpected is treated as recoverable
func ClassifyHTTPError(statusCode int, body string, underlyingErr error) *ClassifiedError {
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError]
	}
	return &ClassifiedError{
		Category:   getHTTPErrorCategory(statusCode),
		StatusCode: statusCode,
		Body:       body,
		Underlying: underlyingErr,
	}
}

func getHTTPErrorCategory(statusCode int) ErrorCategory {
	switch {
	case statusCode >= 400 && statusCode < 500:
		switch statusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return Recoverable
		default:
			return Irrecoverable
		}
	case statusCode >= 500 && statusCode < 600:
		return Recoverable
	default:
		return Recoverable
	}
}

// NewHTTPError creates a classified error for a non-2xx response.
func NewHTTPError(statusCode int, body string, operation string) *ClassifiedError {
	e := ClassifyHTTPError(statusCode, body, fmt.Errorf("%s failed: HTTP %d", operation, statusCode))
	e.Operation = operation
	return e
}

// NewNetworkError creates a classified error for transport failures,
// including timeouts. Network errors are always recoverable.
func NewNetworkError(operation string, err error) *ClassifiedError {
	return &ClassifiedError{
		Category:   Recoverable,
		Operation:  operation,
		Underlying: fmt.Errorf("%s network error: %w", operation, err),
	}
}
