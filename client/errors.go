package client

import (
	"errors"
	"net/http"

	clierrors "github.com/B4xAbhishek/aqua-ai-answers/client/internal/errors"
	"github.com/B4xAbhishek/aqua-ai-answers/client/internal/types"
)

// Re-export shared SDK errors so callers compare against a single symbol.
var (
	ErrNotAuthenticated  = types.ErrNotAuthenticated
	ErrMalformedResponse = types.ErrMalformedResponse
)

// StatusCode returns the HTTP status carried by err, or 0 for local and
// network failures.
func StatusCode(err error) int { return clierrors.StatusCode(err) }

// IsUnauthorized reports a 401/403 answer from the backend.
func IsUnauthorized(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsRecoverable reports whether a later attempt could succeed: network
// failures, timeouts, 408, 429 and 5xx.
func IsRecoverable(err error) bool {
	if err == nil || errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var ce *clierrors.ClassifiedError
	if !errors.As(err, &ce) {
		return false
	}
	return !clierrors.IsIrrecoverable(err)
}
