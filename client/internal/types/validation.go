package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ------------------------------
// Shared Interfaces
// ------------------------------

// HTTPClient interface for dependency injection.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ------------------------------
// Shared Errors
// ------------------------------

// ErrNotAuthenticated is returned, without any request being sent, when no
// usable bearer credential is available.
var ErrNotAuthenticated = errors.New("authentication required")

// ErrMalformedResponse is returned when a response lacks the expected shape.
var ErrMalformedResponse = errors.New("malformed response")

// ------------------------------
// Validation
// ------------------------------

// ValidateToken rejects empty or whitespace-only bearer credentials.
func ValidateToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrNotAuthenticated
	}
	return nil
}

// ValidateIDPresent ensures an identifier is non-empty.
func ValidateIDPresent(id, name string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

// ValidateMessage ensures a chat message has content after trimming.
func ValidateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

type bearerKey struct{}

// WithBearer returns a context carrying the bearer credential for one call.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

// BearerFromContext extracts the credential set by WithBearer.
func BearerFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(bearerKey{}).(string)
	return tok, ok && tok != ""
}
