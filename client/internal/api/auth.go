package api

import (
	"context"
	"net/http"

	"github.com/B4xAbhishek/aqua-ai-answers/client/internal/types"
)

// VerifyIdentity links the bearer's identity with server-side state.
// Any 2xx answer is success; the body is ignored.
func VerifyIdentity(ctx context.Context, hc types.HTTPClient, baseURL, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := doJSON(ctx, hc, http.MethodPost, baseURL+"/api/auth/verify", token, "verify identity", nil)
	return err
}
