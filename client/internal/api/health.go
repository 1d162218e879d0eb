package api

import (
	"context"
	"net/http"

	"github.com/B4xAbhishek/aqua-ai-answers/client/internal/types"
)

// Health calls the unauthenticated GET /health probe.
func Health(ctx context.Context, hc types.HTTPClient, baseURL string) (*types.HealthStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	body, err := send(hc, req, "health check")
	if err != nil {
		return nil, err
	}
	var hs types.HealthStatus
	if err := decode(body, &hs, "health check"); err != nil {
		return nil, err
	}
	return &hs, nil
}
