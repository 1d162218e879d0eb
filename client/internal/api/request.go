package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	clierrors "github.com/B4xAbhishek/aqua-ai-answers/client/internal/errors"
	"github.com/B4xAbhishek/aqua-ai-answers/client/internal/types"
)

const (
	// RequestIDHeader correlates client calls with backend logs.
	RequestIDHeader = "X-Request-ID"

	maxResponseBody = 4 << 20
)

// doJSON sends an authenticated request and returns the response body of a
// 2xx answer. The token is checked before anything touches the network.
func doJSON(ctx context.Context, hc types.HTTPClient, method, url, token, op string, payload any) ([]byte, error) {
	if err := types.ValidateToken(token); err != nil {
		return nil, err
	}
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(types.WithBearer(ctx, token), method, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return send(hc, req, op)
}

// send executes req and classifies the outcome.
func send(hc types.HTTPClient, req *http.Request, op string) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if tok, ok := types.BearerFromContext(req.Context()); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, clierrors.NewNetworkError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, clierrors.NewNetworkError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, clierrors.NewHTTPError(resp.StatusCode, string(data), op)
	}
	return data, nil
}

// decode unmarshals body into v, mapping syntax errors to ErrMalformedResponse.
func decode(body []byte, v any, op string) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s: %w: %v", op, types.ErrMalformedResponse, err)
	}
	return nil
}
