package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/B4xAbhishek/aqua-ai-answers/client/internal/types"
)

// SendMessage appends one user turn to the remote conversation and returns
// the raw reply. A reply without a usable text field is not an error here;
// callers decide how to degrade.
func SendMessage(ctx context.Context, hc types.HTTPClient, baseURL, token, topic string, req types.ChatRequest) (*types.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := types.ValidateMessage(req.Message); err != nil {
		return nil, err
	}
	body, err := doJSON(ctx, hc, http.MethodPost, ChatPath(baseURL, topic), token, "send message", req)
	if err != nil {
		return nil, err
	}
	var cr types.ChatResponse
	if err := decode(body, &cr, "send message"); err != nil {
		// Unparseable bodies degrade like missing fields.
		return &types.ChatResponse{}, nil
	}
	return &cr, nil
}

// ChatPath builds POST /api/chat/<topic>, or /api/chat for an empty topic.
func ChatPath(baseURL, topic string) string {
	topic = strings.Trim(strings.TrimSpace(topic), "/")
	if topic == "" {
		return baseURL + "/api/chat"
	}
	return baseURL + "/api/chat/" + url.PathEscape(topic)
}
