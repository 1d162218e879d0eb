package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/B4xAbhishek/aqua-ai-answers/client/internal/types"
)

// ListConversations returns the history summaries of the bearer.
func ListConversations(ctx context.Context, hc types.HTTPClient, baseURL, token string) ([]types.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := doJSON(ctx, hc, http.MethodGet, baseURL+"/chat/history", token, "list conversations", nil)
	if err != nil {
		return nil, err
	}
	out, err := types.DecodeSummaries(body)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

// GetConversation returns the ordered turns of one conversation.
func GetConversation(ctx context.Context, hc types.HTTPClient, baseURL, token, conversationID string) ([]types.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := types.ValidateIDPresent(conversationID, "conversationId"); err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/chat/%s", baseURL, url.PathEscape(conversationID))
	body, err := doJSON(ctx, hc, http.MethodGet, u, token, "get conversation", nil)
	if err != nil {
		return nil, err
	}
	turns, err := types.DecodeTurns(body)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return turns, nil
}
