// Package client is the HTTP SDK for the question-answering backend: identity
// verification, subscription status and billing handoffs, conversation turns
// and history, and reference documents.
//
// Every authenticated call takes the bearer credential explicitly. The
// credential is never cached by the Client, and an empty credential fails
// with ErrNotAuthenticated before any request is built.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/B4xAbhishek/aqua-ai-answers/client/internal/api"
)

// DefaultTimeout bounds a single remote call when no option overrides it.
const DefaultTimeout = 30 * time.Second

// Client talks to one backend base URL.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// New constructs a Client for baseURL. Additional options can be provided
// via functional arguments.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL cannot be empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL %q: %w", baseURL, err)
	}

	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  log.Logger,
	}

	if debugLoggingRequested() {
		opts = append(opts, WithDebugLogging(true))
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// BaseURL returns the normalised backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// --------------------------------------------------------------------
// Identity verification
// --------------------------------------------------------------------

// VerifyIdentity forwards the bearer so the backend links server-side state
// to the client-observed identity.
func (c *Client) VerifyIdentity(ctx context.Context, token string) error {
	err := api.VerifyIdentity(ctx, c.http, c.baseURL, token)
	observe("verify", err)
	return err
}

// --------------------------------------------------------------------
// Subscription
// --------------------------------------------------------------------

// SubscriptionStatus pulls the current entitlement payload.
func (c *Client) SubscriptionStatus(ctx context.Context, token string) (*SubscriptionStatus, error) {
	st, err := api.GetSubscriptionStatus(ctx, c.http, c.baseURL, token)
	observe("subscription_status", err)
	return st, err
}

// CreateCheckoutSession returns the billing provider redirect URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, token string, req CheckoutRequest) (string, error) {
	u, err := api.CreateCheckoutSession(ctx, c.http, c.baseURL, token, req)
	observe("checkout", err)
	return u, err
}

// CreatePortalSession returns the subscription management redirect URL.
func (c *Client) CreatePortalSession(ctx context.Context, token string, req PortalRequest) (string, error) {
	u, err := api.CreatePortalSession(ctx, c.http, c.baseURL, token, req)
	observe("portal", err)
	return u, err
}

// --------------------------------------------------------------------
// Conversations
// --------------------------------------------------------------------

// SendMessage appends a user turn under topic and returns the raw reply.
func (c *Client) SendMessage(ctx context.Context, token, topic string, req ChatRequest) (*ChatResponse, error) {
	resp, err := api.SendMessage(ctx, c.http, c.baseURL, token, topic, req)
	observe("chat", err)
	return resp, err
}

// ListConversations returns the caller's conversation summaries.
func (c *Client) ListConversations(ctx context.Context, token string) ([]Summary, error) {
	out, err := api.ListConversations(ctx, c.http, c.baseURL, token)
	observe("history", err)
	return out, err
}

// GetConversation returns the ordered turns of one conversation.
func (c *Client) GetConversation(ctx context.Context, token, conversationID string) ([]Turn, error) {
	out, err := api.GetConversation(ctx, c.http, c.baseURL, token, conversationID)
	observe("conversation", err)
	return out, err
}

// --------------------------------------------------------------------
// Documents and health
// --------------------------------------------------------------------

// ListDocuments returns the caller's uploaded documents.
func (c *Client) ListDocuments(ctx context.Context, token string) ([]Document, error) {
	out, err := api.ListDocuments(ctx, c.http, c.baseURL, token)
	observe("documents", err)
	return out, err
}

// UploadDocument uploads r under name.
func (c *Client) UploadDocument(ctx context.Context, token, name string, r io.Reader) (*UploadResponse, error) {
	out, err := api.UploadDocument(ctx, c.http, c.baseURL, token, name, r)
	observe("upload", err)
	return out, err
}

// Health probes the backend without credentials.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	out, err := api.Health(ctx, c.http, c.baseURL)
	observe("health", err)
	return out, err
}
