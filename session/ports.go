package session

import (
	"context"
	"io"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
)

// Identity is the authenticated subject as seen by the session.
type Identity interface {
	// ID is stable and unique per subject.
	ID() string
	// Token produces a bearer credential. It may differ between calls and is
	// never cached by the session beyond one remote call.
	Token(ctx context.Context) (string, error)
}

// IdentitySource supplies the current identity and notifies on change.
// A nil Identity means nobody is signed in.
type IdentitySource interface {
	Current() Identity
	// Subscribe registers fn for identity changes, delivered in order, and
	// returns a function that cancels the registration.
	Subscribe(fn func(Identity)) (unsubscribe func())
}

// StatusFetcher pulls the entitlement payload for a bearer.
type StatusFetcher interface {
	SubscriptionStatus(ctx context.Context, token string) (*client.SubscriptionStatus, error)
}

// Backend is the remote surface the Manager drives. *client.Client
// implements it.
type Backend interface {
	StatusFetcher
	VerifyIdentity(ctx context.Context, token string) error
	CreateCheckoutSession(ctx context.Context, token string, req client.CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, token string, req client.PortalRequest) (string, error)
	SendMessage(ctx context.Context, token, topic string, req client.ChatRequest) (*client.ChatResponse, error)
	ListConversations(ctx context.Context, token string) ([]client.Summary, error)
	GetConversation(ctx context.Context, token, conversationID string) ([]client.Turn, error)
	ListDocuments(ctx context.Context, token string) ([]client.Document, error)
	UploadDocument(ctx context.Context, token, name string, r io.Reader) (*client.UploadResponse, error)
}

var _ Backend = (*client.Client)(nil)

// EntitlementSource supplies entitlement for one identity, pushed or pulled.
//
// Watch reports every status, or failure, through update until ctx is done
// or the source has nothing more to deliver. A pull source returns after
// one fetch; a push source keeps delivering. Watch returns nil when ctx is
// cancelled.
type EntitlementSource interface {
	Watch(ctx context.Context, id Identity, update func(*client.SubscriptionStatus, error)) error
}
