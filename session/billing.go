package session

import (
	"context"
	"errors"
	"io"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
)

// StartCheckout asks the backend for a checkout redirect. It needs an
// identity but is never gated.
func (m *Manager) StartCheckout(ctx context.Context, successURL, cancelURL string) (string, error) {
	const op = "start checkout"
	token, err := m.token(ctx, op)
	if err != nil {
		return "", err
	}
	u, err := m.backend.CreateCheckoutSession(ctx, token, client.CheckoutRequest{SuccessURL: successURL, CancelURL: cancelURL})
	if err != nil {
		return "", redirectError(op, err)
	}
	return u, nil
}

// StartPortal asks the backend for a subscription management redirect.
func (m *Manager) StartPortal(ctx context.Context, returnURL string) (string, error) {
	const op = "start portal"
	token, err := m.token(ctx, op)
	if err != nil {
		return "", err
	}
	u, err := m.backend.CreatePortalSession(ctx, token, client.PortalRequest{ReturnURL: returnURL})
	if err != nil {
		return "", redirectError(op, err)
	}
	return u, nil
}

// ListDocuments returns the uploaded reference documents. Gated.
func (m *Manager) ListDocuments(ctx context.Context) ([]client.Document, error) {
	const op = "list documents"
	token, err := m.gatedToken(ctx, op)
	if err != nil {
		return nil, err
	}
	docs, err := m.backend.ListDocuments(ctx, token)
	if err != nil {
		return nil, remoteError(op, err)
	}
	return docs, nil
}

// UploadDocument uploads r under name. Gated.
func (m *Manager) UploadDocument(ctx context.Context, name string, r io.Reader) (*client.UploadResponse, error) {
	const op = "upload document"
	token, err := m.gatedToken(ctx, op)
	if err != nil {
		return nil, err
	}
	resp, err := m.backend.UploadDocument(ctx, token, name, r)
	if err != nil {
		return nil, remoteError(op, err)
	}
	return resp, nil
}

func (m *Manager) token(ctx context.Context, op string) (string, error) {
	m.mu.Lock()
	id := m.current
	m.mu.Unlock()
	if id == nil {
		return "", newError(NotAuthenticated, op, nil)
	}
	token, err := credential(ctx, id)
	if err != nil {
		return "", newError(NotAuthenticated, op, err)
	}
	return token, nil
}

func (m *Manager) gatedToken(ctx context.Context, op string) (string, error) {
	m.mu.Lock()
	id, err := m.admitLocked(op, false)
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	token, err := credential(ctx, id)
	if err != nil {
		return "", newError(NotAuthenticated, op, err)
	}
	return token, nil
}

func redirectError(op string, err error) error {
	if errors.Is(err, client.ErrMalformedResponse) {
		return newError(MalformedResponse, op, err)
	}
	return remoteError(op, err)
}
