package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
)

// StreamPath is the push endpoint for live entitlement updates.
const StreamPath = "/api/subscription/stream"

// StreamSource receives entitlement pushes over a websocket. Each text
// frame is one status payload. Dropped connections are re-dialled with
// exponential backoff; a 401/403 handshake stops the watch.
//
// Connection failures are reported through update only until the first
// status arrives. After that a drop keeps the last status and is logged.
type StreamSource struct {
	URL    string
	Dialer *websocket.Dialer
	Logger zerolog.Logger

	// InitialBackoff and MaxBackoff bound reconnect delays.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NewStreamSource derives the websocket URL from an http(s) base URL.
func NewStreamSource(baseURL string) (*StreamSource, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("stream url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("stream url: unsupported scheme %q", u.Scheme)
	}
	u.Path += StreamPath
	return &StreamSource{
		URL:    u.String(),
		Dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		Logger: log.Logger,
	}, nil
}

// Watch implements EntitlementSource.
func (s *StreamSource) Watch(ctx context.Context, id Identity, update func(*client.SubscriptionStatus, error)) error {
	exp := backoff.NewExponentialBackOff()
	if s.InitialBackoff > 0 {
		exp.InitialInterval = s.InitialBackoff
	}
	if s.MaxBackoff > 0 {
		exp.MaxInterval = s.MaxBackoff
	}
	exp.MaxElapsedTime = 0
	exp.Reset()
	bo := backoff.WithContext(exp, ctx)

	settled := false
	for {
		delivered, err := s.session(ctx, id, update)
		if ctx.Err() != nil {
			return nil
		}
		settled = settled || delivered

		var perm *backoff.PermanentError
		permanent := errors.As(err, &perm)
		switch {
		case permanent || !settled:
			update(nil, err)
		default:
			// The last pushed status still holds across a reconnect.
			s.Logger.Warn().Err(err).Str("identity", id.ID()).Msg("entitlement stream: connection lost")
		}
		if permanent {
			return perm.Err
		}
		if delivered {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return nil
		}
		s.Logger.Debug().Err(err).Dur("retry_in", wait).Msg("entitlement stream: reconnecting")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one connection and reports whether any status arrived.
func (s *StreamSource) session(ctx context.Context, id Identity, update func(*client.SubscriptionStatus, error)) (bool, error) {
	token, err := credential(ctx, id)
	if err != nil {
		return false, backoff.Permanent(err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, s.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return false, backoff.Permanent(fmt.Errorf("entitlement stream: %w: handshake status %d", client.ErrNotAuthenticated, resp.StatusCode))
		}
		return false, fmt.Errorf("entitlement stream: dial: %w", err)
	}

	// Unblock ReadJSON when the identity changes.
	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
		_ = conn.Close()
	}()

	delivered := false
	for {
		var st client.SubscriptionStatus
		if err := conn.ReadJSON(&st); err != nil {
			return delivered, fmt.Errorf("entitlement stream: read: %w", err)
		}
		delivered = true
		update(&st, nil)
	}
}
