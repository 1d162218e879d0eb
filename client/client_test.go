package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := New("")
	require.Error(t, err)

	_, err = New("not a url")
	require.Error(t, err)

	c, err := New("http://example.test/")
	require.NoError(t, err)
	assert.Equal(t, "http://example.test", c.BaseURL())
}

func TestOptions(t *testing.T) {
	_, err := New("http://example.test", WithHTTPTimeout(0))
	require.Error(t, err)

	_, err = New("http://example.test", WithHTTPClient(nil))
	require.Error(t, err)

	c, err := New("http://example.test", WithHTTPTimeout(5*time.Second), WithDebugLogging(true), WithDebugLogging(true))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.http.Timeout)
	dt, ok := c.http.Transport.(*debugTransport)
	require.True(t, ok)
	_, nested := dt.base.(*debugTransport)
	assert.False(t, nested, "debug transport must not wrap itself")
}

func TestWithHTTPClient_LeavesCallerClientAlone(t *testing.T) {
	shared := &http.Client{}
	c, err := New("http://example.test", WithHTTPTimeout(7*time.Second), WithHTTPClient(shared), WithDebugLogging(true))
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, c.http.Timeout)
	assert.NotSame(t, shared, c.http)
	assert.Zero(t, shared.Timeout)
	assert.Nil(t, shared.Transport)
}

func TestSendMessage_RoundTrip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/general", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"hi there"}`))
	})

	resp, err := c.SendMessage(context.Background(), "tok", "general", ChatRequest{Message: "hello"})
	require.NoError(t, err)
	text, ok := resp.Text()
	assert.True(t, ok)
	assert.Equal(t, "hi there", text)
}

func TestMissingTokenSendsNothing(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})

	_, err := c.ListConversations(context.Background(), "  ")
	require.ErrorIs(t, err, ErrNotAuthenticated)
	err = c.VerifyIdentity(context.Background(), "")
	require.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestErrorHelpers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/verify":
			http.Error(w, "bad token", http.StatusUnauthorized)
		default:
			http.Error(w, "down", http.StatusBadGateway)
		}
	})

	err := c.VerifyIdentity(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.False(t, IsRecoverable(err))
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))

	_, err = c.SubscriptionStatus(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, IsRecoverable(err))
	assert.False(t, IsUnauthorized(err))

	assert.False(t, IsRecoverable(nil))
	assert.False(t, IsRecoverable(errors.New("plain")))
	assert.False(t, IsRecoverable(ErrNotAuthenticated))
}

func TestDebugTransportRedactsAuthorization(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}, WithDebugLogging(true), WithLogger(logger))

	_, err := c.ListDocuments(context.Background(), "secret-token")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "HTTP request")
	assert.NotContains(t, out, "secret-token")
	assert.Contains(t, out, "[REDACTED]")
}

func TestRedactAuthorization(t *testing.T) {
	in := "GET / HTTP/1.1\r\nAuthorization: Bearer abc.def\r\nAccept: */*\r\n"
	out := redactAuthorization(in)
	assert.False(t, strings.Contains(out, "abc.def"))
	assert.Contains(t, out, "Accept: */*")
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "ok", outcomeLabel(nil))
	assert.Equal(t, "unauthenticated", outcomeLabel(ErrNotAuthenticated))
	assert.Equal(t, "malformed", outcomeLabel(ErrMalformedResponse))
	assert.Equal(t, "unavailable", outcomeLabel(errors.New("dial tcp")))
}

func TestHealthWithoutToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
}
