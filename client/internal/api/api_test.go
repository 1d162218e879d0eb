package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierrors "github.com/B4xAbhishek/aqua-ai-answers/client/internal/errors"
	"github.com/B4xAbhishek/aqua-ai-answers/client/internal/types"
)

// countingServer records requests and answers with h.
func countingServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestVerifyIdentity_SendsBearerAndEmptyBody(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/verify", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		b, _ := io.ReadAll(r.Body)
		assert.Empty(t, b)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, VerifyIdentity(context.Background(), srv.Client(), srv.URL, "tok-1"))
}

func TestVerifyIdentity_Non2xxIsClassified(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	err := VerifyIdentity(context.Background(), srv.Client(), srv.URL, "tok")
	require.Error(t, err)
	assert.Equal(t, 401, clierrors.StatusCode(err))
	assert.True(t, clierrors.IsIrrecoverable(err))
}

func TestMissingTokenShortCircuits(t *testing.T) {
	t.Parallel()
	srv, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()
	hc := srv.Client()

	assert.ErrorIs(t, VerifyIdentity(ctx, hc, srv.URL, ""), types.ErrNotAuthenticated)
	_, err := GetSubscriptionStatus(ctx, hc, srv.URL, " ")
	assert.ErrorIs(t, err, types.ErrNotAuthenticated)
	_, err = SendMessage(ctx, hc, srv.URL, "", "general", types.ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, types.ErrNotAuthenticated)
	_, err = ListConversations(ctx, hc, srv.URL, "")
	assert.ErrorIs(t, err, types.ErrNotAuthenticated)
	_, err = GetConversation(ctx, hc, srv.URL, "", "7")
	assert.ErrorIs(t, err, types.ErrNotAuthenticated)
	_, err = CreateCheckoutSession(ctx, hc, srv.URL, "", types.CheckoutRequest{SuccessURL: "s", CancelURL: "c"})
	assert.ErrorIs(t, err, types.ErrNotAuthenticated)
	_, err = UploadDocument(ctx, hc, srv.URL, "", "a.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, types.ErrNotAuthenticated)

	assert.Equal(t, int32(0), atomic.LoadInt32(calls), "no request may be sent without a credential")
}

func TestGetSubscriptionStatus(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/subscription/status", r.URL.Path)
		_, _ = io.WriteString(w, `{"isSubscribed":true,"plan":"pro","currentPeriodEnd":"2026-12-01T00:00:00Z"}`)
	})
	st, err := GetSubscriptionStatus(context.Background(), srv.Client(), srv.URL, "tok")
	require.NoError(t, err)
	require.NotNil(t, st.IsSubscribed)
	assert.True(t, *st.IsSubscribed)
	assert.Equal(t, "pro", *st.Plan)
	assert.Equal(t, time.December, st.CurrentPeriodEnd.Month())
}

func TestGetSubscriptionStatus_Malformed(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"isSubscribed":"yes"}`)
	})
	_, err := GetSubscriptionStatus(context.Background(), srv.Client(), srv.URL, "tok")
	assert.ErrorIs(t, err, types.ErrMalformedResponse)
}

func TestCreateCheckoutSession(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/subscription/create-checkout-session", r.URL.Path)
		var req types.CheckoutRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://app/success", req.SuccessURL)
		assert.Equal(t, "https://app/cancel", req.CancelURL)
		writeJSON(w, http.StatusOK, map[string]string{"checkout_url": "https://pay/1", "session_url": "https://pay/2"})
	})
	u, err := CreateCheckoutSession(context.Background(), srv.Client(), srv.URL, "tok",
		types.CheckoutRequest{SuccessURL: "https://app/success", CancelURL: "https://app/cancel"})
	require.NoError(t, err)
	assert.Equal(t, "https://pay/1", u)
}

func TestCreateCheckoutSession_NoURL(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"id": "cs_1"})
	})
	_, err := CreateCheckoutSession(context.Background(), srv.Client(), srv.URL, "tok",
		types.CheckoutRequest{SuccessURL: "s", CancelURL: "c"})
	assert.ErrorIs(t, err, types.ErrMalformedResponse)
}

func TestCreatePortalSession(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/subscription/create-portal-session", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"url": "https://billing/portal"})
	})
	u, err := CreatePortalSession(context.Background(), srv.Client(), srv.URL, "tok", types.PortalRequest{ReturnURL: "https://app"})
	require.NoError(t, err)
	assert.Equal(t, "https://billing/portal", u)
}

func TestSendMessage(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/hoa-rules", r.URL.Path)
		var req types.ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Message)
		writeJSON(w, http.StatusOK, map[string]string{"response": "hi there"})
	})
	resp, err := SendMessage(context.Background(), srv.Client(), srv.URL, "tok", "hoa-rules", types.ChatRequest{Message: "hello"})
	require.NoError(t, err)
	text, ok := resp.Text()
	assert.True(t, ok)
	assert.Equal(t, "hi there", text)
}

func TestSendMessage_UnparseableBodyDegrades(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>ok</html>")
	})
	resp, err := SendMessage(context.Background(), srv.Client(), srv.URL, "tok", "", types.ChatRequest{Message: "hello"})
	require.NoError(t, err)
	_, ok := resp.Text()
	assert.False(t, ok)
}

func TestSendMessage_ServerError(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := SendMessage(context.Background(), srv.Client(), srv.URL, "tok", "general", types.ChatRequest{Message: "hello"})
	require.Error(t, err)
	assert.False(t, clierrors.IsIrrecoverable(err))
}

func TestSendMessage_Timeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := SendMessage(ctx, srv.Client(), srv.URL, "tok", "general", types.ChatRequest{Message: "hello"})
	require.Error(t, err)
	var ce *clierrors.ClassifiedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, clierrors.Recoverable, ce.Category)
}

func TestChatPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "http://x/api/chat", ChatPath("http://x", ""))
	assert.Equal(t, "http://x/api/chat/general", ChatPath("http://x", "/general/"))
	assert.Equal(t, "http://x/api/chat/a%20b", ChatPath("http://x", "a b"))
}

func TestListConversations(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/history", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":"1","title":"Fences"},{"id":"2","preview":"Dues"}]`)
	})
	got, err := ListConversations(context.Background(), srv.Client(), srv.URL, "tok")
	require.NoError(t, err)
	assert.Equal(t, []types.Summary{{ID: "1", Title: "Fences"}, {ID: "2", Title: "Dues"}}, got)
}

func TestListConversations_Malformed(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"nope"}`)
	})
	_, err := ListConversations(context.Background(), srv.Client(), srv.URL, "tok")
	assert.ErrorIs(t, err, types.ErrMalformedResponse)
}

func TestGetConversation(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/7", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":"x","role":"user","content":"X"},{"id":"y","role":"assistant","content":"Y"},{"id":"z","role":"user","content":"Z"}]`)
	})
	got, err := GetConversation(context.Background(), srv.Client(), srv.URL, "tok", "7")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"X", "Y", "Z"}, []string{got[0].Content, got[1].Content, got[2].Content})
}

func TestGetConversation_RequiresID(t *testing.T) {
	t.Parallel()
	_, err := GetConversation(context.Background(), http.DefaultClient, "http://unused", "tok", " ")
	assert.Error(t, err)
}

func TestDocuments(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/documents":
			writeJSON(w, http.StatusOK, []types.Document{{ID: "d1", Name: "ccrs.pdf"}})
		case "/api/documents/upload":
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			f, hdr, err := r.FormFile("file")
			if !assert.NoError(t, err) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			defer f.Close()
			b, _ := io.ReadAll(f)
			assert.Equal(t, "bylaws.txt", hdr.Filename)
			assert.Equal(t, "article 1", string(b))
			writeJSON(w, http.StatusOK, types.UploadResponse{Success: true, DocumentID: "d2", Message: "stored"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	docs, err := ListDocuments(context.Background(), srv.Client(), srv.URL, "tok")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	up, err := UploadDocument(context.Background(), srv.Client(), srv.URL, "tok", "/tmp/bylaws.txt", strings.NewReader("article 1"))
	require.NoError(t, err)
	assert.Equal(t, "d2", up.DocumentID)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, types.HealthStatus{Status: "healthy"})
	})
	hs, err := Health(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "healthy", hs.Status)
}

func TestCanceledContextSendsNothing(t *testing.T) {
	t.Parallel()
	srv, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ListConversations(ctx, srv.Client(), srv.URL, "tok")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}
