package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---------- identities ----------

type fakeIdentity struct {
	id  string
	err error
}

func (f fakeIdentity) ID() string { return f.id }

func (f fakeIdentity) Token(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "tok-" + f.id, nil
}

func user(id string) Identity { return fakeIdentity{id: id} }

type fakeIdentities struct {
	mu      sync.Mutex
	current Identity
	subs    map[int]func(Identity)
	nextSub int
}

func newFakeIdentities(initial Identity) *fakeIdentities {
	return &fakeIdentities{current: initial, subs: map[int]func(Identity){}}
}

func (f *fakeIdentities) Current() Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeIdentities) Subscribe(fn func(Identity)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nextSub
	f.nextSub++
	f.subs[n] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, n)
	}
}

// set switches the identity and delivers the event on the caller's goroutine.
func (f *fakeIdentities) set(id Identity) {
	f.mu.Lock()
	f.current = id
	subs := make([]func(Identity), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(id)
	}
}

// ---------- backend ----------

type fakeBackend struct {
	mu           sync.Mutex
	verifyCalls  map[string]int
	statusCalls  int
	chatCalls    int
	historyCalls int
	lastChat     client.ChatRequest

	verifyFn       func(ctx context.Context, token string) error
	statusFn       func(ctx context.Context, token string) (*client.SubscriptionStatus, error)
	chatFn         func(ctx context.Context, token, topic string, req client.ChatRequest) (*client.ChatResponse, error)
	historyFn      func(ctx context.Context, token string) ([]client.Summary, error)
	conversationFn func(ctx context.Context, token, id string) ([]client.Turn, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{verifyCalls: map[string]int{}}
}

func subscribed(b bool) *client.SubscriptionStatus {
	plan := "pro"
	return &client.SubscriptionStatus{IsSubscribed: &b, Plan: &plan}
}

func (f *fakeBackend) VerifyIdentity(ctx context.Context, token string) error {
	f.mu.Lock()
	f.verifyCalls[token]++
	fn := f.verifyFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, token)
	}
	return nil
}

func (f *fakeBackend) SubscriptionStatus(ctx context.Context, token string) (*client.SubscriptionStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	fn := f.statusFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, token)
	}
	return subscribed(true), nil
}

func (f *fakeBackend) CreateCheckoutSession(_ context.Context, token string, req client.CheckoutRequest) (string, error) {
	return fmt.Sprintf("https://pay.example/checkout?t=%s&ok=%s", token, req.SuccessURL), nil
}

func (f *fakeBackend) CreatePortalSession(context.Context, string, client.PortalRequest) (string, error) {
	return "", fmt.Errorf("portal: %w", client.ErrMalformedResponse)
}

func (f *fakeBackend) SendMessage(ctx context.Context, token, topic string, req client.ChatRequest) (*client.ChatResponse, error) {
	f.mu.Lock()
	f.chatCalls++
	f.lastChat = req
	fn := f.chatFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, token, topic, req)
	}
	reply := "echo: " + req.Message
	return &client.ChatResponse{Response: &reply}, nil
}

func (f *fakeBackend) ListConversations(ctx context.Context, token string) ([]client.Summary, error) {
	f.mu.Lock()
	f.historyCalls++
	fn := f.historyFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, token)
	}
	return []client.Summary{{ID: "1", Title: "First"}}, nil
}

func (f *fakeBackend) GetConversation(ctx context.Context, token, id string) ([]client.Turn, error) {
	f.mu.Lock()
	fn := f.conversationFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, token, id)
	}
	return nil, errors.New("not found")
}

func (f *fakeBackend) ListDocuments(context.Context, string) ([]client.Document, error) {
	return []client.Document{{ID: "d1", Name: "hoa.pdf"}}, nil
}

func (f *fakeBackend) UploadDocument(_ context.Context, _ string, name string, r io.Reader) (*client.UploadResponse, error) {
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	return &client.UploadResponse{Success: true, DocumentID: "doc-" + name}, nil
}

func (f *fakeBackend) counts() (verify map[string]int, status, chat int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := make(map[string]int, len(f.verifyCalls))
	for k, n := range f.verifyCalls {
		v[k] = n
	}
	return v, f.statusCalls, f.chatCalls
}

// ---------- helpers ----------

type recorder struct {
	mu     sync.Mutex
	states []State
	errs   []error
}

func (r *recorder) onChange(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) errList() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) snapshots() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func startManager(t *testing.T, ids IdentitySource, be Backend, opts ...Option) *Manager {
	t.Helper()
	m := New(ids, be, opts...)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// settle waits for queued identity work and the resulting entitlement
// update to land.
func settle(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.exec.Barrier(ctx, identityKey))
	require.Eventually(t, func() bool {
		return !m.Snapshot().Entitlement.Loading
	}, 2*time.Second, 5*time.Millisecond)
}
