// Package devserver is a self-contained backend speaking the HTTP contract the
// client package consumes. It keeps users, subscriptions, conversations and
// document metadata in SQLite and pushes subscription changes over websocket.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
	"github.com/B4xAbhishek/aqua-ai-answers/internal/devserver/respond"
)

const (
	// DefaultPlan is granted by a completed dev checkout.
	DefaultPlan = "pro"

	// DefaultPeriod is the length of a dev subscription period.
	DefaultPeriod = 30 * 24 * time.Hour

	maxUploadBytes  = 10 << 20
	titleRunes      = 40
	defaultTopic    = "general"
	streamWriteWait = 10 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Server) { s.log = l } }

// WithReplier replaces the canned assistant.
func WithReplier(r Replier) Option {
	return func(s *Server) {
		if r != nil {
			s.replier = r
		}
	}
}

// WithClock overrides time.Now for subscription periods.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// handoff is a pending checkout or portal session.
type handoff struct {
	uid       string
	returnURL string
	cancelURL string
}

// Server implements the backend HTTP contract.
type Server struct {
	store    *Store
	tokens   *TokenIssuer
	hub      *hub
	replier  Replier
	log      zerolog.Logger
	now      func() time.Time
	upgrader websocket.Upgrader
	router   *mux.Router

	mu        sync.Mutex
	checkouts map[string]handoff
	portals   map[string]handoff
}

// New builds a Server backed by store and authenticating with tokens.
func New(store *Store, tokens *TokenIssuer, opts ...Option) *Server {
	s := &Server{
		store:   store,
		tokens:  tokens,
		hub:     newHub(),
		replier: CannedReplier{},
		log:     log.Logger,
		now:     time.Now,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		checkouts: make(map[string]handoff),
		portals:   make(map[string]handoff),
	}
	for _, o := range opts {
		o(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Close disconnects every stream listener.
func (s *Server) Close() { s.hub.close() }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.recoverPanics, s.observe)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Browser handoffs carry their session id in the path and need no token.
	r.HandleFunc("/dev/checkout/{id}", s.completeCheckout).Methods(http.MethodGet)
	r.HandleFunc("/dev/checkout/{id}/cancel", s.abandonCheckout).Methods(http.MethodGet)
	r.HandleFunc("/dev/portal/{id}", s.completePortal).Methods(http.MethodGet)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.requireAuth)

	authed.HandleFunc("/api/auth/verify", s.verify).Methods(http.MethodPost)
	authed.HandleFunc("/api/subscription/status", s.subscriptionStatus).Methods(http.MethodGet)
	authed.HandleFunc("/api/subscription/stream", s.subscriptionStream).Methods(http.MethodGet)
	authed.HandleFunc("/api/subscription/create-checkout-session", s.createCheckout).Methods(http.MethodPost)
	authed.HandleFunc("/api/subscription/create-portal-session", s.createPortal).Methods(http.MethodPost)
	authed.HandleFunc("/dev/subscription", s.setSubscription).Methods(http.MethodPost)

	authed.HandleFunc("/api/chat", s.chat).Methods(http.MethodPost)
	authed.HandleFunc("/api/chat/{topic}", s.chat).Methods(http.MethodPost)
	// history is registered before the id route so it is not taken as an id
	authed.HandleFunc("/chat/history", s.history).Methods(http.MethodGet)
	authed.HandleFunc("/chat/{id}", s.conversation).Methods(http.MethodGet)

	authed.HandleFunc("/api/documents", s.documents).Methods(http.MethodGet)
	authed.HandleFunc("/api/documents/upload", s.upload).Methods(http.MethodPost)
	return r
}

// ----- health -----

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("health probe failed")
		respond.JSON(w, http.StatusServiceUnavailable, client.HealthStatus{Status: "unavailable"})
		return
	}
	respond.JSON(w, http.StatusOK, client.HealthStatus{Status: "ok"})
}

// ----- identity -----

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	uid, _ := SubjectFrom(r.Context())
	if err := s.store.TouchUser(r.Context(), uid); err != nil {
		s.log.Error().Err(err).Str("user_id", uid).Msg("verify failed")
		respond.Internal(w, "failed to record verification")
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"verified": true, "user_id": uid})
}

// ----- subscription -----

// statusOf renders a stored subscription. Lapsed periods report unsubscribed.
func (s *Server) statusOf(sub Subscription) client.SubscriptionStatus {
	active := sub.IsSubscribed
	if active && sub.CurrentPeriodEnd != nil && !sub.CurrentPeriodEnd.After(s.now()) {
		active = false
	}
	st := client.SubscriptionStatus{IsSubscribed: &active}
	if sub.Plan != "" {
		plan := sub.Plan
		st.Plan = &plan
	}
	if sub.CurrentPeriodEnd != nil {
		st.CurrentPeriodEnd = &client.Timestamp{Time: *sub.CurrentPeriodEnd}
	}
	return st
}

func (s *Server) subscriptionStatus(w http.ResponseWriter, r *http.Request) {
	uid, _ := SubjectFrom(r.Context())
	sub, err := s.store.Subscription(r.Context(), uid)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", uid).Msg("load subscription failed")
		respond.Internal(w, "failed to load subscription")
		return
	}
	respond.JSON(w, http.StatusOK, s.statusOf(sub))
}

// subscriptionStream pushes the current status and then every change until
// the client disconnects.
func (s *Server) subscriptionStream(w http.ResponseWriter, r *http.Request) {
	uid, _ := SubjectFrom(r.Context())
	// Subscribe before reading the current value so no change is missed.
	updates, cancel := s.hub.subscribe(uid)
	defer cancel()

	sub, err := s.store.Subscription(r.Context(), uid)
	if err != nil {
		respond.Internal(w, "failed to load subscription")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("stream upgrade failed")
		return
	}
	// The server's read and write timeouts still apply to the hijacked conn.
	_ = conn.SetReadDeadline(time.Time{})

	// Reader drains control frames and notices the peer going away.
	gone := make(chan struct{})
	defer func() {
		_ = conn.Close()
		<-gone
	}()
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(st client.SubscriptionStatus) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(st); err != nil {
			s.log.Debug().Err(err).Str("user_id", uid).Msg("stream write failed")
			return false
		}
		return true
	}

	if !write(s.statusOf(sub)) {
		return
	}
	s.log.Debug().Str("user_id", uid).Msg("stream opened")
	for {
		select {
		case st, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
					time.Now().Add(time.Second))
				return
			}
			if !write(st) {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// Activate grants plan to uid for one period and notifies stream listeners.
func (s *Server) Activate(ctx context.Context, uid, plan string) error {
	end := s.now().Add(DefaultPeriod).UTC().Truncate(time.Second)
	return s.saveSubscription(ctx, Subscription{UserID: uid, IsSubscribed: true, Plan: plan, CurrentPeriodEnd: &end})
}

// Deactivate cancels uid's subscription and notifies stream listeners.
func (s *Server) Deactivate(ctx context.Context, uid string) error {
	return s.saveSubscription(ctx, Subscription{UserID: uid})
}

func (s *Server) saveSubscription(ctx context.Context, sub Subscription) error {
	if err := s.store.SetSubscription(ctx, sub); err != nil {
		return err
	}
	s.hub.publish(sub.UserID, s.statusOf(sub))
	s.log.Info().Str("user_id", sub.UserID).Bool("subscribed", sub.IsSubscribed).Str("plan", sub.Plan).Msg("subscription changed")
	return nil
}

func (s *Server) createCheckout(w http.ResponseWriter, r *http.Request) {
	uid, _ := SubjectFrom(r.Context())
	var req client.CheckoutRequest
	if err := decodeBody(r, &req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}
	if err := checkRedirect(req.SuccessURL); err != nil {
		respond.BadRequest(w, "success_url: "+err.Error())
		return
	}
	if err := checkRedirect(req.CancelURL); err != nil {
		respond.BadRequest(w, "cancel_url: "+err.Error())
		return
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.checkouts[id] = handoff{uid: uid, returnURL: req.SuccessURL, cancelURL: req.CancelURL}
	s.mu.Unlock()
	respond.JSON(w, http.StatusOK, client.RedirectResponse{CheckoutURL: externalURL(r, "/dev/checkout/"+id)})
}

func (s *Server) takeCheckout(id string) (handoff, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.checkouts[id]
	delete(s.checkouts, id)
	return h, ok
}

func (s *Server) completeCheckout(w http.ResponseWriter, r *http.Request) {
	h, ok := s.takeCheckout(mux.Vars(r)["id"])
	if !ok {
		respond.NotFound(w, "unknown checkout session")
		return
	}
	if err := s.Activate(r.Context(), h.uid, DefaultPlan); err != nil {
		s.log.Error().Err(err).Str("user_id", h.uid).Msg("activate subscription failed")
		respond.Internal(w, "failed to activate subscription")
		return
	}
	http.Redirect(w, r, h.returnURL, http.StatusSeeOther)
}

func (s *Server) abandonCheckout(w http.ResponseWriter, r *http.Request) {
	h, ok := s.takeCheckout(mux.Vars(r)["id"])
	if !ok {
		respond.NotFound(w, "unknown checkout session")
		return
	}
	http.Redirect(w, r, h.cancelURL, http.StatusSeeOther)
}

func (s *Server) createPortal(w http.ResponseWriter, r *http.Request) {
	uid, _ := SubjectFrom(r.Context())
	var req client.PortalRequest
	if err := decodeBody(r, &req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}
	if err := checkRedirect(req.ReturnURL); err != nil {
		respond.BadRequest(w, "return_url: "+err.Error())
		return
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.portals[id] = handoff{uid: uid, returnURL: req.ReturnURL}
	s.mu.Unlock()
	respond.JSON(w, http.StatusOK, client.RedirectResponse{URL: externalURL(r, "/dev/portal/"+id)})
}

// completePortal stands in for the billing portal: visiting it cancels the
// subscription.
func (s *Server) completePortal(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	h, ok := s.portals[id]
	delete(s.portals, id)
	s.mu.Unlock()
	if !ok {
		respond.NotFound(w, "unknown portal session")
		return
	}
	if err := s.Deactivate(r.Context(), h.uid); err != nil {
		s.log.Error().Err(err).Str("user_id", h.uid).Msg("cancel subscription failed")
		respond.Internal(w, "failed to cancel subscription")
		return
	}
	http.Redirect(w, r, h.returnURL, http.StatusSeeOther)
}

// SubscriptionUpdate is the body of POST /dev/subscription.
type SubscriptionUpdate struct {
	Active bool   `json:"active"`
	Plan   string `json:"plan"`
	// Days is the period length; zero means DefaultPeriod.
	Days int `json:"days"`
}

func (s *Server) setSubscription(w http.ResponseWriter, r *http.Request) {
	uid, _ := SubjectFrom(r.Context())
	var req SubscriptionUpdate
	if err := decodeBody(r, &req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}
	if req.Days < 0 {
		respond.BadRequest(w, "days must not be negative")
		return
	}
	sub := Subscription{UserID: uid}
	if req.Active {
		period := DefaultPeriod
		if req.Days > 0 {
			period = time.Duration(req.Days) * 24 * time.Hour
		}
		end := s.now().Add(period).UTC().Truncate(time.Second)
		sub.IsSubscribed = true
		sub.Plan = strings.TrimSpace(req.Plan)
		if sub.Plan == "" {
			sub.Plan = DefaultPlan
		}
		sub.CurrentPeriodEnd = &end
	}
	if err := s.saveSubscription(r.Context(), sub); err != nil {
		respond.Internal(w, "failed to save subscription")
		return
	}
	respond.JSON(w, http.StatusOK, s.statusOf(sub))
}

// ----- conversations -----

type chatReply struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, _ := SubjectFrom(ctx)
	topic := mux.Vars(r)["topic"]
	if topic == "" {
		topic = defaultTopic
	}

	var req client.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		respond.BadRequest(w, "message is required")
		return
	}

	var conv Conversation
	var err error
	if req.ConversationID != "" {
		conv, err = s.store.Conversation(ctx, uid, req.ConversationID)
		if errors.Is(err, ErrNotFound) {
			respond.NotFound(w, "conversation not found")
			return
		}
	} else {
		conv, err = s.store.CreateConversation(ctx, uid, topic, title(text))
	}
	if err != nil {
		s.log.Error().Err(err).Str("user_id", uid).Msg("resolve conversation failed")
		respond.Internal(w, "failed to store conversation")
		return
	}

	if _, err := s.store.AppendMessage(ctx, conv.ID, string(client.RoleUser), text); err != nil {
		s.log.Error().Err(err).Str("conversation_id", conv.ID).Msg("store user turn failed")
		respond.Internal(w, "failed to store message")
		return
	}
	history, err := s.store.Messages(ctx, conv.ID)
	if err != nil {
		respond.Internal(w, "failed to load conversation")
		return
	}
	answer, err := s.replier.Reply(ctx, conv.Topic, history)
	if err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("reply failed")
		respond.Error(w, http.StatusBadGateway, "assistant unavailable")
		return
	}
	if _, err := s.store.AppendMessage(ctx, conv.ID, string(client.RoleAssistant), answer); err != nil {
		s.log.Error().Err(err).Str("conversation_id", conv.ID).Msg("store assistant turn failed")
		respond.Internal(w, "failed to store reply")
		return
	}
	respond.JSON(w, http.StatusOK, chatReply{Response: answer, ConversationID: conv.ID})
}

type summaryWire struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Preview string `json:"preview"`
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	uid, _ := SubjectFrom(r.Context())
	convs, err := s.store.ListConversations(r.Context(), uid)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", uid).Msg("list conversations failed")
		respond.Internal(w, "failed to list conversations")
		return
	}
	out := make([]summaryWire, 0, len(convs))
	for _, c := range convs {
		out = append(out, summaryWire{ID: c.ID, Title: c.Title, Preview: c.Preview})
	}
	respond.JSON(w, http.StatusOK, out)
}

func (s *Server) conversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, _ := SubjectFrom(ctx)
	conv, err := s.store.Conversation(ctx, uid, mux.Vars(r)["id"])
	if errors.Is(err, ErrNotFound) {
		respond.NotFound(w, "conversation not found")
		return
	}
	if err != nil {
		respond.Internal(w, "failed to load conversation")
		return
	}
	msgs, err := s.store.Messages(ctx, conv.ID)
	if err != nil {
		respond.Internal(w, "failed to load messages")
		return
	}
	turns := make([]client.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, client.Turn{ID: m.ID, Role: client.Role(m.Role), Content: m.Content, Timestamp: m.CreatedAt})
	}
	respond.JSON(w, http.StatusOK, turns)
}

// ----- documents -----

func (s *Server) documents(w http.ResponseWriter, r *http.Request) {
	uid, _ := SubjectFrom(r.Context())
	docs, err := s.store.ListDocuments(r.Context(), uid)
	if err != nil {
		respond.Internal(w, "failed to list documents")
		return
	}
	out := make([]client.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, client.Document{ID: d.ID, Name: d.Name, UploadedAt: d.UploadedAt})
	}
	respond.JSON(w, http.StatusOK, out)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	uid, _ := SubjectFrom(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respond.BadRequest(w, "invalid multipart body: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, hdr, err := r.FormFile("file")
	if err != nil {
		respond.BadRequest(w, "file is required")
		return
	}
	defer func() { _ = f.Close() }()
	size, err := io.Copy(io.Discard, f)
	if err != nil {
		respond.BadRequest(w, "read upload: "+err.Error())
		return
	}
	doc, err := s.store.AddDocument(r.Context(), uid, hdr.Filename, size)
	if err != nil {
		respond.Internal(w, "failed to store document")
		return
	}
	s.log.Info().Str("user_id", uid).Str("document_id", doc.ID).Int64("size", size).Msg("document uploaded")
	respond.JSON(w, http.StatusOK, client.UploadResponse{Success: true, DocumentID: doc.ID, Message: "uploaded " + doc.Name})
}

// ----- helpers -----

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body")
	}
	return nil
}

func checkRedirect(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

// externalURL builds an absolute URL on the host the request arrived at.
func externalURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + path
}

// title derives a conversation title from its opening message.
func title(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > titleRunes {
		return string(r[:titleRunes])
	}
	return text
}
