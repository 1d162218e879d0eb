package session

import (
	"context"
	"errors"
	"strings"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
)

// FallbackReply is recorded when a chat response carries no reply text.
const FallbackReply = "No response from AI."

// admitLocked applies the preconditions shared by gated actions: identity
// present, gate passes and, when exclusive, nothing else in flight.
func (m *Manager) admitLocked(op string, exclusive bool) (Identity, error) {
	if m.current == nil {
		return nil, newError(NotAuthenticated, op, nil)
	}
	if !CanConverse(m.state) {
		gateDenialsTotal.WithLabelValues(op).Inc()
		m.logger.Debug().Str("op", op).Str("identity", m.state.IdentityID).Msg("session: gate denied")
		return nil, newError(NotEntitled, op, nil)
	}
	if exclusive && m.state.IsBusy {
		return nil, newError(Busy, op, nil)
	}
	return m.current, nil
}

// SendMessage appends a user turn, asks the backend for a reply and appends
// the assistant turn.
//
// Blank text is ignored and returns nil. The user turn is appended before
// any network call and is kept when the call fails; only the assistant
// reply is then missing. A reply that arrives after the identity changed is
// discarded.
func (m *Manager) SendMessage(ctx context.Context, text string) error {
	const op = "send message"
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	m.mu.Lock()
	id, err := m.admitLocked(op, true)
	if err != nil {
		m.mu.Unlock()
		sendsTotal.WithLabelValues(KindOf(err).String()).Inc()
		return err
	}
	epoch, conv := m.epoch, m.convGen
	now := m.now()
	m.state.Turns = append(m.state.Turns, client.Turn{
		ID:        m.ids.next(now),
		Role:      client.RoleUser,
		Content:   text,
		Timestamp: now,
	})
	m.state.IsBusy = true
	req := client.ChatRequest{Message: text, ConversationID: m.state.ActiveConversationID}
	snap := m.state.clone()
	m.mu.Unlock()
	m.notify(snap)

	var resp *client.ChatResponse
	token, err := credential(ctx, id)
	if err == nil {
		resp, err = m.backend.SendMessage(ctx, token, m.topic, req)
	}

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		staleDiscardsTotal.WithLabelValues("reply").Inc()
		return nil
	}
	m.state.IsBusy = false
	if err != nil {
		snap = m.state.clone()
		m.mu.Unlock()
		m.notify(snap)

		serr := remoteError(op, err)
		sendsTotal.WithLabelValues(serr.Kind.String()).Inc()
		m.logger.Debug().Err(err).Msg("session: send failed")
		return serr
	}
	if conv != m.convGen {
		// Cleared while in flight: the user turn is gone, so is its reply.
		snap = m.state.clone()
		m.mu.Unlock()
		m.notify(snap)
		staleDiscardsTotal.WithLabelValues("reply").Inc()
		return nil
	}

	reply, ok := "", false
	if resp != nil {
		reply, ok = resp.Text()
		if m.state.ActiveConversationID == "" && resp.ConversationID != "" {
			m.state.ActiveConversationID = resp.ConversationID
		}
	}
	if !ok {
		reply = FallbackReply
	}
	now = m.now()
	m.state.Turns = append(m.state.Turns, client.Turn{
		ID:        m.ids.next(now),
		Role:      client.RoleAssistant,
		Content:   reply,
		Timestamp: now,
	})
	snap = m.state.clone()
	m.mu.Unlock()
	m.notify(snap)

	sendsTotal.WithLabelValues("ok").Inc()
	return nil
}

// LoadHistoryList fetches the conversation summaries. The identity must be
// verified. On failure the previously loaded list is kept.
func (m *Manager) LoadHistoryList(ctx context.Context) ([]client.Summary, error) {
	const op = "load history"
	id, epoch, _, err := m.beginExclusive(op, true)
	if err != nil {
		return nil, err
	}

	var list []client.Summary
	token, err := credential(ctx, id)
	if err == nil {
		list, err = m.backend.ListConversations(ctx, token)
	}

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		staleDiscardsTotal.WithLabelValues("history").Inc()
		return nil, nil
	}
	m.state.IsBusy = false
	if err == nil {
		m.state.History = append([]client.Summary(nil), list...)
	}
	snap := m.state.clone()
	m.mu.Unlock()
	m.notify(snap)

	if err != nil {
		return nil, remoteError(op, err)
	}
	return snap.History, nil
}

// OpenConversation replaces the local turns with the remote conversation
// and makes it active. It never merges with the previous turns.
func (m *Manager) OpenConversation(ctx context.Context, conversationID string) error {
	const op = "open conversation"
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return errors.New("session: conversation id is required")
	}
	id, epoch, conv, err := m.beginExclusive(op, false)
	if err != nil {
		return err
	}

	var turns []client.Turn
	token, err := credential(ctx, id)
	if err == nil {
		turns, err = m.backend.GetConversation(ctx, token, conversationID)
	}

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		staleDiscardsTotal.WithLabelValues("conversation").Inc()
		return nil
	}
	m.state.IsBusy = false
	if err == nil && conv == m.convGen {
		m.state.Turns = append([]client.Turn(nil), turns...)
		m.state.ActiveConversationID = conversationID
	} else if err == nil {
		staleDiscardsTotal.WithLabelValues("conversation").Inc()
	}
	snap := m.state.clone()
	m.mu.Unlock()
	m.notify(snap)

	if err != nil {
		return remoteError(op, err)
	}
	return nil
}

// Clear empties the local conversation. It is never gated and leaves
// identity and entitlement alone. A send or open still in flight does not
// write into the cleared conversation.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.convGen++
	m.state.Turns = nil
	m.state.ActiveConversationID = ""
	snap := m.state.clone()
	m.mu.Unlock()
	m.notify(snap)
}

// beginExclusive admits op, marks the session busy and returns the identity
// with the epoch and conversation generation to check on completion. With
// needVerified the identity must also have passed verification.
func (m *Manager) beginExclusive(op string, needVerified bool) (Identity, uint64, uint64, error) {
	m.mu.Lock()
	id, err := m.admitLocked(op, true)
	if err == nil && needVerified && m.state.Verified.LastVerifiedID != id.ID() {
		err = newError(VerificationFailed, op, nil)
	}
	if err != nil {
		m.mu.Unlock()
		return nil, 0, 0, err
	}
	m.state.IsBusy = true
	epoch, conv := m.epoch, m.convGen
	snap := m.state.clone()
	m.mu.Unlock()
	m.notify(snap)
	return id, epoch, conv, nil
}
