package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ------------------------------
// Response Types
// ------------------------------

// ChatResponse carries the assistant reply. Older backends answer with
// "message" instead of "response".
type ChatResponse struct {
	Response *string `json:"response"`
	Message  *string `json:"message"`
	// ConversationID names the conversation the turn was stored in, when
	// the backend reports it.
	ConversationID string `json:"conversation_id,omitempty"`
}

// Text returns the reply and whether any reply field was present and non-empty.
func (r ChatResponse) Text() (string, bool) {
	if r.Response != nil && *r.Response != "" {
		return *r.Response, true
	}
	if r.Message != nil && *r.Message != "" {
		return *r.Message, true
	}
	return "", false
}

// RedirectResponse is returned by the checkout and portal handoffs.
type RedirectResponse struct {
	URL         string `json:"url"`
	CheckoutURL string `json:"checkout_url"`
	SessionURL  string `json:"session_url"`
}

// First returns the first present redirect field in url, checkout_url,
// session_url order.
func (r RedirectResponse) First() (string, bool) {
	for _, u := range []string{r.URL, r.CheckoutURL, r.SessionURL} {
		if strings.TrimSpace(u) != "" {
			return u, true
		}
	}
	return "", false
}

// UploadResponse is returned by POST /api/documents/upload.
type UploadResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId"`
	Message    string `json:"message"`
}

// summaryWire is the tolerant decoding shape of one history item.
type summaryWire struct {
	ID      json.RawMessage `json:"id"`
	Title   string          `json:"title"`
	Preview string          `json:"preview"`
}

const previewLabelRunes = 40

// DecodeSummaries accepts either a bare array or {"conversations": [...]}.
// Items without an id make the whole payload malformed.
func DecodeSummaries(body []byte) ([]Summary, error) {
	items, err := unwrapList(body, "conversations")
	if err != nil {
		return nil, err
	}
	var wire []summaryWire
	if err := json.Unmarshal(items, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	out := make([]Summary, 0, len(wire))
	for i, w := range wire {
		id, err := rawID(w.ID)
		if err != nil || id == "" {
			return nil, fmt.Errorf("%w: conversation %d has no id", ErrMalformedResponse, i)
		}
		out = append(out, Summary{ID: id, Title: Label(id, w.Title, w.Preview)})
	}
	return out, nil
}

// Label derives the display label of a conversation.
func Label(id, title, preview string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	if p := strings.TrimSpace(preview); p != "" {
		r := []rune(p)
		if len(r) > previewLabelRunes {
			return string(r[:previewLabelRunes])
		}
		return p
	}
	return "Conversation " + id
}

// DecodeTurns accepts either a bare array or {"messages": [...]} and
// rejects turns with an unknown role.
func DecodeTurns(body []byte) ([]Turn, error) {
	items, err := unwrapList(body, "messages")
	if err != nil {
		return nil, err
	}
	var turns []Turn
	if err := json.Unmarshal(items, &turns); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for i, t := range turns {
		if !t.Role.Valid() {
			return nil, fmt.Errorf("%w: turn %d has role %q", ErrMalformedResponse, i, t.Role)
		}
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}

func unwrapList(body []byte, key string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	switch trimmed[0] {
	case '[':
		return trimmed, nil
	case '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		items, ok := wrapper[key]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformedResponse, key)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("%w: expected list", ErrMalformedResponse)
	}
}

// rawID accepts string or numeric ids.
func rawID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
