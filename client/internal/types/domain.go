package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ------------------------------
// Core Domain Entities
// ------------------------------

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

// Turn is one message in a conversation.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the lightweight history handle for one conversation.
type Summary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SubscriptionStatus mirrors the entitlement payload, pushed or pulled.
// Pointer fields stay nil when the backend omits them.
type SubscriptionStatus struct {
	IsSubscribed     *bool      `json:"isSubscribed"`
	Plan             *string    `json:"plan"`
	CurrentPeriodEnd *Timestamp `json:"currentPeriodEnd"`
}

// Document is an uploaded reference document.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status string `json:"status"`
}

// Timestamp accepts RFC 3339 strings or unix seconds.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}
	secs, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", b, err)
	}
	t.Time = time.Unix(int64(secs), 0).UTC()
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}
