package session

import (
	"time"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
)

// Entitlement is replaced wholesale on every update.
//
// While Loading is true for a re-fetch of the same identity the other fields
// still hold the previous settled values. A different identity starts from
// the unentitled values, and identity loss resets to the zero Entitlement.
type Entitlement struct {
	IsEntitled bool
	Plan       *string
	ExpiresAt  *time.Time
	Loading    bool
}

// Trial is the local trial override. It is never persisted.
type Trial struct {
	Active bool
}

// Verified remembers which identity id completed verification.
type Verified struct {
	LastVerifiedID string
}

// State is the aggregate session state. Values returned by Snapshot share
// nothing with the Manager.
type State struct {
	Turns                []client.Turn
	History              []client.Summary
	IsBusy               bool
	Entitlement          Entitlement
	Trial                Trial
	Verified             Verified
	ActiveConversationID string
	// IdentityID is the id of the identity the session belongs to, or empty.
	IdentityID string
}

// CanConverse is the entitlement gate.
func CanConverse(s State) bool {
	return s.Entitlement.IsEntitled || s.Trial.Active
}

func (s State) clone() State {
	out := s
	out.Turns = append([]client.Turn(nil), s.Turns...)
	out.History = append([]client.Summary(nil), s.History...)
	if s.Entitlement.Plan != nil {
		p := *s.Entitlement.Plan
		out.Entitlement.Plan = &p
	}
	if s.Entitlement.ExpiresAt != nil {
		t := *s.Entitlement.ExpiresAt
		out.Entitlement.ExpiresAt = &t
	}
	return out
}

// entitlementFrom converts a status payload. Missing fields default to the
// unentitled values; a nil status is unentitled.
func entitlementFrom(st *client.SubscriptionStatus) Entitlement {
	if st == nil {
		return Entitlement{}
	}
	var e Entitlement
	if st.IsSubscribed != nil {
		e.IsEntitled = *st.IsSubscribed
	}
	if st.Plan != nil {
		p := *st.Plan
		e.Plan = &p
	}
	if st.CurrentPeriodEnd != nil && !st.CurrentPeriodEnd.IsZero() {
		t := st.CurrentPeriodEnd.Time
		e.ExpiresAt = &t
	}
	return e
}
