package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
)

func TestCanConverse(t *testing.T) {
	assert.False(t, CanConverse(State{}))
	assert.True(t, CanConverse(State{Entitlement: Entitlement{IsEntitled: true}}))
	assert.True(t, CanConverse(State{Trial: Trial{Active: true}}))
}

func TestTurnIDs_StrictlyIncreasing(t *testing.T) {
	var g turnIDs
	now := time.UnixMilli(5000)
	assert.Equal(t, "5000", g.next(now))
	assert.Equal(t, "5001", g.next(now))
	assert.Equal(t, "5002", g.next(now.Add(-time.Second)), "clock going backwards still increases")
	assert.Equal(t, "9000", g.next(time.UnixMilli(9000)))
}

func TestErrorKinds(t *testing.T) {
	err := newError(NotEntitled, "send message", nil)
	assert.ErrorIs(t, err, ErrNotEntitled)
	assert.NotErrorIs(t, err, ErrBusy)
	assert.Equal(t, NotEntitled, KindOf(err))
	assert.Equal(t, "send message: subscription or trial required", err.Error())
	assert.Equal(t, "not_entitled", NotEntitled.String())

	cause := errors.New("boom")
	wrapped := newError(RemoteUnavailable, "load history", cause)
	assert.ErrorIs(t, wrapped, cause)
	assert.ErrorIs(t, wrapped, ErrRemoteUnavailable)

	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, NotAuthenticated, remoteError("x", client.ErrNotAuthenticated).Kind)
}

func TestEntitlementFrom(t *testing.T) {
	assert.Equal(t, Entitlement{}, entitlementFrom(nil))

	yes := true
	plan := "annual"
	end := client.Timestamp{Time: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)}
	e := entitlementFrom(&client.SubscriptionStatus{IsSubscribed: &yes, Plan: &plan, CurrentPeriodEnd: &end})
	assert.True(t, e.IsEntitled)
	assert.Equal(t, "annual", *e.Plan)
	require.NotNil(t, e.ExpiresAt)
	assert.True(t, e.ExpiresAt.Equal(end.Time))
	assert.False(t, e.Loading)
}

type countingFetcher struct{ n int32 }

func (c *countingFetcher) SubscriptionStatus(context.Context, string) (*client.SubscriptionStatus, error) {
	atomic.AddInt32(&c.n, 1)
	return subscribed(true), nil
}

func TestPollSource_Interval(t *testing.T) {
	f := &countingFetcher{}
	p := &PollSource{Fetcher: f, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx, user("u1"), func(*client.SubscriptionStatus, error) {}) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.n) >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestPollSource_Once(t *testing.T) {
	f := &countingFetcher{}
	p := &PollSource{Fetcher: f}
	var got *client.SubscriptionStatus
	require.NoError(t, p.Watch(context.Background(), user("u1"), func(st *client.SubscriptionStatus, err error) {
		require.NoError(t, err)
		got = st
	}))
	require.NotNil(t, got)
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.n))
}
