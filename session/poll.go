package session

import (
	"context"
	"time"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
)

// PollSource pulls entitlement with GET /api/subscription/status. With a
// zero Interval it fetches once per identity change; otherwise it re-fetches
// every Interval until the identity changes.
type PollSource struct {
	Fetcher  StatusFetcher
	Interval time.Duration
}

// Watch implements EntitlementSource.
func (p *PollSource) Watch(ctx context.Context, id Identity, update func(*client.SubscriptionStatus, error)) error {
	p.fetch(ctx, id, update)
	if p.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.fetch(ctx, id, update)
		}
	}
}

func (p *PollSource) fetch(ctx context.Context, id Identity, update func(*client.SubscriptionStatus, error)) {
	token, err := credential(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			update(nil, err)
		}
		return
	}
	st, err := p.Fetcher.SubscriptionStatus(ctx, token)
	if ctx.Err() != nil {
		return
	}
	update(st, err)
}
