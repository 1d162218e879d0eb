// Package session holds the entitlement-gated conversation state for one
// signed-in subject.
//
// A Manager observes an IdentitySource, verifies each new identity once
// with the backend, keeps the entitlement snapshot current through an
// EntitlementSource, and mediates every conversation action through the
// gate (CanConverse). Identity events are processed strictly in delivery
// order on a single-shard executor; results that arrive after the identity
// changed are discarded.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
	"github.com/B4xAbhishek/aqua-ai-answers/internal/shardqueue"
)

// identityKey routes every identity event to the same shard.
const identityKey = "identity"

// DefaultTopic is used when WithTopic is not given.
const DefaultTopic = "general"

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Tokens are never logged.
func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithErrorHandler receives failures from background work: verification and
// entitlement updates. Panics in fn are recovered.
func WithErrorHandler(fn func(error)) Option { return func(m *Manager) { m.onError = fn } }

// WithOnChange is called with a snapshot after every committed state change.
func WithOnChange(fn func(State)) Option { return func(m *Manager) { m.onChange = fn } }

// WithTopic sets the chat topic path segment.
func WithTopic(topic string) Option { return func(m *Manager) { m.topic = topic } }

// WithEntitlementSource replaces the default one-shot PollSource.
func WithEntitlementSource(src EntitlementSource) Option {
	return func(m *Manager) {
		if src != nil {
			m.source = src
		}
	}
}

// WithClock overrides time.Now for turn ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithExecutorConfig tunes the identity event queue. Shards is forced to 1.
func WithExecutorConfig(cfg shardqueue.Config) Option {
	return func(m *Manager) { m.execCfg = cfg }
}

// Manager is the session state object. Construct one per process with New,
// call Start once, and Close on shutdown.
type Manager struct {
	identities IdentitySource
	backend    Backend
	source     EntitlementSource
	topic      string
	logger     zerolog.Logger
	onError    func(error)
	onChange   func(State)
	now        func() time.Time
	execCfg    shardqueue.Config

	// eventMu serialises identity events, including their Submit call.
	eventMu sync.Mutex

	mu      sync.Mutex
	state   State
	current Identity
	// epoch advances when the identity id changes; watchGen on every
	// identity event. Both guard late results.
	epoch       uint64
	watchGen    uint64
	cancelWatch context.CancelFunc
	// convGen advances on Clear so in-flight replies skip the cleared turns.
	convGen uint64
	ids     turnIDs

	ctx         context.Context
	cancel      context.CancelFunc
	exec        *shardqueue.ShardExecutor
	unsubscribe func()
	started     bool
	closed      bool
	wg          sync.WaitGroup
}

// New builds a Manager. The default entitlement strategy fetches status once
// per identity change through backend.
func New(identities IdentitySource, backend Backend, opts ...Option) *Manager {
	m := &Manager{
		identities: identities,
		backend:    backend,
		topic:      DefaultTopic,
		logger:     log.Logger,
		now:        time.Now,
	}
	m.source = &PollSource{Fetcher: backend}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to the identity source and processes the current
// identity.
func (m *Manager) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("session: already started")
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(context.Background())

	cfg := m.execCfg
	cfg.Shards = 1
	if cfg.Name == "" {
		cfg.Name = "session"
	}
	if cfg.Logger == nil {
		cfg.Logger = &m.logger
	}
	cfg.ErrorHandler = func(err error) {
		if !errors.Is(err, context.Canceled) {
			m.report(err)
		}
	}
	m.exec = shardqueue.NewShardExecutor(cfg)
	m.mu.Unlock()

	unsub := m.identities.Subscribe(m.handleIdentity)
	m.mu.Lock()
	m.unsubscribe = unsub
	m.mu.Unlock()

	// Current is read under eventMu so it is never applied over a newer
	// event delivered after Subscribe.
	m.eventMu.Lock()
	m.applyIdentity(m.identities.Current())
	m.eventMu.Unlock()
	return nil
}

// Close stops background work and waits for it. In-flight entitlement
// results are discarded. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopWatchLocked()
	unsub, cancel, exec := m.unsubscribe, m.cancel, m.exec
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	if exec != nil {
		exec.Stop()
	}
	m.wg.Wait()
	return nil
}

// Snapshot returns a deep copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// --------------------------------------------------------------------
// Identity and entitlement synchronisation
// --------------------------------------------------------------------

func (m *Manager) handleIdentity(id Identity) {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()
	m.applyIdentity(id)
}

// applyIdentity must run under eventMu.
func (m *Manager) applyIdentity(id Identity) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.stopWatchLocked()
	gen := m.watchGen

	prevID := m.state.IdentityID
	newID := ""
	if id != nil {
		newID = id.ID()
	}
	if prevID != newID {
		m.epoch++
		m.state.Turns = nil
		m.state.History = nil
		m.state.ActiveConversationID = ""
		m.state.IsBusy = false
		if prevID != "" {
			m.state.Trial = Trial{}
		}
	}

	if id == nil {
		m.current = nil
		m.state.IdentityID = ""
		m.state.Entitlement = Entitlement{}
		m.state.Verified = Verified{}
		snap := m.state.clone()
		m.mu.Unlock()

		m.logger.Debug().Str("previous", prevID).Msg("session: identity absent")
		m.notify(snap)
		return
	}

	m.current = id
	m.state.IdentityID = newID
	if prevID != newID {
		// Settled values belong to the previous identity.
		m.state.Entitlement = Entitlement{Loading: true}
	} else {
		m.state.Entitlement.Loading = true
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelWatch = cancel
	exec := m.exec
	snap := m.state.clone()
	m.mu.Unlock()

	m.logger.Debug().Str("identity", newID).Str("previous", prevID).Msg("session: identity changed")
	m.notify(snap)

	err := exec.Submit(ctx, identityKey, shardqueue.JobFunc(func(jctx context.Context) error {
		m.syncIdentity(jctx, id, gen)
		return nil
	}))
	if err != nil && ctx.Err() == nil {
		m.commitEntitlement(gen, Entitlement{})
		m.report(newError(RemoteUnavailable, "sync identity", err))
	}
}

// syncIdentity verifies id when needed, then starts the entitlement watch.
func (m *Manager) syncIdentity(ctx context.Context, id Identity, gen uint64) {
	m.mu.Lock()
	needVerify := m.state.Verified.LastVerifiedID != id.ID()
	m.mu.Unlock()

	if needVerify {
		m.verify(ctx, id)
	}
	if ctx.Err() != nil || !m.currentGen(gen) {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.source.Watch(ctx, id, func(st *client.SubscriptionStatus, err error) {
			if err != nil {
				if m.commitEntitlement(gen, Entitlement{}) {
					m.report(remoteError("fetch entitlement", err))
				}
				return
			}
			if m.commitEntitlement(gen, entitlementFrom(st)) {
				m.logger.Debug().Str("identity", id.ID()).Msg("session: entitlement updated")
			}
		})
		if err != nil && ctx.Err() == nil {
			m.logger.Debug().Err(err).Str("identity", id.ID()).Msg("session: entitlement watch ended")
		}
	}()
}

// verify runs the verification bridge. A failure leaves the marker unset;
// entitlement is still fetched afterwards.
func (m *Manager) verify(ctx context.Context, id Identity) {
	token, err := credential(ctx, id)
	if err == nil {
		err = m.backend.VerifyIdentity(ctx, token)
	}

	m.mu.Lock()
	if m.current == nil || m.current.ID() != id.ID() {
		m.mu.Unlock()
		staleDiscardsTotal.WithLabelValues("verification").Inc()
		m.logger.Debug().Str("identity", id.ID()).Msg("session: discarding stale verification")
		return
	}
	if err != nil {
		m.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		verificationsTotal.WithLabelValues("failure").Inc()
		kind := VerificationFailed
		if errors.Is(err, client.ErrNotAuthenticated) {
			kind = NotAuthenticated
		}
		m.logger.Warn().Err(err).Str("identity", id.ID()).Msg("session: verification failed")
		m.report(newError(kind, "verify identity", err))
		return
	}
	m.state.Verified.LastVerifiedID = id.ID()
	snap := m.state.clone()
	m.mu.Unlock()

	verificationsTotal.WithLabelValues("success").Inc()
	m.logger.Debug().Str("identity", id.ID()).Msg("session: identity verified")
	m.notify(snap)
}

// RefreshEntitlement re-fetches status for the current identity, e.g. after
// returning from checkout. It is never gated.
func (m *Manager) RefreshEntitlement(ctx context.Context) error {
	const op = "refresh entitlement"
	m.mu.Lock()
	id, gen := m.current, m.watchGen
	m.mu.Unlock()
	if id == nil {
		return newError(NotAuthenticated, op, nil)
	}

	token, err := credential(ctx, id)
	if err != nil {
		return newError(NotAuthenticated, op, err)
	}
	st, err := m.backend.SubscriptionStatus(ctx, token)
	if err != nil {
		m.commitEntitlement(gen, Entitlement{})
		return remoteError(op, err)
	}
	m.commitEntitlement(gen, entitlementFrom(st))
	return nil
}

// commitEntitlement replaces the snapshot when gen is still current.
func (m *Manager) commitEntitlement(gen uint64, e Entitlement) bool {
	m.mu.Lock()
	if gen != m.watchGen {
		m.mu.Unlock()
		staleDiscardsTotal.WithLabelValues("entitlement").Inc()
		return false
	}
	m.state.Entitlement = e
	snap := m.state.clone()
	m.mu.Unlock()
	m.notify(snap)
	return true
}

func (m *Manager) currentGen(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.watchGen
}

func (m *Manager) stopWatchLocked() {
	if m.cancelWatch != nil {
		m.cancelWatch()
		m.cancelWatch = nil
	}
	m.watchGen++
}

// --------------------------------------------------------------------
// Local flags
// --------------------------------------------------------------------

// SetTrialOverride toggles the local trial flag. No remote effect.
func (m *Manager) SetTrialOverride(active bool) {
	m.mu.Lock()
	m.state.Trial.Active = active
	snap := m.state.clone()
	m.mu.Unlock()
	m.notify(snap)
}

// --------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------

func credential(ctx context.Context, id Identity) (string, error) {
	token, err := id.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", client.ErrNotAuthenticated, err)
	}
	return token, nil
}

func (m *Manager) report(err error) {
	if err == nil || m.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("session: error handler panic")
		}
	}()
	m.onError(err)
}

func (m *Manager) notify(s State) {
	if m.onChange == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("session: change observer panic")
		}
	}()
	m.onChange(s)
}
