package identity

import (
	"sync"

	"github.com/B4xAbhishek/aqua-ai-answers/session"
)

// subscribers fans identity events out in registration order.
type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(session.Identity)
	keys []int
}

func (s *subscribers) add(fn func(session.Identity)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = map[int]func(session.Identity){}
	}
	k := s.next
	s.next++
	s.fns[k] = fn
	s.keys = append(s.keys, k)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, k)
	}
}

func (s *subscribers) snapshot() []func(session.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(session.Identity), 0, len(s.fns))
	for _, k := range s.keys {
		if fn, ok := s.fns[k]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// Static is an IdentitySource whose identity only changes through Set.
type Static struct {
	mu      sync.Mutex
	current session.Identity
	subs    subscribers
}

var _ session.IdentitySource = (*Static)(nil)

// NewStatic returns a source holding id, which may be nil.
func NewStatic(id session.Identity) *Static {
	return &Static{current: id}
}

// Current implements session.IdentitySource.
func (s *Static) Current() session.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe implements session.IdentitySource.
func (s *Static) Subscribe(fn func(session.Identity)) func() { return s.subs.add(fn) }

// Set replaces the identity and notifies subscribers on the caller's
// goroutine.
func (s *Static) Set(id session.Identity) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	for _, fn := range s.subs.snapshot() {
		fn(id)
	}
}
