package devserver

import (
	"sync"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
)

// hub fans subscription changes out to the stream connections of one user.
// Slow listeners drop intermediate updates; only the newest matters.
type hub struct {
	mu     sync.Mutex
	next   int
	subs   map[string]map[int]chan client.SubscriptionStatus
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[int]chan client.SubscriptionStatus)}
}

// subscribe registers a listener for uid. The returned cancel func is idempotent.
// The channel is closed on cancel or when the hub closes.
func (h *hub) subscribe(uid string) (<-chan client.SubscriptionStatus, func()) {
	ch := make(chan client.SubscriptionStatus, 1)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	if h.subs[uid] == nil {
		h.subs[uid] = make(map[int]chan client.SubscriptionStatus)
	}
	h.subs[uid][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[uid][id]; ok {
				delete(h.subs[uid], id)
				if len(h.subs[uid]) == 0 {
					delete(h.subs, uid)
				}
				close(c)
			}
		})
	}
}

// publish delivers st to every listener of uid, replacing any undelivered value.
func (h *hub) publish(uid string, st client.SubscriptionStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[uid] {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

// listeners reports how many stream connections uid has.
func (h *hub) listeners(uid string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[uid])
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for uid, m := range h.subs {
		for id, ch := range m {
			close(ch)
			delete(m, id)
		}
		delete(h.subs, uid)
	}
}
