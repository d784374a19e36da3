// Package events carries the observational feed of registry changes. Nothing
// on the voice protocol depends on it; it exists for dashboards and tooling.
package events

import (
	"sync"
	"time"
)

// Feed event kinds.
const (
	TypeJoin       = "join"
	TypeLeave      = "leave"
	TypeMediaBound = "media_bound"
)

// subscriberBuffer is the per-subscriber queue depth. A subscriber that
// falls further behind loses events.
const subscriberBuffer = 16

// Event is one entry on the feed.
type Event struct {
	Type string    `json:"type"`
	Name string    `json:"name"`
	Room string    `json:"room"`
	TS   time.Time `json:"ts"`
}

// Hub fans events out to subscribers. Publishing never blocks the caller.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Publish delivers ev to every subscriber, dropping it for any whose queue
// is full.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new listener. The returned cancel removes it and
// closes the channel; calling cancel more than once is safe.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// SubscriberCount reports how many listeners are attached.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
