package engine

import "sync"

// EventType names an engine notification.
type EventType string

const (
	PositionChanged  EventType = "position"
	DurationChanged  EventType = "duration"
	TransformApplied EventType = "transform_applied"
	TransformFailed  EventType = "transform_failed"
	StateChanged     EventType = "state"
)

// Event is a notification for UI collaborators.
type Event struct {
	Type    EventType `json:"type"`
	Millis  int64     `json:"ms,omitempty"`
	Channel int       `json:"channel"`
	Reason  string    `json:"reason,omitempty"`
	State   string    `json:"state,omitempty"`
}

// Subscription receives events from a Hub.
type Subscription struct {
	C chan Event
}

// Hub fans events out to subscribers. A subscriber that falls behind loses
// events instead of stalling the engine.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{C: make(chan Event, 64)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.C)
	}
	h.mu.Unlock()
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers ev to every subscriber that has room for it.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.C <- ev:
		default:
		}
	}
}
