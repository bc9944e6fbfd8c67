package events

import (
	"sync"
)

type Subscriber struct {
	ID     string
	SMSID  string // Filter by SMS ID (empty = all)
	Type   Type   // Filter by event type (empty = all)
	Events chan Event
}

// Hub fans events out to registered subscribers. Entities stay passive; the
// orchestrator and worker publish here instead of emitting on their models.
type Hub struct {
	subscribers map[string]*Subscriber
	mu          sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
	}
}

func (h *Hub) Subscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub.ID] = sub
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		close(sub.Events)
		delete(h.subscribers, id)
	}
}

func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers {
		if h.matchesFilter(sub, event) {
			select {
			case sub.Events <- event:
			default:
				// Non-blocking: skip if subscriber buffer is full
			}
		}
	}
}

func (h *Hub) matchesFilter(sub *Subscriber, event Event) bool {
	if sub.SMSID != "" && sub.SMSID != event.SMSID {
		return false
	}
	if sub.Type != "" && sub.Type != event.Type {
		return false
	}
	return true
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
