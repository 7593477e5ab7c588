// Package notifier provides in-process fan-out of chain change events to
// interested subscribers (websocket sessions, cache invalidators).
package notifier

import (
	"log"
	"sync"
	"time"

	"github.com/chain-explorer/internal/types"
	"github.com/google/uuid"
)

// Event is a single change notification
type Event struct {
	Kind    types.EventKind `json:"kind"`
	Payload any             `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing events rather than stalling ingestion.
const subscriberBuffer = 64

// Hub fans events out to subscribers. Publish never blocks: a subscriber
// with a full buffer has the event dropped and logged.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
}

// NewHub creates a new notification hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]chan Event),
	}
}

// Subscribe registers a new subscriber and returns its id and event channel.
// The channel is closed on Unsubscribe or hub Close.
func (h *Hub) Subscribe() (string, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Event, subscriberBuffer)

	if h.closed {
		close(ch)
		return id, ch
	}

	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Publish delivers an event to every subscriber without blocking
func (h *Hub) Publish(kind types.EventKind, payload any) {
	event := Event{Kind: kind, Payload: payload, At: time.Now()}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for id, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			log.Printf("[Notifier] dropping %s event for slow subscriber %s", kind, id)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close shuts the hub down and closes all subscriber channels
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}
