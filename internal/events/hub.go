// Package events provides the per-actor broadcast hub. Every actor owns
// one Hub and fans typed envelopes out to its live subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Envelope is the message shape delivered to every subscriber.
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type subscriber struct {
	id string
	ch chan Envelope
}

// Hub maintains a registry from subscriber id to a live channel.
// The owning actor is the only broadcaster; subscribers are HTTP
// streaming handlers. A slow subscriber loses its oldest buffered
// events (ring buffer) and never stalls delivery to the others.
type Hub struct {
	mu           sync.RWMutex
	subs         map[string]*subscriber
	bufferSize   int
	droppedCount int64
	closed       bool
}

// DefaultBufferSize is the per-subscriber buffer used when NewHub is
// called with a non-positive size. Overridable at startup from config.
var DefaultBufferSize = 100

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subs:       make(map[string]*subscriber),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a subscriber under the caller-supplied id and
// returns its event channel. Subscribing with an id that is already
// registered replaces the previous connection (the old channel is
// closed), matching reconnect semantics.
func (h *Hub) Subscribe(id string) <-chan Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.subs[id]; ok {
		close(old.ch)
	}
	sub := &subscriber{id: id, ch: make(chan Envelope, h.bufferSize)}
	h.subs[id] = sub
	return sub.ch
}

// Unsubscribe removes the subscriber registered under id, but only when
// the registered channel is the one the caller obtained from Subscribe.
// A stream that was already replaced by a reconnect with the same id
// must not tear down its successor. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string, ch <-chan Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok || (<-chan Envelope)(sub.ch) != ch {
		return
	}
	close(sub.ch)
	delete(h.subs, id)
}

// Broadcast sends an envelope to every registered subscriber.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	h.broadcast(eventType, data, "")
}

// BroadcastExcept sends an envelope to every subscriber except the one
// with the given id. Used for echo suppression.
func (h *Hub) BroadcastExcept(eventType string, data interface{}, excludeID string) {
	h.broadcast(eventType, data, excludeID)
}

func (h *Hub) broadcast(eventType string, data interface{}, excludeID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	env := Envelope{Type: eventType, Data: data, Timestamp: time.Now()}
	for id, sub := range h.subs {
		if excludeID != "" && id == excludeID {
			continue
		}
		select {
		case sub.ch <- env:
			// Sent successfully
		default:
			// Buffer full, drop oldest and try again (ring buffer)
			select {
			case <-sub.ch:
				atomic.AddInt64(&h.droppedCount, 1)
			default:
			}
			select {
			case sub.ch <- env:
			default:
				atomic.AddInt64(&h.droppedCount, 1)
			}
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// DroppedCount returns the total number of dropped envelopes.
func (h *Hub) DroppedCount() int64 {
	return atomic.LoadInt64(&h.droppedCount)
}

// Close closes the hub and all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for _, sub := range h.subs {
		close(sub.ch)
	}
	h.subs = make(map[string]*subscriber)
}
