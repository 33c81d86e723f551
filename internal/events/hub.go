// Package events fans store change events out to per-client subscribers.
package events

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/storefront-state/internal/model"
)

// SubscriberBuffer is the per-subscriber queue length.
const SubscriberBuffer = 32

var (
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_events_published_total",
			Help: "Total number of store events published",
		},
		[]string{"type"},
	)

	eventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_events_dropped_total",
			Help: "Total number of store events dropped for slow subscribers",
		},
		[]string{"type"},
	)

	activeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_event_subscribers",
			Help: "Number of active store event subscribers",
		},
	)
)

// Hub routes events to the subscribers of the event's client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[chan model.StoreEvent]struct{}
	closed  bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[chan model.StoreEvent]struct{}),
	}
}

// Subscribe returns a channel of events for clientID and a function that
// cancels the subscription and closes the channel.
func (h *Hub) Subscribe(clientID string) (<-chan model.StoreEvent, func()) {
	ch := make(chan model.StoreEvent, SubscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	subs, ok := h.clients[clientID]
	if !ok {
		subs = make(map[chan model.StoreEvent]struct{})
		h.clients[clientID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()
	activeSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.unsubscribe(clientID, ch)
		})
	}
}

// Publish delivers event to every subscriber of event.ClientID. Slow
// subscribers miss the event instead of blocking the publisher.
func (h *Hub) Publish(event model.StoreEvent) {
	eventsPublishedTotal.WithLabelValues(event.Type).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients[event.ClientID] {
		select {
		case ch <- event:
		default:
			eventsDroppedTotal.WithLabelValues(event.Type).Inc()
		}
	}
}

// Subscribers returns the number of subscribers for clientID.
func (h *Hub) Subscribers(clientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[clientID])
}

// Close closes every subscription channel. Later subscriptions receive a
// closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for clientID, subs := range h.clients {
		for ch := range subs {
			close(ch)
			activeSubscribers.Dec()
		}
		delete(h.clients, clientID)
	}
}

func (h *Hub) unsubscribe(clientID string, ch chan model.StoreEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.clients[clientID]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	activeSubscribers.Dec()
	if len(subs) == 0 {
		delete(h.clients, clientID)
	}
}
