// Package events provides live, forward-only streaming of created
// memories. Subscriptions have an explicit lifecycle: every subscriber
// owns a bounded buffered channel and must be closed by its holder.
// There is no history and no replay; events published while a
// subscriber's buffer is full are dropped and counted.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"dev.helix.recall/internal/models"
)

// Event is one streamed occurrence.
type Event struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Memory *models.Memory `json:"memory"`
}

// KindCreated is emitted after a memory row is persisted.
const KindCreated = "created"

// HubMetrics tracks delivery counters.
type HubMetrics struct {
	Published         int64
	Delivered         int64
	Dropped           int64
	SubscribersActive int64
}

// Subscription is one attached stream consumer. Close detaches it and
// closes its channel; the hub never detaches subscribers on its own.
type Subscription struct {
	id     string
	ch     chan *Event
	filter models.StreamFilter
	hub    *Hub
	once   sync.Once
}

// Events returns the receive channel. It is closed by Close.
func (s *Subscription) Events() <-chan *Event {
	return s.ch
}

// Close detaches the subscription from the hub and closes its channel.
// Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.detach(s)
		close(s.ch)
	})
}

// Hub fans created-memory events out to attached subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscription
	bufferSize  int
	closed      bool
	metrics     HubMetrics
}

// NewHub builds a hub whose subscriber channels buffer bufferSize
// events.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Hub{
		subscribers: make(map[string]*Subscription),
		bufferSize:  bufferSize,
	}
}

// Subscribe attaches a consumer whose events match filter. The caller
// owns the subscription and must Close it.
func (h *Hub) Subscribe(filter models.StreamFilter) *Subscription {
	sub := &Subscription{
		id:     uuid.New().String(),
		ch:     make(chan *Event, h.bufferSize),
		filter: filter,
		hub:    h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subscribers[sub.id] = sub
	atomic.AddInt64(&h.metrics.SubscribersActive, 1)
	return sub
}

// Publish delivers the event to every subscriber whose filter matches.
// Delivery is non-blocking: a full buffer drops the event for that
// subscriber only.
func (h *Hub) Publish(event *Event) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	atomic.AddInt64(&h.metrics.Published, 1)
	for _, sub := range h.subscribers {
		if !sub.filter.Matches(event.Memory) {
			continue
		}
		select {
		case sub.ch <- event:
			atomic.AddInt64(&h.metrics.Delivered, 1)
		default:
			atomic.AddInt64(&h.metrics.Dropped, 1)
		}
	}
}

// Close detaches and closes every subscription and rejects further
// publishes and subscribes.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
	atomic.StoreInt64(&h.metrics.SubscribersActive, 0)
}

// Metrics returns a snapshot of the hub counters.
func (h *Hub) Metrics() HubMetrics {
	return HubMetrics{
		Published:         atomic.LoadInt64(&h.metrics.Published),
		Delivered:         atomic.LoadInt64(&h.metrics.Delivered),
		Dropped:           atomic.LoadInt64(&h.metrics.Dropped),
		SubscribersActive: atomic.LoadInt64(&h.metrics.SubscribersActive),
	}
}

// SubscriberCount returns the number of attached subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) detach(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub.id]; ok {
		delete(h.subscribers, sub.id)
		atomic.AddInt64(&h.metrics.SubscribersActive, -1)
	}
}
