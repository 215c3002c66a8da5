// Package realtime fans database change events out to connected clients.
package realtime

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const DefaultBuffer = 16

// Event is one expense row change.
type Event struct {
	Op          string  `json:"op"`
	ID          string  `json:"id"`
	PayerID     string  `json:"payer_id"`
	DebtorEmail string  `json:"debtor_email"`
	GroupID     *string `json:"group_id,omitempty"`
	Status      string  `json:"status"`
}

// Involves reports whether the user is the payer or the debtor of the row.
func (e Event) Involves(userID, email string) bool {
	return e.PayerID == userID || (email != "" && strings.EqualFold(e.DebtorEmail, email))
}

// Filter selects the events a subscriber receives.
type Filter func(Event) bool

// Subscription receives events matching its filter.
type Subscription struct {
	hub    *Hub
	filter Filter
	ch     chan Event
	once   sync.Once
}

// Events is closed when the subscription ends or the hub closes.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub is an in-process broadcaster. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	dropped metric.Int64Counter
}

func NewHub() *Hub {
	h := &Hub{subs: make(map[*Subscription]struct{})}

	meter := otel.Meter("splitpay/realtime")
	dropped, err := meter.Int64Counter("realtime.events.dropped",
		metric.WithDescription("Events skipped because a subscriber was not keeping up"),
	)
	if err == nil {
		h.dropped = dropped
	}
	return h
}

// Subscribe registers a subscriber. A nil filter receives everything.
func (h *Hub) Subscribe(filter Filter, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscription{hub: h, filter: filter, ch: make(chan Event, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		s.once.Do(func() {})
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish delivers ev to every matching subscriber.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			if h.dropped != nil {
				h.dropped.Add(context.Background(), 1)
			}
		}
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscriptions are closed at once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		s.once.Do(func() { close(s.ch) })
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
	s.once.Do(func() { close(s.ch) })
}
