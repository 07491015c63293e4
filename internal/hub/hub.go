// Package hub fans a stream of metrics records out to optional subscriber
// tasks (a metrics exporter, a per-direction mirror for full-duplex links)
// without ever blocking the pipeline driver's hot path (§5).
package hub

import (
	"sync"

	"github.com/kstaniek/linkemu/internal/logging"
	"github.com/kstaniek/linkemu/internal/metrics"
)

// BackpressurePolicy controls what happens when a subscriber's queue is full.
type BackpressurePolicy int

const (
	// PolicyDrop discards the record and counts the drop (§5 default).
	PolicyDrop BackpressurePolicy = iota
	// PolicyKick closes the slow subscriber (its Closed channel fires)
	// instead of counting a drop; the record is not delivered, and the
	// subscriber stays registered until Remove is called.
	PolicyKick
)

// Subscriber receives fanned-out records on Out until Close is called.
type Subscriber struct {
	Out       chan metrics.Record
	Closed    chan struct{}
	closeOnce sync.Once
}

// Close signals the subscriber is closed (idempotent).
func (c *Subscriber) Close() {
	c.closeOnce.Do(func() {
		close(c.Closed)
	})
}

// Hub broadcasts metrics records to every registered subscriber.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	OutBufSize  int
	Policy      BackpressurePolicy
}

// New creates a Hub with default settings.
func New() *Hub { return &Hub{subscribers: make(map[*Subscriber]struct{})} }

// Add registers a subscriber with the hub.
func (h *Hub) Add(c *Subscriber) {
	h.mu.Lock()
	prev := len(h.subscribers)
	h.subscribers[c] = struct{}{}
	cur := len(h.subscribers)
	h.mu.Unlock()
	if prev == 0 && cur == 1 {
		logging.L().Info("hub_first_subscriber")
	}
}

// Remove unregisters a subscriber; safe to call multiple times.
func (h *Hub) Remove(c *Subscriber) {
	h.mu.Lock()
	_, existed := h.subscribers[c]
	if existed {
		delete(h.subscribers, c)
	}
	cur := len(h.subscribers)
	h.mu.Unlock()
	select {
	case <-c.Closed:
	default:
		c.Close()
	}
	if existed && cur == 0 {
		logging.L().Info("hub_last_subscriber")
	}
}

// Broadcast sends a record to every subscriber, honoring the backpressure
// policy. Never blocks the caller beyond a single non-blocking channel send
// per subscriber.
func (h *Hub) Broadcast(rec metrics.Record) {
	subs := h.Snapshot()
	for _, c := range subs {
		select {
		case c.Out <- rec:
		default:
			if h.Policy == PolicyKick {
				c.Close()
			} else {
				metrics.IncExportDropped()
			}
		}
	}
}

// Snapshot returns a slice copy of current subscribers (read-only use).
func (h *Hub) Snapshot() []*Subscriber {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for c := range h.subscribers {
		subs = append(subs, c)
	}
	h.mu.RUnlock()
	return subs
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int { h.mu.RLock(); n := len(h.subscribers); h.mu.RUnlock(); return n }
