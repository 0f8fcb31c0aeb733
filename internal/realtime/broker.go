// Package realtime fans lifecycle events out to connected clients. Every
// subscriber receives its own copy of each event.
package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sudo-init-do/errandhub/internal/events"
)

var _ events.Publisher = (*Broker)(nil)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 64

// Subscriber receives events for one domain ("" for all).
type Subscriber struct {
	id     string
	domain string
	ch     chan events.Event
	closed atomic.Bool
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only event channel. It is closed on Unsubscribe.
func (s *Subscriber) C() <-chan events.Event { return s.ch }

func (s *Subscriber) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Broker is an in-process broadcast bus.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	logger      *slog.Logger
	bufferSize  int

	totalPublished atomic.Int64
	totalDropped   atomic.Int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// NewBroker creates a broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		subscribers: make(map[string]*Subscriber),
		logger:      logger,
		bufferSize:  DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber for domain; "" receives every domain.
func (b *Broker) Subscribe(domain string) *Subscriber {
	sub := &Subscriber{
		id:     uuid.NewString(),
		domain: domain,
		ch:     make(chan events.Event, b.bufferSize),
	}
	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, sub.id)
	b.mu.Unlock()
	sub.close()
}

// Publish implements events.Publisher. A subscriber whose buffer is full
// misses the event; others are unaffected.
func (b *Broker) Publish(evt events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.domain != "" && sub.domain != evt.Domain {
			continue
		}
		select {
		case sub.ch <- evt:
			b.totalPublished.Add(1)
		default:
			b.totalDropped.Add(1)
			b.logger.Warn("realtime: subscriber buffer full, event dropped",
				"subscriber", sub.id, "event", evt.Name)
		}
	}
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	b.mu.RLock()
	n := len(b.subscribers)
	b.mu.RUnlock()
	return BrokerStats{
		SubscriberCount: n,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}
