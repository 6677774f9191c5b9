// README: Lifecycle events, the in-process broker and its subscribers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"transferhub/internal/types"
)

type Type string

const (
	JobCreated      Type = "job.created"
	BidPlaced       Type = "job.bid_placed"
	BidAccepted     Type = "job.bid_accepted"
	JobPaid         Type = "job.paid"
	JobCompleted    Type = "job.completed"
	JobCancelled    Type = "job.cancelled"
	DisputeOpened   Type = "job.dispute_opened"
	DisputeResolved Type = "job.dispute_resolved"
	DistanceUpdated Type = "job.distance_updated"
	PricingUpdated  Type = "pricing.updated"
)

type Event struct {
	Type       Type              `json:"type"`
	JobID      types.ID          `json:"job_id,omitempty"`
	From       string            `json:"from,omitempty"`
	To         string            `json:"to,omitempty"`
	ActorID    types.ID          `json:"actor_id,omitempty"`
	Attrs      map[string]string `json:"attrs,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Broker fans events out to in-process subscribers. A slow subscriber
// misses events rather than blocking the publisher.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	logger *slog.Logger
}

func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{subs: make(map[int]chan Event), logger: logger}
}

func (b *Broker) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Warn("event dropped for slow subscriber",
				slog.Int("subscriber", id),
				slog.String("type", string(e.Type)),
			)
		}
	}
	return nil
}

// Subscribe returns a buffered channel of events. The channel is closed
// when ctx is done.
func (b *Broker) Subscribe(ctx context.Context, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch
}

// Multi publishes to every publisher and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
