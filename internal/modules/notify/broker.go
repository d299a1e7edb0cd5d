package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultSubscriberBufferSize = 64

var (
	_ Publisher  = (*Broker)(nil)
	_ Dispatcher = (*Broker)(nil)
)

// Broker fans events out to in-process subscribers. A subscriber whose
// buffer is full is dropped and its channel closed, so that its client
// reconnects and re-fetches instead of silently missing events.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscription
	bufferSize  int
	logger      *zap.Logger
}

type Subscription struct {
	ID     uuid.UUID
	events chan Event
	broker *Broker
}

func NewBroker(bufferSize int, logger *zap.Logger) *Broker {
	if bufferSize < 1 {
		bufferSize = DefaultSubscriberBufferSize
	}

	return &Broker{
		subscribers: make(map[uuid.UUID]*Subscription),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

func (b *Broker) Subscribe() *Subscription {
	s := &Subscription{
		ID:     uuid.New(),
		events: make(chan Event, b.bufferSize),
		broker: b,
	}

	b.mu.Lock()
	b.subscribers[s.ID] = s
	b.mu.Unlock()

	b.logger.Debug("subscriber registered", zap.String("subscription_id", s.ID.String()))

	return s
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Close() {
	s.broker.remove(s.ID)
}

// Publish delivers the event to local subscribers only.
func (b *Broker) Publish(_ context.Context, event Event) error {
	b.Dispatch(event)
	return nil
}

func (b *Broker) Dispatch(event Event) {
	var lagging []uuid.UUID

	b.mu.RLock()
	for id, s := range b.subscribers {
		select {
		case s.events <- event:
		default:
			lagging = append(lagging, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range lagging {
		b.logger.Warn("subscriber buffer full, dropping subscriber", zap.String("subscription_id", id.String()))
		b.remove(id)
	}
}

func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, s := range b.subscribers {
		close(s.events)
		delete(b.subscribers, id)
	}
}

func (b *Broker) remove(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.subscribers[id]; ok {
		close(s.events)
		delete(b.subscribers, id)
	}
}
