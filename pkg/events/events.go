package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies a cluster event
type Type string

const (
	EventConfigApplied      Type = "config.applied"
	EventShardDown          Type = "shard.down"
	EventShardRecovered     Type = "shard.recovered"
	EventMigrationStarted   Type = "migration.started"
	EventMigrationCompleted Type = "migration.completed"
	EventMigrationFailed    Type = "migration.failed"
)

// Event is one cluster occurrence, broadcast to all subscribers
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker is an in-memory fan-out bus for cluster events. Publishing never
// blocks: a subscriber that falls behind skips events rather than stalling
// the publisher. Delivery is best effort, suitable for observability, not
// for correctness.
//
// A nil *Broker is valid and drops everything, so components can publish
// unconditionally.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates an event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop
func (b *Broker) Start() {
	if b == nil {
		return
	}
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	if b == nil {
		return
	}
	close(b.stopCh)
}

// Subscribe creates a new subscription. The returned channel is buffered;
// a full buffer skips events.
func (b *Broker) Subscribe() Subscriber {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish broadcasts an event. Missing id and timestamp are filled in.
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
