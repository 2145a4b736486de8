package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the compute service. Versioned events carry a
// publisher id matching "nova-compute*", legacy ones "compute*".
const (
	EventServiceUpdate         = "service.update"
	EventInstanceUpdate        = "instance.update"
	EventInstanceDeleteEnd     = "instance.delete.end"
	EventLegacyInstanceUpdate  = "compute.instance.update"
	EventLegacyInstanceCreated = "compute.instance.create.end"
	EventLegacyInstanceDeleted = "compute.instance.delete.end"
	EventLegacyLiveMigrated    = "compute.instance.live_migration.post.dest.end"
)

// Notification is a lifecycle message received from the compute service
type Notification struct {
	ID          string            `json:"id"`
	PublisherID string            `json:"publisher_id"`
	EventType   string            `json:"event_type"`
	Timestamp   time.Time         `json:"timestamp"`
	Payload     json.RawMessage   `json:"payload"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewNotification builds a notification, marshaling payload to JSON
func NewNotification(publisherID, eventType string, payload any) (*Notification, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Notification{
		ID:          uuid.New().String(),
		PublisherID: publisherID,
		EventType:   eventType,
		Timestamp:   time.Now(),
		Payload:     raw,
	}, nil
}

// Subscriber is a channel that receives notifications
type Subscriber chan *Notification

// Broker fans notifications out to subscribers. Delivery is best effort: a
// subscriber whose buffer is full misses the notification.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Notification
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new notification broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Notification, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}

// Subscribe creates a new subscription and returns its channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues a notification for broadcast. It blocks while the publish
// buffer is full and returns immediately once the broker is stopped.
func (b *Broker) Publish(n *Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	select {
	case b.eventCh <- n:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case n := <-b.eventCh:
			b.broadcast(n)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(n *Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- n:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
