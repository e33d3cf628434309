package events

import (
	"sync"
	"time"

	"arrdeck-go/internal/config"
)

// EventType represents the type of event
type EventType string

const (
	// Registry events
	ServiceAdded   EventType = "service_added"
	ServiceRemoved EventType = "service_removed"

	// Health events
	ServiceHealthChanged EventType = "service_health_changed"

	// Notification events
	NotificationDelivered EventType = "notification_delivered"
	NotificationDeferred  EventType = "notification_deferred"
	NotificationFlushed   EventType = "notification_flushed"
)

// HealthChangeData contains data for health transition events
type HealthChangeData struct {
	ServiceID string `json:"service_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Message   string `json:"message,omitempty"`
}

// Event represents a single event in the system
type Event struct {
	Type      EventType   `json:"type"`
	ServiceID string      `json:"service_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Bus is a thread-safe event bus for pub/sub messaging between the registry,
// the health monitor, and the notification pipeline. It is deliberately small;
// it is not a product surface.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	closed      bool
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
	}
}

// Subscribe subscribes to a specific event type and returns a channel for
// receiving events. The channel is buffered to prevent blocking publishers.
func (b *Bus) Subscribe(eventType EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, config.EventChannelBufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// Unsubscribe removes a subscription channel
func (b *Bus) Unsubscribe(eventType EventType, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.subscribers[eventType]
	if !exists {
		return
	}

	for i, subscriber := range subscribers {
		if subscriber == ch {
			b.subscribers[eventType][i] = b.subscribers[eventType][len(b.subscribers[eventType])-1]
			b.subscribers[eventType] = b.subscribers[eventType][:len(b.subscribers[eventType])-1]
			break
		}
	}

	if len(b.subscribers[eventType]) == 0 {
		delete(b.subscribers, eventType)
	}
}

// Publish publishes an event to all subscribers of that event type.
// Non-blocking: if a subscriber's channel is full, the event is dropped.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			// Channel full; drop rather than block the publisher.
		}
	}
}

// Close closes the event bus and all subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subscribers := range b.subscribers {
		for _, ch := range subscribers {
			close(ch)
		}
	}
	b.subscribers = make(map[EventType][]chan Event)
}

// SubscriberCount returns the number of subscribers for a specific event type
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// IsClosed returns whether the bus has been closed
func (b *Bus) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
