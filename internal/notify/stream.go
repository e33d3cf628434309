package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"arrdeck-go/internal/events"
)

// CategoryEvents tags state-change messages forwarded from the event bus.
// Not a notification category: it bypasses quiet hours and the deferred
// queue, so it is deliberately absent from Categories().
const CategoryEvents = "events"

// EventStream forwards registry and health events from the bus to a push
// transport, so connected app clients track live state without polling.
type EventStream struct {
	bus    *events.Bus
	pusher Pusher
	logger *zap.Logger
	stop   chan struct{}
	wg     sync.WaitGroup
}

// StartEventStream subscribes to the state-change event types and starts
// forwarding. Close stops it.
func StartEventStream(bus *events.Bus, pusher Pusher, logger *zap.Logger) *EventStream {
	s := &EventStream{
		bus:    bus,
		pusher: pusher,
		logger: logger,
		stop:   make(chan struct{}),
	}

	for _, eventType := range []events.EventType{
		events.ServiceAdded,
		events.ServiceRemoved,
		events.ServiceHealthChanged,
	} {
		ch := bus.Subscribe(eventType)
		s.wg.Add(1)
		go s.forward(eventType, ch)
	}

	return s
}

func (s *EventStream) forward(eventType events.EventType, ch <-chan events.Event) {
	defer s.wg.Done()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := s.pusher.Push(context.Background(), eventMessage(ev)); err != nil {
				s.logger.Debug("Event forward failed",
					zap.String("event_type", string(ev.Type)),
					zap.Error(err))
			}

		case <-s.stop:
			s.bus.Unsubscribe(eventType, ch)
			return
		}
	}
}

// Close stops forwarding and waits for in-flight events to drain.
func (s *EventStream) Close() {
	close(s.stop)
	s.wg.Wait()
}

func eventMessage(ev events.Event) *Message {
	data := map[string]string{"event": string(ev.Type)}
	if ev.ServiceID != "" {
		data["service_id"] = ev.ServiceID
	}

	title := string(ev.Type)
	if hc, ok := ev.Data.(events.HealthChangeData); ok {
		data["service_id"] = hc.ServiceID
		data["old_status"] = hc.OldStatus
		data["new_status"] = hc.NewStatus
		title = fmt.Sprintf("%s: %s", hc.ServiceID, hc.NewStatus)
	}

	return &Message{
		ID:       uuid.NewString(),
		Title:    title,
		Body:     title,
		Category: CategoryEvents,
		Data:     data,
	}
}
