package events

import (
	"sync"

	"go.uber.org/zap"
)

// AllEvents is the event type a handler lists to receive every event.
const AllEvents = "*"

// Bus is a simple synchronous event bus for domain events.
// It dispatches events to registered handlers synchronously.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

// NewBus creates a new event bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger.Named("event-bus"),
	}
}

// Register registers a handler for the events it handles.
func (b *Bus) Register(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, eventType := range handler.Handles() {
		b.handlers[eventType] = append(b.handlers[eventType], handler)
		b.logger.Debug("registered event handler",
			zap.String("event_type", eventType),
		)
	}
}

// HandlerCount returns how many handlers receive events of the given type,
// wildcard handlers included.
func (b *Bus) HandlerCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType]) + len(b.handlers[AllEvents])
}

// Publish dispatches an event to all registered handlers.
// Type-specific handlers run first, then wildcard handlers, each in registration order.
// If a handler fails, the error is logged but other handlers continue processing.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	specific := b.handlers[event.EventType()]
	wildcard := b.handlers[AllEvents]
	handlers := make([]Handler, 0, len(specific)+len(wildcard))
	handlers = append(handlers, specific...)
	handlers = append(handlers, wildcard...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug("no handlers registered for event",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
		)
		return
	}

	b.logger.Debug("publishing event",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.Int("handler_count", len(handlers)),
	)

	for _, handler := range handlers {
		b.dispatch(handler, event)
	}
}

// dispatch runs one handler and isolates its failures from the publisher.
func (b *Bus) dispatch(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.Any("panic", r),
			)
		}
	}()
	if err := handler.Handle(event); err != nil {
		b.logger.Error("event handler failed",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
			zap.Error(err),
		)
	}
}

// PublishAll dispatches multiple events.
func (b *Bus) PublishAll(events []Event) {
	for _, event := range events {
		b.Publish(event)
	}
}
