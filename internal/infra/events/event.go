package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is a fact published on the bus. Events are forwarded to the broker as
// JSON, so implementations must marshal cleanly.
type Event interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	// AggregateID identifies the entity the event is about.
	AggregateID() uuid.UUID
	AggregateType() string
}

// BaseEvent carries the envelope fields shared by all events. Concrete events
// embed it and add their payload.
type BaseEvent struct {
	ID        uuid.UUID `json:"event_id"`
	Type      string    `json:"event_type"`
	Occurred  time.Time `json:"occurred_at"`
	Aggregate uuid.UUID `json:"aggregate_id"`
	Kind      string    `json:"aggregate_type"`
}

// NewBaseEvent stamps a new envelope with a random id and the current UTC time.
func NewBaseEvent(eventType string, aggregateID uuid.UUID, aggregateType string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Occurred:  time.Now().UTC(),
		Aggregate: aggregateID,
		Kind:      aggregateType,
	}
}

func (e BaseEvent) EventID() uuid.UUID     { return e.ID }
func (e BaseEvent) EventType() string      { return e.Type }
func (e BaseEvent) OccurredAt() time.Time  { return e.Occurred }
func (e BaseEvent) AggregateID() uuid.UUID { return e.Aggregate }
func (e BaseEvent) AggregateType() string  { return e.Kind }
