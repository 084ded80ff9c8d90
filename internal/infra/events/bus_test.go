package events

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newEvent(eventType string) BaseEvent {
	return NewBaseEvent(eventType, uuid.New(), "Order")
}

func recorder(seen *[]string, types ...string) Handler {
	return Subscribe(func(e Event) error {
		*seen = append(*seen, e.EventType())
		return nil
	}, types...)
}

func TestBus_Publish(t *testing.T) {
	t.Run("dispatches by type", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		var captured, refunded []string
		bus.Register(recorder(&captured, "Captured"))
		bus.Register(recorder(&refunded, "Refunded"))

		bus.Publish(newEvent("Captured"))

		assert.Equal(t, []string{"Captured"}, captured)
		assert.Empty(t, refunded)
	})

	t.Run("wildcard handler receives everything after specific handlers", func(t *testing.T) {
		bus := NewBus(nil)
		var order []string
		bus.Register(Subscribe(func(e Event) error {
			order = append(order, "wildcard:"+e.EventType())
			return nil
		}, AllEvents))
		bus.Register(Subscribe(func(e Event) error {
			order = append(order, "specific:"+e.EventType())
			return nil
		}, "Captured"))

		bus.PublishAll([]Event{newEvent("Captured"), newEvent("Refunded")})

		assert.Equal(t, []string{"specific:Captured", "wildcard:Captured", "wildcard:Refunded"}, order)
	})

	t.Run("isolates failing and panicking handlers", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		var seen []string
		bus.Register(Subscribe(func(Event) error { return errors.New("broker down") }, "Captured"))
		bus.Register(Subscribe(func(Event) error { panic("boom") }, "Captured"))
		bus.Register(recorder(&seen, "Captured"))

		assert.NotPanics(t, func() { bus.Publish(newEvent("Captured")) })
		assert.Equal(t, []string{"Captured"}, seen)
	})

	t.Run("no handlers", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		assert.NotPanics(t, func() { bus.Publish(newEvent("Captured")) })
	})
}

func TestBus_HandlerCount(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var seen []string
	bus.Register(recorder(&seen, "Captured", "Refunded"))
	bus.Register(recorder(&seen, AllEvents))

	assert.Equal(t, 2, bus.HandlerCount("Captured"))
	assert.Equal(t, 2, bus.HandlerCount("Refunded"))
	assert.Equal(t, 1, bus.HandlerCount("Cancelled"))
}

func TestNewBaseEvent(t *testing.T) {
	id := uuid.New()
	e := NewBaseEvent("Captured", id, "Order")

	assert.NotEqual(t, uuid.Nil, e.EventID())
	assert.Equal(t, "Captured", e.EventType())
	assert.Equal(t, id, e.AggregateID())
	assert.Equal(t, "Order", e.AggregateType())
	assert.Equal(t, time.UTC, e.OccurredAt().Location())
}
