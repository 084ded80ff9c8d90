package events

// Handler consumes events from the bus. Handles lists the subscribed event
// types; AllEvents subscribes to everything. The same event may be handled
// more than once, so Handle must be idempotent.
type Handler interface {
	Handles() []string
	Handle(event Event) error
}

// Subscribe adapts fn into a Handler for the given event types.
func Subscribe(fn func(Event) error, eventTypes ...string) Handler {
	return subscription{types: eventTypes, fn: fn}
}

type subscription struct {
	types []string
	fn    func(Event) error
}

func (s subscription) Handles() []string    { return s.types }
func (s subscription) Handle(e Event) error { return s.fn(e) }
