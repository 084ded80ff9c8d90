package order

import "fmt"

// StateMachine validates and executes order state transitions.
type StateMachine struct {
	transitions map[OrderStatus][]OrderStatus
}

// NewStateMachine creates a new order state machine. Canceled and failed
// orders may still become paid through a new authorization, and a refunded
// order is paid again when the refund is reversed.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[OrderStatus][]OrderStatus{
			OrderStatusPending:  {OrderStatusPaid, OrderStatusCanceled, OrderStatusFailed},
			OrderStatusPaid:     {OrderStatusRefunded, OrderStatusCanceled},
			OrderStatusCanceled: {OrderStatusPaid},
			OrderStatusRefunded: {OrderStatusPaid},
			OrderStatusFailed:   {OrderStatusPending, OrderStatusPaid, OrderStatusCanceled},
		},
	}
}

// CanTransition checks if a transition from `from` to `to` is valid.
// Staying in the same status is always allowed.
func (sm *StateMachine) CanTransition(from, to OrderStatus) bool {
	if from == to {
		_, ok := sm.transitions[from]
		return ok
	}
	allowed, ok := sm.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition attempts to transition an order to a new state. It reports
// whether the status changed.
func (sm *StateMachine) Transition(order *Order, to OrderStatus) (bool, error) {
	if !sm.CanTransition(order.Status, to) {
		return false, fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, order.Status, to)
	}
	if order.Status == to {
		return false, nil
	}
	order.Status = to
	return true, nil
}

// GetAllowedTransitions returns all allowed transitions from the current state.
func (sm *StateMachine) GetAllowedTransitions(from OrderStatus) []OrderStatus {
	allowed, ok := sm.transitions[from]
	if !ok {
		return []OrderStatus{}
	}
	result := make([]OrderStatus, len(allowed))
	copy(result, allowed)
	return result
}
