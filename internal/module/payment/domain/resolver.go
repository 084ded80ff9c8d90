package domain

import "strings"

// Transition is the input of a state resolution.
type Transition struct {
	Previous PaymentState
	Code     EventCode
	Success  bool
	// PspReference of the incoming event.
	PspReference string
	Amount       Amount
	// CurrentAuthReference is the order's authorization reference before the event is applied.
	CurrentAuthReference string
	// Amounts derived from the ledger before the event is applied.
	Captured   Amount
	Capturable Amount
	Refunded   Amount
	Policy     CapturePolicy
}

// Processor maps a transition to a new state.
type Processor interface {
	Process(t Transition) PaymentState
}

// OverrideRule refines the base outcome for a specific situation.
type OverrideRule interface {
	Name() string
	// Apply returns the overriding state and true when the rule matches.
	Apply(t Transition) (PaymentState, bool)
}

// RuleFunc adapts a function to OverrideRule.
type RuleFunc struct {
	name string
	fn   func(Transition) (PaymentState, bool)
}

// NewRule creates a named override rule.
func NewRule(name string, fn func(Transition) (PaymentState, bool)) RuleFunc {
	return RuleFunc{name: name, fn: fn}
}

func (r RuleFunc) Name() string                            { return r.name }
func (r RuleFunc) Apply(t Transition) (PaymentState, bool) { return r.fn(t) }

// Resolver computes the payment state caused by an event.
type Resolver struct {
	base      Processor
	overrides []OverrideRule
}

// NewResolver creates a resolver. Overrides are evaluated in order and the first match wins.
func NewResolver(base Processor, overrides ...OverrideRule) *Resolver {
	if base == nil {
		base = BaseProcessor{}
	}
	return &Resolver{base: base, overrides: overrides}
}

// NewDefaultResolver creates a resolver with the base table and the default overrides.
func NewDefaultResolver() *Resolver {
	return NewResolver(BaseProcessor{}, DefaultOverrides()...)
}

// Resolve returns the new state for t.
func (r *Resolver) Resolve(t Transition) PaymentState {
	if t.Previous == "" {
		t.Previous = StateNew
	}
	for _, rule := range r.overrides {
		if s, ok := rule.Apply(t); ok {
			return s
		}
	}
	return r.base.Process(t)
}

// Overrides returns the configured override rule names in evaluation order.
func (r *Resolver) Overrides() []string {
	names := make([]string, 0, len(r.overrides))
	for _, o := range r.overrides {
		names = append(names, o.Name())
	}
	return names
}

// DefaultOverrides returns the standard override rules in evaluation order.
func DefaultOverrides() []OverrideRule {
	return []OverrideRule{
		NewRule("cancellation_without_capture", func(t Transition) (PaymentState, bool) {
			if t.Code == EventCancellation && t.Success && t.Captured.IsZero() {
				return StateCancelled, true
			}
			return "", false
		}),
		NewRule("partial_refund", func(t Transition) (PaymentState, bool) {
			if t.Code != EventRefund || !t.Success {
				return "", false
			}
			total, err := t.Refunded.Add(t.Amount)
			if err != nil {
				return "", false
			}
			if c, err := total.Cmp(t.Captured); err == nil && c < 0 {
				return StatePartiallyRefunded, true
			}
			return "", false
		}),
		NewRule("capture_after_refund", func(t Transition) (PaymentState, bool) {
			if t.Code == EventCapture && t.Success && t.Previous == StateRefunded {
				return StatePartiallyRefunded, true
			}
			return "", false
		}),
		NewRule("reauthorization", func(t Transition) (PaymentState, bool) {
			if t.Code == EventAuthorisation && t.Success &&
				t.PspReference != t.CurrentAuthReference &&
				(t.Previous == StateFailed || t.Previous == StateCancelled) {
				return StatePaid, true
			}
			return "", false
		}),
		NewRule("failed_new_authorization", func(t Transition) (PaymentState, bool) {
			if t.Code == EventAuthorisation && !t.Success && t.PspReference != t.CurrentAuthReference {
				return StateFailed, true
			}
			return "", false
		}),
	}
}

// BaseProcessor is the generic event-to-state table. Forward-only events never
// move a payment backwards along the happy path.
type BaseProcessor struct{}

// Process implements Processor.
func (BaseProcessor) Process(t Transition) PaymentState {
	prev := t.Previous
	switch t.Code {
	case EventAuthorisation:
		if !t.Success {
			if atLeast(prev, StateAuthorized) {
				return prev
			}
			if prev == StateNew || prev == StatePending {
				return StateFailed
			}
			return prev
		}
		next := StatePaid
		if t.Policy == CaptureManual {
			next = StateAuthorized
		}
		return forward(prev, next)

	case EventPending, EventPaymentRequested, EventOrderOpened:
		return forward(prev, StatePending)

	case EventCapture:
		if !t.Success {
			if prev == StatePaid || prev == StatePartiallyPaid {
				return StateAuthorized
			}
			return prev
		}
		if rest, err := t.Capturable.Sub(t.Amount); err == nil && rest.IsPositive() {
			return StatePartiallyPaid
		}
		return StatePaid

	case EventCaptureFailed:
		if t.Success && (prev == StatePaid || prev == StatePartiallyPaid) {
			return StateAuthorized
		}
		return prev

	case EventCancellation:
		if !t.Success {
			return prev
		}
		switch prev {
		case StateNew, StatePending, StateAuthorized, StateFailed:
			return StateCancelled
		}
		return prev

	case EventCancelOrRefund:
		if !t.Success {
			return prev
		}
		if t.Captured.IsPositive() {
			return StateRefunded
		}
		return StateCancelled

	case EventRefund:
		if t.Success {
			return StateRefunded
		}
		return prev

	case EventRefundFailed, EventRefundedReversed:
		if t.Success && (prev == StateRefunded || prev == StatePartiallyRefunded) {
			return StatePaid
		}
		return prev

	case EventChargeback:
		if t.Success {
			return StateChargeback
		}
		return prev

	case EventChargebackReversed:
		if t.Success && prev == StateChargeback {
			return StatePaid
		}
		return prev

	case EventOrderClosed:
		if t.Success {
			return StatePaid
		}
		if prev == StateNew || prev == StatePending {
			return StateCancelled
		}
		return prev

	case EventOfferClosed:
		if t.Success && (prev == StateNew || prev == StatePending) {
			return StateCancelled
		}
		return prev

	case EventExpire:
		if t.Success && t.Captured.IsZero() {
			return StateExpired
		}
		return prev
	}
	return prev
}

func atLeast(s, than PaymentState) bool {
	a, okA := s.Rank()
	b, okB := than.Rank()
	return okA && okB && a >= b
}

// forward moves to next unless prev is already further along or off the happy path.
func forward(prev, next PaymentState) PaymentState {
	if _, ok := prev.Rank(); !ok {
		return prev
	}
	if atLeast(prev, next) {
		return prev
	}
	return next
}

// IsTestNotification reports whether a notification is a provider connectivity test.
func IsTestNotification(pspReference, merchantReference string) bool {
	return strings.HasPrefix(pspReference, "test_") ||
		strings.HasPrefix(strings.ToLower(merchantReference), "testmerchantref")
}

// ShouldDrop reports whether an incoming event duplicates one already applied to h.
func ShouldDrop(h *TransactionHistory, key EventKey, originalReference string) bool {
	if h == nil {
		return false
	}
	return h.Items().Contains(key) && originalReference == h.CurrentAuthReference()
}
