package domain

// PaymentState is the payment state derived from the ledger.
type PaymentState string

const (
	StateNew               PaymentState = "new"
	StatePending           PaymentState = "pending"
	StateAuthorized        PaymentState = "authorized"
	StatePartiallyPaid     PaymentState = "partially_paid"
	StatePaid              PaymentState = "paid"
	StatePartiallyRefunded PaymentState = "partially_refunded"
	StateRefunded          PaymentState = "refunded"
	StateCancelled         PaymentState = "cancelled"
	StateFailed            PaymentState = "failed"
	StateExpired           PaymentState = "expired"
	StateChargeback        PaymentState = "chargeback"
)

// progress orders the states of a healthy payment. States absent from the map
// are off the happy path.
var progress = map[PaymentState]int{
	StateNew:               0,
	StatePending:           1,
	StateAuthorized:        2,
	StatePartiallyPaid:     3,
	StatePaid:              4,
	StatePartiallyRefunded: 5,
	StateRefunded:          6,
}

// Rank returns the position of s on the happy path and whether it has one.
func (s PaymentState) Rank() (int, bool) {
	r, ok := progress[s]
	return r, ok
}

// IsFinal reports whether no further business event is expected.
func (s PaymentState) IsFinal() bool {
	switch s {
	case StateRefunded, StateCancelled, StateExpired:
		return true
	}
	return false
}

// IsValid reports whether s is a known state.
func (s PaymentState) IsValid() bool {
	if _, ok := progress[s]; ok {
		return true
	}
	switch s {
	case StateCancelled, StateFailed, StateExpired, StateChargeback:
		return true
	}
	return false
}
