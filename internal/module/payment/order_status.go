package payment

import "github.com/uniedit/payrecon/internal/module/payment/domain"

// Host order statuses used by the default mapping.
const (
	OrderStatusPending  = "pending"
	OrderStatusPaid     = "paid"
	OrderStatusCanceled = "canceled"
	OrderStatusRefunded = "refunded"
	OrderStatusFailed   = "failed"
)

// DefaultOrderStatuses returns the default payment state to host order status mapping.
// States without an entry leave the host order untouched.
func DefaultOrderStatuses() map[domain.PaymentState]string {
	return map[domain.PaymentState]string{
		domain.StatePending:           OrderStatusPending,
		domain.StateAuthorized:        OrderStatusPending,
		domain.StatePartiallyPaid:     OrderStatusPaid,
		domain.StatePaid:              OrderStatusPaid,
		domain.StatePartiallyRefunded: OrderStatusPaid,
		domain.StateRefunded:          OrderStatusRefunded,
		domain.StateCancelled:         OrderStatusCanceled,
		domain.StateFailed:            OrderStatusFailed,
		domain.StateExpired:           OrderStatusCanceled,
		domain.StateChargeback:        OrderStatusRefunded,
	}
}

// OrderStatusMapper maps payment states to host order statuses.
type OrderStatusMapper struct {
	statuses map[domain.PaymentState]string
}

// NewOrderStatusMapper creates a mapper. A nil map selects the defaults.
func NewOrderStatusMapper(statuses map[domain.PaymentState]string) *OrderStatusMapper {
	if statuses == nil {
		statuses = DefaultOrderStatuses()
	}
	return &OrderStatusMapper{statuses: statuses}
}

// StatusFor returns the host status for state and whether one is mapped.
func (m *OrderStatusMapper) StatusFor(state domain.PaymentState) (string, bool) {
	s, ok := m.statuses[state]
	return s, ok && s != ""
}
