package events

import (
	"github.com/google/uuid"
	"github.com/uniedit/payrecon/internal/infra/events"
)

// Payment event type constants.
const (
	NotificationProcessedType = "PaymentNotificationProcessed"
	OperationSucceededType    = "PaymentOperationSucceeded"
	OperationFailedType       = "PaymentOperationFailed"
)

// Operation names carried by operation events.
const (
	OperationCapture    = "capture"
	OperationRefund     = "refund"
	OperationCancel     = "cancel"
	OperationAdjustment = "authorization_adjustment"
)

// AggregateTypeOrder is the aggregate type of every payment event.
const AggregateTypeOrder = "Order"

// orderNamespace derives stable aggregate ids from order references.
var orderNamespace = uuid.MustParse("6f0d2c1e-5a43-4c8e-9a57-1d7c3f0b8e21")

// OrderAggregateID returns the aggregate id of an order reference.
func OrderAggregateID(orderReference string) uuid.UUID {
	return uuid.NewSHA1(orderNamespace, []byte(orderReference))
}

// NotificationProcessedEvent is emitted after a provider notification changed the ledger.
// This is defined in the events package to avoid cyclic imports.
type NotificationProcessedEvent struct {
	events.BaseEvent

	OrderReference string `json:"order_reference"`
	PspReference   string `json:"psp_reference"`
	EventCode      string `json:"event_code"`
	Success        bool   `json:"success"`

	// PreviousState and State are the derived payment states around the event.
	PreviousState string `json:"previous_state"`
	State         string `json:"state"`

	// Amount is in the smallest currency unit.
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// NewNotificationProcessedEvent creates a new NotificationProcessedEvent.
func NewNotificationProcessedEvent(
	orderReference, pspReference, eventCode string,
	success bool,
	previousState, state string,
	amount int64,
	currency string,
) *NotificationProcessedEvent {
	return &NotificationProcessedEvent{
		BaseEvent:      events.NewBaseEvent(NotificationProcessedType, OrderAggregateID(orderReference), AggregateTypeOrder),
		OrderReference: orderReference,
		PspReference:   pspReference,
		EventCode:      eventCode,
		Success:        success,
		PreviousState:  previousState,
		State:          state,
		Amount:         amount,
		Currency:       currency,
	}
}

// OperationSucceededEvent is emitted when the provider accepted a modification.
type OperationSucceededEvent struct {
	events.BaseEvent

	OrderReference string `json:"order_reference"`
	Operation      string `json:"operation"`
	PspReference   string `json:"psp_reference"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// NewOperationSucceededEvent creates a new OperationSucceededEvent.
func NewOperationSucceededEvent(orderReference, operation, pspReference string, amount int64, currency string) *OperationSucceededEvent {
	return &OperationSucceededEvent{
		BaseEvent:      events.NewBaseEvent(OperationSucceededType, OrderAggregateID(orderReference), AggregateTypeOrder),
		OrderReference: orderReference,
		Operation:      operation,
		PspReference:   pspReference,
		Amount:         amount,
		Currency:       currency,
	}
}

// OperationFailedEvent is emitted when a modification was rejected or could not be sent.
type OperationFailedEvent struct {
	events.BaseEvent

	OrderReference string `json:"order_reference"`
	Operation      string `json:"operation"`
	PspReference   string `json:"psp_reference,omitempty"`

	// MessageKey is the localizable key of the failure, if any.
	MessageKey string `json:"message_key,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// NewOperationFailedEvent creates a new OperationFailedEvent.
func NewOperationFailedEvent(orderReference, operation, pspReference, messageKey, reason string) *OperationFailedEvent {
	return &OperationFailedEvent{
		BaseEvent:      events.NewBaseEvent(OperationFailedType, OrderAggregateID(orderReference), AggregateTypeOrder),
		OrderReference: orderReference,
		Operation:      operation,
		PspReference:   pspReference,
		MessageKey:     messageKey,
		Reason:         reason,
	}
}

// PaymentEventTypes lists every payment event type.
func PaymentEventTypes() []string {
	return []string{NotificationProcessedType, OperationSucceededType, OperationFailedType}
}
