package payment

import (
	"context"
	"time"

	"github.com/uniedit/payrecon/internal/infra/events"
	"github.com/uniedit/payrecon/internal/module/payment/domain"
)

// ModificationRequest asks the provider to modify one payment.
type ModificationRequest struct {
	MerchantReference string
	// PspReference of the payment being modified.
	PspReference string
	Amount       domain.Amount
	// Reference is our own idempotency reference for the modification.
	Reference string
}

// ModificationResult is the provider's answer to a modification request.
type ModificationResult struct {
	// Accepted is true when the provider took the request for processing.
	Accepted bool
	// PspReference of the modification itself. When empty or equal to the
	// modified payment, the request's own Reference is recorded instead.
	PspReference string
	Status       string
}

// OrderCancelRequest asks the provider to cancel a multi-leg order container.
type OrderCancelRequest struct {
	MerchantReference string
	OrderPspReference string
	OrderData         string
}

// ProviderProxy sends modifications to the payment provider.
// Implementations return a *ProviderError for network or provider failures.
type ProviderProxy interface {
	AdjustPayment(ctx context.Context, req ModificationRequest) (*ModificationResult, error)
	CapturePayment(ctx context.Context, req ModificationRequest) (*ModificationResult, error)
	RefundPayment(ctx context.Context, req ModificationRequest) (*ModificationResult, error)
	CancelPayment(ctx context.Context, req ModificationRequest) (*ModificationResult, error)
	CancelOrder(ctx context.Context, req OrderCancelRequest) (*ModificationResult, error)
}

// Repository persists transaction histories. Read-modify-write of one order
// reference is expected to be serialized by the implementation.
type Repository interface {
	// GetTransactionHistory returns domain.ErrHistoryNotFound when the order has no history.
	GetTransactionHistory(ctx context.Context, orderReference string) (*domain.TransactionHistory, error)
	SaveTransactionHistory(ctx context.Context, history *domain.TransactionHistory) error
}

// EventPublisher delivers shop-facing payment events.
type EventPublisher interface {
	Publish(event events.Event)
}

// TaskQueue is the durable queue behind the asynchronous delivery path.
type TaskQueue interface {
	// Enqueue reports false when a pending task with the same key absorbed the request.
	Enqueue(ctx context.Context, taskType, key string, payload map[string]any) (bool, error)
	// Wake nudges the worker pool to look for due work.
	Wake()
}

// WebhookVerifier authenticates a notification batch from its raw body and
// signature header.
type WebhookVerifier interface {
	VerifyWebhookSignature(payload []byte, signature string) error
}

// OrderHostService is the shop's order system.
type OrderHostService interface {
	CartExists(ctx context.Context, cartID string) (bool, error)
	OrderExists(ctx context.Context, orderReference string) (bool, error)
	UpdateOrderStatus(ctx context.Context, orderReference, status string) error
	UpdateOrderPayment(ctx context.Context, orderReference, pspReference string) error
	OrderTotal(ctx context.Context, orderReference string) (domain.Amount, error)
}

// Clock provides time to the module.
type Clock interface {
	Now() time.Time
	ParseDate(value string) (time.Time, error)
	Sleep(ctx context.Context, d time.Duration) error
}

// DeliveryAttemptStore keeps the mutable bookkeeping of notification deliveries.
type DeliveryAttemptStore interface {
	// Get returns a zero attempt for the key when none is stored.
	Get(ctx context.Context, key string) (*DeliveryAttempt, error)
	Save(ctx context.Context, attempt *DeliveryAttempt) error
}

// NotificationLogRepository persists the correlated log of notification processing.
type NotificationLogRepository interface {
	Create(ctx context.Context, log *NotificationLog) error
	Get(ctx context.Context, id string) (*NotificationLog, error)
	UpdateStatus(ctx context.Context, id string, status LogStatus, message string) error
}
