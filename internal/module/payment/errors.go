package payment

import (
	"errors"
	"fmt"

	"github.com/uniedit/payrecon/internal/module/payment/domain"
)

// Error kinds on top of domain.ErrValidation and domain.ErrPrecondition.
var (
	ErrTransientProvider = errors.New("transient provider error")
	ErrRetryableDelivery = errors.New("retryable delivery")

	// ErrModificationNotRecorded means the provider answered with a
	// modification reference the ledger already holds.
	ErrModificationNotRecorded = errors.New("modification reference already recorded")
)

// Module errors.
var (
	ErrRetryLater = &domain.Error{
		Kind:    ErrRetryableDelivery,
		Key:     "payment.error.retry_later",
		Message: "notification is already being processed, retry later",
	}
	ErrOrderNotFound           = errors.New("host order not found")
	ErrCartNotFound            = errors.New("host cart not found")
	ErrNotificationLogNotFound = errors.New("notification log not found")
	ErrMalformedTaskPayload    = errors.New("malformed task payload")
	ErrUnsupportedOperation    = errors.New("operation not supported by provider")
)

// ProviderError wraps a failed provider call.
type ProviderError struct {
	Operation string
	Err       error
}

// NewProviderError creates a ProviderError.
func NewProviderError(operation string, err error) *ProviderError {
	return &ProviderError{Operation: operation, Err: err}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Operation, e.Err)
}

// Unwrap exposes both the transient kind and the cause.
func (e *ProviderError) Unwrap() []error {
	return []error{ErrTransientProvider, e.Err}
}

// IsRetryable reports whether err asks the caller to redeliver later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryableDelivery) || errors.Is(err, ErrTransientProvider)
}
