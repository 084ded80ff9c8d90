package domain

import "errors"

// Error kinds. Match with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrPrecondition = errors.New("precondition failed")
)

// Error is a typed domain error carrying a localizable message key.
type Error struct {
	Kind    error
	Key     string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the error kind.
func (e *Error) Unwrap() error {
	return e.Kind
}

// NewValidationError creates a validation error.
func NewValidationError(key, message string) *Error {
	return &Error{Kind: ErrValidation, Key: key, Message: message}
}

// NewPreconditionError creates a precondition error.
func NewPreconditionError(key, message string) *Error {
	return &Error{Kind: ErrPrecondition, Key: key, Message: message}
}

// MessageKey returns the localizable message key of err, or "" if it has none.
func MessageKey(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Key
	}
	return ""
}

// Domain errors.
var (
	ErrCurrencyMismatch         = NewValidationError("payment.error.currency_mismatch", "currency mismatch")
	ErrInvalidOrderReference    = NewValidationError("payment.error.invalid_order_reference", "invalid order reference")
	ErrOrderReferenceMismatch   = NewValidationError("payment.error.order_reference_mismatch", "history item belongs to another order")
	ErrInvalidAmount            = NewValidationError("payment.error.invalid_amount", "amount must be positive")
	ErrUnknownCapturePolicy     = NewValidationError("payment.error.unknown_capture_policy", "unknown capture policy")
	ErrUnknownAuthorizationType = NewValidationError("payment.error.unknown_authorization_type", "unknown authorization type")
	ErrInvalidNotification      = NewValidationError("payment.error.invalid_notification", "malformed notification")
)

// Precondition errors.
var (
	ErrHistoryNotFound        = NewPreconditionError("payment.error.history_not_found", "no transaction history for order")
	ErrNoAuthorization        = NewPreconditionError("payment.error.no_authorization", "order has no successful authorization")
	ErrOrderFullyCaptured     = NewPreconditionError("payment.error.fully_captured", "order is fully captured")
	ErrExceedsCapturable      = NewPreconditionError("payment.error.exceeds_capturable", "amount exceeds capturable amount")
	ErrNothingToRefund        = NewPreconditionError("payment.error.nothing_to_refund", "order has no refundable amount")
	ErrRefundNotCoverable     = NewPreconditionError("payment.error.refund_not_coverable", "requested refund cannot be covered by refundable legs")
	ErrRefundNotSupported     = NewPreconditionError("payment.error.refund_not_supported", "payment method does not support refunds")
	ErrNotPreAuthorization    = NewPreconditionError("payment.error.not_pre_authorization", "authorization is not a pre-authorization")
	ErrOrderCancelled         = NewPreconditionError("payment.error.order_cancelled", "order is cancelled")
	ErrActivePaymentLink      = NewPreconditionError("payment.error.active_payment_link", "order has an active payment link")
	ErrAdjustmentUnchanged    = NewPreconditionError("payment.error.adjustment_unchanged", "adjustment amount equals the authorized amount")
	ErrAdjustmentPending      = NewPreconditionError("payment.error.adjustment_pending", "an authorization adjustment is already pending")
	ErrCaptureNotSupported    = NewPreconditionError("payment.error.capture_not_supported", "payment method does not support this capture")
	ErrCancelNotSupported     = NewPreconditionError("payment.error.cancel_not_supported", "payment method does not support cancellation")
	ErrAdjustmentNotSupported = NewPreconditionError("payment.error.adjustment_not_supported", "payment method does not support authorization adjustment")
)
