package domain

import (
	"strings"
	"time"
)

// EventCode is the provider event type carried by a notification.
type EventCode string

const (
	EventAuthorisation           EventCode = "AUTHORISATION"
	EventAuthorisationAdjustment EventCode = "AUTHORISATION_ADJUSTMENT"
	EventAdjustmentRequested     EventCode = "AUTHORISATION_ADJUSTMENT_REQUEST"
	EventCapture                 EventCode = "CAPTURE"
	EventCaptureFailed           EventCode = "CAPTURE_FAILED"
	EventCancellation            EventCode = "CANCELLATION"
	EventCancelOrRefund          EventCode = "CANCEL_OR_REFUND"
	EventRefund                  EventCode = "REFUND"
	EventRefundFailed            EventCode = "REFUND_FAILED"
	EventRefundedReversed        EventCode = "REFUNDED_REVERSED"
	EventChargeback              EventCode = "CHARGEBACK"
	EventChargebackReversed      EventCode = "CHARGEBACK_REVERSED"
	EventPending                 EventCode = "PENDING"
	EventOrderOpened             EventCode = "ORDER_OPENED"
	EventOrderClosed             EventCode = "ORDER_CLOSED"
	EventOfferClosed             EventCode = "OFFER_CLOSED"
	EventExpire                  EventCode = "EXPIRE"
	EventPaymentRequested        EventCode = "PAYMENT_REQUESTED"
)

// alwaysAppend lists event codes that intentionally recur and bypass deduplication.
var alwaysAppend = map[EventCode]bool{
	EventOrderOpened:      true,
	EventPaymentRequested: true,
}

// IsAlwaysAppend reports whether code bypasses ledger deduplication.
func IsAlwaysAppend(code EventCode) bool {
	return alwaysAppend[code]
}

// CapturePolicy governs when an authorization is treated as captured.
type CapturePolicy string

const (
	CaptureImmediate CapturePolicy = "immediate"
	CaptureManual    CapturePolicy = "manual"
	CaptureDelayed   CapturePolicy = "delayed"
	CaptureUnknown   CapturePolicy = "unknown"
)

// ParseCapturePolicy parses a configured capture policy.
func ParseCapturePolicy(s string) (CapturePolicy, error) {
	switch p := CapturePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case CaptureImmediate, CaptureManual, CaptureDelayed, CaptureUnknown:
		return p, nil
	case "":
		return CaptureUnknown, nil
	}
	return "", ErrUnknownCapturePolicy
}

// AuthorizationType distinguishes adjustable pre-authorizations from final ones.
type AuthorizationType string

const (
	AuthorizationUnset AuthorizationType = ""
	AuthorizationPre   AuthorizationType = "pre"
	AuthorizationFinal AuthorizationType = "final"
)

// ParseAuthorizationType parses an authorization type.
func ParseAuthorizationType(s string) (AuthorizationType, error) {
	switch t := AuthorizationType(strings.ToLower(strings.TrimSpace(s))); t {
	case AuthorizationUnset, AuthorizationPre, AuthorizationFinal:
		return t, nil
	}
	return "", ErrUnknownAuthorizationType
}

// PaymentLink is a hosted payment page link attached to an order.
type PaymentLink struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

// IsActive reports whether the link has not yet expired at now.
// A link whose expiry cannot be parsed is treated as active.
func (l *PaymentLink) IsActive(now time.Time, parse func(string) (time.Time, error)) bool {
	if l == nil {
		return false
	}
	if l.ExpiresAt == "" {
		return true
	}
	exp, err := parse(l.ExpiresAt)
	if err != nil {
		return true
	}
	return now.Before(exp)
}

// OrderContainer holds the provider-side container of a multi-leg order.
type OrderContainer struct {
	PspReference    string `json:"psp_reference"`
	OrderData       string `json:"order_data"`
	RemainingAmount Amount `json:"remaining_amount"`
}
