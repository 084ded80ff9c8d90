package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/payrecon/internal/module/payment/domain"
)

// Notification is one provider webhook item.
type Notification struct {
	PspReference      string           `json:"psp_reference"`
	MerchantReference string           `json:"merchant_reference"`
	EventCode         domain.EventCode `json:"event_code"`
	Success           bool             `json:"success"`
	Amount            domain.Amount    `json:"amount"`
	PaymentMethod     string           `json:"payment_method,omitempty"`
	OriginalReference string           `json:"original_reference,omitempty"`
	EventDate         string           `json:"event_date,omitempty"`
	Reason            string           `json:"reason,omitempty"`
	Live              bool             `json:"live"`
	RiskScore         int              `json:"risk_score,omitempty"`
}

// Key returns the ledger identity of the notification.
func (n *Notification) Key() domain.EventKey {
	return domain.EventKey{PspReference: n.PspReference, EventCode: n.EventCode, Success: n.Success}
}

// AttemptKey identifies deliveries of this notification.
func (n *Notification) AttemptKey() string {
	return fmt.Sprintf("%s|%s|%s|%t", n.MerchantReference, n.PspReference, n.EventCode, n.Success)
}

// ToPayload converts the notification to a task payload.
func (n *Notification) ToPayload() map[string]any {
	return map[string]any{
		"psp_reference":      n.PspReference,
		"merchant_reference": n.MerchantReference,
		"event_code":         string(n.EventCode),
		"success":            n.Success,
		"amount_value":       n.Amount.Value,
		"amount_currency":    n.Amount.Currency,
		"payment_method":     n.PaymentMethod,
		"original_reference": n.OriginalReference,
		"event_date":         n.EventDate,
		"reason":             n.Reason,
		"live":               n.Live,
		"risk_score":         n.RiskScore,
	}
}

// NotificationFromPayload restores a notification from a task payload.
// Numbers may come back as float64 after a JSON round trip.
func NotificationFromPayload(p map[string]any) (*Notification, error) {
	str := func(k string) string {
		s, _ := p[k].(string)
		return s
	}
	boolean := func(k string) bool {
		b, _ := p[k].(bool)
		return b
	}
	integer := func(k string) int64 {
		switch v := p[k].(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
		return 0
	}

	n := &Notification{
		PspReference:      str("psp_reference"),
		MerchantReference: str("merchant_reference"),
		EventCode:         domain.EventCode(str("event_code")),
		Success:           boolean("success"),
		Amount:            domain.NewAmount(integer("amount_value"), str("amount_currency")),
		PaymentMethod:     str("payment_method"),
		OriginalReference: str("original_reference"),
		EventDate:         str("event_date"),
		Reason:            str("reason"),
		Live:              boolean("live"),
		RiskScore:         int(integer("risk_score")),
	}
	if n.MerchantReference == "" || n.EventCode == "" {
		return nil, ErrMalformedTaskPayload
	}
	return n, nil
}

// DeliveryAttempt is the mutable bookkeeping of one notification identity.
type DeliveryAttempt struct {
	Key                 string    `json:"key"`
	RetryCount          int       `json:"retry_count"`
	ProcessingStartedAt time.Time `json:"processing_started_at"`
	LogID               string    `json:"log_id"`
}

// InFlight reports whether an attempt started less than window ago.
func (a *DeliveryAttempt) InFlight(now time.Time, window time.Duration) bool {
	if a.ProcessingStartedAt.IsZero() {
		return false
	}
	return now.Sub(a.ProcessingStartedAt) < window
}

// LogStatus is the status of a notification log entry.
type LogStatus string

const (
	LogStatusReceived   LogStatus = "received"
	LogStatusQueued     LogStatus = "queued"
	LogStatusProcessing LogStatus = "processing"
	LogStatusCompleted  LogStatus = "completed"
	LogStatusFailed     LogStatus = "failed"
	LogStatusAborted    LogStatus = "aborted"
	// LogStatusMerged marks an entry whose task was absorbed by a pending one.
	LogStatusMerged LogStatus = "merged"
)

// IsDone reports whether nothing remains to be done for the entry.
func (s LogStatus) IsDone() bool {
	return s == LogStatusCompleted || s == LogStatusAborted || s == LogStatusMerged
}

// NotificationLog is the correlated log entry of a notification's processing.
type NotificationLog struct {
	ID             string         `gorm:"type:uuid;primaryKey"`
	OrderReference string         `gorm:"not null;index"`
	PspReference   string         `gorm:"not null;index"`
	EventCode      string         `gorm:"not null"`
	Success        bool           `gorm:"not null"`
	Status         LogStatus      `gorm:"not null;index"`
	Message        string         `gorm:"type:text"`
	Payload        map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the table name for NotificationLog.
func (NotificationLog) TableName() string {
	return "payment_notification_logs"
}

// NewNotificationLog creates a log entry for n.
func NewNotificationLog(n *Notification, status LogStatus) *NotificationLog {
	now := time.Now()
	return &NotificationLog{
		ID:             uuid.NewString(),
		OrderReference: n.MerchantReference,
		PspReference:   n.PspReference,
		EventCode:      string(n.EventCode),
		Success:        n.Success,
		Status:         status,
		Payload:        n.ToPayload(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Config holds the module settings.
type Config struct {
	CapturePolicy                        domain.CapturePolicy
	CaptureDelay                         time.Duration
	IgnoreCancellationForPartialPayments bool
	AsyncDelivery                        bool
	MaxDeliveryRetries                   int
	InFlightWindow                       time.Duration
	OrderPollAttempts                    int
	OrderPollDelay                       time.Duration
	// OrderStatuses maps payment states to host order statuses.
	OrderStatuses map[domain.PaymentState]string
}

// DefaultConfig returns the default module settings.
func DefaultConfig() *Config {
	return &Config{
		CapturePolicy:      domain.CaptureImmediate,
		MaxDeliveryRetries: 5,
		InFlightWindow:     10 * time.Second,
		OrderPollAttempts:  5,
		OrderPollDelay:     2 * time.Second,
		OrderStatuses:      DefaultOrderStatuses(),
	}
}
