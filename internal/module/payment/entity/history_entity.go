package entity

import (
	"time"

	"github.com/uniedit/payrecon/internal/module/payment/domain"
)

// TransactionHistoryEntity is the GORM entity for TransactionHistory.
type TransactionHistoryEntity struct {
	OrderReference       string                 `gorm:"primaryKey;size:80"`
	CapturePolicy        string                 `gorm:"not null;default:unknown"`
	CaptureDelay         time.Duration          `gorm:"not null;default:0"`
	Currency             string                 `gorm:"size:3"`
	AuthorizationType    string                 `gorm:"size:16"`
	PaymentLink          *domain.PaymentLink    `gorm:"type:jsonb;serializer:json"`
	OrderContainer       *domain.OrderContainer `gorm:"type:jsonb;serializer:json"`
	AuthReferences       []string               `gorm:"type:jsonb;serializer:json"`
	CurrentAuthReference string                 `gorm:"index"`
	PaymentMethod        string
	Live                 bool
	RiskScore            int
	Items                []domain.HistoryItemData `gorm:"type:jsonb;serializer:json;not null"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TableName returns the database table name.
func (TransactionHistoryEntity) TableName() string {
	return "payment_transaction_histories"
}

// ToDomain converts entity to domain TransactionHistory.
func (e *TransactionHistoryEntity) ToDomain() *domain.TransactionHistory {
	return domain.RestoreTransactionHistory(domain.TransactionHistorySnapshot{
		OrderReference:       e.OrderReference,
		CapturePolicy:        domain.CapturePolicy(e.CapturePolicy),
		CaptureDelay:         e.CaptureDelay,
		Currency:             e.Currency,
		AuthorizationType:    domain.AuthorizationType(e.AuthorizationType),
		PaymentLink:          e.PaymentLink,
		OrderContainer:       e.OrderContainer,
		AuthReferences:       e.AuthReferences,
		CurrentAuthReference: e.CurrentAuthReference,
		PaymentMethod:        e.PaymentMethod,
		Live:                 e.Live,
		RiskScore:            e.RiskScore,
		Items:                e.Items,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	})
}

// FromDomainTransactionHistory converts domain TransactionHistory to entity.
func FromDomainTransactionHistory(h *domain.TransactionHistory) *TransactionHistoryEntity {
	s := h.Snapshot()
	return &TransactionHistoryEntity{
		OrderReference:       s.OrderReference,
		CapturePolicy:        string(s.CapturePolicy),
		CaptureDelay:         s.CaptureDelay,
		Currency:             s.Currency,
		AuthorizationType:    string(s.AuthorizationType),
		PaymentLink:          s.PaymentLink,
		OrderContainer:       s.OrderContainer,
		AuthReferences:       s.AuthReferences,
		CurrentAuthReference: s.CurrentAuthReference,
		PaymentMethod:        s.PaymentMethod,
		Live:                 s.Live,
		RiskScore:            s.RiskScore,
		Items:                s.Items,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}
