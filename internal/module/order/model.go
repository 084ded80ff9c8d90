package order

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the status of a shop order.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRefunded OrderStatus = "refunded"
	OrderStatusFailed   OrderStatus = "failed"
)

// Order is the shop order a payment belongs to.
type Order struct {
	ID        uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	Reference string      `json:"reference" gorm:"uniqueIndex;not null"`
	CartID    string      `json:"cart_id,omitempty" gorm:"index"`
	Status    OrderStatus `json:"status" gorm:"not null;default:pending"`
	Total     int64       `json:"total"` // In minor units
	Currency  string      `json:"currency" gorm:"not null"`

	// PaymentReference is the provider reference of the payment the order is attached to.
	PaymentReference string `json:"payment_reference,omitempty"`
	// PaymentState mirrors the derived state of the payment ledger.
	PaymentState     string `json:"payment_state,omitempty"`
	LastPaymentError string `json:"last_payment_error,omitempty"`

	PaidAt     *time.Time `json:"paid_at,omitempty"`
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name.
func (Order) TableName() string {
	return "shop_orders"
}

// IsPending returns true if the order is pending payment.
func (o *Order) IsPending() bool {
	return o.Status == OrderStatusPending
}

// IsPaid returns true if the order has been paid.
func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusPaid
}

// stamp records the time of entering status.
func (o *Order) stamp(status OrderStatus, at time.Time) {
	switch status {
	case OrderStatusPaid:
		o.PaidAt = &at
		o.CanceledAt = nil
	case OrderStatusCanceled:
		o.CanceledAt = &at
	case OrderStatusRefunded:
		o.RefundedAt = &at
	}
}

// Cart is a checkout basket that may not have become an order yet.
type Cart struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Total     int64     `json:"total"`
	Currency  string    `json:"currency" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (Cart) TableName() string {
	return "shop_carts"
}
