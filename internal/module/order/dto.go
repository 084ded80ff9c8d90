package order

import "time"

// CreateOrderInput is the input of Service.CreateOrder.
type CreateOrderInput struct {
	Reference string
	CartID    string
	Total     int64
	Currency  string
}

// CreateCartInput is the input of Service.CreateCart.
type CreateCartInput struct {
	ID       string
	Total    int64
	Currency string
}

// CreateOrderRequest represents a request to create an order.
type CreateOrderRequest struct {
	Reference string `json:"reference" binding:"required"`
	CartID    string `json:"cart_id"`
	Total     int64  `json:"total" binding:"min=0"` // In minor units
	Currency  string `json:"currency" binding:"required,len=3"`
}

// CreateCartRequest represents a request to create a cart.
type CreateCartRequest struct {
	ID       string `json:"id"`
	Total    int64  `json:"total" binding:"min=0"`
	Currency string `json:"currency" binding:"required,len=3"`
}

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	Reference        string      `json:"reference"`
	CartID           string      `json:"cart_id,omitempty"`
	Status           OrderStatus `json:"status"`
	Total            int64       `json:"total"`
	Currency         string      `json:"currency"`
	PaymentReference string      `json:"payment_reference,omitempty"`
	PaymentState     string      `json:"payment_state,omitempty"`
	LastPaymentError string      `json:"last_payment_error,omitempty"`
	PaidAt           *time.Time  `json:"paid_at,omitempty"`
	CanceledAt       *time.Time  `json:"canceled_at,omitempty"`
	RefundedAt       *time.Time  `json:"refunded_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// ToResponse converts an order to its API representation.
func (o *Order) ToResponse() *OrderResponse {
	return &OrderResponse{
		Reference:        o.Reference,
		CartID:           o.CartID,
		Status:           o.Status,
		Total:            o.Total,
		Currency:         o.Currency,
		PaymentReference: o.PaymentReference,
		PaymentState:     o.PaymentState,
		LastPaymentError: o.LastPaymentError,
		PaidAt:           o.PaidAt,
		CanceledAt:       o.CanceledAt,
		RefundedAt:       o.RefundedAt,
		CreatedAt:        o.CreatedAt,
	}
}
