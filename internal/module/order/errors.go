package order

import "errors"

// Module errors.
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderExists         = errors.New("order already exists")
	ErrCartNotFound        = errors.New("cart not found")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrInvalidOrderRequest = errors.New("invalid order request")
)
