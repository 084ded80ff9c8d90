package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/payrecon/internal/module/payment"
	"github.com/uniedit/payrecon/internal/module/payment/domain"
	"go.uber.org/zap"
)

// Service implements the shop's order system the payment module reports to.
type Service struct {
	repo   Repository
	sm     *StateMachine
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a new order service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		sm:     NewStateMachine(),
		now:    time.Now,
		logger: logger.Named("order"),
	}
}

// CreateOrder creates a pending order.
func (s *Service) CreateOrder(ctx context.Context, in *CreateOrderInput) (*Order, error) {
	if in.Reference == "" || in.Currency == "" || in.Total < 0 {
		return nil, ErrInvalidOrderRequest
	}
	now := s.now()
	order := &Order{
		ID:        uuid.New(),
		Reference: in.Reference,
		CartID:    in.CartID,
		Status:    OrderStatusPending,
		Total:     in.Total,
		Currency:  strings.ToUpper(in.Currency),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.logger.Info("order created", zap.String("reference", order.Reference), zap.Int64("total", order.Total))
	return order, nil
}

// CreateCart creates a checkout cart.
func (s *Service) CreateCart(ctx context.Context, in *CreateCartInput) (*Cart, error) {
	if in.Currency == "" || in.Total < 0 {
		return nil, ErrInvalidOrderRequest
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	cart := &Cart{ID: id, Total: in.Total, Currency: strings.ToUpper(in.Currency), CreatedAt: s.now()}
	if err := s.repo.CreateCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return cart, nil
}

// GetOrder returns an order by reference.
func (s *Service) GetOrder(ctx context.Context, reference string) (*Order, error) {
	return s.repo.GetOrder(ctx, reference)
}

// CartExists reports whether a cart exists.
func (s *Service) CartExists(ctx context.Context, cartID string) (bool, error) {
	return s.repo.CartExists(ctx, cartID)
}

// OrderExists reports whether an order exists.
func (s *Service) OrderExists(ctx context.Context, orderReference string) (bool, error) {
	return s.repo.OrderExists(ctx, orderReference)
}

// UpdateOrderStatus moves an order to status. Transitions the order state
// machine rejects are logged and skipped so a late notification cannot
// block the payment ledger.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderReference, status string) error {
	order, err := s.getOrder(ctx, orderReference)
	if err != nil {
		return err
	}

	to := OrderStatus(status)
	changed, err := s.sm.Transition(order, to)
	if err != nil {
		s.logger.Warn("order status update skipped",
			zap.String("reference", orderReference),
			zap.String("from", string(order.Status)),
			zap.String("to", status),
		)
		return nil
	}
	if !changed {
		return nil
	}

	now := s.now()
	order.stamp(to, now)
	order.UpdatedAt = now
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	s.logger.Info("order status updated",
		zap.String("reference", orderReference),
		zap.String("status", status),
	)
	return nil
}

// UpdateOrderPayment attaches a provider payment reference to an order.
func (s *Service) UpdateOrderPayment(ctx context.Context, orderReference, pspReference string) error {
	order, err := s.getOrder(ctx, orderReference)
	if err != nil {
		return err
	}
	if order.PaymentReference == pspReference {
		return nil
	}
	order.PaymentReference = pspReference
	order.UpdatedAt = s.now()
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("update order payment: %w", err)
	}
	return nil
}

// OrderTotal returns the amount due on an order.
func (s *Service) OrderTotal(ctx context.Context, orderReference string) (domain.Amount, error) {
	order, err := s.getOrder(ctx, orderReference)
	if err != nil {
		return domain.Amount{}, err
	}
	return domain.NewAmount(order.Total, order.Currency), nil
}

// RecordPaymentState mirrors the ledger state onto the order.
func (s *Service) RecordPaymentState(ctx context.Context, orderReference, state, lastError string) error {
	order, err := s.getOrder(ctx, orderReference)
	if err != nil {
		return err
	}
	if state != "" {
		order.PaymentState = state
	}
	order.LastPaymentError = lastError
	order.UpdatedAt = s.now()
	return s.repo.UpdateOrder(ctx, order)
}

// getOrder loads an order, reporting a missing one as the payment module expects.
func (s *Service) getOrder(ctx context.Context, reference string) (*Order, error) {
	order, err := s.repo.GetOrder(ctx, reference)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, fmt.Errorf("%w: %w", payment.ErrOrderNotFound, err)
	}
	return order, err
}

// Compile-time check
var _ payment.OrderHostService = (*Service)(nil)
