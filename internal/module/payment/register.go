package payment

import (
	"context"
	"fmt"

	"github.com/uniedit/payrecon/internal/module/payment/domain"
	"go.uber.org/zap"
)

// PreRegisterInput describes a payment about to start on the provider's side.
type PreRegisterInput struct {
	OrderReference    string
	CartID            string
	Currency          string
	AuthorizationType domain.AuthorizationType
	OrderContainer    *domain.OrderContainer
}

// PreRegister creates the transaction history of an order before a redirect
// payment starts, so that the first notification finds the authorization type
// and container. Registering an existing order updates it.
func (s *Service) PreRegister(ctx context.Context, in PreRegisterInput) (*domain.TransactionHistory, error) {
	if in.CartID != "" {
		ok, err := s.host.CartExists(ctx, in.CartID)
		if err != nil {
			return nil, fmt.Errorf("check cart: %w", err)
		}
		if !ok {
			return nil, ErrCartNotFound
		}
	}

	h, err := s.loadOrCreateHistory(ctx, in.OrderReference, in.Currency)
	if err != nil {
		return nil, err
	}
	if in.AuthorizationType != domain.AuthorizationUnset {
		h.SetAuthorizationType(in.AuthorizationType)
	}
	if in.OrderContainer != nil {
		h.SetOrderContainer(in.OrderContainer)
	}
	if err := s.saveHistory(ctx, h); err != nil {
		return nil, err
	}

	s.logger.Info("pre-registered payment",
		zap.String("order_reference", in.OrderReference),
		zap.String("authorization_type", string(h.AuthorizationType())),
	)
	return h, nil
}

// AttachPaymentLink records a pay-by-link URL on the order. The link is dropped
// by the next successful authorization under a new psp reference.
func (s *Service) AttachPaymentLink(ctx context.Context, ref string, link domain.PaymentLink) error {
	h, err := s.loadHistory(ctx, ref)
	if err != nil {
		return err
	}
	h.SetPaymentLink(&link)
	if err := s.saveHistory(ctx, h); err != nil {
		return err
	}
	s.logger.Info("attached payment link",
		zap.String("order_reference", ref),
		zap.String("link_id", link.ID),
	)
	return nil
}
