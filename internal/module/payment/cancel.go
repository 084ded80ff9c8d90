package payment

import (
	"context"
	"fmt"

	"github.com/uniedit/payrecon/internal/module/payment/domain"
	"github.com/uniedit/payrecon/internal/shared/events"
	"go.uber.org/zap"
)

// Cancel cancels the order's authorization. Orders paid through a provider order
// container are cancelled as a whole.
func (s *Service) Cancel(ctx context.Context, ref string) (bool, error) {
	a := attempt{operation: events.OperationCancel, code: domain.EventCancellation}

	h, err := s.loadHistory(ctx, ref)
	if err != nil {
		return false, s.reject(ctx, ref, nil, a, err)
	}
	if h.LastState() == domain.StateCancelled {
		return false, s.reject(ctx, ref, h, a, domain.ErrOrderCancelled)
	}
	psp := h.CurrentAuthReference()
	if psp == "" {
		return false, s.reject(ctx, ref, h, a, domain.ErrNoAuthorization)
	}
	leg, _ := findLeg(h, psp)
	if !s.caps.Supports(leg.PaymentMethod(), domain.CapCancel) {
		return false, s.reject(ctx, ref, h, a, fmt.Errorf("%w: %s", domain.ErrCancelNotSupported, leg.PaymentMethod()))
	}

	if c := h.OrderContainer(); c != nil && c.PspReference != "" {
		s.logger.Info("cancelling order container",
			zap.String("order_reference", ref),
			zap.String("order_psp_reference", c.PspReference),
		)
		call := func(ctx context.Context, req ModificationRequest) (*ModificationResult, error) {
			return s.proxy.CancelOrder(ctx, OrderCancelRequest{
				MerchantReference: req.MerchantReference,
				OrderPspReference: c.PspReference,
				OrderData:         c.OrderData,
			})
		}
		target := domain.LegAmount{PspReference: c.PspReference, PaymentMethod: leg.PaymentMethod(), Amount: leg.Amount()}
		return s.modifyAll(ctx, h, a.operation, a.code, []domain.LegAmount{target}, call)
	}

	s.logger.Info("cancelling payment",
		zap.String("order_reference", ref),
		zap.String("psp_reference", psp),
	)
	target := domain.LegAmount{PspReference: psp, PaymentMethod: leg.PaymentMethod(), Amount: leg.Amount()}
	return s.modifyAll(ctx, h, a.operation, a.code, []domain.LegAmount{target}, s.proxy.CancelPayment)
}
