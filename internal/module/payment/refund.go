package payment

import (
	"context"
	"fmt"

	"github.com/uniedit/payrecon/internal/module/payment/domain"
	"github.com/uniedit/payrecon/internal/shared/events"
	"go.uber.org/zap"
)

// Refund refunds amount on the order. The refund is planned over every candidate
// leg first and nothing is sent unless the whole amount can be covered by legs
// whose payment method supports the share assigned to them.
func (s *Service) Refund(ctx context.Context, ref string, amount domain.Amount, psp string) (bool, error) {
	a := attempt{operation: events.OperationRefund, code: domain.EventRefund, psp: psp, amount: amount}

	h, err := s.loadHistory(ctx, ref)
	if err != nil {
		return false, s.reject(ctx, ref, nil, a, err)
	}
	if !amount.IsPositive() {
		return false, s.reject(ctx, ref, h, a, domain.ErrInvalidAmount)
	}

	candidates := h.Legs()
	if psp != "" {
		leg, ok := findLeg(h, psp)
		if !ok {
			return false, s.reject(ctx, ref, h, a, fmt.Errorf("%w: %s", domain.ErrNoAuthorization, psp))
		}
		if !s.caps.Supports(leg.PaymentMethod(), domain.CapRefund) {
			return false, s.reject(ctx, ref, h, a, fmt.Errorf("%w: %s", domain.ErrRefundNotSupported, leg.PaymentMethod()))
		}
		candidates = []domain.HistoryItem{leg}
	}
	if len(candidates) == 0 {
		return false, s.reject(ctx, ref, h, a, domain.ErrNoAuthorization)
	}

	legs, err := s.refundableLegs(h, candidates)
	if err != nil {
		return false, s.reject(ctx, ref, h, a, err)
	}
	if len(legs) == 0 {
		return false, s.reject(ctx, ref, h, a, domain.ErrNothingToRefund)
	}

	plan, err := domain.PlanRefunds(legs, amount, s.caps)
	if err != nil {
		return false, s.reject(ctx, ref, h, a, err)
	}

	s.logger.Info("refunding order",
		zap.String("order_reference", ref),
		zap.String("amount", amount.String()),
		zap.Int("legs", len(plan)),
	)
	return s.modifyAll(ctx, h, a.operation, a.code, plan, s.proxy.RefundPayment)
}

// refundableLegs returns the captured but not yet refunded balance of each leg.
func (s *Service) refundableLegs(h *domain.TransactionHistory, candidates []domain.HistoryItem) ([]domain.LegBalance, error) {
	now := s.clock.Now()
	var legs []domain.LegBalance
	for _, leg := range candidates {
		psp := leg.PspReference()
		captured, err := h.LegCapturedAmount(psp, now)
		if err != nil {
			return nil, err
		}
		refunded, err := h.LegRefundedAmount(psp)
		if err != nil {
			return nil, err
		}
		available, err := captured.Sub(refunded)
		if err != nil {
			return nil, err
		}
		if !available.IsPositive() {
			continue
		}
		legs = append(legs, domain.LegBalance{PspReference: psp, PaymentMethod: leg.PaymentMethod(), Available: available})
	}
	return legs, nil
}
