package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/uniedit/payrecon/internal/module/payment/domain"
	"github.com/uniedit/payrecon/internal/shared/events"
	"go.uber.org/zap"
)

// Capture captures amount on the order. With an explicit psp reference a single
// capture is sent to that leg; otherwise the amount is spread over the open legs,
// oldest first.
func (s *Service) Capture(ctx context.Context, ref string, amount domain.Amount, psp string) (bool, error) {
	a := attempt{operation: events.OperationCapture, code: domain.EventCapture, psp: psp, amount: amount}

	h, err := s.loadHistory(ctx, ref)
	if err != nil {
		return false, s.reject(ctx, ref, nil, a, err)
	}
	if !amount.IsPositive() {
		return false, s.reject(ctx, ref, h, a, domain.ErrInvalidAmount)
	}
	if len(h.Legs()) == 0 {
		return false, s.reject(ctx, ref, h, a, domain.ErrNoAuthorization)
	}

	now := s.clock.Now()
	full, err := h.IsFullyCaptured(now)
	if err != nil {
		return false, s.reject(ctx, ref, h, a, err)
	}
	if full {
		return false, s.reject(ctx, ref, h, a, domain.ErrOrderFullyCaptured)
	}

	var plan []domain.LegAmount
	if psp != "" {
		plan, err = s.planExplicitCapture(h, psp, amount, now)
	} else {
		plan, err = s.planCapture(h, amount, now)
	}
	if err != nil {
		return false, s.reject(ctx, ref, h, a, err)
	}

	s.logger.Info("capturing order",
		zap.String("order_reference", ref),
		zap.String("amount", amount.String()),
		zap.Int("legs", len(plan)),
	)
	return s.modifyAll(ctx, h, a.operation, a.code, plan, s.proxy.CapturePayment)
}

func (s *Service) planExplicitCapture(h *domain.TransactionHistory, psp string, amount domain.Amount, now time.Time) ([]domain.LegAmount, error) {
	leg, ok := findLeg(h, psp)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoAuthorization, psp)
	}
	if !s.caps.Supports(leg.PaymentMethod(), domain.CapCapture) {
		return nil, domain.ErrCaptureNotSupported
	}
	capturable, err := h.LegCapturableAmount(psp, now)
	if err != nil {
		return nil, err
	}
	c, err := amount.Cmp(capturable)
	if err != nil {
		return nil, err
	}
	if c > 0 {
		return nil, fmt.Errorf("%w: requested %s, capturable %s", domain.ErrExceedsCapturable, amount, capturable)
	}
	if c < 0 && !s.caps.Supports(leg.PaymentMethod(), domain.CapPartialCapture) {
		return nil, domain.ErrCaptureNotSupported
	}
	return []domain.LegAmount{{PspReference: psp, PaymentMethod: leg.PaymentMethod(), Amount: amount}}, nil
}

func (s *Service) planCapture(h *domain.TransactionHistory, amount domain.Amount, now time.Time) ([]domain.LegAmount, error) {
	var legs []domain.LegBalance
	for _, leg := range h.Legs() {
		psp := leg.PspReference()
		if h.IsLegCancelled(psp) || !s.caps.Supports(leg.PaymentMethod(), domain.CapCapture) {
			continue
		}
		refunded, err := h.IsLegRefunded(psp, now)
		if err != nil {
			return nil, err
		}
		if refunded {
			continue
		}
		capturable, err := h.LegCapturableAmount(psp, now)
		if err != nil {
			return nil, err
		}
		if !capturable.IsPositive() {
			continue
		}
		legs = append(legs, domain.LegBalance{PspReference: psp, PaymentMethod: leg.PaymentMethod(), Available: capturable})
	}

	plan, remaining, err := domain.PlanCaptures(legs, amount)
	if err != nil {
		return nil, err
	}
	if remaining.IsPositive() {
		return nil, fmt.Errorf("%w: %s could not be placed on any leg", domain.ErrExceedsCapturable, remaining)
	}
	return plan, nil
}

// findLeg returns the successful authorization with the given psp reference.
func findLeg(h *domain.TransactionHistory, psp string) (domain.HistoryItem, bool) {
	for _, leg := range h.Legs() {
		if leg.PspReference() == psp {
			return leg, true
		}
	}
	return domain.HistoryItem{}, false
}
