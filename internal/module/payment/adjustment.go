package payment

import (
	"context"
	"fmt"

	"github.com/uniedit/payrecon/internal/module/payment/domain"
	"github.com/uniedit/payrecon/internal/shared/events"
	"go.uber.org/zap"
)

// AdjustAuthorization changes the authorized amount of a pre-authorized order to
// amount. A nil amount adjusts to the current host order total.
func (s *Service) AdjustAuthorization(ctx context.Context, ref string, amount *domain.Amount) (bool, error) {
	a := attempt{operation: events.OperationAdjustment, code: domain.EventAdjustmentRequested}

	h, err := s.loadHistory(ctx, ref)
	if err != nil {
		return false, s.reject(ctx, ref, nil, a, err)
	}

	var target domain.Amount
	if amount != nil {
		target = *amount
	} else {
		if target, err = s.host.OrderTotal(ctx, ref); err != nil {
			return false, s.reject(ctx, ref, h, a, fmt.Errorf("get order total: %w", err))
		}
	}
	a.amount = target
	if !target.IsPositive() {
		return false, s.reject(ctx, ref, h, a, domain.ErrInvalidAmount)
	}

	if err := s.checkAdjustable(h, target); err != nil {
		return false, s.reject(ctx, ref, h, a, err)
	}

	psp := h.CurrentAuthReference()
	leg, _ := findLeg(h, psp)
	s.logger.Info("adjusting authorization",
		zap.String("order_reference", ref),
		zap.String("psp_reference", psp),
		zap.String("amount", target.String()),
	)
	plan := []domain.LegAmount{{PspReference: psp, PaymentMethod: leg.PaymentMethod(), Amount: target}}
	return s.modifyAll(ctx, h, a.operation, a.code, plan, s.proxy.AdjustPayment)
}

// checkAdjustable validates the adjustment preconditions in order. A request
// already accepted by the provider but not yet confirmed is reported before an
// unchanged amount, so repeating a request yields ErrAdjustmentPending.
func (s *Service) checkAdjustable(h *domain.TransactionHistory, target domain.Amount) error {
	now := s.clock.Now()

	if h.AuthorizationType() != domain.AuthorizationPre {
		return domain.ErrNotPreAuthorization
	}
	psp := h.CurrentAuthReference()
	if psp == "" {
		return domain.ErrNoAuthorization
	}
	if leg, ok := findLeg(h, psp); ok && !s.caps.Supports(leg.PaymentMethod(), domain.CapAdjustAuthorization) {
		return fmt.Errorf("%w: %s", domain.ErrAdjustmentNotSupported, leg.PaymentMethod())
	}
	if h.LastState() == domain.StateCancelled {
		return domain.ErrOrderCancelled
	}
	full, err := h.IsFullyCaptured(now)
	if err != nil {
		return err
	}
	if full {
		return domain.ErrOrderFullyCaptured
	}
	if h.HasActivePaymentLink(now, s.clock.ParseDate) {
		return domain.ErrActivePaymentLink
	}
	if adjustmentPending(h) {
		return domain.ErrAdjustmentPending
	}

	authorized, err := h.AuthorizedAmount(now)
	if err != nil {
		return err
	}
	c, err := target.Cmp(authorized)
	if err != nil {
		return err
	}
	if c == 0 {
		return domain.ErrAdjustmentUnchanged
	}
	return nil
}

// adjustmentPending reports whether the latest accepted adjustment request since
// the current authorization has no AUTHORISATION_ADJUSTMENT outcome after it.
func adjustmentPending(h *domain.TransactionHistory) bool {
	window := h.Items().Filter(domain.ScopeWindow, func(it domain.HistoryItem) bool {
		return it.Is(domain.EventAdjustmentRequested) || it.EventCode() == domain.EventAuthorisationAdjustment
	})
	last, ok := window.Last()
	return ok && last.EventCode() == domain.EventAdjustmentRequested
}
