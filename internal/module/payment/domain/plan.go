package domain

// LegBalance is the amount available for a modification on one authorization leg.
type LegBalance struct {
	PspReference  string
	PaymentMethod string
	Available     Amount
}

// LegAmount is the amount assigned to one leg by a plan.
type LegAmount struct {
	PspReference  string
	PaymentMethod string
	Amount        Amount
}

// PlanCaptures spreads requested over legs in order, taking from each leg the
// smaller of its available amount and what is left. It returns the plan and the
// part of requested no leg could absorb.
func PlanCaptures(legs []LegBalance, requested Amount) ([]LegAmount, Amount, error) {
	remaining := requested
	var plan []LegAmount
	for _, leg := range legs {
		if !remaining.IsPositive() {
			break
		}
		if !leg.Available.IsPositive() {
			continue
		}
		take, err := leg.Available.Min(remaining)
		if err != nil {
			return nil, Amount{}, err
		}
		if remaining, err = remaining.Sub(take); err != nil {
			return nil, Amount{}, err
		}
		plan = append(plan, LegAmount{PspReference: leg.PspReference, PaymentMethod: leg.PaymentMethod, Amount: take})
	}
	return plan, remaining, nil
}

// PlanRefunds builds a refund plan that satisfies requested entirely, skipping
// legs whose payment method cannot take the share they would be assigned.
// No plan is returned unless the whole amount is covered.
func PlanRefunds(legs []LegBalance, requested Amount, caps *CapabilityTable) ([]LegAmount, error) {
	remaining := requested
	var plan []LegAmount
	for _, leg := range legs {
		if !remaining.IsPositive() {
			break
		}
		if !leg.Available.IsPositive() || !caps.Supports(leg.PaymentMethod, CapRefund) {
			continue
		}
		take, err := leg.Available.Min(remaining)
		if err != nil {
			return nil, err
		}
		if take.Value < leg.Available.Value && !caps.Supports(leg.PaymentMethod, CapPartialRefund) {
			continue
		}
		if remaining, err = remaining.Sub(take); err != nil {
			return nil, err
		}
		plan = append(plan, LegAmount{PspReference: leg.PspReference, PaymentMethod: leg.PaymentMethod, Amount: take})
	}
	if remaining.IsPositive() {
		return nil, ErrRefundNotCoverable
	}
	return plan, nil
}
