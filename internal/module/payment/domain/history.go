package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const maxOrderReferenceLength = 80

// ValidateOrderReference checks that ref can identify an order.
func ValidateOrderReference(ref string) error {
	if ref == "" || len(ref) > maxOrderReferenceLength {
		return ErrInvalidOrderReference
	}
	if strings.IndexFunc(ref, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return ErrInvalidOrderReference
	}
	return nil
}

// TransactionHistory is the aggregate root holding the event ledger of one order.
type TransactionHistory struct {
	orderReference       string
	capturePolicy        CapturePolicy
	captureDelay         time.Duration
	currency             string
	authorizationType    AuthorizationType
	paymentLink          *PaymentLink
	orderContainer       *OrderContainer
	authReferences       []string
	currentAuthReference string
	paymentMethod        string
	live                 bool
	riskScore            int
	items                *HistoryItemCollection
	createdAt            time.Time
	updatedAt            time.Time
}

// NewTransactionHistory creates an empty history for an order.
func NewTransactionHistory(orderReference string, policy CapturePolicy, captureDelay time.Duration, currency string) (*TransactionHistory, error) {
	if err := ValidateOrderReference(orderReference); err != nil {
		return nil, err
	}
	if policy == "" {
		policy = CaptureUnknown
	}
	now := time.Now()
	return &TransactionHistory{
		orderReference: orderReference,
		capturePolicy:  policy,
		captureDelay:   captureDelay,
		currency:       strings.ToUpper(currency),
		items:          NewHistoryItemCollection(),
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// TransactionHistorySnapshot is the persisted shape of a TransactionHistory.
type TransactionHistorySnapshot struct {
	OrderReference       string
	CapturePolicy        CapturePolicy
	CaptureDelay         time.Duration
	Currency             string
	AuthorizationType    AuthorizationType
	PaymentLink          *PaymentLink
	OrderContainer       *OrderContainer
	AuthReferences       []string
	CurrentAuthReference string
	PaymentMethod        string
	Live                 bool
	RiskScore            int
	Items                []HistoryItemData
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// RestoreTransactionHistory recreates a history from persisted data.
func RestoreTransactionHistory(s TransactionHistorySnapshot) *TransactionHistory {
	items := make([]HistoryItem, 0, len(s.Items))
	for _, d := range s.Items {
		items = append(items, NewHistoryItem(d))
	}
	return &TransactionHistory{
		orderReference:       s.OrderReference,
		capturePolicy:        s.CapturePolicy,
		captureDelay:         s.CaptureDelay,
		currency:             s.Currency,
		authorizationType:    s.AuthorizationType,
		paymentLink:          s.PaymentLink,
		orderContainer:       s.OrderContainer,
		authReferences:       append([]string(nil), s.AuthReferences...),
		currentAuthReference: s.CurrentAuthReference,
		paymentMethod:        s.PaymentMethod,
		live:                 s.Live,
		riskScore:            s.RiskScore,
		items:                NewHistoryItemCollection(items...),
		createdAt:            s.CreatedAt,
		updatedAt:            s.UpdatedAt,
	}
}

// Snapshot returns the persisted shape of the history.
func (h *TransactionHistory) Snapshot() TransactionHistorySnapshot {
	data := make([]HistoryItemData, 0, h.items.Len())
	for _, it := range h.items.items {
		data = append(data, it.Data())
	}
	return TransactionHistorySnapshot{
		OrderReference:       h.orderReference,
		CapturePolicy:        h.capturePolicy,
		CaptureDelay:         h.captureDelay,
		Currency:             h.currency,
		AuthorizationType:    h.authorizationType,
		PaymentLink:          h.paymentLink,
		OrderContainer:       h.orderContainer,
		AuthReferences:       append([]string(nil), h.authReferences...),
		CurrentAuthReference: h.currentAuthReference,
		PaymentMethod:        h.paymentMethod,
		Live:                 h.live,
		RiskScore:            h.riskScore,
		Items:                data,
		CreatedAt:            h.createdAt,
		UpdatedAt:            h.updatedAt,
	}
}

// Getters
func (h *TransactionHistory) OrderReference() string               { return h.orderReference }
func (h *TransactionHistory) CapturePolicy() CapturePolicy         { return h.capturePolicy }
func (h *TransactionHistory) CaptureDelay() time.Duration          { return h.captureDelay }
func (h *TransactionHistory) Currency() string                     { return h.currency }
func (h *TransactionHistory) AuthorizationType() AuthorizationType { return h.authorizationType }
func (h *TransactionHistory) PaymentLink() *PaymentLink            { return h.paymentLink }
func (h *TransactionHistory) OrderContainer() *OrderContainer      { return h.orderContainer }
func (h *TransactionHistory) CurrentAuthReference() string         { return h.currentAuthReference }
func (h *TransactionHistory) PaymentMethod() string                { return h.paymentMethod }
func (h *TransactionHistory) Live() bool                           { return h.live }
func (h *TransactionHistory) RiskScore() int                       { return h.riskScore }
func (h *TransactionHistory) Items() *HistoryItemCollection        { return h.items }
func (h *TransactionHistory) CreatedAt() time.Time                 { return h.createdAt }
func (h *TransactionHistory) UpdatedAt() time.Time                 { return h.updatedAt }

// AuthReferences returns every authorization reference seen, in arrival order.
func (h *TransactionHistory) AuthReferences() []string {
	return append([]string(nil), h.authReferences...)
}

// HasAuthReference reports whether psp was ever the authorization reference.
func (h *TransactionHistory) HasAuthReference(psp string) bool {
	for _, r := range h.authReferences {
		if r == psp {
			return true
		}
	}
	return false
}

// LastState returns the payment state of the most recent entry.
func (h *TransactionHistory) LastState() PaymentState {
	if last, ok := h.items.Last(); ok && last.PaymentState() != "" {
		return last.PaymentState()
	}
	return StateNew
}

// SetAuthorizationType records whether the payment was pre-authorized.
func (h *TransactionHistory) SetAuthorizationType(t AuthorizationType) {
	h.authorizationType = t
	h.touch()
}

// SetPaymentLink attaches a hosted payment link.
func (h *TransactionHistory) SetPaymentLink(link *PaymentLink) {
	h.paymentLink = link
	h.touch()
}

// SetOrderContainer records the provider container of a multi-leg order.
func (h *TransactionHistory) SetOrderContainer(c *OrderContainer) {
	h.orderContainer = c
	h.touch()
}

// HasActivePaymentLink reports whether a non-expired payment link is attached.
func (h *TransactionHistory) HasActivePaymentLink(now time.Time, parse func(string) (time.Time, error)) bool {
	return h.paymentLink.IsActive(now, parse)
}

// Add appends item to the ledger. It returns false without error when an entry
// with the same identity is already present.
func (h *TransactionHistory) Add(item HistoryItem) (bool, error) {
	if item.MerchantReference() != h.orderReference {
		return false, fmt.Errorf("%w: %q in history of %q", ErrOrderReferenceMismatch, item.MerchantReference(), h.orderReference)
	}
	if !IsAlwaysAppend(item.EventCode()) && h.items.Contains(item.Key()) {
		return false, nil
	}

	if item.Is(EventAuthorisation) && item.PspReference() != h.currentAuthReference {
		h.currentAuthReference = item.PspReference()
		h.paymentLink = nil
		if !h.HasAuthReference(item.PspReference()) {
			h.authReferences = append(h.authReferences, item.PspReference())
		}
	}

	if h.items.IsEmpty() {
		h.paymentMethod = item.PaymentMethod()
		h.live = item.Live()
		h.riskScore = item.RiskScore()
	}
	if h.currency == "" {
		h.currency = item.Amount().Currency
	}

	h.items.append(item)
	h.touch()
	return true, nil
}

func (h *TransactionHistory) touch() {
	h.updatedAt = time.Now()
}

// --- Amounts ---

// effectivePolicy resolves the delayed policy against the authorization time of c.
func (h *TransactionHistory) effectivePolicy(c *HistoryItemCollection, now time.Time) CapturePolicy {
	if h.capturePolicy != CaptureDelayed {
		return h.capturePolicy
	}
	auth, ok := c.Successful(ScopeAll, EventAuthorisation).First()
	if !ok {
		auth, ok = h.items.Successful(ScopeAll, EventAuthorisation).First()
	}
	if ok && now.After(auth.OccurredAt().Add(h.captureDelay)) {
		return CaptureImmediate
	}
	return CaptureManual
}

func (h *TransactionHistory) withCurrency(a Amount) Amount {
	if a.Currency == "" {
		a.Currency = h.currency
	}
	return a
}

func (h *TransactionHistory) capturedIn(c *HistoryItemCollection, now time.Time) (Amount, error) {
	var (
		sum Amount
		err error
	)
	if h.effectivePolicy(c, now) == CaptureManual {
		sum, err = c.Successful(ScopeAll, EventCapture).Sum()
	} else {
		sum, err = c.Successful(ScopeAll, EventAuthorisation).Sum()
	}
	if err != nil {
		return Amount{}, fmt.Errorf("captured amount: %w", err)
	}
	return h.withCurrency(sum), nil
}

func (h *TransactionHistory) capturableIn(c *HistoryItemCollection, now time.Time) (Amount, error) {
	idx := c.LastIndexOf(func(it HistoryItem) bool { return it.Is(EventAuthorisationAdjustment) })
	if idx < 0 {
		authorized, err := c.Successful(ScopeAll, EventAuthorisation).Sum()
		if err != nil {
			return Amount{}, fmt.Errorf("authorized amount: %w", err)
		}
		captured, err := h.capturedIn(c, now)
		if err != nil {
			return Amount{}, err
		}
		out, err := h.withCurrency(authorized).Sub(captured)
		if err != nil {
			return Amount{}, fmt.Errorf("capturable amount: %w", err)
		}
		return out, nil
	}

	adjusted := c.items[idx].Amount()
	captured, err := h.capturedIn(c.Since(idx), now)
	if err != nil {
		return Amount{}, err
	}
	out, err := h.withCurrency(adjusted).Sub(captured)
	if err != nil {
		return Amount{}, fmt.Errorf("capturable amount: %w", err)
	}
	return out, nil
}

func (h *TransactionHistory) refundedIn(c *HistoryItemCollection) (Amount, error) {
	sum, err := c.Successful(ScopeAll, EventRefund).Sum()
	if err != nil {
		return Amount{}, fmt.Errorf("refunded amount: %w", err)
	}
	return h.withCurrency(sum), nil
}

// CapturedAmount returns the amount considered captured under the capture policy.
func (h *TransactionHistory) CapturedAmount(now time.Time) (Amount, error) {
	return h.capturedIn(h.items, now)
}

// CapturableAmount returns the amount that can still be captured.
func (h *TransactionHistory) CapturableAmount(now time.Time) (Amount, error) {
	return h.capturableIn(h.items, now)
}

// AuthorizedAmount returns captured + capturable.
func (h *TransactionHistory) AuthorizedAmount(now time.Time) (Amount, error) {
	captured, err := h.CapturedAmount(now)
	if err != nil {
		return Amount{}, err
	}
	capturable, err := h.CapturableAmount(now)
	if err != nil {
		return Amount{}, err
	}
	return captured.Add(capturable)
}

// RefundedAmount returns the sum of successful refunds.
func (h *TransactionHistory) RefundedAmount() (Amount, error) {
	return h.refundedIn(h.items)
}

// IsFullyCaptured reports whether nothing is left to capture.
func (h *TransactionHistory) IsFullyCaptured(now time.Time) (bool, error) {
	capturable, err := h.CapturableAmount(now)
	if err != nil {
		return false, err
	}
	return !capturable.IsPositive(), nil
}

// --- Legs ---

// Legs returns the references of successful authorizations, oldest first.
func (h *TransactionHistory) Legs() []HistoryItem {
	seen := make(map[string]bool)
	var legs []HistoryItem
	for _, it := range h.items.Successful(ScopeAll, EventAuthorisation).items {
		if seen[it.PspReference()] {
			continue
		}
		seen[it.PspReference()] = true
		legs = append(legs, it)
	}
	return legs
}

// LegItems returns the authorization psp and every entry referring to it.
func (h *TransactionHistory) LegItems(psp string) *HistoryItemCollection {
	return h.items.Filter(ScopeAll, func(it HistoryItem) bool { return it.BelongsToLeg(psp) })
}

// LegCapturedAmount returns the amount captured on one leg.
func (h *TransactionHistory) LegCapturedAmount(psp string, now time.Time) (Amount, error) {
	return h.capturedIn(h.LegItems(psp), now)
}

// LegCapturableAmount returns the amount still capturable on one leg.
func (h *TransactionHistory) LegCapturableAmount(psp string, now time.Time) (Amount, error) {
	return h.capturableIn(h.LegItems(psp), now)
}

// LegRefundedAmount returns the amount refunded on one leg.
func (h *TransactionHistory) LegRefundedAmount(psp string) (Amount, error) {
	return h.refundedIn(h.LegItems(psp))
}

// IsLegCancelled reports whether the leg has a successful cancellation.
func (h *TransactionHistory) IsLegCancelled(psp string) bool {
	return !h.LegItems(psp).Successful(ScopeAll, EventCancellation, EventCancelOrRefund).IsEmpty()
}

// IsLegRefunded reports whether everything captured on the leg was refunded.
func (h *TransactionHistory) IsLegRefunded(psp string, now time.Time) (bool, error) {
	refunded, err := h.LegRefundedAmount(psp)
	if err != nil {
		return false, err
	}
	if !refunded.IsPositive() {
		return false, nil
	}
	captured, err := h.LegCapturedAmount(psp, now)
	if err != nil {
		return false, err
	}
	c, err := refunded.Cmp(captured)
	if err != nil {
		return false, err
	}
	return c >= 0, nil
}

// TransitionFor builds the resolver input for an event about to be applied.
func (h *TransactionHistory) TransitionFor(code EventCode, success bool, psp string, amount Amount, now time.Time) (Transition, error) {
	captured, err := h.CapturedAmount(now)
	if err != nil {
		return Transition{}, err
	}
	capturable, err := h.CapturableAmount(now)
	if err != nil {
		return Transition{}, err
	}
	refunded, err := h.RefundedAmount()
	if err != nil {
		return Transition{}, err
	}
	return Transition{
		Previous:             h.LastState(),
		Code:                 code,
		Success:              success,
		PspReference:         psp,
		Amount:               amount,
		CurrentAuthReference: h.currentAuthReference,
		Captured:             captured,
		Capturable:           capturable,
		Refunded:             refunded,
		Policy:               h.effectivePolicy(h.items, now),
	}, nil
}
