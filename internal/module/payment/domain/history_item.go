package domain

import "time"

// HistoryItemData is the plain representation of a ledger entry.
type HistoryItemData struct {
	PspReference      string        `json:"psp_reference"`
	MerchantReference string        `json:"merchant_reference"`
	EventCode         EventCode     `json:"event_code"`
	PaymentState      PaymentState  `json:"payment_state"`
	OccurredAt        time.Time     `json:"occurred_at"`
	Success           bool          `json:"success"`
	Amount            Amount        `json:"amount"`
	PaymentMethod     string        `json:"payment_method,omitempty"`
	RiskScore         int           `json:"risk_score,omitempty"`
	Live              bool          `json:"live"`
	OriginalReference string        `json:"original_reference,omitempty"`
	CapturePolicy     CapturePolicy `json:"capture_policy,omitempty"`
}

// HistoryItem is one immutable ledger entry.
type HistoryItem struct {
	d HistoryItemData
}

// NewHistoryItem creates a ledger entry.
func NewHistoryItem(d HistoryItemData) HistoryItem {
	d.Amount.Currency = NewAmount(0, d.Amount.Currency).Currency
	return HistoryItem{d: d}
}

// Data returns a copy of the entry's fields.
func (i HistoryItem) Data() HistoryItemData { return i.d }

func (i HistoryItem) PspReference() string         { return i.d.PspReference }
func (i HistoryItem) MerchantReference() string    { return i.d.MerchantReference }
func (i HistoryItem) EventCode() EventCode         { return i.d.EventCode }
func (i HistoryItem) PaymentState() PaymentState   { return i.d.PaymentState }
func (i HistoryItem) OccurredAt() time.Time        { return i.d.OccurredAt }
func (i HistoryItem) Success() bool                { return i.d.Success }
func (i HistoryItem) Amount() Amount               { return i.d.Amount }
func (i HistoryItem) PaymentMethod() string        { return i.d.PaymentMethod }
func (i HistoryItem) RiskScore() int               { return i.d.RiskScore }
func (i HistoryItem) Live() bool                   { return i.d.Live }
func (i HistoryItem) OriginalReference() string    { return i.d.OriginalReference }
func (i HistoryItem) CapturePolicy() CapturePolicy { return i.d.CapturePolicy }

// Is reports whether the entry is a successful event of one of the given codes.
func (i HistoryItem) Is(codes ...EventCode) bool {
	if !i.d.Success {
		return false
	}
	for _, c := range codes {
		if i.d.EventCode == c {
			return true
		}
	}
	return false
}

// BelongsToLeg reports whether the entry is the authorization psp itself or one of its modifications.
func (i HistoryItem) BelongsToLeg(psp string) bool {
	return i.d.PspReference == psp || i.d.OriginalReference == psp
}

// Key returns the deduplication identity of the entry.
func (i HistoryItem) Key() EventKey {
	return EventKey{PspReference: i.d.PspReference, EventCode: i.d.EventCode, Success: i.d.Success}
}

// EventKey identifies an event for deduplication.
type EventKey struct {
	PspReference string
	EventCode    EventCode
	Success      bool
}
