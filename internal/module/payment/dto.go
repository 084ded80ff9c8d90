package payment

import (
	"fmt"
	"strconv"
	"time"

	"github.com/uniedit/payrecon/internal/module/payment/domain"
)

// WebhookRequest is a batch of provider notifications.
type WebhookRequest struct {
	Live              string                `json:"live"`
	NotificationItems []NotificationItemDTO `json:"notificationItems" binding:"required"`
}

// NotificationItemDTO wraps one notification of a batch.
type NotificationItemDTO struct {
	Item NotificationRequestItem `json:"NotificationRequestItem"`
}

// NotificationRequestItem is one provider notification.
type NotificationRequestItem struct {
	PspReference        string            `json:"pspReference"`
	MerchantReference   string            `json:"merchantReference"`
	EventCode           string            `json:"eventCode"`
	Success             string            `json:"success"`
	Amount              MinorAmountDTO    `json:"amount"`
	PaymentMethod       string            `json:"paymentMethod,omitempty"`
	OriginalReference   string            `json:"originalReference,omitempty"`
	EventDate           string            `json:"eventDate,omitempty"`
	Reason              string            `json:"reason,omitempty"`
	AdditionalData      map[string]string `json:"additionalData,omitempty"`
	MerchantAccountCode string            `json:"merchantAccountCode,omitempty"`
}

// MinorAmountDTO is an amount in minor units as sent by the provider.
type MinorAmountDTO struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
}

// ToNotification converts the item to a Notification.
func (i *NotificationRequestItem) ToNotification(live bool) (*Notification, error) {
	success, err := strconv.ParseBool(i.Success)
	if err != nil {
		return nil, fmt.Errorf("%w: success %q", domain.ErrInvalidNotification, i.Success)
	}
	if i.EventCode == "" {
		return nil, fmt.Errorf("%w: missing event code", domain.ErrInvalidNotification)
	}
	risk := 0
	if v, ok := i.AdditionalData["totalFraudScore"]; ok {
		risk, _ = strconv.Atoi(v)
	}
	return &Notification{
		PspReference:      i.PspReference,
		MerchantReference: i.MerchantReference,
		EventCode:         domain.EventCode(i.EventCode),
		Success:           success,
		Amount:            domain.NewAmount(i.Amount.Value, i.Amount.Currency),
		PaymentMethod:     i.PaymentMethod,
		OriginalReference: i.OriginalReference,
		EventDate:         i.EventDate,
		Reason:            i.Reason,
		Live:              live,
		RiskScore:         risk,
	}, nil
}

// AmountDTO is an amount in major units, e.g. {"value": "12.34", "currency": "EUR"}.
type AmountDTO struct {
	Value    string `json:"value" binding:"required"`
	Currency string `json:"currency" binding:"required,len=3"`
}

// ToAmount parses the amount.
func (a AmountDTO) ToAmount() (domain.Amount, error) {
	return domain.ParseAmount(a.Value, a.Currency)
}

func amountDTO(a domain.Amount) AmountDTO {
	return AmountDTO{Value: a.Decimal().StringFixed(domain.CurrencyExponent(a.Currency)), Currency: a.Currency}
}

// ModifyRequest is the body of capture and refund requests.
type ModifyRequest struct {
	Amount       AmountDTO `json:"amount" binding:"required"`
	PspReference string    `json:"psp_reference,omitempty"`
}

// AdjustRequest is the body of an authorization adjustment. Without an amount the
// order total is used.
type AdjustRequest struct {
	Amount *AmountDTO `json:"amount,omitempty"`
}

// RegisterRequest pre-registers a redirect payment.
type RegisterRequest struct {
	CartID            string `json:"cart_id,omitempty"`
	Currency          string `json:"currency" binding:"required,len=3"`
	AuthorizationType string `json:"authorization_type,omitempty"`
	OrderPspReference string `json:"order_psp_reference,omitempty"`
	OrderData         string `json:"order_data,omitempty"`
}

// PaymentLinkRequest attaches a payment link.
type PaymentLinkRequest struct {
	ID        string `json:"id" binding:"required"`
	URL       string `json:"url" binding:"required"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// OperationResponse is the outcome of an operation.
type OperationResponse struct {
	Success bool `json:"success"`
}

// HistoryResponse is the admin view of a transaction history.
type HistoryResponse struct {
	OrderReference       string                `json:"order_reference"`
	State                string                `json:"state"`
	CapturePolicy        string                `json:"capture_policy"`
	AuthorizationType    string                `json:"authorization_type,omitempty"`
	CurrentAuthReference string                `json:"current_auth_reference,omitempty"`
	AuthReferences       []string              `json:"auth_references"`
	PaymentMethod        string                `json:"payment_method,omitempty"`
	Authorized           AmountDTO             `json:"authorized"`
	Captured             AmountDTO             `json:"captured"`
	Capturable           AmountDTO             `json:"capturable"`
	Refunded             AmountDTO             `json:"refunded"`
	PaymentLink          *domain.PaymentLink   `json:"payment_link,omitempty"`
	Items                []HistoryItemResponse `json:"items"`
}

// HistoryItemResponse is one ledger entry.
type HistoryItemResponse struct {
	PspReference      string    `json:"psp_reference"`
	EventCode         string    `json:"event_code"`
	Success           bool      `json:"success"`
	State             string    `json:"state"`
	Amount            AmountDTO `json:"amount"`
	OriginalReference string    `json:"original_reference,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// newHistoryResponse builds the admin view of h.
func newHistoryResponse(h *domain.TransactionHistory, sum *HistorySummary) *HistoryResponse {
	items := h.Items().Items()
	resp := &HistoryResponse{
		OrderReference:       h.OrderReference(),
		State:                string(sum.State),
		CapturePolicy:        string(h.CapturePolicy()),
		AuthorizationType:    string(h.AuthorizationType()),
		CurrentAuthReference: h.CurrentAuthReference(),
		AuthReferences:       h.AuthReferences(),
		PaymentMethod:        h.PaymentMethod(),
		Authorized:           amountDTO(sum.Authorized),
		Captured:             amountDTO(sum.Captured),
		Capturable:           amountDTO(sum.Capturable),
		Refunded:             amountDTO(sum.Refunded),
		PaymentLink:          h.PaymentLink(),
		Items:                make([]HistoryItemResponse, 0, len(items)),
	}
	for _, it := range items {
		resp.Items = append(resp.Items, HistoryItemResponse{
			PspReference:      it.PspReference(),
			EventCode:         string(it.EventCode()),
			Success:           it.Success(),
			State:             string(it.PaymentState()),
			Amount:            amountDTO(it.Amount()),
			OriginalReference: it.OriginalReference(),
			OccurredAt:        it.OccurredAt(),
		})
	}
	return resp
}
