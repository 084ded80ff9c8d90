package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/uniedit/payrecon/internal/module/payment"
)

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	APIKey string
	// WebhookSecret signs the notification batches posted to the webhook.
	WebhookSecret string
	// BackendURL overrides the Stripe API endpoint. Used in tests.
	BackendURL        string
	MaxNetworkRetries int64
	HTTPClient        *http.Client
}

// StripeProxy sends payment modifications to Stripe.
type StripeProxy struct {
	api           *client.API
	webhookSecret string
}

var (
	_ payment.ProviderProxy   = (*StripeProxy)(nil)
	_ payment.WebhookVerifier = (*StripeProxy)(nil)
)

// NewStripeProxy creates a new Stripe proxy.
func NewStripeProxy(config *StripeConfig) *StripeProxy {
	backendConfig := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(config.MaxNetworkRetries),
		HTTPClient:        config.HTTPClient,
	}
	if config.BackendURL != "" {
		backendConfig.URL = stripe.String(config.BackendURL)
	}

	api := &client.API{}
	api.Init(config.APIKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	})
	return &StripeProxy{api: api, webhookSecret: config.WebhookSecret}
}

// Name returns the provider name.
func (p *StripeProxy) Name() string {
	return "stripe"
}

// VerifyWebhookSignature checks the Stripe-Signature header of a webhook body.
func (p *StripeProxy) VerifyWebhookSignature(payload []byte, signature string) error {
	if p.webhookSecret == "" {
		return errors.New("webhook secret is not configured")
	}
	return webhook.ValidatePayload(payload, signature, p.webhookSecret)
}

// CapturePayment captures an authorized payment intent.
func (p *StripeProxy) CapturePayment(ctx context.Context, req payment.ModificationRequest) (*payment.ModificationResult, error) {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(req.Amount.Value),
	}
	prepare(ctx, &params.Params, req)

	pi, err := p.api.PaymentIntents.Capture(req.PspReference, params)
	if err != nil {
		return rejectedOrError("capture", err)
	}
	psp := pi.ID
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		psp = pi.LatestCharge.ID
	}
	return &payment.ModificationResult{
		Accepted:     pi.Status == stripe.PaymentIntentStatusSucceeded || pi.Status == stripe.PaymentIntentStatusProcessing,
		PspReference: psp,
		Status:       string(pi.Status),
	}, nil
}

// RefundPayment refunds part of a captured payment intent.
func (p *StripeProxy) RefundPayment(ctx context.Context, req payment.ModificationRequest) (*payment.ModificationResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PspReference),
		Amount:        stripe.Int64(req.Amount.Value),
	}
	prepare(ctx, &params.Params, req)

	r, err := p.api.Refunds.New(params)
	if err != nil {
		return rejectedOrError("refund", err)
	}
	return &payment.ModificationResult{
		Accepted:     r.Status != stripe.RefundStatusFailed && r.Status != stripe.RefundStatusCanceled,
		PspReference: r.ID,
		Status:       string(r.Status),
	}, nil
}

// CancelPayment cancels an uncaptured payment intent.
func (p *StripeProxy) CancelPayment(ctx context.Context, req payment.ModificationRequest) (*payment.ModificationResult, error) {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
	}
	prepare(ctx, &params.Params, req)

	pi, err := p.api.PaymentIntents.Cancel(req.PspReference, params)
	if err != nil {
		return rejectedOrError("cancel", err)
	}
	return &payment.ModificationResult{
		Accepted:     pi.Status == stripe.PaymentIntentStatusCanceled,
		PspReference: pi.ID,
		Status:       string(pi.Status),
	}, nil
}

// AdjustPayment increments the authorized amount of a payment intent.
// Stripe only supports increasing an authorization.
func (p *StripeProxy) AdjustPayment(ctx context.Context, req payment.ModificationRequest) (*payment.ModificationResult, error) {
	params := &stripe.PaymentIntentIncrementAuthorizationParams{
		Amount: stripe.Int64(req.Amount.Value),
	}
	prepare(ctx, &params.Params, req)

	pi, err := p.api.PaymentIntents.IncrementAuthorization(req.PspReference, params)
	if err != nil {
		return rejectedOrError("adjust", err)
	}
	return &payment.ModificationResult{
		Accepted:     pi.Amount == req.Amount.Value,
		PspReference: pi.ID,
		Status:       string(pi.Status),
	}, nil
}

// CancelOrder is not available on Stripe, which has no order containers.
func (p *StripeProxy) CancelOrder(ctx context.Context, req payment.OrderCancelRequest) (*payment.ModificationResult, error) {
	return nil, payment.NewProviderError("cancel_order", payment.ErrUnsupportedOperation)
}

// prepare sets the request context, idempotency key and metadata on params.
func prepare(ctx context.Context, params *stripe.Params, req payment.ModificationRequest) {
	params.Context = ctx
	if req.Reference != "" {
		params.SetIdempotencyKey(req.Reference)
	}
	if req.MerchantReference != "" {
		params.AddMetadata("merchant_reference", req.MerchantReference)
	}
}

// rejectedOrError turns card and request errors into a rejected result and
// everything else into a *payment.ProviderError.
func rejectedOrError(operation string, err error) (*payment.ModificationResult, error) {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		switch serr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			status := string(serr.Code)
			if status == "" {
				status = string(serr.Type)
			}
			return &payment.ModificationResult{Accepted: false, Status: status}, nil
		}
	}
	return nil, payment.NewProviderError(operation, fmt.Errorf("stripe: %w", err))
}
