package payment

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/uniedit/payrecon/internal/module/payment/domain"
	apperrors "github.com/uniedit/payrecon/internal/shared/errors"
	"github.com/uniedit/payrecon/internal/shared/response"
	"go.uber.org/zap"
)

const (
	// webhookAccepted is the acknowledgement body the provider expects.
	webhookAccepted = "[accepted]"
	// signatureHeader carries the provider's signature of the raw batch body.
	signatureHeader = "Stripe-Signature"
)

// WebhookHandler handles provider notification batches.
type WebhookHandler struct {
	controller *DeliveryController
	verifier   WebhookVerifier
	logger     *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(controller *DeliveryController, verifier WebhookVerifier) *WebhookHandler {
	return &WebhookHandler{
		controller: controller,
		verifier:   verifier,
		logger:     controller.logger.Named("webhook"),
	}
}

// RegisterRoutes registers the webhook routes.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/notifications", h.HandleNotifications)
}

// HandleNotifications processes a notification batch. Items are handled in
// order. Any item that failed for a reason other than validation makes the
// whole batch answer 503 so that the provider redelivers it; items already
// applied are dropped on redelivery. Batches without a valid signature are
// refused before any item is looked at.
func (h *WebhookHandler) HandleNotifications(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", zap.Error(err))
		response.BadRequest(c, "failed to read body")
		return
	}
	if err := h.verifier.VerifyWebhookSignature(payload, c.GetHeader(signatureHeader)); err != nil {
		h.logger.Warn("invalid webhook signature", zap.String("client_ip", c.ClientIP()), zap.Error(err))
		response.Error(c, apperrors.Unauthorized("invalid webhook signature").WithCode("INVALID_SIGNATURE"))
		return
	}

	var req WebhookRequest
	if err := binding.JSON.BindBody(payload, &req); err != nil {
		h.logger.Warn("invalid notification batch", zap.Error(err))
		response.BadRequest(c, "invalid notification batch")
		return
	}
	live, _ := strconv.ParseBool(req.Live)
	ctx := c.Request.Context()

	retry := false
	for _, wrapped := range req.NotificationItems {
		n, err := wrapped.Item.ToNotification(live)
		if err != nil {
			h.logger.Warn("skipping malformed notification",
				zap.String("psp_reference", wrapped.Item.PspReference),
				zap.Error(err),
			)
			continue
		}

		outcome, err := h.controller.Handle(ctx, n)
		switch {
		case err == nil:
			h.logger.Debug("notification handled",
				zap.String("psp_reference", n.PspReference),
				zap.String("outcome", string(outcome)),
			)
		case errors.Is(err, domain.ErrValidation):
			h.logger.Warn("rejecting invalid notification",
				zap.String("psp_reference", n.PspReference),
				zap.Error(err),
			)
		case IsRetryable(err) || errors.Is(err, ErrOrderNotFound):
			retry = true
			h.logger.Info("notification will be redelivered",
				zap.String("psp_reference", n.PspReference),
				zap.Error(err),
			)
		default:
			h.logger.Error("notification failed",
				zap.String("order_reference", n.MerchantReference),
				zap.String("psp_reference", n.PspReference),
				zap.Error(err),
			)
			retry = true
		}
	}

	if retry {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		c.String(http.StatusServiceUnavailable, "retry later")
		return
	}
	c.String(http.StatusOK, webhookAccepted)
}
