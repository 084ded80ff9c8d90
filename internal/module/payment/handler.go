package payment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/uniedit/payrecon/internal/module/payment/domain"
	apperrors "github.com/uniedit/payrecon/internal/shared/errors"
	"github.com/uniedit/payrecon/internal/shared/response"
	"go.uber.org/zap"
)

// retryAfterSeconds is the Retry-After hint sent with retryable errors.
const retryAfterSeconds = 10

// Handler handles the admin payment operations.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, logger: service.logger.Named("http")}
}

// RegisterRoutes registers the payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders/:reference")
	{
		orders.GET("/history", h.GetHistory)
		orders.POST("/capture", h.Capture)
		orders.POST("/refund", h.Refund)
		orders.POST("/cancel", h.Cancel)
		orders.POST("/adjust", h.Adjust)
		orders.POST("/register", h.Register)
		orders.POST("/payment-link", h.AttachPaymentLink)
	}
}

// GetHistory returns the ledger and derived amounts of an order.
func (h *Handler) GetHistory(c *gin.Context) {
	history, err := h.service.GetHistory(c.Request.Context(), c.Param("reference"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	sum, err := h.service.Summarize(history)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, newHistoryResponse(history, sum))
}

// Capture captures an amount on an order.
func (h *Handler) Capture(c *gin.Context) {
	var req ModifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	amount, err := req.Amount.ToAmount()
	if err != nil {
		h.handleError(c, err)
		return
	}
	ok, err := h.service.Capture(c.Request.Context(), c.Param("reference"), amount, req.PspReference)
	h.respondOperation(c, ok, err)
}

// Refund refunds an amount on an order.
func (h *Handler) Refund(c *gin.Context) {
	var req ModifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	amount, err := req.Amount.ToAmount()
	if err != nil {
		h.handleError(c, err)
		return
	}
	ok, err := h.service.Refund(c.Request.Context(), c.Param("reference"), amount, req.PspReference)
	h.respondOperation(c, ok, err)
}

// Cancel cancels an order's authorization.
func (h *Handler) Cancel(c *gin.Context) {
	ok, err := h.service.Cancel(c.Request.Context(), c.Param("reference"))
	h.respondOperation(c, ok, err)
}

// Adjust changes the authorized amount of a pre-authorized order.
func (h *Handler) Adjust(c *gin.Context) {
	var req AdjustRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	var amount *domain.Amount
	if req.Amount != nil {
		a, err := req.Amount.ToAmount()
		if err != nil {
			h.handleError(c, err)
			return
		}
		amount = &a
	}
	ok, err := h.service.AdjustAuthorization(c.Request.Context(), c.Param("reference"), amount)
	h.respondOperation(c, ok, err)
}

// Register pre-registers a redirect payment.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	authType, err := domain.ParseAuthorizationType(req.AuthorizationType)
	if err != nil {
		h.handleError(c, err)
		return
	}
	in := PreRegisterInput{
		OrderReference:    c.Param("reference"),
		CartID:            req.CartID,
		Currency:          req.Currency,
		AuthorizationType: authType,
	}
	if req.OrderPspReference != "" {
		in.OrderContainer = &domain.OrderContainer{PspReference: req.OrderPspReference, OrderData: req.OrderData}
	}

	history, err := h.service.PreRegister(c.Request.Context(), in)
	if err != nil {
		h.handleError(c, err)
		return
	}
	sum, err := h.service.Summarize(history)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newHistoryResponse(history, sum))
}

// AttachPaymentLink attaches a payment link to an order.
func (h *Handler) AttachPaymentLink(c *gin.Context) {
	var req PaymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	link := domain.PaymentLink{ID: req.ID, URL: req.URL, ExpiresAt: req.ExpiresAt}
	if err := h.service.AttachPaymentLink(c.Request.Context(), c.Param("reference"), link); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) respondOperation(c *gin.Context, ok bool, err error) {
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, OperationResponse{Success: ok})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	appErr := toAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	if appErr.StatusCode == http.StatusServiceUnavailable {
		response.RetryLater(c, appErr, retryAfterSeconds)
		return
	}
	response.Error(c, appErr)
}

// toAppError maps payment errors to their HTTP representation.
func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	key := domain.MessageKey(err)
	switch {
	case errors.Is(err, ErrRetryableDelivery):
		return apperrors.Unavailable(err.Error()).WithCode(key)
	case errors.Is(err, ErrTransientProvider):
		return apperrors.BadGateway("payment provider call failed", err)
	case errors.Is(err, domain.ErrHistoryNotFound):
		return apperrors.NotFound("transaction history").WithCode(key)
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrCartNotFound):
		return apperrors.NotFound("order")
	case errors.Is(err, domain.ErrValidation):
		return apperrors.ValidationError(err.Error()).WithCode(key)
	case errors.Is(err, domain.ErrPrecondition):
		return apperrors.Conflict(err.Error()).WithCode(key)
	default:
		return apperrors.Internal("internal error", err)
	}
}
