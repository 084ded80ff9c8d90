package order

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/uniedit/payrecon/internal/shared/errors"
	"github.com/uniedit/payrecon/internal/shared/response"
)

// Handler handles order HTTP requests.
type Handler struct {
	service *Service
}

// NewHandler creates a new order handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers order routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/orders", h.CreateOrder)
	r.GET("/orders/:reference", h.GetOrder)
	r.POST("/carts", h.CreateCart)
}

// CreateOrder creates a pending order.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), &CreateOrderInput{
		Reference: req.Reference,
		CartID:    req.CartID,
		Total:     req.Total,
		Currency:  req.Currency,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order.ToResponse())
}

// GetOrder returns an order by reference.
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.service.GetOrder(c.Request.Context(), c.Param("reference"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, order.ToResponse())
}

// CreateCart creates a checkout cart.
func (h *Handler) CreateCart(c *gin.Context) {
	var req CreateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cart, err := h.service.CreateCart(c.Request.Context(), &CreateCartInput{
		ID:       req.ID,
		Total:    req.Total,
		Currency: req.Currency,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cart)
}

func handleError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, ErrOrderNotFound):
		appErr = apperrors.NotFound("order")
	case errors.Is(err, ErrOrderExists):
		appErr = apperrors.Conflict("order already exists")
	case errors.Is(err, ErrInvalidOrderRequest):
		appErr = apperrors.ValidationError(err.Error())
	default:
		appErr = apperrors.Internal("internal error", err)
	}
	response.Error(c, appErr)
}
