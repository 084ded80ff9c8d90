package order

import (
	"context"
	"errors"

	"github.com/uniedit/payrecon/internal/infra/events"
	paymentevents "github.com/uniedit/payrecon/internal/shared/events"
	"go.uber.org/zap"
)

// EventHandler mirrors payment events onto orders.
type EventHandler struct {
	service *Service
	logger  *zap.Logger
}

// NewEventHandler creates a new order event handler.
func NewEventHandler(service *Service, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{service: service, logger: logger.Named("order-events")}
}

// Handles returns the list of event types this handler can process.
func (h *EventHandler) Handles() []string {
	return []string{
		paymentevents.NotificationProcessedType,
		paymentevents.OperationFailedType,
	}
}

// Handle processes the given event.
func (h *EventHandler) Handle(event events.Event) error {
	ctx := context.Background()

	var ref, state, lastError string
	switch e := event.(type) {
	case *paymentevents.NotificationProcessedEvent:
		ref, state = e.OrderReference, e.State
		if !e.Success {
			lastError = e.EventCode
		}
	case *paymentevents.OperationFailedEvent:
		ref = e.OrderReference
		lastError = e.MessageKey
		if lastError == "" {
			lastError = e.Reason
		}
	default:
		h.logger.Warn("unhandled event type", zap.String("event_type", event.EventType()))
		return nil
	}

	err := h.service.RecordPaymentState(ctx, ref, state, lastError)
	if errors.Is(err, ErrOrderNotFound) {
		// Cart payments have no order yet.
		h.logger.Debug("no order for payment event", zap.String("reference", ref))
		return nil
	}
	if err != nil {
		h.logger.Error("failed to record payment state",
			zap.String("reference", ref),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Compile-time check that EventHandler implements events.Handler.
var _ events.Handler = (*EventHandler)(nil)
