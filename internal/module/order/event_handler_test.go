package order

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/uniedit/payrecon/internal/infra/events"
	paymentevents "github.com/uniedit/payrecon/internal/shared/events"
	"go.uber.org/zap"
)

func TestEventHandler_Handles(t *testing.T) {
	h := NewEventHandler(newTestService(new(MockRepository)), nil)
	assert.ElementsMatch(t, []string{paymentevents.NotificationProcessedType, paymentevents.OperationFailedType}, h.Handles())
}

func TestEventHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("mirrors notification state", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetOrder", ctx, "ORD-1").Return(&Order{Reference: "ORD-1", LastPaymentError: "old"}, nil)
		repo.On("UpdateOrder", ctx, mock.MatchedBy(func(o *Order) bool {
			return o.PaymentState == "paid" && o.LastPaymentError == ""
		})).Return(nil)

		e := paymentevents.NewNotificationProcessedEvent("ORD-1", "psp-1", "CAPTURE", true, "authorized", "paid", 1000, "EUR")
		assert.NoError(t, NewEventHandler(newTestService(repo), zap.NewNop()).Handle(e))
		repo.AssertExpectations(t)
	})

	t.Run("records failed notification code", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetOrder", ctx, "ORD-1").Return(&Order{Reference: "ORD-1", PaymentState: "authorized"}, nil)
		repo.On("UpdateOrder", ctx, mock.MatchedBy(func(o *Order) bool {
			return o.PaymentState == "authorized" && o.LastPaymentError == "CAPTURE_FAILED"
		})).Return(nil)

		e := paymentevents.NewNotificationProcessedEvent("ORD-1", "psp-1", "CAPTURE_FAILED", false, "authorized", "authorized", 1000, "EUR")
		assert.NoError(t, NewEventHandler(newTestService(repo), zap.NewNop()).Handle(e))
		repo.AssertExpectations(t)
	})

	t.Run("records operation failure", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetOrder", ctx, "ORD-1").Return(&Order{Reference: "ORD-1", PaymentState: "authorized"}, nil)
		repo.On("UpdateOrder", ctx, mock.MatchedBy(func(o *Order) bool {
			return o.PaymentState == "authorized" && o.LastPaymentError == "payment.capture.failed"
		})).Return(nil)

		e := paymentevents.NewOperationFailedEvent("ORD-1", paymentevents.OperationCapture, "psp-1", "payment.capture.failed", "declined")
		assert.NoError(t, NewEventHandler(newTestService(repo), zap.NewNop()).Handle(e))
		repo.AssertExpectations(t)
	})

	t.Run("ignores cart payments", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetOrder", ctx, "cart-1").Return(nil, ErrOrderNotFound)

		e := paymentevents.NewNotificationProcessedEvent("cart-1", "psp-1", "AUTHORISATION", true, "", "authorized", 1000, "EUR")
		assert.NoError(t, NewEventHandler(newTestService(repo), zap.NewNop()).Handle(e))
	})

	t.Run("propagates storage errors", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetOrder", ctx, "ORD-1").Return(nil, errors.New("db down"))

		e := paymentevents.NewOperationFailedEvent("ORD-1", paymentevents.OperationRefund, "", "", "declined")
		assert.Error(t, NewEventHandler(newTestService(repo), zap.NewNop()).Handle(e))
	})

	t.Run("unknown event", func(t *testing.T) {
		e := events.NewBaseEvent("Other", uuid.New(), "Order")
		assert.NoError(t, NewEventHandler(newTestService(new(MockRepository)), zap.NewNop()).Handle(&e))
	})
}
