package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/uniedit/payrecon/internal/module/payment/domain"
)

const testSignature = "t=1714564800,v1=good"

// fixedSignature accepts exactly one signature header value.
type fixedSignature string

func (f fixedSignature) VerifyWebhookSignature(payload []byte, signature string) error {
	if len(payload) == 0 || signature != string(f) {
		return errors.New("signature mismatch")
	}
	return nil
}

func newWebhookRouter(d *deliveryDeps) *gin.Engine {
	r := gin.New()
	NewWebhookHandler(d.ctrl, fixedSignature(testSignature)).RegisterRoutes(r.Group("/webhooks"))
	return r
}

func postWebhook(r http.Handler, path, signature string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func batch(items ...NotificationRequestItem) WebhookRequest {
	req := WebhookRequest{Live: "false"}
	for _, it := range items {
		req.NotificationItems = append(req.NotificationItems, NotificationItemDTO{Item: it})
	}
	return req
}

func requestItem(psp, ref, code string) NotificationRequestItem {
	return NotificationRequestItem{
		PspReference:      psp,
		MerchantReference: ref,
		EventCode:         code,
		Success:           "true",
		Amount:            MinorAmountDTO{Value: 1000, Currency: "EUR"},
		PaymentMethod:     "visa",
	}
}

func TestWebhookHandler_HandleNotifications(t *testing.T) {
	const path = "/webhooks/notifications"

	t.Run("acknowledges handled batch", func(t *testing.T) {
		d := newTestController(t)

		w := postWebhook(newWebhookRouter(d), path, testSignature, batch(requestItem("test_1", "testMerchantRef1", "AUTHORISATION")))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, webhookAccepted, w.Body.String())
	})

	t.Run("acknowledges invalid items", func(t *testing.T) {
		d := newTestController(t)
		malformed := requestItem("psp-a", testOrder, "AUTHORISATION")
		malformed.Success = "maybe"

		w := postWebhook(newWebhookRouter(d), path, testSignature, batch(
			malformed,
			requestItem("psp-b", "bad ref", "AUTHORISATION"),
		))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, webhookAccepted, w.Body.String())
	})

	t.Run("asks for redelivery when an item is in flight", func(t *testing.T) {
		d := newTestController(t)
		d.expectNoHistory()
		d.queue.On("Wake").Return()
		d.attempts.On("Get", mock.Anything, mock.Anything).Return(&DeliveryAttempt{
			RetryCount:          1,
			ProcessingStartedAt: testNow.Add(-time.Second),
		}, nil)

		w := postWebhook(newWebhookRouter(d), path, testSignature, batch(requestItem("psp-a", testOrder, "AUTHORISATION")))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "10", w.Header().Get("Retry-After"))
	})

	t.Run("asks for redelivery when the order is unknown", func(t *testing.T) {
		d := newTestController(t)
		d.expectNoHistory()
		attempt := &DeliveryAttempt{}
		d.queue.On("Wake").Return()
		d.attempts.On("Get", mock.Anything, mock.Anything).Return(attempt, nil)
		d.attempts.On("Save", mock.Anything, attempt).Return(nil)
		d.logs.On("Create", mock.Anything, mock.Anything).Return(nil)
		d.logs.On("UpdateStatus", mock.Anything, mock.Anything, LogStatusFailed, mock.Anything).Return(nil)
		d.host.On("OrderExists", mock.Anything, testOrder).Return(false, nil)

		w := postWebhook(newWebhookRouter(d), path, testSignature, batch(requestItem("psp-a", testOrder, "AUTHORISATION")))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("queues in async mode", func(t *testing.T) {
		d := newTestController(t)
		d.config.AsyncDelivery = true
		d.expectNoHistory()
		d.logs.On("Create", mock.Anything, mock.Anything).Return(nil)
		d.queue.On("Enqueue", mock.Anything, TaskProcessNotification, mock.Anything, mock.Anything).Return(true, nil).Twice()

		w := postWebhook(newWebhookRouter(d), path, testSignature, batch(
			requestItem("psp-a", testOrder, "AUTHORISATION"),
			requestItem("cap-a", testOrder, string(domain.EventCapture)),
		))
		assert.Equal(t, http.StatusOK, w.Code)
		d.queue.AssertExpectations(t)
	})

	t.Run("rejects unparsable body", func(t *testing.T) {
		d := newTestController(t)

		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"notificationItems": "nope"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(signatureHeader, testSignature)
		w := httptest.NewRecorder()
		newWebhookRouter(d).ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWebhookHandler_Signature(t *testing.T) {
	const path = "/webhooks/notifications"

	tests := []struct {
		name      string
		signature string
	}{
		{name: "missing signature", signature: ""},
		{name: "wrong signature", signature: "t=1714564800,v1=forged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestController(t)

			w := postWebhook(newWebhookRouter(d), path, tt.signature, batch(requestItem("psp-a", testOrder, "AUTHORISATION")))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "INVALID_SIGNATURE", errorCode(t, w))
			d.repo.AssertNotCalled(t, "GetTransactionHistory", mock.Anything, mock.Anything)
			d.logs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}

	t.Run("valid signature is processed", func(t *testing.T) {
		d := newTestController(t)
		d.config.AsyncDelivery = true
		d.expectNoHistory()
		d.logs.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
		d.queue.On("Enqueue", mock.Anything, TaskProcessNotification, mock.Anything, mock.Anything).Return(true, nil).Once()

		w := postWebhook(newWebhookRouter(d), path, testSignature, batch(requestItem("psp-a", testOrder, "AUTHORISATION")))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, webhookAccepted, w.Body.String())
		d.queue.AssertExpectations(t)
	})
}
