package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uniedit/payrecon/internal/module/payment"
	"github.com/uniedit/payrecon/internal/module/payment/domain"
	"github.com/uniedit/payrecon/internal/shared/config"
)

func TestPaymentConfig(t *testing.T) {
	t.Run("maps sections", func(t *testing.T) {
		cfg := &config.Config{
			Payment: config.PaymentConfig{
				CapturePolicy:                        "Delayed",
				CaptureDelay:                         48 * time.Hour,
				IgnoreCancellationForPartialPayments: true,
				OrderStatuses:                        map[string]string{"authorized": "on-hold"},
			},
			Delivery: config.DeliveryConfig{Async: true, MaxRetries: 3, InFlightWindow: 30 * time.Second},
		}

		pc, err := paymentConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, domain.CaptureDelayed, pc.CapturePolicy)
		assert.Equal(t, 48*time.Hour, pc.CaptureDelay)
		assert.True(t, pc.IgnoreCancellationForPartialPayments)
		assert.True(t, pc.AsyncDelivery)
		assert.Equal(t, 3, pc.MaxDeliveryRetries)
		assert.Equal(t, 30*time.Second, pc.InFlightWindow)
		assert.Equal(t, 5, pc.OrderPollAttempts)
		assert.Equal(t, "on-hold", pc.OrderStatuses[domain.StateAuthorized])
		assert.Equal(t, payment.OrderStatusPaid, pc.OrderStatuses[domain.StatePaid])
	})

	t.Run("rejects unknown capture policy", func(t *testing.T) {
		_, err := paymentConfig(&config.Config{Payment: config.PaymentConfig{CapturePolicy: "sometimes"}})
		assert.ErrorIs(t, err, domain.ErrUnknownCapturePolicy)
	})
}

func TestCapabilityTable(t *testing.T) {
	t.Run("overrides method", func(t *testing.T) {
		table, err := capabilityTable(&config.PaymentConfig{
			Capabilities: map[string][]string{"Klarna": {"refund"}},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.CapRefund, table.Lookup("klarna"))
		assert.Equal(t, domain.CapAll, table.Lookup("visa"))
	})

	t.Run("rejects unknown capability", func(t *testing.T) {
		_, err := capabilityTable(&config.PaymentConfig{
			Capabilities: map[string][]string{"klarna": {"teleport"}},
		})
		assert.Error(t, err)
	})
}

func TestTaskConfig(t *testing.T) {
	tc := taskConfig(&config.TaskConfig{MaxAttempts: 8, CleanupSchedule: "@hourly"})
	assert.Equal(t, 8, tc.MaxAttempts)
	assert.Equal(t, "@hourly", tc.CleanupSchedule)
	assert.Equal(t, 10, tc.MaxConcurrent)
}

func TestBreakerConfig(t *testing.T) {
	bc := breakerConfig(&config.ProviderConfig{FailureThreshold: 3})
	assert.Equal(t, uint32(3), bc.FailureThreshold)
	assert.Equal(t, 30*time.Second, bc.Timeout)
}
