package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uniedit/payrecon/internal/module/payment"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return redis.NewStringResult(args.String(0), args.Error(1))
}

func (m *MockClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return redis.NewStatusResult("OK", args.Error(0))
}

func TestDeliveryAttemptStore_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("missing attempt starts fresh", func(t *testing.T) {
		client := new(MockClient)
		client.On("Get", ctx, "payment:delivery:k1").Return("", redis.Nil)

		attempt, err := newDeliveryAttemptStore(client, time.Hour).Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, &payment.DeliveryAttempt{Key: "k1"}, attempt)
	})

	t.Run("decodes stored attempt", func(t *testing.T) {
		started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		stored, _ := json.Marshal(payment.DeliveryAttempt{RetryCount: 2, ProcessingStartedAt: started, LogID: "log-1"})
		client := new(MockClient)
		client.On("Get", ctx, "payment:delivery:k1").Return(string(stored), nil)

		attempt, err := newDeliveryAttemptStore(client, time.Hour).Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, "k1", attempt.Key)
		assert.Equal(t, 2, attempt.RetryCount)
		assert.True(t, attempt.ProcessingStartedAt.Equal(started))
		assert.Equal(t, "log-1", attempt.LogID)
	})

	t.Run("redis error", func(t *testing.T) {
		client := new(MockClient)
		client.On("Get", ctx, "payment:delivery:k1").Return("", errors.New("connection refused"))

		_, err := newDeliveryAttemptStore(client, time.Hour).Get(ctx, "k1")
		assert.Error(t, err)
	})

	t.Run("corrupt value", func(t *testing.T) {
		client := new(MockClient)
		client.On("Get", ctx, "payment:delivery:k1").Return("{", nil)

		_, err := newDeliveryAttemptStore(client, time.Hour).Get(ctx, "k1")
		assert.Error(t, err)
	})
}

func TestDeliveryAttemptStore_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("writes json with ttl", func(t *testing.T) {
		client := new(MockClient)
		client.On("Set", ctx, "payment:delivery:k1", mock.MatchedBy(func(v []byte) bool {
			var a payment.DeliveryAttempt
			return json.Unmarshal(v, &a) == nil && a.RetryCount == 1 && a.LogID == "log-1"
		}), time.Hour).Return(nil)

		err := newDeliveryAttemptStore(client, time.Hour).Save(ctx, &payment.DeliveryAttempt{Key: "k1", RetryCount: 1, LogID: "log-1"})
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("defaults ttl", func(t *testing.T) {
		client := new(MockClient)
		client.On("Set", ctx, "payment:delivery:k1", mock.Anything, DefaultDeliveryAttemptTTL).Return(nil)

		err := newDeliveryAttemptStore(client, 0).Save(ctx, &payment.DeliveryAttempt{Key: "k1"})
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("redis error", func(t *testing.T) {
		client := new(MockClient)
		client.On("Set", ctx, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("READONLY"))

		err := newDeliveryAttemptStore(client, time.Hour).Save(ctx, &payment.DeliveryAttempt{Key: "k1"})
		assert.Error(t, err)
	})
}
