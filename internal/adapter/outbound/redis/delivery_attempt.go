package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uniedit/payrecon/internal/module/payment"
)

const (
	deliveryAttemptKeyPrefix = "payment:delivery:"
	// DefaultDeliveryAttemptTTL outlives the provider's redelivery schedule.
	DefaultDeliveryAttemptTTL = 72 * time.Hour
)

// attemptClient is the subset of redis commands the store needs.
type attemptClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// deliveryAttemptStore implements payment.DeliveryAttemptStore.
type deliveryAttemptStore struct {
	client attemptClient
	ttl    time.Duration
}

// NewDeliveryAttemptStore creates a redis-backed delivery attempt store.
// Attempts expire ttl after their last update.
func NewDeliveryAttemptStore(client redis.UniversalClient, ttl time.Duration) payment.DeliveryAttemptStore {
	return newDeliveryAttemptStore(client, ttl)
}

func newDeliveryAttemptStore(client attemptClient, ttl time.Duration) *deliveryAttemptStore {
	if ttl <= 0 {
		ttl = DefaultDeliveryAttemptTTL
	}
	return &deliveryAttemptStore{client: client, ttl: ttl}
}

func (s *deliveryAttemptStore) key(key string) string {
	return deliveryAttemptKeyPrefix + key
}

// Get returns the stored attempt, or a fresh one when none exists.
func (s *deliveryAttemptStore) Get(ctx context.Context, key string) (*payment.DeliveryAttempt, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &payment.DeliveryAttempt{Key: key}, nil
		}
		return nil, fmt.Errorf("get delivery attempt: %w", err)
	}

	var attempt payment.DeliveryAttempt
	if err := json.Unmarshal(data, &attempt); err != nil {
		return nil, fmt.Errorf("decode delivery attempt: %w", err)
	}
	attempt.Key = key
	return &attempt, nil
}

func (s *deliveryAttemptStore) Save(ctx context.Context, attempt *payment.DeliveryAttempt) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode delivery attempt: %w", err)
	}
	if err := s.client.Set(ctx, s.key(attempt.Key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save delivery attempt: %w", err)
	}
	return nil
}

// Compile-time check
var _ payment.DeliveryAttemptStore = (*deliveryAttemptStore)(nil)
