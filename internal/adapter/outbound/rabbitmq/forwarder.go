package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uniedit/payrecon/internal/infra/events"
	paymentevents "github.com/uniedit/payrecon/internal/shared/events"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

var routingKeys = map[string]string{
	paymentevents.NotificationProcessedType: "payment.notification.processed",
	paymentevents.OperationSucceededType:    "payment.operation.succeeded",
	paymentevents.OperationFailedType:       "payment.operation.failed",
}

// RoutingKey returns the routing key payment events of the given type are published with.
func RoutingKey(eventType string) string {
	if key, ok := routingKeys[eventType]; ok {
		return key
	}
	return "payment.event"
}

// Forwarder is an event bus handler that forwards payment events to an exchange.
type Forwarder struct {
	publisher Publisher
	exchange  string
	logger    *zap.Logger
}

// NewForwarder creates a forwarder publishing to exchange.
func NewForwarder(publisher Publisher, exchange string, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{
		publisher: publisher,
		exchange:  exchange,
		logger:    logger.Named("event-forwarder"),
	}
}

// Handles returns the payment event types.
func (f *Forwarder) Handles() []string {
	return paymentevents.PaymentEventTypes()
}

// Handle publishes the JSON form of the event.
func (f *Forwarder) Handle(event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	key := RoutingKey(event.EventType())
	if err := f.publisher.Publish(ctx, f.exchange, key, body); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType(), err)
	}
	f.logger.Debug("event forwarded",
		zap.String("event_id", event.EventID().String()),
		zap.String("routing_key", key))
	return nil
}

// Compile-time check
var _ events.Handler = (*Forwarder)(nil)
