// Package rabbitmq publishes payment events to a RabbitMQ topic exchange.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const dialTimeout = 10 * time.Second

// Publisher publishes one message body to an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	Close()
}

// Producer holds the RabbitMQ connection and channel for publishing messages.
type Producer struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]bool
	logger   *zap.Logger
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp url scheme must be amqp or amqps")
	}
	return clean, nil
}

// NewProducer dials RabbitMQ and opens a channel.
func NewProducer(rawURL string, logger *zap.Logger) (*Producer, error) {
	cleanURL, err := sanitizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return &Producer{
		conn:     conn,
		channel:  ch,
		declared: make(map[string]bool),
		logger:   logger.Named("rabbitmq"),
	}, nil
}

// Publish sends a persistent JSON message. A failed publish reopens the
// channel and is tried once more.
func (p *Producer) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.publish(ctx, exchange, routingKey, body)
	if err == nil {
		return nil
	}

	p.logger.Warn("publish failed, reopening channel",
		zap.String("exchange", exchange),
		zap.String("routing_key", routingKey),
		zap.Error(err))
	if reopenErr := p.reopen(); reopenErr != nil {
		return fmt.Errorf("reopen channel: %w", reopenErr)
	}
	return p.publish(ctx, exchange, routingKey, body)
}

func (p *Producer) publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	if !p.declared[exchange] {
		if err := p.channel.ExchangeDeclare(
			exchange, // name
			"topic",  // type
			true,     // durable
			false,    // autoDelete
			false,    // internal
			false,    // noWait
			nil,      // args
		); err != nil {
			return fmt.Errorf("declare exchange: %w", err)
		}
		p.declared[exchange] = true
	}

	return p.channel.PublishWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (p *Producer) reopen() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	p.channel = ch
	p.declared = make(map[string]bool)
	return nil
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// NoopPublisher drops every message. It stands in when forwarding is disabled.
type NoopPublisher struct {
	Logger *zap.Logger
}

func (p NoopPublisher) Publish(_ context.Context, exchange, routingKey string, _ []byte) error {
	if p.Logger != nil {
		p.Logger.Debug("publish skipped", zap.String("exchange", exchange), zap.String("routing_key", routingKey))
	}
	return nil
}

func (NoopPublisher) Close() {}

var (
	_ Publisher = (*Producer)(nil)
	_ Publisher = NoopPublisher{}
)
