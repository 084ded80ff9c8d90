package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/uniedit/payrecon/internal/module/payment"
	"github.com/uniedit/payrecon/internal/utils/metrics"
	"go.uber.org/zap"
)

// BreakerConfig contains circuit breaker configuration.
type BreakerConfig struct {
	FailureThreshold    uint32
	Interval            time.Duration
	Timeout             time.Duration
	MaxHalfOpenRequests uint32
}

// DefaultBreakerConfig returns the default circuit breaker configuration.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold:    5,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// BreakerProxy guards a ProviderProxy with a circuit breaker. Only provider
// errors count as failures; rejections are regular answers.
type BreakerProxy struct {
	name    string
	next    payment.ProviderProxy
	breaker *gobreaker.CircuitBreaker[*payment.ModificationResult]
	metrics *metrics.Metrics
	logger  *zap.Logger
}

var _ payment.ProviderProxy = (*BreakerProxy)(nil)

// NewBreakerProxy wraps next.
func NewBreakerProxy(name string, next payment.ProviderProxy, config *BreakerConfig, m *metrics.Metrics, logger *zap.Logger) *BreakerProxy {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &BreakerProxy{
		name:    name,
		next:    next,
		metrics: m,
		logger:  logger.Named("provider").With(zap.String("provider", name)),
	}
	threshold := config.FailureThreshold
	p.breaker = gobreaker.NewCircuitBreaker[*payment.ModificationResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxHalfOpenRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, payment.ErrUnsupportedOperation)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			p.metrics.SetBreakerState(name, int(to))
		},
	})
	m.SetBreakerState(name, int(gobreaker.StateClosed))
	return p
}

// State returns the current breaker state.
func (p *BreakerProxy) State() gobreaker.State {
	return p.breaker.State()
}

func (p *BreakerProxy) CapturePayment(ctx context.Context, req payment.ModificationRequest) (*payment.ModificationResult, error) {
	return p.call(ctx, "capture", req, p.next.CapturePayment)
}

func (p *BreakerProxy) RefundPayment(ctx context.Context, req payment.ModificationRequest) (*payment.ModificationResult, error) {
	return p.call(ctx, "refund", req, p.next.RefundPayment)
}

func (p *BreakerProxy) CancelPayment(ctx context.Context, req payment.ModificationRequest) (*payment.ModificationResult, error) {
	return p.call(ctx, "cancel", req, p.next.CancelPayment)
}

func (p *BreakerProxy) AdjustPayment(ctx context.Context, req payment.ModificationRequest) (*payment.ModificationResult, error) {
	return p.call(ctx, "adjust", req, p.next.AdjustPayment)
}

func (p *BreakerProxy) CancelOrder(ctx context.Context, req payment.OrderCancelRequest) (*payment.ModificationResult, error) {
	return p.execute("cancel_order", func() (*payment.ModificationResult, error) {
		return p.next.CancelOrder(ctx, req)
	})
}

func (p *BreakerProxy) call(
	ctx context.Context,
	operation string,
	req payment.ModificationRequest,
	fn func(context.Context, payment.ModificationRequest) (*payment.ModificationResult, error),
) (*payment.ModificationResult, error) {
	return p.execute(operation, func() (*payment.ModificationResult, error) {
		return fn(ctx, req)
	})
}

func (p *BreakerProxy) execute(operation string, fn func() (*payment.ModificationResult, error)) (*payment.ModificationResult, error) {
	start := time.Now()
	res, err := p.breaker.Execute(fn)
	p.metrics.RecordProviderCall(p.name, operation, time.Since(start))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		p.logger.Warn("provider call short-circuited", zap.String("operation", operation))
		return nil, payment.NewProviderError(operation, err)
	}
	if err != nil {
		var perr *payment.ProviderError
		if !errors.As(err, &perr) {
			err = payment.NewProviderError(operation, err)
		}
		return nil, err
	}
	return res, nil
}
