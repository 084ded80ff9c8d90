package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uniedit/payrecon/internal/module/payment"
	"github.com/uniedit/payrecon/internal/module/payment/domain"
	"github.com/uniedit/payrecon/internal/utils/metrics"
)

// ===== Mock Implementations =====

type MockProxy struct {
	mock.Mock
}

func (m *MockProxy) result(args mock.Arguments) (*payment.ModificationResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ModificationResult), args.Error(1)
}

func (m *MockProxy) AdjustPayment(ctx context.Context, req payment.ModificationRequest) (*payment.ModificationResult, error) {
	return m.result(m.Called(ctx, req))
}

func (m *MockProxy) CapturePayment(ctx context.Context, req payment.ModificationRequest) (*payment.ModificationResult, error) {
	return m.result(m.Called(ctx, req))
}

func (m *MockProxy) RefundPayment(ctx context.Context, req payment.ModificationRequest) (*payment.ModificationResult, error) {
	return m.result(m.Called(ctx, req))
}

func (m *MockProxy) CancelPayment(ctx context.Context, req payment.ModificationRequest) (*payment.ModificationResult, error) {
	return m.result(m.Called(ctx, req))
}

func (m *MockProxy) CancelOrder(ctx context.Context, req payment.OrderCancelRequest) (*payment.ModificationResult, error) {
	return m.result(m.Called(ctx, req))
}

func newTestBreaker(next payment.ProviderProxy, threshold uint32) (*BreakerProxy, *metrics.Metrics) {
	m := metrics.New("test", prometheus.NewRegistry())
	config := &BreakerConfig{
		FailureThreshold:    threshold,
		Interval:            time.Minute,
		Timeout:             time.Minute,
		MaxHalfOpenRequests: 1,
	}
	return NewBreakerProxy("stripe", next, config, m, nil), m
}

func captureRequest() payment.ModificationRequest {
	return payment.ModificationRequest{
		MerchantReference: "order-1",
		PspReference:      "pi_1",
		Amount:            domain.NewAmount(1000, "EUR"),
		Reference:         "ref-1",
	}
}

// ===== Tests =====

func TestBreakerProxy_PassesResults(t *testing.T) {
	next := new(MockProxy)
	breaker, m := newTestBreaker(next, 3)

	req := captureRequest()
	next.On("CapturePayment", mock.Anything, req).
		Return(&payment.ModificationResult{Accepted: true, PspReference: "ch_1"}, nil)

	res, err := breaker.CapturePayment(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "ch_1", res.PspReference)
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProviderCallDuration))
	next.AssertExpectations(t)
}

func TestBreakerProxy_RejectionsDoNotTrip(t *testing.T) {
	next := new(MockProxy)
	breaker, _ := newTestBreaker(next, 2)

	req := captureRequest()
	next.On("RefundPayment", mock.Anything, req).
		Return(&payment.ModificationResult{Accepted: false, Status: "card_declined"}, nil)

	for i := 0; i < 5; i++ {
		res, err := breaker.RefundPayment(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, res.Accepted)
	}
	assert.Equal(t, gobreaker.StateClosed, breaker.State())
}

func TestBreakerProxy_WrapsPlainErrors(t *testing.T) {
	next := new(MockProxy)
	breaker, _ := newTestBreaker(next, 5)

	req := captureRequest()
	next.On("CancelPayment", mock.Anything, req).Return(nil, errors.New("connection reset"))

	_, err := breaker.CancelPayment(context.Background(), req)

	var perr *payment.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "cancel", perr.Operation)
	assert.True(t, payment.IsRetryable(err))
}

func TestBreakerProxy_OpensAfterConsecutiveFailures(t *testing.T) {
	next := new(MockProxy)
	breaker, m := newTestBreaker(next, 2)

	req := captureRequest()
	next.On("AdjustPayment", mock.Anything, req).
		Return(nil, payment.NewProviderError("adjust", errors.New("timeout"))).Twice()

	for i := 0; i < 2; i++ {
		_, err := breaker.AdjustPayment(context.Background(), req)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, breaker.State())
	assert.Equal(t, float64(gobreaker.StateOpen), testutil.ToFloat64(m.ProviderBreakerState.WithLabelValues("stripe")))

	_, err := breaker.AdjustPayment(context.Background(), req)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, err, payment.ErrTransientProvider)
	next.AssertNumberOfCalls(t, "AdjustPayment", 2)
}

func TestBreakerProxy_UnsupportedOperationDoesNotTrip(t *testing.T) {
	next := new(MockProxy)
	breaker, _ := newTestBreaker(next, 1)

	req := payment.OrderCancelRequest{MerchantReference: "order-1", OrderPspReference: "ord_1"}
	next.On("CancelOrder", mock.Anything, req).
		Return(nil, payment.NewProviderError("cancel_order", payment.ErrUnsupportedOperation))

	_, err := breaker.CancelOrder(context.Background(), req)
	require.ErrorIs(t, err, payment.ErrUnsupportedOperation)
	assert.Equal(t, gobreaker.StateClosed, breaker.State())
}
