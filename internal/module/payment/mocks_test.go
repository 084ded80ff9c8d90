package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uniedit/payrecon/internal/infra/events"
	"github.com/uniedit/payrecon/internal/module/payment/domain"
)

// ===== Mock Implementations =====

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetTransactionHistory(ctx context.Context, orderReference string) (*domain.TransactionHistory, error) {
	args := m.Called(ctx, orderReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionHistory), args.Error(1)
}

func (m *MockRepository) SaveTransactionHistory(ctx context.Context, history *domain.TransactionHistory) error {
	args := m.Called(ctx, history)
	return args.Error(0)
}

type MockProxy struct {
	mock.Mock
}

func (m *MockProxy) result(args mock.Arguments) (*ModificationResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ModificationResult), args.Error(1)
}

func (m *MockProxy) AdjustPayment(ctx context.Context, req ModificationRequest) (*ModificationResult, error) {
	return m.result(m.Called(ctx, req))
}

func (m *MockProxy) CapturePayment(ctx context.Context, req ModificationRequest) (*ModificationResult, error) {
	return m.result(m.Called(ctx, req))
}

func (m *MockProxy) RefundPayment(ctx context.Context, req ModificationRequest) (*ModificationResult, error) {
	return m.result(m.Called(ctx, req))
}

func (m *MockProxy) CancelPayment(ctx context.Context, req ModificationRequest) (*ModificationResult, error) {
	return m.result(m.Called(ctx, req))
}

func (m *MockProxy) CancelOrder(ctx context.Context, req OrderCancelRequest) (*ModificationResult, error) {
	return m.result(m.Called(ctx, req))
}

type MockHost struct {
	mock.Mock
}

func (m *MockHost) CartExists(ctx context.Context, cartID string) (bool, error) {
	args := m.Called(ctx, cartID)
	return args.Bool(0), args.Error(1)
}

func (m *MockHost) OrderExists(ctx context.Context, orderReference string) (bool, error) {
	args := m.Called(ctx, orderReference)
	return args.Bool(0), args.Error(1)
}

func (m *MockHost) UpdateOrderStatus(ctx context.Context, orderReference, status string) error {
	args := m.Called(ctx, orderReference, status)
	return args.Error(0)
}

func (m *MockHost) UpdateOrderPayment(ctx context.Context, orderReference, pspReference string) error {
	args := m.Called(ctx, orderReference, pspReference)
	return args.Error(0)
}

func (m *MockHost) OrderTotal(ctx context.Context, orderReference string) (domain.Amount, error) {
	args := m.Called(ctx, orderReference)
	return args.Get(0).(domain.Amount), args.Error(1)
}

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, taskType, key string, payload map[string]any) (bool, error) {
	args := m.Called(ctx, taskType, key, payload)
	return args.Bool(0), args.Error(1)
}

func (m *MockQueue) Wake() {
	m.Called()
}

type MockAttemptStore struct {
	mock.Mock
}

func (m *MockAttemptStore) Get(ctx context.Context, key string) (*DeliveryAttempt, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DeliveryAttempt), args.Error(1)
}

func (m *MockAttemptStore) Save(ctx context.Context, attempt *DeliveryAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

type MockLogRepository struct {
	mock.Mock
}

func (m *MockLogRepository) Create(ctx context.Context, log *NotificationLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockLogRepository) Get(ctx context.Context, id string) (*NotificationLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*NotificationLog), args.Error(1)
}

func (m *MockLogRepository) UpdateStatus(ctx context.Context, id string, status LogStatus, message string) error {
	args := m.Called(ctx, id, status, message)
	return args.Error(0)
}

// recordingPublisher keeps published events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// fakeClock is a Clock frozen at now. Sleep advances it.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) ParseDate(value string) (time.Time, error) { return parseDate(value) }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps++
	c.now = c.now.Add(d)
	return ctx.Err()
}

// ===== Fixtures =====

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const testOrder = "order-1"

type testDeps struct {
	repo      *MockRepository
	proxy     *MockProxy
	host      *MockHost
	publisher *recordingPublisher
	clock     *fakeClock
	config    *Config
	svc       *Service
}

func newTestService(t *testing.T) *testDeps {
	t.Helper()
	d := &testDeps{
		repo:      new(MockRepository),
		proxy:     new(MockProxy),
		host:      new(MockHost),
		publisher: &recordingPublisher{},
		clock:     &fakeClock{now: testNow},
		config:    DefaultConfig(),
	}
	d.config.CapturePolicy = domain.CaptureManual
	d.svc = NewService(d.repo, d.proxy, d.host, d.publisher, nil, nil, d.clock, d.config, nil, nil)
	return d
}

// newHistory returns an empty manual-capture history of testOrder.
func newHistory(t *testing.T) *domain.TransactionHistory {
	t.Helper()
	h, err := domain.NewTransactionHistory(testOrder, domain.CaptureManual, 0, "EUR")
	require.NoError(t, err)
	return h
}

func addItem(t *testing.T, h *domain.TransactionHistory, d domain.HistoryItemData) {
	t.Helper()
	if d.MerchantReference == "" {
		d.MerchantReference = h.OrderReference()
	}
	if d.OccurredAt.IsZero() {
		d.OccurredAt = testNow
	}
	if d.Amount.Currency == "" {
		d.Amount.Currency = "EUR"
	}
	added, err := h.Add(domain.NewHistoryItem(d))
	require.NoError(t, err)
	require.True(t, added)
}

func authorize(t *testing.T, h *domain.TransactionHistory, psp, method string, value int64) {
	t.Helper()
	addItem(t, h, domain.HistoryItemData{
		PspReference:  psp,
		EventCode:     domain.EventAuthorisation,
		Success:       true,
		PaymentState:  domain.StateAuthorized,
		Amount:        domain.NewAmount(value, "EUR"),
		PaymentMethod: method,
	})
}

func eur(value int64) domain.Amount {
	return domain.NewAmount(value, "EUR")
}

func (d *testDeps) expectHistory(h *domain.TransactionHistory) {
	d.repo.On("GetTransactionHistory", mock.Anything, h.OrderReference()).Return(h, nil)
}

func (d *testDeps) expectSave() {
	d.repo.On("SaveTransactionHistory", mock.Anything, mock.Anything).Return(nil)
}

func accepted(psp string) *ModificationResult {
	return &ModificationResult{Accepted: true, PspReference: psp, Status: "received"}
}

func forLeg(psp string, value int64) interface{} {
	return mock.MatchedBy(func(req ModificationRequest) bool {
		return req.PspReference == psp && req.Amount.Value == value && req.MerchantReference == testOrder && req.Reference != ""
	})
}
