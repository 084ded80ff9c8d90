package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uniedit/payrecon/internal/module/payment/domain"
	"github.com/uniedit/payrecon/internal/shared/events"
	"github.com/uniedit/payrecon/internal/utils/metrics"
	"go.uber.org/zap"
)

// Operation results reported to metrics.
const (
	resultSuccess  = "success"
	resultRejected = "rejected"
	resultError    = "error"
)

// Service implements the payment operations on top of the transaction history.
type Service struct {
	repo      Repository
	proxy     ProviderProxy
	host      OrderHostService
	publisher EventPublisher
	resolver  *domain.Resolver
	caps      *domain.CapabilityTable
	statuses  *OrderStatusMapper
	clock     Clock
	config    *Config
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewService creates a new payment service.
func NewService(
	repo Repository,
	proxy ProviderProxy,
	host OrderHostService,
	publisher EventPublisher,
	resolver *domain.Resolver,
	caps *domain.CapabilityTable,
	clock Clock,
	config *Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	if resolver == nil {
		resolver = domain.NewDefaultResolver()
	}
	if caps == nil {
		caps = domain.DefaultCapabilityTable()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		proxy:     proxy,
		host:      host,
		publisher: publisher,
		resolver:  resolver,
		caps:      caps,
		statuses:  NewOrderStatusMapper(config.OrderStatuses),
		clock:     clock,
		config:    config,
		metrics:   m,
		logger:    logger.Named("payment"),
	}
}

// ===== History access =====

// loadHistory returns the history of ref or domain.ErrHistoryNotFound.
func (s *Service) loadHistory(ctx context.Context, ref string) (*domain.TransactionHistory, error) {
	if err := domain.ValidateOrderReference(ref); err != nil {
		return nil, err
	}
	h, err := s.repo.GetTransactionHistory(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrHistoryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get transaction history: %w", err)
	}
	return h, nil
}

// loadOrCreateHistory seeds a new history from the current settings when ref has none.
func (s *Service) loadOrCreateHistory(ctx context.Context, ref, currency string) (*domain.TransactionHistory, error) {
	h, err := s.loadHistory(ctx, ref)
	if errors.Is(err, domain.ErrHistoryNotFound) {
		return domain.NewTransactionHistory(ref, s.config.CapturePolicy, s.config.CaptureDelay, currency)
	}
	return h, err
}

func (s *Service) saveHistory(ctx context.Context, h *domain.TransactionHistory) error {
	if err := s.repo.SaveTransactionHistory(ctx, h); err != nil {
		return fmt.Errorf("save transaction history: %w", err)
	}
	return nil
}

// GetHistory returns the transaction history of an order.
func (s *Service) GetHistory(ctx context.Context, ref string) (*domain.TransactionHistory, error) {
	return s.loadHistory(ctx, ref)
}

// Summarize derives the amounts of h at the current time.
func (s *Service) Summarize(h *domain.TransactionHistory) (*HistorySummary, error) {
	now := s.clock.Now()
	captured, err := h.CapturedAmount(now)
	if err != nil {
		return nil, err
	}
	capturable, err := h.CapturableAmount(now)
	if err != nil {
		return nil, err
	}
	authorized, err := captured.Add(capturable)
	if err != nil {
		return nil, err
	}
	refunded, err := h.RefundedAmount()
	if err != nil {
		return nil, err
	}
	return &HistorySummary{
		State:      h.LastState(),
		Authorized: authorized,
		Captured:   captured,
		Capturable: capturable,
		Refunded:   refunded,
	}, nil
}

// HistorySummary holds the amounts derived from a history.
type HistorySummary struct {
	State      domain.PaymentState
	Authorized domain.Amount
	Captured   domain.Amount
	Capturable domain.Amount
	Refunded   domain.Amount
}

// ===== Ledger =====

// entry describes a ledger item about to be appended.
type entry struct {
	code          domain.EventCode
	success       bool
	psp           string
	original      string
	amount        domain.Amount
	paymentMethod string
	state         domain.PaymentState // overrides the resolved state when set
}

// apply resolves the state caused by e and appends it to h. It returns the
// previous and new states and whether the ledger changed.
func (s *Service) apply(h *domain.TransactionHistory, e entry) (domain.PaymentState, domain.PaymentState, bool, error) {
	now := s.clock.Now()
	amount := e.amount
	if amount.Currency == "" {
		amount.Currency = h.Currency()
	}

	t, err := h.TransitionFor(e.code, e.success, e.psp, amount, now)
	if err != nil {
		return "", "", false, err
	}
	state := e.state
	if state == "" {
		state = s.resolver.Resolve(t)
	}

	added, err := h.Add(domain.NewHistoryItem(domain.HistoryItemData{
		PspReference:      e.psp,
		MerchantReference: h.OrderReference(),
		EventCode:         e.code,
		PaymentState:      state,
		OccurredAt:        now,
		Success:           e.success,
		Amount:            amount,
		PaymentMethod:     e.paymentMethod,
		Live:              h.Live(),
		OriginalReference: e.original,
		CapturePolicy:     h.CapturePolicy(),
	}))
	if err != nil {
		return "", "", false, err
	}
	return t.Previous, state, added, nil
}

// ===== Provider calls =====

type proxyCall func(ctx context.Context, req ModificationRequest) (*ModificationResult, error)

// modify sends one modification for a leg and records the attempt in h.
// Provider errors are recorded as failed attempts and returned as *ProviderError.
// An attempt is recorded under the provider's modification reference, or under
// the request reference when the provider echoes the leg reference back.
func (s *Service) modify(ctx context.Context, h *domain.TransactionHistory, operation string, code domain.EventCode, leg domain.LegAmount, call proxyCall) (bool, error) {
	req := ModificationRequest{
		MerchantReference: h.OrderReference(),
		PspReference:      leg.PspReference,
		Amount:            leg.Amount,
		Reference:         uuid.NewString(),
	}

	log := s.logger.With(
		zap.String("order_reference", h.OrderReference()),
		zap.String("operation", operation),
		zap.String("psp_reference", leg.PspReference),
		zap.String("amount", leg.Amount.String()),
	)

	res, err := call(ctx, req)
	if err != nil {
		var perr *ProviderError
		if !errors.As(err, &perr) {
			err = NewProviderError(operation, err)
		}
		log.Warn("provider call failed", zap.Error(err))
		if _, _, _, aerr := s.apply(h, entry{
			code:          code,
			success:       false,
			psp:           req.Reference,
			original:      leg.PspReference,
			amount:        leg.Amount,
			paymentMethod: leg.PaymentMethod,
			state:         h.LastState(),
		}); aerr != nil {
			log.Error("failed to record failed attempt", zap.Error(aerr))
		}
		s.publishFailed(h.OrderReference(), operation, leg.PspReference, err)
		s.metrics.RecordOperation(operation, resultError)
		return false, err
	}

	psp := res.PspReference
	if psp == "" || psp == leg.PspReference {
		psp = req.Reference
	}
	_, _, added, err := s.apply(h, entry{
		code:          code,
		success:       res.Accepted,
		psp:           psp,
		original:      leg.PspReference,
		amount:        leg.Amount,
		paymentMethod: leg.PaymentMethod,
	})
	if err != nil {
		return false, err
	}
	if !added {
		log.Error("modification reference already recorded", zap.String("modification_reference", psp))
		s.metrics.RecordOperation(operation, resultError)
		return false, fmt.Errorf("%w: %s", ErrModificationNotRecorded, psp)
	}

	if !res.Accepted {
		log.Info("provider rejected modification", zap.String("status", res.Status))
		s.publisher.Publish(events.NewOperationFailedEvent(h.OrderReference(), operation, psp, "", res.Status))
		s.metrics.RecordOperation(operation, resultRejected)
		return false, nil
	}

	log.Info("provider accepted modification", zap.String("modification_reference", psp))
	s.publisher.Publish(events.NewOperationSucceededEvent(h.OrderReference(), operation, psp, leg.Amount.Value, leg.Amount.Currency))
	s.metrics.RecordOperation(operation, resultSuccess)
	return true, nil
}

// modifyAll runs modify for every leg of plan and persists h once. It stops at
// the first provider error.
func (s *Service) modifyAll(ctx context.Context, h *domain.TransactionHistory, operation string, code domain.EventCode, plan []domain.LegAmount, call proxyCall) (bool, error) {
	ok := true
	var callErr error
	for _, leg := range plan {
		accepted, err := s.modify(ctx, h, operation, code, leg, call)
		if err != nil {
			ok, callErr = false, err
			break
		}
		ok = ok && accepted
	}
	if err := s.saveHistory(ctx, h); err != nil {
		return false, err
	}
	if callErr != nil {
		return false, callErr
	}
	return ok, nil
}

// attempt describes the operation a caller asked for.
type attempt struct {
	operation string
	code      domain.EventCode
	psp       string // leg named by the caller, if any
	amount    domain.Amount
}

// reject refuses a, publishes the failure and returns err. When the history
// was loaded the refusal is kept in it as a failed entry that leaves the
// payment state unchanged.
func (s *Service) reject(ctx context.Context, ref string, h *domain.TransactionHistory, a attempt, err error) error {
	s.publishFailed(ref, a.operation, a.psp, err)
	s.metrics.RecordOperation(a.operation, resultRejected)
	if h == nil {
		return err
	}

	original := a.psp
	if original == "" {
		original = h.CurrentAuthReference()
	}
	amount := a.amount
	if !amount.IsPositive() || amount.Currency != h.Currency() {
		amount = domain.NewAmount(0, h.Currency())
	}
	log := s.logger.With(
		zap.String("order_reference", ref),
		zap.String("operation", a.operation),
		zap.NamedError("reason", err),
	)
	if _, _, _, aerr := s.apply(h, entry{
		code:     a.code,
		success:  false,
		psp:      uuid.NewString(),
		original: original,
		amount:   amount,
		state:    h.LastState(),
	}); aerr != nil {
		log.Error("failed to record rejected operation", zap.Error(aerr))
		return err
	}
	if serr := s.saveHistory(ctx, h); serr != nil {
		log.Error("failed to save rejected operation", zap.Error(serr))
	}
	return err
}

func (s *Service) publishFailed(ref, operation, psp string, err error) {
	s.publisher.Publish(events.NewOperationFailedEvent(ref, operation, psp, domain.MessageKey(err), err.Error()))
}
