package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uniedit/payrecon/internal/module/payment/domain"
	"github.com/uniedit/payrecon/internal/shared/events"
	"github.com/uniedit/payrecon/internal/utils/requestctx"
	"go.uber.org/zap"
)

// TaskProcessNotification is the task type of queued notifications.
const TaskProcessNotification = "payment.process_notification"

// Task payload keys added next to the notification fields.
const (
	payloadLogID     = "log_id"
	payloadRequestID = "request_id"
)

// DeliveryOutcome is the result of handing a notification to the controller.
type DeliveryOutcome string

const (
	// OutcomeDropped means the notification needs no work of its own.
	OutcomeDropped DeliveryOutcome = "dropped"
	// OutcomeQueued means the notification was enqueued for the workers.
	OutcomeQueued DeliveryOutcome = "queued"
	// OutcomeCompleted means the notification was applied inline.
	OutcomeCompleted DeliveryOutcome = "completed"
	// OutcomeSkipped means processing stopped without effect: the retry bound
	// was reached or the correlated log is already done.
	OutcomeSkipped DeliveryOutcome = "skipped"
)

// DeliveryController is the entry point of provider notifications.
type DeliveryController struct {
	svc      *Service
	queue    TaskQueue
	attempts DeliveryAttemptStore
	logs     NotificationLogRepository
	logger   *zap.Logger
}

// NewDeliveryController creates a new notification delivery controller.
func NewDeliveryController(svc *Service, queue TaskQueue, attempts DeliveryAttemptStore, logs NotificationLogRepository) *DeliveryController {
	return &DeliveryController{
		svc:      svc,
		queue:    queue,
		attempts: attempts,
		logs:     logs,
		logger:   svc.logger.Named("delivery"),
	}
}

// Handle accepts one notification. It returns ErrRetryLater when another
// delivery of the same notification is still in flight.
func (c *DeliveryController) Handle(ctx context.Context, n *Notification) (DeliveryOutcome, error) {
	log := requestctx.Logger(ctx, c.logger).With(
		zap.String("order_reference", n.MerchantReference),
		zap.String("psp_reference", n.PspReference),
		zap.String("event_code", string(n.EventCode)),
		zap.Bool("success", n.Success),
	)

	if domain.IsTestNotification(n.PspReference, n.MerchantReference) {
		log.Debug("dropping test notification")
		c.record(n, OutcomeDropped)
		return OutcomeDropped, nil
	}
	if err := domain.ValidateOrderReference(n.MerchantReference); err != nil {
		return "", err
	}

	h, err := c.svc.loadHistory(ctx, n.MerchantReference)
	if err != nil && !errors.Is(err, domain.ErrHistoryNotFound) {
		return "", err
	}
	if domain.ShouldDrop(h, n.Key(), n.OriginalReference) {
		log.Debug("dropping duplicate notification")
		c.record(n, OutcomeDropped)
		return OutcomeDropped, nil
	}

	if c.svc.config.AsyncDelivery {
		queued, err := c.enqueue(ctx, n)
		if err != nil {
			return "", err
		}
		if !queued {
			log.Debug("notification already queued")
			c.record(n, OutcomeDropped)
			return OutcomeDropped, nil
		}
		log.Debug("notification queued")
		c.record(n, OutcomeQueued)
		return OutcomeQueued, nil
	}
	return c.deliver(ctx, n, log)
}

// enqueue logs n as queued and hands it to the task queue. When a pending task
// with the same attempt key absorbs it, the log entry is closed as merged.
func (c *DeliveryController) enqueue(ctx context.Context, n *Notification) (bool, error) {
	entry := NewNotificationLog(n, LogStatusQueued)
	if err := c.logs.Create(ctx, entry); err != nil {
		return false, fmt.Errorf("create notification log: %w", err)
	}
	payload := n.ToPayload()
	payload[payloadLogID] = entry.ID
	if id := requestctx.RequestID(ctx); id != "" {
		payload[payloadRequestID] = id
	}
	queued, err := c.queue.Enqueue(ctx, TaskProcessNotification, n.AttemptKey(), payload)
	if err != nil {
		return false, fmt.Errorf("enqueue notification: %w", err)
	}
	if !queued {
		if err := c.logs.UpdateStatus(ctx, entry.ID, LogStatusMerged, "pending task "+n.AttemptKey()+" already covers this notification"); err != nil {
			return false, fmt.Errorf("close merged notification log: %w", err)
		}
	}
	return queued, nil
}

// deliver runs the synchronous branch.
func (c *DeliveryController) deliver(ctx context.Context, n *Notification, log *zap.Logger) (DeliveryOutcome, error) {
	c.queue.Wake()

	attempt, err := c.attempts.Get(ctx, n.AttemptKey())
	if err != nil {
		return "", fmt.Errorf("get delivery attempt: %w", err)
	}
	if attempt.RetryCount >= c.svc.config.MaxDeliveryRetries {
		log.Warn("retry limit reached, giving up", zap.Int("retry_count", attempt.RetryCount))
		c.record(n, OutcomeSkipped)
		return OutcomeSkipped, nil
	}
	if attempt.LogID != "" {
		entry, err := c.logs.Get(ctx, attempt.LogID)
		if err != nil && !errors.Is(err, ErrNotificationLogNotFound) {
			return "", fmt.Errorf("get notification log: %w", err)
		}
		if entry != nil && entry.Status.IsDone() {
			c.record(n, OutcomeSkipped)
			return OutcomeSkipped, nil
		}
	}

	// Best effort only: two deliveries reading the attempt at the same time both proceed.
	now := c.svc.clock.Now()
	if attempt.InFlight(now, c.svc.config.InFlightWindow) {
		log.Info("notification in flight, asking to retry later")
		c.record(n, "retry_later")
		return "", ErrRetryLater
	}

	if attempt.LogID == "" {
		entry := NewNotificationLog(n, LogStatusProcessing)
		if err := c.logs.Create(ctx, entry); err != nil {
			return "", fmt.Errorf("create notification log: %w", err)
		}
		attempt.LogID = entry.ID
	} else if err := c.logs.UpdateStatus(ctx, attempt.LogID, LogStatusProcessing, ""); err != nil {
		return "", fmt.Errorf("update notification log: %w", err)
	}
	attempt.RetryCount++
	attempt.ProcessingStartedAt = now
	if err := c.attempts.Save(ctx, attempt); err != nil {
		return "", fmt.Errorf("save delivery attempt: %w", err)
	}

	runErr := c.requireOrder(ctx, n.MerchantReference)
	if runErr == nil {
		runErr = c.Execute(ctx, n)
	}

	attempt.ProcessingStartedAt = time.Time{}
	if err := c.attempts.Save(ctx, attempt); err != nil {
		log.Warn("failed to release delivery attempt", zap.Error(err))
	}
	if err := c.finishLog(ctx, attempt.LogID, runErr); err != nil {
		log.Warn("failed to update notification log", zap.Error(err))
	}

	if runErr != nil {
		log.Error("notification processing failed", zap.Int("retry_count", attempt.RetryCount), zap.Error(runErr))
		c.record(n, "failed")
		return "", runErr
	}
	c.record(n, OutcomeCompleted)
	return OutcomeCompleted, nil
}

func (c *DeliveryController) requireOrder(ctx context.Context, ref string) error {
	ok, err := c.svc.host.OrderExists(ctx, ref)
	if err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, ref)
	}
	return nil
}

func (c *DeliveryController) finishLog(ctx context.Context, id string, runErr error) error {
	if runErr != nil {
		return c.logs.UpdateStatus(ctx, id, LogStatusFailed, runErr.Error())
	}
	return c.logs.UpdateStatus(ctx, id, LogStatusCompleted, "")
}

// Process executes a queued notification. It is the task executor of
// TaskProcessNotification and may run more than once for the same payload.
func (c *DeliveryController) Process(ctx context.Context, payload map[string]any) error {
	n, err := NotificationFromPayload(payload)
	if err != nil {
		return err
	}
	logID, _ := payload[payloadLogID].(string)
	if id, _ := payload[payloadRequestID].(string); id != "" {
		ctx = requestctx.WithRequestID(ctx, id)
	}
	log := requestctx.Logger(ctx, c.logger).With(
		zap.String("order_reference", n.MerchantReference),
		zap.String("psp_reference", n.PspReference),
		zap.String("event_code", string(n.EventCode)),
	)

	if logID != "" {
		entry, err := c.logs.Get(ctx, logID)
		if err != nil && !errors.Is(err, ErrNotificationLogNotFound) {
			return fmt.Errorf("get notification log: %w", err)
		}
		if entry != nil && entry.Status.IsDone() {
			return nil
		}
		if err := c.logs.UpdateStatus(ctx, logID, LogStatusProcessing, ""); err != nil {
			log.Warn("failed to update notification log", zap.Error(err))
		}
	}

	runErr := c.awaitOrder(ctx, n.MerchantReference)
	if runErr == nil {
		runErr = c.Execute(ctx, n)
	}
	if logID != "" {
		if err := c.finishLog(ctx, logID, runErr); err != nil {
			log.Warn("failed to update notification log", zap.Error(err))
		}
	}
	if runErr != nil {
		c.record(n, "failed")
		return runErr
	}
	c.record(n, OutcomeCompleted)
	return nil
}

// awaitOrder polls the host until the order exists. Notifications may arrive
// before the shop has finished creating the order.
func (c *DeliveryController) awaitOrder(ctx context.Context, ref string) error {
	cfg := c.svc.config
	for i := 0; i < cfg.OrderPollAttempts; i++ {
		if i > 0 {
			if err := c.svc.clock.Sleep(ctx, cfg.OrderPollDelay); err != nil {
				return err
			}
		}
		ok, err := c.svc.host.OrderExists(ctx, ref)
		if err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempts: %s", ErrOrderNotFound, cfg.OrderPollAttempts, ref)
}

// Execute applies the notification to the order's history and propagates the
// resulting state to the host order.
func (c *DeliveryController) Execute(ctx context.Context, n *Notification) error {
	svc := c.svc
	ref := n.MerchantReference

	h, err := svc.loadOrCreateHistory(ctx, ref, n.Amount.Currency)
	if err != nil {
		return err
	}
	if domain.ShouldDrop(h, n.Key(), n.OriginalReference) {
		return nil
	}

	previousAuth := h.CurrentAuthReference()
	now := svc.clock.Now()
	occurred := now
	if n.EventDate != "" {
		if t, err := svc.clock.ParseDate(n.EventDate); err == nil {
			occurred = t
		}
	}

	t, err := h.TransitionFor(n.EventCode, n.Success, n.PspReference, n.Amount, now)
	if err != nil {
		return err
	}
	state := svc.resolver.Resolve(t)

	added, err := h.Add(domain.NewHistoryItem(domain.HistoryItemData{
		PspReference:      n.PspReference,
		MerchantReference: ref,
		EventCode:         n.EventCode,
		PaymentState:      state,
		OccurredAt:        occurred,
		Success:           n.Success,
		Amount:            n.Amount,
		PaymentMethod:     n.PaymentMethod,
		RiskScore:         n.RiskScore,
		Live:              n.Live,
		OriginalReference: n.OriginalReference,
		CapturePolicy:     h.CapturePolicy(),
	}))
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	if err := svc.saveHistory(ctx, h); err != nil {
		return err
	}

	if c.updatesOrder(h, n, t.Previous, state, previousAuth) {
		if status, ok := svc.statuses.StatusFor(state); ok {
			if err := svc.host.UpdateOrderStatus(ctx, ref, status); err != nil {
				return fmt.Errorf("update order status: %w", err)
			}
		}
	}
	if n.EventCode == domain.EventOrderClosed && n.Success && n.PspReference != h.CurrentAuthReference() {
		if err := svc.host.UpdateOrderPayment(ctx, ref, n.PspReference); err != nil {
			return fmt.Errorf("update order payment: %w", err)
		}
	}

	svc.publisher.Publish(events.NewNotificationProcessedEvent(
		ref, n.PspReference, string(n.EventCode), n.Success,
		string(t.Previous), string(state),
		n.Amount.Value, n.Amount.Currency,
	))
	c.logger.Info("notification applied",
		zap.String("order_reference", ref),
		zap.String("event_code", string(n.EventCode)),
		zap.String("previous_state", string(t.Previous)),
		zap.String("state", string(state)),
	)
	return nil
}

// updatesOrder reports whether the host order status follows this event. Plain
// authorizations leave the order to the checkout flow; a successful
// re-authorization of a failed or cancelled order does not.
func (c *DeliveryController) updatesOrder(h *domain.TransactionHistory, n *Notification, previous, state domain.PaymentState, previousAuth string) bool {
	if n.EventCode == domain.EventAuthorisation {
		return n.Success && n.PspReference != previousAuth &&
			(previous == domain.StateFailed || previous == domain.StateCancelled) &&
			state == domain.StatePaid
	}
	if n.EventCode == domain.EventCancellation &&
		c.svc.config.IgnoreCancellationForPartialPayments && h.OrderContainer() != nil {
		return false
	}
	return true
}

func (c *DeliveryController) record(n *Notification, outcome DeliveryOutcome) {
	c.svc.metrics.RecordNotification(string(n.EventCode), string(outcome))
}
