package app

import (
	"fmt"

	"github.com/uniedit/payrecon/internal/infra/task"
	"github.com/uniedit/payrecon/internal/module/payment"
	"github.com/uniedit/payrecon/internal/module/payment/domain"
	"github.com/uniedit/payrecon/internal/module/payment/provider"
	"github.com/uniedit/payrecon/internal/shared/config"
)

// paymentConfig maps the payment and delivery sections onto the module settings.
func paymentConfig(cfg *config.Config) (*payment.Config, error) {
	policy, err := domain.ParseCapturePolicy(cfg.Payment.CapturePolicy)
	if err != nil {
		return nil, fmt.Errorf("payment.capture_policy %q: %w", cfg.Payment.CapturePolicy, err)
	}

	pc := payment.DefaultConfig()
	pc.CapturePolicy = policy
	pc.CaptureDelay = cfg.Payment.CaptureDelay
	pc.IgnoreCancellationForPartialPayments = cfg.Payment.IgnoreCancellationForPartialPayments
	pc.AsyncDelivery = cfg.Delivery.Async
	if cfg.Delivery.MaxRetries > 0 {
		pc.MaxDeliveryRetries = cfg.Delivery.MaxRetries
	}
	if cfg.Delivery.InFlightWindow > 0 {
		pc.InFlightWindow = cfg.Delivery.InFlightWindow
	}
	if cfg.Delivery.OrderPollAttempts > 0 {
		pc.OrderPollAttempts = cfg.Delivery.OrderPollAttempts
	}
	if cfg.Delivery.OrderPollDelay > 0 {
		pc.OrderPollDelay = cfg.Delivery.OrderPollDelay
	}

	for state, status := range cfg.Payment.OrderStatuses {
		pc.OrderStatuses[domain.PaymentState(state)] = status
	}
	return pc, nil
}

// capabilityTable applies the configured overrides to the default table.
func capabilityTable(cfg *config.PaymentConfig) (*domain.CapabilityTable, error) {
	table := domain.DefaultCapabilityTable()
	for method, names := range cfg.Capabilities {
		caps, ok := domain.ParseCapabilities(names)
		if !ok {
			return nil, fmt.Errorf("payment.capabilities.%s: unknown capability in %v", method, names)
		}
		table.Set(method, caps)
	}
	return table, nil
}

func taskConfig(cfg *config.TaskConfig) *task.Config {
	tc := task.DefaultConfig()
	if cfg.MaxConcurrent > 0 {
		tc.MaxConcurrent = cfg.MaxConcurrent
	}
	if cfg.PollInterval > 0 {
		tc.PollInterval = cfg.PollInterval
	}
	if cfg.MaxAttempts > 0 {
		tc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryBackoff > 0 {
		tc.RetryBackoff = cfg.RetryBackoff
	}
	if cfg.TaskTimeout > 0 {
		tc.TaskTimeout = cfg.TaskTimeout
	}
	if cfg.StaleAfter > 0 {
		tc.StaleAfter = cfg.StaleAfter
	}
	if cfg.CleanupSchedule != "" {
		tc.CleanupSchedule = cfg.CleanupSchedule
	}
	if cfg.Retention > 0 {
		tc.Retention = cfg.Retention
	}
	return tc
}

func breakerConfig(cfg *config.ProviderConfig) *provider.BreakerConfig {
	bc := provider.DefaultBreakerConfig()
	if cfg.FailureThreshold > 0 {
		bc.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.BreakerInterval > 0 {
		bc.Interval = cfg.BreakerInterval
	}
	if cfg.BreakerTimeout > 0 {
		bc.Timeout = cfg.BreakerTimeout
	}
	return bc
}
