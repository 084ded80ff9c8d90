package app

import (
	"errors"
	"fmt"

	"github.com/uniedit/payrecon/internal/shared/config"
)

// ErrInvalidConfig is returned when a required setting is missing.
var ErrInvalidConfig = errors.New("invalid configuration")

// LoadConfig loads application configuration and rejects settings the server
// cannot start with.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *config.Config) error {
	var errs []error
	if cfg.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("%w: auth.jwt_secret is required", ErrInvalidConfig))
	}
	if cfg.Provider.StripeKey == "" {
		errs = append(errs, fmt.Errorf("%w: provider.stripe_key is required", ErrInvalidConfig))
	}
	if cfg.Provider.WebhookSecret == "" {
		errs = append(errs, fmt.Errorf("%w: provider.webhook_secret is required", ErrInvalidConfig))
	}
	if cfg.AMQP.Enabled && cfg.AMQP.URL == "" {
		errs = append(errs, fmt.Errorf("%w: amqp.url is required when amqp is enabled", ErrInvalidConfig))
	}
	if cfg.Delivery.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: delivery.max_retries must not be negative", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}
