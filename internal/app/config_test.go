package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uniedit/payrecon/internal/shared/config"
)

func TestValidateConfig(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Auth:     config.AuthConfig{JWTSecret: "secret"},
			Provider: config.ProviderConfig{StripeKey: "sk_test_123", WebhookSecret: "whsec_test"},
			Delivery: config.DeliveryConfig{MaxRetries: 5},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{name: "missing jwt secret", mutate: func(c *config.Config) { c.Auth.JWTSecret = "" }, wantErr: "auth.jwt_secret"},
		{name: "missing stripe key", mutate: func(c *config.Config) { c.Provider.StripeKey = "" }, wantErr: "provider.stripe_key"},
		{name: "missing webhook secret", mutate: func(c *config.Config) { c.Provider.WebhookSecret = "" }, wantErr: "provider.webhook_secret"},
		{name: "amqp without url", mutate: func(c *config.Config) { c.AMQP.Enabled = true }, wantErr: "amqp.url"},
		{name: "negative retries", mutate: func(c *config.Config) { c.Delivery.MaxRetries = -1 }, wantErr: "delivery.max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		err := validateConfig(&config.Config{})
		assert.Contains(t, err.Error(), "auth.jwt_secret")
		assert.Contains(t, err.Error(), "provider.stripe_key")
		assert.Contains(t, err.Error(), "provider.webhook_secret")
	})
}
