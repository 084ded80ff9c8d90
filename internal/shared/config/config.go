package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Task     TaskConfig     `mapstructure:"task"`
	Provider ProviderConfig `mapstructure:"provider"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// CORSOrigins restricts the admin API to these origins. Empty allows any.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	// SlowQueryThreshold logs statements slower than this. Zero disables it.
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AuthConfig holds authentication configuration of the admin API.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PaymentConfig holds the payment operation settings.
type PaymentConfig struct {
	CapturePolicy                        string        `mapstructure:"capture_policy"`
	CaptureDelay                         time.Duration `mapstructure:"capture_delay"`
	IgnoreCancellationForPartialPayments bool          `mapstructure:"ignore_cancellation_for_partial_payments"`
	// Capabilities overrides the capabilities of payment methods by name,
	// e.g. {"klarna": ["capture", "refund"]}.
	Capabilities map[string][]string `mapstructure:"capabilities"`
	// OrderStatuses overrides the host order status of payment states.
	OrderStatuses map[string]string `mapstructure:"order_statuses"`
}

// DeliveryConfig holds notification delivery settings.
type DeliveryConfig struct {
	Async             bool          `mapstructure:"async"`
	MaxRetries        int           `mapstructure:"max_retries"`
	InFlightWindow    time.Duration `mapstructure:"in_flight_window"`
	OrderPollAttempts int           `mapstructure:"order_poll_attempts"`
	OrderPollDelay    time.Duration `mapstructure:"order_poll_delay"`
	AttemptTTL        time.Duration `mapstructure:"attempt_ttl"`
}

// TaskConfig holds task queue settings.
type TaskConfig struct {
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	TaskTimeout     time.Duration `mapstructure:"task_timeout"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
	Retention       time.Duration `mapstructure:"retention"`
}

// ProviderConfig holds payment provider settings.
type ProviderConfig struct {
	StripeKey         string           `mapstructure:"stripe_key"`
	WebhookSecret     string           `mapstructure:"webhook_secret"`
	StripeBackendURL  string           `mapstructure:"stripe_backend_url"`
	MaxNetworkRetries int64            `mapstructure:"max_network_retries"`
	FailureThreshold  uint32           `mapstructure:"failure_threshold"`
	BreakerInterval   time.Duration    `mapstructure:"breaker_interval"`
	BreakerTimeout    time.Duration    `mapstructure:"breaker_timeout"`
	HTTPClient        HTTPClientConfig `mapstructure:"http_client"`
}

// HTTPClientConfig holds HTTP client configuration for connection pooling.
type HTTPClientConfig struct {
	// Connection pool settings
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`

	// Timeout settings
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
}

// AMQPConfig holds the event forwarding settings.
type AMQPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/payrecon")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Read from environment variables
	v.SetEnvPrefix("PAYRECON")
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if secret := os.Getenv("PAYRECON_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("PAYRECON_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("PAYRECON_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("PAYRECON_STRIPE_KEY"); key != "" {
		cfg.Provider.StripeKey = key
	}
	if secret := os.Getenv("PAYRECON_STRIPE_WEBHOOK_SECRET"); secret != "" {
		cfg.Provider.WebhookSecret = secret
	}
	if url := os.Getenv("PAYRECON_AMQP_URL"); url != "" {
		cfg.AMQP.URL = url
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "payrecon")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.slow_query_threshold", 200*time.Millisecond)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	// Auth defaults
	v.SetDefault("auth.issuer", "payrecon")

	// Payment defaults
	v.SetDefault("payment.capture_policy", "immediate")

	// Delivery defaults
	v.SetDefault("delivery.async", false)
	v.SetDefault("delivery.max_retries", 5)
	v.SetDefault("delivery.in_flight_window", 10*time.Second)
	v.SetDefault("delivery.order_poll_attempts", 5)
	v.SetDefault("delivery.order_poll_delay", 2*time.Second)
	v.SetDefault("delivery.attempt_ttl", 72*time.Hour)

	// Task defaults
	v.SetDefault("task.max_concurrent", 10)
	v.SetDefault("task.poll_interval", 5*time.Second)
	v.SetDefault("task.max_attempts", 5)
	v.SetDefault("task.retry_backoff", 30*time.Second)
	v.SetDefault("task.task_timeout", 2*time.Minute)
	v.SetDefault("task.stale_after", 10*time.Minute)
	v.SetDefault("task.cleanup_schedule", "@every 15m")
	v.SetDefault("task.retention", 7*24*time.Hour)

	// Provider defaults
	v.SetDefault("provider.max_network_retries", 2)
	v.SetDefault("provider.failure_threshold", 5)
	v.SetDefault("provider.breaker_interval", 60*time.Second)
	v.SetDefault("provider.breaker_timeout", 30*time.Second)
	v.SetDefault("provider.http_client.max_idle_conns", 20)
	v.SetDefault("provider.http_client.max_idle_conns_per_host", 10)
	v.SetDefault("provider.http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("provider.http_client.dial_timeout", 10*time.Second)
	v.SetDefault("provider.http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("provider.http_client.response_timeout", 30*time.Second)
	v.SetDefault("provider.http_client.keep_alive", 30*time.Second)

	// AMQP defaults
	v.SetDefault("amqp.enabled", false)
	v.SetDefault("amqp.exchange", "payment_events")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
