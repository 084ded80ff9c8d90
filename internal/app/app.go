package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/uniedit/payrecon/internal/adapter/outbound/rabbitmq"
	redisstore "github.com/uniedit/payrecon/internal/adapter/outbound/redis"
	"github.com/uniedit/payrecon/internal/infra/events"
	"github.com/uniedit/payrecon/internal/infra/httpclient"
	"github.com/uniedit/payrecon/internal/infra/task"
	"github.com/uniedit/payrecon/internal/module/order"
	"github.com/uniedit/payrecon/internal/module/payment"
	"github.com/uniedit/payrecon/internal/module/payment/entity"
	paymentprovider "github.com/uniedit/payrecon/internal/module/payment/provider"
	sharedcache "github.com/uniedit/payrecon/internal/shared/cache"
	"github.com/uniedit/payrecon/internal/shared/config"
	"github.com/uniedit/payrecon/internal/shared/database"
	"github.com/uniedit/payrecon/internal/shared/logger"
	"github.com/uniedit/payrecon/internal/utils/metrics"
	"github.com/uniedit/payrecon/internal/utils/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App represents the application.
type App struct {
	config   *config.Config
	db       *gorm.DB
	redis    redis.UniversalClient
	router   *gin.Engine
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	jwt      *middleware.JWTManager

	// Event infrastructure
	eventBus *events.Bus
	producer rabbitmq.Publisher

	// Task queue
	taskManager *task.Manager

	// Modules
	orderService   *order.Service
	orderHandler   *order.Handler
	paymentService *payment.Service
	paymentHandler *payment.Handler
	webhookHandler *payment.WebhookHandler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := &App{
		config:   cfg,
		logger:   log,
		registry: registry,
		metrics:  metrics.New("payrecon", registry),
		jwt:      middleware.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
	}

	// Initialize database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db,
			&entity.TransactionHistoryEntity{},
			&payment.NotificationLog{},
			&task.Task{},
			&order.Order{},
			&order.Cart{},
		); err != nil {
			app.Stop()
			return nil, err
		}
	}

	// Redis backs delivery bookkeeping, so it is required.
	redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
	if err != nil {
		app.Stop()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	app.redis = redisClient

	// Initialize modules
	if err := app.initModules(); err != nil {
		app.Stop()
		return nil, fmt.Errorf("init modules: %w", err)
	}

	// Initialize router
	app.router = app.setupRouter()
	app.setupRoutes()

	// Start modules
	if err := app.taskManager.Start(context.Background()); err != nil {
		app.Stop()
		return nil, fmt.Errorf("start task manager: %w", err)
	}

	return app, nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	// Set Gin mode based on environment
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Apply global middleware
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(a.config.Server.CORSOrigins...)))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	return r
}

// initModules initializes all application modules.
func (a *App) initModules() error {
	// Initialize event bus for domain events
	a.eventBus = events.NewBus(a.logger)

	if err := a.initEventForwarding(); err != nil {
		return fmt.Errorf("init event forwarding: %w", err)
	}

	// Initialize order module
	a.orderService = order.NewService(order.NewRepository(a.db), a.logger)
	a.orderHandler = order.NewHandler(a.orderService)
	a.eventBus.Register(order.NewEventHandler(a.orderService, a.logger))

	// Initialize task queue
	a.taskManager = task.NewManager(task.NewRepository(a.db), a.logger, taskConfig(&a.config.Task), a.metrics)

	// Initialize payment module
	if err := a.initPaymentModule(); err != nil {
		return fmt.Errorf("init payment module: %w", err)
	}

	return nil
}

// initEventForwarding forwards payment events to the broker when enabled.
func (a *App) initEventForwarding() error {
	if !a.config.AMQP.Enabled {
		a.producer = rabbitmq.NoopPublisher{Logger: a.logger}
		return nil
	}

	producer, err := rabbitmq.NewProducer(a.config.AMQP.URL, a.logger)
	if err != nil {
		return err
	}
	a.producer = producer
	a.eventBus.Register(rabbitmq.NewForwarder(producer, a.config.AMQP.Exchange, a.logger))
	return nil
}

// initPaymentModule initializes the payment module.
func (a *App) initPaymentModule() error {
	paymentCfg, err := paymentConfig(a.config)
	if err != nil {
		return err
	}
	caps, err := capabilityTable(&a.config.Payment)
	if err != nil {
		return err
	}

	// Provider proxy behind a circuit breaker
	stripeProxy := paymentprovider.NewStripeProxy(&paymentprovider.StripeConfig{
		APIKey:            a.config.Provider.StripeKey,
		WebhookSecret:     a.config.Provider.WebhookSecret,
		BackendURL:        a.config.Provider.StripeBackendURL,
		MaxNetworkRetries: a.config.Provider.MaxNetworkRetries,
		HTTPClient:        httpclient.New(a.config.Provider.HTTPClient),
	})
	proxy := paymentprovider.NewBreakerProxy(stripeProxy.Name(), stripeProxy, breakerConfig(&a.config.Provider), a.metrics, a.logger)

	a.paymentService = payment.NewService(
		payment.NewRepository(a.db),
		proxy,
		a.orderService, // payment.OrderHostService
		a.eventBus,     // payment.EventPublisher
		nil,
		caps,
		payment.SystemClock(),
		paymentCfg,
		a.metrics,
		a.logger,
	)

	controller := payment.NewDeliveryController(
		a.paymentService,
		a.taskManager,
		redisstore.NewDeliveryAttemptStore(a.redis, a.config.Delivery.AttemptTTL),
		payment.NewNotificationLogRepository(a.db),
	)
	a.taskManager.RegisterExecutor(payment.TaskProcessNotification, func(ctx context.Context, t *task.Task) error {
		return controller.Process(ctx, t.Input)
	})

	a.paymentHandler = payment.NewHandler(a.paymentService)
	a.webhookHandler = payment.NewWebhookHandler(controller, stripeProxy)
	return nil
}

// setupRoutes registers all module routes.
func (a *App) setupRoutes() {
	// Webhook routes (provider-facing, authenticated by the batch signature)
	webhookRouter := a.router.Group("/webhooks")
	a.webhookHandler.RegisterRoutes(webhookRouter)

	// Admin routes
	v1 := a.router.Group("/api/v1")
	v1.Use(middleware.RequireAuth(a.jwt), middleware.RequireRole(middleware.RoleAdmin, middleware.RoleOperator))
	v1.Use(middleware.Idempotency(a.redis, middleware.DefaultIdempotencyConfig()))

	a.paymentHandler.RegisterRoutes(v1)
	a.orderHandler.RegisterRoutes(v1)
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Stop stops the application and releases resources.
func (a *App) Stop() {
	// Drain in-flight tasks first
	if a.taskManager != nil {
		a.taskManager.Stop()
	}

	if a.producer != nil {
		a.producer.Close()
	}

	// Sync zap logger
	if a.logger != nil {
		_ = a.logger.Sync()
	}

	// Close Redis connection
	if a.redis != nil {
		_ = a.redis.Close()
	}

	// Close database connection
	if a.db != nil {
		_ = database.Close(a.db)
	}
}
