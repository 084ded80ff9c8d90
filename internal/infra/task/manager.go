package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/uniedit/payrecon/internal/utils/metrics"
	"go.uber.org/zap"
)

// Executor defines the function signature for task executors. A returned
// error schedules a retry until the attempts are exhausted.
type Executor func(ctx context.Context, task *Task) error

// Manager dispatches queued tasks to registered executors.
type Manager struct {
	mu sync.RWMutex

	repo      Repository
	executors map[string]Executor
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	// Configuration
	config *Config

	// Concurrency control
	semaphore chan struct{}
	wake      chan struct{}

	// Lifecycle
	janitor *cron.Cron
	cancel  context.CancelFunc
	stopCh  chan struct{}
	wg sync.WaitGroup
}

// Config contains manager configuration.
type Config struct {
	MaxConcurrent   int           `json:"max_concurrent" yaml:"max_concurrent" mapstructure:"max_concurrent"`
	PollInterval    time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryBackoff    time.Duration `json:"retry_backoff" yaml:"retry_backoff" mapstructure:"retry_backoff"`
	TaskTimeout     time.Duration `json:"task_timeout" yaml:"task_timeout" mapstructure:"task_timeout"`
	StaleAfter      time.Duration `json:"stale_after" yaml:"stale_after" mapstructure:"stale_after"`
	CleanupSchedule string        `json:"cleanup_schedule" yaml:"cleanup_schedule" mapstructure:"cleanup_schedule"`
	Retention       time.Duration `json:"retention" yaml:"retention" mapstructure:"retention"`
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent:   10,
		PollInterval:    5 * time.Second,
		MaxAttempts:     5,
		RetryBackoff:    30 * time.Second,
		TaskTimeout:     2 * time.Minute,
		StaleAfter:      10 * time.Minute,
		CleanupSchedule: "@every 15m",
		Retention:       7 * 24 * time.Hour,
	}
}

// NewManager creates a new task manager.
func NewManager(repo Repository, logger *zap.Logger, config *Config, m *metrics.Metrics) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		repo:      repo,
		executors: make(map[string]Executor),
		logger:    logger.Named("task-manager"),
		metrics:   m,
		now:       time.Now,
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrent),
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start recovers abandoned tasks, schedules the janitor and starts the dispatch loop.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("starting task manager",
		zap.Int("max_concurrent", m.config.MaxConcurrent),
		zap.Duration("poll_interval", m.config.PollInterval))

	// Nothing runs yet, so every running task was abandoned by a previous process.
	if n, err := m.repo.ResetStale(ctx, m.now()); err != nil {
		return fmt.Errorf("recover running tasks: %w", err)
	} else if n > 0 {
		m.logger.Info("recovered running tasks", zap.Int64("count", n))
	}

	m.janitor = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := m.janitor.AddFunc(m.config.CleanupSchedule, func() { m.Cleanup(context.Background()) }); err != nil {
		return fmt.Errorf("schedule task cleanup: %w", err)
	}
	m.janitor.Start()

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go m.loop(runCtx)
	return nil
}

// Stop stops the task manager gracefully. Running tasks are allowed to finish.
func (m *Manager) Stop() {
	m.logger.Info("stopping task manager")
	close(m.stopCh)
	if m.janitor != nil {
		<-m.janitor.Stop().Done()
	}
	m.wg.Wait()
	if m.cancel != nil {
		m.cancel()
	}
	m.logger.Info("task manager stopped")
}

// RegisterExecutor registers a task executor for a specific task type.
func (m *Manager) RegisterExecutor(taskType string, executor Executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executors[taskType] = executor
	m.logger.Debug("registered executor", zap.String("task_type", taskType))
}

// Enqueue stores a task for the workers and wakes the dispatcher. It reports
// false when an unfinished task with the same key absorbed the request.
func (m *Manager) Enqueue(ctx context.Context, taskType, key string, payload map[string]any) (bool, error) {
	task := newTask(taskType, key, payload, m.now())
	queued, err := m.repo.Enqueue(ctx, task)
	if err != nil {
		return false, err
	}
	if !queued {
		m.metrics.RecordTask(taskType, "merged")
		m.logger.Debug("task already pending",
			zap.String("task_type", taskType),
			zap.String("key", key))
		return false, nil
	}
	m.metrics.RecordTask(taskType, "queued")
	m.logger.Debug("task enqueued",
		zap.String("task_type", taskType),
		zap.String("key", key))
	m.Wake()
	return true, nil
}

// Wake asks the dispatcher to look for due tasks now. It never blocks.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
		case <-m.wake:
		}
		m.Dispatch(ctx)
	}
}

// Dispatch claims as many due tasks as there are free workers and starts them.
// It returns the number of tasks started.
func (m *Manager) Dispatch(ctx context.Context) int {
	free := cap(m.semaphore) - len(m.semaphore)
	if free <= 0 {
		return 0
	}

	tasks, err := m.repo.Claim(ctx, m.now(), free)
	if err != nil {
		m.logger.Error("failed to claim tasks", zap.Error(err))
		return 0
	}

	for _, task := range tasks {
		m.semaphore <- struct{}{}
		m.wg.Add(1)
		go func(t *Task) {
			defer m.wg.Done()
			defer func() { <-m.semaphore }()
			m.executeTask(ctx, t)
		}(task)
	}
	return len(tasks)
}

func (m *Manager) executeTask(ctx context.Context, task *Task) {
	log := m.logger.With(
		zap.String("task_id", task.ID.String()),
		zap.String("task_type", task.Type),
		zap.Int("attempt", task.Attempts))

	m.mu.RLock()
	executor, ok := m.executors[task.Type]
	m.mu.RUnlock()

	if !ok {
		m.failTask(ctx, task, &Error{Code: "unknown_task_type", Message: "no executor registered for task type: " + task.Type})
		return
	}

	err := m.run(ctx, executor, task)
	if err == nil {
		if err := m.repo.Complete(ctx, task.ID, m.now()); err != nil {
			log.Error("failed to complete task", zap.Error(err))
			return
		}
		m.metrics.RecordTask(task.Type, string(StatusCompleted))
		log.Debug("task completed")
		return
	}

	taskErr := &Error{Code: "execution_failed", Message: err.Error()}
	if task.Attempts >= m.config.MaxAttempts {
		m.failTask(ctx, task, taskErr)
		return
	}

	runAt := m.now().Add(m.backoff(task.Attempts))
	if err := m.repo.Retry(ctx, task.ID, runAt, taskErr); err != nil {
		log.Error("failed to reschedule task", zap.Error(err))
		return
	}
	m.metrics.RecordTask(task.Type, "retried")
	log.Warn("task failed, retrying", zap.Time("run_at", runAt), zap.Error(err))
}

// run executes with the task timeout and turns panics into errors.
func (m *Manager) run(ctx context.Context, executor Executor, task *Task) (err error) {
	if m.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.TaskTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return executor(ctx, task)
}

// backoff grows linearly with the attempt number.
func (m *Manager) backoff(attempt int) time.Duration {
	return m.config.RetryBackoff * time.Duration(attempt)
}

func (m *Manager) failTask(ctx context.Context, task *Task, taskErr *Error) {
	if err := m.repo.Fail(ctx, task.ID, m.now(), taskErr); err != nil {
		m.logger.Error("failed to mark task failed",
			zap.String("task_id", task.ID.String()),
			zap.Error(err))
		return
	}
	m.metrics.RecordTask(task.Type, string(StatusFailed))
	m.logger.Error("task failed",
		zap.String("task_id", task.ID.String()),
		zap.String("task_type", task.Type),
		zap.Int("attempts", task.Attempts),
		zap.String("error_code", taskErr.Code),
		zap.String("error_message", taskErr.Message))
}

// Cleanup requeues tasks stuck in running and purges old completed tasks.
func (m *Manager) Cleanup(ctx context.Context) {
	now := m.now()
	if n, err := m.repo.ResetStale(ctx, now.Add(-m.config.StaleAfter)); err != nil {
		m.logger.Error("failed to reset stale tasks", zap.Error(err))
	} else if n > 0 {
		m.logger.Warn("reset stale tasks", zap.Int64("count", n))
		m.Wake()
	}
	if n, err := m.repo.PurgeCompleted(ctx, now.Add(-m.config.Retention)); err != nil {
		m.logger.Error("failed to purge tasks", zap.Error(err))
	} else if n > 0 {
		m.logger.Info("purged completed tasks", zap.Int64("count", n))
	}
}
