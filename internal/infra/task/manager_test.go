package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uniedit/payrecon/internal/utils/metrics"
	"go.uber.org/zap"
)

// ===== Mock Implementations =====

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Enqueue(ctx context.Context, task *Task) (bool, error) {
	args := m.Called(ctx, task)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Task), args.Error(1)
}

func (m *MockRepository) Claim(ctx context.Context, now time.Time, limit int) ([]*Task, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Task), args.Error(1)
}

func (m *MockRepository) Complete(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockRepository) Retry(ctx context.Context, id uuid.UUID, runAt time.Time, taskErr *Error) error {
	args := m.Called(ctx, id, runAt, taskErr)
	return args.Error(0)
}

func (m *MockRepository) Fail(ctx context.Context, id uuid.UUID, at time.Time, taskErr *Error) error {
	args := m.Called(ctx, id, at, taskErr)
	return args.Error(0)
}

func (m *MockRepository) ResetStale(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) PurgeCompleted(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) CountByStatus(ctx context.Context, status Status) (int64, error) {
	args := m.Called(ctx, status)
	return args.Get(0).(int64), args.Error(1)
}

// ===== Fixtures =====

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const testType = "test.task"

func newTestManager(t *testing.T, config *Config) (*Manager, *MockRepository, *metrics.Metrics) {
	t.Helper()
	repo := new(MockRepository)
	m := metrics.New("test", prometheus.NewRegistry())
	mgr := NewManager(repo, zap.NewNop(), config, m)
	mgr.now = func() time.Time { return testNow }
	return mgr, repo, m
}

func claimedTask(attempts int) *Task {
	t := newTask(testType, "key-1", map[string]any{"n": 1}, testNow)
	t.Status = StatusRunning
	t.Attempts = attempts
	return t
}

func taskCount(m *metrics.Metrics, status string) float64 {
	return testutil.ToFloat64(m.TasksTotal.WithLabelValues(testType, status))
}

// ===== Tests =====

func TestManager_Enqueue(t *testing.T) {
	mgr, repo, m := newTestManager(t, nil)
	repo.On("Enqueue", mock.Anything, mock.MatchedBy(func(task *Task) bool {
		return task.Type == testType &&
			task.Key == "key-1" &&
			task.Status == StatusPending &&
			task.RunAt.Equal(testNow) &&
			task.Input["order"] == "order-1"
	})).Return(true, nil)

	queued, err := mgr.Enqueue(context.Background(), testType, "key-1", map[string]any{"order": "order-1"})
	require.NoError(t, err)
	assert.True(t, queued)

	repo.AssertExpectations(t)
	assert.Equal(t, float64(1), taskCount(m, "queued"))
	select {
	case <-mgr.wake:
	default:
		t.Fatal("expected dispatcher to be woken")
	}
}

func TestManager_EnqueueError(t *testing.T) {
	mgr, repo, m := newTestManager(t, nil)
	repo.On("Enqueue", mock.Anything, mock.Anything).Return(false, errors.New("db down"))

	_, err := mgr.Enqueue(context.Background(), testType, "key-1", nil)
	assert.Error(t, err)
	assert.Equal(t, float64(0), taskCount(m, "queued"))
}

func TestManager_EnqueueAbsorbedByPendingTask(t *testing.T) {
	mgr, repo, m := newTestManager(t, nil)
	repo.On("Enqueue", mock.Anything, mock.Anything).Return(false, nil)

	queued, err := mgr.Enqueue(context.Background(), testType, "key-1", nil)
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, float64(0), taskCount(m, "queued"))
	assert.Equal(t, float64(1), taskCount(m, "merged"))
	select {
	case <-mgr.wake:
		t.Fatal("dispatcher woken for an absorbed task")
	default:
	}
}

func TestManager_WakeNeverBlocks(t *testing.T) {
	mgr, _, _ := newTestManager(t, nil)
	mgr.Wake()
	mgr.Wake()
	assert.Len(t, mgr.wake, 1)
}

func TestManager_Dispatch(t *testing.T) {
	t.Run("completes successful task", func(t *testing.T) {
		mgr, repo, m := newTestManager(t, nil)
		task := claimedTask(1)
		repo.On("Claim", mock.Anything, testNow, 10).Return([]*Task{task}, nil)
		repo.On("Complete", mock.Anything, task.ID, testNow).Return(nil)

		var got map[string]any
		mgr.RegisterExecutor(testType, func(ctx context.Context, t *Task) error {
			got = t.Input
			return nil
		})

		assert.Equal(t, 1, mgr.Dispatch(context.Background()))
		mgr.wg.Wait()

		repo.AssertExpectations(t)
		assert.Equal(t, map[string]any{"n": 1}, got)
		assert.Equal(t, float64(1), taskCount(m, string(StatusCompleted)))
		assert.Len(t, mgr.semaphore, 0)
	})

	t.Run("retries with linear backoff", func(t *testing.T) {
		mgr, repo, m := newTestManager(t, nil)
		task := claimedTask(2)
		repo.On("Claim", mock.Anything, testNow, 10).Return([]*Task{task}, nil)
		repo.On("Retry", mock.Anything, task.ID, testNow.Add(60*time.Second), mock.MatchedBy(func(e *Error) bool {
			return e.Code == "execution_failed" && e.Message == "order not found"
		})).Return(nil)

		mgr.RegisterExecutor(testType, func(ctx context.Context, t *Task) error {
			return errors.New("order not found")
		})

		mgr.Dispatch(context.Background())
		mgr.wg.Wait()

		repo.AssertExpectations(t)
		assert.Equal(t, float64(1), taskCount(m, "retried"))
	})

	t.Run("fails after last attempt", func(t *testing.T) {
		mgr, repo, m := newTestManager(t, nil)
		task := claimedTask(5)
		repo.On("Claim", mock.Anything, testNow, 10).Return([]*Task{task}, nil)
		repo.On("Fail", mock.Anything, task.ID, testNow, mock.Anything).Return(nil)

		mgr.RegisterExecutor(testType, func(ctx context.Context, t *Task) error {
			return errors.New("boom")
		})

		mgr.Dispatch(context.Background())
		mgr.wg.Wait()

		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "Retry", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Equal(t, float64(1), taskCount(m, string(StatusFailed)))
	})

	t.Run("fails unknown task type", func(t *testing.T) {
		mgr, repo, _ := newTestManager(t, nil)
		task := claimedTask(1)
		repo.On("Claim", mock.Anything, testNow, 10).Return([]*Task{task}, nil)
		repo.On("Fail", mock.Anything, task.ID, testNow, mock.MatchedBy(func(e *Error) bool {
			return e.Code == "unknown_task_type"
		})).Return(nil)

		mgr.Dispatch(context.Background())
		mgr.wg.Wait()

		repo.AssertExpectations(t)
	})

	t.Run("recovers executor panic", func(t *testing.T) {
		mgr, repo, _ := newTestManager(t, nil)
		task := claimedTask(1)
		repo.On("Claim", mock.Anything, testNow, 10).Return([]*Task{task}, nil)
		repo.On("Retry", mock.Anything, task.ID, mock.Anything, mock.MatchedBy(func(e *Error) bool {
			return e.Message == "task panicked: bad payload"
		})).Return(nil)

		mgr.RegisterExecutor(testType, func(ctx context.Context, t *Task) error {
			panic("bad payload")
		})

		mgr.Dispatch(context.Background())
		mgr.wg.Wait()

		repo.AssertExpectations(t)
	})

	t.Run("claims only free slots", func(t *testing.T) {
		config := DefaultConfig()
		config.MaxConcurrent = 2
		mgr, repo, _ := newTestManager(t, config)
		mgr.semaphore <- struct{}{}
		repo.On("Claim", mock.Anything, testNow, 1).Return([]*Task{}, nil)

		assert.Equal(t, 0, mgr.Dispatch(context.Background()))
		repo.AssertExpectations(t)
	})

	t.Run("skips claim when saturated", func(t *testing.T) {
		config := DefaultConfig()
		config.MaxConcurrent = 1
		mgr, repo, _ := newTestManager(t, config)
		mgr.semaphore <- struct{}{}

		assert.Equal(t, 0, mgr.Dispatch(context.Background()))
		repo.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("claim error", func(t *testing.T) {
		mgr, repo, _ := newTestManager(t, nil)
		repo.On("Claim", mock.Anything, testNow, 10).Return(nil, errors.New("db down"))

		assert.Equal(t, 0, mgr.Dispatch(context.Background()))
	})
}

func TestManager_Cleanup(t *testing.T) {
	config := DefaultConfig()
	mgr, repo, _ := newTestManager(t, config)
	repo.On("ResetStale", mock.Anything, testNow.Add(-config.StaleAfter)).Return(int64(2), nil)
	repo.On("PurgeCompleted", mock.Anything, testNow.Add(-config.Retention)).Return(int64(10), nil)

	mgr.Cleanup(context.Background())

	repo.AssertExpectations(t)
	assert.Len(t, mgr.wake, 1)
}

func TestManager_StartStop(t *testing.T) {
	t.Run("recovers and stops", func(t *testing.T) {
		config := DefaultConfig()
		config.PollInterval = time.Hour
		mgr, repo, _ := newTestManager(t, config)
		repo.On("ResetStale", mock.Anything, testNow).Return(int64(1), nil)

		require.NoError(t, mgr.Start(context.Background()))
		mgr.Stop()

		repo.AssertExpectations(t)
	})

	t.Run("invalid cleanup schedule", func(t *testing.T) {
		config := DefaultConfig()
		config.CleanupSchedule = "not a schedule"
		mgr, repo, _ := newTestManager(t, config)
		repo.On("ResetStale", mock.Anything, testNow).Return(int64(0), nil)

		assert.Error(t, mgr.Start(context.Background()))
	})

	t.Run("recovery error", func(t *testing.T) {
		mgr, repo, _ := newTestManager(t, nil)
		repo.On("ResetStale", mock.Anything, testNow).Return(int64(0), errors.New("db down"))

		assert.Error(t, mgr.Start(context.Background()))
	})
}
