package asynq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

const (
	TypeTaskSubmit = "task:submit"

	queueName = "default"
)

// Manager asynq-backed ingestion queue. Dispatch retries are delegated to
// asynq's retry machinery; a handler error requeues with linear backoff.
type Manager struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector

	timeout  time.Duration
	maxRetry int
}

// NewManager creates the asynq queue provider.
func NewManager(cfg *config.Config) (*Manager, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				queueName: 10,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Second
			},
		},
	)

	return &Manager{
		client:    asynq.NewClient(redisOpt),
		server:    server,
		mux:       asynq.NewServeMux(),
		inspector: asynq.NewInspector(redisOpt),
		timeout:   time.Duration(cfg.Queue.TaskTimeout) * time.Second,
		maxRetry:  cfg.Queue.MaxRetry,
	}, nil
}

// EnqueueTask enqueues a task for dispatch.
func (m *Manager) EnqueueTask(ctx context.Context, task *model.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.TaskID(task.ID),
		asynq.Timeout(m.timeout),
		asynq.MaxRetry(m.maxRetry),
	}

	info, err := m.client.EnqueueContext(ctx, asynq.NewTask(TypeTaskSubmit, payload), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	logger.InfoCtx(ctx, "task enqueued, task_id: %s, queue: %s", task.ID, info.Queue)
	return nil
}

// Start begins consuming the queue, routing every submission through handler.
func (m *Manager) Start(handler interfaces.TaskHandler) error {
	m.mux.HandleFunc(TypeTaskSubmit, func(ctx context.Context, at *asynq.Task) error {
		var task model.Task
		if err := json.Unmarshal(at.Payload(), &task); err != nil {
			return fmt.Errorf("malformed task payload: %w", err)
		}
		return handler(ctx, &task)
	})

	logger.InfoCtx(context.Background(), "starting queue server")
	return m.server.Start(m.mux)
}

// Stop stops consumption; in-flight handlers drain first.
func (m *Manager) Stop() {
	logger.InfoCtx(context.Background(), "stopping queue server")
	m.server.Stop()
	m.server.Shutdown()
}

// GetTaskInfo retrieves queue-level task information.
func (m *Manager) GetTaskInfo(ctx context.Context, taskID string) (*interfaces.TaskInfo, error) {
	info, err := m.inspector.GetTaskInfo(queueName, taskID)
	if err != nil {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}

	return &interfaces.TaskInfo{
		ID:       info.ID,
		State:    mapState(info.State),
		MaxRetry: info.MaxRetry,
		Retried:  info.Retried,
		LastErr:  info.LastErr,
		Timeout:  info.Timeout,
	}, nil
}

// CancelTask removes a queued task.
func (m *Manager) CancelTask(ctx context.Context, taskID string) error {
	if err := m.inspector.DeleteTask(queueName, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	logger.InfoCtx(ctx, "task cancelled, task_id: %s", taskID)
	return nil
}

// GetPendingTaskCount retrieves the pending task count.
func (m *Manager) GetPendingTaskCount(ctx context.Context) (int, error) {
	stats, err := m.inspector.GetQueueInfo(queueName)
	if err != nil {
		return 0, err
	}
	return stats.Pending, nil
}

// Close closes the queue connections.
func (m *Manager) Close() error {
	if err := m.inspector.Close(); err != nil {
		return err
	}
	return m.client.Close()
}

func mapState(s asynq.TaskState) interfaces.TaskState {
	switch s {
	case asynq.TaskStateActive:
		return interfaces.TaskStateActive
	case asynq.TaskStateRetry:
		return interfaces.TaskStateRetry
	case asynq.TaskStateCompleted:
		return interfaces.TaskStateCompleted
	case asynq.TaskStateArchived:
		return interfaces.TaskStateFailed
	default:
		return interfaces.TaskStatePending
	}
}
