package interfaces

import (
	"context"
	"time"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
)

// TaskHandler consumes one queued task. Returning an error requeues the
// task subject to the provider's retry policy.
type TaskHandler func(ctx context.Context, task *model.Task) error

// QueueProvider work ingestion queue
// Supports multiple implementations: asynq (Redis-backed), plain Redis list.
type QueueProvider interface {
	// EnqueueTask enqueues a task
	EnqueueTask(ctx context.Context, task *model.Task) error

	// Start begins consuming the queue, routing every task through handler
	Start(handler TaskHandler) error

	// Stop halts consumption; in-flight handlers finish first
	Stop()

	// GetTaskInfo retrieves task information
	GetTaskInfo(ctx context.Context, taskID string) (*TaskInfo, error)

	// CancelTask cancels a queued task
	CancelTask(ctx context.Context, taskID string) error

	// GetPendingTaskCount retrieves pending task count
	GetPendingTaskCount(ctx context.Context) (int, error)

	// Close closes queue connection
	Close() error
}

// TaskInfo task information (queue level)
type TaskInfo struct {
	ID       string        `json:"id"`
	State    TaskState     `json:"state"`
	MaxRetry int           `json:"maxRetry"`
	Retried  int           `json:"retried"`
	LastErr  string        `json:"lastErr,omitempty"`
	Timeout  time.Duration `json:"timeout"`
}

// TaskState task state (queue level)
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateActive    TaskState = "active"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateRetry     TaskState = "retry"
)

// QueueStats queue statistics
type QueueStats struct {
	PendingCount int `json:"pendingCount"`
	ActiveCount  int `json:"activeCount"`
	RetryCount   int `json:"retryCount"`
}
