package interfaces

import (
	"context"
	"time"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
)

// WorkerProvider read-only view of the coordinator-owned worker registry.
// The balancer, health monitor, metrics collector, and autoscaler all read
// through this; only the worker manager mutates the registry.
type WorkerProvider interface {
	GetAllWorkers() []*model.Worker
	GetActiveWorkers() []*model.Worker
	GetWorker(workerID string) (*model.Worker, bool)
	GetWorkerMetrics(workerID string) (*model.WorkerMetrics, bool)
	GetAllWorkerMetrics() []*model.WorkerMetrics
	WorkerCount() int
}

// WorkerScaler lifecycle surface the autoscaler and the orchestrator drive
type WorkerScaler interface {
	StartSingleWorker(ctx context.Context) (*model.Worker, error)
	StopSingleWorker(ctx context.Context, workerID string, graceful bool) error
	ActiveWorkerCount() int
}

// Prober issues one health probe round-trip to a worker
type Prober interface {
	Ping(ctx context.Context, workerID string) (time.Duration, error)
}
