package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/balancer"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/ipc"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/metrics"
)

const (
	defaultDispatchTimeout = 30 * time.Second

	// Completed tasks retained in memory for status lookups.
	resultCacheSize = 1024
)

// Dispatcher consumes the ingestion queue and routes each task to one
// worker: balancer pick, dispatch frame over the control channel, then
// wait for the worker's result frame. A handler error hands the task back
// to the provider's retry policy.
type Dispatcher struct {
	queue    interfaces.QueueProvider
	balancer *balancer.Balancer
	hub      *ipc.Hub
	metrics  *metrics.Collector
	timeout  time.Duration

	pendingMu sync.Mutex
	pending   map[string]chan *model.TaskResultPayload

	resultsMu sync.RWMutex
	results   map[string]*model.Task
	order     []string
}

// NewDispatcher wires the dispatcher into the control-channel hub. The
// result handler must be registered before workers connect.
func NewDispatcher(queue interfaces.QueueProvider, lb *balancer.Balancer, hub *ipc.Hub, collector *metrics.Collector, taskTimeout time.Duration) *Dispatcher {
	if taskTimeout <= 0 {
		taskTimeout = defaultDispatchTimeout
	}
	d := &Dispatcher{
		queue:    queue,
		balancer: lb,
		hub:      hub,
		metrics:  collector,
		timeout:  taskTimeout,
		pending:  make(map[string]chan *model.TaskResultPayload),
		results:  make(map[string]*model.Task),
	}
	hub.HandleFunc(model.MessageTaskResult, d.onResult)
	return d
}

// Start begins consuming the queue. A nil provider means ingestion is
// disabled and Start is a no-op.
func (d *Dispatcher) Start() error {
	if d.queue == nil {
		return nil
	}
	return d.queue.Start(d.Handle)
}

// Stop halts queue consumption.
func (d *Dispatcher) Stop() {
	if d.queue == nil {
		return
	}
	d.queue.Stop()
}

// Handle routes one task to a worker and waits for its result.
func (d *Dispatcher) Handle(ctx context.Context, task *model.Task) error {
	worker, err := d.balancer.Select(ctx, d.request(task))
	if err != nil {
		return fmt.Errorf("no worker available for task %s: %w", task.ID, err)
	}

	replyCh := make(chan *model.TaskResultPayload, 1)
	d.pendingMu.Lock()
	d.pending[task.ID] = replyCh
	d.pendingMu.Unlock()
	defer func() {
		d.pendingMu.Lock()
		delete(d.pending, task.ID)
		d.pendingMu.Unlock()
		d.balancer.Release(worker.ID)
	}()

	env, err := ipc.NewEnvelope(model.MessageTaskDispatch, model.EnvelopeFromCoordinator, model.TaskDispatchPayload{
		TaskID: task.ID,
		Input:  task.Input,
	})
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = model.TaskStatusDispatched
	task.WorkerID = worker.ID
	task.DispatchedAt = &now

	if err := d.hub.Send(ctx, worker.ID, env); err != nil {
		d.metrics.RecordResponse(worker.ID, 0, true)
		return fmt.Errorf("failed to dispatch task %s: %w", task.ID, err)
	}
	d.metrics.MarkDispatch()

	waitCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	select {
	case <-waitCtx.Done():
		d.metrics.RecordResponse(worker.ID, float64(time.Since(now).Milliseconds()), true)
		return fmt.Errorf("task %s timed out on worker %s: %w", task.ID, worker.ID, waitCtx.Err())
	case res := <-replyCh:
		return d.complete(task, worker.ID, res)
	}
}

func (d *Dispatcher) complete(task *model.Task, workerID string, res *model.TaskResultPayload) error {
	d.metrics.RecordResponse(workerID, res.DurationMs, res.Error != "")
	d.balancer.RecordResponseTime(workerID, res.DurationMs)

	done := time.Now()
	task.CompletedAt = &done
	task.DurationMs = res.DurationMs
	task.Output = res.Output
	task.Error = res.Error
	if res.Error != "" {
		task.Status = model.TaskStatusFailed
	} else {
		task.Status = model.TaskStatusCompleted
	}
	d.remember(task)

	if res.Error != "" {
		return fmt.Errorf("worker %s failed task %s: %s", workerID, task.ID, res.Error)
	}
	return nil
}

func (d *Dispatcher) request(task *model.Task) *balancer.Request {
	req := &balancer.Request{ClientIP: task.ClientIP}
	if task.AffinityKey != "" {
		if key := d.balancer.GetStatus().SessionAffinityKey; key != "" {
			req.Metadata = map[string]string{key: task.AffinityKey}
		}
	}
	return req
}

func (d *Dispatcher) onResult(ctx context.Context, env *model.Envelope) {
	var res model.TaskResultPayload
	if err := json.Unmarshal(env.Payload, &res); err != nil {
		logger.WarnCtx(ctx, "dropping malformed task result from %s: %v", env.From, err)
		return
	}

	d.pendingMu.Lock()
	ch, ok := d.pending[res.TaskID]
	d.pendingMu.Unlock()
	if !ok {
		logger.DebugCtx(ctx, "result for unknown or expired task %s from worker %s", res.TaskID, res.WorkerID)
		return
	}
	select {
	case ch <- &res:
	default:
	}
}

func (d *Dispatcher) remember(task *model.Task) {
	d.resultsMu.Lock()
	defer d.resultsMu.Unlock()
	if _, ok := d.results[task.ID]; !ok {
		d.order = append(d.order, task.ID)
		if len(d.order) > resultCacheSize {
			delete(d.results, d.order[0])
			d.order = d.order[1:]
		}
	}
	d.results[task.ID] = task
}

// TaskResult returns a completed task from the in-memory result cache.
func (d *Dispatcher) TaskResult(taskID string) (*model.Task, bool) {
	d.resultsMu.RLock()
	defer d.resultsMu.RUnlock()
	t, ok := d.results[taskID]
	return t, ok
}

// PendingDepth reports the queue's pending length. Feeds the metrics
// collector's queue-length signal.
func (d *Dispatcher) PendingDepth(ctx context.Context) (int, error) {
	if d.queue == nil {
		return 0, nil
	}
	return d.queue.GetPendingTaskCount(ctx)
}
