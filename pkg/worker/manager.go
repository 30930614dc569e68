package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/ipc"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/pubsub"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/status"
)

// slot is one coordinator-owned worker registry entry. Only the manager
// mutates slots; everyone else reads through the provider view.
type slot struct {
	worker  *model.Worker
	metrics *model.WorkerMetrics
	proc    Process

	online  chan struct{}
	drained chan struct{}

	// removed marks a deliberate stop so the exit watcher does not
	// re-fork the slot.
	removed      bool
	restartTimes []time.Time
}

// Manager owns the worker process registry: it starts, stops, replaces,
// and re-forks workers, and is the only component that mutates worker
// state. It implements interfaces.WorkerProvider and
// interfaces.WorkerScaler.
type Manager struct {
	cfg            *config.ClusterConfig
	driver         Driver
	hub            *ipc.Hub
	bus            pubsub.PubSub[model.Event]
	clusterID      string
	coordinatorURL string
	authToken      string

	sanitizer *status.Sanitizer

	mu       sync.RWMutex
	slots    map[string]*slot
	desired  int
	stopping bool
}

// NewManager creates the worker manager and wires its control-channel
// handlers into the hub.
func NewManager(cfg *config.ClusterConfig, driver Driver, hub *ipc.Hub, bus pubsub.PubSub[model.Event], clusterID, coordinatorURL, authToken string) *Manager {
	m := &Manager{
		cfg:            cfg,
		driver:         driver,
		hub:            hub,
		bus:            bus,
		clusterID:      clusterID,
		coordinatorURL: coordinatorURL,
		authToken:      authToken,
		sanitizer:      status.NewSanitizer(),
		slots:          make(map[string]*slot),
	}
	hub.HandleFunc(model.MessageOnline, m.handleOnline)
	hub.HandleFunc(model.MessageHeartbeat, m.handleHeartbeat)
	hub.HandleFunc(model.MessageDrained, m.handleDrained)
	return m
}

// SetDesired records the target worker count used by StartWorkers and
// snapshot persistence.
func (m *Manager) SetDesired(n int) {
	m.mu.Lock()
	m.desired = n
	m.mu.Unlock()
}

// Desired returns the current target worker count.
func (m *Manager) Desired() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.desired
}

// SetStopping flips the shutdown flag; while set, worker exits are not
// re-forked.
func (m *Manager) SetStopping(v bool) {
	m.mu.Lock()
	m.stopping = v
	m.mu.Unlock()
}

// StartWorkers forks workers until the registry holds the desired count.
// Individual start failures aggregate; workers that did start stay up.
func (m *Manager) StartWorkers(ctx context.Context) error {
	m.mu.RLock()
	desired := m.desired
	running := len(m.slots)
	m.mu.RUnlock()

	var errs *multierror.Error
	for i := running; i < desired; i++ {
		if _, err := m.StartSingleWorker(ctx); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// StartSingleWorker spawns one worker process and waits, bounded by the
// configured start timeout, for its online signal. On timeout the
// process is killed so no orphan survives the failed call.
func (m *Manager) StartSingleWorker(ctx context.Context) (*model.Worker, error) {
	return m.startWorker(ctx, 0)
}

func (m *Manager) startWorker(ctx context.Context, restarts int) (*model.Worker, error) {
	m.mu.RLock()
	stopping := m.stopping
	m.mu.RUnlock()
	if stopping {
		return nil, fmt.Errorf("cluster is shutting down")
	}

	workerID := uuid.NewString()
	spec := &model.SpawnSpec{
		WorkerID:          workerID,
		ClusterID:         m.clusterID,
		CoordinatorURL:    m.coordinatorURL,
		AuthToken:         m.authToken,
		HeartbeatInterval: m.cfg.HealthCheck.HeartbeatInterval,
		Version:           m.cfg.Worker.Version,
	}

	proc, err := m.driver.Spawn(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	now := time.Now()
	s := &slot{
		worker: &model.Worker{
			ID:        workerID,
			PID:       proc.PID(),
			Status:    model.WorkerStatusStarting,
			Health:    model.HealthHealthy,
			SpawnedAt: now,
			Restarts:  restarts,
			Version:   m.cfg.Worker.Version,
		},
		metrics: &model.WorkerMetrics{
			WorkerID: workerID,
			PID:      proc.PID(),
			Health:   model.HealthHealthy,
			LastSeen: now,
		},
		proc:    proc,
		online:  make(chan struct{}),
		drained: make(chan struct{}),
	}

	m.mu.Lock()
	m.slots[workerID] = s
	m.mu.Unlock()

	go m.watchExit(workerID, proc)

	startTimeout := time.Duration(m.cfg.StartTimeout) * time.Second
	select {
	case <-s.online:
	case <-time.After(startTimeout):
		m.discardSlot(workerID)
		_ = proc.Kill()
		return nil, fmt.Errorf("worker %s did not come online within %s", workerID, startTimeout)
	case <-ctx.Done():
		m.discardSlot(workerID)
		_ = proc.Kill()
		return nil, fmt.Errorf("worker start cancelled: %w", ctx.Err())
	}

	logger.InfoCtx(ctx, "worker %s online, pid %d", workerID, proc.PID())
	m.emit(ctx, constants.EventWorkerStarted, model.WorkerEventPayload{
		WorkerID: workerID,
		PID:      proc.PID(),
		Restarts: restarts,
	})
	return m.snapshotWorker(workerID), nil
}

// StopSingleWorker stops one worker. With graceful set it first sends
// the shutdown control frame and waits out the shutdown timeout; either
// way the process ends and the worker leaves the registry.
func (m *Manager) StopSingleWorker(ctx context.Context, workerID string, graceful bool) error {
	m.mu.Lock()
	s, ok := m.slots[workerID]
	if ok {
		s.removed = true
		s.worker.Status = model.WorkerStatusStopping
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("worker not found: %s", workerID)
	}

	if graceful && m.cfg.GracefulShutdown != nil && *m.cfg.GracefulShutdown {
		env, err := ipc.NewEnvelope(model.MessageShutdown, model.EnvelopeFromCoordinator, nil)
		if err == nil {
			if err := m.hub.Send(ctx, workerID, env); err != nil {
				logger.WarnCtx(ctx, "shutdown frame to worker %s failed, will force-kill: %v", workerID, err)
			}
		}

		shutdownTimeout := time.Duration(m.cfg.ShutdownTimeout) * time.Second
		select {
		case <-s.proc.Done():
			m.discardSlot(workerID)
			m.hub.Detach(workerID)
			return nil
		case <-time.After(shutdownTimeout):
			logger.WarnCtx(ctx, "worker %s did not exit within %s, force-terminating", workerID, shutdownTimeout)
		case <-ctx.Done():
		}
	}

	if err := s.proc.Kill(); err != nil {
		logger.WarnCtx(ctx, "failed to kill worker %s: %v", workerID, err)
	}
	<-s.proc.Done()
	m.discardSlot(workerID)
	m.hub.Detach(workerID)
	return nil
}

// DrainWorker asks a worker to finish in-flight work and stop accepting
// new work, waiting up to the shutdown timeout for the drained ack.
func (m *Manager) DrainWorker(ctx context.Context, workerID string) error {
	m.mu.Lock()
	s, ok := m.slots[workerID]
	if ok {
		s.worker.Status = model.WorkerStatusDraining
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("worker not found: %s", workerID)
	}

	env, err := ipc.NewEnvelope(model.MessageDrain, model.EnvelopeFromCoordinator, nil)
	if err != nil {
		return err
	}
	if err := m.hub.Send(ctx, workerID, env); err != nil {
		return fmt.Errorf("failed to send drain to worker %s: %w", workerID, err)
	}

	drainTimeout := time.Duration(m.cfg.ShutdownTimeout) * time.Second
	select {
	case <-s.drained:
		return nil
	case <-s.proc.Done():
		return nil
	case <-time.After(drainTimeout):
		return fmt.Errorf("worker %s did not confirm drain within %s", workerID, drainTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReplaceWorker starts a replacement, lets it settle, then removes the
// old worker gracefully.
func (m *Manager) ReplaceWorker(ctx context.Context, workerID string) (*model.Worker, error) {
	m.mu.RLock()
	_, ok := m.slots[workerID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("worker not found: %s", workerID)
	}

	replacement, err := m.StartSingleWorker(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start replacement for %s: %w", workerID, err)
	}

	settle := time.Duration(m.cfg.Deployment.SettleDelay) * time.Second
	select {
	case <-time.After(settle):
	case <-ctx.Done():
	}

	if err := m.StopSingleWorker(ctx, workerID, true); err != nil {
		logger.WarnCtx(ctx, "failed to stop replaced worker %s: %v", workerID, err)
	}
	return replacement, nil
}

// StopAll stops every worker, honoring graceful drain with the forced
// kill fallback. Errors aggregate.
func (m *Manager) StopAll(ctx context.Context, graceful bool) error {
	m.SetStopping(true)

	m.mu.RLock()
	ids := make([]string, 0, len(m.slots))
	for id := range m.slots {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var errs *multierror.Error
	for _, id := range ids {
		if err := m.StopSingleWorker(ctx, id, graceful); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// watchExit re-forks a worker that exits unexpectedly, bounded by
// maxRestarts inside the rolling restart window.
func (m *Manager) watchExit(workerID string, proc Process) {
	err := <-proc.Done()

	m.mu.Lock()
	s, ok := m.slots[workerID]
	if !ok || s.removed {
		m.mu.Unlock()
		return
	}
	stopping := m.stopping
	delete(m.slots, workerID)
	restarts := s.worker.Restarts
	pid := s.worker.PID

	now := time.Now()
	recent := s.restartTimes[:0]
	for _, t := range s.restartTimes {
		if now.Sub(t) < constants.RestartWindow {
			recent = append(recent, t)
		}
	}
	m.mu.Unlock()

	m.hub.Detach(workerID)

	ctx := context.Background()
	reason := m.exitReason(err)
	logger.Warnf("worker %s (pid %d) died unexpectedly: %s", workerID, pid, reason)
	m.emit(ctx, constants.EventWorkerDied, model.WorkerEventPayload{
		WorkerID: workerID,
		PID:      pid,
		Reason:   reason,
		Restarts: restarts,
	})

	if stopping {
		return
	}
	if len(recent) >= m.cfg.MaxRestarts {
		logger.Errorf("worker %s exceeded %d restarts within %s, not re-forking", workerID, m.cfg.MaxRestarts, constants.RestartWindow)
		return
	}

	time.Sleep(time.Duration(m.cfg.RestartDelay) * time.Second)

	replacement, startErr := m.startWorker(ctx, restarts+1)
	if startErr != nil {
		logger.Errorf("failed to re-fork worker after %s died: %v", workerID, startErr)
		return
	}

	m.mu.Lock()
	if rs, ok := m.slots[replacement.ID]; ok {
		rs.restartTimes = append(recent, now)
	}
	m.mu.Unlock()

	m.emit(ctx, constants.EventWorkerRestarted, model.WorkerEventPayload{
		WorkerID: replacement.ID,
		PID:      replacement.PID,
		Reason:   fmt.Sprintf("replaced %s", workerID),
		Restarts: restarts + 1,
	})
}

func (m *Manager) discardSlot(workerID string) {
	m.mu.Lock()
	if s, ok := m.slots[workerID]; ok {
		s.removed = true
		delete(m.slots, workerID)
	}
	m.mu.Unlock()
}

// control-channel handlers

func (m *Manager) handleOnline(ctx context.Context, env *model.Envelope) {
	var payload model.OnlinePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		logger.WarnCtx(ctx, "malformed online payload: %v", err)
		return
	}

	m.mu.Lock()
	s, ok := m.slots[payload.WorkerID]
	if ok && s.worker.Status == model.WorkerStatusStarting {
		now := time.Now()
		s.worker.Status = model.WorkerStatusOnline
		s.worker.OnlineAt = &now
		s.worker.LastHeartbeat = now
		if payload.Version != "" {
			s.worker.Version = payload.Version
		}
		close(s.online)
	}
	m.mu.Unlock()
}

func (m *Manager) handleHeartbeat(ctx context.Context, env *model.Envelope) {
	var hb model.HeartbeatPayload
	if err := json.Unmarshal(env.Payload, &hb); err != nil {
		logger.WarnCtx(ctx, "malformed heartbeat payload: %v", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[hb.WorkerID]
	if !ok {
		return
	}
	now := time.Now()
	s.worker.LastHeartbeat = now
	wm := s.metrics
	wm.CPUPercent = hb.CPUPercent
	wm.MemoryBytes = hb.MemoryBytes
	wm.MemoryPercent = hb.MemoryPercent
	wm.ActiveRequests = hb.ActiveRequests
	wm.QueuedRequests = hb.QueuedRequests
	wm.TotalRequests = hb.TotalRequests
	wm.ErrorCount = hb.ErrorCount
	wm.AvgResponseTime = hb.AvgResponseTime
	wm.LastSeen = now
}

func (m *Manager) handleDrained(ctx context.Context, env *model.Envelope) {
	workerID := env.From
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[workerID]; ok {
		select {
		case <-s.drained:
		default:
			close(s.drained)
		}
	}
}

// provider view

// GetAllWorkers returns a copy of every registered worker.
func (m *Manager) GetAllWorkers() []*model.Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	workers := make([]*model.Worker, 0, len(m.slots))
	for _, s := range m.slots {
		w := *s.worker
		workers = append(workers, &w)
	}
	sortWorkers(workers)
	return workers
}

// GetActiveWorkers returns workers currently serving (online or
// draining), in stable spawn order.
func (m *Manager) GetActiveWorkers() []*model.Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	workers := make([]*model.Worker, 0, len(m.slots))
	for _, s := range m.slots {
		if s.worker.Status == model.WorkerStatusOnline || s.worker.Status == model.WorkerStatusDraining {
			w := *s.worker
			workers = append(workers, &w)
		}
	}
	sortWorkers(workers)
	return workers
}

// GetUnhealthyWorkers returns workers the monitor has classified past
// routable health (critical or dead), in stable spawn order.
func (m *Manager) GetUnhealthyWorkers() []*model.Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	workers := make([]*model.Worker, 0)
	for _, s := range m.slots {
		if !s.worker.Health.Routable() {
			w := *s.worker
			workers = append(workers, &w)
		}
	}
	sortWorkers(workers)
	return workers
}

// GetWorker returns one worker by id.
func (m *Manager) GetWorker(workerID string) (*model.Worker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[workerID]
	if !ok {
		return nil, false
	}
	w := *s.worker
	return &w, true
}

// GetWorkerMetrics returns one worker's live metrics.
func (m *Manager) GetWorkerMetrics(workerID string) (*model.WorkerMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[workerID]
	if !ok {
		return nil, false
	}
	wm := *s.metrics
	wm.Health = s.worker.Health
	return &wm, true
}

// GetAllWorkerMetrics returns live metrics for every worker.
func (m *Manager) GetAllWorkerMetrics() []*model.WorkerMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.WorkerMetrics, 0, len(m.slots))
	for _, s := range m.slots {
		wm := *s.metrics
		wm.Health = s.worker.Health
		out = append(out, &wm)
	}
	return out
}

// WorkerCount returns the registry size.
func (m *Manager) WorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots)
}

// ActiveWorkerCount returns the number of serving workers.
func (m *Manager) ActiveWorkerCount() int {
	return len(m.GetActiveWorkers())
}

// UpdateHealth reflects the health monitor's classification into the
// registry. Only the monitor calls this.
func (m *Manager) UpdateHealth(workerID string, health model.HealthState, consecutiveFailures int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[workerID]; ok {
		s.worker.Health = health
		s.metrics.Health = health
		s.metrics.ConsecutiveFailures = consecutiveFailures
	}
}

// Summaries returns the compact per-worker view persisted in snapshots.
func (m *Manager) Summaries() []model.WorkerSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.WorkerSummary, 0, len(m.slots))
	for _, s := range m.slots {
		out = append(out, model.WorkerSummary{
			ID:       s.worker.ID,
			PID:      s.worker.PID,
			Status:   s.worker.Status,
			Health:   s.worker.Health,
			Restarts: s.worker.Restarts,
		})
	}
	return out
}

func (m *Manager) snapshotWorker(workerID string) *model.Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.slots[workerID]; ok {
		w := *s.worker
		return &w
	}
	return nil
}

// exitReason classifies a worker exit and strips host-internal details
// from the message. The reason travels on the event bus and into the
// audit trail, so raw paths and credentials must not leak through it.
func (m *Manager) exitReason(err error) string {
	if err == nil {
		return "process exited"
	}
	reason := m.sanitizer.SanitizeSensitiveInfo(err.Error())

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		sig := ""
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			sig = signalName(ws.Signal())
		}
		failure, detail := status.ClassifyExit(exitErr.ExitCode(), sig)
		return fmt.Sprintf("%s/%s: %s", failure, detail, reason)
	}
	return reason
}

func signalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGTERM:
		return "TERM"
	case syscall.SIGKILL:
		return "KILL"
	case syscall.SIGSEGV:
		return "SEGV"
	case syscall.SIGABRT:
		return "ABRT"
	case syscall.SIGINT:
		return "INT"
	default:
		return fmt.Sprintf("%d", int(sig))
	}
}

func (m *Manager) emit(ctx context.Context, name string, payload interface{}) {
	if m.bus == nil {
		return
	}
	_ = m.bus.Publish(ctx, model.NewEvent(name, payload))
}

func sortWorkers(workers []*model.Worker) {
	// Spawn order keeps round-robin cycles and tie-breaks deterministic.
	sort.Slice(workers, func(i, j int) bool {
		a, b := workers[i], workers[j]
		if !a.SpawnedAt.Equal(b.SpawnedAt) {
			return a.SpawnedAt.Before(b.SpawnedAt)
		}
		return a.ID < b.ID
	})
}
