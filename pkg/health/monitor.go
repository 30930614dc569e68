package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/pubsub"
)

// Registry is the slice of the worker manager the monitor needs: the
// read-only provider view plus the single write-back for health state.
type Registry interface {
	interfaces.WorkerProvider
	UpdateHealth(workerID string, health model.HealthState, consecutiveFailures int)
}

// Replacer replaces a worker that has been classified beyond recovery.
type Replacer interface {
	ReplaceWorker(ctx context.Context, workerID string) (*model.Worker, error)
}

type workerHealth struct {
	state     model.HealthState
	failures  int
	replacing bool
}

// Monitor runs the periodic health probe loop. Each worker's probe is a
// control-channel ping round-trip plus a heartbeat freshness check;
// probes run concurrently with independent timeouts so one hung worker
// never stalls the sweep.
type Monitor struct {
	cfg        config.HealthCheckConfig
	thresholds config.ThresholdsConfig
	registry   Registry
	prober     interfaces.Prober
	replacer   Replacer
	bus        pubsub.PubSub[model.Event]

	mu     sync.Mutex
	states map[string]*workerHealth

	runMu   sync.Mutex
	running bool
	paused  bool
	stopCh  chan struct{}
}

// NewMonitor creates the health monitor.
func NewMonitor(cfg config.HealthCheckConfig, thresholds config.ThresholdsConfig, registry Registry, prober interfaces.Prober, replacer Replacer, bus pubsub.PubSub[model.Event]) *Monitor {
	return &Monitor{
		cfg:        cfg,
		thresholds: thresholds,
		registry:   registry,
		prober:     prober,
		replacer:   replacer,
		bus:        bus,
		states:     make(map[string]*workerHealth),
	}
}

// Start launches the probe loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return fmt.Errorf("health monitor is already running")
	}
	if m.cfg.Enabled != nil && !*m.cfg.Enabled {
		logger.InfoCtx(ctx, "health monitoring disabled by configuration")
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	go m.loop(ctx, m.stopCh)
	return nil
}

// Stop halts the probe loop.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return
	}
	close(m.stopCh)
	m.running = false
}

// Pause suspends probing without discarding per-worker state.
func (m *Monitor) Pause() {
	m.runMu.Lock()
	m.paused = true
	m.runMu.Unlock()
}

// Resume re-enables probing.
func (m *Monitor) Resume() {
	m.runMu.Lock()
	m.paused = false
	m.runMu.Unlock()
}

func (m *Monitor) isPaused() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.paused
}

func (m *Monitor) loop(ctx context.Context, stopCh chan struct{}) {
	interval := time.Duration(m.cfg.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.isPaused() {
				continue
			}
			m.PerformHealthChecks(ctx)
		}
	}
}

// PerformHealthChecks sweeps every active worker concurrently, each
// probe bounded by its own timeout.
func (m *Monitor) PerformHealthChecks(ctx context.Context) {
	workers := m.registry.GetActiveWorkers()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			if err := m.CheckWorkerHealth(ctx, workerID); err != nil {
				logger.DebugCtx(ctx, "health probe for worker %s failed: %v", workerID, err)
			}
		}(w.ID)
	}
	wg.Wait()

	m.pruneDeparted(workers)
}

// CheckWorkerHealth probes one worker and applies the classification
// transition. The returned error describes the probe failure, if any;
// classification always happens.
func (m *Monitor) CheckWorkerHealth(ctx context.Context, workerID string) error {
	w, ok := m.registry.GetWorker(workerID)
	if !ok {
		return fmt.Errorf("worker not found: %s", workerID)
	}
	if w.Status == model.WorkerStatusDead {
		m.applyState(ctx, workerID, model.HealthDead, 0, "process exited")
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
	defer cancel()

	var probeErr error
	if _, err := m.prober.Ping(probeCtx, workerID); err != nil {
		probeErr = err
	} else if stale := m.heartbeatAge(w); stale > 0 {
		probeErr = fmt.Errorf("heartbeat stale by %s", stale)
	}

	m.classify(ctx, workerID, probeErr)
	return probeErr
}

// heartbeatAge returns how far past the staleness cutoff the last
// heartbeat is, or zero when the heartbeat is fresh.
func (m *Monitor) heartbeatAge(w *model.Worker) time.Duration {
	if w.LastHeartbeat.IsZero() {
		return 0
	}
	cutoff := time.Duration(m.cfg.HeartbeatInterval) * time.Second * constants.HeartbeatStaleFactor
	age := time.Since(w.LastHeartbeat)
	if age > cutoff {
		return age - cutoff
	}
	return 0
}

func (m *Monitor) classify(ctx context.Context, workerID string, probeErr error) {
	m.mu.Lock()
	wh, ok := m.states[workerID]
	if !ok {
		wh = &workerHealth{state: model.HealthHealthy}
		m.states[workerID] = wh
	}

	if probeErr == nil {
		wh.failures = 0
		wh.state = model.HealthHealthy
		state, failures := wh.state, wh.failures
		m.mu.Unlock()
		m.registry.UpdateHealth(workerID, state, failures)
		return
	}

	wh.failures++
	prev := wh.state
	if wh.failures >= m.cfg.Retries {
		wh.state = model.HealthCritical
	} else {
		wh.state = model.HealthWarning
	}
	state, failures := wh.state, wh.failures
	shouldReplace := state == model.HealthCritical &&
		failures >= m.thresholds.BreakerWorkerFailures &&
		m.cfg.AutoReplace != nil && *m.cfg.AutoReplace &&
		!wh.replacing
	if shouldReplace {
		wh.replacing = true
	}
	m.mu.Unlock()

	m.registry.UpdateHealth(workerID, state, failures)
	m.applyTransitionEvents(ctx, workerID, prev, state, failures, probeErr.Error())

	if shouldReplace {
		go m.replace(ctx, workerID)
	}
}

func (m *Monitor) applyState(ctx context.Context, workerID string, state model.HealthState, failures int, reason string) {
	m.mu.Lock()
	wh, ok := m.states[workerID]
	if !ok {
		wh = &workerHealth{}
		m.states[workerID] = wh
	}
	prev := wh.state
	wh.state = state
	wh.failures = failures
	m.mu.Unlock()

	m.registry.UpdateHealth(workerID, state, failures)
	m.applyTransitionEvents(ctx, workerID, prev, state, failures, reason)
}

func (m *Monitor) applyTransitionEvents(ctx context.Context, workerID string, prev, next model.HealthState, failures int, reason string) {
	if prev == next {
		return
	}
	payload := model.HealthEventPayload{
		WorkerID:            workerID,
		Health:              next,
		ConsecutiveFailures: failures,
		Reason:              reason,
	}
	switch next {
	case model.HealthWarning:
		m.emit(ctx, constants.EventWorkerHealthWarning, payload)
	case model.HealthCritical, model.HealthDead:
		m.emit(ctx, constants.EventWorkerHealthCritical, payload)
	}
}

func (m *Monitor) replace(ctx context.Context, workerID string) {
	logger.WarnCtx(ctx, "worker %s is beyond recovery, replacing", workerID)
	if _, err := m.replacer.ReplaceWorker(ctx, workerID); err != nil {
		logger.ErrorCtx(ctx, "failed to replace unhealthy worker %s: %v", workerID, err)
		m.mu.Lock()
		if wh, ok := m.states[workerID]; ok {
			wh.replacing = false
		}
		m.mu.Unlock()
	}
}

// GetHealthStatus reports per-worker routability: true for healthy and
// warning, false for critical and dead.
func (m *Monitor) GetHealthStatus() map[string]bool {
	workers := m.registry.GetAllWorkers()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(workers))
	for _, w := range workers {
		state := w.Health
		if wh, ok := m.states[w.ID]; ok {
			state = wh.state
		}
		out[w.ID] = state.Routable()
	}
	return out
}

// ConsecutiveFailures returns a worker's current failure streak.
func (m *Monitor) ConsecutiveFailures(workerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wh, ok := m.states[workerID]; ok {
		return wh.failures
	}
	return 0
}

// ResetFailures clears one worker's failure streak (circuit breaker
// reset path), or every worker's when workerID is empty.
func (m *Monitor) ResetFailures(workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if workerID != "" {
		if wh, ok := m.states[workerID]; ok {
			wh.failures = 0
			wh.state = model.HealthHealthy
			wh.replacing = false
		}
		m.resetRegistry(workerID)
		return
	}
	for id, wh := range m.states {
		wh.failures = 0
		wh.state = model.HealthHealthy
		wh.replacing = false
		m.resetRegistry(id)
	}
}

// resetRegistry is called with m.mu held.
func (m *Monitor) resetRegistry(workerID string) {
	m.registry.UpdateHealth(workerID, model.HealthHealthy, 0)
}

func (m *Monitor) pruneDeparted(live []*model.Worker) {
	alive := make(map[string]struct{}, len(live))
	for _, w := range live {
		alive[w.ID] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.states {
		if _, ok := alive[id]; !ok {
			delete(m.states, id)
		}
	}
}

func (m *Monitor) emit(ctx context.Context, name string, payload interface{}) {
	if m.bus == nil {
		return
	}
	_ = m.bus.Publish(ctx, model.NewEvent(name, payload))
}
