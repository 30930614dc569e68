package autoscaler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/pubsub"
)

// Manager runs the evaluation loop: every interval (or on a manual
// trigger) it takes the distributed lock, scores the latest aggregated
// metrics, and hands actionable decisions to the executor. Evaluations
// are serialized; a cycle arriving while one is in flight is skipped.
type Manager struct {
	cfg     config.ScalingConfig
	engine  *DecisionEngine
	exec    *Executor
	metrics MetricsSource
	history *History
	bus     pubsub.PubSub[model.Event]
	lock    DistributedLock

	mu           sync.RWMutex
	enabled      bool
	paused       bool
	running      bool
	lastDecision *model.ScalingDecision
	lastExecuted time.Time

	inFlight    atomic.Bool
	evaluations atomic.Uint64
	lockSkips   atomic.Uint64

	stopCh    chan struct{}
	triggerCh chan chan *model.ScalingDecision
	doneCh    chan struct{}
}

// NewManager wires the autoscaler from the cluster configuration. audit
// and redisClient may be nil; a nil client degrades the lock to
// single-instance mode.
func NewManager(
	cluster *config.ClusterConfig,
	scaler interfaces.WorkerScaler,
	provider interfaces.WorkerProvider,
	metrics MetricsSource,
	bus pubsub.PubSub[model.Event],
	audit interfaces.AuditStore,
	redisClient *redis.Client,
) *Manager {
	history := NewHistory(cluster.Scaling.HistoryCapacity)
	engine := NewDecisionEngine(cluster, history)
	exec := NewExecutor(scaler, provider, history, bus, audit)

	enabled := true
	if cluster.Scaling.Enabled != nil {
		enabled = *cluster.Scaling.Enabled
	}

	return &Manager{
		cfg:       cluster.Scaling,
		engine:    engine,
		exec:      exec,
		metrics:   metrics,
		history:   history,
		bus:       bus,
		lock:      NewRedisDistributedLock(redisClient, autoscalerLockKey),
		enabled:   enabled,
		stopCh:    make(chan struct{}),
		triggerCh: make(chan chan *model.ScalingDecision, 1),
	}
}

func (m *Manager) interval() time.Duration {
	if m.cfg.EvaluationInterval > 0 {
		return time.Duration(m.cfg.EvaluationInterval) * time.Second
	}
	return constants.DefaultEvaluationInterval
}

// Start launches the evaluation loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.loop(ctx)
	logger.InfoCtx(ctx, "autoscaler started (interval %s, enabled %v)", m.interval(), m.IsEnabled())
	return nil
}

// Stop halts the evaluation loop and waits for an in-flight cycle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()
	<-done
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evaluate(ctx, nil)
		case reply := <-m.triggerCh:
			m.evaluate(ctx, reply)
		}
	}
}

// AutoScale triggers one evaluation immediately and returns its decision.
func (m *Manager) AutoScale(ctx context.Context) (*model.ScalingDecision, error) {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()

	if !running {
		// No loop to hand off to; evaluate inline.
		return m.evaluate(ctx, nil), nil
	}

	reply := make(chan *model.ScalingDecision, 1)
	select {
	case m.triggerCh <- reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case d := <-reply:
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// evaluate runs one full cycle under the distributed lock. The returned
// decision is also delivered on reply when non-nil.
func (m *Manager) evaluate(ctx context.Context, reply chan *model.ScalingDecision) *model.ScalingDecision {
	var decision *model.ScalingDecision
	defer func() {
		if reply != nil {
			reply <- decision
		}
	}()

	if !m.IsEnabled() || m.IsPaused() {
		return nil
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		logger.DebugCtx(ctx, "scaling evaluation already in flight, skipping")
		return nil
	}
	defer m.inFlight.Store(false)

	acquired, err := m.lock.TryLock(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "failed to acquire scaling lock: %v", err)
		return nil
	}
	if !acquired {
		m.lockSkips.Add(1)
		return nil
	}
	defer func() {
		if err := m.lock.Unlock(ctx); err != nil {
			logger.WarnCtx(ctx, "failed to release scaling lock: %v", err)
		}
	}()

	m.evaluations.Add(1)

	agg := m.metrics.GetAggregatedMetrics(ctx)
	current := agg.ActiveWorkers

	m.mu.RLock()
	lastExecuted := m.lastExecuted
	m.mu.RUnlock()

	decision = m.engine.Evaluate(agg, current, lastExecuted)

	m.mu.Lock()
	m.lastDecision = decision
	m.mu.Unlock()

	if decision.Action == model.NoAction {
		logger.DebugCtx(ctx, "scaling evaluation: no action (%s)", decision.Reason)
		return decision
	}

	m.emit(ctx, constants.EventScalingTriggered, model.ScalingEventPayload{
		Action:      decision.Action,
		FromWorkers: decision.CurrentWorkers,
		ToWorkers:   decision.TargetWorkers,
		Reason:      decision.Reason,
		Confidence:  decision.Confidence,
	})

	if !m.engine.ShouldExecute(decision) {
		logger.InfoCtx(ctx, "scaling %s skipped: confidence %.1f below floor", decision.Action, decision.Confidence)
		m.emit(ctx, constants.EventScalingSkipped, model.ScalingEventPayload{
			Action:      decision.Action,
			FromWorkers: decision.CurrentWorkers,
			ToWorkers:   decision.TargetWorkers,
			Reason:      "confidence below floor",
			Confidence:  decision.Confidence,
		})
		return decision
	}

	logger.InfoCtx(ctx, "scaling %s: %d -> %d workers (score %.0f, confidence %.1f): %s",
		decision.Action, decision.CurrentWorkers, decision.TargetWorkers,
		decision.Score, decision.Confidence, decision.Reason)

	if err := m.exec.Execute(ctx, decision); err != nil {
		logger.ErrorCtx(ctx, "scaling execution incomplete: %v", err)
	}

	m.mu.Lock()
	m.lastExecuted = time.Now()
	m.mu.Unlock()
	return decision
}

// ScaleUp adds count workers immediately, bypassing the decision engine.
// The target clamps to the configured maximum.
func (m *Manager) ScaleUp(ctx context.Context, count int) (*model.ScalingDecision, error) {
	return m.manualScale(ctx, model.ScaleUp, count)
}

// ScaleDown removes count workers immediately, the least loaded first.
// The target clamps to the configured minimum.
func (m *Manager) ScaleDown(ctx context.Context, count int) (*model.ScalingDecision, error) {
	return m.manualScale(ctx, model.ScaleDown, count)
}

func (m *Manager) manualScale(ctx context.Context, action model.ScalingAction, count int) (*model.ScalingDecision, error) {
	if count < 1 {
		return nil, fmt.Errorf("scaling count must be positive, got %d", count)
	}

	acquired, err := m.lock.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire scaling lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("scaling operation already in progress")
	}
	defer func() {
		if err := m.lock.Unlock(ctx); err != nil {
			logger.WarnCtx(ctx, "failed to release scaling lock: %v", err)
		}
	}()

	agg := m.metrics.GetAggregatedMetrics(ctx)
	current := agg.ActiveWorkers
	min, max := m.engine.Bounds()

	target := current
	switch action {
	case model.ScaleUp:
		target = current + count
		if target > max {
			target = max
		}
	case model.ScaleDown:
		target = current - count
		if target < min {
			target = min
		}
	}
	if target == current {
		return nil, fmt.Errorf("%s by %d from %d workers stays outside bounds [%d, %d]",
			action, count, current, min, max)
	}

	decision := &model.ScalingDecision{
		Action:         action,
		CurrentWorkers: current,
		TargetWorkers:  target,
		Reason:         "manual request",
		Confidence:     100,
		Metrics:        *agg,
		CreatedAt:      time.Now(),
	}

	logger.InfoCtx(ctx, "manual %s: %d -> %d workers", action, current, target)
	execErr := m.exec.Execute(ctx, decision)

	m.mu.Lock()
	m.lastDecision = decision
	m.lastExecuted = time.Now()
	m.mu.Unlock()
	return decision, execErr
}

// GetOptimalWorkerCount evaluates the current metrics without executing
// and returns the worker count the engine would target.
func (m *Manager) GetOptimalWorkerCount(ctx context.Context) int {
	agg := m.metrics.GetAggregatedMetrics(ctx)
	m.mu.RLock()
	lastExecuted := m.lastExecuted
	m.mu.RUnlock()
	d := m.engine.Evaluate(agg, agg.ActiveWorkers, lastExecuted)
	return d.TargetWorkers
}

// GetScalingHistory returns the retained execution records, oldest first.
func (m *Manager) GetScalingHistory() []model.ScalingRecord {
	return m.history.Records()
}

// Enable turns automatic evaluation on.
func (m *Manager) Enable() {
	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
}

// Disable turns automatic evaluation off; manual AutoScale still works
// after re-enabling.
func (m *Manager) Disable() {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
}

// Pause suspends evaluation without losing state.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

// Resume lifts a pause.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
}

// IsEnabled reports whether automatic evaluation is on.
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// IsPaused reports whether evaluation is suspended.
func (m *Manager) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// GetStatus returns the observable autoscaler state.
func (m *Manager) GetStatus() *Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	min, max := m.engine.Bounds()
	s := &Status{
		Enabled:       m.enabled,
		Paused:        m.paused,
		MinWorkers:    min,
		MaxWorkers:    max,
		LastDecision:  m.lastDecision,
		Evaluations:   m.evaluations.Load(),
		SkippedLocked: m.lockSkips.Load(),
	}
	if !m.lastExecuted.IsZero() {
		t := m.lastExecuted
		s.LastExecutedAt = &t
		until := t.Add(m.engine.cooldown())
		if time.Now().Before(until) {
			s.CooldownUntil = &until
		}
	}
	return s
}

func (m *Manager) emit(ctx context.Context, name string, payload model.ScalingEventPayload) {
	if m.bus == nil {
		return
	}
	_ = m.bus.Publish(ctx, model.NewEvent(name, payload))
}
