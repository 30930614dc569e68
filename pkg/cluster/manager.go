package cluster

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/pretty"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/autoscaler"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/balancer"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/health"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/ipc"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/metrics"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/pubsub"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/worker"
)

// UpdateFunc is applied to each drained worker during a rolling update.
type UpdateFunc func(ctx context.Context, workerID string) error

// Manager is the orchestrator: it wires the worker registry, the
// monitoring loops, the balancer, the autoscaler and the IPC hub, owns
// the lifecycle state machine, and performs global error containment.
type Manager struct {
	cfg      *config.Config
	workers  *worker.Manager
	health   *health.Monitor
	metrics  *metrics.Collector
	balancer *balancer.Balancer
	scaler   *autoscaler.Manager
	ipc      *ipc.Manager
	bus      pubsub.PubSub[model.Event]
	store    interfaces.StateStore // optional

	clusterID string
	machine   *stateMachine
	startedAt time.Time

	watchStop chan struct{}
	watchDone chan struct{}
}

// Deps bundles the components the orchestrator drives.
type Deps struct {
	Workers  *worker.Manager
	Health   *health.Monitor
	Metrics  *metrics.Collector
	Balancer *balancer.Balancer
	Scaler   *autoscaler.Manager
	IPC      *ipc.Manager
	Bus      pubsub.PubSub[model.Event]
	Store    interfaces.StateStore
}

// NewManager creates the orchestrator. A missing cluster id is generated.
func NewManager(cfg *config.Config, deps Deps) *Manager {
	clusterID := cfg.Cluster.ID
	if clusterID == "" {
		clusterID = fmt.Sprintf("%s-%s", constants.ClusterIDPrefix, uuid.NewString()[:8])
	}
	return &Manager{
		cfg:       cfg,
		workers:   deps.Workers,
		health:    deps.Health,
		metrics:   deps.Metrics,
		balancer:  deps.Balancer,
		scaler:    deps.Scaler,
		ipc:       deps.IPC,
		bus:       deps.Bus,
		store:     deps.Store,
		clusterID: clusterID,
		machine:   newStateMachine(),
	}
}

// ClusterID returns the cluster identifier.
func (m *Manager) ClusterID() string {
	return m.clusterID
}

// GetState returns the current lifecycle state.
func (m *Manager) GetState() model.ClusterState {
	return m.machine.Current()
}

// Start boots the cluster: forks the configured workers, then turns the
// monitoring and scaling loops on.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.machine.Transition(model.StateStarting); err != nil {
		return err
	}
	m.startedAt = time.Now()
	logger.InfoCtx(ctx, "starting cluster %s", m.clusterID)

	if err := m.workers.StartWorkers(ctx); err != nil {
		// A partial fleet still runs; a fully failed start does not.
		if m.workers.ActiveWorkerCount() == 0 {
			_ = m.machine.Transition(model.StateError)
			return E(CodeLifecycle, "start", SeverityCritical, err)
		}
		logger.WarnCtx(ctx, "cluster started with partial fleet: %v", err)
	}

	if err := m.health.Start(ctx); err != nil {
		return E(CodeLifecycle, "start health monitor", SeverityHigh, err)
	}
	if err := m.metrics.Start(ctx); err != nil {
		return E(CodeLifecycle, "start metrics collector", SeverityHigh, err)
	}
	if m.scaler != nil {
		if err := m.scaler.Start(ctx); err != nil {
			return E(CodeLifecycle, "start autoscaler", SeverityHigh, err)
		}
	}

	if err := m.machine.Transition(model.StateRunning); err != nil {
		return err
	}

	m.watchStop = make(chan struct{})
	m.watchDone = make(chan struct{})
	go m.watchHealth(ctx)

	logger.InfoCtx(ctx, "cluster %s running with %d workers", m.clusterID, m.workers.ActiveWorkerCount())
	return nil
}

// Stop shuts the cluster down: loops first, then the workers, errors
// aggregated so one stuck worker never hides the rest.
func (m *Manager) Stop(ctx context.Context, graceful bool) error {
	if err := m.machine.Transition(model.StateStopping); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "stopping cluster %s (graceful=%v)", m.clusterID, graceful)

	if m.watchStop != nil {
		close(m.watchStop)
		<-m.watchDone
		m.watchStop = nil
	}

	if m.scaler != nil {
		m.scaler.Stop()
	}
	m.health.Stop()
	m.metrics.Stop()

	var result error
	if err := m.workers.StopAll(ctx, graceful); err != nil {
		result = multierror.Append(result, err)
	}

	if err := m.machine.Transition(model.StateStopped); err != nil {
		result = multierror.Append(result, err)
	}
	if result != nil {
		return E(CodeLifecycle, "stop", SeverityHigh, result)
	}
	return nil
}

// Restart replaces one worker when workerID is non-empty, otherwise
// bounces the whole cluster.
func (m *Manager) Restart(ctx context.Context, workerID string) error {
	if workerID != "" {
		if _, err := m.workers.ReplaceWorker(ctx, workerID); err != nil {
			return E(CodeWorker, "restart worker", SeverityMedium, err)
		}
		return nil
	}

	graceful := m.cfg.Cluster.GracefulShutdown == nil || *m.cfg.Cluster.GracefulShutdown
	if err := m.Stop(ctx, graceful); err != nil {
		return err
	}
	time.Sleep(constants.DefaultRestartDelay)
	return m.Start(ctx)
}

// Pause suspends monitoring and scaling without touching workers.
func (m *Manager) Pause() error {
	if err := m.machine.Transition(model.StatePaused); err != nil {
		return err
	}
	m.health.Pause()
	m.metrics.Pause()
	if m.scaler != nil {
		m.scaler.Pause()
	}
	logger.Infof("cluster %s paused", m.clusterID)
	return nil
}

// Resume lifts a pause.
func (m *Manager) Resume() error {
	if err := m.machine.Transition(model.StateRunning); err != nil {
		return err
	}
	m.health.Resume()
	m.metrics.Resume()
	if m.scaler != nil {
		m.scaler.Resume()
	}
	logger.Infof("cluster %s resumed", m.clusterID)
	return nil
}

// AddWorker starts one additional worker.
func (m *Manager) AddWorker(ctx context.Context) (*model.Worker, error) {
	w, err := m.workers.StartSingleWorker(ctx)
	if err != nil {
		return nil, E(CodeWorker, "add worker", SeverityMedium, err)
	}
	return w, nil
}

// RemoveWorker stops one worker.
func (m *Manager) RemoveWorker(ctx context.Context, workerID string, graceful bool) error {
	if err := m.workers.StopSingleWorker(ctx, workerID, graceful); err != nil {
		return E(CodeWorker, "remove worker", SeverityMedium, err)
	}
	return nil
}

// ReplaceWorker starts a replacement, lets it settle, then removes the
// old worker.
func (m *Manager) ReplaceWorker(ctx context.Context, workerID string) (*model.Worker, error) {
	w, err := m.workers.ReplaceWorker(ctx, workerID)
	if err != nil {
		return nil, E(CodeWorker, "replace worker", SeverityMedium, err)
	}
	return w, nil
}

// PerformRollingUpdate drains, updates, and replaces every worker in
// batches no larger than deployment.maxUnavailable.
func (m *Manager) PerformRollingUpdate(ctx context.Context, updateFn UpdateFunc) error {
	batchSize := m.cfg.Cluster.Deployment.MaxUnavailable
	if batchSize <= 0 {
		batchSize = constants.DefaultMaxUnavailable
	}
	settle := time.Duration(m.cfg.Cluster.Deployment.SettleDelay) * time.Second
	if settle <= 0 {
		settle = constants.DefaultSettleDelay
	}

	ids := make([]string, 0)
	for _, w := range m.workers.GetActiveWorkers() {
		ids = append(ids, w.ID)
	}
	logger.InfoCtx(ctx, "rolling update: %d workers, batches of %d", len(ids), batchSize)

	var result error
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		for _, id := range ids[start:end] {
			if err := m.updateOne(ctx, id, updateFn); err != nil {
				result = multierror.Append(result, err)
			}
		}
		select {
		case <-ctx.Done():
			return multierror.Append(result, ctx.Err()).ErrorOrNil()
		case <-time.After(settle):
		}
	}
	if result != nil {
		return E(CodeLifecycle, "rolling update", SeverityHigh, result)
	}
	logger.InfoCtx(ctx, "rolling update complete")
	return nil
}

func (m *Manager) updateOne(ctx context.Context, workerID string, updateFn UpdateFunc) error {
	if err := m.workers.DrainWorker(ctx, workerID); err != nil {
		logger.WarnCtx(ctx, "rolling update: drain of %s failed, replacing anyway: %v", workerID, err)
	}
	if updateFn != nil {
		if err := updateFn(ctx, workerID); err != nil {
			return fmt.Errorf("update of worker %s: %w", workerID, err)
		}
	}
	if _, err := m.workers.ReplaceWorker(ctx, workerID); err != nil {
		return fmt.Errorf("replace of worker %s: %w", workerID, err)
	}
	return nil
}

// IsCircuitOpen reports the breaker state: per worker when workerID is
// non-empty, cluster-wide otherwise. The cluster breaker trips when the
// unhealthy fraction strictly exceeds the configured breaker fraction.
func (m *Manager) IsCircuitOpen(workerID string) bool {
	threshold := m.cfg.Cluster.Thresholds.BreakerWorkerFailures
	if threshold <= 0 {
		threshold = constants.DefaultBreakerWorkerFailures
	}
	if workerID != "" {
		return m.health.ConsecutiveFailures(workerID) >= threshold
	}

	workers := m.workers.GetActiveWorkers()
	if len(workers) == 0 {
		return false
	}
	unhealthy := 0
	for _, w := range workers {
		if !w.Health.Routable() {
			unhealthy++
		}
	}
	fraction := m.cfg.Cluster.Thresholds.BreakerClusterFraction
	if fraction <= 0 {
		fraction = constants.DefaultBreakerClusterFraction
	}
	return float64(unhealthy)/float64(len(workers)) > fraction
}

// ResetCircuitBreaker clears failure counters for one worker, or for all
// workers when workerID is empty.
func (m *Manager) ResetCircuitBreaker(workerID string) {
	m.health.ResetFailures(workerID)
}

// HandlePanic applies the configured panic policy to a recovered value.
// The gin recovery middleware and the job runner both feed it.
func (m *Manager) HandlePanic(ctx context.Context, recovered interface{}) {
	err := fmt.Errorf("panic: %v", recovered)
	m.contain(ctx, m.cfg.Cluster.ErrorHandling.Panic, E(CodeContainment, "panic", SeverityCritical, err))
}

// HandleBackgroundError applies the configured background-error policy to
// a fatal failure reported by a background loop.
func (m *Manager) HandleBackgroundError(ctx context.Context, err error) {
	m.contain(ctx, m.cfg.Cluster.ErrorHandling.BackgroundError, E(CodeContainment, "background", SeverityHigh, err))
}

// contain applies a containment policy. A failed containment restart
// exits non-zero rather than leaving the cluster in an unknown state.
func (m *Manager) contain(ctx context.Context, policy string, cerr *Error) {
	logger.ErrorCtx(ctx, "fatal failure contained (policy %s): %v", policy, cerr)

	if policy != config.ErrorPolicyRestart {
		return
	}
	logger.WarnCtx(ctx, "containment policy is restart, restarting cluster %s", m.clusterID)
	if err := m.Restart(ctx, ""); err != nil {
		logger.ErrorCtx(ctx, "containment restart failed, exiting: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

// watchHealth drives the running/degraded/stopped edges from the
// collector's verdict.
func (m *Manager) watchHealth(ctx context.Context) {
	defer close(m.watchDone)
	interval := time.Duration(m.cfg.Cluster.Metrics.Interval) * time.Second
	if interval <= 0 {
		interval = constants.DefaultMetricsInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.watchStop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.applyVerdict(ctx)
		}
	}
}

func (m *Manager) applyVerdict(ctx context.Context) {
	state := m.machine.Current()
	if state != model.StateRunning && state != model.StateDegraded {
		return
	}

	if m.workers.ActiveWorkerCount() == 0 {
		logger.WarnCtx(ctx, "no active workers left, cluster %s is stopped", m.clusterID)
		_ = m.machine.Transition(model.StateStopped)
		return
	}

	cm := m.metrics.LatestClusterMetrics(ctx)
	if cm == nil {
		return
	}
	switch {
	case cm.Health == model.VerdictCritical && state == model.StateRunning:
		logger.WarnCtx(ctx, "cluster health critical, degrading")
		_ = m.machine.Transition(model.StateDegraded)
	case cm.Health != model.VerdictCritical && state == model.StateDegraded:
		logger.InfoCtx(ctx, "cluster health recovered")
		_ = m.machine.Transition(model.StateRunning)
	}
}

// Snapshot builds the persisted view of the cluster.
func (m *Manager) Snapshot() *model.ClusterSnapshot {
	var history []model.ScalingRecord
	if m.scaler != nil {
		history = m.scaler.GetScalingHistory()
	}
	return &model.ClusterSnapshot{
		ClusterID:      m.clusterID,
		State:          m.machine.Current(),
		DesiredWorkers: m.workers.Desired(),
		Workers:        m.workers.Summaries(),
		History:        history,
		ConfigChecksum: configChecksum(m.cfg),
		SavedAt:        time.Now(),
	}
}

// SaveState persists a snapshot through the state store.
func (m *Manager) SaveState(ctx context.Context) error {
	if m.store == nil {
		return E(CodePersistence, "save state", SeverityMedium, fmt.Errorf("no state store configured"))
	}
	snap := m.Snapshot()
	if err := m.store.SaveSnapshot(ctx, snap); err != nil {
		return E(CodePersistence, "save state", SeverityMedium, err)
	}
	if m.bus != nil {
		_ = m.bus.Publish(ctx, model.NewEvent(constants.EventClusterStateSaved, model.StateEventPayload{
			State:   snap.State,
			Workers: len(snap.Workers),
			SavedAt: snap.SavedAt,
		}))
	}
	return nil
}

// RestoreState re-applies the desired worker count and the scaling
// history tail from the last snapshot. Live workers are never revived
// from a snapshot; the registry converges through StartWorkers.
func (m *Manager) RestoreState(ctx context.Context) error {
	if m.store == nil {
		return E(CodePersistence, "restore state", SeverityMedium, fmt.Errorf("no state store configured"))
	}
	snap, err := m.store.LoadSnapshot(ctx)
	if err != nil {
		return E(CodePersistence, "restore state", SeverityMedium, err)
	}
	if snap == nil {
		return nil
	}
	if snap.ConfigChecksum != "" && snap.ConfigChecksum != configChecksum(m.cfg) {
		logger.WarnCtx(ctx, "restoring snapshot saved under a different configuration")
	}
	if snap.DesiredWorkers > 0 {
		m.workers.SetDesired(snap.DesiredWorkers)
	}
	logger.InfoCtx(ctx, "restored snapshot of cluster %s (saved %s, %d workers desired)",
		snap.ClusterID, snap.SavedAt.Format(time.RFC3339), snap.DesiredWorkers)
	return nil
}

// ExportConfiguration returns the active configuration as indented JSON
// with secrets masked.
func (m *Manager) ExportConfiguration() ([]byte, error) {
	masked := *m.cfg
	if masked.Redis.Password != "" {
		masked.Redis.Password = "******"
	}
	if masked.MySQL.Password != "" {
		masked.MySQL.Password = "******"
	}
	if masked.Server.APIKey != "" {
		masked.Server.APIKey = "******"
	}
	if masked.Notification.WebhookURL != "" {
		masked.Notification.WebhookURL = "******"
	}
	raw, err := json.Marshal(masked)
	if err != nil {
		return nil, E(CodePersistence, "export configuration", SeverityMedium, err)
	}
	return pretty.Pretty(raw), nil
}

// Component accessors for the control surface.

func (m *Manager) Workers() *worker.Manager { return m.workers }
func (m *Manager) Health() *health.Monitor { return m.health }
func (m *Manager) Metrics() *metrics.Collector { return m.metrics }
func (m *Manager) Balancer() *balancer.Balancer { return m.balancer }
func (m *Manager) Scaler() *autoscaler.Manager { return m.scaler }
func (m *Manager) IPC() *ipc.Manager { return m.ipc }
func (m *Manager) Bus() pubsub.PubSub[model.Event] { return m.bus }
func (m *Manager) Config() *config.Config { return m.cfg }

// Uptime returns the time since the last successful Start.
func (m *Manager) Uptime() time.Duration {
	if m.startedAt.IsZero() {
		return 0
	}
	return time.Since(m.startedAt)
}

func configChecksum(cfg *config.Config) string {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
