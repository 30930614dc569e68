package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
)

type stubRegistry struct {
	mu      sync.Mutex
	workers map[string]*model.Worker
	updates map[string]model.HealthState
}

func newStubRegistry(ids ...string) *stubRegistry {
	r := &stubRegistry{
		workers: make(map[string]*model.Worker),
		updates: make(map[string]model.HealthState),
	}
	for _, id := range ids {
		r.workers[id] = &model.Worker{
			ID:     id,
			Status: model.WorkerStatusOnline,
			Health: model.HealthHealthy,
		}
	}
	return r
}

func (r *stubRegistry) GetAllWorkers() []*model.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	return out
}

func (r *stubRegistry) GetActiveWorkers() []*model.Worker { return r.GetAllWorkers() }

func (r *stubRegistry) GetWorker(id string) (*model.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	return w, ok
}

func (r *stubRegistry) GetWorkerMetrics(string) (*model.WorkerMetrics, bool) { return nil, false }
func (r *stubRegistry) GetAllWorkerMetrics() []*model.WorkerMetrics { return nil }
func (r *stubRegistry) WorkerCount() int { return len(r.workers) }

func (r *stubRegistry) UpdateHealth(id string, health model.HealthState, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates[id] = health
	if w, ok := r.workers[id]; ok {
		w.Health = health
	}
}

func (r *stubRegistry) lastUpdate(id string) model.HealthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[id]
}

type stubProber struct {
	mu   sync.Mutex
	errs map[string]error
}

func (p *stubProber) Ping(_ context.Context, id string) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.errs[id]; ok {
		return 0, err
	}
	return time.Millisecond, nil
}

func (p *stubProber) fail(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errs == nil {
		p.errs = make(map[string]error)
	}
	p.errs[id] = errors.New("ping timeout")
}

func (p *stubProber) recover(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.errs, id)
}

type stubReplacer struct {
	mu       sync.Mutex
	replaced []string
	err      error
}

func (r *stubReplacer) ReplaceWorker(_ context.Context, id string) (*model.Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.replaced = append(r.replaced, id)
	return &model.Worker{ID: id + "-replacement"}, nil
}

func (r *stubReplacer) replacedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.replaced...)
}

func boolPtr(v bool) *bool { return &v }

func testConfig(retries int, autoReplace bool) config.HealthCheckConfig {
	return config.HealthCheckConfig{
		Enabled:           boolPtr(true),
		Interval:          1,
		Timeout:           1,
		Retries:           retries,
		HeartbeatInterval: 60,
		AutoReplace:       boolPtr(autoReplace),
	}
}

func testThresholds() config.ThresholdsConfig {
	return config.ThresholdsConfig{
		HealthyFraction:        0.7,
		CriticalFraction:       0.3,
		BreakerClusterFraction: 0.5,
		BreakerWorkerFailures:  5,
	}
}

func TestHealthyProbeKeepsWorkerHealthy(t *testing.T) {
	registry := newStubRegistry("w1")
	mon := NewMonitor(testConfig(3, false), testThresholds(), registry, &stubProber{}, &stubReplacer{}, nil)

	require.NoError(t, mon.CheckWorkerHealth(context.Background(), "w1"))
	assert.Equal(t, model.HealthHealthy, registry.lastUpdate("w1"))
	assert.Zero(t, mon.ConsecutiveFailures("w1"))
}

func TestFailuresEscalateWarningThenCritical(t *testing.T) {
	registry := newStubRegistry("w1")
	prober := &stubProber{}
	prober.fail("w1")
	mon := NewMonitor(testConfig(3, false), testThresholds(), registry, prober, &stubReplacer{}, nil)

	ctx := context.Background()

	require.Error(t, mon.CheckWorkerHealth(ctx, "w1"))
	assert.Equal(t, model.HealthWarning, registry.lastUpdate("w1"))
	assert.Equal(t, 1, mon.ConsecutiveFailures("w1"))

	require.Error(t, mon.CheckWorkerHealth(ctx, "w1"))
	assert.Equal(t, model.HealthWarning, registry.lastUpdate("w1"))

	require.Error(t, mon.CheckWorkerHealth(ctx, "w1"))
	assert.Equal(t, model.HealthCritical, registry.lastUpdate("w1"))
	assert.Equal(t, 3, mon.ConsecutiveFailures("w1"))
}

func TestRecoveryResetsFailureStreak(t *testing.T) {
	registry := newStubRegistry("w1")
	prober := &stubProber{}
	prober.fail("w1")
	mon := NewMonitor(testConfig(3, false), testThresholds(), registry, prober, &stubReplacer{}, nil)

	ctx := context.Background()
	require.Error(t, mon.CheckWorkerHealth(ctx, "w1"))
	require.Error(t, mon.CheckWorkerHealth(ctx, "w1"))
	assert.Equal(t, 2, mon.ConsecutiveFailures("w1"))

	prober.recover("w1")
	require.NoError(t, mon.CheckWorkerHealth(ctx, "w1"))
	assert.Zero(t, mon.ConsecutiveFailures("w1"))
	assert.Equal(t, model.HealthHealthy, registry.lastUpdate("w1"))
}

func TestStaleHeartbeatFailsProbe(t *testing.T) {
	registry := newStubRegistry("w1")
	w, _ := registry.GetWorker("w1")
	w.LastHeartbeat = time.Now().Add(-time.Hour)
	mon := NewMonitor(testConfig(3, false), testThresholds(), registry, &stubProber{}, &stubReplacer{}, nil)

	err := mon.CheckWorkerHealth(context.Background(), "w1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeat stale")
	assert.Equal(t, model.HealthWarning, registry.lastUpdate("w1"))
}

func TestDeadWorkerClassifiedWithoutProbe(t *testing.T) {
	registry := newStubRegistry("w1")
	w, _ := registry.GetWorker("w1")
	w.Status = model.WorkerStatusDead
	prober := &stubProber{}
	prober.fail("w1") // must not be consulted
	mon := NewMonitor(testConfig(3, false), testThresholds(), registry, prober, &stubReplacer{}, nil)

	require.NoError(t, mon.CheckWorkerHealth(context.Background(), "w1"))
	assert.Equal(t, model.HealthDead, registry.lastUpdate("w1"))
}

func TestAutoReplaceTriggersOnceBeyondBreaker(t *testing.T) {
	registry := newStubRegistry("w1")
	prober := &stubProber{}
	prober.fail("w1")
	replacer := &stubReplacer{}
	cfg := testConfig(2, true)
	th := testThresholds()
	th.BreakerWorkerFailures = 3
	mon := NewMonitor(cfg, th, registry, prober, replacer, nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = mon.CheckWorkerHealth(ctx, "w1")
	}

	assert.Eventually(t, func() bool {
		return len(replacer.replacedIDs()) == 1
	}, time.Second, 10*time.Millisecond, "replacement fires exactly once")
	assert.Equal(t, []string{"w1"}, replacer.replacedIDs())
}

func TestAutoReplaceDisabledDoesNotReplace(t *testing.T) {
	registry := newStubRegistry("w1")
	prober := &stubProber{}
	prober.fail("w1")
	replacer := &stubReplacer{}
	th := testThresholds()
	th.BreakerWorkerFailures = 2
	mon := NewMonitor(testConfig(2, false), th, registry, prober, replacer, nil)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_ = mon.CheckWorkerHealth(ctx, "w1")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, replacer.replacedIDs())
}

func TestResetFailuresClearsStreakAndState(t *testing.T) {
	registry := newStubRegistry("w1", "w2")
	prober := &stubProber{}
	prober.fail("w1")
	prober.fail("w2")
	mon := NewMonitor(testConfig(1, false), testThresholds(), registry, prober, &stubReplacer{}, nil)

	ctx := context.Background()
	_ = mon.CheckWorkerHealth(ctx, "w1")
	_ = mon.CheckWorkerHealth(ctx, "w2")
	require.Equal(t, model.HealthCritical, registry.lastUpdate("w1"))

	mon.ResetFailures("w1")
	assert.Zero(t, mon.ConsecutiveFailures("w1"))
	assert.Equal(t, model.HealthHealthy, registry.lastUpdate("w1"))
	assert.Equal(t, 1, mon.ConsecutiveFailures("w2"), "other workers keep their streaks")

	mon.ResetFailures("")
	assert.Zero(t, mon.ConsecutiveFailures("w2"))
}

func TestHealthStatusReportsRoutability(t *testing.T) {
	registry := newStubRegistry("good", "bad")
	prober := &stubProber{}
	prober.fail("bad")
	mon := NewMonitor(testConfig(1, false), testThresholds(), registry, prober, &stubReplacer{}, nil)

	ctx := context.Background()
	mon.PerformHealthChecks(ctx)

	status := mon.GetHealthStatus()
	assert.True(t, status["good"])
	assert.False(t, status["bad"], "critical workers are not routable")
}

func TestDepartedWorkersArePruned(t *testing.T) {
	registry := newStubRegistry("w1", "w2")
	prober := &stubProber{}
	prober.fail("w2")
	mon := NewMonitor(testConfig(1, false), testThresholds(), registry, prober, &stubReplacer{}, nil)

	ctx := context.Background()
	mon.PerformHealthChecks(ctx)
	require.Equal(t, 1, mon.ConsecutiveFailures("w2"))

	registry.mu.Lock()
	delete(registry.workers, "w2")
	registry.mu.Unlock()

	mon.PerformHealthChecks(ctx)
	assert.Zero(t, mon.ConsecutiveFailures("w2"), "state for departed workers is dropped")
}

func TestStartRespectsDisabledConfig(t *testing.T) {
	registry := newStubRegistry()
	cfg := testConfig(3, false)
	cfg.Enabled = boolPtr(false)
	mon := NewMonitor(cfg, testThresholds(), registry, &stubProber{}, &stubReplacer{}, nil)

	require.NoError(t, mon.Start(context.Background()))
	// A disabled monitor never marks itself running, so a second Start
	// must not report a conflict.
	require.NoError(t, mon.Start(context.Background()))
}
