package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
)

type stubProvider struct {
	workers []*model.Worker
	metrics []*model.WorkerMetrics
}

func (p *stubProvider) GetAllWorkers() []*model.Worker { return p.workers }
func (p *stubProvider) GetActiveWorkers() []*model.Worker { return p.workers }
func (p *stubProvider) GetWorker(id string) (*model.Worker, bool) {
	for _, w := range p.workers {
		if w.ID == id {
			return w, true
		}
	}
	return nil, false
}
func (p *stubProvider) GetWorkerMetrics(id string) (*model.WorkerMetrics, bool) {
	for _, m := range p.metrics {
		if m.WorkerID == id {
			clone := *m
			return &clone, true
		}
	}
	return nil, false
}
func (p *stubProvider) GetAllWorkerMetrics() []*model.WorkerMetrics {
	out := make([]*model.WorkerMetrics, 0, len(p.metrics))
	for _, m := range p.metrics {
		clone := *m
		out = append(out, &clone)
	}
	return out
}
func (p *stubProvider) WorkerCount() int { return len(p.workers) }

func addWorker(p *stubProvider, id string, health model.HealthState, wm model.WorkerMetrics) {
	p.workers = append(p.workers, &model.Worker{ID: id, Status: model.WorkerStatusOnline, Health: health})
	wm.WorkerID = id
	wm.Health = health
	p.metrics = append(p.metrics, &wm)
}

func testCollector(p *stubProvider, queueDepth QueueDepthFunc) *Collector {
	cfg := config.MetricsConfig{Interval: 1, WindowSize: 4}
	thresholds := config.ThresholdsConfig{
		HealthyFraction:  0.7,
		CriticalFraction: 0.3,
	}
	return NewCollector(cfg, thresholds, p, queueDepth)
}

func TestCollectAggregatesWorkerMetrics(t *testing.T) {
	p := &stubProvider{}
	addWorker(p, "w1", model.HealthHealthy, model.WorkerMetrics{
		CPUPercent: 40, MemoryPercent: 20, TotalRequests: 100, ErrorCount: 5, QueuedRequests: 2,
	})
	addWorker(p, "w2", model.HealthHealthy, model.WorkerMetrics{
		CPUPercent: 60, MemoryPercent: 40, TotalRequests: 100, ErrorCount: 5, QueuedRequests: 3,
	})
	c := testCollector(p, nil)

	cm := c.GetClusterMetrics(context.Background())
	assert.Equal(t, 2, cm.ActiveWorkers)
	assert.Equal(t, 2, cm.TotalWorkers)
	assert.Equal(t, 2, cm.HealthyWorkers)
	assert.InDelta(t, 50.0, cm.AvgCPUPercent, 0.001)
	assert.InDelta(t, 30.0, cm.AvgMemoryPercent, 0.001)
	assert.Equal(t, uint64(200), cm.TotalRequests)
	assert.Equal(t, uint64(10), cm.TotalErrors)
	assert.InDelta(t, 0.05, cm.ErrorRate, 0.001)
	assert.Equal(t, 5, cm.QueuedRequests)
	assert.Equal(t, model.VerdictHealthy, cm.Health)
}

func TestQueueDepthAddsToQueuedRequests(t *testing.T) {
	p := &stubProvider{}
	addWorker(p, "w1", model.HealthHealthy, model.WorkerMetrics{QueuedRequests: 1})
	c := testCollector(p, func(context.Context) (int, error) { return 7, nil })

	cm := c.GetClusterMetrics(context.Background())
	assert.Equal(t, 8, cm.QueuedRequests)
}

func TestQueueDepthErrorIsIgnored(t *testing.T) {
	p := &stubProvider{}
	addWorker(p, "w1", model.HealthHealthy, model.WorkerMetrics{QueuedRequests: 1})
	c := testCollector(p, func(context.Context) (int, error) { return 0, errors.New("queue down") })

	cm := c.GetClusterMetrics(context.Background())
	assert.Equal(t, 1, cm.QueuedRequests)
}

func TestVerdictFollowsHealthyFraction(t *testing.T) {
	tests := []struct {
		name    string
		healths []model.HealthState
		want    model.HealthVerdict
	}{
		{"all healthy", []model.HealthState{model.HealthHealthy, model.HealthHealthy}, model.VerdictHealthy},
		{"half healthy", []model.HealthState{model.HealthHealthy, model.HealthCritical}, model.VerdictWarning},
		{"minority healthy", []model.HealthState{model.HealthHealthy, model.HealthCritical, model.HealthCritical, model.HealthDead}, model.VerdictCritical},
		{"no workers", nil, model.VerdictCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubProvider{}
			for i, h := range tt.healths {
				addWorker(p, string(rune('a'+i)), h, model.WorkerMetrics{})
			}
			c := testCollector(p, nil)
			cm := c.GetClusterMetrics(context.Background())
			assert.Equal(t, tt.want, cm.Health)
		})
	}
}

func TestRollingWindowOverlaysResponseTime(t *testing.T) {
	p := &stubProvider{}
	addWorker(p, "w1", model.HealthHealthy, model.WorkerMetrics{AvgResponseTime: 999})
	c := testCollector(p, nil)

	c.RecordResponse("w1", 10, false)
	c.RecordResponse("w1", 20, false)

	wm, ok := c.GetWorkerMetrics("w1")
	require.True(t, ok)
	assert.InDelta(t, 15.0, wm.AvgResponseTime, 0.001, "window average replaces the heartbeat value")
}

func TestRollingWindowEvictsOldest(t *testing.T) {
	p := &stubProvider{}
	addWorker(p, "w1", model.HealthHealthy, model.WorkerMetrics{})
	c := testCollector(p, nil) // window size 4

	for _, v := range []float64{100, 100, 100, 100, 20, 20, 20, 20} {
		c.RecordResponse("w1", v, false)
	}

	wm, ok := c.GetWorkerMetrics("w1")
	require.True(t, ok)
	assert.InDelta(t, 20.0, wm.AvgResponseTime, 0.001, "old samples fall out of the window")
}

func TestAggregatedMetricsIdleSignal(t *testing.T) {
	p := &stubProvider{}
	addWorker(p, "w1", model.HealthHealthy, model.WorkerMetrics{})
	c := testCollector(p, nil)

	am := c.GetAggregatedMetrics(context.Background())
	assert.Zero(t, am.IdleSeconds, "no dispatch yet means no idle signal")

	c.MarkDispatch()
	am = c.GetAggregatedMetrics(context.Background())
	assert.GreaterOrEqual(t, am.IdleSeconds, 0.0)
	assert.Less(t, am.IdleSeconds, 1.0)
}

func TestResetCountersDropsWindows(t *testing.T) {
	p := &stubProvider{}
	addWorker(p, "w1", model.HealthHealthy, model.WorkerMetrics{AvgResponseTime: 42})
	c := testCollector(p, nil)

	c.RecordResponse("w1", 10, true)
	c.ResetCounters()

	wm, ok := c.GetWorkerMetrics("w1")
	require.True(t, ok)
	assert.InDelta(t, 42.0, wm.AvgResponseTime, 0.001, "heartbeat value shows once windows are cleared")
}

func TestStartTwiceFails(t *testing.T) {
	c := testCollector(&stubProvider{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx))
	require.Error(t, c.Start(ctx))
	c.Stop()
	require.NoError(t, c.Start(ctx))
	c.Stop()
}
