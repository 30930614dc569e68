package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

// QueueDepthFunc reports the ingestion queue's pending length. Nil means
// no queue is configured and the signal stays at the heartbeat-reported
// per-worker queue totals.
type QueueDepthFunc func(ctx context.Context) (int, error)

// window is a capped rolling response-time buffer, oldest-first evicted.
type window struct {
	samples []float64
	next    int
	full    bool
}

func newWindow(size int) *window {
	return &window{samples: make([]float64, size)}
}

func (w *window) add(v float64) {
	w.samples[w.next] = v
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
}

func (w *window) average() float64 {
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += w.samples[i]
	}
	return sum / float64(n)
}

func (w *window) count() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

// Collector samples cluster-wide resource and request metrics on its own
// interval, independent of the health monitor. Per-worker usage arrives
// through heartbeats in the registry; the collector aggregates it and
// keeps capped rolling response-time windows per worker for trend
// analysis.
type Collector struct {
	cfg        config.MetricsConfig
	thresholds config.ThresholdsConfig
	provider   interfaces.WorkerProvider
	queueDepth QueueDepthFunc

	mu           sync.RWMutex
	windows      map[string]*window
	dispatched   uint64
	dispatchErrs uint64
	lastDispatch time.Time
	latest       *model.ClusterMetrics

	runMu   sync.Mutex
	running bool
	paused  bool
	stopCh  chan struct{}
}

// NewCollector creates the metrics collector.
func NewCollector(cfg config.MetricsConfig, thresholds config.ThresholdsConfig, provider interfaces.WorkerProvider, queueDepth QueueDepthFunc) *Collector {
	return &Collector{
		cfg:        cfg,
		thresholds: thresholds,
		provider:   provider,
		queueDepth: queueDepth,
		windows:    make(map[string]*window),
	}
}

// Start launches the sampling loop.
func (c *Collector) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return fmt.Errorf("metrics collector is already running")
	}
	c.running = true
	c.stopCh = make(chan struct{})
	go c.loop(ctx, c.stopCh)
	return nil
}

// Stop halts the sampling loop.
func (c *Collector) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if !c.running {
		return
	}
	close(c.stopCh)
	c.running = false
}

// Pause suspends sampling; Resume re-enables it.
func (c *Collector) Pause() {
	c.runMu.Lock()
	c.paused = true
	c.runMu.Unlock()
}

func (c *Collector) Resume() {
	c.runMu.Lock()
	c.paused = false
	c.runMu.Unlock()
}

func (c *Collector) isPaused() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.paused
}

func (c *Collector) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(time.Duration(c.cfg.Interval) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.isPaused() {
				continue
			}
			snapshot := c.collect(ctx)
			c.mu.Lock()
			c.latest = snapshot
			c.mu.Unlock()
			logger.DebugCtx(ctx, "metrics cycle: %d workers, cpu %.1f%%, queue %d",
				snapshot.ActiveWorkers, snapshot.AvgCPUPercent, snapshot.QueuedRequests)
		}
	}
}

// RecordResponse feeds one completed dispatch into the per-worker
// rolling window and the cluster error counters.
func (c *Collector) RecordResponse(workerID string, durationMs float64, isError bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[workerID]
	if !ok {
		w = newWindow(c.cfg.WindowSize)
		c.windows[workerID] = w
	}
	w.add(durationMs)
	c.dispatched++
	if isError {
		c.dispatchErrs++
	}
	c.lastDispatch = time.Now()
}

// MarkDispatch records that work was handed to a worker, for the idle
// signal.
func (c *Collector) MarkDispatch() {
	c.mu.Lock()
	c.lastDispatch = time.Now()
	c.mu.Unlock()
}

// GetClusterMetrics computes a fresh point-in-time aggregate.
func (c *Collector) GetClusterMetrics(ctx context.Context) *model.ClusterMetrics {
	return c.collect(ctx)
}

// LatestClusterMetrics returns the last sampled aggregate, or a fresh
// one when the loop has not run yet.
func (c *Collector) LatestClusterMetrics(ctx context.Context) *model.ClusterMetrics {
	c.mu.RLock()
	latest := c.latest
	c.mu.RUnlock()
	if latest != nil {
		return latest
	}
	return c.collect(ctx)
}

// GetWorkerMetrics returns one worker's metrics, with the rolling
// response-time average overlaid where samples exist.
func (c *Collector) GetWorkerMetrics(workerID string) (*model.WorkerMetrics, bool) {
	wm, ok := c.provider.GetWorkerMetrics(workerID)
	if !ok {
		return nil, false
	}
	c.mu.RLock()
	if w, exists := c.windows[workerID]; exists && w.count() > 0 {
		wm.AvgResponseTime = w.average()
	}
	c.mu.RUnlock()
	return wm, true
}

// GetAggregatedMetrics returns the flattened view the scaling decision
// engine consumes.
func (c *Collector) GetAggregatedMetrics(ctx context.Context) *model.AggregatedMetrics {
	cm := c.collect(ctx)

	c.mu.RLock()
	idle := 0.0
	if !c.lastDispatch.IsZero() {
		idle = time.Since(c.lastDispatch).Seconds()
	}
	c.mu.RUnlock()

	return &model.AggregatedMetrics{
		CPUPercent:      cm.AvgCPUPercent,
		MemoryPercent:   cm.AvgMemoryPercent,
		AvgResponseTime: cm.AvgResponseTime,
		QueueLength:     cm.QueuedRequests,
		ErrorRate:       cm.ErrorRate,
		IdleSeconds:     idle,
		ActiveWorkers:   cm.ActiveWorkers,
		Timestamp:       cm.Timestamp,
	}
}

func (c *Collector) collect(ctx context.Context) *model.ClusterMetrics {
	all := c.provider.GetAllWorkerMetrics()
	active := c.provider.GetActiveWorkers()

	cm := &model.ClusterMetrics{
		ActiveWorkers: len(active),
		TotalWorkers:  c.provider.WorkerCount(),
		Timestamp:     time.Now(),
	}

	var cpuSum, memSum, rtSum float64
	var rtCount int
	c.mu.RLock()
	for _, wm := range all {
		cm.TotalRequests += wm.TotalRequests
		cm.TotalErrors += wm.ErrorCount
		cm.TotalMemoryBytes += wm.MemoryBytes
		cm.QueuedRequests += wm.QueuedRequests
		cpuSum += wm.CPUPercent
		memSum += wm.MemoryPercent
		if wm.Health.Routable() {
			cm.HealthyWorkers++
		}
		if w, ok := c.windows[wm.WorkerID]; ok && w.count() > 0 {
			wm.AvgResponseTime = w.average()
		}
		if wm.AvgResponseTime > 0 {
			rtSum += wm.AvgResponseTime
			rtCount++
		}
		cm.Workers = append(cm.Workers, *wm)
	}
	c.mu.RUnlock()

	if len(all) > 0 {
		cm.AvgCPUPercent = cpuSum / float64(len(all))
		cm.AvgMemoryPercent = memSum / float64(len(all))
	}
	if rtCount > 0 {
		cm.AvgResponseTime = rtSum / float64(rtCount)
	}
	if cm.TotalRequests > 0 {
		cm.ErrorRate = float64(cm.TotalErrors) / float64(cm.TotalRequests)
	}

	if c.queueDepth != nil {
		if depth, err := c.queueDepth(ctx); err == nil {
			cm.QueuedRequests += depth
		} else {
			logger.DebugCtx(ctx, "queue depth probe failed: %v", err)
		}
	}

	cm.Health = c.verdict(cm)
	return cm
}

// verdict maps the healthy-worker fraction to the cluster health
// classification. The thresholds are independent from the circuit
// breaker's fraction.
func (c *Collector) verdict(cm *model.ClusterMetrics) model.HealthVerdict {
	if cm.TotalWorkers == 0 {
		return model.VerdictCritical
	}
	fraction := float64(cm.HealthyWorkers) / float64(cm.TotalWorkers)
	switch {
	case fraction >= c.thresholds.HealthyFraction:
		return model.VerdictHealthy
	case fraction <= c.thresholds.CriticalFraction:
		return model.VerdictCritical
	default:
		return model.VerdictWarning
	}
}

// ResetCounters clears the dispatch counters and rolling windows.
// Periodic resets bound unbounded growth over long uptimes.
func (c *Collector) ResetCounters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows = make(map[string]*window)
	c.dispatched = 0
	c.dispatchErrs = 0
}
