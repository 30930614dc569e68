package balancer

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/pubsub"
)

// Strategy names.
const (
	StrategyRoundRobin       = "round-robin"
	StrategyLeastConnections = "least-connections"
	StrategyIPHash           = "ip-hash"
	StrategyWeighted         = "weighted"
)

// Request carries the selection context for one unit of work.
type Request struct {
	ClientIP string
	// Metadata may hold the session-affinity field configured for
	// ip-hash stickiness.
	Metadata map[string]string
}

// Options adjusts the balancer at runtime.
type Options struct {
	Weights            map[string]int
	SessionAffinityKey string
}

// Status is the observable balancer state.
type Status struct {
	Strategy           string           `json:"strategy"`
	SessionAffinityKey string           `json:"session_affinity_key,omitempty"`
	Weights            map[string]int   `json:"weights,omitempty"`
	Connections        map[string]int   `json:"connections"`
	LastSelected       string           `json:"last_selected,omitempty"`
	Efficiency         float64          `json:"efficiency"`
	ResponseTimes      map[string]float64 `json:"avg_response_times,omitempty"`
}

// Balancer routes each unit of work to one worker using the configured
// strategy. It owns its counters (connections, cursor, response-time
// windows); everyone else observes through GetStatus.
type Balancer struct {
	provider interfaces.WorkerProvider
	bus      pubsub.PubSub[model.Event]

	mu          sync.Mutex
	strategy    string
	weights     map[string]int
	affinityKey string
	connections map[string]int
	cursor      int
	last        string
	windows     map[string][]float64
	windowSize  int
	rng         *rand.Rand
}

// New creates a balancer from the load-balancing configuration.
func New(cfg config.LoadBalancingConfig, windowSize int, provider interfaces.WorkerProvider, bus pubsub.PubSub[model.Event]) *Balancer {
	if windowSize <= 0 {
		windowSize = constants.DefaultWindowSize
	}
	weights := make(map[string]int, len(cfg.Weights))
	for k, v := range cfg.Weights {
		weights[k] = v
	}
	return &Balancer{
		provider:    provider,
		bus:         bus,
		strategy:    cfg.Strategy,
		weights:     weights,
		affinityKey: cfg.SessionAffinityKey,
		connections: make(map[string]int),
		windows:     make(map[string][]float64),
		windowSize:  windowSize,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Select chooses the target worker for one request and counts a
// connection against it. When no worker is healthy it falls back to the
// first worker of the full list with a warning instead of failing.
func (b *Balancer) Select(ctx context.Context, req *Request) (*model.Worker, error) {
	all := b.provider.GetActiveWorkers()
	if len(all) == 0 {
		return nil, fmt.Errorf("no workers available")
	}

	healthy := make([]*model.Worker, 0, len(all))
	for _, w := range all {
		if w.Health.Routable() {
			healthy = append(healthy, w)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var target *model.Worker
	if len(healthy) == 0 {
		logger.WarnCtx(ctx, "no healthy workers, falling back to %s", all[0].ID)
		target = all[0]
	} else {
		switch b.strategy {
		case StrategyLeastConnections:
			target = b.pickLeastConnections(healthy)
		case StrategyIPHash:
			target = b.pickIPHash(healthy, req)
		case StrategyWeighted:
			target = b.pickWeighted(healthy)
		default:
			target = b.pickRoundRobin(healthy)
		}
	}

	b.connections[target.ID]++
	b.last = target.ID
	return target, nil
}

// Release returns a connection slot after the dispatched work finishes.
func (b *Balancer) Release(workerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connections[workerID] > 0 {
		b.connections[workerID]--
	}
}

// pickRoundRobin walks the healthy list cyclically: every healthy worker
// is chosen once per full cycle as long as the set is unchanged.
func (b *Balancer) pickRoundRobin(healthy []*model.Worker) *model.Worker {
	target := healthy[b.cursor%len(healthy)]
	b.cursor = (b.cursor + 1) % len(healthy)
	return target
}

// pickLeastConnections prefers the smallest tracked connections plus
// in-flight requests, ties broken by list order.
func (b *Balancer) pickLeastConnections(healthy []*model.Worker) *model.Worker {
	target := healthy[0]
	best := math.MaxInt
	for _, w := range healthy {
		load := b.connections[w.ID]
		if wm, ok := b.provider.GetWorkerMetrics(w.ID); ok {
			load += wm.ActiveRequests
		}
		if load < best {
			best = load
			target = w
		}
	}
	return target
}

// pickIPHash hashes the affinity value (the configured session-affinity
// field when present, otherwise the client IP) with FNV-1a; the request
// sticks to its worker while the worker set is unchanged.
func (b *Balancer) pickIPHash(healthy []*model.Worker, req *Request) *model.Worker {
	key := ""
	if req != nil {
		if b.affinityKey != "" && req.Metadata != nil {
			key = req.Metadata[b.affinityKey]
		}
		if key == "" {
			key = req.ClientIP
		}
	}
	if key == "" {
		return b.pickRoundRobin(healthy)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return healthy[int(h.Sum32())%len(healthy)]
}

// pickWeighted runs cumulative-weight random selection; an unset weight
// counts as 1, and a zero total falls back to round-robin.
func (b *Balancer) pickWeighted(healthy []*model.Worker) *model.Worker {
	total := 0
	cumulative := make([]int, len(healthy))
	for i, w := range healthy {
		weight, ok := b.weights[w.ID]
		if !ok {
			weight = 1
		}
		if weight < 0 {
			weight = 0
		}
		total += weight
		cumulative[i] = total
	}
	if total == 0 {
		return b.pickRoundRobin(healthy)
	}
	n := b.rng.Intn(total)
	for i, c := range cumulative {
		if n < c {
			return healthy[i]
		}
	}
	return healthy[len(healthy)-1]
}

// RecordResponseTime feeds one observed response time into the worker's
// capped rolling window.
func (b *Balancer) RecordResponseTime(workerID string, durationMs float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.windows[workerID]
	w = append(w, durationMs)
	if len(w) > b.windowSize {
		w = w[len(w)-b.windowSize:]
	}
	b.windows[workerID] = w
}

// UpdateStrategy switches the routing strategy at runtime.
func (b *Balancer) UpdateStrategy(ctx context.Context, strategy string, opts *Options) error {
	switch strategy {
	case StrategyRoundRobin, StrategyLeastConnections, StrategyIPHash, StrategyWeighted:
	default:
		return fmt.Errorf("unknown load balancing strategy %q", strategy)
	}

	b.mu.Lock()
	b.strategy = strategy
	b.cursor = 0
	if opts != nil {
		if opts.Weights != nil {
			b.weights = make(map[string]int, len(opts.Weights))
			for k, v := range opts.Weights {
				b.weights[k] = v
			}
		}
		if opts.SessionAffinityKey != "" {
			b.affinityKey = opts.SessionAffinityKey
		}
	}
	b.mu.Unlock()

	b.emit(ctx, model.BalancerEventPayload{Strategy: strategy, Reason: "strategy updated"})
	return nil
}

// UpdateWeights replaces the weighted-strategy weight map.
func (b *Balancer) UpdateWeights(ctx context.Context, weights map[string]int) {
	b.mu.Lock()
	b.weights = make(map[string]int, len(weights))
	for k, v := range weights {
		b.weights[k] = v
	}
	strategy := b.strategy
	b.mu.Unlock()
	b.emit(ctx, model.BalancerEventPayload{Strategy: strategy, Reason: "weights updated"})
}

// Redistribute resets the connection counters and the round-robin
// cursor so load re-spreads from a clean slate.
func (b *Balancer) Redistribute(ctx context.Context) {
	b.mu.Lock()
	b.connections = make(map[string]int)
	b.cursor = 0
	strategy := b.strategy
	b.mu.Unlock()
	b.emit(ctx, model.BalancerEventPayload{Strategy: strategy, Reason: "load redistributed"})
}

// GetStatus returns the observable balancer state, including the
// distribution efficiency.
func (b *Balancer) GetStatus() *Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	conns := make(map[string]int, len(b.connections))
	for k, v := range b.connections {
		conns[k] = v
	}
	weights := make(map[string]int, len(b.weights))
	for k, v := range b.weights {
		weights[k] = v
	}
	rts := make(map[string]float64, len(b.windows))
	for id, w := range b.windows {
		if len(w) == 0 {
			continue
		}
		var sum float64
		for _, v := range w {
			sum += v
		}
		rts[id] = sum / float64(len(w))
	}

	return &Status{
		Strategy:           b.strategy,
		SessionAffinityKey: b.affinityKey,
		Weights:            weights,
		Connections:        conns,
		LastSelected:       b.last,
		Efficiency:         efficiency(b.provider.GetActiveWorkers(), b.connections),
		ResponseTimes:      rts,
	}
}

// Strategy returns the active strategy name.
func (b *Balancer) Strategy() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.strategy
}

// efficiency is 100 − min(100, coefficientOfVariation × 100) over the
// per-worker connection counts: 100 means perfectly even distribution.
func efficiency(workers []*model.Worker, connections map[string]int) float64 {
	if len(workers) == 0 {
		return 100
	}
	var sum float64
	counts := make([]float64, 0, len(workers))
	for _, w := range workers {
		c := float64(connections[w.ID])
		counts = append(counts, c)
		sum += c
	}
	mean := sum / float64(len(counts))
	if mean == 0 {
		return 100
	}
	var variance float64
	for _, c := range counts {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(counts))
	cov := math.Sqrt(variance) / mean
	return 100 - math.Min(100, cov*100)
}

func (b *Balancer) emit(ctx context.Context, payload model.BalancerEventPayload) {
	if b.bus == nil {
		return
	}
	_ = b.bus.Publish(ctx, model.NewEvent(constants.EventLoadBalancerUpdated, payload))
}
