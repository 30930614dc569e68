// Package resource owns the orphan reaper: worker processes whose PID is
// still recorded in the state store but which no longer belong to the
// live registry get terminated, so a coordinator crash never leaks
// worker processes on the host.
package resource

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

// PIDRegistry is the durable worker-PID record the reaper diffs against
// the live registry. The Redis state repository implements it.
type PIDRegistry interface {
	WorkerPIDs(ctx context.Context) (map[string]int, error)
	ForgetWorkerPID(ctx context.Context, workerID string) error
}

// ReaperConfig tunes the orphan reaper.
type ReaperConfig struct {
	// CheckInterval is the interval between orphan scans.
	CheckInterval time.Duration `yaml:"checkInterval"`

	// GraceTimeout is how long an orphan gets to exit after SIGTERM
	// before it is killed.
	GraceTimeout time.Duration `yaml:"graceTimeout"`

	// MaxRetries is the number of SIGKILL attempts before giving up on
	// a PID.
	MaxRetries int `yaml:"maxRetries"`
}

// DefaultReaperConfig returns the default reaper configuration.
func DefaultReaperConfig() *ReaperConfig {
	return &ReaperConfig{
		CheckInterval: 30 * time.Second,
		GraceTimeout:  5 * time.Second,
		MaxRetries:    3,
	}
}

// reapInfo tracks one orphan across scan cycles.
type reapInfo struct {
	termSentAt time.Time
	retryCount int
}

// Reaper scans the PID registry for workers the coordinator no longer
// manages and terminates them: SIGTERM first, SIGKILL once the grace
// period has passed.
type Reaper struct {
	pids     PIDRegistry
	provider interfaces.WorkerProvider
	config   *ReaperConfig

	// Injectable for tests.
	kill  func(pid int, sig syscall.Signal) error
	alive func(pid int) bool

	orphans sync.Map // workerID -> reapInfo

	mu      sync.RWMutex
	running bool
}

// NewReaper creates a Reaper. A nil config uses the defaults.
func NewReaper(pids PIDRegistry, provider interfaces.WorkerProvider, config *ReaperConfig) *Reaper {
	if config == nil {
		config = DefaultReaperConfig()
	}
	return &Reaper{
		pids:     pids,
		provider: provider,
		config:   config,
		kill:     syscall.Kill,
		alive:    processAlive,
	}
}

// processAlive probes a PID with signal 0.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// Start runs the reaper loop until the context is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		logger.Warn("orphan reaper is already running")
		return
	}
	r.running = true
	r.mu.Unlock()

	logger.Info("orphan reaper started",
		zap.Duration("checkInterval", r.config.CheckInterval),
		zap.Duration("graceTimeout", r.config.GraceTimeout),
		zap.Int("maxRetries", r.config.MaxRetries),
	)

	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	r.CheckAndReap(ctx)

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
			logger.Info("orphan reaper stopped")
			return
		case <-ticker.C:
			r.CheckAndReap(ctx)
		}
	}
}

// CheckAndReap performs one scan: every recorded PID that is neither in
// the live registry nor the coordinator itself is an orphan.
func (r *Reaper) CheckAndReap(ctx context.Context) {
	recorded, err := r.pids.WorkerPIDs(ctx)
	if err != nil {
		logger.Error("failed to load recorded worker PIDs", zap.Error(err))
		return
	}

	self := os.Getpid()
	for workerID, pid := range recorded {
		if pid <= 0 || pid == self {
			continue
		}
		if _, ok := r.provider.GetWorker(workerID); ok {
			// Still managed; never touch it.
			r.orphans.Delete(workerID)
			continue
		}

		if !r.alive(pid) {
			r.forget(ctx, workerID, pid)
			continue
		}

		r.reap(ctx, workerID, pid)
	}

	r.cleanupTracked(recorded)
}

// reap escalates one orphan: SIGTERM on first sight, SIGKILL after the
// grace period, capped at MaxRetries kill attempts.
func (r *Reaper) reap(ctx context.Context, workerID string, pid int) {
	v, loaded := r.orphans.Load(workerID)
	if !loaded {
		logger.Warn("terminating orphaned worker process",
			zap.String("workerID", workerID),
			zap.Int("pid", pid),
		)
		if err := r.kill(pid, syscall.SIGTERM); err != nil {
			// Already gone between the probe and the signal.
			r.forget(ctx, workerID, pid)
			return
		}
		r.orphans.Store(workerID, reapInfo{termSentAt: time.Now()})
		return
	}

	info := v.(reapInfo)
	if time.Since(info.termSentAt) < r.config.GraceTimeout {
		return
	}
	if info.retryCount >= r.config.MaxRetries {
		logger.Error("giving up on orphaned worker process",
			zap.String("workerID", workerID),
			zap.Int("pid", pid),
			zap.Int("retryCount", info.retryCount),
		)
		return
	}

	logger.Warn("orphan survived grace period, killing",
		zap.String("workerID", workerID),
		zap.Int("pid", pid),
		zap.Int("attempt", info.retryCount+1),
	)
	if err := r.kill(pid, syscall.SIGKILL); err != nil {
		r.forget(ctx, workerID, pid)
		return
	}
	info.retryCount++
	r.orphans.Store(workerID, info)
}

// forget drops a dead orphan from the registry and from tracking.
func (r *Reaper) forget(ctx context.Context, workerID string, pid int) {
	if err := r.pids.ForgetWorkerPID(ctx, workerID); err != nil {
		logger.Error("failed to forget reaped worker PID",
			zap.String("workerID", workerID),
			zap.Int("pid", pid),
			zap.Error(err),
		)
		return
	}
	r.orphans.Delete(workerID)
	logger.Info("orphaned worker process reaped",
		zap.String("workerID", workerID),
		zap.Int("pid", pid),
	)
}

// cleanupTracked drops tracking entries whose PID record disappeared.
func (r *Reaper) cleanupTracked(recorded map[string]int) {
	r.orphans.Range(func(key, _ interface{}) bool {
		workerID := key.(string)
		if _, ok := recorded[workerID]; !ok {
			r.orphans.Delete(workerID)
		}
		return true
	})
}

// IsRunning reports whether the reaper loop is active.
func (r *Reaper) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// GetConfig returns the active configuration.
func (r *Reaper) GetConfig() *ReaperConfig {
	return r.config
}

// TrackedOrphanCount returns the number of orphans mid-escalation.
func (r *Reaper) TrackedOrphanCount() int {
	count := 0
	r.orphans.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
