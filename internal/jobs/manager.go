package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

// Job is one recurring coordinator chore (state snapshots, orphan
// reaping, audit cleanup).
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// AlignedJob delays its first run to the next interval boundary so
// every coordinator fires at the same wall-clock times.
type AlignedJob interface {
	Job
	AlignToInterval() bool
}

// Manager drives registered jobs on their intervals until stopped. A
// failing run is logged and the schedule keeps ticking; a panicking
// run is recovered and handed to OnPanic.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	// OnPanic receives recovered job panics. Nil means log-only.
	OnPanic func(ctx context.Context, recovered interface{})

	mu      sync.Mutex
	jobs    []Job
	started bool
	wg      sync.WaitGroup
}

// NewManager creates a job manager whose jobs stop with the parent
// context.
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{ctx: ctx, cancel: cancel}
}

// Register queues a job for Start. Nil jobs are ignored so callers can
// register conditionally-built jobs without guarding.
func (m *Manager) Register(job Job) {
	if job == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
}

// Start launches one schedule goroutine per registered job. Jobs
// registered after Start are not picked up.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	jobs := append([]Job(nil), m.jobs...)
	m.mu.Unlock()

	for _, job := range jobs {
		m.wg.Add(1)
		go m.schedule(job)
	}
	logger.Infof("job manager started %d jobs", len(jobs))
}

// Stop cancels every schedule. In-flight runs finish; use Wait to block
// on them.
func (m *Manager) Stop() {
	m.cancel()
}

// Wait blocks until every schedule goroutine has exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) schedule(job Job) {
	defer m.wg.Done()

	interval := job.Interval()
	if interval <= 0 {
		interval = time.Minute
	}

	if delay := m.firstDelay(job, interval); delay > 0 {
		logger.InfoCtx(m.ctx, "job %s first run in %s", job.Name(), delay.Round(time.Second))
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	m.runOnce(job)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.runOnce(job)
		}
	}
}

// firstDelay returns how long to hold the first run: zero for ordinary
// jobs, time-to-boundary for aligned ones.
func (m *Manager) firstDelay(job Job, interval time.Duration) time.Duration {
	aligned, ok := job.(AlignedJob)
	if !ok || !aligned.AlignToInterval() {
		return 0
	}
	now := time.Now()
	return now.Truncate(interval).Add(interval).Sub(now)
}

func (m *Manager) runOnce(job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(m.ctx, "job %s panicked: %v", job.Name(), r)
			if m.OnPanic != nil {
				m.OnPanic(m.ctx, r)
			}
		}
	}()
	if err := job.Run(m.ctx); err != nil {
		logger.WarnCtx(m.ctx, "job %s failed: %v", job.Name(), err)
	}
}
