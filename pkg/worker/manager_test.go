package worker

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
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/ipc"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/pubsub"
)

type fakeProcess struct {
	pid      int
	done     chan error
	killOnce sync.Once
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan error, 1)}
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Kill() error {
	p.killOnce.Do(func() {
		p.done <- nil
		close(p.done)
	})
	return nil
}

func (p *fakeProcess) Done() <-chan error { return p.done }

// exit simulates an unexpected process death.
func (p *fakeProcess) exit(err error) {
	p.killOnce.Do(func() {
		p.done <- err
		close(p.done)
	})
}

// fakeDriver spawns fake processes and, unless told otherwise, reports
// each worker online the way a real child's registration frame would.
type fakeDriver struct {
	mgr        *Manager
	autoOnline bool

	mu      sync.Mutex
	nextPID int
	procs   map[string]*fakeProcess
	spawns  int
}

func newFakeDriver(autoOnline bool) *fakeDriver {
	return &fakeDriver{autoOnline: autoOnline, nextPID: 1000, procs: make(map[string]*fakeProcess)}
}

func (d *fakeDriver) Spawn(ctx context.Context, spec *model.SpawnSpec) (Process, error) {
	d.mu.Lock()
	d.nextPID++
	d.spawns++
	proc := newFakeProcess(d.nextPID)
	d.procs[spec.WorkerID] = proc
	d.mu.Unlock()

	if d.autoOnline {
		go func() {
			env, err := ipc.NewEnvelope(model.MessageOnline, spec.WorkerID, model.OnlinePayload{
				WorkerID: spec.WorkerID,
				PID:      proc.pid,
				Version:  spec.Version,
			})
			if err != nil {
				return
			}
			// The registry entry appears only after Spawn returns, so
			// retry until the online transition lands.
			deadline := time.Now().Add(time.Second)
			for time.Now().Before(deadline) {
				d.mgr.handleOnline(ctx, env)
				if w, ok := d.mgr.GetWorker(spec.WorkerID); ok && w.Status == model.WorkerStatusOnline {
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()
	}
	return proc, nil
}

func (d *fakeDriver) proc(workerID string) *fakeProcess {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.procs[workerID]
}

func (d *fakeDriver) spawnCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.spawns
}

// recordingBus collects published events for assertions.
type recordingBus struct {
	mu     sync.Mutex
	events []model.Event
}

func (b *recordingBus) Publish(_ context.Context, e model.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, pubsub.Subscriber[model.Event]) error {
	return nil
}

func (b *recordingBus) Close(context.Context) error { return nil }

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Name)
	}
	return out
}

func (b *recordingBus) find(name string) (model.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e.Name == name {
			return e, true
		}
	}
	return model.Event{}, false
}

func testClusterConfig() *config.ClusterConfig {
	graceful := true
	return &config.ClusterConfig{
		MinWorkers:       1,
		MaxWorkers:       8,
		RestartDelay:     0,
		MaxRestarts:      2,
		GracefulShutdown: &graceful,
		StartTimeout:     2,
		ShutdownTimeout:  0,
		HealthCheck:      config.HealthCheckConfig{HeartbeatInterval: 5},
	}
}

func newTestManager(t *testing.T, autoOnline bool) (*Manager, *fakeDriver, *recordingBus) {
	t.Helper()
	driver := newFakeDriver(autoOnline)
	bus := &recordingBus{}
	m := NewManager(testClusterConfig(), driver, ipc.NewHub(), bus, "test-cluster", "ws://127.0.0.1:0", "token")
	driver.mgr = m
	return m, driver, bus
}

func TestStartSingleWorkerComesOnline(t *testing.T) {
	m, _, bus := newTestManager(t, true)

	w, err := m.StartSingleWorker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.WorkerStatusOnline, w.Status)
	assert.NotZero(t, w.PID)
	assert.Equal(t, 1, m.WorkerCount())
	assert.Equal(t, 1, m.ActiveWorkerCount())

	started, ok := bus.find(constants.EventWorkerStarted)
	require.True(t, ok)
	payload := started.Payload.(model.WorkerEventPayload)
	assert.Equal(t, w.ID, payload.WorkerID)
	assert.Equal(t, w.PID, payload.PID)
}

func TestStartWorkersReachesDesiredCount(t *testing.T) {
	m, _, _ := newTestManager(t, true)
	m.SetDesired(3)

	require.NoError(t, m.StartWorkers(context.Background()))
	assert.Equal(t, 3, m.ActiveWorkerCount())

	// Already at the desired count, a second call forks nothing.
	require.NoError(t, m.StartWorkers(context.Background()))
	assert.Equal(t, 3, m.ActiveWorkerCount())
}

func TestStartSingleWorkerTimesOutWithoutOnline(t *testing.T) {
	m, driver, _ := newTestManager(t, false)
	m.cfg.StartTimeout = 0 // no online frame will ever arrive

	_, err := m.StartSingleWorker(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not come online")
	assert.Zero(t, m.WorkerCount(), "failed start leaves no registry entry")
	assert.Equal(t, 1, driver.spawnCount())
}

func TestStopSingleWorkerRemovesFromRegistry(t *testing.T) {
	m, _, bus := newTestManager(t, true)

	w, err := m.StartSingleWorker(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.StopSingleWorker(context.Background(), w.ID, true))
	assert.Zero(t, m.WorkerCount())

	// A deliberate stop must not be reported as a death.
	time.Sleep(20 * time.Millisecond)
	assert.NotContains(t, bus.names(), constants.EventWorkerDied)
}

func TestStopUnknownWorkerFails(t *testing.T) {
	m, _, _ := newTestManager(t, true)
	err := m.StopSingleWorker(context.Background(), "nope", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker not found")
}

func TestUnexpectedExitReforksWorker(t *testing.T) {
	m, driver, bus := newTestManager(t, true)

	w, err := m.StartSingleWorker(context.Background())
	require.NoError(t, err)

	driver.proc(w.ID).exit(errors.New("boom"))

	require.Eventually(t, func() bool {
		workers := m.GetActiveWorkers()
		return len(workers) == 1 && workers[0].ID != w.ID
	}, 2*time.Second, 10*time.Millisecond, "a replacement is forked")

	replacement := m.GetActiveWorkers()[0]
	assert.Equal(t, 1, replacement.Restarts)

	died, ok := bus.find(constants.EventWorkerDied)
	require.True(t, ok)
	assert.Equal(t, w.ID, died.Payload.(model.WorkerEventPayload).WorkerID)
	_, ok = bus.find(constants.EventWorkerRestarted)
	assert.True(t, ok)
}

func TestStoppingManagerDoesNotRefork(t *testing.T) {
	m, driver, _ := newTestManager(t, true)

	w, err := m.StartSingleWorker(context.Background())
	require.NoError(t, err)

	m.SetStopping(true)
	driver.proc(w.ID).exit(errors.New("boom"))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, m.WorkerCount())
	assert.Equal(t, 1, driver.spawnCount())

	_, err = m.StartSingleWorker(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutting down")
}

func TestReplaceWorkerSwapsRegistryEntry(t *testing.T) {
	m, _, _ := newTestManager(t, true)

	w, err := m.StartSingleWorker(context.Background())
	require.NoError(t, err)

	replacement, err := m.ReplaceWorker(context.Background(), w.ID)
	require.NoError(t, err)
	assert.NotEqual(t, w.ID, replacement.ID)

	assert.Equal(t, 1, m.WorkerCount())
	_, ok := m.GetWorker(w.ID)
	assert.False(t, ok)
	_, ok = m.GetWorker(replacement.ID)
	assert.True(t, ok)
}

func TestHeartbeatUpdatesMetrics(t *testing.T) {
	m, _, _ := newTestManager(t, true)

	w, err := m.StartSingleWorker(context.Background())
	require.NoError(t, err)

	env, err := ipc.NewEnvelope(model.MessageHeartbeat, w.ID, model.HeartbeatPayload{
		WorkerID:       w.ID,
		CPUPercent:     42.5,
		MemoryBytes:    1 << 20,
		MemoryPercent:  12.5,
		ActiveRequests: 3,
		QueuedRequests: 7,
		TotalRequests:  100,
		ErrorCount:     2,
	})
	require.NoError(t, err)
	m.handleHeartbeat(context.Background(), env)

	wm, ok := m.GetWorkerMetrics(w.ID)
	require.True(t, ok)
	assert.InDelta(t, 42.5, wm.CPUPercent, 0.001)
	assert.Equal(t, 3, wm.ActiveRequests)
	assert.Equal(t, 7, wm.QueuedRequests)
	assert.Equal(t, uint64(100), wm.TotalRequests)
}

func TestUpdateHealthReflectsInProviderView(t *testing.T) {
	m, _, _ := newTestManager(t, true)

	w, err := m.StartSingleWorker(context.Background())
	require.NoError(t, err)

	m.UpdateHealth(w.ID, model.HealthCritical, 4)

	got, ok := m.GetWorker(w.ID)
	require.True(t, ok)
	assert.Equal(t, model.HealthCritical, got.Health)

	wm, ok := m.GetWorkerMetrics(w.ID)
	require.True(t, ok)
	assert.Equal(t, model.HealthCritical, wm.Health)
	assert.Equal(t, 4, wm.ConsecutiveFailures)
}

func TestGetUnhealthyWorkers(t *testing.T) {
	m, _, _ := newTestManager(t, true)
	m.SetDesired(3)
	require.NoError(t, m.StartWorkers(context.Background()))

	workers := m.GetAllWorkers()
	require.Len(t, workers, 3)
	assert.Empty(t, m.GetUnhealthyWorkers())

	m.UpdateHealth(workers[0].ID, model.HealthCritical, 5)
	m.UpdateHealth(workers[1].ID, model.HealthWarning, 1)

	unhealthy := m.GetUnhealthyWorkers()
	require.Len(t, unhealthy, 1)
	assert.Equal(t, workers[0].ID, unhealthy[0].ID)
}

func TestStopAllEmptiesRegistry(t *testing.T) {
	m, _, _ := newTestManager(t, true)
	m.SetDesired(3)
	require.NoError(t, m.StartWorkers(context.Background()))

	require.NoError(t, m.StopAll(context.Background(), false))
	assert.Zero(t, m.WorkerCount())
}

func TestExitReasonRedactsSecrets(t *testing.T) {
	m, _, _ := newTestManager(t, true)

	reason := m.exitReason(errors.New("spawn env PASSWORD=hunter2 rejected"))
	assert.NotContains(t, reason, "hunter2")
	assert.Contains(t, reason, "[redacted]")
}

func TestExitReasonNilError(t *testing.T) {
	m, _, _ := newTestManager(t, true)
	assert.Equal(t, "process exited", m.exitReason(nil))
}
