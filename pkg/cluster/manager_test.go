package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/health"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/ipc"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/metrics"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/worker"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsDriver spawns fake worker "processes" that dial the coordinator hub
// over a real WebSocket, register online, answer pings and drains, and
// exit on the shutdown frame.
type wsDriver struct {
	wsURL  string
	pidSeq atomic.Int64
}

func (d *wsDriver) Spawn(ctx context.Context, spec *model.SpawnSpec) (worker.Process, error) {
	conn, _, err := websocket.DefaultDialer.Dial(d.wsURL+"?worker_id="+spec.WorkerID, nil)
	if err != nil {
		return nil, err
	}
	p := &wsProc{
		workerID: spec.WorkerID,
		pid:      int(d.pidSeq.Add(1)),
		conn:     conn,
		done:     make(chan error, 1),
		exit:     make(chan struct{}),
	}
	go p.announce()
	go p.run()
	return p, nil
}

type wsProc struct {
	workerID string
	pid      int
	conn     *websocket.Conn
	writeMu  sync.Mutex
	done     chan error
	exit     chan struct{}
	once     sync.Once
}

func (p *wsProc) PID() int { return p.pid }
func (p *wsProc) Done() <-chan error { return p.done }
func (p *wsProc) Kill() error        { p.terminate(); return nil }

func (p *wsProc) terminate() {
	p.once.Do(func() {
		close(p.exit)
		_ = p.conn.Close()
		p.done <- nil
		close(p.done)
	})
}

// announce retries the online frame: the registry slot appears only
// after Spawn returns, so the first frames can land before it exists.
func (p *wsProc) announce() {
	for i := 0; i < 50; i++ {
		select {
		case <-p.exit:
			return
		default:
		}
		p.send(model.MessageOnline, model.OnlinePayload{WorkerID: p.workerID, PID: p.pid})
		time.Sleep(20 * time.Millisecond)
	}
}

func (p *wsProc) run() {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.terminate()
			return
		}
		var env model.Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		switch env.Type {
		case model.MessagePing:
			var ping model.PingPayload
			_ = json.Unmarshal(env.Payload, &ping)
			p.send(model.MessagePong, model.PongPayload{Nonce: ping.Nonce, WorkerID: p.workerID})
		case model.MessageDrain:
			p.send(model.MessageDrained, nil)
		case model.MessageShutdown:
			p.terminate()
			return
		}
	}
}

func (p *wsProc) send(t model.MessageType, payload interface{}) {
	env, err := ipc.NewEnvelope(t, p.workerID, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	p.writeMu.Lock()
	_ = p.conn.WriteMessage(websocket.TextMessage, data)
	p.writeMu.Unlock()
}

func testConfig(workers int) *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Cluster.Workers = config.WorkerCount{Count: workers}
	cfg.Cluster.MinWorkers = 1
	cfg.Cluster.MaxWorkers = 10
	cfg.Cluster.StartTimeout = 2
	cfg.Cluster.ShutdownTimeout = 1
	cfg.Cluster.RestartDelay = 0
	cfg.Cluster.Deployment.MaxUnavailable = 1
	cfg.Cluster.Deployment.SettleDelay = 0
	enabled := false
	cfg.Cluster.HealthCheck.Enabled = &enabled
	cfg.Cluster.Metrics.Interval = 1
	return cfg
}

// newTestCluster wires a Manager around a real worker registry and hub;
// the autoscaler, balancer, and stores stay out of the loop.
func newTestCluster(t *testing.T, workers int) (*Manager, *worker.Manager) {
	t.Helper()
	cfg := testConfig(workers)
	hub := ipc.NewHub()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Attach(context.Background(), r.URL.Query().Get("worker_id"), conn)
	}))
	t.Cleanup(srv.Close)

	driver := &wsDriver{wsURL: "ws" + strings.TrimPrefix(srv.URL, "http")}
	workerMgr := worker.NewManager(&cfg.Cluster, driver, hub, nil, "test-cluster", srv.URL, "token")
	workerMgr.SetDesired(workers)

	monitor := health.NewMonitor(cfg.Cluster.HealthCheck, cfg.Cluster.Thresholds, workerMgr, hub, workerMgr, nil)
	collector := metrics.NewCollector(cfg.Cluster.Metrics, cfg.Cluster.Thresholds, workerMgr, nil)

	m := NewManager(cfg, Deps{
		Workers: workerMgr,
		Health:  monitor,
		Metrics: collector,
	})
	t.Cleanup(func() {
		if m.GetState() != model.StateStopped {
			_ = m.Stop(context.Background(), false)
		}
	})
	return m, workerMgr
}

func TestStartStopLifecycle(t *testing.T) {
	m, workers := newTestCluster(t, 2)

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, model.StateRunning, m.GetState())
	assert.Equal(t, 2, workers.ActiveWorkerCount())

	require.NoError(t, m.Stop(context.Background(), true))
	assert.Equal(t, model.StateStopped, m.GetState())
	assert.Equal(t, 0, workers.WorkerCount())
}

func TestRestartSingleWorkerReplaces(t *testing.T) {
	m, workers := newTestCluster(t, 1)
	require.NoError(t, m.Start(context.Background()))

	before := workers.GetActiveWorkers()
	require.Len(t, before, 1)

	require.NoError(t, m.Restart(context.Background(), before[0].ID))

	after := workers.GetActiveWorkers()
	require.Len(t, after, 1)
	assert.NotEqual(t, before[0].ID, after[0].ID)
}

func TestPauseResumeTransitions(t *testing.T) {
	m, _ := newTestCluster(t, 1)
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.Pause())
	assert.Equal(t, model.StatePaused, m.GetState())

	// Pausing twice is an illegal transition.
	assert.Error(t, m.Pause())

	require.NoError(t, m.Resume())
	assert.Equal(t, model.StateRunning, m.GetState())
}

func TestRollingUpdateReplacesAllInBatches(t *testing.T) {
	m, workers := newTestCluster(t, 3)
	require.NoError(t, m.Start(context.Background()))

	originals := workers.GetActiveWorkers()
	require.Len(t, originals, 3)
	originalIDs := make(map[string]bool, 3)
	for _, w := range originals {
		originalIDs[w.ID] = true
	}

	var mu sync.Mutex
	var updated []string
	maxDown := 0
	err := m.PerformRollingUpdate(context.Background(), func(ctx context.Context, workerID string) error {
		mu.Lock()
		updated = append(updated, workerID)
		mu.Unlock()
		down := 0
		for _, w := range workers.GetAllWorkers() {
			if w.Status == model.WorkerStatusDraining || w.Status == model.WorkerStatusStopping {
				down++
			}
		}
		if down > maxDown {
			maxDown = down
		}
		return nil
	})
	require.NoError(t, err)

	require.Len(t, updated, 3)
	for _, id := range updated {
		assert.True(t, originalIDs[id], "updateFn saw an unexpected worker %s", id)
	}
	assert.LessOrEqual(t, maxDown, 1)

	after := workers.GetActiveWorkers()
	require.Len(t, after, 3)
	for _, w := range after {
		assert.False(t, originalIDs[w.ID], "worker %s survived the rolling update", w.ID)
	}
}

func TestClusterBreakerFraction(t *testing.T) {
	m, workers := newTestCluster(t, 4)
	require.NoError(t, m.Start(context.Background()))

	active := workers.GetActiveWorkers()
	require.Len(t, active, 4)

	// Exactly half unhealthy does not trip the breaker.
	workers.UpdateHealth(active[0].ID, model.HealthCritical, 5)
	workers.UpdateHealth(active[1].ID, model.HealthCritical, 5)
	assert.False(t, m.IsCircuitOpen(""))

	// Strictly more than half does.
	workers.UpdateHealth(active[2].ID, model.HealthCritical, 5)
	assert.True(t, m.IsCircuitOpen(""))

	// Recovery closes it again.
	workers.UpdateHealth(active[2].ID, model.HealthHealthy, 0)
	assert.False(t, m.IsCircuitOpen(""))
}

func TestSaveStateWithoutStoreFails(t *testing.T) {
	m, _ := newTestCluster(t, 1)

	err := m.SaveState(context.Background())
	require.Error(t, err)

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodePersistence, cerr.Code)
}

func TestSnapshotCarriesDesiredCount(t *testing.T) {
	m, workers := newTestCluster(t, 2)
	require.NoError(t, m.Start(context.Background()))

	snap := m.Snapshot()
	assert.Equal(t, m.ClusterID(), snap.ClusterID)
	assert.Equal(t, model.StateRunning, snap.State)
	assert.Equal(t, workers.Desired(), snap.DesiredWorkers)
	assert.Len(t, snap.Workers, 2)
	assert.NotEmpty(t, snap.ConfigChecksum)
}

func TestStopRejectedWhenNotRunning(t *testing.T) {
	m, _ := newTestCluster(t, 1)
	assert.Error(t, m.Stop(context.Background(), true))
}
