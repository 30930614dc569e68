package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/balancer"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/ipc"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/metrics"
)

type stubProvider struct {
	workers []*model.Worker
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
func (p *stubProvider) GetWorkerMetrics(id string) (*model.WorkerMetrics, bool) { return nil, false }
func (p *stubProvider) GetAllWorkerMetrics() []*model.WorkerMetrics { return nil }
func (p *stubProvider) WorkerCount() int { return len(p.workers) }

// fakeWorker runs the worker side of the control channel: it reads dispatch
// frames and answers each with the result produced by respond.
func fakeWorker(t *testing.T, hub *ipc.Hub, workerID string, respond func(model.TaskDispatchPayload) model.TaskResultPayload) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Attach(context.Background(), workerID, conn)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env model.Envelope
			if json.Unmarshal(data, &env) != nil || env.Type != model.MessageTaskDispatch {
				continue
			}
			var dispatch model.TaskDispatchPayload
			if json.Unmarshal(env.Payload, &dispatch) != nil {
				continue
			}
			reply, err := ipc.NewEnvelope(model.MessageTaskResult, workerID, respond(dispatch))
			if err != nil {
				continue
			}
			out, _ := json.Marshal(reply)
			_ = conn.WriteMessage(websocket.TextMessage, out)
		}
	}()

	// Attach runs on the server goroutine; wait for the session.
	deadline := time.Now().Add(2 * time.Second)
	for !hub.Connected(workerID) {
		if time.Now().After(deadline) {
			t.Fatalf("worker %s session never attached", workerID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newTestDispatcher(p *stubProvider, hub *ipc.Hub) (*Dispatcher, *balancer.Balancer) {
	collector := metrics.NewCollector(config.MetricsConfig{Interval: 1, WindowSize: 10}, config.ThresholdsConfig{}, p, nil)
	lb := balancer.New(config.LoadBalancingConfig{Strategy: balancer.StrategyRoundRobin}, 10, p, nil)
	return NewDispatcher(nil, lb, hub, collector, 2*time.Second), lb
}

func TestHandleRoundTrip(t *testing.T) {
	p := &stubProvider{workers: []*model.Worker{{ID: "w1", Status: model.WorkerStatusOnline, Health: model.HealthHealthy}}}
	hub := ipc.NewHub()
	d, lb := newTestDispatcher(p, hub)

	fakeWorker(t, hub, "w1", func(dispatch model.TaskDispatchPayload) model.TaskResultPayload {
		return model.TaskResultPayload{
			TaskID:     dispatch.TaskID,
			WorkerID:   "w1",
			Output:     map[string]interface{}{"echo": dispatch.Input["n"]},
			DurationMs: 12.5,
		}
	})

	task := &model.Task{ID: "task-1", Input: map[string]interface{}{"n": float64(7)}, Status: model.TaskStatusPending, CreatedAt: time.Now()}
	require.NoError(t, d.Handle(context.Background(), task))

	assert.Equal(t, model.TaskStatusCompleted, task.Status)
	assert.Equal(t, "w1", task.WorkerID)
	assert.Equal(t, float64(7), task.Output["echo"])
	assert.Equal(t, 12.5, task.DurationMs)
	require.NotNil(t, task.CompletedAt)

	cached, ok := d.TaskResult("task-1")
	require.True(t, ok)
	assert.Equal(t, model.TaskStatusCompleted, cached.Status)

	// Connection count released after completion.
	assert.Equal(t, 0, lb.GetStatus().Connections["w1"])
}

func TestHandleWorkerError(t *testing.T) {
	p := &stubProvider{workers: []*model.Worker{{ID: "w1", Status: model.WorkerStatusOnline, Health: model.HealthHealthy}}}
	hub := ipc.NewHub()
	d, _ := newTestDispatcher(p, hub)

	fakeWorker(t, hub, "w1", func(dispatch model.TaskDispatchPayload) model.TaskResultPayload {
		return model.TaskResultPayload{TaskID: dispatch.TaskID, WorkerID: "w1", Error: "boom", DurationMs: 3}
	})

	task := &model.Task{ID: "task-2", Status: model.TaskStatusPending, CreatedAt: time.Now()}
	err := d.Handle(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, model.TaskStatusFailed, task.Status)

	cached, ok := d.TaskResult("task-2")
	require.True(t, ok)
	assert.Equal(t, "boom", cached.Error)
}

func TestHandleNoControlSession(t *testing.T) {
	p := &stubProvider{workers: []*model.Worker{{ID: "w1", Status: model.WorkerStatusOnline, Health: model.HealthHealthy}}}
	hub := ipc.NewHub()
	d, lb := newTestDispatcher(p, hub)

	task := &model.Task{ID: "task-3", Status: model.TaskStatusPending, CreatedAt: time.Now()}
	err := d.Handle(context.Background(), task)
	require.Error(t, err)

	// The failed dispatch must not leak a tracked connection.
	assert.Equal(t, 0, lb.GetStatus().Connections["w1"])
}

func TestHandleNoWorkers(t *testing.T) {
	hub := ipc.NewHub()
	d, _ := newTestDispatcher(&stubProvider{}, hub)

	task := &model.Task{ID: "task-4", Status: model.TaskStatusPending, CreatedAt: time.Now()}
	assert.Error(t, d.Handle(context.Background(), task))
}

func TestPendingDepthWithoutQueue(t *testing.T) {
	hub := ipc.NewHub()
	d, _ := newTestDispatcher(&stubProvider{}, hub)

	n, err := d.PendingDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
