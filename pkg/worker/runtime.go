package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/ipc"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

// TaskFunc executes one dispatched unit of work inside a worker process.
type TaskFunc func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)

// Runtime is the worker-process side of the cluster: it dials back to
// the coordinator with the identity from its spawn spec, reports
// readiness, heartbeats its resource usage, and serves control frames
// and task dispatches until told to shut down.
type Runtime struct {
	spec    model.SpawnSpec
	taskFn  TaskFunc
	sampler *Sampler

	conn    *websocket.Conn
	writeMu sync.Mutex

	draining atomic.Bool
	shutdown chan struct{}

	active        atomic.Int64
	total         atomic.Uint64
	errors        atomic.Uint64
	durationMicro atomic.Uint64 // summed task durations for the running average
}

// ParseSpawnSpec extracts the JSON spawn spec from worker subcommand
// arguments.
func ParseSpawnSpec(args []string) (*model.SpawnSpec, error) {
	for i := 0; i < len(args); i++ {
		if args[i] == constants.WorkerSpecFlag && i+1 < len(args) {
			var spec model.SpawnSpec
			if err := json.Unmarshal([]byte(args[i+1]), &spec); err != nil {
				return nil, fmt.Errorf("failed to parse spawn spec: %w", err)
			}
			if spec.WorkerID == "" {
				return nil, fmt.Errorf("spawn spec is missing worker_id")
			}
			return &spec, nil
		}
	}
	return nil, fmt.Errorf("missing %s argument", constants.WorkerSpecFlag)
}

// NewRuntime creates a worker runtime. A nil taskFn installs the echo
// executor.
func NewRuntime(spec *model.SpawnSpec, totalMemory uint64, taskFn TaskFunc) *Runtime {
	if taskFn == nil {
		taskFn = EchoTask
	}
	return &Runtime{
		spec:     *spec,
		taskFn:   taskFn,
		sampler:  NewSampler(totalMemory),
		shutdown: make(chan struct{}),
	}
}

// EchoTask is the built-in task executor: it mirrors the input back,
// optionally sleeping input["sleep_ms"] first to simulate work.
func EchoTask(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if ms, ok := input["sleep_ms"].(float64); ok && ms > 0 {
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return map[string]interface{}{"echo": input}, nil
}

// Run connects to the coordinator and serves until shutdown is
// requested or the control connection drops.
func (r *Runtime) Run(ctx context.Context) error {
	url := r.spec.CoordinatorURL + constants.WorkerSocketPath
	header := http.Header{}
	header.Set(constants.WorkerIDHeader, r.spec.WorkerID)
	header.Set(constants.WorkerAuthHeader, r.spec.AuthToken)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to register with coordinator (%d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to register with coordinator: %w", err)
	}
	r.conn = conn
	defer conn.Close()

	if err := r.send(model.MessageOnline, model.OnlinePayload{
		WorkerID: r.spec.WorkerID,
		PID:      os.Getpid(),
		Version:  r.spec.Version,
	}); err != nil {
		return fmt.Errorf("failed to report online: %w", err)
	}

	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	go r.heartbeatLoop(hbCtx)

	for {
		select {
		case <-r.shutdown:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-r.shutdown:
				return nil
			default:
				return fmt.Errorf("control connection lost: %w", err)
			}
		}

		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warnf("worker %s: dropping malformed frame: %v", r.spec.WorkerID, err)
			continue
		}
		r.handle(ctx, &env)
	}
}

func (r *Runtime) handle(ctx context.Context, env *model.Envelope) {
	switch env.Type {
	case model.MessagePing:
		var ping model.PingPayload
		if err := json.Unmarshal(env.Payload, &ping); err != nil {
			return
		}
		_ = r.send(model.MessagePong, model.PongPayload{Nonce: ping.Nonce, WorkerID: r.spec.WorkerID})

	case model.MessageDrain:
		if r.draining.CompareAndSwap(false, true) {
			go r.confirmDrained(ctx)
		}

	case model.MessageShutdown:
		close(r.shutdown)
		_ = r.conn.Close()

	case model.MessageTaskDispatch:
		var dispatch model.TaskDispatchPayload
		if err := json.Unmarshal(env.Payload, &dispatch); err != nil {
			logger.Warnf("worker %s: malformed task dispatch: %v", r.spec.WorkerID, err)
			return
		}
		go r.execute(ctx, &dispatch)

	case model.MessageApp, model.MessageBroadcast:
		// Application frames have no built-in handling; they exist for
		// embedders that read them off the runtime.
	}
}

func (r *Runtime) execute(ctx context.Context, dispatch *model.TaskDispatchPayload) {
	if r.draining.Load() {
		_ = r.send(model.MessageTaskResult, model.TaskResultPayload{
			TaskID:   dispatch.TaskID,
			WorkerID: r.spec.WorkerID,
			Error:    "worker is draining",
		})
		return
	}

	r.active.Add(1)
	start := time.Now()
	output, err := r.taskFn(ctx, dispatch.Input)
	duration := time.Since(start)
	r.active.Add(-1)
	r.total.Add(1)
	r.durationMicro.Add(uint64(duration.Microseconds()))

	result := model.TaskResultPayload{
		TaskID:     dispatch.TaskID,
		WorkerID:   r.spec.WorkerID,
		Output:     output,
		DurationMs: float64(duration.Microseconds()) / 1000,
	}
	if err != nil {
		r.errors.Add(1)
		result.Error = err.Error()
	}
	_ = r.send(model.MessageTaskResult, result)
}

func (r *Runtime) confirmDrained(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdown:
			return
		case <-ticker.C:
			if r.active.Load() == 0 {
				_ = r.send(model.MessageDrained, nil)
				return
			}
		}
	}
}

func (r *Runtime) heartbeatLoop(ctx context.Context) {
	interval := time.Duration(r.spec.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = constants.DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdown:
			return
		case <-ticker.C:
			cpu, memBytes, memPct := r.sampler.Sample()
			total := r.total.Load()
			avg := 0.0
			if total > 0 {
				avg = float64(r.durationMicro.Load()) / float64(total) / 1000
			}
			_ = r.send(model.MessageHeartbeat, model.HeartbeatPayload{
				WorkerID:        r.spec.WorkerID,
				PID:             os.Getpid(),
				CPUPercent:      cpu,
				MemoryBytes:     memBytes,
				MemoryPercent:   memPct,
				ActiveRequests:  int(r.active.Load()),
				TotalRequests:   total,
				ErrorCount:      r.errors.Load(),
				AvgResponseTime: avg,
				Timestamp:       time.Now().Unix(),
			})
		}
	}
}

func (r *Runtime) send(t model.MessageType, payload interface{}) error {
	env, err := ipc.NewEnvelope(t, r.spec.WorkerID, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return r.conn.WriteMessage(websocket.TextMessage, data)
}

const writeDeadline = 10 * time.Second
