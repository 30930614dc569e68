package ipc

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/hashicorp/go-multierror"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/pubsub"
)

// Manager is the coordinator's messaging surface. Delivery is
// fire-and-forget: a failure to one worker is reported but never blocks
// delivery to the rest.
type Manager struct {
	hub      *Hub
	provider interfaces.WorkerProvider
	bus      pubsub.PubSub[model.Event]
}

// NewManager creates the IPC manager on top of the session hub.
func NewManager(hub *Hub, provider interfaces.WorkerProvider, bus pubsub.PubSub[model.Event]) *Manager {
	return &Manager{hub: hub, provider: provider, bus: bus}
}

// SendToWorker delivers an application message to one worker.
func (m *Manager) SendToWorker(ctx context.Context, workerID string, payload interface{}) error {
	if _, ok := m.provider.GetWorker(workerID); !ok {
		return fmt.Errorf("worker not found: %s", workerID)
	}
	env, err := NewEnvelope(model.MessageApp, model.EnvelopeFromCoordinator, payload)
	if err != nil {
		return err
	}
	if err := m.hub.Send(ctx, workerID, env); err != nil {
		return err
	}
	m.emit(ctx, constants.EventIPCMessage, model.IPCEventPayload{
		EnvelopeID: env.ID,
		Type:       env.Type,
		WorkerID:   workerID,
	})
	return nil
}

// SendToAllWorkers delivers the message to every active worker
// individually. Errors aggregate; partial delivery is not rolled back.
func (m *Manager) SendToAllWorkers(ctx context.Context, payload interface{}) error {
	return m.fanout(ctx, payload, constants.EventIPCMessage)
}

// Broadcast delivers the message to every active worker as a broadcast
// frame.
func (m *Manager) Broadcast(ctx context.Context, payload interface{}) error {
	return m.fanout(ctx, payload, constants.EventIPCBroadcast)
}

func (m *Manager) fanout(ctx context.Context, payload interface{}, eventName string) error {
	msgType := model.MessageApp
	if eventName == constants.EventIPCBroadcast {
		msgType = model.MessageBroadcast
	}
	env, err := NewEnvelope(msgType, model.EnvelopeFromCoordinator, payload)
	if err != nil {
		return err
	}

	workers := m.provider.GetActiveWorkers()
	var errs *multierror.Error
	failed := 0
	for _, w := range workers {
		if err := m.hub.Send(ctx, w.ID, env); err != nil {
			failed++
			errs = multierror.Append(errs, err)
			logger.WarnCtx(ctx, "delivery to worker %s failed: %v", w.ID, err)
		}
	}

	m.emit(ctx, eventName, model.IPCEventPayload{
		EnvelopeID: env.ID,
		Type:       env.Type,
		Targets:    len(workers),
		Failed:     failed,
	})
	return errs.ErrorOrNil()
}

// SendToRandomWorker delivers the message to one randomly chosen active
// worker.
func (m *Manager) SendToRandomWorker(ctx context.Context, payload interface{}) (string, error) {
	workers := m.provider.GetActiveWorkers()
	if len(workers) == 0 {
		return "", fmt.Errorf("no active workers")
	}
	target := workers[rand.Intn(len(workers))]
	return target.ID, m.SendToWorker(ctx, target.ID, payload)
}

// SendToLeastLoadedWorker delivers the message to the active worker with
// the fewest in-flight requests, judged by the registry's live metrics.
func (m *Manager) SendToLeastLoadedWorker(ctx context.Context, payload interface{}) (string, error) {
	workers := m.provider.GetActiveWorkers()
	if len(workers) == 0 {
		return "", fmt.Errorf("no active workers")
	}

	targetID := workers[0].ID
	best := int(^uint(0) >> 1)
	for _, w := range workers {
		load := 0
		if wm, ok := m.provider.GetWorkerMetrics(w.ID); ok {
			load = wm.ActiveRequests + wm.QueuedRequests
		}
		if load < best {
			best = load
			targetID = w.ID
		}
	}
	return targetID, m.SendToWorker(ctx, targetID, payload)
}

func (m *Manager) emit(ctx context.Context, name string, payload interface{}) {
	if m.bus == nil {
		return
	}
	_ = m.bus.Publish(ctx, model.NewEvent(name, payload))
}
