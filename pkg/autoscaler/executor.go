package autoscaler

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/pubsub"
)

// Executor applies an approved scaling decision to the worker registry:
// staggered starts on scale-up, least-loaded graceful stops on
// scale-down. Every executed action lands in the history ring and, when
// an audit store is wired, in the audit archive.
type Executor struct {
	scaler   interfaces.WorkerScaler
	provider interfaces.WorkerProvider
	history  *History
	bus      pubsub.PubSub[model.Event]
	audit    interfaces.AuditStore // optional
	stagger  time.Duration
}

// NewExecutor creates the executor. audit may be nil.
func NewExecutor(
	scaler interfaces.WorkerScaler,
	provider interfaces.WorkerProvider,
	history *History,
	bus pubsub.PubSub[model.Event],
	audit interfaces.AuditStore,
) *Executor {
	return &Executor{
		scaler:   scaler,
		provider: provider,
		history:  history,
		bus:      bus,
		audit:    audit,
		stagger:  constants.DefaultStaggerDelay,
	}
}

// Execute applies the decision and records the outcome. Partial progress
// still counts as executed; success reflects whether every worker change
// went through.
func (e *Executor) Execute(ctx context.Context, d *model.ScalingDecision) error {
	e.emit(ctx, constants.EventScalingExecuting, model.ScalingEventPayload{
		Action:      d.Action,
		FromWorkers: d.CurrentWorkers,
		ToWorkers:   d.TargetWorkers,
		Reason:      d.Reason,
		Confidence:  d.Confidence,
	})

	var result error
	switch d.Action {
	case model.ScaleUp:
		result = e.scaleUp(ctx, d.TargetWorkers-d.CurrentWorkers)
	case model.ScaleDown:
		result = e.scaleDown(ctx, d.CurrentWorkers-d.TargetWorkers)
	default:
		return nil
	}

	success := result == nil
	rec := model.ScalingRecord{
		Timestamp:   time.Now(),
		Action:      d.Action,
		FromWorkers: d.CurrentWorkers,
		ToWorkers:   d.TargetWorkers,
		Reason:      d.Reason,
		Confidence:  d.Confidence,
		Success:     success,
	}
	e.history.Append(rec)

	if e.audit != nil {
		if err := e.audit.SaveScalingEvent(ctx, rec); err != nil {
			logger.WarnCtx(ctx, "failed to archive scaling event: %v", err)
		}
	}

	e.emit(ctx, constants.EventScalingCompleted, model.ScalingEventPayload{
		Action:      d.Action,
		FromWorkers: d.CurrentWorkers,
		ToWorkers:   d.TargetWorkers,
		Reason:      d.Reason,
		Confidence:  d.Confidence,
		Success:     &success,
	})
	e.emit(ctx, constants.EventClusterScaled, model.ScalingEventPayload{
		Action:      d.Action,
		FromWorkers: d.CurrentWorkers,
		ToWorkers:   d.TargetWorkers,
		Reason:      d.Reason,
		Success:     &success,
	})
	return result
}

// scaleUp starts count workers one at a time with a stagger delay so a
// burst of forks does not spike the host.
func (e *Executor) scaleUp(ctx context.Context, count int) error {
	var result error
	for i := 0; i < count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return multierror.Append(result, ctx.Err()).ErrorOrNil()
			case <-time.After(e.stagger):
			}
		}
		w, err := e.scaler.StartSingleWorker(ctx)
		if err != nil {
			logger.ErrorCtx(ctx, "scale-up: failed to start worker: %v", err)
			result = multierror.Append(result, err)
			continue
		}
		logger.InfoCtx(ctx, "scale-up: started worker %s (pid %d)", w.ID, w.PID)
	}
	return result
}

// scaleDown gracefully stops the count least-loaded workers.
func (e *Executor) scaleDown(ctx context.Context, count int) error {
	victims := e.leastLoaded(count)
	var result error
	for _, id := range victims {
		if err := e.scaler.StopSingleWorker(ctx, id, true); err != nil {
			logger.ErrorCtx(ctx, "scale-down: failed to stop worker %s: %v", id, err)
			result = multierror.Append(result, err)
			continue
		}
		logger.InfoCtx(ctx, "scale-down: stopped worker %s", id)
	}
	return result
}

// leastLoaded picks the n workers with the fewest in-flight plus queued
// requests, ties broken by registry order.
func (e *Executor) leastLoaded(n int) []string {
	workers := e.provider.GetActiveWorkers()
	type loaded struct {
		id    string
		load  int
		order int
	}
	candidates := make([]loaded, 0, len(workers))
	for i, w := range workers {
		load := 0
		if wm, ok := e.provider.GetWorkerMetrics(w.ID); ok {
			load = wm.ActiveRequests + wm.QueuedRequests
		}
		candidates = append(candidates, loaded{id: w.ID, load: load, order: i})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].load != candidates[j].load {
			return candidates[i].load < candidates[j].load
		}
		return candidates[i].order < candidates[j].order
	})
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]string, 0, n)
	for _, c := range candidates[:n] {
		out = append(out, c.id)
	}
	return out
}

func (e *Executor) emit(ctx context.Context, name string, payload model.ScalingEventPayload) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(ctx, model.NewEvent(name, payload))
}
