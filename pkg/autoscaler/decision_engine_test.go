package autoscaler

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
)

func testClusterConfig() *config.ClusterConfig {
	return &config.ClusterConfig{
		MinWorkers: 2,
		MaxWorkers: 10,
		Scaling: config.ScalingConfig{
			ScaleUpThreshold: config.UpThresholds{
				CPU:          80,
				Memory:       85,
				ResponseTime: 1000,
				QueueLength:  50,
			},
			ScaleDownThreshold: config.DownThresholds{
				CPU:      20,
				Memory:   30,
				IdleTime: 300,
			},
			ScaleStep:      1,
			CooldownPeriod: 300,
		},
	}
}

func newTestEngine(history *History) *DecisionEngine {
	return NewDecisionEngine(testClusterConfig(), history)
}

func calmMetrics() *model.AggregatedMetrics {
	return &model.AggregatedMetrics{
		CPUPercent:      50,
		MemoryPercent:   50,
		AvgResponseTime: 200,
		QueueLength:     5,
		ActiveWorkers:   5,
		Timestamp:       time.Now(),
	}
}

func TestNoThresholdBreachedNoAction(t *testing.T) {
	e := newTestEngine(nil)
	d := e.Evaluate(calmMetrics(), 5, time.Time{})
	assert.Equal(t, model.NoAction, d.Action)
	assert.Equal(t, 5, d.TargetWorkers)
}

func TestSingleUpSignalBelowGate(t *testing.T) {
	e := newTestEngine(nil)
	m := calmMetrics()
	m.AvgResponseTime = 1500 // breaches response time only: weight 40 < gate 50
	d := e.Evaluate(m, 5, time.Time{})
	assert.Equal(t, model.NoAction, d.Action)
}

func TestCPUBreachScalesUp(t *testing.T) {
	e := newTestEngine(nil)
	m := calmMetrics()
	m.CPUPercent = 95 // weight 60 >= gate 50
	d := e.Evaluate(m, 5, time.Time{})
	assert.Equal(t, model.ScaleUp, d.Action)
	assert.Equal(t, 6, d.TargetWorkers)
	assert.Contains(t, d.Reason, "cpu")
}

func TestQueueBreachScalesUp(t *testing.T) {
	e := newTestEngine(nil)
	m := calmMetrics()
	m.QueueLength = 120 // weight 70 >= gate 50
	d := e.Evaluate(m, 5, time.Time{})
	assert.Equal(t, model.ScaleUp, d.Action)
}

func TestCombinedSignalsCapScore(t *testing.T) {
	e := newTestEngine(nil)
	m := calmMetrics()
	m.CPUPercent = 95
	m.MemoryPercent = 95
	m.AvgResponseTime = 2000
	m.QueueLength = 200
	d := e.Evaluate(m, 5, time.Time{})
	assert.Equal(t, model.ScaleUp, d.Action)
	assert.Equal(t, constants.MaxScore, d.Score)
}

func TestIdleClusterScalesDown(t *testing.T) {
	e := newTestEngine(nil)
	m := calmMetrics()
	m.CPUPercent = 10     // below 20: weight 50
	m.IdleSeconds = 600   // beyond 300s: weight 60
	m.MemoryPercent = 50  // untouched
	d := e.Evaluate(m, 5, time.Time{})
	assert.Equal(t, model.ScaleDown, d.Action)
	assert.Equal(t, 4, d.TargetWorkers)
}

func TestMemorySignalAloneMeetsDownGate(t *testing.T) {
	e := newTestEngine(nil)
	m := calmMetrics()
	m.MemoryPercent = 25 // weight 40 meets the scale-down gate exactly
	d := e.Evaluate(m, 5, time.Time{})
	assert.Equal(t, model.ScaleDown, d.Action)
}

func TestUpBeatsDownOnConflict(t *testing.T) {
	e := newTestEngine(nil)
	m := calmMetrics()
	m.CPUPercent = 95   // up signals
	m.QueueLength = 120 // up score 130 -> capped 100
	m.IdleSeconds = 600 // down signal 60
	d := e.Evaluate(m, 5, time.Time{})
	assert.Equal(t, model.ScaleUp, d.Action)
}

func TestCooldownBlocksAction(t *testing.T) {
	e := newTestEngine(nil)
	m := calmMetrics()
	m.CPUPercent = 95
	d := e.Evaluate(m, 5, time.Now().Add(-time.Minute))
	assert.Equal(t, model.NoAction, d.Action)
	assert.Contains(t, d.Reason, "cooldown")
}

func TestCooldownExpired(t *testing.T) {
	e := newTestEngine(nil)
	m := calmMetrics()
	m.CPUPercent = 95
	d := e.Evaluate(m, 5, time.Now().Add(-10*time.Minute))
	assert.Equal(t, model.ScaleUp, d.Action)
}

func TestAtMaxWorkersNoScaleUp(t *testing.T) {
	e := newTestEngine(nil)
	m := calmMetrics()
	m.CPUPercent = 95
	d := e.Evaluate(m, 10, time.Time{})
	assert.Equal(t, model.NoAction, d.Action)
	assert.Contains(t, d.Reason, "max workers")
}

func TestAtMinWorkersNoScaleDown(t *testing.T) {
	e := newTestEngine(nil)
	m := calmMetrics()
	m.CPUPercent = 10
	m.IdleSeconds = 600
	d := e.Evaluate(m, 2, time.Time{})
	assert.Equal(t, model.NoAction, d.Action)
	assert.Contains(t, d.Reason, "min workers")
}

func TestConfidenceBoostFromSuccessfulHistory(t *testing.T) {
	h := NewHistory(50)
	for i := 0; i < 10; i++ {
		h.Append(model.ScalingRecord{
			Timestamp: time.Now().Add(-time.Duration(i) * time.Minute),
			Action:    model.ScaleUp,
			Success:   true,
		})
	}
	e := newTestEngine(h)
	m := calmMetrics()
	m.CPUPercent = 95 // base score 60

	d := e.Evaluate(m, 5, time.Time{})
	assert.Equal(t, model.ScaleUp, d.Action)
	assert.InDelta(t, 66, d.Confidence, 0.001, "confidence boosted by recent successes")
}

func TestConfidencePenaltyFromFailedHistory(t *testing.T) {
	h := NewHistory(50)
	for i := 0; i < 10; i++ {
		h.Append(model.ScalingRecord{
			Timestamp: time.Now().Add(-time.Duration(i) * time.Minute),
			Action:    model.ScaleUp,
			Success:   false,
		})
	}
	e := newTestEngine(h)
	m := calmMetrics()
	m.CPUPercent = 95 // base score 60

	d := e.Evaluate(m, 5, time.Time{})
	assert.InDelta(t, 48, d.Confidence, 0.001, "confidence damped by recent failures")
	assert.False(t, e.ShouldExecute(d), "damped confidence falls under the floor")
}

func TestOldHistoryOutsideWindowIgnored(t *testing.T) {
	h := NewHistory(50)
	h.Append(model.ScalingRecord{
		Timestamp: time.Now().Add(-2 * time.Hour),
		Action:    model.ScaleUp,
		Success:   false,
	})
	e := newTestEngine(h)
	m := calmMetrics()
	m.CPUPercent = 95

	d := e.Evaluate(m, 5, time.Time{})
	assert.InDelta(t, 60, d.Confidence, 0.001, "stale outcomes do not adjust confidence")
}

func TestShouldExecuteFloor(t *testing.T) {
	e := newTestEngine(nil)
	d := &model.ScalingDecision{Action: model.ScaleUp, Confidence: 59.9}
	assert.False(t, e.ShouldExecute(d))
	d.Confidence = 60
	assert.True(t, e.ShouldExecute(d))
	assert.False(t, e.ShouldExecute(&model.ScalingDecision{Action: model.NoAction, Confidence: 100}))
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Append(model.ScalingRecord{Reason: string(rune('a' + i))})
	}
	recs := h.Records()
	assert.Len(t, recs, 3)
	assert.Equal(t, "c", recs[0].Reason)
	assert.Equal(t, "e", recs[2].Reason)
}

func TestTargetAlwaysWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("target stays within [min,max] for any metrics", prop.ForAll(
		func(cpu, mem, rt float64, queue, idle, current int) bool {
			e := newTestEngine(nil)
			m := &model.AggregatedMetrics{
				CPUPercent:      cpu,
				MemoryPercent:   mem,
				AvgResponseTime: rt,
				QueueLength:     queue,
				IdleSeconds:     float64(idle),
				ActiveWorkers:   current,
			}
			d := e.Evaluate(m, current, time.Time{})
			if d.Action == model.NoAction {
				return d.TargetWorkers == current
			}
			return d.TargetWorkers >= 2 && d.TargetWorkers <= 10
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 5000),
		gen.IntRange(0, 500),
		gen.IntRange(0, 3600),
		gen.IntRange(2, 10),
	))

	properties.TestingRun(t)
}
