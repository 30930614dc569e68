package autoscaler

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
)

// DecisionEngine scores aggregated metrics against the configured
// thresholds and produces one ScalingDecision per evaluation. It is
// stateless between evaluations except for the history it consults to
// tune confidence.
type DecisionEngine struct {
	cfg        config.ScalingConfig
	minWorkers int
	maxWorkers int
	history    *History
}

// NewDecisionEngine creates the engine with the effective worker bounds.
func NewDecisionEngine(cluster *config.ClusterConfig, history *History) *DecisionEngine {
	min, max := cluster.ScalingBounds()
	return &DecisionEngine{
		cfg:        cluster.Scaling,
		minWorkers: min,
		maxWorkers: max,
		history:    history,
	}
}

// Bounds returns the effective min and max worker counts.
func (e *DecisionEngine) Bounds() (int, int) {
	return e.minWorkers, e.maxWorkers
}

func (e *DecisionEngine) cooldown() time.Duration {
	if e.cfg.CooldownPeriod > 0 {
		return time.Duration(e.cfg.CooldownPeriod) * time.Second
	}
	return constants.DefaultCooldownPeriod
}

func (e *DecisionEngine) step() int {
	if e.cfg.ScaleStep > 0 {
		return e.cfg.ScaleStep
	}
	return constants.DefaultScaleStep
}

func (e *DecisionEngine) confidenceFloor() float64 {
	if e.cfg.ConfidenceFloor > 0 {
		return e.cfg.ConfidenceFloor
	}
	return constants.ConfidenceFloor
}

func weight(configured, fallback float64) float64 {
	if configured > 0 {
		return configured
	}
	return fallback
}

// Evaluate produces the decision for one cycle. lastExecuted is the time
// of the most recent executed action; a zero value means none yet.
func (e *DecisionEngine) Evaluate(m *model.AggregatedMetrics, currentWorkers int, lastExecuted time.Time) *model.ScalingDecision {
	d := &model.ScalingDecision{
		Action:         model.NoAction,
		CurrentWorkers: currentWorkers,
		TargetWorkers:  currentWorkers,
		Metrics:        *m,
		CreatedAt:      time.Now(),
	}

	if !lastExecuted.IsZero() {
		if remaining := e.cooldown() - time.Since(lastExecuted); remaining > 0 {
			d.Reason = fmt.Sprintf("cooldown active, %.0fs remaining", remaining.Seconds())
			return d
		}
	}

	upScore, upReasons := e.scoreUp(m)
	downScore, downReasons := e.scoreDown(m)

	switch {
	case upScore >= constants.ScaleUpScoreThreshold && upScore >= downScore:
		if currentWorkers >= e.maxWorkers {
			d.Reason = fmt.Sprintf("scale-up signals present (score %.0f) but already at max workers (%d)", upScore, e.maxWorkers)
			return d
		}
		d.Action = model.ScaleUp
		d.TargetWorkers = clamp(currentWorkers+e.step(), e.minWorkers, e.maxWorkers)
		d.Score = upScore
		d.Reason = strings.Join(upReasons, "; ")
	case downScore >= constants.ScaleDownScoreThreshold:
		if currentWorkers <= e.minWorkers {
			d.Reason = fmt.Sprintf("scale-down signals present (score %.0f) but already at min workers (%d)", downScore, e.minWorkers)
			return d
		}
		d.Action = model.ScaleDown
		d.TargetWorkers = clamp(currentWorkers-e.step(), e.minWorkers, e.maxWorkers)
		d.Score = downScore
		d.Reason = strings.Join(downReasons, "; ")
	default:
		d.Reason = "no scaling threshold breached"
		return d
	}

	d.Confidence = e.confidence(d.Action, d.Score)
	return d
}

// ShouldExecute gates an actionable decision on the confidence floor.
func (e *DecisionEngine) ShouldExecute(d *model.ScalingDecision) bool {
	return d.Action != model.NoAction && d.Confidence >= e.confidenceFloor()
}

// scoreUp adds the weight of every breached scale-up signal. A zero
// threshold disables its signal.
func (e *DecisionEngine) scoreUp(m *model.AggregatedMetrics) (float64, []string) {
	t := e.cfg.ScaleUpThreshold
	w := e.cfg.Weights
	score := 0.0
	var reasons []string

	if t.CPU > 0 && m.CPUPercent > t.CPU {
		score += weight(w.UpCPU, constants.DefaultWeightUpCPU)
		reasons = append(reasons, fmt.Sprintf("cpu %.1f%% > %.1f%%", m.CPUPercent, t.CPU))
	}
	if t.Memory > 0 && m.MemoryPercent > t.Memory {
		score += weight(w.UpMemory, constants.DefaultWeightUpMemory)
		reasons = append(reasons, fmt.Sprintf("memory %.1f%% > %.1f%%", m.MemoryPercent, t.Memory))
	}
	if t.ResponseTime > 0 && m.AvgResponseTime > t.ResponseTime {
		score += weight(w.UpResponseTime, constants.DefaultWeightUpResponseTime)
		reasons = append(reasons, fmt.Sprintf("response time %.0fms > %.0fms", m.AvgResponseTime, t.ResponseTime))
	}
	if t.QueueLength > 0 && m.QueueLength > t.QueueLength {
		score += weight(w.UpQueueLength, constants.DefaultWeightUpQueueLength)
		reasons = append(reasons, fmt.Sprintf("queue length %d > %d", m.QueueLength, t.QueueLength))
	}
	return math.Min(score, constants.MaxScore), reasons
}

// scoreDown adds the weight of every breached scale-down signal.
func (e *DecisionEngine) scoreDown(m *model.AggregatedMetrics) (float64, []string) {
	t := e.cfg.ScaleDownThreshold
	w := e.cfg.Weights
	score := 0.0
	var reasons []string

	if t.CPU > 0 && m.CPUPercent < t.CPU {
		score += weight(w.DownCPU, constants.DefaultWeightDownCPU)
		reasons = append(reasons, fmt.Sprintf("cpu %.1f%% < %.1f%%", m.CPUPercent, t.CPU))
	}
	if t.Memory > 0 && m.MemoryPercent < t.Memory {
		score += weight(w.DownMemory, constants.DefaultWeightDownMemory)
		reasons = append(reasons, fmt.Sprintf("memory %.1f%% < %.1f%%", m.MemoryPercent, t.Memory))
	}
	if t.IdleTime > 0 && m.IdleSeconds >= float64(t.IdleTime) {
		score += weight(w.DownIdle, constants.DefaultWeightDownIdle)
		reasons = append(reasons, fmt.Sprintf("idle for %.0fs >= %ds", m.IdleSeconds, t.IdleTime))
	}
	return math.Min(score, constants.MaxScore), reasons
}

// confidence starts from the score and is adjusted by how the same action
// fared over the recent window: boosted above the high-water success
// rate, damped below the low-water one.
func (e *DecisionEngine) confidence(action model.ScalingAction, score float64) float64 {
	c := math.Min(score, constants.MaxScore)
	if e.history != nil {
		if rate, ok := e.history.SuccessRate(action, constants.SuccessRateWindow); ok {
			if rate > constants.SuccessRateHighWater {
				c *= constants.ConfidenceBoostFactor
			} else if rate < constants.SuccessRateLowWater {
				c *= constants.ConfidencePenaltyFactor
			}
		}
	}
	return math.Min(c, constants.MaxScore)
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
