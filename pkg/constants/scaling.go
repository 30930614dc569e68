package constants

import "time"

// Scaling decision gates. A scale-up decision needs its score to reach
// ScaleUpScoreThreshold, scale-down needs ScaleDownScoreThreshold, and
// either is executed only when confidence reaches ConfidenceFloor.
const (
	ScaleUpScoreThreshold   = 50.0
	ScaleDownScoreThreshold = 40.0
	ConfidenceFloor         = 60.0
	MaxScore                = 100.0
)

// Default signal weights added to the score when the matching threshold is
// breached. Heuristics, overridable via cluster.scaling.weights; deployments
// with different traffic shapes are expected to re-tune them.
const (
	DefaultWeightUpCPU          = 60.0
	DefaultWeightUpMemory       = 50.0
	DefaultWeightUpResponseTime = 40.0
	DefaultWeightUpQueueLength  = 70.0

	DefaultWeightDownCPU    = 50.0
	DefaultWeightDownMemory = 40.0
	DefaultWeightDownIdle   = 60.0
)

// Confidence adjustment from recent same-action outcomes: boosted when the
// action has been succeeding, damped when it has been failing.
const (
	ConfidenceBoostFactor   = 1.1
	ConfidencePenaltyFactor = 0.8
	SuccessRateHighWater    = 0.8
	SuccessRateLowWater     = 0.5
	SuccessRateWindow       = time.Hour
)

// Evaluation loop defaults
const (
	DefaultEvaluationInterval = 30 * time.Second
	DefaultCooldownPeriod     = 5 * time.Minute
	DefaultScaleStep          = 1
	DefaultHistoryCapacity    = 100
	DefaultStaggerDelay       = 200 * time.Millisecond
)
