package model

import (
	"time"
)

// ScalingAction decision outcome
type ScalingAction string

const (
	ScaleUp   ScalingAction = "scale-up"
	ScaleDown ScalingAction = "scale-down"
	NoAction  ScalingAction = "no-action"
)

func (a ScalingAction) String() string {
	return string(a)
}

// ScalingDecision one evaluation outcome. Created fresh per evaluation;
// only the history record derived from it outlives the cycle.
type ScalingDecision struct {
	Action         ScalingAction     `json:"action"`
	CurrentWorkers int               `json:"current_workers"`
	TargetWorkers  int               `json:"target_workers"`
	Reason         string            `json:"reason"`
	Score          float64           `json:"score"`
	Confidence     float64           `json:"confidence"` // 0-100, gates execution
	Metrics        AggregatedMetrics `json:"metrics"`
	CreatedAt      time.Time         `json:"created_at"`
}

// ScalingRecord append-only history entry, capped oldest-first
type ScalingRecord struct {
	Timestamp   time.Time     `json:"timestamp"`
	Action      ScalingAction `json:"action"`
	FromWorkers int           `json:"from_workers"`
	ToWorkers   int           `json:"to_workers"`
	Reason      string        `json:"reason"`
	Confidence  float64       `json:"confidence"`
	Success     bool          `json:"success"`
}
