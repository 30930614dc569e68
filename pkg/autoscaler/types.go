package autoscaler

import (
	"context"
	"time"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
)

// MetricsSource supplies the flattened metrics view the decision engine
// scores against.
type MetricsSource interface {
	GetAggregatedMetrics(ctx context.Context) *model.AggregatedMetrics
}

// Status observable autoscaler state
type Status struct {
	Enabled        bool                   `json:"enabled"`
	Paused         bool                   `json:"paused"`
	MinWorkers     int                    `json:"min_workers"`
	MaxWorkers     int                    `json:"max_workers"`
	CooldownUntil  *time.Time             `json:"cooldown_until,omitempty"`
	LastDecision   *model.ScalingDecision `json:"last_decision,omitempty"`
	LastExecutedAt *time.Time             `json:"last_executed_at,omitempty"`
	Evaluations    uint64                 `json:"evaluations"`
	SkippedLocked  uint64                 `json:"skipped_locked"`
}
