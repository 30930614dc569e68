package interfaces

import (
	"context"
	"time"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
)

// StateStore persists cluster snapshots
type StateStore interface {
	SaveSnapshot(ctx context.Context, snap *model.ClusterSnapshot) error
	LoadSnapshot(ctx context.Context) (*model.ClusterSnapshot, error)
}

// AuditStore archives scaling and worker events for offline inspection
type AuditStore interface {
	SaveScalingEvent(ctx context.Context, rec model.ScalingRecord) error
	SaveWorkerEvent(ctx context.Context, event model.Event) error
	ScalingStats(ctx context.Context, since time.Time) (*ScalingStats, error)
	WorkerEventStats(ctx context.Context, since time.Time) (*WorkerEventStats, error)
}

// ScalingStats aggregate over archived scaling events
type ScalingStats struct {
	Total       int            `json:"total"`
	ByAction    map[string]int `json:"byAction"`
	Succeeded   int            `json:"succeeded"`
	SuccessRate float64        `json:"successRate"`
}

// WorkerEventStats aggregate over archived worker events
type WorkerEventStats struct {
	Total  int            `json:"total"`
	ByName map[string]int `json:"byName"`
}
