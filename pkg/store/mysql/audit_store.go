package mysql

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
)

// AuditStore is the MySQL-backed audit archive: it converts bus events
// and scaling records into rows and serves the statistics surface.
type AuditStore struct {
	repo      *Repository
	clusterID string
}

// NewAuditStore creates the audit store for one cluster.
func NewAuditStore(repo *Repository, clusterID string) *AuditStore {
	return &AuditStore{repo: repo, clusterID: clusterID}
}

// SaveScalingEvent archives one executed scaling action.
func (s *AuditStore) SaveScalingEvent(ctx context.Context, rec model.ScalingRecord) error {
	return s.repo.ScalingEvent.Create(ctx, &ScalingEvent{
		EventID:     uuid.NewString(),
		ClusterID:   s.clusterID,
		Timestamp:   rec.Timestamp,
		Action:      rec.Action.String(),
		FromWorkers: rec.FromWorkers,
		ToWorkers:   rec.ToWorkers,
		Reason:      rec.Reason,
		Confidence:  rec.Confidence,
		Success:     rec.Success,
	})
}

// SaveWorkerEvent archives one worker lifecycle bus event. The worker id
// is lifted out of the payload when present.
func (s *AuditStore) SaveWorkerEvent(ctx context.Context, event model.Event) error {
	payload := toJSONMap(event.Payload)
	workerID := ""
	if payload != nil {
		if v, ok := payload["worker_id"].(string); ok {
			workerID = v
		}
	}
	return s.repo.WorkerEvent.Create(ctx, &WorkerEvent{
		EventID:   uuid.NewString(),
		ClusterID: s.clusterID,
		WorkerID:  workerID,
		Name:      event.Name,
		Timestamp: event.Timestamp,
		Payload:   payload,
	})
}

// ScalingStats aggregates the archived scaling events since the given time.
func (s *AuditStore) ScalingStats(ctx context.Context, since time.Time) (*interfaces.ScalingStats, error) {
	byAction, err := s.repo.ScalingEvent.CountByAction(ctx, since)
	if err != nil {
		return nil, err
	}
	succeeded, err := s.repo.ScalingEvent.CountSucceeded(ctx, since)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range byAction {
		total += n
	}
	stats := &interfaces.ScalingStats{
		Total:     total,
		ByAction:  byAction,
		Succeeded: int(succeeded),
	}
	if total > 0 {
		stats.SuccessRate = float64(succeeded) / float64(total)
	}
	return stats, nil
}

// WorkerEventStats aggregates the archived worker events since the given time.
func (s *AuditStore) WorkerEventStats(ctx context.Context, since time.Time) (*interfaces.WorkerEventStats, error) {
	byName, err := s.repo.WorkerEvent.CountByName(ctx, since)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range byName {
		total += n
	}
	return &interfaces.WorkerEventStats{Total: total, ByName: byName}, nil
}

// Cleanup prunes both archives past the retention horizon.
func (s *AuditStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	var removed int64
	n, err := s.repo.ScalingEvent.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return removed, err
	}
	removed += n
	n, err = s.repo.WorkerEvent.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return removed, err
	}
	return removed + n, nil
}

// toJSONMap flattens a typed payload into a JSON column value.
func toJSONMap(payload interface{}) JSONMap {
	if payload == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return JSONMap(m)
}
