package mysql

import (
	"context"
	"fmt"
	"time"
)

// WorkerEventRepository archives worker lifecycle bus events
type WorkerEventRepository struct {
	ds *Datastore
}

// NewWorkerEventRepository creates the worker event repository
func NewWorkerEventRepository(ds *Datastore) *WorkerEventRepository {
	return &WorkerEventRepository{ds: ds}
}

// Create inserts one worker event row.
func (r *WorkerEventRepository) Create(ctx context.Context, event *WorkerEvent) error {
	return r.ds.DB(ctx).Create(event).Error
}

// ListRecent retrieves the newest worker events, newest first.
func (r *WorkerEventRepository) ListRecent(ctx context.Context, limit int) ([]*WorkerEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []*WorkerEvent
	err := r.ds.DB(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent worker events: %w", err)
	}
	return events, nil
}

// ListByWorker retrieves events of one worker, newest first.
func (r *WorkerEventRepository) ListByWorker(ctx context.Context, workerID string, limit int) ([]*WorkerEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []*WorkerEvent
	err := r.ds.DB(ctx).
		Where("worker_id = ?", workerID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list events of worker %s: %w", workerID, err)
	}
	return events, nil
}

type nameCount struct {
	Name  string
	Total int
}

// CountByName aggregates event counts per event name since the given time.
func (r *WorkerEventRepository) CountByName(ctx context.Context, since time.Time) (map[string]int, error) {
	var rows []nameCount
	err := r.ds.DB(ctx).
		Model(&WorkerEvent{}).
		Select("name, COUNT(*) AS total").
		Where("timestamp >= ?", since).
		Group("name").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate worker events: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Name] = row.Total
	}
	return out, nil
}

// DeleteOlderThan prunes archived events past the retention horizon and
// returns the number of rows removed.
func (r *WorkerEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.ds.DB(ctx).Where("timestamp < ?", cutoff).Delete(&WorkerEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune worker events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
