package mysql

import (
	"context"
	"fmt"
	"time"
)

// ScalingEventRepository archives executed scaling actions
type ScalingEventRepository struct {
	ds *Datastore
}

// NewScalingEventRepository creates the scaling event repository
func NewScalingEventRepository(ds *Datastore) *ScalingEventRepository {
	return &ScalingEventRepository{ds: ds}
}

// Create inserts one scaling event row.
func (r *ScalingEventRepository) Create(ctx context.Context, event *ScalingEvent) error {
	return r.ds.DB(ctx).Create(event).Error
}

// ListRecent retrieves the newest scaling events, newest first.
func (r *ScalingEventRepository) ListRecent(ctx context.Context, limit int) ([]*ScalingEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []*ScalingEvent
	err := r.ds.DB(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent scaling events: %w", err)
	}
	return events, nil
}

// ListSince retrieves all scaling events at or after the given time.
func (r *ScalingEventRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]*ScalingEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	var events []*ScalingEvent
	err := r.ds.DB(ctx).
		Where("timestamp >= ?", since).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scaling events since %s: %w", since, err)
	}
	return events, nil
}

type actionCount struct {
	Action string
	Total  int
}

// CountByAction aggregates event counts per action since the given time.
func (r *ScalingEventRepository) CountByAction(ctx context.Context, since time.Time) (map[string]int, error) {
	var rows []actionCount
	err := r.ds.DB(ctx).
		Model(&ScalingEvent{}).
		Select("action, COUNT(*) AS total").
		Where("timestamp >= ?", since).
		Group("action").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate scaling events: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Action] = row.Total
	}
	return out, nil
}

// CountSucceeded counts successful events since the given time.
func (r *ScalingEventRepository) CountSucceeded(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.ds.DB(ctx).
		Model(&ScalingEvent{}).
		Where("timestamp >= ? AND success = ?", since, true).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count successful scaling events: %w", err)
	}
	return n, nil
}

// DeleteOlderThan prunes archived events past the retention horizon and
// returns the number of rows removed.
func (r *ScalingEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.ds.DB(ctx).Where("timestamp < ?", cutoff).Delete(&ScalingEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune scaling events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
