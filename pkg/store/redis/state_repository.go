package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
)

const (
	snapshotKeySuffix  = "snapshot"
	workerPIDKeySuffix = "worker:pids"
	defaultKeyPrefix   = "fortify:cluster"

	// Stale PID records should not outlive a dead coordinator forever.
	workerPIDTTL = 24 * time.Hour
)

// StateRepository persists cluster snapshots and the live worker PID
// registry in Redis. Snapshots back SaveState/RestoreState; the PID hash
// is what the orphan reaper diffs against the in-memory registry.
type StateRepository struct {
	redis  *redis.Client
	prefix string
}

// NewStateRepository creates the repository under the given key prefix.
func NewStateRepository(client *RedisClient, keyPrefix string) *StateRepository {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &StateRepository{redis: client.GetClient(), prefix: keyPrefix}
}

func (r *StateRepository) key(suffix string) string {
	return r.prefix + ":" + suffix
}

// SaveSnapshot stores the snapshot as JSON, replacing the previous one.
func (r *StateRepository) SaveSnapshot(ctx context.Context, snap *model.ClusterSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := r.redis.Set(ctx, r.key(snapshotKeySuffix), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the last saved snapshot, or nil when none exists.
func (r *StateRepository) LoadSnapshot(ctx context.Context) (*model.ClusterSnapshot, error) {
	data, err := r.redis.Get(ctx, r.key(snapshotKeySuffix)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap model.ClusterSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// RecordWorkerPID registers a spawned worker's OS pid.
func (r *StateRepository) RecordWorkerPID(ctx context.Context, workerID string, pid int) error {
	key := r.key(workerPIDKeySuffix)
	pipe := r.redis.Pipeline()
	pipe.HSet(ctx, key, workerID, pid)
	pipe.Expire(ctx, key, workerPIDTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record worker pid: %w", err)
	}
	return nil
}

// ForgetWorkerPID removes a worker's pid record after a clean stop.
func (r *StateRepository) ForgetWorkerPID(ctx context.Context, workerID string) error {
	if err := r.redis.HDel(ctx, r.key(workerPIDKeySuffix), workerID).Err(); err != nil {
		return fmt.Errorf("failed to forget worker pid: %w", err)
	}
	return nil
}

// WorkerPIDs returns all recorded worker pids keyed by worker id.
func (r *StateRepository) WorkerPIDs(ctx context.Context) (map[string]int, error) {
	raw, err := r.redis.HGetAll(ctx, r.key(workerPIDKeySuffix)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list worker pids: %w", err)
	}
	out := make(map[string]int, len(raw))
	for workerID, v := range raw {
		pid, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		out[workerID] = pid
	}
	return out, nil
}
