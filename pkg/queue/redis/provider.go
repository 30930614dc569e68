package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	redisstore "github.com/NEHONIX/FortifyJS-sub002/pkg/store/redis"
)

const (
	keyPrefix = "fortify:queue"

	taskTTL    = 24 * time.Hour
	popTimeout = time.Second
)

// Provider plain Redis-list ingestion queue. Task ids travel through a
// pending list; the task body and its queue state live in a per-task hash
// so a task can be inspected or cancelled while it waits.
type Provider struct {
	store       *redisstore.RedisClient
	redis       *redis.Client
	concurrency int
	maxRetry    int
	taskTimeout time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewProvider creates the Redis-list queue provider with its own connection.
func NewProvider(cfg *config.Config) (*Provider, error) {
	store, err := redisstore.NewRedisClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	concurrency := cfg.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Provider{
		store:       store,
		redis:       store.GetClient(),
		concurrency: concurrency,
		maxRetry:    cfg.Queue.MaxRetry,
		taskTimeout: time.Duration(cfg.Queue.TaskTimeout) * time.Second,
	}, nil
}

func pendingKey() string {
	return keyPrefix + ":pending"
}

func taskKey(id string) string {
	return keyPrefix + ":task:" + id
}

// EnqueueTask records the task hash and pushes its id onto the pending list.
func (p *Provider) EnqueueTask(ctx context.Context, task *model.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	pipe := p.redis.Pipeline()
	pipe.HSet(ctx, taskKey(task.ID), map[string]interface{}{
		"payload": payload,
		"state":   string(interfaces.TaskStatePending),
		"retried": 0,
	})
	pipe.Expire(ctx, taskKey(task.ID), taskTTL)
	pipe.LPush(ctx, pendingKey(), task.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	logger.InfoCtx(ctx, "task enqueued, task_id: %s", task.ID)
	return nil
}

// Start spawns the consumer pool. Each consumer blocks on the pending list
// and routes every task through handler.
func (p *Provider) Start(handler interfaces.TaskHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("queue consumers already started")
	}
	p.started = true
	p.stopCh = make(chan struct{})

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.consume(handler)
	}
	return nil
}

func (p *Provider) consume(handler interfaces.TaskHandler) {
	defer p.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		res, err := p.redis.BRPop(ctx, popTimeout, pendingKey()).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			logger.WarnCtx(ctx, "queue pop failed: %v", err)
			time.Sleep(popTimeout)
			continue
		}

		p.process(ctx, res[1], handler)
	}
}

func (p *Provider) process(ctx context.Context, taskID string, handler interfaces.TaskHandler) {
	vals, err := p.redis.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil || len(vals) == 0 {
		// Cancelled or expired while pending.
		return
	}

	var task model.Task
	if err := json.Unmarshal([]byte(vals["payload"]), &task); err != nil {
		logger.WarnCtx(ctx, "dropping malformed task %s: %v", taskID, err)
		_ = p.redis.Del(ctx, taskKey(taskID)).Err()
		return
	}

	_ = p.redis.HSet(ctx, taskKey(taskID), "state", string(interfaces.TaskStateActive)).Err()

	runCtx := ctx
	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}

	if err := handler(runCtx, &task); err != nil {
		p.retry(ctx, taskID, vals, err)
		return
	}

	_ = p.redis.HSet(ctx, taskKey(taskID), "state", string(interfaces.TaskStateCompleted)).Err()
}

func (p *Provider) retry(ctx context.Context, taskID string, vals map[string]string, cause error) {
	retried, _ := strconv.Atoi(vals["retried"])
	retried++

	if retried > p.maxRetry {
		_ = p.redis.HSet(ctx, taskKey(taskID), map[string]interface{}{
			"state":    string(interfaces.TaskStateFailed),
			"retried":  retried - 1,
			"last_err": cause.Error(),
		}).Err()
		logger.WarnCtx(ctx, "task %s failed after %d retries: %v", taskID, retried-1, cause)
		return
	}

	pipe := p.redis.Pipeline()
	pipe.HSet(ctx, taskKey(taskID), map[string]interface{}{
		"state":    string(interfaces.TaskStateRetry),
		"retried":  retried,
		"last_err": cause.Error(),
	})
	pipe.LPush(ctx, pendingKey(), taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.WarnCtx(ctx, "failed to requeue task %s: %v", taskID, err)
	}
}

// GetTaskInfo retrieves queue-level task information.
func (p *Provider) GetTaskInfo(ctx context.Context, taskID string) (*interfaces.TaskInfo, error) {
	vals, err := p.redis.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}

	retried, _ := strconv.Atoi(vals["retried"])
	return &interfaces.TaskInfo{
		ID:       taskID,
		State:    interfaces.TaskState(vals["state"]),
		MaxRetry: p.maxRetry,
		Retried:  retried,
		LastErr:  vals["last_err"],
		Timeout:  p.taskTimeout,
	}, nil
}

// CancelTask removes a queued task from the pending list and drops its hash.
func (p *Provider) CancelTask(ctx context.Context, taskID string) error {
	pipe := p.redis.Pipeline()
	pipe.LRem(ctx, pendingKey(), 0, taskID)
	pipe.Del(ctx, taskKey(taskID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	logger.InfoCtx(ctx, "task cancelled, task_id: %s", taskID)
	return nil
}

// GetPendingTaskCount retrieves the pending list length.
func (p *Provider) GetPendingTaskCount(ctx context.Context) (int, error) {
	n, err := p.redis.LLen(ctx, pendingKey()).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Stop halts the consumer pool; in-flight handlers finish first.
func (p *Provider) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
}

// Close closes the queue connection.
func (p *Provider) Close() error {
	return p.store.Close()
}
