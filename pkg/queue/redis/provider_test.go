package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
)

func newTestProvider(t *testing.T, maxRetry int) *Provider {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return &Provider{
		redis:       client,
		concurrency: 1,
		maxRetry:    maxRetry,
		taskTimeout: time.Second,
	}
}

func newTask(id string) *model.Task {
	return &model.Task{
		ID:        id,
		Input:     map[string]interface{}{"n": float64(1)},
		Status:    model.TaskStatusPending,
		CreatedAt: time.Now(),
	}
}

func waitForState(t *testing.T, p *Provider, taskID string, want interfaces.TaskState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		info, err := p.GetTaskInfo(context.Background(), taskID)
		if err == nil && info.State == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("task %s never reached state %s", taskID, want)
}

func TestEnqueueRecordsPendingTask(t *testing.T) {
	p := newTestProvider(t, 0)
	ctx := context.Background()

	require.NoError(t, p.EnqueueTask(ctx, newTask("t-1")))

	n, err := p.GetPendingTaskCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	info, err := p.GetTaskInfo(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, interfaces.TaskStatePending, info.State)
	assert.Equal(t, 0, info.Retried)
}

func TestCancelRemovesPendingTask(t *testing.T) {
	p := newTestProvider(t, 0)
	ctx := context.Background()

	require.NoError(t, p.EnqueueTask(ctx, newTask("t-1")))
	require.NoError(t, p.CancelTask(ctx, "t-1"))

	n, err := p.GetPendingTaskCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = p.GetTaskInfo(ctx, "t-1")
	assert.Error(t, err)
}

func TestConsumerCompletesTask(t *testing.T) {
	p := newTestProvider(t, 0)
	ctx := context.Background()

	var handled atomic.Int32
	require.NoError(t, p.Start(func(ctx context.Context, task *model.Task) error {
		handled.Add(1)
		assert.Equal(t, "t-1", task.ID)
		return nil
	}))
	defer p.Stop()

	require.NoError(t, p.EnqueueTask(ctx, newTask("t-1")))

	waitForState(t, p, "t-1", interfaces.TaskStateCompleted)
	assert.Equal(t, int32(1), handled.Load())
}

func TestConsumerRetriesThenFails(t *testing.T) {
	p := newTestProvider(t, 1)
	ctx := context.Background()

	var attempts atomic.Int32
	require.NoError(t, p.Start(func(ctx context.Context, task *model.Task) error {
		attempts.Add(1)
		return errors.New("worker unavailable")
	}))
	defer p.Stop()

	require.NoError(t, p.EnqueueTask(ctx, newTask("t-1")))

	waitForState(t, p, "t-1", interfaces.TaskStateFailed)
	// First attempt plus one retry.
	assert.Equal(t, int32(2), attempts.Load())

	info, err := p.GetTaskInfo(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Retried)
	assert.Equal(t, "worker unavailable", info.LastErr)
}

func TestStartTwiceRejected(t *testing.T) {
	p := newTestProvider(t, 0)

	handler := func(ctx context.Context, task *model.Task) error { return nil }
	require.NoError(t, p.Start(handler))
	defer p.Stop()

	assert.Error(t, p.Start(handler))
}
