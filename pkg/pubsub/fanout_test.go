package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutDeliversToAllSubscribers(t *testing.T) {
	f := NewFanout[string](8)
	ctx := context.Background()

	var mu sync.Mutex
	received := make(map[int][]string)
	for i := 0; i < 3; i++ {
		i := i
		err := f.Subscribe(ctx, SubscriberFunc[string](func(_ context.Context, msg string) error {
			mu.Lock()
			received[i] = append(received[i], msg)
			mu.Unlock()
			return nil
		}))
		require.NoError(t, err)
	}

	require.NoError(t, f.Publish(ctx, "hello"))
	require.NoError(t, f.Publish(ctx, "world"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for i := 0; i < 3; i++ {
			if len(received[i]) != 2 {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 3; i++ {
		assert.Equal(t, []string{"hello", "world"}, received[i])
	}
}

func TestFanoutSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	f := NewFanout[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, unsub, err := f.SubscribeCh(ctx)
	require.NoError(t, err)
	defer unsub()

	// Nothing reads ch; the buffer holds one message, the rest drop.
	for i := 0; i < 5; i++ {
		require.NoError(t, f.Publish(ctx, i))
	}

	assert.Equal(t, int64(4), f.Dropped())
	assert.Equal(t, 0, <-ch)
}

func TestFanoutSubscribeChCancelClosesChannel(t *testing.T) {
	f := NewFanout[int](4)

	ch, unsub, err := f.SubscribeCh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, f.SubscriberCount())

	unsub()
	assert.Equal(t, 0, f.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)
}

func TestFanoutContextCancelUnsubscribes(t *testing.T) {
	f := NewFanout[int](4)
	ctx, cancel := context.WithCancel(context.Background())

	_, _, err := f.SubscribeCh(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, f.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool { return f.SubscriberCount() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestFanoutCloseRejectsFurtherUse(t *testing.T) {
	f := NewFanout[int](4)
	ctx := context.Background()

	ch, _, err := f.SubscribeCh(ctx)
	require.NoError(t, err)

	require.NoError(t, f.Close(ctx))

	_, open := <-ch
	assert.False(t, open, "close drains subscriber channels")
	assert.Error(t, f.Publish(ctx, 1))
	_, _, err = f.SubscribeCh(ctx)
	assert.Error(t, err)

	// Closing twice is harmless.
	assert.NoError(t, f.Close(ctx))
}

func TestFanoutPublishWithNoSubscribers(t *testing.T) {
	f := NewFanout[int](4)
	require.NoError(t, f.Publish(context.Background(), 42))
	assert.Zero(t, f.Dropped())
}
