package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Fanout is a channel-based in-memory pubsub. Every subscriber gets its own
// buffered channel and goroutine, so a slow consumer never blocks the
// publisher or other subscribers; messages to a full buffer are dropped and
// counted instead.
type Fanout[T any] struct {
	mu     sync.RWMutex
	subs   map[int]*fanoutSub[T]
	nextID int
	buffer int
	closed bool
	wg     sync.WaitGroup
}

type fanoutSub[T any] struct {
	ch      chan T
	dropped atomic.Int64
	once    sync.Once
}

// NewFanout creates a fanout bus with the given per-subscriber buffer.
func NewFanout[T any](buffer int) *Fanout[T] {
	if buffer <= 0 {
		buffer = 64
	}
	return &Fanout[T]{
		subs:   make(map[int]*fanoutSub[T]),
		buffer: buffer,
	}
}

// Publish delivers the message to every live subscriber without blocking.
func (f *Fanout[T]) Publish(ctx context.Context, message T) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return errors.New("pubsub is closed")
	}
	for _, sub := range f.subs {
		select {
		case sub.ch <- message:
		default:
			sub.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a subscriber served by its own goroutine until the
// context is cancelled or the bus closes. Handle errors are the
// subscriber's own concern and are discarded here.
func (f *Fanout[T]) Subscribe(ctx context.Context, subscriber Subscriber[T]) error {
	ch, cancel, err := f.register()
	if err != nil {
		return err
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				_ = subscriber.Handle(ctx, msg)
			}
		}
	}()
	return nil
}

// SubscribeCh returns a raw receive channel plus its cancel function, for
// consumers that drive their own select loop (e.g. websocket streams).
// The channel is closed on cancel or bus close.
func (f *Fanout[T]) SubscribeCh(ctx context.Context) (<-chan T, func(), error) {
	ch, cancel, err := f.register()
	if err != nil {
		return nil, nil, err
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel, nil
}

func (f *Fanout[T]) register() (chan T, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, nil, errors.New("pubsub is closed")
	}
	id := f.nextID
	f.nextID++
	sub := &fanoutSub[T]{ch: make(chan T, f.buffer)}
	f.subs[id] = sub

	cancel := func() {
		f.mu.Lock()
		if s, ok := f.subs[id]; ok {
			delete(f.subs, id)
			s.once.Do(func() { close(s.ch) })
		}
		f.mu.Unlock()
	}
	return sub.ch, cancel, nil
}

// SubscriberCount reports the number of live subscribers.
func (f *Fanout[T]) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Dropped reports the total messages dropped across all live subscribers.
func (f *Fanout[T]) Dropped() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var total int64
	for _, sub := range f.subs {
		total += sub.dropped.Load()
	}
	return total
}

// Close closes every subscriber channel and waits for their goroutines.
func (f *Fanout[T]) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	for id, sub := range f.subs {
		delete(f.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// compile-time interface assertions
var _ PubSub[string] = (*Fanout[string])(nil)
