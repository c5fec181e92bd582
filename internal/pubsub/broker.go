package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 64

// Broker is a generic pub/sub event broker.
// Publishing never blocks: a subscriber whose buffer is full misses the event
// and the miss is counted in Dropped.
type Broker[T any] struct {
	subs       map[chan Event[T]]struct{}
	mu         sync.RWMutex
	done       chan struct{}
	bufferSize int
	dropped    atomic.Uint64
	now        func() time.Time
}

// Compile-time checks.
var (
	_ Subscriber[string] = (*Broker[string])(nil)
	_ Publisher[string]  = (*Broker[string])(nil)
)

// NewBroker creates a new broker with the default buffer size (64).
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a new broker with a custom buffer size.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	if size < 1 {
		size = 1
	}
	return &Broker[T]{
		subs:       make(map[chan Event[T]]struct{}),
		done:       make(chan struct{}),
		bufferSize: size,
		now:        time.Now,
	}
}

// Subscribe creates a new subscription channel.
// The channel is closed when ctx is cancelled or the broker is closed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed() {
		ch := make(chan Event[T])
		close(ch)
		return ch
	}

	sub := make(chan Event[T], b.bufferSize)
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed() {
			return
		}
		delete(b.subs, sub)
		close(sub)
	}()

	return sub
}

// Publish sends an event to all subscribers.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed() {
		return
	}

	event := Event[T]{
		Type:      eventType,
		Payload:   payload,
		Timestamp: b.now(),
	}

	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Close shuts down the broker and all subscriber channels. Safe to call twice.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed() {
		return
	}

	close(b.done)
	for sub := range b.subs {
		close(sub)
	}
	b.subs = nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}

// closed must be called with mu held.
func (b *Broker[T]) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
