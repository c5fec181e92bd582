package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker_Subscribe(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)

	broker.Publish(StateChangedEvent, "fetching")

	select {
	case event := <-ch:
		require.Equal(t, "fetching", event.Payload)
		require.Equal(t, StateChangedEvent, event.Type)
		require.False(t, event.Timestamp.IsZero())
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "timeout waiting for event")
	}
}

func TestBroker_MultipleSubscribers(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ctx := context.Background()

	ch1 := broker.Subscribe(ctx)
	ch2 := broker.Subscribe(ctx)

	require.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(RunFinishedEvent, 42)

	for i, ch := range []<-chan Event[int]{ch1, ch2} {
		select {
		case event := <-ch:
			require.Equal(t, 42, event.Payload, "subscriber %d", i)
			require.Equal(t, RunFinishedEvent, event.Type, "subscriber %d", i)
		case <-time.After(100 * time.Millisecond):
			require.Fail(t, "timeout waiting for event", "subscriber %d", i)
		}
	}
}

func TestBroker_ContextCancellation(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())

	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 0 },
		time.Second, 5*time.Millisecond)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
}

func TestBroker_NonBlockingCountsDrops(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())

	broker.Publish(LogEvent, 1)

	done := make(chan struct{})
	go func() {
		broker.Publish(LogEvent, 2)
		broker.Publish(LogEvent, 3)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "Publish blocked")
	}

	event := <-ch
	require.Equal(t, 1, event.Payload)
	require.Equal(t, uint64(2), broker.Dropped())
}

func TestBroker_Close(t *testing.T) {
	broker := NewBroker[string]()
	ctx := context.Background()

	ch1 := broker.Subscribe(ctx)
	ch2 := broker.Subscribe(ctx)

	broker.Close()
	broker.Close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	require.False(t, ok1, "ch1 should be closed")
	require.False(t, ok2, "ch2 should be closed")
	require.Equal(t, 0, broker.SubscriberCount())

	ch3 := broker.Subscribe(ctx)
	_, ok3 := <-ch3
	require.False(t, ok3, "subscribe after close returns a closed channel")

	broker.Publish(RunStartedEvent, "ignored")
}
