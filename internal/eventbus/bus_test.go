package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T, cfg Config) *Bus {
	b := New(cfg, nil)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() {
		_ = b.Stop(context.Background())
	})
	return b
}

func TestBusSubscribeUnsubscribeIdempotent(t *testing.T) {
	b := newTestBus(t, DefaultConfig())

	id, err := b.Subscribe("noop", Filter{}, func(context.Context, Event) error { return nil })
	require.NoError(t, err)

	assert.NoError(t, b.Unsubscribe(id))
	assert.NoError(t, b.Unsubscribe(id), "unsubscribing twice must succeed both times")
}

func TestBusEmptyFilterMatchesEverything(t *testing.T) {
	b := newTestBus(t, DefaultConfig())

	received := make(chan Event, 1)
	_, err := b.Subscribe("all", Filter{}, func(_ context.Context, e Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), NewEvent("anything", "anywhere", nil)))

	select {
	case e := <-received:
		assert.Equal(t, "anything", e.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

// TestBusPerSourceOrdering mirrors publishing 1,000 events from source s1
// and 1,000 from s2 interleaved across two producers. A single subscription
// matching both must observe each source's own subsequence strictly in
// publish order.
func TestBusPerSourceOrdering(t *testing.T) {
	b := newTestBus(t, Config{
		QueueCapacity:    5000,
		WorkerCount:      4,
		Policy:           Wait,
		WaitTimeout:      time.Second,
		SubscriberBuffer: 5000,
	})

	const n = 1000
	var mu sync.Mutex
	var seqS1, seqS2 []int

	done := make(chan struct{})
	var receivedCount int
	_, err := b.Subscribe("watcher", Filter{}, func(_ context.Context, e Event) error {
		mu.Lock()
		seq := e.Payload.(int)
		if e.Source == "s1" {
			seqS1 = append(seqS1, seq)
		} else {
			seqS2 = append(seqS2, seq)
		}
		receivedCount++
		if receivedCount == 2*n {
			close(done)
		}
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			e := NewEvent("load.test", "s1", i)
			require.NoError(t, b.Publish(context.Background(), e))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			e := NewEvent("load.test", "s2", i)
			require.NoError(t, b.Publish(context.Background(), e))
		}
	}()
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for all events to be delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seqS1, n)
	require.Len(t, seqS2, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, i, seqS1[i], "s1 subsequence must be in publish order")
		assert.Equal(t, i, seqS2[i], "s2 subsequence must be in publish order")
	}
}

// TestBusPublishRejectsWhenQueueFull exercises the reject policy directly
// against queue capacity: the bus is deliberately never Started, so nothing
// drains the channel and the Nth+1 publish must observe it full.
func TestBusPublishRejectsWhenQueueFull(t *testing.T) {
	b := New(Config{QueueCapacity: 2, WorkerCount: 1, Policy: Reject}, nil)

	require.NoError(t, b.Publish(context.Background(), NewEvent("a", "x", nil)))
	require.NoError(t, b.Publish(context.Background(), NewEvent("b", "x", nil)))

	err := b.Publish(context.Background(), NewEvent("c", "x", nil))
	require.Error(t, err)
}

func TestBusPublishSyncBypassesPool(t *testing.T) {
	b := New(DefaultConfig(), nil) // deliberately not Started

	var called bool
	_, err := b.Subscribe("sync", Filter{}, func(context.Context, Event) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.PublishSync(context.Background(), NewEvent("boot", "kernel", nil)))
	assert.True(t, called)
}
