package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, q.Len())
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue()

	got := make(chan string, 1)
	go func() {
		line, err := q.Dequeue(context.Background())
		if err == nil {
			got <- line
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue("late")

	select {
	case line := <-got:
		assert.Equal(t, "late", line)
	case <-time.After(5 * time.Second):
		t.Fatal("dequeue never woke up")
	}
}

func TestDequeueHonorsContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJoinWaitsForDone(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a")
	q.Enqueue("b")

	ctx := context.Background()
	line1, err := q.Dequeue(ctx)
	require.NoError(t, err)
	line2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	_ = line1
	_ = line2

	// items dequeued but not done: Join must still block
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Join(shortCtx), context.DeadlineExceeded)

	q.Done()
	q.Done()
	assert.NoError(t, q.Join(ctx))
}

func TestJoinOnIdleQueueReturnsImmediately(t *testing.T) {
	q := NewQueue()
	assert.NoError(t, q.Join(context.Background()))
}

func TestQueueConcurrentProducersConsumers(t *testing.T) {
	q := NewQueue()
	const producers, perProducer, consumers = 8, 100, 4

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				q.Enqueue("line")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < consumers; i++ {
		go func() {
			for {
				_, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				q.Done()
			}
		}()
	}

	wg.Wait()
	joinCtx, joinCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer joinCancel()
	assert.NoError(t, q.Join(joinCtx))
	assert.Equal(t, 0, q.Len())
}

func TestDoneWithoutEnqueuePanics(t *testing.T) {
	q := NewQueue()
	assert.Panics(t, func() { q.Done() })
}
