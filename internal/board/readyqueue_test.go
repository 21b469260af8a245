package board

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyQueuePushTailOrder(t *testing.T) {
	q := newReadyQueue(-1)
	a := newTask(Primary, "a", func(ctx context.Context) {}, nil)
	b := newTask(Primary, "b", func(ctx context.Context) {}, nil)

	q.pushTail(a)
	q.pushTail(b)

	q.mu.Lock()
	first := q.popHeadLocked()
	second := q.popHeadLocked()
	q.mu.Unlock()

	assert.Same(t, a, first)
	assert.Same(t, b, second)
}

func TestReadyQueuePushHeadJumpsAhead(t *testing.T) {
	q := newReadyQueue(-1)
	a := newTask(Primary, "a", func(ctx context.Context) {}, nil)
	b := newTask(Priority, "b", func(ctx context.Context) {}, nil)

	q.pushTail(a)
	q.pushHead(b)

	q.mu.Lock()
	first := q.popHeadLocked()
	q.mu.Unlock()

	assert.Same(t, b, first)
}

func TestReadyQueueCloseWakesWaiters(t *testing.T) {
	q := newReadyQueue(0)

	done := make(chan struct{})
	go func() {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		q.mu.Unlock()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.closeQueue()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by closeQueue")
	}
}

func TestReadyQueueOnPushHookFiresOutsideLock(t *testing.T) {
	q := newReadyQueue(0)
	var mu sync.Mutex
	fired := false
	lockFree := false
	q.onPush = func() {
		mu.Lock()
		fired = true
		if q.mu.TryLock() {
			lockFree = true
			q.mu.Unlock()
		}
		mu.Unlock()
	}

	q.pushTail(newTask(Secondary, "x", func(ctx context.Context) {}, nil))

	mu.Lock()
	defer mu.Unlock()
	require.True(t, fired)
	require.True(t, lockFree, "onPush ran while the queue mutex was held")
}

func TestReadyQueueDrainLockedEmpties(t *testing.T) {
	q := newReadyQueue(0)
	q.pushTail(newTask(Secondary, "x", func(ctx context.Context) {}, nil))
	q.pushTail(newTask(Secondary, "y", func(ctx context.Context) {}, nil))

	q.mu.Lock()
	drained := q.drainLocked()
	q.mu.Unlock()

	assert.Len(t, drained, 2)
	assert.Equal(t, 0, q.len())
}
