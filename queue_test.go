package taskgraph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingPushPopOrderSingleThreaded(t *testing.T) {
	r := newRing[int](8)
	for i := 0; i < 8; i++ {
		require.True(t, r.push(i))
	}
	assert.False(t, r.push(99), "ring should report full at capacity")

	for i := 0; i < 8; i++ {
		v, ok := r.pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := r.pop()
	assert.False(t, ok, "ring should report empty")
}

func TestRingConcurrentProducersConsumers(t *testing.T) {
	r := newRing[int](1024)
	const n = 5000

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < n/4; i++ {
				for !r.push(base*(n/4) + i) {
				}
			}
		}(p)
	}

	seen := make([]bool, n)
	var mu sync.Mutex
	var consumers sync.WaitGroup
	stop := make(chan struct{})
	for c := 0; c < 4; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				if v, ok := r.pop(); ok {
					mu.Lock()
					seen[v] = true
					mu.Unlock()
					continue
				}
				select {
				case <-stop:
					return
				case <-time.After(time.Millisecond):
				}
			}
		}()
	}

	wg.Wait()
	// Give consumers a moment to drain the tail, then stop them and sweep
	// up anything left directly.
	time.Sleep(20 * time.Millisecond)
	close(stop)
	consumers.Wait()
	for {
		v, ok := r.pop()
		if !ok {
			break
		}
		seen[v] = true
	}

	for i, ok := range seen {
		assert.True(t, ok, "value %d was never consumed", i)
	}
}

func TestBoundedQueuePopWaitUnblocksOnPush(t *testing.T) {
	q := newBoundedQueue[string](4)
	ctx := context.Background()

	done := make(chan string)
	go func() {
		v, ok := q.popWait(ctx)
		if !ok {
			done <- ""
			return
		}
		done <- v
	}()

	time.Sleep(5 * time.Millisecond)
	require.True(t, q.push("hello"))

	select {
	case v := <-done:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("popWait did not unblock")
	}
}

func TestBoundedQueuePopWaitRespectsCancellation(t *testing.T) {
	q := newBoundedQueue[int](4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.popWait(ctx)
	assert.False(t, ok)
}
