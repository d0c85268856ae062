package taskgraph

import (
	"context"
	"sync/atomic"
)

// ring is a bounded, lock-free MPMC ring buffer. It generalizes the
// power-of-two masked indexing catrate's ring buffer uses for a
// single-owner FIFO into a true multi-producer/multi-consumer queue via a
// per-cell sequence number — the standard bounded MPMC ring design. Needed
// here because ready queues are pushed to by both the orchestrator
// goroutine (born-READY tasks) and the completion drainer (released
// consumers) but popped by every worker of a kind concurrently,
// and the completion queue is pushed to by every worker concurrently but
// popped by the single completion drainer.
type ring[T any] struct {
	mask  uint64
	cells []ringCell[T]
	head  atomic.Uint64
	tail  atomic.Uint64
}

type ringCell[T any] struct {
	seq   atomic.Uint64
	value T
}

func newRing[T any](size uint32) *ring[T] {
	if size == 0 || size&(size-1) != 0 {
		panic("taskgraph: ring: size must be a power of 2")
	}
	r := &ring[T]{
		mask:  uint64(size - 1),
		cells: make([]ringCell[T], size),
	}
	for i := range r.cells {
		r.cells[i].seq.Store(uint64(i))
	}
	return r
}

func (r *ring[T]) push(v T) bool {
	pos := r.tail.Load()
	for {
		cell := &r.cells[pos&r.mask]
		seq := cell.seq.Load()
		diff := int64(seq - pos)
		switch {
		case diff == 0:
			if r.tail.CompareAndSwap(pos, pos+1) {
				cell.value = v
				cell.seq.Store(pos + 1)
				return true
			}
			pos = r.tail.Load()
		case diff < 0:
			return false
		default:
			pos = r.tail.Load()
		}
	}
}

func (r *ring[T]) pop() (T, bool) {
	var zero T
	pos := r.head.Load()
	for {
		cell := &r.cells[pos&r.mask]
		seq := cell.seq.Load()
		diff := int64(seq - (pos + 1))
		switch {
		case diff == 0:
			if r.head.CompareAndSwap(pos, pos+1) {
				v := cell.value
				cell.value = zero
				cell.seq.Store(pos + r.mask + 1)
				return v, true
			}
			pos = r.head.Load()
		case diff < 0:
			return zero, false
		default:
			pos = r.head.Load()
		}
	}
}

func (r *ring[T]) len() int {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail < head {
		return 0
	}
	return int(tail - head)
}

func (r *ring[T]) cap() int { return len(r.cells) }

// boundedQueue pairs a ring with a buffered wakeup channel, giving
// consumers a blocking popWait alongside the ring's non-blocking pop. The
// wakeup channel idiom mirrors eventloop's wakeup-channel pattern for
// parking a goroutine between externally-driven events rather than
// spinning.
type boundedQueue[T any] struct {
	r      *ring[T]
	notify chan struct{}
}

func newBoundedQueue[T any](size uint32) *boundedQueue[T] {
	return &boundedQueue[T]{r: newRing[T](size), notify: make(chan struct{}, 1)}
}

func (q *boundedQueue[T]) push(v T) bool {
	ok := q.r.push(v)
	if ok {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return ok
}

// popWait blocks until an item is available or ctx is cancelled.
func (q *boundedQueue[T]) popWait(ctx context.Context) (T, bool) {
	for {
		if v, ok := q.r.pop(); ok {
			return v, true
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

func (q *boundedQueue[T]) len() int { return q.r.len() }
func (q *boundedQueue[T]) cap() int { return q.r.cap() }
