package taskgraph

import (
	"context"
	"sync/atomic"
	"time"
)

// taskStore is the C1 shared task store: a fixed-capacity ring of task
// descriptor slots addressed by id & (window-1), per spec.md §3/§4.1.
type taskStore struct {
	mask  uint32
	slots []descriptor

	// currentTaskIndex is the next id to be reserved; lastTaskAlive is the
	// newest id of the unbroken run of ids already retired to CONSUMED, so
	// the oldest live id is lastTaskAlive+1. A reservation for id is only
	// made once id - lastTaskAlive <= window (spec.md's window-saturation
	// rule).
	currentTaskIndex atomic.Uint32
	lastTaskAlive     atomic.Uint32

	reserveBackoff time.Duration
	reserveMaxWait time.Duration
}

func newTaskStore(window uint32, reserveBackoff, reserveMaxWait time.Duration) *taskStore {
	if window == 0 || window&(window-1) != 0 {
		panic("taskgraph: store: window must be a power of 2")
	}
	s := &taskStore{
		mask:           window - 1,
		slots:          make([]descriptor, window),
		reserveBackoff: reserveBackoff,
		reserveMaxWait: reserveMaxWait,
	}
	// lastTaskAlive starts one below the first id (0), so id 0's window
	// check (0 - lastTaskAlive <= window) holds immediately.
	s.lastTaskAlive.Store(^uint32(0))
	return s
}

func (s *taskStore) slotIndex(id TaskID) uint32 { return uint32(id) & s.mask }

func (s *taskStore) window() uint32 { return uint32(len(s.slots)) }

func (s *taskStore) get(id TaskID) *descriptor { return &s.slots[s.slotIndex(id)] }

// reserve hands out the next monotonic TaskID, blocking (spin + bounded
// backoff) until the task window has room. It returns TaskWindowFull if the
// window does not clear within reserveMaxWait.
func (s *taskStore) reserve(ctx context.Context) (TaskID, error) {
	deadline := time.Now().Add(s.reserveMaxWait)
	for {
		id := TaskID(s.currentTaskIndex.Load())
		last := TaskID(s.lastTaskAlive.Load())
		if uint32(id-last) <= s.window() {
			if s.currentTaskIndex.CompareAndSwap(uint32(id), uint32(id)+1) {
				return id, nil
			}
			continue
		}
		if time.Now().After(deadline) {
			return 0, &TaskWindowFull{Requested: id, LastTaskAlive: last, Window: s.window()}
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(s.reserveBackoff):
		}
	}
}

// tryAdvanceLastTaskAlive attempts to move lastTaskAlive forward to newLow.
// Safe under concurrent callers (the orchestrator's scope-close path and the
// scheduler's completion-drainer path can both trigger retirement): it only
// ever advances, via CAS, and no-ops if another goroutine already moved
// lastTaskAlive at or past newLow.
func (s *taskStore) tryAdvanceLastTaskAlive(newLow TaskID) {
	for {
		cur := s.lastTaskAlive.Load()
		if int32(uint32(newLow)-cur) <= 0 {
			return
		}
		if s.lastTaskAlive.CompareAndSwap(cur, uint32(newLow)) {
			return
		}
	}
}

func (s *taskStore) lastAlive() TaskID     { return TaskID(s.lastTaskAlive.Load()) }
func (s *taskStore) nextIndex() TaskID     { return TaskID(s.currentTaskIndex.Load()) }
func (s *taskStore) liveCount() uint32     { return uint32(s.nextIndex() - s.lastAlive() - 1) }
