package taskgraph

import "sync/atomic"

// TaskState is the lifecycle state of a task, advancing monotonically:
//
//	PENDING  → READY → RUNNING → COMPLETED → CONSUMED
//
// A task with fanin_count == 0 (or whose fanin was fully satisfied by
// already-completed producers at submission time, see Design Decision 3 in
// SPEC_FULL.md) is born READY, skipping PENDING. No other state is ever
// skipped, and there is no backwards transition (spec.md invariant 1).
type TaskState uint32

const (
	// StatePending is the initial state for a task with unsatisfied fanin.
	StatePending TaskState = iota
	// StateReady indicates all producers have released their hold; the task
	// is sitting in (or about to be pushed to) its kind's ready queue.
	StateReady
	// StateRunning indicates a worker has popped the task and is executing
	// its kernel.
	StateRunning
	// StateCompleted indicates the kernel returned; the completion drainer
	// has not yet finished discharging the task's fanout.
	StateCompleted
	// StateConsumed is terminal: both refcounts have reached zero and the
	// slot is retirable.
	StateConsumed
)

func (s TaskState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateConsumed:
		return "CONSUMED"
	default:
		return "UNKNOWN"
	}
}

// taskStateCell is a lock-free state cell with cache-line padding, modeled
// on eventloop.FastState: pure atomic CAS, no mutex, padding on both sides
// of the single atomic word to avoid false sharing between adjacent slots in
// the shared task store's slot array.
type taskStateCell struct { //nolint:govet // fieldalignment: padding is intentional, see debug_slotlayout.go
	_ [64]byte
	v atomic.Uint32
	_ [60]byte
}

func (c *taskStateCell) load() TaskState {
	return TaskState(c.v.Load())
}

func (c *taskStateCell) store(s TaskState) {
	c.v.Store(uint32(s))
}

// tryTransition attempts an atomic from->to CAS, returning whether it
// succeeded. Used for the CONSUMED race between the orchestrator's scope
// sentinel discharge and the completion drainer's per-consumer discharge:
// whichever side's decrement observes the post-decrement value reach zero
// performs the transition (see scheduler.go's retireIfEligible).
func (c *taskStateCell) tryTransition(from, to TaskState) bool {
	return c.v.CompareAndSwap(uint32(from), uint32(to))
}
