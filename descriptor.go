package taskgraph

import (
	"sync/atomic"
	"time"
)

// descriptor is the C1 task descriptor resident in one store slot. Per
// spec.md, the submission fields are written once by the orchestrator
// before publish and are read-only afterwards; fanoutHead keeps accepting
// new edges for as long as later submissions can still name this task as a
// producer, until the completion drainer seals it. The run-time fields
// startNanos/endNanos (set by the worker) and err (set by the completion
// drainer) are filled in after publish.
type descriptor struct { //nolint:govet // fieldalignment: grouping favors readability over padding here
	// taskID is set at reserve and never touched again; it lets a late
	// attach (see attachFanout) tell whether the slot it found still holds
	// the producer it expected, or has already been recycled by a newer
	// task (spec.md's slot-epoch check).
	taskID TaskID

	// isActive is the publish fence: false while the orchestrator is still
	// populating the slot, flipped true (release store) as the final step
	// of publish. Readers (late-attach callers racing a fresh reserve) must
	// observe it true before trusting any other descriptor field.
	isActive atomic.Bool

	workerKind WorkerKind
	funcName   string
	params     []Param
	userCtx    any

	scopeDepth uint32

	// faninCount is a diagnostic/orchestrator-owned tally of total fanin
	// edges attached at submission (not remaining); the live dependency
	// counts that actually gate transitions live in the scheduler's slot
	// array (faninRefcount/fanoutRefcount in scheduler.go). There is no
	// equivalent fanoutCount: fanout edges accumulate for as long as the
	// producer's slot is alive, well past this task's own submission, so
	// the scheduler's fanoutRefcount (bumped once per attached edge by
	// orchestrator.submit, see scheduler.go's addFanoutHold) is the only
	// place that count can correctly live.
	faninCount uint32

	// faninHead is frozen at publish: a task's own fanin list is complete
	// before it is ever made visible.
	faninHead edgeOffset

	// fanoutHead is the CAS-sealed Treiber-stack head described in Design
	// Decision 4 (SPEC_FULL.md §9): attachFanout prepends edges with a CAS
	// loop; the completion drainer performs a single atomic swap to
	// sealedEdge to claim the entire list exactly once.
	fanoutHead atomic.Uint32

	err error

	submitNanos int64
	startNanos  int64
	endNanos    int64
}

func (d *descriptor) reset(taskID TaskID, kind WorkerKind, funcName string, params []Param, userCtx any, scopeDepth uint32) {
	d.taskID = taskID
	d.isActive.Store(false)
	d.workerKind = kind
	d.funcName = funcName
	d.params = params
	d.userCtx = userCtx
	d.scopeDepth = scopeDepth
	d.faninCount = 0
	d.faninHead = nullEdge
	d.fanoutHead.Store(uint32(nullEdge))
	d.err = nil
	d.submitNanos = time.Now().UnixNano()
	d.startNanos = 0
	d.endNanos = 0
}

// publish is the release-store that makes the fully-populated descriptor
// visible to any goroutine that can reach this slot (workers, the
// completion drainer, and late-attaching submitters).
func (d *descriptor) publish() {
	d.isActive.Store(true)
}

// attachFanout prepends a consumer edge to producer's fanout list. It
// returns (offset, true) if the edge was linked, or (0, false) if the
// producer's list had already been sealed by the completion drainer — in
// which case the caller must treat the dependency as already satisfied
// instead of waiting on an edge nobody will ever walk.
func (d *descriptor) attachFanout(pool *depPool, consumer TaskID) (edgeOffset, bool, error) {
	for {
		head := edgeOffset(d.fanoutHead.Load())
		if head == sealedEdge {
			return nullEdge, false, nil
		}
		off, err := pool.alloc(consumer)
		if err != nil {
			return nullEdge, false, err
		}
		pool.at(off).next = head
		if d.fanoutHead.CompareAndSwap(uint32(head), uint32(off)) {
			return off, true, nil
		}
		// Lost the race; the cell we allocated is abandoned (arena cells are
		// never reclaimed individually, see deppool.go) and we retry with
		// the freshly observed head.
	}
}

// sealFanout atomically swaps the fanout head to sealedEdge, returning the
// list as it stood at the moment of the swap. Called exactly once per task,
// by the completion drainer.
func (d *descriptor) sealFanout() edgeOffset {
	return edgeOffset(d.fanoutHead.Swap(uint32(sealedEdge)))
}
