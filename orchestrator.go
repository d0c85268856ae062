package taskgraph

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
)

// getGoroutineID parses the calling goroutine's id out of a short stack
// trace. Grounded directly on eventloop/loop.go's getGoroutineID/
// isLoopThread self-check; the goroutineid module in the source pack
// retrieved no files to import instead.
func getGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// SubmitRequest describes one task submission to the orchestrator.
type SubmitRequest struct {
	WorkerKind WorkerKind
	FuncName   string
	Params     []Param
	UserCtx    any
}

// orchestrator is C3: the single-writer submission path that infers the
// dependency DAG from tile overlap and publishes tasks into the shared
// store. Every exported method must be called from the same goroutine for
// the orchestrator's lifetime — ownerGoroutine captures that goroutine's id
// on first use, and every later call is checked against it, because the
// overlap index and scope stack carry no synchronization of their own.
type orchestrator struct {
	store *taskStore
	pool  *depPool
	sched *scheduler

	overlap *overlapIndex
	scopes  *scopeStack

	ownerGoroutine atomic.Int64
	done           atomic.Bool

	metrics *Metrics
	log     Logger

	depsScratch []TaskID
}

const noOwnerYet = 0

func newOrchestrator(store *taskStore, pool *depPool, sched *scheduler, metrics *Metrics, log Logger) *orchestrator {
	return &orchestrator{
		store:   store,
		pool:    pool,
		sched:   sched,
		overlap: newOverlapIndex(),
		scopes:  newScopeStack(),
		metrics: metrics,
		log:     log,
	}
}

func (o *orchestrator) checkSingleWriter() {
	self := getGoroutineID()
	if o.ownerGoroutine.CompareAndSwap(noOwnerYet, self) {
		return
	}
	if owner := o.ownerGoroutine.Load(); owner != self {
		assertInvariant(false, "I-SINGLE-WRITER",
			fmt.Sprintf("orchestrator method called from goroutine %d, owned by %d", self, owner))
	}
}

// submit implements spec.md §4.3/§4.4: infer dependencies from tile overlap,
// attach fanout edges to live producers, seed the new task's fanin_refcount
// (Design Decision 3: initialization lives entirely here, not split with a
// separate scheduler uptake scan), register it against the innermost open
// scope (or discharge its sentinel immediately if no scope is open), and
// admit it to its ready queue if it was born READY.
func (o *orchestrator) submit(ctx context.Context, req SubmitRequest) (TaskID, error) {
	o.checkSingleWriter()
	if o.done.Load() {
		return 0, ShutdownInProgress
	}
	if !req.WorkerKind.valid() {
		return 0, &ConfigInvalid{Reason: fmt.Sprintf("worker kind %d out of range", req.WorkerKind)}
	}

	id, err := o.store.reserve(ctx)
	if err != nil {
		return 0, err
	}

	desc := o.store.get(id)
	desc.reset(id, req.WorkerKind, req.FuncName, req.Params, req.UserCtx, o.scopes.depth())

	o.depsScratch = o.overlap.recordAndDeps(id, req.Params, o.depsScratch)

	var faninCount, preSatisfied uint32
	faninHead := nullEdge
	for _, producer := range o.depsScratch {
		pDesc := o.store.get(producer)

		// The producer's slot may have already been recycled by a newer
		// task: the window can wrap many times between a tile's last write
		// and its next touch. A recycled slot (or one that was never
		// published to begin with) can only mean the original producer
		// reached CONSUMED, strictly after COMPLETED — so the dependency is
		// trivially satisfied (spec.md's slot-epoch check).
		if pDesc.taskID != producer || !pDesc.isActive.Load() {
			preSatisfied++
			continue
		}

		// Reserve the producer's discharge slot for this edge before
		// attempting to link it: the completion drainer can seal and walk
		// the producer's fanout list concurrently, and a bump applied only
		// after a successful link would race a walk landing in between
		// (see addFanoutHold's doc comment in scheduler.go).
		o.sched.addFanoutHold(producer)
		_, linked, aerr := pDesc.attachFanout(o.pool, id)
		if aerr != nil {
			return 0, aerr
		}
		if !linked {
			// Producer's fanout list was already sealed by the completion
			// drainer: it finished and was fully walked. Same treatment as
			// the recycled-slot case above (Design Decision 4) — but first
			// give back the hold just reserved, since no edge was linked
			// for it to cover.
			o.sched.releaseFanoutHold(o.store, producer)
			preSatisfied++
			if o.metrics != nil {
				o.metrics.lateAttaches.Add(1)
			}
			continue
		}
		if o.metrics != nil {
			o.metrics.depEdgesLinked.Add(1)
		}

		faninOff, ferr := o.pool.alloc(producer)
		if ferr != nil {
			return 0, ferr
		}
		o.pool.at(faninOff).next = faninHead
		faninHead = faninOff
		faninCount++
	}

	desc.faninHead = faninHead
	desc.faninCount = faninCount

	// Every discovered producer lands in exactly one bucket above: either
	// preSatisfied (no edge, nothing to wait on) or a real linked edge
	// counted in faninCount. initialFanin is therefore faninCount alone —
	// preSatisfied producers already contribute zero to the wait count, so
	// subtracting them again would double-discount and could hand out a
	// READY state while a real producer edge is still outstanding.
	initialFanin := int32(faninCount)
	o.sched.initSlot(id, initialFanin)
	desc.publish()

	o.scopes.register(id)
	if o.scopes.depth() == 0 {
		o.sched.dischargeSentinel(o.store, id)
	}

	o.sched.admit(id, req.WorkerKind, initialFanin == 0)

	if o.metrics != nil {
		o.metrics.tasksSubmitted.Add(1)
	}
	if o.log != nil {
		o.log.Debug("task submitted", "task", id, "kind", req.WorkerKind, "func", req.FuncName, "fanin", faninCount)
	}
	return id, nil
}

// scopeBegin opens a new nested scope and returns its id.
func (o *orchestrator) scopeBegin() uint32 {
	o.checkSingleWriter()
	return o.scopes.begin()
}

// scopeEnd closes the innermost open scope, discharging the fanout
// sentinel for every task that was submitted within it.
func (o *orchestrator) scopeEnd() {
	o.checkSingleWriter()
	members, ok := o.scopes.end()
	if !ok {
		assertInvariant(false, "I-SCOPE-BALANCE", "scope_end called with no open scope")
	}
	for _, id := range members {
		o.sched.dischargeSentinel(o.store, id)
	}
}

// orchestrationDone marks submission as finished; subsequent submit calls
// fail with ShutdownInProgress.
func (o *orchestrator) orchestrationDone() {
	o.checkSingleWriter()
	o.done.Store(true)
}

func (o *orchestrator) isDone() bool { return o.done.Load() }
