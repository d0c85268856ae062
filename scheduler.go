package taskgraph

import (
	"context"
	"sync/atomic"
)

// schedSlot is the C4 parallel array entry for one task store slot: the
// lifecycle state plus the two refcounts that gate its transitions. Kept
// separate from descriptor (C1) because it is scheduler-owned and
// reinitialized at every reservation, whereas the descriptor's payload
// fields are orchestrator-owned. Only the state cell is cache-line padded
// (it is checked on every worker pop and every drainer walk, the hottest
// word in the structure); the refcounts are touched once per dependency
// edge and are left unpadded, mirroring how eventloop pads only FastState
// and nothing else.
type schedSlot struct {
	state          taskStateCell
	faninRefcount  atomic.Int32
	fanoutRefcount atomic.Int32
}

type completionRecord struct {
	id  TaskID
	err error
}

// scheduler is C4: per-kind ready queues, the completion queue, and the
// retirement logic that advances lastTaskAlive.
type scheduler struct {
	store *taskStore
	pool  *depPool

	slots []schedSlot

	ready      [maxWorkerKinds]*boundedQueue[TaskID]
	completion *boundedQueue[completionRecord]

	onComplete func(id TaskID, err error)

	metrics *Metrics
	log     Logger
}

func newScheduler(store *taskStore, pool *depPool, readyQueueSize, completionQueueSize uint32, metrics *Metrics, log Logger) *scheduler {
	s := &scheduler{
		store:      store,
		pool:       pool,
		slots:      make([]schedSlot, store.window()),
		completion: newBoundedQueue[completionRecord](completionQueueSize),
		metrics:    metrics,
		log:        log,
	}
	for k := range s.ready {
		s.ready[k] = newBoundedQueue[TaskID](readyQueueSize)
	}
	return s
}

func (s *scheduler) slotFor(id TaskID) *schedSlot { return &s.slots[s.store.slotIndex(id)] }

// initSlot resets a freshly reserved slot's scheduler-owned state. Called by
// the orchestrator while it still holds exclusive access to the slot,
// before publish.
func (s *scheduler) initSlot(id TaskID, faninRefcount int32) {
	slot := s.slotFor(id)
	slot.faninRefcount.Store(faninRefcount)
	slot.fanoutRefcount.Store(1) // scope/caller sentinel, see Design Decision 4
	if faninRefcount == 0 {
		slot.state.store(StateReady)
	} else {
		slot.state.store(StatePending)
	}
}

// addFanoutHold increments a producer's fanout_refcount by one, reserving a
// discharge slot for an edge the orchestrator is about to try to link with
// attachFanout. It must be called *before* attachFanout, not after: the
// completion drainer can seal and walk the producer's fanout list
// concurrently, and if the bump happened only after a successful link, a
// walk landing in between would discharge an edge whose hold was never
// actually accounted for, driving fanout_refcount negative or retiring the
// producer early. Reserving the hold first means the producer can never
// read zero while an attach is in flight; if attachFanout reports the list
// was already sealed, the caller must give the hold back via
// releaseFanoutHold. This is spec.md §4.4/§5's fanout_refcount contract:
// the producer's budget is fanout_count_so_far + 1, the "+1" being the
// scope/caller sentinel seeded by initSlot.
func (s *scheduler) addFanoutHold(producer TaskID) {
	s.slotFor(producer).fanoutRefcount.Add(1)
}

// releaseFanoutHold discharges one fanout_refcount hold on producer,
// retiring it if this was the last one. Shared by releaseEdge (a real
// consumer edge walked at completion), dischargeSentinel (the scope/caller
// sentinel), and the orchestrator's own undo path when a provisional
// addFanoutHold turns out not to have linked an edge.
func (s *scheduler) releaseFanoutHold(store *taskStore, producer TaskID) {
	pSlot := s.slotFor(producer)
	remaining := pSlot.fanoutRefcount.Add(-1)
	assertInvariant(remaining >= 0, "I6", "fanout_refcount decremented below zero")
	if remaining == 0 {
		s.retireIfEligible(store, producer)
	}
}

// admit pushes a task onto its kind's ready queue if it was born READY.
// This is the "on signal from the orchestrator" uptake variant spec.md
// permits as an alternative to periodic scanning: the orchestrator already
// knows whether a task was born ready at publish time, so there is no
// reason to poll for it separately.
func (s *scheduler) admit(id TaskID, kind WorkerKind, bornReady bool) {
	if !bornReady {
		return
	}
	s.enqueueReady(id, kind)
}

func (s *scheduler) enqueueReady(id TaskID, kind WorkerKind) {
	if !s.ready[kind].push(id) {
		// Ready queue capacity is a config invariant (must be >= window);
		// a full push here means misconfiguration, not a transient
		// condition a caller could usefully retry.
		assertInvariant(false, "I-READY-CAP", "ready queue overflow for kind "+kind.String())
	}
	if s.metrics != nil {
		s.metrics.readyEnqueued.Add(1)
	}
}

// popReady blocks until a task of the given kind is ready, or ctx is done.
func (s *scheduler) popReady(ctx context.Context, kind WorkerKind) (TaskID, bool) {
	return s.ready[kind].popWait(ctx)
}

// beginRunning transitions a popped task from READY to RUNNING. Called by
// the worker that dequeued it.
func (s *scheduler) beginRunning(id TaskID) {
	slot := s.slotFor(id)
	assertInvariant(slot.state.tryTransition(StateReady, StateRunning), "I1", "READY->RUNNING transition failed")
}

// pushCompletion enqueues a finished task for the completion drainer. Called
// by workers; never blocks indefinitely (the completion queue is sized to
// the window, so it cannot be outpaced by workers for long).
func (s *scheduler) pushCompletion(ctx context.Context, id TaskID, err error) {
	for !s.completion.push(completionRecord{id: id, err: err}) {
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// drainCompletions runs on the single completion-drainer goroutine until ctx
// is done. It is the only goroutine that ever walks a sealed fanout list,
// which is what makes the per-edge discharge in releaseEdge race-free.
func (s *scheduler) drainCompletions(ctx context.Context, store *taskStore) {
	for {
		rec, ok := s.completion.popWait(ctx)
		if !ok {
			return
		}
		s.onCompleted(store, rec.id, rec.err)
	}
}

func (s *scheduler) onCompleted(store *taskStore, id TaskID, kernelErr error) {
	slot := s.slotFor(id)
	assertInvariant(slot.state.tryTransition(StateRunning, StateCompleted), "I1", "RUNNING->COMPLETED transition failed")

	desc := store.get(id)
	if kernelErr != nil {
		desc.err = kernelErr
	}
	if s.onComplete != nil {
		s.onComplete(id, kernelErr)
	}

	head := desc.sealFanout()
	for off := head; off != nullEdge && off != sealedEdge; {
		cell := s.pool.at(off)
		s.releaseEdge(store, id, cell.task)
		off = cell.next
	}

	s.retireIfEligible(store, id)
}

// releaseEdge discharges one producer→consumer fanout edge: the consumer's
// fanin_refcount is decremented (transitioning it to READY if this was the
// last hold), and the producer's fanout_refcount is decremented (possibly
// making it retirement-eligible).
func (s *scheduler) releaseEdge(store *taskStore, producer, consumer TaskID) {
	cSlot := s.slotFor(consumer)
	remaining := cSlot.faninRefcount.Add(-1)
	assertInvariant(remaining >= 0, "I2", "fanin_refcount decremented below zero")
	if remaining == 0 {
		assertInvariant(cSlot.state.tryTransition(StatePending, StateReady), "I1", "fanin reached zero but consumer wasn't PENDING")
		s.enqueueReady(consumer, store.get(consumer).workerKind)
	}

	s.releaseFanoutHold(store, producer)
}

// dischargeSentinel drops the scope/caller +1 held on id's fanout_refcount
// since submission. Called by the orchestrator when a task's owning scope
// closes (or immediately at publish for tasks submitted outside any scope).
func (s *scheduler) dischargeSentinel(store *taskStore, id TaskID) {
	s.releaseFanoutHold(store, id)
}

// retireIfEligible performs the COMPLETED->CONSUMED transition if both
// refcounts have reached zero. It is idempotent and safe to call from
// multiple call sites/goroutines racing to be the one whose decrement
// observed zero first — only one CAS ever succeeds, and whichever call site
// loses simply no-ops, trusting the winner (or a future call, if this task
// hadn't reached COMPLETED yet) to finish the job.
func (s *scheduler) retireIfEligible(store *taskStore, id TaskID) {
	slot := s.slotFor(id)
	if slot.fanoutRefcount.Load() != 0 {
		return
	}
	if slot.state.tryTransition(StateCompleted, StateConsumed) {
		if s.metrics != nil {
			s.metrics.tasksConsumed.Add(1)
		}
		s.advanceRetirement(store, id)
	}
}

// advanceRetirement extends lastTaskAlive forward through any run of
// already-CONSUMED slots starting just past the current value.
func (s *scheduler) advanceRetirement(store *taskStore, justConsumed TaskID) {
	for {
		low := store.lastAlive()
		k := low + 1
		top := store.nextIndex()
		for k != top && s.slotFor(k).state.load() == StateConsumed && store.get(k).taskID == k {
			k++
		}
		newLow := k - 1
		if newLow == low {
			return
		}
		prev := store.lastAlive()
		store.tryAdvanceLastTaskAlive(newLow)
		if store.lastAlive() == prev {
			return // another goroutine is mid-advance; let it finish
		}
	}
}

func (s *scheduler) stateOf(id TaskID) TaskState { return s.slotFor(id).state.load() }

// queueDepths fills in the ready-queue and completion-queue gauges of a
// MetricsSnapshot being assembled by Runtime.Metrics().
func (s *scheduler) queueDepths(snap *MetricsSnapshot) {
	for k := range s.ready {
		snap.ReadyQueueDepth[k] = s.ready[k].len()
	}
	snap.CompletionQueueDepth = s.completion.len()
}

// stateHistogram counts live tasks (those between the store's current
// reservation cursor and its oldest still-alive task) by TaskState, for the
// MetricsSnapshot's StateHistogram gauge.
func (s *scheduler) stateHistogram(store *taskStore, snap *MetricsSnapshot) {
	top := store.nextIndex()
	low := store.lastAlive() + 1
	for id := low; id != top; id++ {
		snap.StateHistogram[s.slotFor(id).state.load()]++
	}
}
