package taskgraph

import "sync/atomic"

// Metrics is an always-enabled counters block, modeled on
// eventloop.Metrics: a plain struct of atomic counters that the Runtime
// updates on the hot path regardless, and that a caller can snapshot via
// Runtime.Metrics(). There is no disable switch because atomic.Int64.Add is
// cheap enough that eventloop itself doesn't bother gating it either.
type Metrics struct {
	tasksSubmitted atomic.Int64
	tasksCompleted atomic.Int64
	tasksConsumed  atomic.Int64
	kernelErrors   atomic.Int64
	readyEnqueued  atomic.Int64
	depEdgesLinked atomic.Int64
	lateAttaches   atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics' counters, plus the
// queue-depth and task-state gauges a caller reads directly off the
// scheduler and task store (these are live counts, not accumulated
// counters, so they are filled in by Runtime.Metrics() rather than by
// Metrics.snapshot() itself, which has no scheduler/store reference).
type MetricsSnapshot struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksConsumed  int64
	KernelErrors   int64
	ReadyEnqueued  int64
	DepEdgesLinked int64
	LateAttaches   int64

	// ReadyQueueDepth is the current length of each worker kind's ready
	// queue, indexed by WorkerKind.
	ReadyQueueDepth [maxWorkerKinds]int
	// CompletionQueueDepth is the current length of the completion queue.
	CompletionQueueDepth int
	// StateHistogram counts live (reserved but not yet retired) tasks
	// currently in each TaskState, indexed by TaskState.
	StateHistogram [5]int
}

func (m *Metrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TasksSubmitted: m.tasksSubmitted.Load(),
		TasksCompleted: m.tasksCompleted.Load(),
		TasksConsumed:  m.tasksConsumed.Load(),
		KernelErrors:   m.kernelErrors.Load(),
		ReadyEnqueued:  m.readyEnqueued.Load(),
		DepEdgesLinked: m.depEdgesLinked.Load(),
		LateAttaches:   m.lateAttaches.Load(),
	}
}
