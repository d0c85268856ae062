package taskgraph

import (
	"context"
	"time"
)

// Task is the read-only view of a submitted task handed to a Kernel.
type Task struct {
	ID         TaskID
	WorkerKind WorkerKind
	FuncName   string
	Params     []Param
	UserCtx    any
}

// Kernel executes one task's body. It is supplied once, at Runtime
// construction (WithKernel), and invoked from whichever worker goroutine
// dequeues the task; it must be safe for concurrent use across all workers.
type Kernel func(ctx context.Context, task Task) error

// workerPool runs a fixed number of goroutines per WorkerKind, each looping
// pop-ready -> run-kernel -> push-completion. Grounded on eventloop's
// separation of "loop thread" versus externally driven goroutines:
// worker goroutines here are the external side, never touching orchestrator
// state directly, only the scheduler's queues.
type workerPool struct {
	sched  *scheduler
	store  *taskStore
	kernel Kernel

	metrics *Metrics
	log     Logger
	tracer  *tracer
}

func newWorkerPool(sched *scheduler, store *taskStore, kernel Kernel, metrics *Metrics, log Logger, trc *tracer) *workerPool {
	return &workerPool{sched: sched, store: store, kernel: kernel, metrics: metrics, log: log, tracer: trc}
}

// run is the body of one worker goroutine for the given kind. It returns
// when ctx is done.
func (w *workerPool) run(ctx context.Context, kind WorkerKind) {
	for {
		id, ok := w.sched.popReady(ctx, kind)
		if !ok {
			return
		}
		w.execute(ctx, id)
	}
}

func (w *workerPool) execute(ctx context.Context, id TaskID) {
	w.sched.beginRunning(id)
	desc := w.store.get(id)
	desc.startNanos = time.Now().UnixNano()

	task := Task{
		ID:         id,
		WorkerKind: desc.workerKind,
		FuncName:   desc.funcName,
		Params:     desc.params,
		UserCtx:    desc.userCtx,
	}

	err := w.runKernel(ctx, task)

	desc.endNanos = time.Now().UnixNano()
	if err != nil {
		if w.metrics != nil {
			w.metrics.kernelErrors.Add(1)
		}
		w.log.Error("kernel error", "task", id, "func", desc.funcName, "err", err)
		err = &KernelError{TaskID: id, FuncName: desc.funcName, Cause: err}
	}
	if w.metrics != nil {
		w.metrics.tasksCompleted.Add(1)
	}
	if w.tracer != nil {
		w.tracer.record(id, desc.funcName, desc.workerKind, desc.startNanos, desc.endNanos, err)
	}
	w.sched.pushCompletion(ctx, id, err)
}

// runKernel isolates the kernel invocation so a panicking kernel becomes a
// KernelError completion (recorded in descriptor.err and reported to the
// completion callback) instead of taking down the worker goroutine and
// stalling the whole pipeline.
func (w *workerPool) runKernel(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &KernelError{TaskID: task.ID, FuncName: task.FuncName, Cause: panicError{r}}
		}
	}()
	return w.kernel(ctx, task)
}

type panicError struct{ v any }

func (p panicError) Error() string { return "panic: " + errAny(p.v) }

func errAny(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "non-error panic value"
}
