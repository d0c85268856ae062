package taskgraph

import (
	"context"
	"fmt"
	"sync"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/pbnjay/memory"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"
)

// Runtime ties together the shared task store (C1), dependency-list pool
// (C2), orchestrator (C3), scheduler (C4), and worker pools (C5) described
// in spec.md §3 into the single object a host program constructs and drives.
type Runtime struct {
	cfg   *config
	store *taskStore
	pool  *depPool
	sched *scheduler
	orch  *orchestrator
	pools map[WorkerKind]*workerPool

	metrics *Metrics
	log     Logger
	tracer  *tracer

	cancel  context.CancelFunc
	wg      *errgroup.Group
	started bool
	mu      sync.Mutex
}

// New constructs a Runtime. It applies Options in order over sane defaults,
// validates the result (including a memory sanity check against
// github.com/pbnjay/memory), and tunes GOMAXPROCS via
// go.uber.org/automaxprocs and GOMEMLIMIT via
// github.com/KimMachineGun/automemlimit before any worker goroutine starts —
// the same ambient-tuning sequence the teacher's own services perform at
// process entry.
func New(opts ...Option) (*Runtime, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := checkMemoryBudget(cfg); err != nil {
		return nil, err
	}

	if _, err := maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {})); err != nil {
		cfg.logger.Warn("automaxprocs: failed to set GOMAXPROCS", "err", err)
	}
	if _, err := memlimit.SetGoMemLimitWithOpts(memlimit.WithRatio(cfg.maxMemFraction)); err != nil {
		cfg.logger.Warn("automemlimit: failed to set GOMEMLIMIT", "err", err)
	}

	store := newTaskStore(cfg.window, cfg.reserveBackoff, cfg.reserveMaxWait)
	pool := newDepPool(cfg.depPoolCapacity)
	sched := newScheduler(store, pool, cfg.readyQueueSize, cfg.completionQueueSize, cfg.metrics, cfg.logger)
	sched.onComplete = cfg.completionCallback
	orch := newOrchestrator(store, pool, sched, cfg.metrics, cfg.logger)

	var trc *tracer
	if cfg.tracePath != "" {
		trc = newTracer()
	}

	pools := make(map[WorkerKind]*workerPool)
	for k := range cfg.workerCounts {
		if cfg.workerCounts[k] == 0 {
			continue
		}
		pools[WorkerKind(k)] = newWorkerPool(sched, store, cfg.kernel, cfg.metrics, cfg.logger, trc)
	}

	return &Runtime{
		cfg:     cfg,
		store:   store,
		pool:    pool,
		sched:   sched,
		orch:    orch,
		pools:   pools,
		metrics: cfg.metrics,
		log:     cfg.logger,
		tracer:  trc,
	}, nil
}

// checkMemoryBudget estimates the resident size of the task window and
// dependency pool and rejects configurations that would, by themselves,
// exceed the configured fraction of total system memory (github.com/
// pbnjay/memory), catching misconfigurations like an accidentally huge
// window before any allocation happens.
func checkMemoryBudget(cfg *config) error {
	const approxSlotBytes = 272     // descriptor + schedSlot, rounded up
	const approxEdgeBytes = 16      // edgeCell
	estimate := uint64(cfg.window)*approxSlotBytes + uint64(cfg.depPoolCapacity)*approxEdgeBytes
	budget := uint64(float64(memory.TotalMemory()) * cfg.maxMemFraction)
	if budget > 0 && estimate > budget {
		return &ConfigInvalid{Reason: fmt.Sprintf(
			"estimated window+pool footprint %d bytes exceeds %.0f%% of system memory (%d bytes)",
			estimate, cfg.maxMemFraction*100, budget)}
	}
	return nil
}

// Start launches the completion drainer and every configured worker
// goroutine, managed by an errgroup.Group (the idiomatic choice over a
// hand-rolled sync.WaitGroup, grounded on the teacher's root go.mod already
// carrying golang.org/x/sync).
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("taskgraph: runtime already started")
	}
	r.started = true

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	g, gCtx := errgroup.WithContext(runCtx)
	r.wg = g

	g.Go(func() error {
		r.sched.drainCompletions(gCtx, r.store)
		return nil
	})

	for kind, wp := range r.pools {
		for i := 0; i < r.cfg.workerCounts[kind]; i++ {
			wp := wp
			kind := kind
			g.Go(func() error {
				wp.run(gCtx, kind)
				return nil
			})
		}
	}

	return nil
}

// Submit infers this task's dependencies from tile overlap against prior
// submissions and publishes it into the shared store. It must be called
// from the same goroutine for the Runtime's whole lifetime (spec.md's
// single-writer orchestrator discipline; violating this panics).
func (r *Runtime) Submit(ctx context.Context, req SubmitRequest) (TaskID, error) {
	return r.orch.submit(ctx, req)
}

// ScopeBegin opens a new nested submission scope.
func (r *Runtime) ScopeBegin() uint32 { return r.orch.scopeBegin() }

// ScopeEnd closes the innermost open scope, releasing every task submitted
// within it for retirement once its own work completes.
func (r *Runtime) ScopeEnd() { r.orch.scopeEnd() }

// OrchestrationDone marks submission finished; subsequent Submit calls fail
// with ShutdownInProgress. It does not stop in-flight or queued work.
func (r *Runtime) OrchestrationDone() { r.orch.orchestrationDone() }

// Stop cancels all worker and drainer goroutines and waits for them to
// return.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	g := r.wg
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return g.Wait()
}

// Close stops the Runtime and, if trace output was configured, flushes the
// accumulated Chrome Trace Event Format JSON to disk.
func (r *Runtime) Close() error {
	stopErr := r.Stop()
	if r.tracer == nil {
		return stopErr
	}
	if err := r.tracer.writeFile(r.cfg.tracePath); err != nil {
		if stopErr != nil {
			return fmt.Errorf("%w (also: trace write failed: %v)", stopErr, err)
		}
		return err
	}
	return stopErr
}

// WriteTrace flushes the accumulated Chrome Trace Event Format JSON to path.
// It may be called at any point during or after a run, independently of
// Close (which also flushes to the path configured via WithTraceOutput, if
// any, as a convenience for the common case of one trace file per run).
// Returns an error if no trace output was configured via WithTraceOutput.
func (r *Runtime) WriteTrace(path string) error {
	if r.tracer == nil {
		return fmt.Errorf("taskgraph: trace output not enabled (see WithTraceOutput)")
	}
	return r.tracer.writeFile(path)
}

// Metrics returns a point-in-time snapshot of runtime counters, current
// per-kind ready/completion queue depths, and a histogram of live task
// states — the queue-depth and state-histogram gauges spec.md's metrics
// surface didn't name an interface for, added per SPEC_FULL.md §10.
func (r *Runtime) Metrics() MetricsSnapshot {
	snap := r.metrics.snapshot()
	r.sched.queueDepths(&snap)
	r.sched.stateHistogram(r.store, &snap)
	return snap
}

// State returns the current lifecycle state of id, mainly for tests and
// diagnostics.
func (r *Runtime) State(id TaskID) TaskState { return r.sched.stateOf(id) }

// LastTaskAlive returns the newest task id of the unbroken run of ids
// already retired to CONSUMED; the oldest live task id is one above it.
func (r *Runtime) LastTaskAlive() TaskID { return r.store.lastAlive() }
