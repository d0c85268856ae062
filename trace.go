package taskgraph

import (
	"encoding/json"
	"sync"

	renameio "github.com/google/renameio/v2"
)

// traceEvent is one Chrome Trace Event Format "complete" event (spec.md §6's
// emitted trace output). Ts/Dur are microseconds, matching the format's
// convention.
type traceEvent struct {
	Name string         `json:"name"`
	Cat  string         `json:"cat"`
	Ph   string         `json:"ph"`
	Ts   int64          `json:"ts"`
	Dur  int64          `json:"dur"`
	Pid  int            `json:"pid"`
	Tid  int            `json:"tid"`
	Args map[string]any `json:"args,omitempty"`
}

// tracer accumulates completion events from every worker goroutine. It is
// not on the critical path of any invariant (tracing can be disabled
// entirely by leaving Runtime's tracePath empty, in which case Runtime skips
// constructing one), so a plain mutex-guarded slice is the appropriate
// tool — there is no reason to reach for the lock-free ring used by the
// ready/completion queues here.
type tracer struct {
	mu     sync.Mutex
	events []traceEvent
}

func newTracer() *tracer { return &tracer{} }

func (t *tracer) record(id TaskID, funcName string, kind WorkerKind, startNanos, endNanos int64, err error) {
	ev := traceEvent{
		Name: funcName,
		Cat:  kind.String(),
		Ph:   "X",
		Ts:   startNanos / 1000,
		Dur:  (endNanos - startNanos) / 1000,
		Pid:  1,
		Tid:  int(kind),
		Args: map[string]any{"task_id": id},
	}
	if err != nil {
		ev.Args["error"] = err.Error()
	}
	t.mu.Lock()
	t.events = append(t.events, ev)
	t.mu.Unlock()
}

// writeFile atomically writes the accumulated trace as a JSON array to path,
// using renameio so a crash or concurrent reader never observes a partial
// file.
func (t *tracer) writeFile(path string) error {
	t.mu.Lock()
	events := make([]traceEvent, len(t.events))
	copy(events, t.events)
	t.mu.Unlock()

	data, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}
