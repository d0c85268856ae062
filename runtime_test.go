package taskgraph

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForState(t *testing.T, rt *Runtime, id TaskID, want TaskState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if rt.State(id) == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %d did not reach state %s within %s (at %s)", id, want, timeout, rt.State(id))
}

// End-to-end: a linear chain of tasks all touching the same tile must run
// to completion and retire in order.
func TestRuntimeEndToEndLinearChain(t *testing.T) {
	var executed atomic.Int64
	kernel := func(ctx context.Context, task Task) error {
		executed.Add(1)
		return nil
	}

	rt, err := New(
		WithWindow(64),
		WithWorkers(KindCube, 4),
		WithKernel(kernel),
		WithReserveTiming(time.Microsecond, time.Second),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, rt.Start(ctx))
	defer rt.Close()

	const buf BufferBase = 1
	var last TaskID
	for i := 0; i < 40; i++ {
		id, err := rt.Submit(ctx, SubmitRequest{
			WorkerKind: KindCube,
			FuncName:   "step",
			Params: []Param{
				{BufferBase: buf, TileIndex: 0, Direction: DirInOut},
			},
		})
		require.NoError(t, err)
		last = id
	}
	rt.OrchestrationDone()

	waitForState(t, rt, last, StateConsumed, 5*time.Second)
	assert.Equal(t, int64(40), executed.Load())
}

// S4-style: submissions keep flowing even when the window would otherwise
// saturate, because retirement is draining concurrently.
func TestRuntimeWindowSaturationUnderSustainedSubmission(t *testing.T) {
	kernel := func(ctx context.Context, task Task) error {
		time.Sleep(100 * time.Microsecond)
		return nil
	}

	rt, err := New(
		WithWindow(16),
		WithWorkers(KindCube, 8),
		WithKernel(kernel),
		WithReserveTiming(100*time.Microsecond, 2*time.Second),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, rt.Start(ctx))
	defer rt.Close()

	var last TaskID
	for i := 0; i < 500; i++ {
		// Distinct tiles per task: no dependency chain, pure window-pressure
		// test.
		id, err := rt.Submit(ctx, SubmitRequest{
			WorkerKind: KindCube,
			FuncName:   "independent",
			Params: []Param{
				{BufferBase: BufferBase(i), TileIndex: 0, Direction: DirOut},
			},
		})
		require.NoError(t, err)
		last = id
	}
	rt.OrchestrationDone()

	waitForState(t, rt, last, StateConsumed, 10*time.Second)
}

// GEMM-like at reduced scale: a small tiled matrix-multiply dependency
// pattern (each output tile accumulates over a reduction dimension),
// exercised end to end.
func TestRuntimeGEMMLikeReducedScale(t *testing.T) {
	const dim = 4 // dim x dim tiles, reduction over dim steps

	var executed atomic.Int64
	kernel := func(ctx context.Context, task Task) error {
		executed.Add(1)
		return nil
	}

	rt, err := New(
		WithWindow(128),
		WithWorkers(KindCube, 4),
		WithKernel(kernel),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, rt.Start(ctx))
	defer rt.Close()

	const outBuf BufferBase = 1000
	var last TaskID
	for row := 0; row < dim; row++ {
		for col := 0; col < dim; col++ {
			tile := uint32(row*dim + col)
			for k := 0; k < dim; k++ {
				id, err := rt.Submit(ctx, SubmitRequest{
					WorkerKind: KindCube,
					FuncName:   "mac",
					Params: []Param{
						{BufferBase: outBuf, TileIndex: tile, Direction: DirInOut},
					},
				})
				require.NoError(t, err)
				last = id
			}
		}
	}
	rt.OrchestrationDone()

	waitForState(t, rt, last, StateConsumed, 8*time.Second)
	assert.Equal(t, int64(dim*dim*dim), executed.Load())
}

func TestRuntimeKernelErrorPropagatesAsPoisonedCompletion(t *testing.T) {
	boom := assertableError{"kernel exploded"}
	kernel := func(ctx context.Context, task Task) error {
		if task.FuncName == "fail" {
			return boom
		}
		return nil
	}

	var callbackErrs []error
	rt, err := New(
		WithWindow(16),
		WithWorkers(KindCube, 2),
		WithKernel(kernel),
		WithCompletionCallback(func(id TaskID, err error) {
			if err != nil {
				callbackErrs = append(callbackErrs, err)
			}
		}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Start(ctx))
	defer rt.Close()

	id, err := rt.Submit(ctx, SubmitRequest{WorkerKind: KindCube, FuncName: "fail"})
	require.NoError(t, err)
	rt.OrchestrationDone()

	waitForState(t, rt, id, StateConsumed, 2*time.Second)
	require.Len(t, callbackErrs, 1)

	var kerr *KernelError
	require.ErrorAs(t, callbackErrs[0], &kerr)
	assert.Equal(t, id, kerr.TaskID)
}

func TestRuntimeMetricsReportsQueueDepthsAndStateHistogram(t *testing.T) {
	block := make(chan struct{})
	kernel := func(ctx context.Context, task Task) error {
		if task.FuncName == "blocker" {
			<-block
		}
		return nil
	}

	rt, err := New(
		WithWindow(16),
		WithWorkers(KindCube, 1),
		WithKernel(kernel),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Start(ctx))
	defer func() {
		close(block)
		rt.Close()
	}()

	_, err = rt.Submit(ctx, SubmitRequest{WorkerKind: KindCube, FuncName: "blocker"})
	require.NoError(t, err)
	// The single worker is now stuck running "blocker"; this one queues up
	// behind it.
	id2, err := rt.Submit(ctx, SubmitRequest{WorkerKind: KindCube, FuncName: "queued"})
	require.NoError(t, err)
	rt.OrchestrationDone()

	require.Eventually(t, func() bool {
		return rt.State(id2) == StateReady
	}, 2*time.Second, time.Millisecond)

	snap := rt.Metrics()
	assert.Equal(t, 1, snap.ReadyQueueDepth[KindCube])
	assert.Equal(t, 1, snap.StateHistogram[StateRunning])
	assert.Equal(t, 1, snap.StateHistogram[StateReady])
}

func TestRuntimeWriteTraceEmitsChromeTraceEventJSON(t *testing.T) {
	kernel := func(ctx context.Context, task Task) error { return nil }

	tracePath := filepath.Join(t.TempDir(), "trace.json")
	rt, err := New(
		WithWindow(16),
		WithWorkers(KindCube, 2),
		WithKernel(kernel),
		WithTraceOutput(tracePath),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Start(ctx))
	defer rt.Close()

	id, err := rt.Submit(ctx, SubmitRequest{WorkerKind: KindCube, FuncName: "traced"})
	require.NoError(t, err)
	rt.OrchestrationDone()
	waitForState(t, rt, id, StateConsumed, 2*time.Second)

	require.NoError(t, rt.WriteTrace(tracePath))

	data, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	var events []traceEvent
	require.NoError(t, json.Unmarshal(data, &events))
	require.Len(t, events, 1)
	assert.Equal(t, "traced", events[0].Name)
	assert.Equal(t, "X", events[0].Ph)
}

func TestRuntimeWriteTraceWithoutTraceOutputConfiguredErrors(t *testing.T) {
	rt, err := New(
		WithWindow(4),
		WithWorkers(KindCube, 1),
		WithKernel(func(ctx context.Context, task Task) error { return nil }),
	)
	require.NoError(t, err)
	defer rt.Close()

	err = rt.WriteTrace(filepath.Join(t.TempDir(), "trace.json"))
	assert.Error(t, err)
}

type assertableError struct{ msg string }

func (e assertableError) Error() string { return e.msg }
