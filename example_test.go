package taskgraph_test

import (
	"context"
	"fmt"
	"time"

	taskgraph "github.com/joeycumines/go-taskgraph"
)

// This example has no Output comment, so `go test` compiles but does not
// execute it for output comparison — it exists purely as compiled,
// godoc-surfaced usage documentation, the same role microbatch's own
// example_test.go plays for that package.
func Example() {
	kernel := func(ctx context.Context, task taskgraph.Task) error {
		fmt.Println("running", task.FuncName)
		return nil
	}

	rt, err := taskgraph.New(
		taskgraph.WithWindow(64),
		taskgraph.WithWorkers(taskgraph.KindCube, 2),
		taskgraph.WithKernel(kernel),
	)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rt.Start(ctx); err != nil {
		panic(err)
	}
	defer rt.Close()

	const matrix taskgraph.BufferBase = 1
	rt.ScopeBegin()
	id, err := rt.Submit(ctx, taskgraph.SubmitRequest{
		WorkerKind: taskgraph.KindCube,
		FuncName:   "scale",
		Params: []taskgraph.Param{
			{BufferBase: matrix, TileIndex: 0, Direction: taskgraph.DirInOut},
		},
	})
	if err != nil {
		panic(err)
	}
	rt.ScopeEnd()
	rt.OrchestrationDone()

	for rt.State(id) != taskgraph.StateConsumed {
		time.Sleep(time.Millisecond)
	}
}
