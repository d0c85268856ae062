// Command tgdemo runs a small synthetic task graph through a Runtime and
// prints the final metrics snapshot, as a minimal usage example of the
// package's External Interfaces.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	taskgraph "github.com/joeycumines/go-taskgraph"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	kernel := func(ctx context.Context, task taskgraph.Task) error {
		time.Sleep(time.Millisecond)
		return nil
	}

	rt, err := taskgraph.New(
		taskgraph.WithWindow(256),
		taskgraph.WithWorkers(taskgraph.KindCube, 4),
		taskgraph.WithWorkers(taskgraph.KindVector, 2),
		taskgraph.WithKernel(kernel),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer rt.Close()

	const buf taskgraph.BufferBase = 1
	rt.ScopeBegin()

	var last taskgraph.TaskID
	for i := uint32(0); i < 64; i++ {
		id, err := rt.Submit(ctx, taskgraph.SubmitRequest{
			WorkerKind: taskgraph.KindCube,
			FuncName:   "accumulate",
			Params: []taskgraph.Param{
				{BufferBase: buf, TileIndex: 0, Direction: taskgraph.DirInOut},
			},
		})
		if err != nil {
			return err
		}
		last = id
	}
	rt.ScopeEnd()
	rt.OrchestrationDone()

	for rt.State(last) != taskgraph.StateConsumed {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}

	fmt.Printf("%+v\n", rt.Metrics())
	return nil
}
