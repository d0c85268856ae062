package taskgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlapIndexReadAfterWrite(t *testing.T) {
	idx := newOverlapIndex()
	writer := Param{BufferBase: 1, TileIndex: 0, Direction: DirOut}
	reader := Param{BufferBase: 1, TileIndex: 0, Direction: DirIn}

	deps := idx.recordAndDeps(TaskID(1), []Param{writer}, nil)
	assert.Empty(t, deps)

	deps = idx.recordAndDeps(TaskID(2), []Param{reader}, nil)
	assert.Equal(t, []TaskID{1}, deps)
}

func TestOverlapIndexWriteAfterRead(t *testing.T) {
	idx := newOverlapIndex()
	reader := Param{BufferBase: 1, TileIndex: 0, Direction: DirIn}
	writer := Param{BufferBase: 1, TileIndex: 0, Direction: DirOut}

	idx.recordAndDeps(TaskID(1), []Param{reader}, nil)
	idx.recordAndDeps(TaskID(2), []Param{reader}, nil)

	deps := idx.recordAndDeps(TaskID(3), []Param{writer}, nil)
	assert.ElementsMatch(t, []TaskID{1, 2}, deps)
}

func TestOverlapIndexWriteAfterWrite(t *testing.T) {
	idx := newOverlapIndex()
	writer := Param{BufferBase: 1, TileIndex: 0, Direction: DirOut}

	idx.recordAndDeps(TaskID(1), []Param{writer}, nil)
	deps := idx.recordAndDeps(TaskID(2), []Param{writer}, nil)
	assert.Equal(t, []TaskID{1}, deps)

	// Task 2 is now the sole writer of record; readers that follow it
	// should not depend on task 1.
	reader := Param{BufferBase: 1, TileIndex: 0, Direction: DirIn}
	deps = idx.recordAndDeps(TaskID(3), []Param{reader}, nil)
	assert.Equal(t, []TaskID{2}, deps)
}

func TestOverlapIndexReadersDoNotDependOnEachOther(t *testing.T) {
	idx := newOverlapIndex()
	reader := Param{BufferBase: 1, TileIndex: 0, Direction: DirIn}

	deps := idx.recordAndDeps(TaskID(1), []Param{reader}, nil)
	assert.Empty(t, deps)
	deps = idx.recordAndDeps(TaskID(2), []Param{reader}, nil)
	assert.Empty(t, deps)
}

func TestOverlapIndexDistinctTilesDoNotAlias(t *testing.T) {
	idx := newOverlapIndex()
	writer := Param{BufferBase: 1, TileIndex: 0, Direction: DirOut}
	otherTile := Param{BufferBase: 1, TileIndex: 1, Direction: DirIn}

	idx.recordAndDeps(TaskID(1), []Param{writer}, nil)
	deps := idx.recordAndDeps(TaskID(2), []Param{otherTile}, nil)
	assert.Empty(t, deps)
}

func TestOverlapIndexDedupsWithinSingleSubmission(t *testing.T) {
	idx := newOverlapIndex()
	writer := Param{BufferBase: 1, TileIndex: 0, Direction: DirOut}
	idx.recordAndDeps(TaskID(1), []Param{writer}, nil)

	readTwice := []Param{
		{BufferBase: 1, TileIndex: 0, Direction: DirIn},
		{BufferBase: 1, TileIndex: 0, Direction: DirIn},
	}
	deps := idx.recordAndDeps(TaskID(2), readTwice, nil)
	assert.Equal(t, []TaskID{1}, deps, "repeated params over the same tile must not duplicate the dependency")
}

// Pins the chosen reading for a single submission whose own params touch
// the same tile under mixed directions (see DESIGN.md's Open Question
// decision 5): a task's own params apply simultaneously against the
// pre-submission index state, not sequentially against each other, so an
// OUT param that follows an IN param on the same tile in one submission must
// not see that submission's own IN as a prior reader.
func TestOverlapSameTaskMixedDirectionOnSameTile(t *testing.T) {
	idx := newOverlapIndex()
	priorWriter := Param{BufferBase: 1, TileIndex: 0, Direction: DirOut}
	idx.recordAndDeps(TaskID(1), []Param{priorWriter}, nil)

	mixed := []Param{
		{BufferBase: 1, TileIndex: 0, Direction: DirIn},
		{BufferBase: 1, TileIndex: 0, Direction: DirOut},
	}
	deps := idx.recordAndDeps(TaskID(2), mixed, nil)
	assert.Equal(t, []TaskID{1}, deps, "task 2's own IN param must not make its own OUT param depend on task 2")

	// Task 2 is now the tile's sole writer of record.
	reader := Param{BufferBase: 1, TileIndex: 0, Direction: DirIn}
	deps = idx.recordAndDeps(TaskID(3), []Param{reader}, nil)
	assert.Equal(t, []TaskID{2}, deps)
}
