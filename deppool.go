package taskgraph

import (
	"math"
	"sync/atomic"
)

// edgeOffset is a 1-based index into a depPool's arena; 0 is the null
// sentinel (spec.md §3/§4.2). sealedEdge is a second, out-of-band sentinel
// used only for fanout-list heads, marking a list that has been walked and
// will never be walked again (see Design Decision 4 in SPEC_FULL.md).
type edgeOffset uint32

const (
	nullEdge   edgeOffset = 0
	sealedEdge edgeOffset = math.MaxUint32
)

// edgeCell is one C2 dependency-list node: spec.md's {task_id, next_offset}.
// The same cell layout serves both fanin lists (task holds a producer id)
// and fanout lists (task holds a consumer id).
type edgeCell struct {
	task TaskID
	next edgeOffset
}

// depPool is the bump-allocated arena of edge cells described in spec.md
// §4.2. No cell is ever reclaimed, individually or in bulk, so capacity
// bounds the total number of cells allocated over the pool's lifetime: one
// fanout cell and one fanin cell per linked edge, plus any cell abandoned
// by a lost attach race. Index 0 is reserved as the null sentinel and never
// allocated to a real edge.
type depPool struct {
	cells []edgeCell
	next  atomic.Uint32
}

func newDepPool(capacity uint32) *depPool {
	if capacity == 0 {
		panic("taskgraph: deppool: capacity must be > 0")
	}
	return &depPool{cells: make([]edgeCell, capacity+1)}
}

// alloc reserves a new edge cell for task and returns its offset. Appends
// are always head-prepends by the caller (orchestrator.go), per spec.md.
func (p *depPool) alloc(task TaskID) (edgeOffset, error) {
	idx := p.next.Add(1)
	if idx >= uint32(len(p.cells)) {
		return nullEdge, &DepPoolExhausted{Capacity: uint32(len(p.cells) - 1)}
	}
	p.cells[idx] = edgeCell{task: task, next: nullEdge}
	return edgeOffset(idx), nil
}

func (p *depPool) at(off edgeOffset) *edgeCell {
	return &p.cells[off]
}

func (p *depPool) capacity() uint32 { return uint32(len(p.cells) - 1) }

func (p *depPool) liveCount() uint32 {
	n := p.next.Load()
	if n >= uint32(len(p.cells)) {
		return p.capacity()
	}
	return n
}
