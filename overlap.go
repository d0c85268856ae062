package taskgraph

import "golang.org/x/exp/slices"

// tileState is the overlap index's per-tile bookkeeping: the most recent
// writer (if any) and the set of readers that have touched the tile since
// that writer, per spec.md §4.3's read/write hazard rules:
//
//   - a new writer depends on all readers since the last writer (WAR), or
//     on the last writer itself when no reader has touched the tile since
//     it (WAW); those readers already depend on that writer
//   - a new reader depends only on the last writer (RAW); readers do not
//     depend on each other
//
// The overlap index is owned exclusively by the single orchestrator
// goroutine; it holds no synchronization of its own.
type tileState struct {
	lastWriter TaskID
	hasWriter  bool
	readers    []TaskID
}

// overlapIndex maps tile identity to its current hazard state. It is a
// plain Go map, not a concurrent structure: spec.md's single-writer
// discipline (C3) makes this safe, and a map is the idiomatic choice over a
// hand-rolled hash table for an orchestrator-thread-only side table.
type overlapIndex struct {
	tiles map[tileKey]*tileState
}

func newOverlapIndex() *overlapIndex {
	return &overlapIndex{tiles: make(map[tileKey]*tileState)}
}

// recordAndDeps applies one task's params against the index, returning the
// set of producer TaskIDs this task must depend on, and updating the index
// for subsequent submissions. dst is reused across calls to avoid
// allocating a fresh slice per task; callers must copy out what they need
// before the next call.
func (idx *overlapIndex) recordAndDeps(id TaskID, params []Param, dst []TaskID) []TaskID {
	dst = dst[:0]
	for _, p := range params {
		k := p.key()
		st := idx.tiles[k]
		if st == nil {
			st = &tileState{}
			idx.tiles[k] = st
		}

		if p.Direction.reads() {
			if st.hasWriter {
				dst = appendUnique(dst, st.lastWriter)
			}
		}
		if p.Direction.writes() {
			if st.hasWriter && len(st.readers) == 0 {
				dst = appendUnique(dst, st.lastWriter)
			}
			for _, r := range st.readers {
				dst = appendUnique(dst, r)
			}
		}
	}

	// Second pass: commit this task's own effect on every touched tile,
	// after all dependency computation has read the prior state. Doing this
	// in one combined pass with the lookup above would let a task's own
	// earlier param shadow a later param's hazard read within the same
	// submission.
	for _, p := range params {
		k := p.key()
		st := idx.tiles[k]
		if p.Direction.writes() {
			st.lastWriter = id
			st.hasWriter = true
			st.readers = st.readers[:0]
		} else {
			st.readers = append(st.readers, id)
		}
	}

	return dst
}

// appendUnique is an exact-dedup append; see Open Question decision 1 in
// DESIGN.md for why an exact scan beats an approximate LRU here. Grounded
// on catrate/rates.go's own use of golang.org/x/exp/slices rather than a
// hand-rolled membership loop.
func appendUnique(s []TaskID, v TaskID) []TaskID {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}
