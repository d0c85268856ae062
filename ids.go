package taskgraph

import "fmt"

// TaskID is a 32-bit monotonically increasing task identity, assigned at
// submission. A task's slot is TaskID & (W-1), where W is the task window.
type TaskID uint32

// WorkerKind identifies the class of worker a task must run on. Kinds are a
// tagged variant indexed into a fixed-size array of ready queues on the hot
// path, never a virtual dispatch.
type WorkerKind uint8

const (
	// KindCube is a worker class for matrix/tensor-style compute units.
	KindCube WorkerKind = iota
	// KindVector is a worker class for vector/SIMD-style compute units.
	KindVector

	// maxWorkerKinds bounds the fixed-size ready-queue array. Extend by
	// adding more WorkerKind constants above maxWorkerKinds's declaration
	// point, up to this limit.
	maxWorkerKinds = 8
)

func (k WorkerKind) String() string {
	switch k {
	case KindCube:
		return "cube"
	case KindVector:
		return "vector"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k WorkerKind) valid() bool { return k < maxWorkerKinds }

// Direction encodes how a task parameter uses its tile.
type Direction uint8

const (
	// DirIn marks a parameter as read-only input.
	DirIn Direction = iota
	// DirOut marks a parameter as write-only output.
	DirOut
	// DirInOut marks a parameter as both read and written.
	DirInOut
)

func (d Direction) String() string {
	switch d {
	case DirIn:
		return "in"
	case DirOut:
		return "out"
	case DirInOut:
		return "inout"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

func (d Direction) reads() bool  { return d == DirIn || d == DirInOut }
func (d Direction) writes() bool { return d == DirOut || d == DirInOut }

// BufferBase is an opaque identity for a memory buffer, as supplied by the
// host. It is never dereferenced by this package.
type BufferBase uintptr

// Param describes one task parameter: the tile it touches and how.
type Param struct {
	BufferBase BufferBase
	TileIndex  uint32
	// TileSize is not part of tile identity; it is passed through to the
	// kernel verbatim.
	TileSize  uint32
	Direction Direction
}

// tileKey is the granule of data-dependency detection: (buffer, tile index).
// TileSize is deliberately excluded from identity.
type tileKey struct {
	base  BufferBase
	index uint32
}

func (p Param) key() tileKey { return tileKey{base: p.BufferBase, index: p.TileIndex} }
