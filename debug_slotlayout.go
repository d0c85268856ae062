//go:build ignore

// Run with: go run debug_slotlayout.go
//
// Prints the size and field offsets of the padded state cell and scheduler
// slot, the same way eventloop/debug_faststate.go inspects FastState.
package main

import (
	"fmt"
	"unsafe"
)

type taskStateCell struct {
	_ [64]byte
	v uint32
	_ [60]byte
}

type schedSlot struct {
	state          taskStateCell
	faninRefcount  int32
	fanoutRefcount int32
}

func main() {
	var c taskStateCell
	var s schedSlot

	fmt.Printf("taskStateCell: size=%d align=%d offset(v)=%d\n",
		unsafe.Sizeof(c), unsafe.Alignof(c), unsafe.Offsetof(c.v))
	fmt.Printf("schedSlot: size=%d align=%d offset(state)=%d offset(faninRefcount)=%d offset(fanoutRefcount)=%d\n",
		unsafe.Sizeof(s), unsafe.Alignof(s), unsafe.Offsetof(s.state), unsafe.Offsetof(s.faninRefcount), unsafe.Offsetof(s.fanoutRefcount))

	const cacheLine = 64
	if unsafe.Sizeof(c) < cacheLine {
		fmt.Println("WARNING: taskStateCell is smaller than a cache line; adjacent slots may false-share")
	}
}
