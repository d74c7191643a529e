//go:build !linux

package sim

import "fmt"

// MmapAllocator is unavailable outside Linux; NewMmapAllocator returns
// an allocator whose Allocate always fails, the same fallback shape
// the teacher's io_uring stub builds use on unsupported platforms.
type MmapAllocator struct{}

// NewMmapAllocator returns a stub MmapAllocator.
func NewMmapAllocator() *MmapAllocator { return &MmapAllocator{} }

func (*MmapAllocator) Translate(addr uintptr) uintptr { return addr }

func (*MmapAllocator) Allocate(int) (uintptr, error) {
	return 0, fmt.Errorf("sim: MmapAllocator requires linux")
}

func (*MmapAllocator) Deallocate(uintptr, int) {}
