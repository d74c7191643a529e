// Package mem provides DMA-capable buffer allocation and the PRP
// descriptor chaining needed to hand a controller physically contiguous
// (or PRP-chained) memory for a command's data transfer.
package mem

import "unsafe"

// PageSize is the NVMe minimum memory page size this driver targets.
const PageSize = 4096

func sizeOf[T any](v T) int {
	return int(unsafe.Sizeof(v))
}

// asPointer converts a virtual address obtained from an Allocator back
// into a Go pointer for direct access to the underlying memory.
func asPointer(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr) //nolint:govet // addr originates from Allocator.Allocate, not a Go object
}

// Allocator is implemented by whatever owns physical memory on behalf
// of this driver - typically a thin wrapper around an IOMMU mapping or,
// in tests, plain heap memory pretending its virtual address equals its
// physical address.
type Allocator interface {
	// Translate returns the physical (device-visible) address for a
	// virtual address previously returned by Allocate.
	Translate(addr uintptr) uintptr
	// Allocate reserves size bytes of page-aligned, DMA-capable memory
	// and returns its virtual address.
	Allocate(size int) (uintptr, error)
	// Deallocate releases memory previously returned by Allocate.
	Deallocate(addr uintptr, size int)
}

// Dma wraps a DMA-capable allocation together with the physical address
// the controller must be given. T describes the logical shape of the
// buffer (a byte slice, a fixed-size command array, ...); Dma itself
// only tracks addresses, not T's storage, since Go's allocator does not
// give virtual/physical separation the way a kernel-mode pool would -
// collaborators instantiate Dma over memory obtained from an Allocator.
type Dma[T any] struct {
	Addr     uintptr
	PhysAddr uintptr
	size     int
}

// Allocate reserves a Dma[T]-sized region from the given allocator,
// rounding the request up to a whole number of pages the way every DMA
// allocation here must be page-sized.
func Allocate[T any](a Allocator, count int) (Dma[T], error) {
	var zero T
	elemSize := sizeOf(zero)
	size := roundUpToPage(elemSize * count)

	addr, err := a.Allocate(size)
	if err != nil {
		return Dma[T]{}, err
	}

	return Dma[T]{
		Addr:     addr,
		PhysAddr: a.Translate(addr),
		size:     size,
	}, nil
}

// Deallocate releases the region backing d.
func (d Dma[T]) Deallocate(a Allocator) {
	a.Deallocate(d.Addr, d.size)
}

func roundUpToPage(n int) int {
	if n <= 0 {
		return PageSize
	}
	return (n + PageSize - 1) / PageSize * PageSize
}
