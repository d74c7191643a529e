//go:build linux

package sim

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MmapAllocator is a mem.Allocator backed by anonymous mmap regions
// rather than Go heap memory. Unlike HeapAllocator it gives each
// allocation its own page-aligned mapping, closer to how a real
// IOMMU-backed allocator would hand out DMA buffers, and is useful for
// exercising -sim runs that care about page-boundary behavior.
type MmapAllocator struct {
	mu   sync.Mutex
	live map[uintptr][]byte
}

// NewMmapAllocator creates an MmapAllocator.
func NewMmapAllocator() *MmapAllocator {
	return &MmapAllocator{live: make(map[uintptr][]byte)}
}

func (a *MmapAllocator) Translate(addr uintptr) uintptr { return addr }

func (a *MmapAllocator) Allocate(size int) (uintptr, error) {
	buf, err := unix.Mmap(-1, 0, pageRound(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, err
	}

	addr := uintptr(unsafe.Pointer(&buf[0]))

	a.mu.Lock()
	a.live[addr] = buf
	a.mu.Unlock()

	return addr, nil
}

func (a *MmapAllocator) Deallocate(addr uintptr, _ int) {
	a.mu.Lock()
	buf, ok := a.live[addr]
	delete(a.live, addr)
	a.mu.Unlock()

	if ok {
		unix.Munmap(buf) //nolint:errcheck // best-effort on teardown
	}
}

func pageRound(size int) int {
	const pageSize = 4096
	if size <= 0 {
		return pageSize
	}
	return (size + pageSize - 1) / pageSize * pageSize
}
