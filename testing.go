package nvme

import (
	"sync"
	"unsafe"

	"github.com/plos-clan/go-nvme/internal/mem"
)

// MockAllocator provides a mock implementation of mem.Allocator for
// testing, backed by plain heap memory pretending its virtual address
// equals its physical address. It tracks method calls for verification,
// mirroring the teacher's call-count-tracking mock idiom.
type MockAllocator struct {
	mu        sync.RWMutex
	live      map[uintptr][]byte
	allocated int64
	closed    bool

	allocateCalls   int
	deallocateCalls int
	translateCalls  int
}

// NewMockAllocator creates a new mock allocator for unit tests.
func NewMockAllocator() *MockAllocator {
	return &MockAllocator{live: make(map[uintptr][]byte)}
}

// Allocate implements mem.Allocator. It over-allocates by one page and
// rounds the returned address up to a page boundary, since real DMA
// memory is always page-aligned.
func (m *MockAllocator) Allocate(size int) (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocateCalls++
	if m.closed {
		return 0, NewError("Allocate", ErrCodeAllocatorFailure, "allocator closed")
	}

	buf := make([]byte, size+mem.PageSize)
	raw := uintptr(unsafe.Pointer(&buf[0]))
	addr := (raw + mem.PageSize - 1) / mem.PageSize * mem.PageSize

	m.live[addr] = buf
	m.allocated += int64(size)
	return addr, nil
}

// Translate implements mem.Allocator. The mock never distinguishes
// virtual from physical addresses.
func (m *MockAllocator) Translate(addr uintptr) uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.translateCalls++
	return addr
}

// Deallocate implements mem.Allocator.
func (m *MockAllocator) Deallocate(addr uintptr, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deallocateCalls++
	delete(m.live, addr)
}

// Close marks the allocator closed; subsequent Allocate calls fail.
func (m *MockAllocator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (m *MockAllocator) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// LiveAllocations returns the number of allocations not yet deallocated.
func (m *MockAllocator) LiveAllocations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// CallCounts returns the number of times each method has been called.
func (m *MockAllocator) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int{
		"allocate":   m.allocateCalls,
		"deallocate": m.deallocateCalls,
		"translate":  m.translateCalls,
	}
}

// Reset resets all call counters and live allocation tracking.
func (m *MockAllocator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocateCalls = 0
	m.deallocateCalls = 0
	m.translateCalls = 0
	m.allocated = 0
	m.live = make(map[uintptr][]byte)
}

// Compile-time interface check.
var _ mem.Allocator = (*MockAllocator)(nil)
