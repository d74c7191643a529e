package mem

import (
	"testing"
	"unsafe"
)

// heapAllocator is a minimal Allocator for tests: virtual address equals
// physical address, memory comes straight from the Go heap.
type heapAllocator struct {
	live map[uintptr][]byte
}

func newHeapAllocator() *heapAllocator {
	return &heapAllocator{live: make(map[uintptr][]byte)}
}

func (h *heapAllocator) Translate(addr uintptr) uintptr { return addr }

func (h *heapAllocator) Allocate(size int) (uintptr, error) {
	// Over-allocate and round up so tests can rely on page alignment,
	// the way a real DMA allocator would guarantee it.
	buf := make([]byte, size+PageSize)
	raw := uintptr(unsafe.Pointer(&buf[0]))
	addr := (raw + PageSize - 1) / PageSize * PageSize
	h.live[addr] = buf
	return addr, nil
}

func (h *heapAllocator) Deallocate(addr uintptr, _ int) {
	delete(h.live, addr)
}

func TestPrpManagerSinglePage(t *testing.T) {
	a := newHeapAllocator()
	addr, err := a.Allocate(PageSize)
	if err != nil {
		t.Fatal(err)
	}

	m := NewPrpManager(4)
	res, err := m.Create(a, addr, 512)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Kind != PrpSingle {
		t.Fatalf("Kind = %v, want PrpSingle", res.Kind)
	}
	prp1, prp2 := res.Get()
	if prp1 != addr || prp2 != 0 {
		t.Fatalf("Get() = (%x, %x), want (%x, 0)", prp1, prp2, addr)
	}
}

func TestPrpManagerTwoPages(t *testing.T) {
	a := newHeapAllocator()
	addr, err := a.Allocate(2 * PageSize)
	if err != nil {
		t.Fatal(err)
	}

	m := NewPrpManager(4)
	res, err := m.Create(a, addr, 2*PageSize)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Kind != PrpDouble {
		t.Fatalf("Kind = %v, want PrpDouble", res.Kind)
	}
	prp1, prp2 := res.Get()
	if prp1 != addr {
		t.Fatalf("prp1 = %x, want %x", prp1, addr)
	}
	if prp2 != addr+PageSize {
		t.Fatalf("prp2 = %x, want %x", prp2, addr+PageSize)
	}
}

func TestPrpManagerListSpan(t *testing.T) {
	a := newHeapAllocator()
	// 600 pages needs one list page (511 entries) plus a second list
	// page for the remainder, per entriesPerList = 511.
	const pages = 600
	addr, err := a.Allocate(pages * PageSize)
	if err != nil {
		t.Fatal(err)
	}

	m := NewPrpManager(4)
	res, err := m.Create(a, addr, pages*PageSize)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Kind != PrpList {
		t.Fatalf("Kind = %v, want PrpList", res.Kind)
	}
	if len(res.Lists) != 2 {
		t.Fatalf("len(Lists) = %d, want 2", len(res.Lists))
	}

	m.Release(a, res)
}

func TestPrpManagerNotAlignedToDword(t *testing.T) {
	a := newHeapAllocator()
	addr, err := a.Allocate(PageSize)
	if err != nil {
		t.Fatal(err)
	}

	m := NewPrpManager(4)
	_, err = m.Create(a, addr+1, 512)
	if err != ErrNotAlignedToDword {
		t.Fatalf("err = %v, want ErrNotAlignedToDword", err)
	}
}

func TestPrpManagerNotAlignedToPage(t *testing.T) {
	a := newHeapAllocator()
	addr, err := a.Allocate(2 * PageSize)
	if err != nil {
		t.Fatal(err)
	}

	m := NewPrpManager(4)
	_, err = m.Create(a, addr+4, 2*PageSize)
	if err != ErrNotAlignedToPage {
		t.Fatalf("err = %v, want ErrNotAlignedToPage", err)
	}
}

func TestListPagePoolReuse(t *testing.T) {
	a := newHeapAllocator()
	addr, err := a.Allocate(600 * PageSize)
	if err != nil {
		t.Fatal(err)
	}

	m := NewPrpManager(4)
	res, err := m.Create(a, addr, 600*PageSize)
	if err != nil {
		t.Fatal(err)
	}
	m.Release(a, res)

	if m.pool.isFull() {
		t.Fatalf("pool should hold only the 2 released pages, capacity 4")
	}
	if len(m.pool.slots) != 2 {
		t.Fatalf("pool has %d slots, want 2", len(m.pool.slots))
	}
}
