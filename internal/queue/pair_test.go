package queue

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/plos-clan/go-nvme/internal/ctrl"
	"github.com/plos-clan/go-nvme/internal/doorbell"
	"github.com/plos-clan/go-nvme/internal/mem"
	"github.com/plos-clan/go-nvme/internal/proto"
	"github.com/plos-clan/go-nvme/internal/ring"
)

// regSize covers the doorbell region for a handful of queue pairs, the
// same backing a real Controller would give doorbell.New via MMIO.
const regSize = proto.DoorbellBase + 8*2*4

type heapAllocator struct{}

func (heapAllocator) Translate(addr uintptr) uintptr { return addr }

func (heapAllocator) Allocate(size int) (uintptr, error) {
	buf := make([]byte, size+mem.PageSize)
	raw := uintptr(unsafe.Pointer(&buf[0]))
	addr := (raw + mem.PageSize - 1) / mem.PageSize * mem.PageSize
	return addr, nil
}

func (heapAllocator) Deallocate(uintptr, int) {}

func newTestPair(t *testing.T, depth int, ns ctrl.Namespace, maxXfer int) *IoQueuePair {
	t.Helper()
	a := heapAllocator{}
	sq, err := ring.NewSubQueue(a, uint16(depth))
	if err != nil {
		t.Fatal(err)
	}
	cq, err := ring.NewCompQueue(a, uint16(depth))
	if err != nil {
		t.Fatal(err)
	}
	// Ring the doorbell through a real heap-backed register file rather
	// than a near-null address; otherwise submitIO's doorbell write
	// segfaults instead of failing the test.
	reg := make([]byte, regSize)
	regBase := uintptr(unsafe.Pointer(&reg[0]))
	t.Cleanup(func() { runtime.KeepAlive(reg) })
	cfg := Config{
		QueueID:         1,
		Depth:           depth,
		Namespace:       ns,
		Allocator:       a,
		Doorbell:        doorbell.New(regBase, 0),
		MaxTransferSize: maxXfer,
	}
	return New(cfg, sq, cq)
}

func TestHandleReadWriteIoSizeExceedsMdts(t *testing.T) {
	ns := ctrl.Namespace{ID: 1, BlockCount: 1024, BlockSize: 512}
	p := newTestPair(t, 4, ns, 4096)

	err := p.handleReadWrite(8192, 0, 0x1000, false)
	if err != ErrIoSizeExceedsMdts {
		t.Fatalf("err = %v, want ErrIoSizeExceedsMdts", err)
	}
}

func TestHandleReadWriteInvalidBufferSize(t *testing.T) {
	ns := ctrl.Namespace{ID: 1, BlockCount: 1024, BlockSize: 512}
	p := newTestPair(t, 4, ns, 0)

	err := p.handleReadWrite(500, 0, 0x1000, false)
	if err != ErrInvalidBufferSize {
		t.Fatalf("err = %v, want ErrInvalidBufferSize", err)
	}
}

func TestSubmitIoBuildsPrpAndAdvancesTail(t *testing.T) {
	ns := ctrl.Namespace{ID: 7, BlockCount: 1024, BlockSize: 512}
	p := newTestPair(t, 4, ns, 0)

	buf := make([]byte, mem.PageSize)
	address := uintptr(unsafe.Pointer(&buf[0]))
	address = (address + uintptr(mem.PageSize-1)) / mem.PageSize * mem.PageSize

	result, err := p.submitIO(512, 10, address, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != mem.PrpSingle {
		t.Fatalf("Kind = %v, want PrpSingle", result.Kind)
	}
	if p.subQueue.Tail() != 1 {
		t.Fatalf("Tail() = %d, want 1", p.subQueue.Tail())
	}
}

func TestIoQueuePairIDAndNamespace(t *testing.T) {
	ns := ctrl.Namespace{ID: 3, BlockCount: 2048, BlockSize: 4096}
	p := newTestPair(t, 4, ns, 0)

	if p.ID() != 1 {
		t.Fatalf("ID() = %d, want 1", p.ID())
	}
	if p.Namespace() != ns {
		t.Fatalf("Namespace() = %+v, want %+v", p.Namespace(), ns)
	}
}
