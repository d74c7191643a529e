package nvme

import (
	"testing"
	"unsafe"

	"github.com/plos-clan/go-nvme/sim"
)

func addrToSlice(addr uintptr, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
}

func newTestControllerWithDevice(t *testing.T, namespaces []sim.NamespaceSpec) (*Controller, *sim.Device) {
	t.Helper()

	dev := sim.NewDevice(32, namespaces)
	dev.Start()
	t.Cleanup(dev.Stop)

	c, err := Open(dev.Base(), sim.HeapAllocator{}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c, dev
}

func TestOpenIdentifiesController(t *testing.T) {
	c, _ := newTestControllerWithDevice(t, nil)

	data := c.Data()
	if data.SerialNumber == "" {
		t.Error("expected a non-empty serial number")
	}
	if c.String() == "" {
		t.Error("expected a non-empty String() representation")
	}
}

func TestOpenIoQueuePairReadWriteRoundTrip(t *testing.T) {
	c, _ := newTestControllerWithDevice(t, []sim.NamespaceSpec{
		{ID: 1, BlockCount: 1024, BlockSize: 512},
	})

	namespaces, err := c.IdentifyNamespaces(0)
	if err != nil {
		t.Fatalf("IdentifyNamespaces: %v", err)
	}
	if len(namespaces) != 1 {
		t.Fatalf("got %d namespaces, want 1", len(namespaces))
	}

	pair, err := c.OpenIoQueuePair(namespaces[0], DefaultIoQueueDepth)
	if err != nil {
		t.Fatalf("OpenIoQueuePair: %v", err)
	}
	defer c.CloseIoQueuePair(pair)

	alloc := sim.HeapAllocator{}
	writeAddr, err := alloc.Allocate(512)
	if err != nil {
		t.Fatalf("Allocate write buffer: %v", err)
	}
	writeBuf := addrToSlice(writeAddr, 512)
	for i := range writeBuf {
		writeBuf[i] = byte(i)
	}

	if err := pair.Write(writeAddr, 512, 4); err != nil {
		t.Fatalf("Write: %v", err)
	}

	readAddr, err := alloc.Allocate(512)
	if err != nil {
		t.Fatalf("Allocate read buffer: %v", err)
	}
	if err := pair.Read(readAddr, 512, 4); err != nil {
		t.Fatalf("Read: %v", err)
	}

	readBuf := addrToSlice(readAddr, 512)
	for i := range readBuf {
		if readBuf[i] != byte(i) {
			t.Fatalf("byte %d = %d, want %d", i, readBuf[i], byte(i))
		}
	}

	if err := pair.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	snap := c.MetricsSnapshot()
	if snap.ReadOps != 1 {
		t.Errorf("ReadOps = %d, want 1", snap.ReadOps)
	}
	if snap.WriteOps != 1 {
		t.Errorf("WriteOps = %d, want 1", snap.WriteOps)
	}
	if snap.FlushOps != 1 {
		t.Errorf("FlushOps = %d, want 1", snap.FlushOps)
	}
	if snap.ReadBytes != 512 {
		t.Errorf("ReadBytes = %d, want 512", snap.ReadBytes)
	}
	if snap.WriteBytes != 512 {
		t.Errorf("WriteBytes = %d, want 512", snap.WriteBytes)
	}
}

func TestMetricsSnapshotReflectsController(t *testing.T) {
	c, _ := newTestControllerWithDevice(t, nil)

	snap := c.MetricsSnapshot()
	if snap.TotalOps != 0 {
		t.Errorf("expected 0 ops on a freshly opened controller, got %d", snap.TotalOps)
	}
}
