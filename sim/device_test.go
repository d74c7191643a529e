package sim

import (
	"testing"
	"time"
	"unsafe"
)

func TestNewDeviceAdvertisesCapacity(t *testing.T) {
	d := NewDevice(32, []NamespaceSpec{{ID: 1, BlockCount: 1024, BlockSize: 512}})

	cap := d.get64(0x00)
	if uint16(cap&0xffff)+1 != 32 {
		t.Errorf("CAP.MQES = %d, want 31 (encodes 32 entries)", cap&0xffff)
	}
}

func TestHandshakeSetsReady(t *testing.T) {
	d := NewDevice(32, nil)
	d.Start()
	defer d.Stop()

	sq := make([]byte, 64*2)
	cq := make([]byte, 16*2)
	d.set64(0x28, uint64(uintptr(unsafe.Pointer(&sq[0]))))
	d.set64(0x30, uint64(uintptr(unsafe.Pointer(&cq[0]))))
	d.set32(0x24, uint32(1)<<16|1) // AQA: 2-entry SQ and CQ

	d.set32(0x14, 1) // CC.EN

	ready := false
	for i := 0; i < 1000; i++ {
		if d.get32(0x1c)&1 != 0 {
			ready = true
			break
		}
		time.Sleep(100 * time.Microsecond)
	}
	if !ready {
		t.Fatal("CSTS.RDY never set after CC.EN")
	}
}
