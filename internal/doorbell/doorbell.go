// Package doorbell computes and writes NVMe doorbell register
// addresses. It is split out from internal/ctrl so both the controller
// (admin queue) and an I/O queue pair can hold an addresser without
// creating an import cycle between those two packages.
package doorbell

import (
	"unsafe"

	"github.com/plos-clan/go-nvme/internal/proto"
	"github.com/plos-clan/go-nvme/internal/ring"
)

// Kind selects which of a queue pair's two doorbell registers to ring.
type Kind int

const (
	SubTail Kind = iota
	CompHead
)

// Addresser computes and writes to doorbell registers for one
// controller's MMIO region.
type Addresser struct {
	base   uintptr
	stride uint32
}

// New builds an Addresser for a controller whose MMIO region starts at
// base, with the doorbell stride read from CAP.DSTRD.
func New(base uintptr, dstrd uint8) Addresser {
	return Addresser{
		base:   base,
		stride: 4 << dstrd,
	}
}

// Ring writes val to the given queue's doorbell register.
func (d Addresser) Ring(kind Kind, qid uint16, val uint32) {
	base := d.base + proto.DoorbellBase
	var index uint32
	switch kind {
	case SubTail:
		index = uint32(qid) * 2
	case CompHead:
		index = uint32(qid)*2 + 1
	}

	addr := base + uintptr(index*d.stride)
	ring.Release()
	*(*uint32)(unsafe.Pointer(addr)) = val
}
