package sim

import (
	"encoding/binary"
	"sync"
	"time"
	"unsafe"

	"github.com/plos-clan/go-nvme/internal/proto"
)

// HeapAllocator is a mem.Allocator backed by plain heap memory that
// pretends its virtual address equals its physical address - fine for
// a simulated controller living in the same address space as its
// driver. Returned addresses are page-aligned, and each buffer stays
// reachable until Deallocate.
type HeapAllocator struct{}

// heapLive keeps HeapAllocator buffers reachable while callers hold
// them only as uintptr values.
var heapLive sync.Map

func (HeapAllocator) Translate(addr uintptr) uintptr { return addr }

func (HeapAllocator) Allocate(size int) (uintptr, error) {
	buf := make([]byte, size+4096)
	raw := uintptr(unsafe.Pointer(&buf[0]))
	addr := (raw + 4095) &^ 4095
	heapLive.Store(addr, buf)
	return addr, nil
}

func (HeapAllocator) Deallocate(addr uintptr, _ int) { heapLive.Delete(addr) }

// NamespaceSpec describes one namespace a Device exposes.
type NamespaceSpec struct {
	ID         uint32
	BlockCount uint64
	BlockSize  uint64
}

// queueState tracks one submission/completion queue pair's addresses
// and the simulator's view of its head/tail/phase.
type queueState struct {
	sqAddr  uintptr
	cqAddr  uintptr
	sqSize  uint16
	cqSize  uint16
	sqHead  uint16
	cqTail  uint16
	cqPhase bool
}

// Device is a fake NVMe controller: a register file responding to the
// CC/CSTS handshake and admin/I/O doorbells, backed by RAM namespaces.
// It is not a PCIe model - PRP chains are not walked, since the
// simulated controller shares its driver's address space and a PRP1
// pointer already addresses the whole contiguous host buffer the
// driver allocated. That shortcut only holds because both sides run in
// the same process; it does not reflect how real hardware walks a PRP
// list.
type Device struct {
	reg []byte

	namespaces map[uint32]NamespaceSpec
	stores     map[uint32]*namespaceStore

	mu       sync.Mutex
	admin    *queueState
	ioQueues map[uint16]*queueState

	stopCh chan struct{}
	doneCh chan struct{}
}

// regSize covers CAP..ACQ plus doorbells for up to 64 queue pairs.
const regSize = proto.DoorbellBase + 64*2*4

// NewDevice builds a Device exposing the given namespaces, with
// maxQueueEntries advertised via CAP.MQES.
func NewDevice(maxQueueEntries uint16, namespaces []NamespaceSpec) *Device {
	d := &Device{
		reg:        make([]byte, regSize),
		namespaces: make(map[uint32]NamespaceSpec, len(namespaces)),
		stores:     make(map[uint32]*namespaceStore, len(namespaces)),
		ioQueues:   make(map[uint16]*queueState),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	for _, ns := range namespaces {
		d.namespaces[ns.ID] = ns
		d.stores[ns.ID] = newNamespaceStore(int64(ns.BlockCount * ns.BlockSize))
	}

	capValue := uint64(maxQueueEntries-1) & proto.CAPMQESMask
	d.set64(proto.RegCAP, capValue)
	d.set32(proto.RegVS, 0x00010400) // NVMe 1.4.0

	return d
}

// Base returns the address of the device's register file, to pass as
// an ctrl.Init base address.
func (d *Device) Base() uintptr {
	return uintptr(unsafe.Pointer(&d.reg[0]))
}

// Start runs the device's background responder loop.
func (d *Device) Start() {
	go d.loop()
}

// Stop halts the background responder loop and waits for it to exit.
func (d *Device) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Device) loop() {
	defer close(d.doneCh)
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}
		d.tick()
		time.Sleep(20 * time.Microsecond)
	}
}

func (d *Device) tick() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handleHandshake()
	if d.admin != nil {
		d.pumpAdmin()
	}
	for qid, qs := range d.ioQueues {
		if qs.sqAddr != 0 {
			d.pumpIO(qid, qs)
		}
	}
}

func (d *Device) handleHandshake() {
	cc := d.get32(proto.RegCC)
	csts := d.get32(proto.RegCSTS)

	switch {
	case cc&proto.CCEnable != 0 && csts&proto.CSTSReady == 0:
		asq := d.get64(proto.RegASQ)
		acq := d.get64(proto.RegACQ)
		aqa := d.get32(proto.RegAQA)

		d.admin = &queueState{
			sqAddr:  uintptr(asq),
			cqAddr:  uintptr(acq),
			sqSize:  uint16(aqa&0xfff) + 1,
			cqSize:  uint16((aqa>>16)&0xfff) + 1,
			cqPhase: true,
		}
		d.set32(proto.RegCSTS, csts|proto.CSTSReady)
	case cc&proto.CCEnable == 0 && csts&proto.CSTSReady != 0:
		d.set32(proto.RegCSTS, csts&^uint32(proto.CSTSReady))
		d.admin = nil
	}
}

func (d *Device) doorbellOffset(qid uint16, sub bool) uintptr {
	index := uint32(qid) * 2
	if !sub {
		index++
	}
	return proto.DoorbellBase + uintptr(index*4)
}

func (d *Device) pumpAdmin() {
	tail := d.get32(d.doorbellOffset(0, true))
	d.drainQueue(0, d.admin, uint16(tail), d.handleAdminCommand)
}

func (d *Device) pumpIO(qid uint16, qs *queueState) {
	tail := d.get32(d.doorbellOffset(qid, true))
	d.drainQueue(qid, qs, uint16(tail), d.handleIOCommand)
}

func (d *Device) drainQueue(qid uint16, qs *queueState, tail uint16, handle func(proto.Command) proto.Completion) {
	sqBuf := unsafe.Slice((*proto.Command)(unsafe.Pointer(qs.sqAddr)), qs.sqSize)

	for qs.sqHead != tail {
		cmd := sqBuf[qs.sqHead]
		qs.sqHead = (qs.sqHead + 1) % qs.sqSize
		entry := handle(cmd)
		d.postCompletion(qid, qs, entry)
	}
}

func (d *Device) postCompletion(qid uint16, qs *queueState, entry proto.Completion) {
	cqBuf := unsafe.Slice((*proto.Completion)(unsafe.Pointer(qs.cqAddr)), qs.cqSize)

	phaseBit := uint16(0)
	if qs.cqPhase {
		phaseBit = 1
	}
	entry.Status = (entry.Status &^ 1) | phaseBit
	entry.SQID = qid
	entry.SQHead = qs.sqHead

	cqBuf[qs.cqTail] = entry

	qs.cqTail++
	if qs.cqTail == qs.cqSize {
		qs.cqTail = 0
		qs.cqPhase = !qs.cqPhase
	}
}

func (d *Device) handleAdminCommand(cmd proto.Command) proto.Completion {
	switch cmd.Opcode {
	case proto.OpcodeIdentify:
		switch cmd.Cdw10 {
		case proto.IdentifyCNSController:
			d.writeIdentifyController(uintptr(cmd.DataPtr0))
		case proto.IdentifyCNSNamespaceList:
			d.writeIdentifyNamespaceList(uintptr(cmd.DataPtr0))
		case proto.IdentifyCNSNamespace:
			d.writeIdentifyNamespace(uintptr(cmd.DataPtr0), cmd.NSID)
		}
	case proto.OpcodeCreateCompQueue:
		qid := uint16(cmd.Cdw10 & 0xffff)
		qsize := uint16(cmd.Cdw10>>16) + 1
		d.ioQueues[qid] = &queueState{cqAddr: uintptr(cmd.DataPtr0), cqSize: qsize, cqPhase: true}
	case proto.OpcodeCreateSubQueue:
		qid := uint16(cmd.Cdw10 & 0xffff)
		qsize := uint16(cmd.Cdw10>>16) + 1
		if qs, ok := d.ioQueues[qid]; ok {
			qs.sqAddr = uintptr(cmd.DataPtr0)
			qs.sqSize = qsize
		}
	case proto.OpcodeDeleteSubQueue:
		if qs, ok := d.ioQueues[uint16(cmd.Cdw10)]; ok {
			qs.sqAddr = 0
		}
	case proto.OpcodeDeleteCompQueue:
		delete(d.ioQueues, uint16(cmd.Cdw10))
	}
	return proto.Completion{CmdID: cmd.CmdID}
}

func (d *Device) handleIOCommand(cmd proto.Command) proto.Completion {
	ns, ok := d.namespaces[cmd.NSID]
	if !ok {
		return proto.Completion{CmdID: cmd.CmdID, Status: 2 << 1} // generic command error
	}
	store := d.stores[cmd.NSID]

	lba := uint64(cmd.Cdw10) | uint64(cmd.Cdw11)<<32
	nBlocks := uint64(cmd.Cdw12&0xffff) + 1
	length := int64(nBlocks * ns.BlockSize)
	offset := int64(lba * ns.BlockSize)

	buf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(cmd.DataPtr0))), length)

	switch cmd.Opcode {
	case proto.OpcodeRead:
		store.readAt(buf, offset)
	case proto.OpcodeWrite:
		store.writeAt(buf, offset)
	}

	return proto.Completion{CmdID: cmd.CmdID}
}

func (d *Device) writeIdentifyController(addr uintptr) {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), 4096)
	for i := range buf {
		buf[i] = 0
	}
	copyPadded(buf[4:24], "SIM0000000000000000")
	copyPadded(buf[24:64], "go-nvme simulated controller")
	copyPadded(buf[64:72], "1.0")
	buf[77] = 0 // MDTS = 0: unlimited
}

// copyPadded copies s into dst, space-padding the remainder - Identify
// string fields are fixed-width and ASCII-space-padded per the NVMe
// base spec.
func copyPadded(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
}

func (d *Device) writeIdentifyNamespaceList(addr uintptr) {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), 4096)
	for i := range buf {
		buf[i] = 0
	}
	i := 0
	for id := range d.namespaces {
		binary.LittleEndian.PutUint32(buf[i*4:], id)
		i++
	}
}

func (d *Device) writeIdentifyNamespace(addr uintptr, nsid uint32) {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), 4096)
	for i := range buf {
		buf[i] = 0
	}
	ns, ok := d.namespaces[nsid]
	if !ok {
		return
	}
	binary.LittleEndian.PutUint64(buf[8:], ns.BlockCount) // NSZE/NCAP share offset 8 in this driver's read slice
	lbaDataShift := byte(0)
	for 1<<lbaDataShift < ns.BlockSize {
		lbaDataShift++
	}
	buf[26] = 0 // FLBAS: use LBA format 0
	// LBAFormatSupport[0] bits 16-23 encode LBADS (log2 block size).
	binary.LittleEndian.PutUint32(buf[128:], uint32(lbaDataShift)<<16)
}

func (d *Device) get32(offset uintptr) uint32 {
	return binary.LittleEndian.Uint32(d.reg[offset:])
}

func (d *Device) set32(offset uintptr, v uint32) {
	binary.LittleEndian.PutUint32(d.reg[offset:], v)
}

func (d *Device) get64(offset uintptr) uint64 {
	return binary.LittleEndian.Uint64(d.reg[offset:])
}

func (d *Device) set64(offset uintptr, v uint64) {
	binary.LittleEndian.PutUint64(d.reg[offset:], v)
}
