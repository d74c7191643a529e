// Package proto provides the NVMe wire-format structs used by the
// submission/completion rings and the admin commands that bring a
// controller up.
package proto

import "unsafe"

// Command is a 64-byte NVMe Submission Queue Entry. Field layout must
// match the spec exactly; this is placed directly into submission
// queue memory.
type Command struct {
	Opcode   uint8
	Flags    uint8
	CmdID    uint16
	NSID     uint32
	_rsvd    uint64
	MetaPtr  uint64
	DataPtr0 uint64 // PRP1 or first SGL descriptor qword
	DataPtr1 uint64 // PRP2 or second SGL descriptor qword
	Cdw10    uint32
	Cdw11    uint32
	Cdw12    uint32
	Cdw13    uint32
	Cdw14    uint32
	Cdw15    uint32
}

// Compile-time size check - a Command must fit exactly in one 64-byte
// submission queue slot.
var _ [64]byte = [unsafe.Sizeof(Command{})]byte{}

// Completion is a 16-byte NVMe Completion Queue Entry.
type Completion struct {
	CmdSpecific uint32
	_rsvd       uint32
	SQHead      uint16
	SQID        uint16
	CmdID       uint16
	Status      uint16 // bit 0 is the phase tag; bits 1-8 are the status code
}

// Compile-time size check.
var _ [16]byte = [unsafe.Sizeof(Completion{})]byte{}

// Phase returns the phase tag bit of the completion's status field.
func (c *Completion) Phase() bool {
	return c.Status&1 == 1
}

// StatusCode returns the masked 8-bit status code (bits 1-8).
func (c *Completion) StatusCode() uint16 {
	return (c.Status >> 1) & 0xff
}

// Opcodes used by this driver. Values match the NVMe base spec.
const (
	OpcodeDeleteSubQueue  uint8 = 0x00
	OpcodeCreateSubQueue  uint8 = 0x01
	OpcodeRead            uint8 = 0x02
	OpcodeDeleteCompQueue uint8 = 0x04
	OpcodeCreateCompQueue uint8 = 0x05
	OpcodeIdentify        uint8 = 0x06
	OpcodeWrite           uint8 = 0x01 // NVM command set write (I/O queue opcode space)
)

// IdentifyCNS selects what an Identify command returns (CDW10 bits 0-7).
const (
	IdentifyCNSNamespace     uint32 = 0x00
	IdentifyCNSController   uint32 = 0x01
	IdentifyCNSNamespaceList uint32 = 0x02
)

// NewRead builds a Command for an NVM-command-set Read.
func NewRead(nsid uint32, cmdID uint16, lba uint64, nBlocksMinusOne uint16, prp1, prp2 uint64) Command {
	return Command{
		Opcode:   OpcodeRead,
		CmdID:    cmdID,
		NSID:     nsid,
		DataPtr0: prp1,
		DataPtr1: prp2,
		Cdw10:    uint32(lba),
		Cdw11:    uint32(lba >> 32),
		Cdw12:    uint32(nBlocksMinusOne),
	}
}

// NewWrite builds a Command for an NVM-command-set Write.
func NewWrite(nsid uint32, cmdID uint16, lba uint64, nBlocksMinusOne uint16, prp1, prp2 uint64) Command {
	c := NewRead(nsid, cmdID, lba, nBlocksMinusOne, prp1, prp2)
	c.Opcode = OpcodeWrite
	return c
}

// NewIdentifyController builds an Identify command targeting CNS=01h.
func NewIdentifyController(cmdID uint16, prp1 uint64) Command {
	return Command{
		Opcode:   OpcodeIdentify,
		CmdID:    cmdID,
		DataPtr0: prp1,
		Cdw10:    IdentifyCNSController,
	}
}

// NewIdentifyNamespace builds an Identify command targeting CNS=00h.
func NewIdentifyNamespace(nsid uint32, cmdID uint16, prp1 uint64) Command {
	return Command{
		Opcode:   OpcodeIdentify,
		CmdID:    cmdID,
		NSID:     nsid,
		DataPtr0: prp1,
		Cdw10:    IdentifyCNSNamespace,
	}
}

// NewIdentifyNamespaceList builds an Identify command targeting CNS=02h.
func NewIdentifyNamespaceList(base uint32, cmdID uint16, prp1 uint64) Command {
	return Command{
		Opcode:   OpcodeIdentify,
		CmdID:    cmdID,
		NSID:     base,
		DataPtr0: prp1,
		Cdw10:    IdentifyCNSNamespaceList,
	}
}

// NewCreateCompQueue builds an admin command to create an I/O completion
// queue. qsize is the number of entries minus one, per the NVMe spec's
// encoding convention.
func NewCreateCompQueue(cmdID, qid, qsizeMinusOne uint16, prp1 uint64) Command {
	return Command{
		Opcode:   OpcodeCreateCompQueue,
		CmdID:    cmdID,
		DataPtr0: prp1,
		Cdw10:    uint32(qsizeMinusOne)<<16 | uint32(qid),
		Cdw11:    1, // physically contiguous, interrupts disabled
	}
}

// NewCreateSubQueue builds an admin command to create an I/O submission
// queue bound to completion queue cqid.
func NewCreateSubQueue(cmdID, qid, qsizeMinusOne, cqid uint16, prp1 uint64) Command {
	return Command{
		Opcode:   OpcodeCreateSubQueue,
		CmdID:    cmdID,
		DataPtr0: prp1,
		Cdw10:    uint32(qsizeMinusOne)<<16 | uint32(qid),
		Cdw11:    uint32(cqid)<<16 | 1, // physically contiguous
	}
}

// NewDeleteSubQueue builds an admin command to delete an I/O submission queue.
func NewDeleteSubQueue(cmdID, qid uint16) Command {
	return Command{
		Opcode: OpcodeDeleteSubQueue,
		CmdID:  cmdID,
		Cdw10:  uint32(qid),
	}
}

// NewDeleteCompQueue builds an admin command to delete an I/O completion queue.
func NewDeleteCompQueue(cmdID, qid uint16) Command {
	return Command{
		Opcode: OpcodeDeleteCompQueue,
		CmdID:  cmdID,
		Cdw10:  uint32(qid),
	}
}
