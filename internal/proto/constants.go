package proto

// Register offsets into the controller's MMIO BAR0, per the NVMe base
// specification's register layout.
const (
	RegCAP   = 0x00 // Controller Capabilities
	RegVS    = 0x08 // Version
	RegINTMS = 0x0c // Interrupt Mask Set
	RegINTMC = 0x10 // Interrupt Mask Clear
	RegCC    = 0x14 // Controller Configuration
	RegCSTS  = 0x1c // Controller Status
	RegNSSR  = 0x20 // NVM Subsystem Reset
	RegAQA   = 0x24 // Admin Queue Attributes
	RegASQ   = 0x28 // Admin Submission Queue Base Address
	RegACQ   = 0x30 // Admin Completion Queue Base Address

	DoorbellBase = 0x1000 // offset of the first doorbell register
)

// Controller Configuration (CC) bit layout.
const (
	CCEnable    = 1 << 0
	CCIOSQESShift = 16 // I/O Submission Queue Entry Size, log2(bytes)
	CCIOCQESShift = 20 // I/O Completion Queue Entry Size, log2(bytes)

	SubQueueEntrySizeLog2  = 6 // 64 bytes
	CompQueueEntrySizeLog2 = 4 // 16 bytes
)

// Controller Status (CSTS) bit layout.
const (
	CSTSReady = 1 << 0
	CSTSFatal = 1 << 1
)

// Controller Capabilities (CAP) field extraction.
const (
	CAPMQESMask   = 0xffff // bits 0-15: Maximum Queue Entries Supported, minus one
	CAPDSTRDShift = 32     // bits 32-35: Doorbell Stride
	CAPDSTRDMask  = 0xf
	CAPMPSMinShift = 48 // bits 48-51: Memory Page Size minimum, log2(4096)-12
	CAPMPSMinMask  = 0xf
)

// AdminQueueSize is the fixed depth of the admin submission/completion
// queue pair used during and after controller bring-up.
const AdminQueueSize = 64

// AdminQueueID identifies the admin queue pair for doorbell addressing.
const AdminQueueID = 0
