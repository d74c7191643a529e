// Package ctrl implements the controller bring-up state machine: the
// CC/CSTS enable handshake, admin command execution, namespace
// discovery, and I/O queue pair lifecycle.
package ctrl

import "sync/atomic"

// ControllerData holds identifying and capability information read
// from the controller during Init.
type ControllerData struct {
	SerialNumber     string
	ModelNumber      string
	FirmwareRevision string
	MaxTransferSize  int // bytes; 0 means "no limit advertised" (MDTS=0)
	MinPageSize      int // bytes
	MaxQueueEntries  uint16
}

// Namespace describes one NVM namespace discovered on the controller.
// It is a plain comparable value, not a handle - a namespace is freely
// copyable and carries no lifecycle of its own.
type Namespace struct {
	ID         uint32
	BlockCount uint64
	BlockSize  uint64
}

// nextIoQueueID hands out I/O queue identifiers starting at 1 (0 is
// reserved for the admin queue pair).
var nextIoQueueID atomic.Uint32

// NewIoQueueID allocates the next I/O queue identifier.
func NewIoQueueID() uint16 {
	return uint16(nextIoQueueID.Add(1))
}

// Config tunes controller bring-up.
type Config struct {
	AdminQueueSize   uint16
	ListPoolCapacity int
}

// DefaultConfig returns sane defaults for Config.
func DefaultConfig() Config {
	return Config{
		AdminQueueSize:   64,
		ListPoolCapacity: 32,
	}
}
