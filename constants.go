package nvme

import "github.com/plos-clan/go-nvme/internal/constants"

// Re-export constants for the public API.
const (
	DefaultIoQueueDepth     = constants.DefaultIoQueueDepth
	DefaultLogicalBlockSize = constants.DefaultLogicalBlockSize
	DefaultAdminQueueSize   = constants.DefaultAdminQueueSize
	DefaultListPoolCapacity = constants.DefaultListPoolCapacity
	IdentifyBufferSize      = constants.IdentifyBufferSize
)
