package ctrl

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/plos-clan/go-nvme/internal/doorbell"
	"github.com/plos-clan/go-nvme/internal/logging"
	"github.com/plos-clan/go-nvme/internal/mem"
	"github.com/plos-clan/go-nvme/internal/proto"
	"github.com/plos-clan/go-nvme/internal/ring"
)

// CommandFailedError reports a non-zero NVMe completion status code.
type CommandFailedError struct {
	Code uint16
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("ctrl: command failed with status %#x", e.Code)
}

// ErrQueueSizeTooSmall and ErrQueueSizeExceedsMqes guard I/O queue pair
// creation's size argument.
var (
	ErrQueueSizeTooSmall    = fmt.Errorf("ctrl: queue size must be at least 2")
	ErrQueueSizeExceedsMqes = fmt.Errorf("ctrl: queue size exceeds controller's max queue entries")
)

// Controller drives one NVMe controller's MMIO register interface: the
// enable handshake, the admin queue pair, and I/O queue pair lifecycle.
type Controller struct {
	base      uintptr
	allocator mem.Allocator
	cfg       Config
	logger    *logging.Logger

	adminSQ     *ring.SubQueue
	adminCQ     *ring.CompQueue
	adminBuf    uintptr
	adminBufLen int
	doorbell    doorbell.Addresser

	data ControllerData
}

// Init brings a controller up at the given MMIO base address: it
// allocates and programs the admin queue pair, runs the disable/enable
// handshake, and issues an Identify Controller to populate
// ControllerData.
func Init(base uintptr, allocator mem.Allocator, cfg Config) (*Controller, error) {
	if cfg.AdminQueueSize == 0 {
		cfg = DefaultConfig()
	}

	logger := logging.Default()
	logger.Debug("initializing controller", "base", fmt.Sprintf("%#x", base))

	adminSQ, err := ring.NewSubQueue(allocator, cfg.AdminQueueSize)
	if err != nil {
		return nil, err
	}
	adminCQ, err := ring.NewCompQueue(allocator, cfg.AdminQueueSize)
	if err != nil {
		return nil, err
	}
	adminBuf, err := allocator.Allocate(mem.PageSize)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		base:        base,
		allocator:   allocator,
		cfg:         cfg,
		logger:      logger,
		adminSQ:     adminSQ,
		adminCQ:     adminCQ,
		adminBuf:    adminBuf,
		adminBufLen: mem.PageSize,
		doorbell:    doorbell.New(base, 0),
	}

	cap := c.getReg64(proto.RegCAP)
	dstrd := uint8((cap >> proto.CAPDSTRDShift) & proto.CAPDSTRDMask)
	c.doorbell = doorbell.New(base, dstrd)
	c.data.MinPageSize = 1 << (((cap >> proto.CAPMPSMinShift) & proto.CAPMPSMinMask) + 12)
	c.data.MaxQueueEntries = uint16(cap&proto.CAPMQESMask) + 1

	c.logger.Debug("read CAP", "dstrd", dstrd, "min_pagesize", c.data.MinPageSize, "mqes", c.data.MaxQueueEntries)

	adminSQ.SetLogger(logger)
	adminCQ.SetLogger(logger)

	// Disable the controller before reprogramming the admin queue.
	c.setReg32(proto.RegCC, c.getReg32(proto.RegCC)&^uint32(proto.CCEnable))
	for c.getReg32(proto.RegCSTS)&proto.CSTSReady != 0 {
		ring.Pause()
	}

	c.setReg64(proto.RegASQ, uint64(adminSQ.Address()))
	c.setReg64(proto.RegACQ, uint64(adminCQ.Address()))
	aqa := uint32(cfg.AdminQueueSize-1)<<16 | uint32(cfg.AdminQueueSize-1)
	c.setReg32(proto.RegAQA, aqa)

	cc := c.getReg32(proto.RegCC) & 0xFF00_000F
	cc |= proto.CompQueueEntrySizeLog2 << proto.CCIOCQESShift
	cc |= proto.SubQueueEntrySizeLog2 << proto.CCIOSQESShift
	c.setReg32(proto.RegCC, cc)

	c.setReg32(proto.RegCC, c.getReg32(proto.RegCC)|proto.CCEnable)
	for c.getReg32(proto.RegCSTS)&proto.CSTSReady == 0 {
		ring.Pause()
	}

	c.logger.Info("controller enabled")

	if _, err := c.execAdmin(proto.NewIdentifyController(adminSQ.Tail(), uint64(allocator.Translate(adminBuf)))); err != nil {
		return nil, err
	}

	identify := unsafe.Slice((*byte)(unsafe.Pointer(adminBuf)), mem.PageSize)
	c.data.SerialNumber = trimIdentifyString(identify[4:24])
	c.data.ModelNumber = trimIdentifyString(identify[24:64])
	c.data.FirmwareRevision = trimIdentifyString(identify[64:72])

	mdts := identify[77]
	if mdts == 0 {
		c.data.MaxTransferSize = 0 // no limit advertised
	} else {
		c.data.MaxTransferSize = (1 << mdts) * c.data.MinPageSize
	}

	c.logger.Info("identified controller",
		"serial", c.data.SerialNumber,
		"model", c.data.ModelNumber,
		"firmware", c.data.FirmwareRevision,
		"mdts_bytes", c.data.MaxTransferSize)

	return c, nil
}

func trimIdentifyString(b []byte) string {
	return strings.TrimSpace(string(b))
}

// Data returns the controller data populated during Init.
func (c *Controller) Data() ControllerData { return c.data }

func (c *Controller) getReg32(offset uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(c.base + offset))
}

func (c *Controller) setReg32(offset uintptr, v uint32) {
	*(*uint32)(unsafe.Pointer(c.base + offset)) = v
}

func (c *Controller) getReg64(offset uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(c.base + offset))
}

func (c *Controller) setReg64(offset uintptr, v uint64) {
	*(*uint64)(unsafe.Pointer(c.base + offset)) = v
}

// execAdmin pushes cmd onto the admin submission queue, rings the
// doorbells, and spins for the matching completion.
func (c *Controller) execAdmin(cmd proto.Command) (proto.Completion, error) {
	cmd.CmdID = c.adminSQ.Tail()
	newTail, err := c.adminSQ.TryPush(cmd)
	if err != nil {
		return proto.Completion{}, err
	}
	c.doorbell.Ring(doorbell.SubTail, proto.AdminQueueID, uint32(newTail))

	entry := c.adminCQ.Pop()
	c.doorbell.Ring(doorbell.CompHead, proto.AdminQueueID, uint32(c.adminCQ.Head()))
	c.adminSQ.SetHead(entry.SQHead)

	if status := entry.StatusCode(); status != 0 {
		return entry, &CommandFailedError{Code: status}
	}
	return entry, nil
}

// IdentifyNamespaces enumerates and identifies every active namespace
// starting at the given base NSID (0 lists all namespaces).
func (c *Controller) IdentifyNamespaces(base uint32) ([]Namespace, error) {
	if _, err := c.execAdmin(proto.NewIdentifyNamespaceList(base, c.adminSQ.Tail(), uint64(c.allocator.Translate(c.adminBuf)))); err != nil {
		return nil, err
	}

	raw := unsafe.Slice((*uint32)(unsafe.Pointer(c.adminBuf)), c.adminBufLen/4)
	var ids []uint32
	for _, id := range raw {
		if id != 0 {
			ids = append(ids, id)
		}
	}

	namespaces := make([]Namespace, 0, len(ids))
	for _, id := range ids {
		if _, err := c.execAdmin(proto.NewIdentifyNamespace(id, c.adminSQ.Tail(), uint64(c.allocator.Translate(c.adminBuf)))); err != nil {
			return nil, err
		}

		data := (*namespaceData)(unsafe.Pointer(c.adminBuf))
		flbaIndex := data.LbaSize & 0xf
		flbaData := (data.LbaFormatSupport[flbaIndex] >> 16) & 0xff

		namespaces = append(namespaces, Namespace{
			ID:         id,
			BlockCount: data.Capacity,
			BlockSize:  1 << flbaData,
		})
	}

	return namespaces, nil
}

// namespaceData mirrors the fields of the Identify Namespace data
// structure this driver actually reads.
type namespaceData struct {
	_ignore1         uint64
	Capacity         uint64
	_ignore2         [10]byte
	LbaSize          byte
	_ignore3         [101]byte
	LbaFormatSupport [16]uint32
}

// CreateIoQueuePair creates an I/O completion queue and submission
// queue pair of the given depth (entries), and returns the new queue
// ID together with the two rings. It takes no namespace; the caller
// binds one when it wraps the result. The caller (internal/queue)
// wraps these into an IoQueuePair; Controller does not depend on
// internal/queue to avoid an import cycle.
func (c *Controller) CreateIoQueuePair(depth int) (qid uint16, sq *ring.SubQueue, cq *ring.CompQueue, err error) {
	if depth < 2 {
		return 0, nil, nil, ErrQueueSizeTooSmall
	}
	if depth > int(c.data.MaxQueueEntries) {
		return 0, nil, nil, ErrQueueSizeExceedsMqes
	}

	qid = NewIoQueueID()
	c.logger.Debug("creating I/O queue pair", "qid", qid, "depth", depth)

	cq, err = ring.NewCompQueue(c.allocator, uint16(depth))
	if err != nil {
		return 0, nil, nil, err
	}
	cq.SetLogger(c.logger)
	if _, err = c.execAdmin(proto.NewCreateCompQueue(c.adminSQ.Tail(), qid, uint16(depth-1), uint64(cq.Address()))); err != nil {
		return 0, nil, nil, err
	}

	sq, err = ring.NewSubQueue(c.allocator, uint16(depth))
	if err != nil {
		c.execAdmin(proto.NewDeleteCompQueue(c.adminSQ.Tail(), qid)) //nolint:errcheck // best-effort cleanup
		return 0, nil, nil, err
	}
	sq.SetLogger(c.logger)
	if _, err = c.execAdmin(proto.NewCreateSubQueue(c.adminSQ.Tail(), qid, uint16(depth-1), qid, uint64(sq.Address()))); err != nil {
		// Create-SQ failed after Create-CQ succeeded: delete the
		// orphaned completion queue rather than leaking it.
		c.execAdmin(proto.NewDeleteCompQueue(c.adminSQ.Tail(), qid)) //nolint:errcheck // best-effort cleanup
		return 0, nil, nil, err
	}

	c.logger.Info("I/O queue pair created", "qid", qid, "depth", depth)
	return qid, sq, cq, nil
}

// DeleteIoQueuePair deletes the submission and completion queues for qid.
func (c *Controller) DeleteIoQueuePair(qid uint16) error {
	c.logger.Debug("deleting I/O queue pair", "qid", qid)
	if _, err := c.execAdmin(proto.NewDeleteSubQueue(c.adminSQ.Tail(), qid)); err != nil {
		return err
	}
	if _, err := c.execAdmin(proto.NewDeleteCompQueue(c.adminSQ.Tail(), qid)); err != nil {
		return err
	}
	c.logger.Info("I/O queue pair deleted", "qid", qid)
	return nil
}

// Doorbell exposes the controller's doorbell addresser so a queue pair
// can ring its own doorbells without holding a Controller reference.
func (c *Controller) Doorbell() doorbell.Addresser { return c.doorbell }

// SetLogger overrides the controller's logger.
func (c *Controller) SetLogger(logger *logging.Logger) {
	if logger != nil {
		c.logger = logger
	}
}
