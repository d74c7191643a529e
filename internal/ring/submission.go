// Package ring implements the NVMe submission/completion queue pair:
// fixed-size circular buffers of wire-format commands and completions,
// addressed by a shared tail/head counter pair and, for completions,
// a phase tag that flips every time the ring wraps.
package ring

import (
	"errors"
	"unsafe"

	"github.com/plos-clan/go-nvme/internal/logging"
	"github.com/plos-clan/go-nvme/internal/mem"
	"github.com/plos-clan/go-nvme/internal/proto"
)

// ErrQueueFull is returned by TryPush when the submission queue has no
// free slot.
var ErrQueueFull = errors.New("ring: submission queue full")

// SubQueue is a submission queue: a ring of Command slots backed by DMA
// memory, with software tracking of head and tail.
type SubQueue struct {
	addr   uintptr
	phys   uintptr
	buf    []proto.Command
	head   uint16
	tail   uint16
	size   uint16
	logger *logging.Logger
}

// NewSubQueue allocates a submission queue of the given depth (entries).
func NewSubQueue(a mem.Allocator, depth uint16) (*SubQueue, error) {
	addr, err := a.Allocate(int(depth) * 64)
	if err != nil {
		return nil, err
	}

	q := &SubQueue{
		addr:   addr,
		phys:   a.Translate(addr),
		size:   depth,
		logger: logging.Default(),
	}
	q.buf = unsafe.Slice((*proto.Command)(unsafe.Pointer(addr)), depth)
	return q, nil
}

// SetLogger overrides the submission queue's logger.
func (q *SubQueue) SetLogger(logger *logging.Logger) {
	if logger != nil {
		q.logger = logger
	}
}

// Address returns the physical base address of the queue, for ASQ/the
// Create-SQ admin command.
func (q *SubQueue) Address() uintptr { return q.phys }

// Tail returns the current (unpublished) tail index.
func (q *SubQueue) Tail() uint16 { return q.tail }

// Head returns the current head index, as last advanced by the
// controller's reported sq_head.
func (q *SubQueue) Head() uint16 { return q.head }

// SetHead updates the queue's notion of its own head, normally driven
// by the sq_head field of a matching completion.
func (q *SubQueue) SetHead(head uint16) { q.head = head }

// IsFull reports whether the ring has no free slot.
func (q *SubQueue) IsFull() bool {
	return q.head == (q.tail+1)%q.size
}

// TryPush writes cmd into the next slot and advances the tail, or
// returns ErrQueueFull if the ring has no room. It returns the new tail
// value the caller must write to the submission doorbell.
func (q *SubQueue) TryPush(cmd proto.Command) (uint16, error) {
	if q.IsFull() {
		return 0, ErrQueueFull
	}
	q.buf[q.tail] = cmd
	Release()
	q.tail = (q.tail + 1) % q.size
	return q.tail, nil
}

// Push writes cmd into the next slot, spinning with a CPU-pause hint
// until the controller frees a slot by advancing head, and returns the
// new tail value the caller must write to the submission doorbell.
func (q *SubQueue) Push(cmd proto.Command) uint16 {
	tail, err := q.TryPush(cmd)
	if err == nil {
		return tail
	}

	q.logger.Debug("submission queue full, spinning for a free slot", "size", q.size)
	for {
		Pause()
		tail, err = q.TryPush(cmd)
		if err == nil {
			return tail
		}
	}
}
