package ring

import (
	"unsafe"

	"github.com/plos-clan/go-nvme/internal/logging"
	"github.com/plos-clan/go-nvme/internal/mem"
	"github.com/plos-clan/go-nvme/internal/proto"
)

// CompQueue is a completion queue: a ring of Completion slots, with a
// phase tag that flips every time head wraps around to zero.
type CompQueue struct {
	addr   uintptr
	phys   uintptr
	buf    []proto.Completion
	head   uint16
	phase  bool
	size   uint16
	logger *logging.Logger
}

// NewCompQueue allocates a completion queue of the given depth (entries).
// Per the spec, the phase tag starts true: an all-zero slot (phase bit
// 0) is not yet a valid completion until the controller writes it with
// phase 1.
func NewCompQueue(a mem.Allocator, depth uint16) (*CompQueue, error) {
	addr, err := a.Allocate(int(depth) * 16)
	if err != nil {
		return nil, err
	}

	q := &CompQueue{
		addr:   addr,
		phys:   a.Translate(addr),
		size:   depth,
		phase:  true,
		logger: logging.Default(),
	}
	q.buf = unsafe.Slice((*proto.Completion)(unsafe.Pointer(addr)), depth)
	return q, nil
}

// SetLogger overrides the completion queue's logger.
func (q *CompQueue) SetLogger(logger *logging.Logger) {
	if logger != nil {
		q.logger = logger
	}
}

// Address returns the physical base address of the queue, for ACQ/the
// Create-CQ admin command.
func (q *CompQueue) Address() uintptr { return q.phys }

// Head returns the current head index.
func (q *CompQueue) Head() uint16 { return q.head }

// TryPop returns the entry at head if its phase tag matches the queue's
// expected phase, advancing head (and flipping phase on wraparound).
// It reports false if no new completion is available yet.
func (q *CompQueue) TryPop() (proto.Completion, bool) {
	Acquire()
	entry := q.buf[q.head]
	if entry.Phase() != q.phase {
		return proto.Completion{}, false
	}

	q.head++
	if q.head == q.size {
		q.head = 0
		q.phase = !q.phase
		q.logger.Debug("completion queue phase flip", "size", q.size)
	}

	return entry, true
}

// Pop spins (with a CPU-pause hint between attempts) until a new
// completion is available.
func (q *CompQueue) Pop() proto.Completion {
	if entry, ok := q.TryPop(); ok {
		return entry
	}
	for {
		Pause()
		if entry, ok := q.TryPop(); ok {
			return entry
		}
	}
}

// PopN advances head by commands-1 entries without inspecting them,
// then pops and returns the final (commands-th) entry - used by a
// synchronous I/O queue pair that only cares about the last completion
// in a short burst it knows is already posted.
func (q *CompQueue) PopN(commands uint16) proto.Completion {
	if commands > 1 {
		skip := commands - 1
		newHead := uint32(q.head) + uint32(skip)
		if newHead >= uint32(q.size) {
			q.phase = !q.phase
		}
		q.head = uint16(newHead % uint32(q.size))
	}
	return q.Pop()
}
