package mem

import (
	"errors"

	"github.com/plos-clan/go-nvme/internal/logging"
)

// Sentinel errors returned by PrpManager.Create. The root package
// classifies these into its public error taxonomy; internal packages
// stay decoupled from it to avoid an import cycle.
var (
	ErrNotAlignedToDword = errors.New("mem: address not aligned to a 4-byte dword")
	ErrNotAlignedToPage  = errors.New("mem: address not aligned to a page boundary")
)

// entriesPerList is the number of payload PRP entries in one list page;
// the 512th qword is reserved for chaining to the next list page.
const entriesPerList = 511

// PrpKind distinguishes the three shapes a PRP transfer descriptor can
// take. Go has no sum types, so PrpResult carries this tag instead of
// Rust's enum discriminant.
type PrpKind int

const (
	PrpSingle PrpKind = iota
	PrpDouble
	PrpList
)

// PrpResult is the outcome of PrpManager.Create: either a single
// address, a PRP1/PRP2 pair, or PRP1 plus a chain of list pages.
type PrpResult struct {
	Kind  PrpKind
	PRP1  uintptr
	PRP2  uintptr // valid for PrpDouble and PrpList (address of list[0])
	Lists []Dma[[512]uint64]
}

// Get returns the (PRP1, PRP2) pair to place directly into a Command.
func (r PrpResult) Get() (uintptr, uintptr) {
	switch r.Kind {
	case PrpSingle:
		return r.PRP1, 0
	case PrpDouble:
		return r.PRP1, r.PRP2
	case PrpList:
		return r.PRP1, r.Lists[0].PhysAddr
	default:
		return r.PRP1, 0
	}
}

// PrpManager builds and releases PRP descriptor chains for data
// transfers, reusing list pages across commands via a bounded pool.
type PrpManager struct {
	pool   *listPagePool
	logger *logging.Logger
}

// DefaultListPoolCapacity matches the original driver's default cache
// size for PRP list pages.
const DefaultListPoolCapacity = 32

// NewPrpManager creates a PrpManager with the given list-page pool
// capacity. A capacity of 0 uses DefaultListPoolCapacity.
func NewPrpManager(capacity int) *PrpManager {
	if capacity <= 0 {
		capacity = DefaultListPoolCapacity
	}
	return &PrpManager{pool: newListPagePool(capacity), logger: logging.Default()}
}

// SetLogger overrides the PRP manager's logger.
func (m *PrpManager) SetLogger(logger *logging.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Create builds a PrpResult describing how to transfer bytes starting
// at the virtual address. address must be dword-aligned always, and
// page-aligned whenever the transfer spans more than one page.
func (m *PrpManager) Create(a Allocator, address uintptr, bytes int) (PrpResult, error) {
	count := ((int(address) & 0xfff) + bytes + PageSize - 1) / PageSize

	prp1 := a.Translate(address)

	if address&0x3 != 0 {
		return PrpResult{}, ErrNotAlignedToDword
	}
	if count == 1 {
		return PrpResult{Kind: PrpSingle, PRP1: prp1}, nil
	}
	if address&0xfff != 0 {
		return PrpResult{}, ErrNotAlignedToPage
	}

	prp2Start := a.Translate(address + PageSize)
	if count == 2 {
		return PrpResult{Kind: PrpDouble, PRP1: prp1, PRP2: prp2Start}, nil
	}

	remaining := count - 1
	listsNeeded := (remaining - 1 + entriesPerList - 1) / entriesPerList
	lists := make([]Dma[[512]uint64], 0, listsNeeded)

	for listIdx := 0; listIdx < listsNeeded; listIdx++ {
		entries := entriesPerList
		if listIdx == listsNeeded-1 {
			entries = remaining - listIdx*entriesPerList
		}

		page, ok := m.pool.pop()
		if !ok {
			m.logger.Debug("PRP list page pool empty, allocating a fresh page", "pool_capacity", m.pool.cap)
			var err error
			page, err = Allocate[[512]uint64](a, 1)
			if err != nil {
				return PrpResult{}, err
			}
		}

		buf := (*[512]uint64)(asPointer(page.Addr))
		for i := 0; i < entries; i++ {
			buf[i] = uint64(prp2Start) + uint64((listIdx*entriesPerList+i)*PageSize)
		}

		lists = append(lists, page)
	}

	for i := 0; i < len(lists)-1; i++ {
		buf := (*[512]uint64)(asPointer(lists[i].Addr))
		buf[entriesPerList] = uint64(lists[i+1].PhysAddr)
	}

	return PrpResult{Kind: PrpList, PRP1: prp1, PRP2: lists[0].PhysAddr, Lists: lists}, nil
}

// Release returns a PrpResult's list pages to the pool, deallocating
// any that don't fit.
func (m *PrpManager) Release(a Allocator, r PrpResult) {
	for _, page := range r.Lists {
		if m.pool.isFull() {
			m.logger.Debug("PRP list page pool full, deallocating page immediately", "pool_capacity", m.pool.cap)
			page.Deallocate(a)
			continue
		}
		m.pool.push(page)
	}
}
