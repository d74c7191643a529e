//go:build linux

package mem

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MapBAR maps length bytes of a PCIe BAR at physAddr via /dev/mem,
// returning the mapped region's virtual base address and a close
// function that unmaps it. This is a convenience for pointing the
// controller facade at real hardware from a CLI; the core driver only
// ever needs a uintptr base and never calls this itself.
func MapBAR(devMemPath string, physAddr uintptr, length int) (uintptr, func() error, error) {
	f, err := os.OpenFile(devMemPath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return 0, nil, fmt.Errorf("mem: open %s: %w", devMemPath, err)
	}
	defer f.Close()

	region, err := unix.Mmap(int(f.Fd()), int64(physAddr), roundUpToPage(length),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return 0, nil, fmt.Errorf("mem: mmap %s at 0x%x: %w", devMemPath, physAddr, err)
	}

	if len(region) == 0 {
		return 0, nil, fmt.Errorf("mem: mmap %s returned an empty region", devMemPath)
	}

	base := uintptr(unsafe.Pointer(&region[0]))
	closeFn := func() error { return unix.Munmap(region) }
	return base, closeFn, nil
}
