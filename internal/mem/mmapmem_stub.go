//go:build !linux

package mem

import "fmt"

// MapBAR is unavailable outside Linux, where /dev/mem-style BAR access
// does not exist in the same form.
func MapBAR(devMemPath string, physAddr uintptr, length int) (uintptr, func() error, error) {
	return 0, nil, fmt.Errorf("mem: MapBAR requires linux")
}
