// Command nvme-identify brings up an NVMe controller and prints its
// identifying information and namespace list.
package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/plos-clan/go-nvme"
	"github.com/plos-clan/go-nvme/internal/logging"
	"github.com/plos-clan/go-nvme/internal/mem"
	"github.com/plos-clan/go-nvme/sim"
)

func main() {
	var (
		baseStr    = flag.String("base", "", "MMIO base address in hex (e.g. 0xfe000000); required unless -sim or -mmio-file is set")
		mmioFile   = flag.String("mmio-file", "", "map the controller's BAR through this device file (e.g. /dev/mem) instead of -base")
		mmioPhys   = flag.String("mmio-phys", "", "physical address of the BAR within -mmio-file, in hex")
		mmioLen    = flag.Int("mmio-len", 1<<14, "length in bytes of the BAR region to map with -mmio-file")
		useSim     = flag.Bool("sim", false, "run against an in-process simulated controller instead of a real MMIO base")
		simSize    = flag.String("sim-size", "64M", "simulated namespace size (e.g. 64M, 1G), only with -sim")
		verbose    = flag.Bool("v", false, "verbose logging")
		queueDepth = flag.Int("queue-depth", nvme.DefaultIoQueueDepth, "I/O queue pair depth to open for a smoke test")
		allocKind  = flag.String("allocator", "heap", "DMA allocator to use: heap or mmap")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	var base uintptr
	var simDev *sim.Device

	switch {
	case *useSim:
		size, err := parseSize(*simSize)
		if err != nil {
			log.Fatalf("invalid -sim-size %q: %v", *simSize, err)
		}
		blockSize := uint64(512)
		simDev = sim.NewDevice(nvme.DefaultAdminQueueSize, []sim.NamespaceSpec{
			{ID: 1, BlockCount: uint64(size) / blockSize, BlockSize: blockSize},
		})
		simDev.Start()
		defer simDev.Stop()
		base = simDev.Base()
	case *mmioFile != "":
		phys, err := strconv.ParseUint(*mmioPhys, 0, 64)
		if err != nil {
			log.Fatalf("invalid -mmio-phys %q: %v", *mmioPhys, err)
		}
		mapped, unmap, err := mem.MapBAR(*mmioFile, uintptr(phys), *mmioLen)
		if err != nil {
			log.Fatalf("MapBAR: %v", err)
		}
		defer unmap()
		base = mapped
	case *baseStr != "":
		parsed, err := strconv.ParseUint(*baseStr, 0, 64)
		if err != nil {
			log.Fatalf("invalid -base %q: %v", *baseStr, err)
		}
		base = uintptr(parsed)
	default:
		log.Fatal("one of -base, -mmio-file, or -sim must be given")
	}

	var allocator nvme.Allocator
	switch *allocKind {
	case "mmap":
		allocator = sim.NewMmapAllocator()
	default:
		allocator = sim.HeapAllocator{}
	}

	controller, err := nvme.Open(base, allocator, &nvme.Options{Logger: logger})
	if err != nil {
		log.Fatalf("Open: %v", err)
	}

	data := controller.Data()
	fmt.Printf("Controller: %s\n", controller)
	fmt.Printf("  Serial:    %s\n", data.SerialNumber)
	fmt.Printf("  Model:     %s\n", data.ModelNumber)
	fmt.Printf("  Firmware:  %s\n", data.FirmwareRevision)
	fmt.Printf("  MaxXfer:   %d bytes (0 = unlimited)\n", data.MaxTransferSize)
	fmt.Printf("  MinPage:   %d bytes\n", data.MinPageSize)
	fmt.Printf("  MaxQEntries: %d\n", data.MaxQueueEntries)

	namespaces, err := controller.IdentifyNamespaces(0)
	if err != nil {
		log.Fatalf("IdentifyNamespaces: %v", err)
	}

	fmt.Printf("\nNamespaces (%d):\n", len(namespaces))
	for _, ns := range namespaces {
		fmt.Printf("  nsid=%d blocks=%d block_size=%d capacity=%s\n",
			ns.ID, ns.BlockCount, ns.BlockSize, formatSize(int64(ns.BlockCount*ns.BlockSize)))
	}

	if len(namespaces) == 0 {
		return
	}

	pair, err := controller.OpenIoQueuePair(namespaces[0], *queueDepth)
	if err != nil {
		log.Fatalf("OpenIoQueuePair: %v", err)
	}
	defer controller.CloseIoQueuePair(pair)

	logger.Info("opened I/O queue pair", "namespace", namespaces[0].ID, "depth", *queueDepth)
}

func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	numStr := s
	switch s[len(s)-1] {
	case 'k', 'K':
		multiplier = 1024
		numStr = s[:len(s)-1]
	case 'm', 'M':
		multiplier = 1024 * 1024
		numStr = s[:len(s)-1]
	case 'g', 'G':
		multiplier = 1024 * 1024 * 1024
		numStr = s[:len(s)-1]
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T"}
	return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
}
