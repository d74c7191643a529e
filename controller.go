// Package nvme provides a userspace NVMe controller driver core: the
// register-level enable handshake, namespace discovery, and a
// synchronous I/O queue pair for reading and writing namespace data.
package nvme

import (
	"fmt"

	"github.com/plos-clan/go-nvme/internal/ctrl"
	"github.com/plos-clan/go-nvme/internal/logging"
	"github.com/plos-clan/go-nvme/internal/mem"
	"github.com/plos-clan/go-nvme/internal/queue"
)

// Allocator is implemented by whatever owns physical memory on behalf
// of this driver, re-exported so callers constructing one don't need
// to import the internal package directly.
type Allocator = mem.Allocator

// Controller is a brought-up NVMe controller: the admin queue pair,
// identifying information, and the namespaces and I/O queue pairs
// handed out over its lifetime.
type Controller struct {
	inner            *ctrl.Controller
	allocator        mem.Allocator
	listPoolCapacity int

	metrics  *Metrics
	observer Observer
}

// Options configures Open.
type Options struct {
	// AdminQueueSize overrides the admin queue pair depth (default: DefaultAdminQueueSize).
	AdminQueueSize uint16

	// ListPoolCapacity overrides the PRP list-page pool capacity (default: DefaultListPoolCapacity).
	ListPoolCapacity int

	// Logger for debug/info messages (if nil, uses the package default logger).
	Logger *logging.Logger

	// Observer for metrics collection (if nil, uses an internal MetricsObserver).
	Observer Observer
}

// Open brings up a controller at the given MMIO base address, running
// the CC/CSTS enable handshake and an Identify Controller command.
//
// Example:
//
//	allocator := myIOMMUAllocator{}
//	controller, err := nvme.Open(base, allocator, nil)
func Open(base uintptr, allocator mem.Allocator, options *Options) (*Controller, error) {
	if options == nil {
		options = &Options{}
	}

	cfg := ctrl.Config{
		AdminQueueSize:   options.AdminQueueSize,
		ListPoolCapacity: options.ListPoolCapacity,
	}
	if cfg.AdminQueueSize == 0 {
		cfg.AdminQueueSize = DefaultAdminQueueSize
	}
	if cfg.ListPoolCapacity == 0 {
		cfg.ListPoolCapacity = DefaultListPoolCapacity
	}

	inner, err := ctrl.Init(base, allocator, cfg)
	if err != nil {
		return nil, WrapError("Open", err)
	}
	if options.Logger != nil {
		inner.SetLogger(options.Logger)
	}

	metrics := NewMetrics()
	observer := options.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	return &Controller{
		inner:            inner,
		allocator:        allocator,
		listPoolCapacity: cfg.ListPoolCapacity,
		metrics:          metrics,
		observer:         observer,
	}, nil
}

// Data returns the controller's identifying information and capabilities.
func (c *Controller) Data() ctrl.ControllerData {
	return c.inner.Data()
}

// IdentifyNamespaces enumerates and identifies every active namespace
// starting at the given base NSID (0 lists all namespaces).
func (c *Controller) IdentifyNamespaces(base uint32) ([]ctrl.Namespace, error) {
	namespaces, err := c.inner.IdentifyNamespaces(base)
	if err != nil {
		return nil, WrapError("IdentifyNamespaces", err)
	}
	return namespaces, nil
}

// OpenIoQueuePair creates an I/O queue pair of the given depth bound
// to the namespace, ready for synchronous Read/Write calls.
func (c *Controller) OpenIoQueuePair(ns ctrl.Namespace, depth int) (*queue.IoQueuePair, error) {
	qid, sq, cq, err := c.inner.CreateIoQueuePair(depth)
	if err != nil {
		return nil, WrapError("OpenIoQueuePair", err)
	}

	pair := queue.New(queue.Config{
		QueueID:          qid,
		Depth:            depth,
		Namespace:        ns,
		Allocator:        c.allocator,
		Doorbell:         c.inner.Doorbell(),
		MaxTransferSize:  c.inner.Data().MaxTransferSize,
		ListPoolCapacity: c.listPoolCapacity,
		Observer:         c.observer,
	}, sq, cq)

	return pair, nil
}

// CloseIoQueuePair deletes the submission and completion queues
// backing pair. The pair must not be used after this call.
func (c *Controller) CloseIoQueuePair(pair *queue.IoQueuePair) error {
	if err := c.inner.DeleteIoQueuePair(pair.ID()); err != nil {
		return WrapError("CloseIoQueuePair", err)
	}
	return nil
}

// Metrics returns the controller's built-in metrics.
func (c *Controller) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of controller metrics.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// String implements fmt.Stringer for diagnostic logging.
func (c *Controller) String() string {
	d := c.Data()
	return fmt.Sprintf("nvme.Controller{serial=%q model=%q mdts=%d}", d.SerialNumber, d.ModelNumber, d.MaxTransferSize)
}
