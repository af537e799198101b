package vdo

import "github.com/vdo/vdo/internal/stats"

// Status is a point-in-time summary of a Device's capacity, health, and
// tunables, the data the `status`/`dump-status` admin command reports
// (grounded on _examples/cockroachdb-pebble/tool/db.go's dbT.runLSM
// table-printing commands, generalized from LSM levels to VDO's depot).
type Status struct {
	PhysicalBlocks   uint64
	AllocatedBlocks  uint64
	FreeBlocks       uint64
	SlabCount        int
	SlabsUnrecovered int
	ReadOnly         bool
	Compression      bool
	Deduplication    bool
}

// Status gathers a snapshot of the device's current state.
func (d *Device) Status() Status {
	var free uint64
	for _, slab := range d.allocator.Slabs() {
		free += slab.FreeBlocks()
	}
	return Status{
		PhysicalBlocks:   d.cfg.PhysicalBlocks,
		AllocatedBlocks:  d.allocator.AllocatedBlocks(),
		FreeBlocks:       free,
		SlabCount:        len(d.allocator.Slabs()),
		SlabsUnrecovered: d.allocator.UnrecoveredSlabCount(),
		ReadOnly:         d.IsReadOnly(),
		Compression:      d.CompressionEnabled(),
		Deduplication:    d.DeduplicationEnabled(),
	}
}

// LatencySnapshots returns the current interval's per-operation latency
// distribution, ticking the registry forward (the `stats` admin command's
// data source).
func (d *Device) LatencySnapshots() []stats.Snapshot {
	return d.latency.Tick()
}
