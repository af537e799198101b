// Package zone implements VDO's thread/zone model: the static
// partitioning of work across logical, physical, and hash zone threads
// plus the shared admin, journal, and packer threads; the admin state
// machine that drives orderly suspend/resume across that partition
//; and the read-only notifier that lets any thread demote the
// whole device to read-only and have every other thread learn about it
// without a lock.
//
// Grounded on original_source/vdo/{thread-config.c, thread-config.h,
// admin-state.c, admin-state.h, read-only-notifier.c}.
package zone

import vdoerrors "github.com/vdo/vdo/internal/errors"

// ThreadConfig is the thread/zone partition a VDO instance was configured
// with (device-table line's zone-count keys, spec.md §6). Logical,
// physical, and hash zone counts must be all-zero (everything shares one
// thread, alongside the packer and journal) or all-nonzero (each zone
// kind gets its own threads), matching thread-config.c's
// vdo_make_thread_config contract.
type ThreadConfig struct {
	LogicalZoneCount  int
	PhysicalZoneCount int
	HashZoneCount     int
	BioThreadCount    int
	AckThreadCount    int
	CPUThreadCount    int
}

// Validate checks the all-zero-or-all-nonzero rule on the three
// zone-count fields (spec.md §6: "zone counts must be all-zero or
// all-nonzero").
func (c ThreadConfig) Validate() error {
	zeros := 0
	if c.LogicalZoneCount == 0 {
		zeros++
	}
	if c.PhysicalZoneCount == 0 {
		zeros++
	}
	if c.HashZoneCount == 0 {
		zeros++
	}
	if zeros != 0 && zeros != 3 {
		return vdoerrors.ErrBadConfiguration.Errorf(
			"zone: logical/physical/hash zone counts must be all zero or all nonzero, got %d/%d/%d",
			c.LogicalZoneCount, c.PhysicalZoneCount, c.HashZoneCount)
	}
	if c.BioThreadCount < 1 {
		return vdoerrors.ErrBadConfiguration.Errorf("zone: bio thread count must be at least 1")
	}
	return nil
}

// Shared reports whether this configuration packs every zone kind plus
// the packer and journal onto a single thread (the "0 0 0" device-table
// shorthand), as opposed to the fully zoned configuration.
func (c ThreadConfig) Shared() bool {
	return c.LogicalZoneCount == 0 && c.PhysicalZoneCount == 0 && c.HashZoneCount == 0
}

// EffectiveLogicalZones, EffectivePhysicalZones, and EffectiveHashZones
// return the actual number of zones of each kind once the all-zero
// shorthand (one shared zone of each kind) is resolved.
func (c ThreadConfig) EffectiveLogicalZones() int  { return effectiveCount(c.LogicalZoneCount) }
func (c ThreadConfig) EffectivePhysicalZones() int { return effectiveCount(c.PhysicalZoneCount) }
func (c ThreadConfig) EffectiveHashZones() int     { return effectiveCount(c.HashZoneCount) }

func effectiveCount(n int) int {
	if n == 0 {
		return 1
	}
	return n
}

// ThreadKind identifies one of the fixed thread roles named in
// spec.md §5.
type ThreadKind uint8

const (
	ThreadAdmin ThreadKind = iota
	ThreadJournal
	ThreadPacker
	ThreadDedupe
	ThreadLogicalZone
	ThreadPhysicalZone
	ThreadHashZone
	ThreadBioAck
	ThreadBio
	ThreadCPU
)

func (k ThreadKind) String() string {
	names := [...]string{
		"admin", "journal", "packer", "dedupe",
		"logical-zone", "physical-zone", "hash-zone", "bio-ack", "bio", "cpu",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}
