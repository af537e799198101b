package vdo

import (
	"context"

	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/slabdepot"
	"github.com/vdo/vdo/internal/slabjournal"
	"github.com/vdo/vdo/internal/zone"
)

// Suspend quiesces the device for a device-mapper suspend: it packs and
// writes every non-empty packer bin, then commits the recovery journal's
// active block if that block is full, then flushes the backing store, in
// the fixed order internal/zone.AdminStateMachine enforces. Slab journals
// are not touched, and a partly filled journal block stays uncommitted. It
// is the Device's only consumer of AdminStateMachine.Suspend(); every
// phase this device has real work for gets a single-drainer slice, and
// every phase it has no work for is left empty (skipped by Suspend
// itself).
func (d *Device) Suspend(ctx context.Context) error {
	return d.admin.Suspend(ctx, func(phase zone.SuspendPhase) []zone.Drainer {
		switch phase {
		case zone.PhaseDrainPacker:
			return []zone.Drainer{func(context.Context) error {
				for _, bin := range d.packer.Flush() {
					packed, dir, err := bin.Pack()
					if err != nil {
						return err
					}
					pbn := bin.Fragments()[0].NewMapping.PBN
					if err := d.backing.WriteBlock(pbn, packed); err != nil {
						return err
					}
					d.directories[pbn] = dir
				}
				return nil
			}}
		case zone.PhaseDrainJournal:
			return []zone.Drainer{func(context.Context) error {
				if !d.journal.IsActiveBlockFull() {
					return nil
				}
				_, _, err := d.journal.CommitBlock()
				return err
			}}
		case zone.PhaseWriteSuperBlock:
			return []zone.Drainer{func(context.Context) error {
				return d.backing.Flush()
			}}
		default:
			return nil
		}
	})
}

// Resume reverses a prior Suspend. This device holds no suspended
// per-zone state to reattach (see DESIGN.md), so its resume action is a
// no-op fan-out of one Drainer, kept for symmetry with Suspend and so
// callers (cmd/vdoadm) have a consistent pair of operations to invoke.
func (d *Device) Resume(ctx context.Context) error {
	return d.admin.Resume(ctx, []zone.Drainer{func(context.Context) error { return nil }})
}

// GrowPhysical extends the volume by registering a new slab spanning the
// added physical blocks. addedBlocks must be
// positive; the new slab starts StatusRebuilt since it has never held
// any data and needs no scrubbing.
func (d *Device) GrowPhysical(ctx context.Context, addedBlocks uint64) error {
	if addedBlocks == 0 {
		return vdoerrors.ErrInvalidArgument.Errorf("vdo: grow-physical requires addedBlocks > 0")
	}
	return d.admin.GrowPhysical(ctx, func(context.Context) error {
		slabs := d.allocator.Slabs()
		start := d.cfg.PhysicalBlocks
		number := uint64(len(slabs))
		slab := slabdepot.NewSlab(number, start, start+addedBlocks, 0, 0, slabjournal.Config{
			Size:  slabJournalSize,
			Nonce: 1,
		})
		slab.Status = slabdepot.StatusRebuilt
		d.allocator.RegisterSlab(slab)
		d.cfg.PhysicalBlocks += addedBlocks
		return nil
	})
}

// GrowLogical extends the volume's addressable logical space to
// newLogicalBlocks, growing the block-map forest to fit (SPEC_FULL.md
// §C.6).
func (d *Device) GrowLogical(ctx context.Context, newLogicalBlocks uint64) error {
	return d.admin.GrowLogical(ctx, func(context.Context) error {
		d.forest.GrowToFit(newLogicalBlocks)
		return nil
	})
}

// Rebuild runs the force-rebuild admin operation (distinct from ordinary
// journal-replay recovery at attach time) by marking every slab
// StatusRequiresScrubbing. It does not itself replay any slab journal or
// recompute reference counts.
func (d *Device) Rebuild(ctx context.Context) error {
	return d.admin.Rebuild(ctx, func(context.Context) error {
		for _, slab := range d.allocator.Slabs() {
			slab.Status = slabdepot.StatusRequiresScrubbing
		}
		return nil
	})
}

// SetCompression toggles whether new writes are offered to the packer
// (spec.md §6's `compression` device-table key / the set-compression
// admin command).
func (d *Device) SetCompression(enabled bool) {
	d.cfg.Compression = enabled
	d.packer.SetCompression(enabled)
}

// CompressionEnabled reports the current compression setting.
func (d *Device) CompressionEnabled() bool { return d.packer.CompressionEnabled() }

// SetDeduplication toggles whether writes query the dedupe index at all
// (spec.md §6's `deduplication` device-table key / the
// set-deduplication admin command). When disabled, Write skips straight
// from hashing to WriteCompress.
func (d *Device) SetDeduplication(enabled bool) {
	d.cfg.Deduplication = enabled
}

// DeduplicationEnabled reports the current deduplication setting.
func (d *Device) DeduplicationEnabled() bool { return d.cfg.Deduplication }
