package vdo

import (
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/format"
	"github.com/vdo/vdo/internal/slabdepot"
)

// readMapping returns the block map's current mapping for lbn, growing
// the forest first if lbn falls outside its current logical address
// space (grow_logical path, driven here eagerly rather than
// through the admin state machine since a fresh forest starts empty).
func (d *Device) readMapping(lbn uint64) (format.Mapping, error) {
	d.forest.GrowToFit(lbn + 1)
	tree, leafIndex, slot, err := d.forest.SlotFor(lbn)
	if err != nil {
		return format.Mapping{}, err
	}
	page, err := tree.PageAt(0, leafIndex)
	if err != nil {
		return format.Mapping{}, err
	}
	// This device keeps every forest page resident in memory rather
	// than paging leaf pages in from disk through a blockmap.PageCache
	// (see DESIGN.md), so every lookup is a cache hit; the miss gauge
	// is wired for a future PageCache-backed Device.
	d.gauges.BlockMapCacheHits.Inc()
	return page.Entries[slot], nil
}

// writeMapping records mapping as lbn's new block-map entry, the final
// step of a write's journal/block-map update pair
// (update_block_map_for_write).
func (d *Device) writeMapping(lbn uint64, mapping format.Mapping) error {
	tree, leafIndex, slot, err := d.forest.SlotFor(lbn)
	if err != nil {
		return err
	}
	page, err := tree.PageAt(0, leafIndex)
	if err != nil {
		return err
	}
	page.Entries[slot] = mapping
	page.Dirty = true
	page.Generation++
	return nil
}

// slabBlockIndex resolves a physical block number to the slab that owns
// it and its reference-count index within that slab. Format and Load
// register one slab spanning the whole volume and GrowPhysical appends
// more (see DESIGN.md), so resolution scans the registered slabs for
// the one whose [Start, End) range holds pbn.
func (d *Device) slabBlockIndex(pbn uint64) (int, *slabdepot.Slab, error) {
	slabs := d.allocator.Slabs()
	if len(slabs) == 0 {
		return 0, nil, vdoerrors.ErrBadState.Errorf("vdo: no slabs registered")
	}
	for _, slab := range slabs {
		if pbn >= slab.Start && pbn < slab.End {
			return int(slab.ToSlabBlockOffset(pbn)), slab, nil
		}
	}
	return 0, nil, vdoerrors.ErrOutOfRange.Errorf("vdo: pbn %d outside every registered slab's range", pbn)
}
