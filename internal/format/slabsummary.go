package format

import vdoerrors "github.com/vdo/vdo/internal/errors"

// Slab summary entry on-disk layout.
// Grounded on original_source/vdo/base/slabSummaryInternals.h's
// struct slab_summary_entry: an 8-bit tail-block offset packed with a
// 6-bit fullness hint, a load-ref-counts bit, and a dirty bit into 16
// bits total, letting many slabs' summaries share one on-disk block
// (the "slab summary compaction" SPEC_FULL.md calls out as a dropped
// feature worth reinstating).

const (
	// SlabSummaryEntrySize is sizeof(struct slab_summary_entry): 2 bytes.
	SlabSummaryEntrySize = 2

	// SlabSummaryEntriesPerBlock is how many packed entries fit in one
	// physical block, i.e. how many slabs' state one summary block
	// covers.
	SlabSummaryEntriesPerBlock = BlockSize / SlabSummaryEntrySize

	maxFullnessHint = 1<<6 - 1
)

// SlabSummaryEntry is the decoded per-slab state the summary tracks so a
// slab's journal tail and reference-count cleanliness can be recovered
// without scanning the slab's own journal.
type SlabSummaryEntry struct {
	TailBlockOffset uint8
	FullnessHint    uint8 // 6-bit hint, 0..63
	LoadRefCounts   bool
	IsDirty         bool
}

// PackSlabSummaryEntry encodes e into its 2-byte on-disk form.
func PackSlabSummaryEntry(e SlabSummaryEntry) (uint16, error) {
	if e.FullnessHint > maxFullnessHint {
		return 0, vdoerrors.ErrInvalidArgument.Errorf(
			"format: slab summary fullness hint %d exceeds 6-bit range", e.FullnessHint)
	}
	v := uint16(e.TailBlockOffset)
	v |= uint16(e.FullnessHint) << 8
	if e.LoadRefCounts {
		v |= 1 << 14
	}
	if e.IsDirty {
		v |= 1 << 15
	}
	return v, nil
}

// UnpackSlabSummaryEntry is the inverse of PackSlabSummaryEntry.
func UnpackSlabSummaryEntry(v uint16) SlabSummaryEntry {
	return SlabSummaryEntry{
		TailBlockOffset: uint8(v),
		FullnessHint:    uint8((v >> 8) & maxFullnessHint),
		LoadRefCounts:   v&(1<<14) != 0,
		IsDirty:         v&(1<<15) != 0,
	}
}

// PackSlabSummaryBlock packs up to SlabSummaryEntriesPerBlock entries
// into a block-sized buffer.
func PackSlabSummaryBlock(entries []SlabSummaryEntry) ([]byte, error) {
	if len(entries) > SlabSummaryEntriesPerBlock {
		return nil, vdoerrors.ErrInvalidArgument.Errorf(
			"format: %d slab summary entries exceed per-block capacity %d",
			len(entries), SlabSummaryEntriesPerBlock)
	}
	buf := make([]byte, BlockSize)
	for i, e := range entries {
		packed, err := PackSlabSummaryEntry(e)
		if err != nil {
			return nil, err
		}
		PutUint16LE(buf[i*SlabSummaryEntrySize:], packed)
	}
	return buf, nil
}

// UnpackSlabSummaryBlock decodes all SlabSummaryEntriesPerBlock entries
// from a block-sized buffer.
func UnpackSlabSummaryBlock(buf []byte) ([]SlabSummaryEntry, error) {
	if len(buf) < BlockSize {
		return nil, vdoerrors.ErrCorruptJournal.Errorf(
			"format: slab summary block truncated: got %d bytes, want %d", len(buf), BlockSize)
	}
	entries := make([]SlabSummaryEntry, SlabSummaryEntriesPerBlock)
	for i := range entries {
		entries[i] = UnpackSlabSummaryEntry(GetUint16LE(buf[i*SlabSummaryEntrySize:]))
	}
	return entries, nil
}
