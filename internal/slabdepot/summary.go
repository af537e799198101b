package slabdepot

import (
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/format"
)

// Summary is the in-memory half of the slab summary: a compact,
// always-resident table recording each slab's journal tail location and
// reference-count cleanliness, so a slab need not be scanned to tell
// whether it requires scrubbing ('s
// "slab summary compaction" - many slabs' entries packed per on-disk
// block via internal/format's SlabSummaryEntriesPerBlock rather than one
// block per slab).
//
// Grounded on original_source/vdo/base/slabSummary.c/.h
// (update_slab_summary_entry, get_summarized_tail_block_offset,
// must_load_ref_counts).
type Summary struct {
	entries []format.SlabSummaryEntry
}

// NewSummary creates a summary sized for slabCount slabs, all initially
// marked dirty (requiring their reference counts to be loaded/rebuilt),
// matching a freshly formatted VDO where nothing has been saved yet.
func NewSummary(slabCount int) *Summary {
	entries := make([]format.SlabSummaryEntry, slabCount)
	for i := range entries {
		entries[i] = format.SlabSummaryEntry{LoadRefCounts: true, IsDirty: true}
	}
	return &Summary{entries: entries}
}

// Update records a slab's current journal tail offset and cleanliness.
// tailBlockOffset is the journal's tail sequence number modulo its
// block count, matching get_slab_journal_block_offset.
func (s *Summary) Update(slabNumber uint64, tailBlockOffset uint8, fullnessHint uint8, loadRefCounts, isDirty bool) error {
	if int(slabNumber) >= len(s.entries) {
		return vdoerrors.ErrOutOfRange.Errorf("slabdepot: slab number %d out of range [0,%d)", slabNumber, len(s.entries))
	}
	s.entries[slabNumber] = format.SlabSummaryEntry{
		TailBlockOffset: tailBlockOffset,
		FullnessHint:    fullnessHint,
		LoadRefCounts:   loadRefCounts,
		IsDirty:         isDirty,
	}
	return nil
}

// Get returns a slab's current summary entry.
func (s *Summary) Get(slabNumber uint64) (format.SlabSummaryEntry, error) {
	if int(slabNumber) >= len(s.entries) {
		return format.SlabSummaryEntry{}, vdoerrors.ErrOutOfRange.Errorf(
			"slabdepot: slab number %d out of range [0,%d)", slabNumber, len(s.entries))
	}
	return s.entries[slabNumber], nil
}

// RequiresScrubbing reports whether the slab's entry indicates its
// reference counts must be loaded or rebuilt rather than trusted
// as-is (must_load_ref_counts's dirty-or-must-load check).
func (s *Summary) RequiresScrubbing(slabNumber uint64) (bool, error) {
	e, err := s.Get(slabNumber)
	if err != nil {
		return false, err
	}
	return e.IsDirty || e.LoadRefCounts, nil
}

// BlocksNeeded returns how many on-disk blocks this summary needs to
// store all of its entries, given the compaction ratio in
// internal/format.
func (s *Summary) BlocksNeeded() int {
	n := len(s.entries) / format.SlabSummaryEntriesPerBlock
	if len(s.entries)%format.SlabSummaryEntriesPerBlock != 0 {
		n++
	}
	return n
}

// PackBlock packs the entries belonging to on-disk block index i
// (many-slabs-per-block compaction).
func (s *Summary) PackBlock(blockIndex int) ([]byte, error) {
	start := blockIndex * format.SlabSummaryEntriesPerBlock
	if start >= len(s.entries) {
		return nil, vdoerrors.ErrOutOfRange.Errorf("slabdepot: summary block index %d out of range", blockIndex)
	}
	end := start + format.SlabSummaryEntriesPerBlock
	if end > len(s.entries) {
		end = len(s.entries)
	}
	return format.PackSlabSummaryBlock(s.entries[start:end])
}
