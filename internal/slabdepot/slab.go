// Package slabdepot ties together the per-slab reference-count array and
// slab journal into the pool of physical-block allocators and the
// scrubber that rebuilds a slab's reference counts from its journal
// before the slab may be trusted.
//
// Grounded on original_source/vdo/base/slab.c, blockAllocator.c, and
// slabScrubber.c.
package slabdepot

import (
	"github.com/vdo/vdo/internal/refcount"
	"github.com/vdo/vdo/internal/slabjournal"
)

// Status mirrors SlabRebuildStatus: whether a slab's reference counts can
// be trusted or must be rebuilt from its journal before use.
type Status int

const (
	StatusRebuilt Status = iota
	StatusRequiresScrubbing
	StatusRequiresHighPriorityScrubbing
	StatusRebuilding
	StatusReplaying
)

// MaxPriority bounds the allocation-priority range a slab can occupy
// (priority-bucketed free list), matching the original's
// 8-bit priority field kept small in practice.
const MaxPriority = 15

// Slab is one fixed-size extent of physical blocks together with its
// reference-count array and journal (struct vdo_slab).
type Slab struct {
	Number          uint64
	Start           uint64
	End             uint64
	JournalOrigin   uint64
	RefCountsOrigin uint64

	RefCounts *refcount.Array
	Journal   *slabjournal.Journal

	Status                Status
	WasQueuedForScrubbing bool
	priority              uint8
}

// NewSlab constructs a slab spanning [start, end) physical blocks, with
// a reference-count array sized to match and its own journal.
func NewSlab(number, start, end, journalOrigin, refCountsOrigin uint64, journalCfg slabjournal.Config) *Slab {
	blockCount := int(end - start)
	return &Slab{
		Number:          number,
		Start:           start,
		End:             end,
		JournalOrigin:   journalOrigin,
		RefCountsOrigin: refCountsOrigin,
		RefCounts:       refcount.NewArray(blockCount),
		Journal:         slabjournal.New(journalCfg),
		Status:          StatusRequiresScrubbing,
	}
}

// BlockCount returns the number of physical data blocks in the slab.
func (s *Slab) BlockCount() int { return int(s.End - s.Start) }

// FreeBlocks returns the number of unreferenced data blocks.
func (s *Slab) FreeBlocks() uint64 { return s.RefCounts.FreeBlocks() }

// IsUnrecovered reports whether this slab's reference counts must still
// be rebuilt from the journal before blocks may be allocated from it.
func (s *Slab) IsUnrecovered() bool {
	return s.Status == StatusRequiresScrubbing || s.Status == StatusRequiresHighPriorityScrubbing
}

// Priority returns the slab's current allocation priority: free slabs
// with more free blocks are preferred, matching the original's
// fullness-bucketed free list in the block allocator.
func (s *Slab) Priority() uint8 { return s.priority }

// SetPriority records the bucket this slab currently occupies in its
// allocator's free list.
func (s *Slab) SetPriority(p uint8) {
	if p > MaxPriority {
		p = MaxPriority
	}
	s.priority = p
}

// ToPhysicalBlock translates a slab-relative block offset to an
// absolute physical block number.
func (s *Slab) ToPhysicalBlock(offset uint32) uint64 { return s.Start + uint64(offset) }

// ToSlabBlockOffset is the inverse of ToPhysicalBlock; the caller must
// ensure pbn falls within [Start, End).
func (s *Slab) ToSlabBlockOffset(pbn uint64) uint32 { return uint32(pbn - s.Start) }
