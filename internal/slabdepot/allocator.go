package slabdepot

import (
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/wait"
)

// priorityBuckets is MaxPriority+1 free lists of slabs, ordered so that
// slabs with more free space sort into higher buckets; allocation always
// pulls from the highest non-empty bucket first, mirroring the original
// block allocator's priority table over its free-slab ring.
type priorityBuckets [MaxPriority + 1][]*Slab

// Allocator owns one physical zone's slabs and serves block allocation
// requests from them, preferring emptier slabs to spread wear and leave
// fuller slabs available for the slab summary's compaction (struct
// block_allocator).
type Allocator struct {
	slabs []*Slab

	open     priorityBuckets
	openOnly map[uint64]bool

	allocatedBlocks uint64

	cleanWaiters wait.Queue
}

// NewAllocator constructs an empty allocator; slabs are added with
// RegisterSlab once they've been read from or formatted on disk.
func NewAllocator() *Allocator {
	return &Allocator{openOnly: make(map[uint64]bool)}
}

// RegisterSlab adds a slab to the allocator's pool. The slab begins in
// the allocator's free-slab structure if it is not unrecovered;
// unrecovered slabs are registered but excluded from allocation until
// the scrubber clears them.
func (a *Allocator) RegisterSlab(s *Slab) {
	a.slabs = append(a.slabs, s)
	if !s.IsUnrecovered() {
		a.addToFreeList(s)
	}
}

func (a *Allocator) addToFreeList(s *Slab) {
	priority := a.priorityFor(s)
	s.SetPriority(priority)
	a.open[priority] = append(a.open[priority], s)
	a.openOnly[s.Number] = true
}

// priorityFor computes a slab's free-list bucket from its fullness: the
// emptier the slab (more free blocks relative to its size), the higher
// the priority, matching calculate_slab_priority's bias toward filling
// partially-used slabs before touching fresh ones.
func (a *Allocator) priorityFor(s *Slab) uint8 {
	total := s.BlockCount()
	if total == 0 {
		return 0
	}
	free := int(s.FreeBlocks())
	priority := (free * MaxPriority) / total
	if priority > MaxPriority {
		priority = MaxPriority
	}
	return uint8(priority)
}

func (a *Allocator) removeFromFreeList(s *Slab) {
	bucket := a.open[s.Priority()]
	for i, candidate := range bucket {
		if candidate == s {
			a.open[s.Priority()] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	delete(a.openOnly, s.Number)
}

// AllocateBlock finds the highest-priority slab with a free block,
// assigns it a provisional reference, and returns its physical block
// number. Callers are expected to turn the provisional reference into a
// real one (or release it) once the write that consumes the block
// completes or fails.
func (a *Allocator) AllocateBlock() (uint64, error) {
	for priority := MaxPriority; priority >= 0; priority-- {
		bucket := a.open[priority]
		for len(bucket) > 0 {
			s := bucket[len(bucket)-1]
			idx, ok := s.RefCounts.FindFreeBlock()
			if !ok {
				// Stale entry: slab filled up since it was bucketed.
				a.removeFromFreeList(s)
				bucket = a.open[priority]
				continue
			}
			if err := s.RefCounts.AssignProvisional(idx); err != nil {
				return 0, err
			}
			a.allocatedBlocks++
			a.rebucket(s)
			return s.ToPhysicalBlock(uint32(idx)), nil
		}
	}
	return 0, vdoerrors.ErrNoSpace.Errorf("slabdepot: no free blocks available")
}

// rebucket moves a slab to the free-list bucket matching its current
// fullness, called after an allocation or release changes its free
// count.
func (a *Allocator) rebucket(s *Slab) {
	if a.openOnly[s.Number] {
		a.removeFromFreeList(s)
	}
	if !s.IsUnrecovered() {
		a.addToFreeList(s)
	}
}

// AllocatedBlocks returns the number of blocks currently allocated
// across all of this allocator's slabs.
func (a *Allocator) AllocatedBlocks() uint64 { return a.allocatedBlocks }

// UnrecoveredSlabCount returns how many registered slabs still require
// scrubbing before they may be allocated from.
func (a *Allocator) UnrecoveredSlabCount() int {
	n := 0
	for _, s := range a.slabs {
		if s.IsUnrecovered() {
			n++
		}
	}
	return n
}

// NotifySlabScrubbed moves a slab that the scrubber has just finished
// rebuilding into the allocator's free list.
func (a *Allocator) NotifySlabScrubbed(s *Slab) {
	s.Status = StatusRebuilt
	a.addToFreeList(s)
	if a.UnrecoveredSlabCount() == 0 {
		a.cleanWaiters.NotifyAll(nil, nil)
	}
}

// EnqueueForCleanSlab registers a waiter to be woken once every
// registered slab has been scrubbed.
func (a *Allocator) EnqueueForCleanSlab(w *wait.Waiter) error {
	if a.UnrecoveredSlabCount() == 0 {
		return vdoerrors.ErrInvalidArgument.Errorf("slabdepot: all slabs are already clean")
	}
	a.cleanWaiters.Enqueue(w)
	return nil
}

// Slabs returns the allocator's full slab roster, in registration order.
func (a *Allocator) Slabs() []*Slab { return a.slabs }
