package slabdepot

import (
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/journalpoint"
	"github.com/vdo/vdo/internal/refcount"
)

// Scrubber rebuilds the reference-count array of slabs whose journal
// holds entries not yet reflected in their saved reference counts, by
// replaying every journal entry in order. It processes one
// slab at a time; high-priority slabs (those blocking allocation) are
// always scrubbed before ordinary ones (struct slab_scrubber).
type Scrubber struct {
	highPriority []*Slab
	ordinary     []*Slab

	current *Slab

	// minimumRecoverySequence records the lowest recovery-journal
	// sequence number any queued slab's journal still references; VDO's
	// recovery journal cannot reap past this until scrubbing catches up
	// (mirrors struct slab_scrubber's recoveryJournal interaction).
	minimumRecoverySequence uint64
}

// NewScrubber creates an empty scrubber.
func NewScrubber() *Scrubber { return &Scrubber{} }

// HasSlabsToScrub reports whether any slab is queued or in progress.
func (s *Scrubber) HasSlabsToScrub() bool {
	return s.current != nil || len(s.highPriority) > 0 || len(s.ordinary) > 0
}

// Register queues slab for scrubbing, on the high-priority list if
// highPriority is set (e.g. because an allocation attempt blocked on
// it), otherwise on the ordinary list.
func (s *Scrubber) Register(slab *Slab, highPriority bool) {
	slab.WasQueuedForScrubbing = true
	if highPriority {
		slab.Status = StatusRequiresHighPriorityScrubbing
		s.highPriority = append(s.highPriority, slab)
	} else {
		slab.Status = StatusRequiresScrubbing
		s.ordinary = append(s.ordinary, slab)
	}
}

// next pops the next slab to scrub, preferring the high-priority queue.
func (s *Scrubber) next() *Slab {
	if len(s.highPriority) > 0 {
		slab := s.highPriority[0]
		s.highPriority = s.highPriority[1:]
		return slab
	}
	if len(s.ordinary) > 0 {
		slab := s.ordinary[0]
		s.ordinary = s.ordinary[1:]
		return slab
	}
	return nil
}

// ScrubNext begins rebuilding the next queued slab's reference counts,
// replaying entries in journal order starting from the slab's saved
// last-applied point (replay loop). It returns nil if there
// is nothing left to scrub. The caller supplies entries already read
// from the slab's on-disk journal blocks, in ascending journal-point
// order; ScrubNext does not itself perform I/O.
func (s *Scrubber) ScrubNext(entries []ScrubEntry) (*Slab, error) {
	slab := s.next()
	if slab == nil {
		return nil, nil
	}
	s.current = slab
	slab.Status = StatusRebuilding

	for _, e := range entries {
		if err := slab.RefCounts.Replay(toRefcountEntry(e)); err != nil {
			return nil, vdoerrors.ErrCorruptJournal.Wrap(err, "slabdepot: scrubbing slab")
		}
	}

	slab.Status = StatusRebuilt
	s.current = nil
	return slab, nil
}

// ScrubEntry is one journal entry replayed during scrubbing; it is the
// scrubber's I/O-agnostic view of a slabjournal.Entry once unpacked from
// disk.
type ScrubEntry struct {
	Point           journalpoint.Point
	BlockIdx        int
	Increment       bool
	IsBlockMapEntry bool
	HasLock         bool
}

func toRefcountEntry(e ScrubEntry) refcount.Entry {
	op := refcount.OpDataAdd
	switch {
	case e.IsBlockMapEntry:
		op = refcount.OpBlockMapAdd
	case !e.Increment:
		op = refcount.OpDataSubtract
	}
	return refcount.Entry{
		Point:           e.Point,
		BlockIdx:        e.BlockIdx,
		Operation:       op,
		HasLock:         e.HasLock,
		NormalOperation: true,
	}
}
