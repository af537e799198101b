// Package refcount implements the per-slab reference-count array: one
// 8-bit counter per physical data block the slab covers, modeled as a
// sum type of four value classes rather than a raw integer, per the
// design note on manual reference counting with provisional references.
package refcount

import (
	"fmt"

	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/invariants"
	"github.com/vdo/vdo/internal/journalpoint"
)

// Status classifies a counter's encoded value.
type Status uint8

const (
	StatusFree Status = iota
	StatusSingle
	StatusShared
	StatusProvisional
)

// Encoded 8-bit counter values: 0, 1..253, provisional, shared; shared
// saturates at 255 and never decreases once reached.
const (
	empty       uint8 = 0
	maxCount    uint8 = 253 // highest representable exact count
	provisional uint8 = 254
	shared      uint8 = 255
)

// Count is the encoded 8-bit representation of one block's reference state.
type Count uint8

// Status decodes the value class of c.
func (c Count) Status() Status {
	switch {
	case uint8(c) == empty:
		return StatusFree
	case uint8(c) == provisional:
		return StatusProvisional
	case uint8(c) == shared:
		return StatusShared
	default:
		return StatusSingle
	}
}

// Value returns the exact reference count represented by c, valid only when
// Status == StatusSingle (or StatusFree, which is 0). Shared and
// provisional have no exact count (shared means "too many to count";
// provisional means a reservation, not a real reference yet).
func (c Count) Value() (uint8, bool) {
	switch c.Status() {
	case StatusFree:
		return 0, true
	case StatusSingle:
		return uint8(c), true
	default:
		return 0, false
	}
}

// Array is one slab's reference-count table plus the bookkeeping needed to
// replay slab-journal entries into it idempotently.
type Array struct {
	counts     []Count
	freeBlocks uint64

	// slabJournalPoint is the journal point of the last entry applied;
	// replay skips any entry at or before this point.
	slabJournalPoint journalpoint.Point
}

// NewArray creates an all-free reference-count array covering n data
// blocks.
func NewArray(n int) *Array {
	return &Array{
		counts:     make([]Count, n),
		freeBlocks: uint64(n),
	}
}

// Len returns the number of blocks covered.
func (a *Array) Len() int { return len(a.counts) }

// FreeBlocks returns the number of blocks whose status is StatusFree.
func (a *Array) FreeBlocks() uint64 { return a.freeBlocks }

// Get returns the counter for block index i.
func (a *Array) Get(i int) Count {
	invariants.CheckBounds(i, len(a.counts))
	return a.counts[i]
}

// LastAppliedPoint returns the journal point of the most recently applied
// entry.
func (a *Array) LastAppliedPoint() journalpoint.Point { return a.slabJournalPoint }

// SetLastAppliedPoint restores the replay cursor, e.g. after loading a
// persisted reference-count block whose header records the point at which
// it was last saved.
func (a *Array) SetLastAppliedPoint(p journalpoint.Point) { a.slabJournalPoint = p }

// Operation identifies a slab-journal reference-count delta kind.
type Operation uint8

const (
	OpDataAdd Operation = iota
	OpDataSubtract
	OpBlockMapAdd
)

// Entry is one slab-journal reference-count change.
type Entry struct {
	Point     journalpoint.Point
	BlockIdx  int
	Operation Operation
	// HasLock is true when a pbn_lock is associated with this update,
	// governing whether decrementing to zero leaves a provisional
	// reference behind, mirroring increment_for_data /
	// decrement_for_data's lock-aware behavior.
	HasLock bool
	// NormalOperation distinguishes live operation from recovery/rebuild
	// replay, used only by block-map increments (original's
	// increment_for_block_map).
	NormalOperation bool
}

// Replay applies entry to the array. It is idempotent with respect to
// LastAppliedPoint: an entry at or before the last-applied point is
// skipped, matching replay_reference_count_change contract.
func (a *Array) Replay(entry Entry) error {
	if !journalpoint.Before(a.slabJournalPoint, entry.Point) {
		return nil
	}
	if entry.BlockIdx < 0 || entry.BlockIdx >= len(a.counts) {
		return vdoerrors.ErrOutOfRange.Errorf("refcount: block index %d out of range [0,%d)", entry.BlockIdx, len(a.counts))
	}

	var err error
	switch entry.Operation {
	case OpDataAdd:
		err = a.incrementData(entry.BlockIdx, entry.HasLock)
	case OpDataSubtract:
		err = a.decrementData(entry.BlockIdx, entry.HasLock)
	case OpBlockMapAdd:
		err = a.incrementBlockMap(entry.BlockIdx, entry.NormalOperation)
	default:
		return vdoerrors.ErrInvalidArgument.Errorf("refcount: unknown operation %d", entry.Operation)
	}
	if err != nil {
		return err
	}
	a.slabJournalPoint = entry.Point
	return nil
}

func (a *Array) incrementData(i int, hasLock bool) error {
	c := a.counts[i]
	switch c.Status() {
	case StatusFree:
		a.counts[i] = Count(1)
		a.freeBlocks = invariants.SafeSub(a.freeBlocks, 1)
	case StatusProvisional:
		a.counts[i] = Count(1)
	default:
		if uint8(c) >= maxCount {
			a.counts[i] = Count(shared)
			return nil
		}
		a.counts[i] = Count(uint8(c) + 1)
	}
	return nil
}

func (a *Array) decrementData(i int, hasLock bool) error {
	c := a.counts[i]
	switch c.Status() {
	case StatusFree:
		return vdoerrors.ErrBadState.Errorf("refcount: decrementing free block at offset %d", i)
	case StatusProvisional:
		fallthrough
	case StatusSingle:
		if v, _ := c.Value(); c.Status() == StatusSingle && v > 1 {
			a.counts[i] = Count(v - 1)
			return nil
		}
		// Dropping to zero references.
		if hasLock {
			// A read lock exists on this block: leave a
			// provisional reference rather than freeing it.
			a.counts[i] = Count(provisional)
		} else {
			a.counts[i] = Count(empty)
			a.freeBlocks++
		}
	case StatusShared:
		// Shared is saturating: a decrement from "too many to count"
		// stays shared, since the real count is unknown.
	}
	return nil
}

func (a *Array) incrementBlockMap(i int, normalOperation bool) error {
	c := a.counts[i]
	switch c.Status() {
	case StatusFree:
		if normalOperation {
			return vdoerrors.ErrBadState.Errorf("refcount: incrementing unallocated block-map block at offset %d", i)
		}
		a.counts[i] = Count(shared)
		a.freeBlocks = invariants.SafeSub(a.freeBlocks, 1)
	case StatusProvisional:
		a.counts[i] = Count(shared)
	default:
		// Block map blocks never dedupe; re-incrementing an
		// already-maximal block map reference is a no-op.
		a.counts[i] = Count(shared)
	}
	return nil
}

// FindFreeBlock returns the index of an arbitrary free block, if one
// exists. The block allocator calls this before AssignProvisional when
// handing out a new physical block; which free block is returned is
// unspecified beyond "some free block", matching the
// original's hint-guided linear search (search_reference_blocks) without
// committing to its specific starting-offset heuristic.
func (a *Array) FindFreeBlock() (int, bool) {
	if a.freeBlocks == 0 {
		return 0, false
	}
	for i, c := range a.counts {
		if c.Status() == StatusFree {
			return i, true
		}
	}
	return 0, false
}

// AssignProvisional marks block i provisional, e.g. when a new PBN is
// allocated for a write in flight.
func (a *Array) AssignProvisional(i int) error {
	c := a.counts[i]
	if c.Status() != StatusFree {
		return vdoerrors.ErrBadState.Errorf("refcount: assigning provisional reference to non-free block %d (status %d)", i, c.Status())
	}
	a.counts[i] = Count(provisional)
	a.freeBlocks = invariants.SafeSub(a.freeBlocks, 1)
	return nil
}

// String renders a counter for debugging/dump-status.
func (c Count) String() string {
	switch c.Status() {
	case StatusFree:
		return "free"
	case StatusProvisional:
		return "provisional"
	case StatusShared:
		return "shared"
	default:
		v, _ := c.Value()
		return fmt.Sprintf("%d", v)
	}
}
