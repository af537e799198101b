// Package recoveryjournal implements VDO's system-wide write-ahead log
//: a circular sequence of blocks recording every block-map
// slot update, grouped into batched commits and reaped independently
// against two downstream consumers - the block map (which must apply
// entries before they may be forgotten) and the slab journals (which
// must persist the corresponding reference-count deltas).
//
// Grounded on original_source/vdo/recoveryJournal.c (add_entry,
// assign_entries, reap_recovery_journal's dual block_map_head/
// slab_journal_head advancement) and recoveryJournalInternals.h.
package recoveryjournal

import (
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/format"
	"github.com/vdo/vdo/internal/journalpoint"
	"github.com/vdo/vdo/internal/wait"
)

// blockLock tracks, for one on-disk journal block, how many outstanding
// references the block map and the slab journals respectively still
// hold against it - mirroring the original's struct lock_counter, which
// VDO generalizes across zone types; this package only needs the two
// consumer kinds the spec names.
type blockLock struct {
	blockMapCount    uint32
	slabJournalCount uint32
}

// Entry is one recovery journal entry paired with whether it is an
// increment or decrement, prior to being assigned a journal point and
// packed.
type Entry struct {
	Slot      format.Slot
	Mapping   format.Mapping
	Operation uint8
	Increment bool
}

// Journal is the circular write-ahead log. Size must be a power of two,
// matching compute_recovery_journal_block_number's modulus-via-mask
// trick.
type Journal struct {
	size  uint64
	nonce uint64

	availableSpace  uint64
	entriesPerBlock uint64

	blockMapHead    uint64
	slabJournalHead uint64
	lastWriteAcked  uint64
	tail            uint64

	appendPoint journalpoint.Point

	locks []blockLock

	activeEntries []Entry
	recoveryCount uint8

	logicalBlocksUsed  uint64
	blockMapDataBlocks uint64

	incrementWaiters wait.Queue
	decrementWaiters wait.Queue

	reaping bool
}

// Config parameterizes a new journal.
type Config struct {
	Size  uint64 // must be a power of two
	Nonce uint64
}

// New creates an empty journal with head == tail == 1.
func New(cfg Config) (*Journal, error) {
	if cfg.Size == 0 || cfg.Size&(cfg.Size-1) != 0 {
		return nil, vdoerrors.ErrInvalidArgument.Errorf("recoveryjournal: size %d is not a power of two", cfg.Size)
	}
	entriesPerBlock := uint64(format.RecoveryJournalEntriesPerBlock)
	return &Journal{
		size:            cfg.Size,
		nonce:           cfg.Nonce,
		entriesPerBlock: entriesPerBlock,
		availableSpace:  entriesPerBlock * cfg.Size,
		blockMapHead:    1,
		slabJournalHead: 1,
		lastWriteAcked:  0,
		tail:            1,
		locks:           make([]blockLock, cfg.Size),
	}, nil
}

func (j *Journal) blockIndex(seq uint64) int { return int(seq & (j.size - 1)) }

// head returns the oldest block number either consumer still needs.
func (j *Journal) head() uint64 {
	if j.blockMapHead < j.slabJournalHead {
		return j.blockMapHead
	}
	return j.slabJournalHead
}

// HasRoomForEntry reports whether the journal has space for another
// entry without first reaping (check_for_entry_space). Decrements
// always have a reserved slot once the journal is open; this package
// models only the simpler "any available space" gate, leaving the
// decrement-reservation refinement as a caller-side policy.
func (j *Journal) HasRoomForEntry() bool { return j.availableSpace > 0 }

// AddEntry appends entry to the journal's in-memory active block,
// assigning it the next journal point and locking its on-disk block
// against reaping until the corresponding block-map and slab-journal
// work completes. Returns the journal point assigned to this entry.
func (j *Journal) AddEntry(entry Entry) (journalpoint.Point, error) {
	if !j.HasRoomForEntry() {
		return journalpoint.Point{}, vdoerrors.ErrComponentBusy.Errorf(
			"recoveryjournal: no available space, reap required")
	}

	point := journalpoint.Point{SequenceNumber: j.tail, EntryCount: uint16(len(j.activeEntries))}
	j.activeEntries = append(j.activeEntries, entry)
	j.availableSpace--

	idx := j.blockIndex(j.tail)
	j.locks[idx].blockMapCount++
	j.locks[idx].slabJournalCount++

	if entry.Increment {
		j.logicalBlocksUsed++
	}
	j.appendPoint = point
	return point, nil
}

// IsActiveBlockFull reports whether the in-memory active block has
// reached its entry-count cap and must be committed before more entries
// can be added to it (a fresh block then becomes active).
func (j *Journal) IsActiveBlockFull() bool {
	return uint64(len(j.activeEntries)) >= j.entriesPerBlock
}

// CommitBlock packs the active block's accumulated entries into its
// on-disk form and advances the tail, starting a fresh active block.
// This is the group-commit boundary: every entry added
// since the previous commit lands in the same write.
func (j *Journal) CommitBlock() ([]byte, format.RecoveryJournalBlockHeader, error) {
	if len(j.activeEntries) == 0 {
		return nil, format.RecoveryJournalBlockHeader{}, vdoerrors.ErrInvalidArgument.Errorf(
			"recoveryjournal: cannot commit an empty block")
	}

	seq := j.tail
	header := format.RecoveryJournalBlockHeader{
		BlockMapHead:       j.blockMapHead,
		SlabJournalHead:    j.slabJournalHead,
		SequenceNumber:     seq,
		Nonce:              j.nonce,
		LogicalBlocksUsed:  j.logicalBlocksUsed,
		BlockMapDataBlocks: j.blockMapDataBlocks,
		EntryCount:         uint16(len(j.activeEntries)),
		CheckByte:          format.ComputeRecoveryCheckByte(seq, j.size),
		RecoveryCount:      j.recoveryCount,
		MetadataType:       format.RecoveryJournalMetadataType,
	}

	buf := make([]byte, format.BlockSize)
	copy(buf, format.PackRecoveryJournalBlockHeader(header))
	offset := format.RecoveryJournalBlockHeaderSize
	for _, e := range j.activeEntries {
		packed, err := format.PackRecoveryJournalEntry(format.RecoveryJournalEntry{
			Slot:      e.Slot,
			Mapping:   e.Mapping,
			Operation: e.Operation,
		})
		if err != nil {
			return nil, format.RecoveryJournalBlockHeader{}, err
		}
		copy(buf[offset:offset+format.RecoveryJournalEntrySize], packed[:])
		offset += format.RecoveryJournalEntrySize
	}

	j.activeEntries = nil
	j.tail++
	return buf, header, nil
}

// NotifyWriteAcknowledged records that the write for sequence number seq
// has landed durably, and attempts a reap.
func (j *Journal) NotifyWriteAcknowledged(seq uint64) {
	if seq > j.lastWriteAcked {
		j.lastWriteAcked = seq
	}
	j.tryReap()
}

// ReleaseBlockMapLock releases one block-map-held reference on the
// journal block at sequence number seq, called once the corresponding
// block map page update is durable.
func (j *Journal) ReleaseBlockMapLock(seq uint64) error {
	idx := j.blockIndex(seq)
	if j.locks[idx].blockMapCount == 0 {
		return vdoerrors.ErrBadState.Errorf("recoveryjournal: block-map lock underflow at sequence %d", seq)
	}
	j.locks[idx].blockMapCount--
	j.tryReap()
	return nil
}

// ReleaseSlabJournalLock releases one slab-journal-held reference on the
// journal block at sequence number seq, called once the corresponding
// slab journal entry is durable.
func (j *Journal) ReleaseSlabJournalLock(seq uint64) error {
	idx := j.blockIndex(seq)
	if j.locks[idx].slabJournalCount == 0 {
		return vdoerrors.ErrBadState.Errorf("recoveryjournal: slab-journal lock underflow at sequence %d", seq)
	}
	j.locks[idx].slabJournalCount--
	j.tryReap()
	return nil
}

// tryReap advances blockMapHead and slabJournalHead independently, each
// as far as its own lock counts and the last-acknowledged write allow,
// matching reap_recovery_journal's two scan loops, then folds any
// progress into availableSpace.
func (j *Journal) tryReap() {
	if j.reaping {
		return
	}
	oldHead := j.head()

	for j.blockMapHead < j.lastWriteAcked && j.locks[j.blockIndex(j.blockMapHead)].blockMapCount == 0 {
		j.blockMapHead++
	}
	for j.slabJournalHead < j.lastWriteAcked && j.locks[j.blockIndex(j.slabJournalHead)].slabJournalCount == 0 {
		j.slabJournalHead++
	}

	if newHead := j.head(); newHead > oldHead {
		j.availableSpace += (newHead - oldHead) * j.entriesPerBlock
	}
}

// BlockMapHead, SlabJournalHead, Tail, AvailableSpace expose the
// journal's reap/tail cursors for status reporting and tests.
func (j *Journal) BlockMapHead() uint64    { return j.blockMapHead }
func (j *Journal) SlabJournalHead() uint64 { return j.slabJournalHead }
func (j *Journal) Tail() uint64            { return j.tail }
func (j *Journal) AvailableSpace() uint64  { return j.availableSpace }

// EnqueueIncrementWaiter/EnqueueDecrementWaiter queue a vio waiting for
// room to make its entry, matching the journal's separate increment and
// decrement wait queues (decrements are prioritized elsewhere since they
// always have reserved space once the journal is open; this package
// only provides the two queues for a caller to apply that policy).
func (j *Journal) EnqueueIncrementWaiter(w *wait.Waiter) { j.incrementWaiters.Enqueue(w) }
func (j *Journal) EnqueueDecrementWaiter(w *wait.Waiter) { j.decrementWaiters.Enqueue(w) }

// NotifyEntrySpaceAvailable wakes waiters once a commit or reap frees up
// room, decrement waiters first since they must never be blocked behind
// increments for long (mirrors assign_entries' decrement-first order).
func (j *Journal) NotifyEntrySpaceAvailable() {
	j.decrementWaiters.NotifyAll(nil, nil)
	j.incrementWaiters.NotifyAll(nil, nil)
}
