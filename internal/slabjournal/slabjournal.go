// Package slabjournal implements the per-slab write-ahead log of
// reference-count adjustments: a small circular sequence of
// blocks, each packed in the on-disk layout defined by internal/format,
// that is flushed ahead of the reference-count array itself and reaped
// once its entries are reflected durably in the slab's ref-count blocks.
//
// Grounded on original_source/vdo/base/slabJournal.c and
// slabJournalInternals.h (struct slab_journal, addEntry/reapSlabJournal).
package slabjournal

import (
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/format"
	"github.com/vdo/vdo/internal/journalpoint"
	"github.com/vdo/vdo/internal/wait"
)

// Entry is a single in-memory slab journal entry prior to packing
// (offset within the slab, increment/decrement, and whether it is a
// block-map rather than a data adjustment).
type Entry struct {
	BlockOffset     uint32
	Increment       bool
	IsBlockMapEntry bool
	RecoveryPoint   journalpoint.Point
}

// lock tracks how many uncommitted entries hold a reap-blocking
// reference on a given on-disk journal block, mirroring struct
// journal_lock.
type lock struct {
	count         uint16
	recoveryStart uint64
}

// Journal is a single slab's write-ahead log. It is not safe for
// concurrent use without external synchronization; in VDO's zone model
// each slab journal is only ever touched by its own physical zone
// thread.
type Journal struct {
	size               int
	entriesPerBlock    int
	fullEntriesPerBlock int

	flushingThreshold  int
	blockingThreshold  int
	scrubbingThreshold int

	nonce uint64

	head       uint64
	unreapable uint64
	tail       uint64
	nextCommit uint64

	locks   []lock
	reapIdx int

	tailEntries  []Entry
	tailHeader   format.SlabJournalBlockHeader

	recoveryLock uint64

	entryWaiters wait.Queue

	waitingToCommit bool
}

// Config parameterizes a new slab journal; Size is the number of on-disk
// blocks the journal is allotted, which bounds how many uncommitted
// sequence numbers can be outstanding at once.
type Config struct {
	Size    int
	Nonce   uint64
	// FlushingThreshold/BlockingThreshold/ScrubbingThreshold gate
	// reference-block flushing pressure as the journal fills
	//; expressed as fractions of Size the way
	// vdo_configure_slab_journal derives them from slab_journal_blocks.
	FlushingThreshold  int
	BlockingThreshold  int
	ScrubbingThreshold int
}

// New creates an empty slab journal with head == tail == 1 (sequence
// number 0 is never used, matching the original's convention that a
// zero sequence number means "no block").
func New(cfg Config) *Journal {
	if cfg.Size <= 0 {
		panic("slabjournal: size must be positive")
	}
	return &Journal{
		size:                cfg.Size,
		entriesPerBlock:     format.SlabJournalEntriesPerBlock,
		fullEntriesPerBlock: format.SlabJournalFullEntriesPerBlock,
		flushingThreshold:   cfg.FlushingThreshold,
		blockingThreshold:   cfg.BlockingThreshold,
		scrubbingThreshold:  cfg.ScrubbingThreshold,
		nonce:               cfg.Nonce,
		head:                1,
		unreapable:          1,
		tail:                1,
		nextCommit:          1,
		locks:               make([]lock, cfg.Size),
	}
}

// Head returns the oldest sequence number still on disk.
func (j *Journal) Head() uint64 { return j.head }

// Tail returns the end of the half-open interval of active blocks; the
// block currently being accumulated has this sequence number.
func (j *Journal) Tail() uint64 { return j.tail }

// Unreapable returns the oldest block sequence number that may not yet
// be reaped because it still holds references.
func (j *Journal) Unreapable() bool { return j.head != j.unreapable }

// blocksUsed returns the number of blocks between head and tail
// (inclusive of the in-progress tail block).
func (j *Journal) blocksUsed() int {
	return int(j.tail - j.head + 1)
}

// MustReapBeforeAdd reports whether the journal must reap at least one
// block before it can accept new entries, matching
// must_make_entries_to_flush/requires_reaping's blocking behavior.
func (j *Journal) MustReapBeforeAdd() bool {
	return j.blocksUsed() >= j.size
}

// IsFull reports whether the current tail block has no room for another
// entry of the given kind.
func (j *Journal) IsFull(isBlockMapEntry bool) bool {
	capacity := j.entriesPerBlock
	if j.hasBlockMapEntries() || isBlockMapEntry {
		capacity = j.fullEntriesPerBlock
	}
	return len(j.tailEntries) >= capacity
}

func (j *Journal) hasBlockMapEntries() bool {
	for _, e := range j.tailEntries {
		if e.IsBlockMapEntry {
			return true
		}
	}
	return false
}

// AddEntry appends an entry to the current tail block. It fails if the
// journal must first reap (no room for new blocks) or if the current
// tail block is already full - callers are expected to check
// MustReapBeforeAdd/IsFull and commit the tail first per .
func (j *Journal) AddEntry(e Entry) error {
	if j.MustReapBeforeAdd() {
		return vdoerrors.ErrComponentBusy.Errorf("slabjournal: journal full, must reap before adding entries")
	}
	if j.IsFull(e.IsBlockMapEntry) {
		return vdoerrors.ErrComponentBusy.Errorf("slabjournal: tail block is full, must commit before adding entries")
	}
	j.tailEntries = append(j.tailEntries, e)
	j.lockBlock(j.tail)
	return nil
}

// lockBlock adds a reap-blocking reference for sequence number seq.
func (j *Journal) lockBlock(seq uint64) {
	j.locks[j.blockIndex(seq)].count++
}

// unlockBlock releases a reap-blocking reference for sequence number
// seq, called once the corresponding reference-count update has been
// made durable.
func (j *Journal) unlockBlock(seq uint64) {
	idx := j.blockIndex(seq)
	if j.locks[idx].count == 0 {
		panic("slabjournal: unlock of unlocked block")
	}
	j.locks[idx].count--
}

func (j *Journal) blockIndex(seq uint64) int {
	return int(seq % uint64(j.size))
}

// CommitTail packs the accumulated tail entries into a block ready for
// writing, advances the tail, and returns the packed block payload plus
// its header. The caller is responsible for issuing the write and,
// once it completes, calling Reap to release the blocks it makes
// obsolete.
func (j *Journal) CommitTail(recoveryPoint journalpoint.Point) ([]byte, format.SlabJournalBlockHeader, error) {
	if len(j.tailEntries) == 0 {
		return nil, format.SlabJournalBlockHeader{}, vdoerrors.ErrInvalidArgument.Errorf(
			"slabjournal: cannot commit an empty tail block")
	}

	header := format.SlabJournalBlockHeader{
		Head:                  j.head,
		SequenceNumber:        j.tail,
		Nonce:                 j.nonce,
		RecoveryPoint:         recoveryPoint,
		MetadataType:          format.SlabJournalMetadataType,
		HasBlockMapIncrements: j.hasBlockMapEntries(),
		EntryCount:            uint16(len(j.tailEntries)),
	}

	buf := make([]byte, format.BlockSize)
	copy(buf, format.PackSlabJournalBlockHeader(header))
	offset := format.SlabJournalBlockHeaderSize
	var typeBits []byte
	if header.HasBlockMapIncrements {
		typeBits = make([]byte, format.SlabJournalEntryTypesSize)
	}
	for i, e := range j.tailEntries {
		packed, err := format.PackSlabJournalEntry(e.BlockOffset, e.Increment)
		if err != nil {
			return nil, format.SlabJournalBlockHeader{}, err
		}
		copy(buf[offset:offset+3], packed[:])
		offset += 3
		if header.HasBlockMapIncrements && e.IsBlockMapEntry {
			typeBits[i/8] |= 1 << uint(i%8)
		}
	}
	copy(buf[offset:], typeBits)

	j.tailHeader = header
	j.tailEntries = nil
	j.tail++
	j.waitingToCommit = true
	return buf, header, nil
}

// Reap walks forward from the current unreapable point, releasing any
// on-disk blocks whose lock count has dropped to zero, and advances
// head to match. It stops at the first still-locked block or at tail,
// whichever comes first - mirroring reapSlabJournal's early-exit when a
// reap is already bounded by outstanding references.
func (j *Journal) Reap() (reaped bool) {
	for j.unreapable < j.tail && j.locks[j.blockIndex(j.unreapable)].count == 0 {
		j.unreapable++
		reaped = true
	}
	if reaped {
		j.head = j.unreapable
	}
	return reaped
}

// NotifyCommitComplete releases the lock this block held by virtue of
// being written, and attempts a reap. Callers invoke this once a
// CommitTail'd block's write has landed.
func (j *Journal) NotifyCommitComplete(seq uint64) {
	j.unlockBlock(seq)
	j.waitingToCommit = false
	if seq >= j.nextCommit {
		j.nextCommit = seq + 1
	}
	j.Reap()
}

// EnqueueWaiter adds a waiter to be notified the next time the tail
// block has room for a new entry (entry_waiters queue).
func (j *Journal) EnqueueWaiter(w *wait.Waiter) { j.entryWaiters.Enqueue(w) }

// NotifyWaiters wakes every waiter queued on entry availability. Callers
// invoke this after CommitTail frees up room in a fresh tail block.
func (j *Journal) NotifyWaiters(cb wait.Callback, ctx any) { j.entryWaiters.NotifyAll(cb, ctx) }

// PressureLevel reports which reclamation threshold the journal has
// crossed, driving the block allocator's decision to start flushing
// reference-count blocks.
type PressureLevel int

const (
	PressureNone PressureLevel = iota
	PressureFlushing
	PressureBlocking
)

// Pressure reports the current pressure level given how many blocks are
// in use.
func (j *Journal) Pressure() PressureLevel {
	used := j.blocksUsed()
	switch {
	case used >= j.blockingThreshold:
		return PressureBlocking
	case used >= j.flushingThreshold:
		return PressureFlushing
	default:
		return PressureNone
	}
}

// NeedsScrubbing reports whether this slab's journal has accumulated
// enough uncommitted entries that the slab must be scrubbed (its
// reference counts rebuilt from the journal) before it can be used,
// rather than trusted as clean.
func (j *Journal) NeedsScrubbing() bool {
	return j.blocksUsed() >= j.scrubbingThreshold
}

// ValidateBlockHeader checks a header read back from disk against this
// journal's expectations: matching nonce, slab-journal metadata type,
// and a sane entry count for its declared capacity. This is the
// recovery-time counterpart of the implicit trust CommitTail extends to
// headers it writes itself.
func ValidateBlockHeader(h format.SlabJournalBlockHeader, expectedNonce uint64) error {
	if h.Nonce != expectedNonce {
		return vdoerrors.ErrCorruptJournal.Errorf(
			"slabjournal: block nonce %d does not match slab nonce %d", h.Nonce, expectedNonce)
	}
	if h.MetadataType != format.SlabJournalMetadataType {
		return vdoerrors.ErrCorruptJournal.Errorf(
			"slabjournal: unexpected metadata type %d", h.MetadataType)
	}
	if int(h.EntryCount) > h.Capacity() {
		return vdoerrors.ErrCorruptJournal.Errorf(
			"slabjournal: entry count %d exceeds block capacity %d", h.EntryCount, h.Capacity())
	}
	return nil
}
