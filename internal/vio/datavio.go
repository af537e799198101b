package vio

import (
	"github.com/vdo/vdo/internal/dedupe"
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/format"
	"github.com/vdo/vdo/internal/pbnlock"
)

// WritePhase is one step of the write path a data-vio advances through,
// mirroring the stage names in vio-write.c's block comment (launch ->
// allocate_and_lock_block -> attemptDedupe -> ... -> finishVIO). The
// original drives these steps via completion callbacks bounced between
// zones; this package models them as an explicit, caller-driven sequence
// so internal/zone can schedule each step on the right thread without
// this package knowing about threads at all.
type WritePhase uint8

const (
	WriteStart WritePhase = iota
	WriteAcquireLogicalLock
	WriteAllocatePBN
	WriteHash
	WriteAcquireHashLock
	WriteQueryIndex
	WriteVerifyAdvice
	WriteDedupe
	WriteCompress
	WritePack
	WriteBlock
	WriteUpdateIndex
	WriteJournalIncrement
	WriteJournalDecrementOld
	WriteUpdateBlockMap
	WriteAcknowledge
	WriteDone
)

func (p WritePhase) String() string {
	names := [...]string{
		"start", "acquire-logical-lock", "allocate-pbn", "hash",
		"acquire-hash-lock", "query-index", "verify-advice", "dedupe",
		"compress", "pack", "write-block", "update-index",
		"journal-increment", "journal-decrement-old", "update-block-map",
		"acknowledge", "done",
	}
	if int(p) < len(names) {
		return names[p]
	}
	return "unknown"
}

// DataVio is one logical block's write (or read, via the Read* fields) in
// flight through the pipeline. Exactly one of the allocated
// PBN lock or hash lock's duplicate lock is held at a time once the write
// reaches WriteBlock, matching the original's data_vio carrying a single
// allocating_vio plus an optional hash_lock reference.
type DataVio struct {
	LBN uint64

	// OldMapping is the mapping read from the block map before this
	// write's effect is applied, needed so the recovery journal can
	// record the decrement half of the update.
	OldMapping format.Mapping
	// NewMapping is what the block map will be updated to once the
	// write commits.
	NewMapping format.Mapping

	IsZeroBlock bool
	IsTrim      bool

	Name dedupe.RecordName
	Data []byte

	Phase WritePhase
	Err   error

	HashLock *HashLock
	PBNLock  *pbnlock.Lock

	// compressedSlot is set once this data-vio has been accepted into a
	// packer bin, identifying its fragment's slot in the eventual
	// coalesced physical block.
	compressedSlot int
	isCompressed   bool
}

// NewWrite creates a data-vio beginning the write path for lbn.
func NewWrite(lbn uint64, data []byte, isZeroBlock, isTrim bool) *DataVio {
	return &DataVio{LBN: lbn, Data: data, IsZeroBlock: isZeroBlock, IsTrim: isTrim, Phase: WriteStart}
}

// AcquireLogicalLock records that the logical zone's LBN lock has been
// granted (the caller, internal/zone's logical zone, owns the actual lock
// table) and reads the LBN's current mapping so the journal can later
// record its removal (vio-write.c's launch_write_data_vio ->
// read_old_block_mapping_for_write, reordered earlier here since both the
// zero-block short-circuit and the dedupe path need it).
func (v *DataVio) AcquireLogicalLock(old format.Mapping) error {
	if v.Phase != WriteStart {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: AcquireLogicalLock called in phase %s", v.Phase)
	}
	v.OldMapping = old
	v.Phase = WriteAcquireLogicalLock

	if v.IsZeroBlock || v.IsTrim {
		v.NewMapping = format.Mapping{State: format.MappingZeroBlock}
		v.Phase = WriteJournalIncrement
	} else {
		v.Phase = WriteAllocatePBN
	}
	return nil
}

// SetAllocation records the PBN and lock this write acquired for its new
// data block (allocate_and_lock_block), and advances to hashing - unless
// this data-vio has already been folded into a compressed write by the
// packer, in which case the caller should not call this at all.
func (v *DataVio) SetAllocation(pbn uint64, lock *pbnlock.Lock) error {
	if v.Phase != WriteAllocatePBN {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: SetAllocation called in phase %s", v.Phase)
	}
	v.NewMapping = format.Mapping{PBN: pbn, State: format.MappingUncompressed}
	v.PBNLock = lock
	v.Phase = WriteHash
	return nil
}

// SetHash records this write's content fingerprint and requests a hash
// lock, advancing toward the dedupe query. name is computed by the
// caller (the original's hashData, a pure function of the data).
func (v *DataVio) SetHash(name dedupe.RecordName) error {
	if v.Phase != WriteHash {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: SetHash called in phase %s", v.Phase)
	}
	v.Name = name
	v.Phase = WriteAcquireHashLock
	return nil
}

// JoinHashLock attaches this data-vio to lock, the dedupe decision owner
// for its record name (hash-lock.c's acquire_lock).
func (v *DataVio) JoinHashLock(lock *HashLock) error {
	if v.Phase != WriteAcquireHashLock {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: JoinHashLock called in phase %s", v.Phase)
	}
	v.HashLock = lock
	switch lock.State {
	case HashLockDeduping:
		v.Phase = WriteVerifyAdvice
	default:
		v.Phase = WriteQueryIndex
	}
	return nil
}

// ReceiveDedupeAdvice is called once the hash lock's query against the
// dedupe index has resolved. If advice was found, the write moves to
// verify it by reading the candidate block back (WriteVerifyAdvice);
// otherwise it falls through to compressing/writing its own data fresh
// (WriteCompress).
func (v *DataVio) ReceiveDedupeAdvice(advice dedupe.Advice, found bool) error {
	if v.Phase != WriteQueryIndex {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: ReceiveDedupeAdvice called in phase %s", v.Phase)
	}
	if !found {
		v.Phase = WriteCompress
		return nil
	}
	v.Phase = WriteVerifyAdvice
	return nil
}

// ResolveVerify is called once the data read back from the advised PBN
// has been compared against this write's own data (verify_advice's
// memcmp). A match moves to WriteDedupe to claim a shared reference on
// the existing block; a mismatch (a false-positive advice, or a race with
// a concurrent overwrite of the candidate block) falls back to writing
// fresh data, exactly as vio-write.c's attemptDedupe -> !isDuplicate path.
func (v *DataVio) ResolveVerify(matched bool, lock *pbnlock.Lock) error {
	if v.Phase != WriteVerifyAdvice {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: ResolveVerify called in phase %s", v.Phase)
	}
	if !matched {
		v.Phase = WriteCompress
		return nil
	}
	if !lock.ClaimIncrement() {
		// The candidate block's reference-count headroom is exhausted;
		// fall back to a fresh write rather than risk a refcount
		// overflow.
		v.Phase = WriteCompress
		return nil
	}
	v.NewMapping = adviceToMapping(v.HashLock.Advice)
	v.PBNLock = lock
	v.Phase = WriteDedupe
	return nil
}

// adviceToMapping converts dedupe advice into the block-map mapping a
// successful dedupe write commits.
func adviceToMapping(a dedupe.Advice) format.Mapping {
	if a.Compressed {
		// Advice for a compressed block always names slot 0: a second
		// write deduping against an already-packed fragment still
		// gets its own independent reference to that slot's content,
		// which vio.ResolveVerify()'s caller reads back to discover the
		// fragment's real slot before calling this - see
		// internal/vio/packer.go's FragmentMapping.
		return format.Mapping{PBN: a.PBN, State: format.CompressedSlot(0)}
	}
	return format.Mapping{PBN: a.PBN, State: format.MappingUncompressed}
}

// EnterCompress moves from WriteCompress into the packer, recording
// whether the packer accepted this write as a coalesced fragment
// (isCompressed) or rejected it (too large to help, or compression
// disabled), in which case the caller proceeds to WriteBlock with the
// uncompressed allocation already set up by SetAllocation.
func (v *DataVio) EnterCompress(compressed bool, slot int) {
	v.isCompressed = compressed
	v.compressedSlot = slot
	if compressed {
		v.Phase = WritePack
	} else {
		v.Phase = WriteBlock
	}
}

// IsCompressed reports whether this write's data ended up packed into a
// shared physical block rather than writing its own.
func (v *DataVio) IsCompressed() bool { return v.isCompressed }

// CompressedSlot returns the fragment slot assigned by the packer, valid
// only when IsCompressed is true.
func (v *DataVio) CompressedSlot() int { return v.compressedSlot }

// FinishPack is called once the packer's bin containing this data-vio has
// been written out as a single coalesced physical block at pbn, sharing
// lock with the bin's other fragments.
func (v *DataVio) FinishPack(pbn uint64, lock *pbnlock.Lock) error {
	if v.Phase != WritePack {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: FinishPack called in phase %s", v.Phase)
	}
	v.NewMapping = format.Mapping{PBN: pbn, State: format.CompressedSlot(v.compressedSlot)}
	v.PBNLock = lock
	v.Phase = WriteUpdateIndex
	return nil
}

// FinishWriteBlock is called once this write's own (uncompressed) data
// block has been written to its allocated PBN.
func (v *DataVio) FinishWriteBlock() error {
	if v.Phase != WriteBlock {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: FinishWriteBlock called in phase %s", v.Phase)
	}
	v.Phase = WriteUpdateIndex
	return nil
}

// FinishDedupe is called once a successful dedupe (ResolveVerify's
// matched path) has had its shared reference committed, skipping the
// index-update step since the index already has advice for this content.
func (v *DataVio) FinishDedupe() error {
	if v.Phase != WriteDedupe {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: FinishDedupe called in phase %s", v.Phase)
	}
	v.Phase = WriteJournalIncrement
	return nil
}

// FinishUpdateIndex is called once the dedupe index has been told about
// this write's new (name -> PBN) advice (vdo_update_dedupe_index).
func (v *DataVio) FinishUpdateIndex() error {
	if v.Phase != WriteUpdateIndex {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: FinishUpdateIndex called in phase %s", v.Phase)
	}
	v.Phase = WriteJournalIncrement
	return nil
}

// FinishJournalIncrement is called once the recovery journal has recorded
// this write's new mapping (addJournalEntry / journalIncrementForWrite).
func (v *DataVio) FinishJournalIncrement() error {
	if v.Phase != WriteJournalIncrement {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: FinishJournalIncrement called in phase %s", v.Phase)
	}
	if v.OldMapping.IsMapped() {
		v.Phase = WriteJournalDecrementOld
	} else {
		v.Phase = WriteUpdateBlockMap
	}
	return nil
}

// FinishJournalDecrementOld is called once the recovery journal has
// recorded the removal of OldMapping (journal_unmapping_for_write /
// journal_decrement_for_write).
func (v *DataVio) FinishJournalDecrementOld() error {
	if v.Phase != WriteJournalDecrementOld {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: FinishJournalDecrementOld called in phase %s", v.Phase)
	}
	v.Phase = WriteUpdateBlockMap
	return nil
}

// FinishUpdateBlockMap is called once the block-map leaf for LBN has been
// rewritten to NewMapping (update_block_map_for_write), the step that
// itself triggers a slab-journal entry for the new PBN (/4.5).
func (v *DataVio) FinishUpdateBlockMap() error {
	if v.Phase != WriteUpdateBlockMap {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: FinishUpdateBlockMap called in phase %s", v.Phase)
	}
	v.Phase = WriteAcknowledge
	return nil
}

// Acknowledge drops this write's locks and marks it done
// (finishVIO/release_allocation_lock, acknowledge_write's host
// notification is the caller's job once this returns true).
func (v *DataVio) Acknowledge() error {
	if v.Phase != WriteAcknowledge {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: Acknowledge called in phase %s", v.Phase)
	}
	v.Phase = WriteDone
	v.PBNLock = nil
	v.HashLock = nil
	return nil
}

// Done reports whether this data-vio has completed its pipeline.
func (v *DataVio) Done() bool { return v.Phase == WriteDone }
