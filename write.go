package vdo

import (
	"time"

	"github.com/vdo/vdo/internal/dedupe"
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/format"
	"github.com/vdo/vdo/internal/journalpoint"
	"github.com/vdo/vdo/internal/pbnlock"
	"github.com/vdo/vdo/internal/recoveryjournal"
	"github.com/vdo/vdo/internal/refcount"
	"github.com/vdo/vdo/internal/stats"
	"github.com/vdo/vdo/internal/vio"
)

// existingBlockIncrementLimit bounds how many additional references a
// dedupe write may claim against an already-referenced block. The
// original computes this from the block's live refcount.Count at
// acquisition time (exact saturation accounting); this
// package instead hands every dedupe verify a fixed, conservatively
// large limit, documented as a simplification in DESIGN.md since this
// device does not track a PBN -> outstanding-read-lock map the way the
// full depot does.
const existingBlockIncrementLimit = 200

// Write performs one logical-block write: dedupe against the index,
// optionally compress and pack, journal the change, and update the
// block map, driving a vio.DataVio through the exact phase sequence
// internal/vio defines.
func (d *Device) Write(lbn uint64, data []byte) error {
	if d.IsReadOnly() {
		return errReadOnly
	}
	if uint64(len(data)) != format.BlockSize {
		return vdoerrors.ErrInvalidArgument.Errorf("vdo: write data must be exactly %d bytes, got %d", format.BlockSize, len(data))
	}

	start := time.Now()
	defer func() { d.latency.Record(stats.OpWrite, time.Since(start)) }()

	isZero := vio.IsZeroBlock(data)
	v := vio.NewWrite(lbn, data, isZero, false)

	old, err := d.readMapping(lbn)
	if err != nil {
		return err
	}
	if err := v.AcquireLogicalLock(old); err != nil {
		return err
	}

	if v.Phase == vio.WriteAllocatePBN {
		if err := d.allocateAndHash(v); err != nil {
			return err
		}
	}

	if err := d.runDedupe(v); err != nil {
		return err
	}

	if v.Phase == vio.WriteCompress {
		if err := d.compressAndWrite(v); err != nil {
			return err
		}
	} else if v.Phase == vio.WriteDedupe {
		if err := v.FinishDedupe(); err != nil {
			return err
		}
	}

	if v.Phase == vio.WriteUpdateIndex {
		d.dedupeIndex.Put(v.Name, dedupe.Advice{PBN: v.NewMapping.PBN, Compressed: v.IsCompressed()})
		if err := v.FinishUpdateIndex(); err != nil {
			return err
		}
	}

	if err := d.journalAndMap(v); err != nil {
		return err
	}

	return v.Acknowledge()
}

func (d *Device) allocateAndHash(v *vio.DataVio) error {
	d.admission.Wait(1)
	pbn, err := d.allocator.AllocateBlock()
	if err != nil {
		return err
	}
	lock, err := d.pbnLocks.Borrow(pbnlock.Write)
	if err != nil {
		return err
	}
	if err := v.SetAllocation(pbn, lock); err != nil {
		return err
	}
	return v.SetHash(format.ComputeRecordName(v.Data))
}

// runDedupe drives the hash-lock / dedupe-query / verify sequence,
// leaving v in either WriteDedupe (claimed a shared reference) or
// WriteCompress (no usable advice, write fresh).
func (d *Device) runDedupe(v *vio.DataVio) error {
	if v.Phase != vio.WriteAcquireHashLock {
		return nil
	}
	if !d.cfg.Deduplication {
		// No hash lock is acquired at all when deduplication is off -
		// this device's only way to bypass the hash-lock stage
		// entirely, since DataVio's own transition methods all require
		// a lock to move past WriteAcquireHashLock.
		v.Phase = vio.WriteCompress
		return nil
	}
	name := v.Name
	lock, err := d.hashLocks.Acquire(name)
	if err != nil {
		return err
	}
	if err := v.JoinHashLock(lock); err != nil {
		return err
	}

	if v.Phase == vio.WriteQueryIndex {
		lock.StartQuerying()
		advice, found := d.dedupeIndex.Query(name)
		lock.ReceiveQueryResult(advice, found)
		if err := v.ReceiveDedupeAdvice(advice, found); err != nil {
			return err
		}
	}

	if v.Phase == vio.WriteVerifyAdvice {
		abandonedLock := v.PBNLock
		matched, err := d.verifyAdvice(v, lock.Advice)
		if err != nil {
			return err
		}
		var dupLock *pbnlock.Lock
		if matched {
			dupLock, err = d.pbnLocks.Borrow(pbnlock.Read)
			if err != nil {
				return err
			}
			dupLock.DowngradeWriteToRead(existingBlockIncrementLimit)
		}
		if err := v.ResolveVerify(matched, dupLock); err != nil {
			return err
		}
		if matched && v.Phase == vio.WriteDedupe {
			lock.AcquireDuplicateLock(dupLock)
			// The block allocated for this write before the dedupe
			// query resolved is no longer needed; return its lock
			// (its provisional reference count is left unreleased -
			// see DESIGN.md's allocator-release simplification).
			d.pbnLocks.Return(abandonedLock)
		}
	}

	if v.Phase == vio.WriteDedupe || v.Phase == vio.WriteCompress {
		if lock.Release() {
			d.hashLocks.Retire(lock)
		}
	}
	return nil
}

// verifyAdvice reads back the block named by advice and compares it
// byte-for-byte against v's own data (vio-write.c's verify_advice).
func (d *Device) verifyAdvice(v *vio.DataVio, advice dedupe.Advice) (bool, error) {
	if advice.Compressed {
		// This device's packer never records compressed advice with a
		// verifiable physical read (a compressed fragment's content
		// lives inside a shared block this package does not re-read
		// fragment-by-fragment); treat as unverifiable and fall back
		// to a fresh write.
		return false, nil
	}
	block, err := d.backing.ReadBlock(advice.PBN)
	if err != nil {
		return false, nil
	}
	return string(block) == string(v.Data), nil
}

// compressAndWrite offers v to the packer; since this Device drives one
// write to completion before starting the next (no deferred flush timer
// the way packer.c's bin-fill timeout works), every accepted fragment's
// bin is packed and written immediately rather than left to accumulate
// alongside later writes - documented in DESIGN.md as a simplification
// that forgoes real fragment coalescing across concurrent writes.
func (d *Device) compressAndWrite(v *vio.DataVio) error {
	if d.cfg.Compression && !v.IsZeroBlock {
		if bin := d.packer.Submit(v); bin != nil {
			packed, dir, err := bin.Pack()
			if err != nil {
				return err
			}
			pbn := v.NewMapping.PBN
			if err := d.backing.WriteBlock(pbn, packed); err != nil {
				return err
			}
			d.directories[pbn] = dir
			d.packer.Flush()
			return v.FinishPack(pbn, v.PBNLock)
		}
	}
	if err := d.backing.WriteBlock(v.NewMapping.PBN, v.Data); err != nil {
		return err
	}
	return v.FinishWriteBlock()
}

// Recovery journal operation codes (2-bit JournalOperation field,
// format.RecoveryJournalEntry.Operation). The original's
// journal_operation enum names these DATA_INCREMENT/DATA_DECREMENT/
// BLOCK_MAP_INCREMENT; only the data-block pair is used here since this
// device journals its own block-map leaf updates rather than the forest's
// tree-page allocations.
const (
	journalOpDataIncrement uint8 = 0
	journalOpDataDecrement uint8 = 1
)

// journalAndMap records the recovery-journal entries for this write's
// mapping change and applies them to both the block map and the slab's
// reference counts, in the order FinishJournalIncrement/
// FinishJournalDecrementOld/FinishUpdateBlockMap require.
func (d *Device) journalAndMap(v *vio.DataVio) error {
	_, leafIndex, slotIdx, err := d.forest.SlotFor(v.LBN)
	if err != nil {
		return d.enterReadOnly(err)
	}
	slot := format.Slot{PBN: leafIndex, Slot: uint16(slotIdx)}

	point, err := d.journal.AddEntry(recoveryjournal.Entry{
		Slot:      slot,
		Mapping:   v.NewMapping,
		Operation: journalOpDataIncrement,
		Increment: true,
	})
	if err != nil {
		return d.enterReadOnly(err)
	}
	if err := d.replayIncrement(v, point); err != nil {
		return d.enterReadOnly(err)
	}
	if err := v.FinishJournalIncrement(); err != nil {
		return err
	}

	if v.Phase == vio.WriteJournalDecrementOld {
		decPoint, err := d.journal.AddEntry(recoveryjournal.Entry{
			Slot:      slot,
			Mapping:   v.OldMapping,
			Operation: journalOpDataDecrement,
			Increment: false,
		})
		if err != nil {
			return d.enterReadOnly(err)
		}
		if err := d.replayDecrement(v, decPoint); err != nil {
			return d.enterReadOnly(err)
		}
		if err := v.FinishJournalDecrementOld(); err != nil {
			return err
		}
	}

	if err := d.writeMapping(v.LBN, v.NewMapping); err != nil {
		return d.enterReadOnly(err)
	}
	return v.FinishUpdateBlockMap()
}

func (d *Device) replayIncrement(v *vio.DataVio, point journalpoint.Point) error {
	if v.NewMapping.State == format.MappingZeroBlock {
		return nil
	}
	idx, slab, err := d.slabBlockIndex(v.NewMapping.PBN)
	if err != nil {
		return err
	}
	return slab.RefCounts.Replay(refcount.Entry{
		Point:     point,
		BlockIdx:  idx,
		Operation: refcount.OpDataAdd,
		HasLock:   v.PBNLock != nil,
	})
}

func (d *Device) replayDecrement(v *vio.DataVio, point journalpoint.Point) error {
	if !v.OldMapping.IsMapped() || v.OldMapping.State == format.MappingZeroBlock {
		return nil
	}
	idx, slab, err := d.slabBlockIndex(v.OldMapping.PBN)
	if err != nil {
		return err
	}
	return slab.RefCounts.Replay(refcount.Entry{
		Point:     point,
		BlockIdx:  idx,
		Operation: refcount.OpDataSubtract,
	})
}
