package vio

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vdo/vdo/internal/dedupe"
	"github.com/vdo/vdo/internal/format"
	"github.com/vdo/vdo/internal/pbnlock"
)

func TestWriteZeroBlockSkipsAllocation(t *testing.T) {
	v := NewWrite(5, nil, true, false)
	require.NoError(t, v.AcquireLogicalLock(format.Mapping{}))
	require.Equal(t, WriteJournalIncrement, v.Phase)
	require.Equal(t, format.MappingZeroBlock, v.NewMapping.State)
}

func TestWriteNonDedupePath(t *testing.T) {
	data := make([]byte, format.BlockSize)
	data[0] = 1
	v := NewWrite(5, data, false, false)
	require.NoError(t, v.AcquireLogicalLock(format.Mapping{}))
	require.Equal(t, WriteAllocatePBN, v.Phase)

	pool := pbnlock.NewPool(4)
	lock, err := pool.Borrow(pbnlock.Write)
	require.NoError(t, err)
	require.NoError(t, v.SetAllocation(42, lock))
	require.Equal(t, WriteHash, v.Phase)

	require.NoError(t, v.SetHash(dedupe.RecordName{1}))
	require.Equal(t, WriteAcquireHashLock, v.Phase)

	hl := NewHashLock(dedupe.RecordName{1})
	require.NoError(t, v.JoinHashLock(hl))
	require.Equal(t, WriteQueryIndex, v.Phase)

	require.NoError(t, v.ReceiveDedupeAdvice(dedupe.Advice{}, false))
	require.Equal(t, WriteCompress, v.Phase)

	v.EnterCompress(false, 0)
	require.Equal(t, WriteBlock, v.Phase)
	require.False(t, v.IsCompressed())

	require.NoError(t, v.FinishWriteBlock())
	require.Equal(t, WriteUpdateIndex, v.Phase)
	require.NoError(t, v.FinishUpdateIndex())
	require.Equal(t, WriteJournalIncrement, v.Phase)
	require.NoError(t, v.FinishJournalIncrement())
	require.Equal(t, WriteUpdateBlockMap, v.Phase, "unmapped old mapping skips the decrement step")
	require.NoError(t, v.FinishUpdateBlockMap())
	require.NoError(t, v.Acknowledge())
	require.True(t, v.Done())
}

func TestWriteDedupePathClaimsSharedReference(t *testing.T) {
	data := make([]byte, format.BlockSize)
	v := NewWrite(5, data, false, false)
	require.NoError(t, v.AcquireLogicalLock(format.Mapping{PBN: 1, State: format.MappingUncompressed}))

	pool := pbnlock.NewPool(4)
	lock, err := pool.Borrow(pbnlock.Write)
	require.NoError(t, err)
	require.NoError(t, v.SetAllocation(42, lock))
	require.NoError(t, v.SetHash(dedupe.RecordName{2}))

	hl := NewHashLock(dedupe.RecordName{2})
	require.NoError(t, v.JoinHashLock(hl))
	require.NoError(t, v.ReceiveDedupeAdvice(dedupe.Advice{PBN: 99}, true))
	require.Equal(t, WriteVerifyAdvice, v.Phase)

	readLock, err := pool.Borrow(pbnlock.Read)
	require.NoError(t, err)
	readLock.DowngradeWriteToRead(10)
	require.NoError(t, v.ResolveVerify(true, readLock))
	require.Equal(t, WriteDedupe, v.Phase)
	require.Equal(t, uint64(99), v.NewMapping.PBN)

	require.NoError(t, v.FinishDedupe())
	require.Equal(t, WriteJournalIncrement, v.Phase)
	require.NoError(t, v.FinishJournalIncrement())
	require.Equal(t, WriteJournalDecrementOld, v.Phase, "a previously mapped LBN needs its old reference dropped")
	require.NoError(t, v.FinishJournalDecrementOld())
	require.Equal(t, WriteUpdateBlockMap, v.Phase)
}

func TestWriteVerifyMismatchFallsBackToFreshWrite(t *testing.T) {
	v := NewWrite(5, make([]byte, format.BlockSize), false, false)
	require.NoError(t, v.AcquireLogicalLock(format.Mapping{}))
	pool := pbnlock.NewPool(4)
	lock, _ := pool.Borrow(pbnlock.Write)
	require.NoError(t, v.SetAllocation(1, lock))
	require.NoError(t, v.SetHash(dedupe.RecordName{3}))
	hl := NewHashLock(dedupe.RecordName{3})
	require.NoError(t, v.JoinHashLock(hl))
	require.NoError(t, v.ReceiveDedupeAdvice(dedupe.Advice{PBN: 5}, true))

	readLock, _ := pool.Borrow(pbnlock.Read)
	readLock.DowngradeWriteToRead(10)
	require.NoError(t, v.ResolveVerify(false, readLock))
	require.Equal(t, WriteCompress, v.Phase)
}
