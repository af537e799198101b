package refcount

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vdo/vdo/internal/journalpoint"
)

func pt(seq uint64, cnt uint16) journalpoint.Point {
	return journalpoint.Point{SequenceNumber: seq, EntryCount: cnt}
}

func TestIncrementDecrementFreeBlock(t *testing.T) {
	a := NewArray(4)
	require.Equal(t, uint64(4), a.FreeBlocks())
	require.Equal(t, StatusFree, a.Get(0).Status())

	require.NoError(t, a.Replay(Entry{Point: pt(1, 0), BlockIdx: 0, Operation: OpDataAdd}))
	require.Equal(t, StatusSingle, a.Get(0).Status())
	v, ok := a.Get(0).Value()
	require.True(t, ok)
	require.Equal(t, uint8(1), v)
	require.Equal(t, uint64(3), a.FreeBlocks())

	require.NoError(t, a.Replay(Entry{Point: pt(1, 1), BlockIdx: 0, Operation: OpDataAdd}))
	v, _ = a.Get(0).Value()
	require.Equal(t, uint8(2), v)

	require.NoError(t, a.Replay(Entry{Point: pt(1, 2), BlockIdx: 0, Operation: OpDataSubtract}))
	v, _ = a.Get(0).Value()
	require.Equal(t, uint8(1), v)

	require.NoError(t, a.Replay(Entry{Point: pt(1, 3), BlockIdx: 0, Operation: OpDataSubtract}))
	require.Equal(t, StatusFree, a.Get(0).Status())
	require.Equal(t, uint64(4), a.FreeBlocks())
}

func TestDecrementWithLockLeavesProvisional(t *testing.T) {
	a := NewArray(1)
	require.NoError(t, a.Replay(Entry{Point: pt(1, 0), BlockIdx: 0, Operation: OpDataAdd}))
	require.NoError(t, a.Replay(Entry{Point: pt(1, 1), BlockIdx: 0, Operation: OpDataSubtract, HasLock: true}))
	require.Equal(t, StatusProvisional, a.Get(0).Status())
	// Provisional blocks are not counted as free.
	require.Equal(t, uint64(0), a.FreeBlocks())
}

func TestDecrementingFreeBlockFails(t *testing.T) {
	a := NewArray(1)
	err := a.Replay(Entry{Point: pt(1, 0), BlockIdx: 0, Operation: OpDataSubtract})
	require.Error(t, err)
}

func TestReplayIsIdempotent(t *testing.T) {
	a := NewArray(1)
	e := Entry{Point: pt(5, 0), BlockIdx: 0, Operation: OpDataAdd}
	require.NoError(t, a.Replay(e))
	before := a.Get(0)
	// Replaying the same (or an earlier) point again is a no-op.
	require.NoError(t, a.Replay(e))
	require.NoError(t, a.Replay(Entry{Point: pt(4, 999), BlockIdx: 0, Operation: OpDataAdd}))
	require.Equal(t, before, a.Get(0))
}

func TestSharedSaturatesAndDoesNotDecrement(t *testing.T) {
	a := NewArray(1)
	seq := uint16(0)
	add := func() {
		require.NoError(t, a.Replay(Entry{Point: pt(1, seq), BlockIdx: 0, Operation: OpDataAdd}))
		seq++
	}
	for i := 0; i < 300; i++ {
		add()
	}
	require.Equal(t, StatusShared, a.Get(0).Status())
	_, ok := a.Get(0).Value()
	require.False(t, ok)

	require.NoError(t, a.Replay(Entry{Point: pt(1, seq), BlockIdx: 0, Operation: OpDataSubtract}))
	require.Equal(t, StatusShared, a.Get(0).Status())
}

func TestAssignProvisionalRequiresFree(t *testing.T) {
	a := NewArray(1)
	require.NoError(t, a.AssignProvisional(0))
	require.Equal(t, StatusProvisional, a.Get(0).Status())
	require.Equal(t, uint64(0), a.FreeBlocks())
	require.Error(t, a.AssignProvisional(0))
}

func TestFindFreeBlock(t *testing.T) {
	a := NewArray(3)
	require.NoError(t, a.AssignProvisional(0))
	require.NoError(t, a.AssignProvisional(1))
	idx, ok := a.FindFreeBlock()
	require.True(t, ok)
	require.Equal(t, 2, idx)

	require.NoError(t, a.AssignProvisional(2))
	_, ok = a.FindFreeBlock()
	require.False(t, ok)
}

func TestOutOfRangeBlockIndex(t *testing.T) {
	a := NewArray(1)
	err := a.Replay(Entry{Point: pt(1, 0), BlockIdx: 5, Operation: OpDataAdd})
	require.Error(t, err)
}
