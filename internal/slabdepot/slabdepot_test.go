package slabdepot

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vdo/vdo/internal/journalpoint"
	"github.com/vdo/vdo/internal/slabjournal"
	"github.com/vdo/vdo/internal/wait"
)

func journalConfig() slabjournal.Config {
	return slabjournal.Config{Size: 4, Nonce: 7, FlushingThreshold: 2, BlockingThreshold: 3, ScrubbingThreshold: 4}
}

func TestNewSlabStartsRequiringScrubbing(t *testing.T) {
	s := NewSlab(0, 100, 200, 0, 0, journalConfig())
	require.Equal(t, 100, s.BlockCount())
	require.True(t, s.IsUnrecovered())
	require.Equal(t, uint64(100), s.FreeBlocks())
}

func TestSlabPhysicalBlockTranslation(t *testing.T) {
	s := NewSlab(0, 1000, 1100, 0, 0, journalConfig())
	require.Equal(t, uint64(1005), s.ToPhysicalBlock(5))
	require.Equal(t, uint32(5), s.ToSlabBlockOffset(1005))
}

func TestAllocatorAllocatesFromRegisteredSlab(t *testing.T) {
	s := NewSlab(0, 0, 4, 0, 0, journalConfig())
	s.Status = StatusRebuilt
	a := NewAllocator()
	a.RegisterSlab(s)

	pbn, err := a.AllocateBlock()
	require.NoError(t, err)
	require.True(t, pbn < 4)
	require.Equal(t, uint64(1), a.AllocatedBlocks())
}

func TestAllocatorSkipsUnrecoveredSlabs(t *testing.T) {
	s := NewSlab(0, 0, 4, 0, 0, journalConfig())
	a := NewAllocator()
	a.RegisterSlab(s)

	_, err := a.AllocateBlock()
	require.Error(t, err)
	require.Equal(t, 1, a.UnrecoveredSlabCount())
}

func TestAllocatorExhaustion(t *testing.T) {
	s := NewSlab(0, 0, 1, 0, 0, journalConfig())
	s.Status = StatusRebuilt
	a := NewAllocator()
	a.RegisterSlab(s)

	_, err := a.AllocateBlock()
	require.NoError(t, err)
	_, err = a.AllocateBlock()
	require.Error(t, err)
}

func TestNotifySlabScrubbedWakesCleanWaiters(t *testing.T) {
	s := NewSlab(0, 0, 4, 0, 0, journalConfig())
	a := NewAllocator()
	a.RegisterSlab(s)

	var woken bool
	w := &wait.Waiter{Callback: func(_ *wait.Waiter, _ any) { woken = true }}
	require.NoError(t, a.EnqueueForCleanSlab(w))

	a.NotifySlabScrubbed(s)
	require.True(t, woken)
	require.Equal(t, 0, a.UnrecoveredSlabCount())

	_, err := a.AllocateBlock()
	require.NoError(t, err)
}

func TestScrubberPrioritizesHighPriorityQueue(t *testing.T) {
	low := NewSlab(0, 0, 4, 0, 0, journalConfig())
	high := NewSlab(1, 0, 4, 0, 0, journalConfig())

	s := NewScrubber()
	s.Register(low, false)
	s.Register(high, true)
	require.True(t, s.HasSlabsToScrub())

	scrubbed, err := s.ScrubNext(nil)
	require.NoError(t, err)
	require.Equal(t, high, scrubbed)
	require.Equal(t, StatusRebuilt, high.Status)

	scrubbed, err = s.ScrubNext(nil)
	require.NoError(t, err)
	require.Equal(t, low, scrubbed)

	require.False(t, s.HasSlabsToScrub())
}

func TestScrubberReplaysJournalEntries(t *testing.T) {
	slab := NewSlab(0, 0, 4, 0, 0, journalConfig())
	s := NewScrubber()
	s.Register(slab, false)

	entries := []ScrubEntry{
		{Point: journalpoint.Point{SequenceNumber: 1, EntryCount: 0}, BlockIdx: 0, Increment: true},
		{Point: journalpoint.Point{SequenceNumber: 1, EntryCount: 1}, BlockIdx: 0, Increment: true},
		{Point: journalpoint.Point{SequenceNumber: 1, EntryCount: 2}, BlockIdx: 0, Increment: false},
	}
	scrubbed, err := s.ScrubNext(entries)
	require.NoError(t, err)
	v, ok := scrubbed.RefCounts.Get(0).Value()
	require.True(t, ok)
	require.Equal(t, uint8(1), v)
}

func TestSummaryTracksDirtyAndLoadRequirements(t *testing.T) {
	sum := NewSummary(3)
	needsScrub, err := sum.RequiresScrubbing(0)
	require.NoError(t, err)
	require.True(t, needsScrub)

	require.NoError(t, sum.Update(0, 5, 10, false, false))
	needsScrub, err = sum.RequiresScrubbing(0)
	require.NoError(t, err)
	require.False(t, needsScrub)

	_, err = sum.Get(99)
	require.Error(t, err)
}

func TestSummaryBlocksNeededAndPacking(t *testing.T) {
	sum := NewSummary(5)
	require.NoError(t, sum.Update(2, 1, 1, false, true))
	blocks := sum.BlocksNeeded()
	require.GreaterOrEqual(t, blocks, 1)

	buf, err := sum.PackBlock(0)
	require.NoError(t, err)
	require.Len(t, buf, 4096)
}
