package slabjournal

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vdo/vdo/internal/format"
	"github.com/vdo/vdo/internal/journalpoint"
	"github.com/vdo/vdo/internal/wait"
)

func testConfig() Config {
	return Config{
		Size:               4,
		Nonce:              123,
		FlushingThreshold:  2,
		BlockingThreshold:  3,
		ScrubbingThreshold: 4,
	}
}

func TestAddEntryAccumulatesInTailBlock(t *testing.T) {
	j := New(testConfig())
	require.Equal(t, uint64(1), j.Tail())
	require.NoError(t, j.AddEntry(Entry{BlockOffset: 5, Increment: true}))
	require.NoError(t, j.AddEntry(Entry{BlockOffset: 6, Increment: false}))
	require.False(t, j.IsFull(false))
}

func TestCommitTailPacksAndAdvancesTail(t *testing.T) {
	j := New(testConfig())
	require.NoError(t, j.AddEntry(Entry{BlockOffset: 1, Increment: true}))
	buf, header, err := j.CommitTail(journalpoint.Point{SequenceNumber: 10, EntryCount: 0})
	require.NoError(t, err)
	require.Len(t, buf, format.BlockSize)
	require.Equal(t, uint64(1), header.SequenceNumber)
	require.Equal(t, uint16(1), header.EntryCount)
	require.Equal(t, uint64(2), j.Tail())

	got, err := format.UnpackSlabJournalBlockHeader(buf[:format.SlabJournalBlockHeaderSize])
	require.NoError(t, err)
	require.Equal(t, header, got)

	offset, increment := mustUnpackFirstEntry(t, buf)
	require.Equal(t, uint32(1), offset)
	require.True(t, increment)
}

func mustUnpackFirstEntry(t *testing.T, buf []byte) (uint32, bool) {
	t.Helper()
	var p format.PackedSlabJournalEntry
	copy(p[:], buf[format.SlabJournalBlockHeaderSize:format.SlabJournalBlockHeaderSize+3])
	return p.Unpack()
}

func TestCommitTailRejectsEmptyBlock(t *testing.T) {
	j := New(testConfig())
	_, _, err := j.CommitTail(journalpoint.Point{})
	require.Error(t, err)
}

func TestBlockMapEntryForcesFullEntryFormat(t *testing.T) {
	j := New(testConfig())
	require.NoError(t, j.AddEntry(Entry{BlockOffset: 1, Increment: true, IsBlockMapEntry: true}))
	buf, header, err := j.CommitTail(journalpoint.Point{})
	require.NoError(t, err)
	require.True(t, header.HasBlockMapIncrements)
	typeByte := buf[format.SlabJournalBlockHeaderSize+format.SlabJournalFullEntriesPerBlock*3]
	require.Equal(t, byte(1), typeByte&1)
}

func TestMustReapBeforeAddWhenJournalFull(t *testing.T) {
	cfg := testConfig()
	cfg.Size = 1
	j := New(cfg)
	require.False(t, j.MustReapBeforeAdd())
	require.NoError(t, j.AddEntry(Entry{BlockOffset: 0, Increment: true}))
	_, _, err := j.CommitTail(journalpoint.Point{})
	require.NoError(t, err)
	// size=1 means head==1, tail==2 now, blocksUsed = tail-head+1 = 2 >= size(1).
	require.True(t, j.MustReapBeforeAdd())
	err = j.AddEntry(Entry{BlockOffset: 1, Increment: true})
	require.Error(t, err)
}

func TestReapReleasesUnlockedBlocksAndAdvancesHead(t *testing.T) {
	j := New(testConfig())
	require.NoError(t, j.AddEntry(Entry{BlockOffset: 0, Increment: true}))
	_, header, err := j.CommitTail(journalpoint.Point{})
	require.NoError(t, err)

	require.False(t, j.Reap())
	require.Equal(t, uint64(1), j.Head())

	j.NotifyCommitComplete(header.SequenceNumber)
	require.Equal(t, uint64(2), j.Head())
}

func TestPressureLevelsEscalateWithUsage(t *testing.T) {
	j := New(testConfig())
	require.Equal(t, PressureNone, j.Pressure())

	for i := 0; i < 2; i++ {
		require.NoError(t, j.AddEntry(Entry{BlockOffset: uint32(i), Increment: true}))
		_, _, err := j.CommitTail(journalpoint.Point{})
		require.NoError(t, err)
	}
	require.Equal(t, PressureFlushing, j.Pressure())
}

func TestNeedsScrubbingAtThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.ScrubbingThreshold = 2
	j := New(cfg)
	require.False(t, j.NeedsScrubbing())
	require.NoError(t, j.AddEntry(Entry{BlockOffset: 0, Increment: true}))
	_, _, err := j.CommitTail(journalpoint.Point{})
	require.NoError(t, err)
	require.True(t, j.NeedsScrubbing())
}

func TestValidateBlockHeaderDetectsNonceMismatch(t *testing.T) {
	h := format.SlabJournalBlockHeader{Nonce: 1, MetadataType: format.SlabJournalMetadataType}
	require.Error(t, ValidateBlockHeader(h, 2))
	require.NoError(t, ValidateBlockHeader(h, 1))
}

func TestValidateBlockHeaderDetectsBadMetadataType(t *testing.T) {
	h := format.SlabJournalBlockHeader{Nonce: 1, MetadataType: 99}
	require.Error(t, ValidateBlockHeader(h, 1))
}

func TestValidateBlockHeaderDetectsOverCapacityEntryCount(t *testing.T) {
	h := format.SlabJournalBlockHeader{
		Nonce:        1,
		MetadataType: format.SlabJournalMetadataType,
		EntryCount:   uint16(format.SlabJournalEntriesPerBlock + 1),
	}
	require.Error(t, ValidateBlockHeader(h, 1))
}

func TestEnqueueAndNotifyWaiters(t *testing.T) {
	j := New(testConfig())
	var notified int
	w := &wait.Waiter{Callback: func(_ *wait.Waiter, _ any) { notified++ }}
	j.EnqueueWaiter(w)
	j.NotifyWaiters(nil, nil)
	require.Equal(t, 1, notified)
}
