package format

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vdo/vdo/internal/journalpoint"
)

func TestSlabJournalEntryPackRoundTrip(t *testing.T) {
	cases := []struct {
		offset    uint32
		increment bool
	}{
		{0, false},
		{0, true},
		{1, true},
		{maxSlabBlockOffset, false},
		{maxSlabBlockOffset, true},
		{1 << 20, true},
	}
	for _, c := range cases {
		p, err := PackSlabJournalEntry(c.offset, c.increment)
		require.NoError(t, err)
		offset, increment := p.Unpack()
		require.Equal(t, c.offset, offset)
		require.Equal(t, c.increment, increment)
	}
}

func TestSlabJournalEntryRejectsOversizedOffset(t *testing.T) {
	_, err := PackSlabJournalEntry(maxSlabBlockOffset+1, true)
	require.Error(t, err)
}

func TestSlabJournalBlockHeaderRoundTrip(t *testing.T) {
	h := SlabJournalBlockHeader{
		Head:                  17,
		SequenceNumber:        42,
		Nonce:                 0xdeadbeefcafef00d,
		RecoveryPoint:         journalpoint.Point{SequenceNumber: 99, EntryCount: 3},
		MetadataType:          SlabJournalMetadataType,
		HasBlockMapIncrements: true,
		EntryCount:            1234,
	}
	buf := PackSlabJournalBlockHeader(h)
	require.Len(t, buf, SlabJournalBlockHeaderSize)

	got, err := UnpackSlabJournalBlockHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestSlabJournalBlockHeaderTruncated(t *testing.T) {
	_, err := UnpackSlabJournalBlockHeader(make([]byte, SlabJournalBlockHeaderSize-1))
	require.Error(t, err)
}

func TestSlabJournalCapacityDependsOnBlockMapIncrements(t *testing.T) {
	plain := SlabJournalBlockHeader{}
	withIncrements := SlabJournalBlockHeader{HasBlockMapIncrements: true}

	require.Equal(t, SlabJournalEntriesPerBlock, plain.Capacity())
	require.Equal(t, SlabJournalFullEntriesPerBlock, withIncrements.Capacity())
	require.Less(t, withIncrements.Capacity(), plain.Capacity())
}

func TestSlabJournalCapacityConstantsFitBlock(t *testing.T) {
	require.Equal(t, SlabJournalPayloadSize, SlabJournalEntriesPerBlock*slabJournalEntrySize+
		(SlabJournalPayloadSize%slabJournalEntrySize))
	require.Equal(t, SlabJournalPayloadSize,
		SlabJournalFullEntriesPerBlock*slabJournalEntrySize+SlabJournalEntryTypesSize)
}
