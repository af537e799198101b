package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlabSummaryEntryRoundTrip(t *testing.T) {
	cases := []SlabSummaryEntry{
		{},
		{TailBlockOffset: 255, FullnessHint: 63, LoadRefCounts: true, IsDirty: true},
		{TailBlockOffset: 17, FullnessHint: 9, LoadRefCounts: false, IsDirty: true},
		{TailBlockOffset: 0, FullnessHint: 1, LoadRefCounts: true, IsDirty: false},
	}
	for _, c := range cases {
		packed, err := PackSlabSummaryEntry(c)
		require.NoError(t, err)
		require.Equal(t, c, UnpackSlabSummaryEntry(packed))
	}
}

func TestSlabSummaryEntryRejectsOversizedHint(t *testing.T) {
	_, err := PackSlabSummaryEntry(SlabSummaryEntry{FullnessHint: 64})
	require.Error(t, err)
}

func TestSlabSummaryBlockRoundTrip(t *testing.T) {
	entries := []SlabSummaryEntry{
		{TailBlockOffset: 1, FullnessHint: 2, IsDirty: true},
		{TailBlockOffset: 200, FullnessHint: 10, LoadRefCounts: true},
	}
	buf, err := PackSlabSummaryBlock(entries)
	require.NoError(t, err)
	require.Len(t, buf, BlockSize)

	got, err := UnpackSlabSummaryBlock(buf)
	require.NoError(t, err)
	require.Len(t, got, SlabSummaryEntriesPerBlock)
	require.Equal(t, entries[0], got[0])
	require.Equal(t, entries[1], got[1])
	// Untouched trailing entries decode to the zero value.
	require.Equal(t, SlabSummaryEntry{}, got[2])
}

func TestSlabSummaryBlockRejectsTooManyEntries(t *testing.T) {
	entries := make([]SlabSummaryEntry, SlabSummaryEntriesPerBlock+1)
	_, err := PackSlabSummaryBlock(entries)
	require.Error(t, err)
}
