package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockMapPageHeaderRoundTrip(t *testing.T) {
	h := BlockMapPageHeader{
		VersionMajor: 1,
		VersionMinor: 2,
		Nonce:        0xabad1dea,
		PBN:          123456,
		Initialized:  true,
	}
	buf := PackBlockMapPageHeader(h)
	require.Len(t, buf, BlockMapPageHeaderSize)

	got, err := UnpackBlockMapPageHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestBlockMapPageHeaderUninitialized(t *testing.T) {
	h := BlockMapPageHeader{Nonce: 9}
	buf := PackBlockMapPageHeader(h)
	got, err := UnpackBlockMapPageHeader(buf)
	require.NoError(t, err)
	require.False(t, got.Initialized)
}

func TestBlockMapEntryRoundTrip(t *testing.T) {
	cases := []Mapping{
		{PBN: 0, State: MappingUnmapped},
		{PBN: 0, State: MappingZeroBlock},
		{PBN: 1<<36 - 1, State: MappingUncompressed},
		{PBN: 42, State: CompressedSlot(13)},
		{PBN: 42, State: CompressedSlot(0)},
	}
	for _, m := range cases {
		raw, err := PackBlockMapEntry(m)
		require.NoError(t, err)
		got, err := UnpackBlockMapEntry(raw)
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
}

func TestBlockMapEntryRejectsOversizedPBN(t *testing.T) {
	_, err := PackBlockMapEntry(Mapping{PBN: 1 << 36, State: MappingUncompressed})
	require.Error(t, err)
}

func TestEntriesPerPageMatchesClassicVDOLayout(t *testing.T) {
	require.Equal(t, 812, EntriesPerPage)
	require.Equal(t, 5, TreeHeight)
}
