package vio

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vdo/vdo/internal/format"
	"github.com/vdo/vdo/internal/vio/compress"
)

func TestReadUnmappedZeroFills(t *testing.T) {
	r := NewRead(1)
	require.NoError(t, r.SetMapping(format.Mapping{}))
	require.True(t, r.Done())
	require.Len(t, r.Data, format.BlockSize)
	for _, b := range r.Data {
		require.Zero(t, b)
	}
}

func TestReadUncompressedBlock(t *testing.T) {
	r := NewRead(1)
	require.NoError(t, r.SetMapping(format.Mapping{PBN: 5, State: format.MappingUncompressed}))
	require.Equal(t, ReadBlock, r.Phase)

	raw := make([]byte, format.BlockSize)
	raw[0] = 42
	require.NoError(t, r.SetPhysicalData(raw))
	require.True(t, r.Done())
	require.Equal(t, raw, r.Data)
}

func TestReadCompressedFragment(t *testing.T) {
	r := NewRead(1)
	require.NoError(t, r.SetMapping(format.Mapping{PBN: 5, State: format.CompressedSlot(2)}))
	require.NoError(t, r.SetPhysicalData(make([]byte, format.BlockSize)))
	require.Equal(t, ReadDecompress, r.Phase)

	compressor, decompressor := compress.Get(compress.Snappy)
	original := []byte("fragment payload for slot two")
	compressed := compressor.Compress(nil, original)

	block := make([]byte, format.BlockSize)
	copy(block[100:], compressed)
	dir := FragmentDirectory{fragments: []Fragment{
		{}, {},
		{Offset: 100, CompressedLen: len(compressed), UncompressedLen: len(original)},
	}}

	require.NoError(t, r.FinishDecompress(block, dir, decompressor))
	require.True(t, r.Done())
	require.Equal(t, original, r.Data)
}

func TestApplyPartialWriteOverlaysUpdate(t *testing.T) {
	original := make([]byte, 16)
	for i := range original {
		original[i] = byte(i)
	}
	out := ApplyPartialWrite(original, 4, []byte{0xff, 0xff})
	require.Equal(t, byte(0xff), out[4])
	require.Equal(t, byte(0xff), out[5])
	require.Equal(t, byte(6), out[6])
}

func TestIsZeroBlock(t *testing.T) {
	require.True(t, IsZeroBlock(make([]byte, format.BlockSize)))
	data := make([]byte, format.BlockSize)
	data[4000] = 1
	require.False(t, IsZeroBlock(data))
}
