package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripAllAlgorithms(t *testing.T) {
	src := bytes.Repeat([]byte("vdo-data-block-compression-tests"), 128) // 4096 bytes
	require.Len(t, src, 4096)

	for _, algo := range []Algorithm{None, Snappy, MinLZ, Zstd} {
		t.Run(algo.String(), func(t *testing.T) {
			compressor, decompressor := Get(algo)
			compressed := compressor.Compress(nil, src)

			dst := make([]byte, len(src))
			require.NoError(t, decompressor.DecompressInto(dst, compressed))
			require.Equal(t, src, dst)
		})
	}
}

func TestNoopRejectsLengthMismatch(t *testing.T) {
	_, decompressor := Get(None)
	err := decompressor.DecompressInto(make([]byte, 4), []byte{1, 2, 3})
	require.Error(t, err)
}
