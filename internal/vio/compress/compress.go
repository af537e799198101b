// Package compress implements the per-block compressor used by the
// compressed-write data-vio state: a data block is compressed
// in isolation (no cross-block dictionary) and the result is kept only if
// it is small enough to let the packer coalesce it with other fragments
// into a single physical block.
//
// Grounded on _examples/cockroachdb-pebble/internal/compression
// (Compressor/Decompressor split, per-algorithm Close), generalized
// from pebble's SSTable-block compression to VDO's fixed-size,
// single-block compression with a fallback-to-uncompressed contract
// instead of pebble's fallback-to-Snappy-from-MinLZ.
package compress

import (
	"encoding/binary"

	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/minlz"
	"github.com/golang/snappy"
)

// Algorithm identifies a compression backend. The set-compression admin
// command only switches compression on or off; it does not choose the
// algorithm.
type Algorithm uint8

const (
	// None stores blocks uncompressed (set-compression off).
	None Algorithm = iota
	Snappy
	MinLZ
	Zstd
)

// String renders the algorithm name for dump-status/stats output.
func (a Algorithm) String() string {
	switch a {
	case Snappy:
		return "snappy"
	case MinLZ:
		return "minlz"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

// Compressor compresses one data block in isolation.
type Compressor interface {
	// Compress appends the compressed form of src to dst[:0] and
	// returns the result. The caller supplies dst with enough capacity
	// to avoid reallocation in the common case.
	Compress(dst, src []byte) []byte
}

// Decompressor reverses a Compressor of the same Algorithm.
type Decompressor interface {
	// DecompressInto decodes compressed into dst, which must already be
	// sized to the original block length.
	DecompressInto(dst, compressed []byte) error
}

// Get returns the Compressor/Decompressor pair for algo. Panics on an
// unknown algorithm, matching the original's unconditional dispatch
// table (there is no "unknown compression kind" error path - the set of
// algorithms is fixed at compile time).
func Get(algo Algorithm) (Compressor, Decompressor) {
	switch algo {
	case Snappy:
		return snappyCompressor{}, snappyDecompressor{}
	case MinLZ:
		return minlzCompressor{level: minlz.LevelBalanced}, minlzDecompressor{}
	case Zstd:
		return zstdCompressor{}, zstdDecompressor{}
	default:
		return noopCompressor{}, noopDecompressor{}
	}
}

// snappy

type snappyCompressor struct{}

func (snappyCompressor) Compress(dst, src []byte) []byte {
	return snappy.Encode(dst[:cap(dst):cap(dst)], src)
}

type snappyDecompressor struct{}

func (snappyDecompressor) DecompressInto(dst, compressed []byte) error {
	result, err := snappy.Decode(dst[:0:len(dst)], compressed)
	if err != nil {
		return vdoerrors.ErrIOError.Wrap(err, "compress: snappy decode failed")
	}
	if len(result) != len(dst) {
		return vdoerrors.ErrIOError.Errorf("compress: snappy decoded length %d != expected %d", len(result), len(dst))
	}
	return nil
}

// minlz

type minlzCompressor struct{ level int }

func (c minlzCompressor) Compress(dst, src []byte) []byte {
	if len(src) > minlz.MaxBlockSize {
		return (snappyCompressor{}).Compress(dst, src)
	}
	compressed, err := minlz.Encode(dst, src, c.level)
	if err != nil {
		// A data block always fits comfortably under MinLZ's limits;
		// a failure here means corrupt input, not a recoverable
		// compression-ratio decision.
		panic(vdoerrors.ErrIOError.Wrap(err, "compress: minlz encode failed"))
	}
	return compressed
}

type minlzDecompressor struct{}

func (minlzDecompressor) DecompressInto(dst, compressed []byte) error {
	result, err := minlz.Decode(dst[:0:len(dst)], compressed)
	if err != nil {
		return vdoerrors.ErrIOError.Wrap(err, "compress: minlz decode failed")
	}
	if len(result) != len(dst) {
		return vdoerrors.ErrIOError.Errorf("compress: minlz decoded length %d != expected %d", len(result), len(dst))
	}
	return nil
}

// zstd

type zstdCompressor struct{}

func (zstdCompressor) Compress(dst, src []byte) []byte {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(vdoerrors.ErrIOError.Wrap(err, "compress: zstd encoder init failed"))
	}
	defer enc.Close()
	return enc.EncodeAll(src, dst[:0])
}

type zstdDecompressor struct{}

func (zstdDecompressor) DecompressInto(dst, compressed []byte) error {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return vdoerrors.ErrIOError.Wrap(err, "compress: zstd decoder init failed")
	}
	defer dec.Close()
	result, err := dec.DecodeAll(compressed, dst[:0])
	if err != nil {
		return vdoerrors.ErrIOError.Wrap(err, "compress: zstd decode failed")
	}
	if len(result) != len(dst) {
		return vdoerrors.ErrIOError.Errorf("compress: zstd decoded length %d != expected %d", len(result), len(dst))
	}
	return nil
}

// noop

type noopCompressor struct{}

func (noopCompressor) Compress(dst, src []byte) []byte { return append(dst[:0], src...) }

type noopDecompressor struct{}

func (noopDecompressor) DecompressInto(dst, compressed []byte) error {
	if len(compressed) != len(dst) {
		return vdoerrors.ErrIOError.Errorf("compress: uncompressed length %d != expected %d", len(compressed), len(dst))
	}
	copy(dst, compressed)
	return nil
}

// FragmentHeaderSize is the varint-prefix overhead the packer reserves
// once per packed block, on top of its per-slot directory room. Nothing
// is written into it; fragment lengths travel in the directory that
// Bin.Pack returns.
const FragmentHeaderSize = binary.MaxVarintLen32
