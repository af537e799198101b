// Package format holds the on-disk packed structures shared by the
// recovery journal, slab journal, block map, and super block,
// plus checksum helpers layered on top of the spec's literal byte formats
// for additional corruption detection (§B of SPEC_FULL.md).
package format

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// BlockSize is the fixed physical/logical block size in bytes.
const BlockSize = 4096

// ChunkNameSize is the dedupe fingerprint size in bytes.
const ChunkNameSize = 16

// Checksum64 computes an xxhash64 checksum over buf. It is a standalone
// helper: no packed structure in this module (slab journal, block-map
// pages, recovery journal) carries a Checksum64 field, and nothing in the
// module calls it; the recovery journal's 1-byte check byte is the only
// check stored on disk. Grounded on pebble's use of cespare/xxhash for
// block/record checksums throughout internal/record and sstable.
func Checksum64(buf []byte) uint64 {
	return xxhash.Sum64(buf)
}

// ComputeRecordName derives a chunk's dedupe fingerprint from its
// content. The original hashes each chunk with MurmurHash3 into a
// 16-byte name; this substitutes two independently salted
// xxhash64 sums for the same 16-byte fingerprint, keeping the single
// hash dependency internal/format already carries for checksums rather
// than adding a second hashing library for one extra caller.
func ComputeRecordName(data []byte) [ChunkNameSize]byte {
	var name [ChunkNameSize]byte
	h1 := xxhash.Sum64(data)
	h2 := xxhash.Sum64(append([]byte{0xff}, data...))
	PutUint64LE(name[0:8], h1)
	PutUint64LE(name[8:16], h2)
	return name
}

// PutUint64LE and GetUint64LE mirror the original's storeUInt64LE /
// getUInt64LE helpers used throughout the packed on-disk structs.
func PutUint64LE(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func GetUint64LE(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }

func PutUint32LE(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func GetUint32LE(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }

func PutUint16LE(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func GetUint16LE(b []byte) uint16    { return binary.LittleEndian.Uint16(b) }
