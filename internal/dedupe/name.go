// Package dedupe implements the in-memory half of VDO's dedupe index
//: the open (in-progress) chapter's name-to-location
// table, a bounded cache of closed chapters, and the triage/query
// request pipeline that decides, for each write, whether a matching
// chunk name is already known.
//
// Grounded on original_source/uds/{chapterIndex.c, openChapter.h,
// masterIndexOps.h, indexZone.c, request.h}. The original's open
// chapter index is a "delta index" - a bit-packed, list-compressed
// structure optimized for on-disk footprint per chapter. This package
// keeps the same query/update contract but stores the open chapter as
// a plain hash table (github.com/cockroachdb/swiss), since the
// delta-list compression is a storage-density optimization orthogonal
// to the dedupe semantics the spec actually requires; see DESIGN.md
// for the justification.
package dedupe

import "github.com/vdo/vdo/internal/format"

// RecordNameSize matches UDS_CHUNK_NAME_SIZE: names are the first 16
// bytes of a chunk's content hash.
const RecordNameSize = format.ChunkNameSize

// RecordName identifies a chunk's content for dedupe purposes.
type RecordName [RecordNameSize]byte

// Advice is what the index reports back about a record name: the
// physical location of a prior chunk with the same name, if any.
type Advice struct {
	PBN        uint64
	Compressed bool
}
