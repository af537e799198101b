package format

import (
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/journalpoint"
)

// Slab journal on-disk layout, grounded field-for-field on
// original_source/vdo/base/slabJournalFormat.h's packed_slab_journal_entry
// and packed_slab_journal_block_header.
//
// Each journal entry records a single reference-count adjustment as a
// 23-bit slab-block offset plus a 1-bit increment/decrement flag, packed
// into 3 bytes so a full block holds as many entries as will fit.

const (
	// SlabJournalBlockHeaderSize is sizeof(packed_slab_journal_block_header):
	// head(8) + sequence_number(8) + nonce(8) + recovery_point(8) +
	// metadata_type(1) + has_block_map_increments(1), rounded up to the
	// original's 36-byte packed layout (2 bytes of padding/entry_count
	// placement preserved from the C struct).
	SlabJournalBlockHeaderSize = 36

	// slabJournalEntrySize is sizeof(packed_slab_journal_entry): a 23-bit
	// offset plus 1-bit increment flag packed into 3 bytes.
	slabJournalEntrySize = 3

	// SlabJournalPayloadSize is the number of bytes in a slab journal
	// block available for entries once the header is subtracted.
	SlabJournalPayloadSize = BlockSize - SlabJournalBlockHeaderSize

	// SlabJournalEntriesPerBlock is the number of packed entries that fit
	// in a block with no block-map increments recorded (payload / 3).
	SlabJournalEntriesPerBlock = SlabJournalPayloadSize / slabJournalEntrySize

	// SlabJournalFullEntriesPerBlock is the entry capacity of a block that
	// also carries one entry_types bitfield byte per 8 entries, recording
	// which entries are block-map increments ('s
	// "has_block_map_increments" case): payload*8 bits split between
	// entries (3 bytes = 24 bits each) and type bits (1 bit each), i.e.
	// solving n*24 + n <= payload*8 for the largest integer n.
	SlabJournalFullEntriesPerBlock = (SlabJournalPayloadSize * 8) / 25

	// SlabJournalEntryTypesSize is the number of bytes of entry-type
	// bitmap carried in a block that has block-map increments, one bit
	// per full-capacity entry, rounded up to a whole byte.
	SlabJournalEntryTypesSize = (SlabJournalFullEntriesPerBlock + 7) / 8

	// maxSlabBlockOffset is the largest value the 23-bit packed offset
	// field can hold.
	maxSlabBlockOffset = 1<<23 - 1

	// SlabJournalMetadataType identifies a block as slab-journal metadata
	// (distinguishing it from block-map or recovery-journal blocks that
	// might otherwise land on the same physical block during recovery).
	SlabJournalMetadataType uint8 = 1
)

// PackedSlabJournalEntry is the 3-byte on-disk encoding of a single
// reference-count adjustment: a 23-bit slab-block offset and a 1-bit
// increment flag (true = increment, false = decrement).
type PackedSlabJournalEntry [slabJournalEntrySize]byte

// PackSlabJournalEntry packs a slab-block offset and increment flag into
// their 3-byte on-disk form.
func PackSlabJournalEntry(offset uint32, increment bool) (PackedSlabJournalEntry, error) {
	if offset > maxSlabBlockOffset {
		return PackedSlabJournalEntry{}, vdoerrors.ErrInvalidArgument.Errorf(
			"format: slab journal offset %d exceeds 23-bit range", offset)
	}
	var p PackedSlabJournalEntry
	p[0] = byte(offset)
	p[1] = byte(offset >> 8)
	p[2] = byte(offset>>16) & 0x7f
	if increment {
		p[2] |= 0x80
	}
	return p, nil
}

// Unpack returns the slab-block offset and increment flag encoded in p.
func (p PackedSlabJournalEntry) Unpack() (offset uint32, increment bool) {
	offset = uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2]&0x7f)<<16
	increment = p[2]&0x80 != 0
	return offset, increment
}

// SlabJournalBlockHeader is the decoded form of a slab journal block's
// fixed-size header. RecoveryPoint records the recovery
// journal point as of which this slab journal block's entries are
// guaranteed durable, used to bound replay during recovery.
type SlabJournalBlockHeader struct {
	Head                  uint64
	SequenceNumber        uint64
	Nonce                 uint64
	RecoveryPoint         journalpoint.Point
	MetadataType          uint8
	HasBlockMapIncrements bool
	EntryCount            uint16
}

// Capacity returns the number of entries this header's block can hold,
// which depends on whether it carries the block-map-increments type
// bitmap.
func (h SlabJournalBlockHeader) Capacity() int {
	if h.HasBlockMapIncrements {
		return SlabJournalFullEntriesPerBlock
	}
	return SlabJournalEntriesPerBlock
}

// PackSlabJournalBlockHeader serializes h into the fixed
// SlabJournalBlockHeaderSize-byte on-disk layout.
func PackSlabJournalBlockHeader(h SlabJournalBlockHeader) []byte {
	buf := make([]byte, SlabJournalBlockHeaderSize)
	PutUint64LE(buf[0:8], h.Head)
	PutUint64LE(buf[8:16], h.SequenceNumber)
	PutUint64LE(buf[16:24], h.Nonce)
	packed := journalpoint.Pack(h.RecoveryPoint)
	copy(buf[24:32], packed[:])
	buf[32] = h.MetadataType
	if h.HasBlockMapIncrements {
		buf[33] = 1
	}
	PutUint16LE(buf[34:36], h.EntryCount)
	return buf
}

// UnpackSlabJournalBlockHeader is the inverse of
// PackSlabJournalBlockHeader. It does not itself validate nonce or
// metadata type; callers compare against the expected slab nonce as part
// of the block-validity check described in .
func UnpackSlabJournalBlockHeader(buf []byte) (SlabJournalBlockHeader, error) {
	if len(buf) < SlabJournalBlockHeaderSize {
		return SlabJournalBlockHeader{}, vdoerrors.ErrCorruptJournal.Errorf(
			"format: slab journal header truncated: got %d bytes, want %d", len(buf), SlabJournalBlockHeaderSize)
	}
	var packed journalpoint.Packed
	copy(packed[:], buf[24:32])
	return SlabJournalBlockHeader{
		Head:                  GetUint64LE(buf[0:8]),
		SequenceNumber:        GetUint64LE(buf[8:16]),
		Nonce:                 GetUint64LE(buf[16:24]),
		RecoveryPoint:         journalpoint.Unpack(packed),
		MetadataType:          buf[32],
		HasBlockMapIncrements: buf[33] != 0,
		EntryCount:            GetUint16LE(buf[34:36]),
	}, nil
}
