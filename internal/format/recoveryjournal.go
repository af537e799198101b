package format

import vdoerrors "github.com/vdo/vdo/internal/errors"

// Recovery journal on-disk layout, grounded field-for-field
// on original_source/vdo/base/recoveryJournalEntry.h
// (packed_recovery_journal_entry) and packedRecoveryJournalBlock.h
// (packed_journal_header, packed_journal_sector).

const (
	// SectorSize is VDO_SECTOR_SIZE: recovery journal blocks are
	// written and torn-write-protected one sector at a time.
	SectorSize = 512

	// RecoveryJournalEntrySize is sizeof(packed_recovery_journal_entry):
	// a 2-byte (2-bit operation + 10-bit slot + 4-bit PBN-high-nibble)
	// header, a 4-byte PBN low word, and a 5-byte block map entry.
	RecoveryJournalEntrySize = 2 + 4 + blockMapEntrySize

	// RecoveryJournalBlockHeaderSize is sizeof(struct
	// recovery_block_header): block_map_head(8) + slab_journal_head(8) +
	// sequence_number(8) + nonce(8) + metadata_type(1) + entry_count(2) +
	// logical_blocks_used(8) + block_map_data_blocks(8) + check_byte(1) +
	// recovery_count(1).
	RecoveryJournalBlockHeaderSize = 8 + 8 + 8 + 8 + 1 + 2 + 8 + 8 + 1 + 1

	// journalSectorHeaderSize is sizeof(struct packed_journal_sector)
	// with no entries: check_byte(1) + recovery_count(1) + entry_count(1).
	journalSectorHeaderSize = 3

	// RecoveryJournalEntriesPerBlock caps the number of entries a block
	// may hold; the original fixes this at 311 for metadata-write
	// amortization reasons rather than deriving it from block size.
	RecoveryJournalEntriesPerBlock = 311

	// RecoveryJournalEntriesPerSector is how many entries fit in a full
	// sector once its 3-byte header is subtracted.
	RecoveryJournalEntriesPerSector = (SectorSize - journalSectorHeaderSize) / RecoveryJournalEntrySize

	// RecoveryJournalEntriesPerLastSector is the entry count of the
	// final, partially-filled sector of a full block.
	RecoveryJournalEntriesPerLastSector = RecoveryJournalEntriesPerBlock % RecoveryJournalEntriesPerSector

	// RecoveryJournalMetadataType identifies a block as recovery
	// journal metadata.
	RecoveryJournalMetadataType uint8 = 0

	slotPBNMask = 1<<36 - 1
	slotSlotMax = 1<<10 - 1
)

// Slot identifies a single entry's target: a block map page (by PBN)
// and the slot within that page's entries array.
type Slot struct {
	PBN  uint64
	Slot uint16
}

// RecoveryJournalEntry is one decoded entry: a block map slot acquiring
// or releasing a reference to a data location.
type RecoveryJournalEntry struct {
	Slot      Slot
	Mapping   Mapping
	Operation uint8 // 2-bit JournalOperation code
}

// PackRecoveryJournalEntry packs e into its 11-byte on-disk form.
func PackRecoveryJournalEntry(e RecoveryJournalEntry) ([RecoveryJournalEntrySize]byte, error) {
	if e.Slot.PBN > slotPBNMask {
		return [RecoveryJournalEntrySize]byte{}, vdoerrors.ErrInvalidArgument.Errorf(
			"format: recovery journal slot PBN %d exceeds 36-bit range", e.Slot.PBN)
	}
	if e.Slot.Slot > slotSlotMax {
		return [RecoveryJournalEntrySize]byte{}, vdoerrors.ErrInvalidArgument.Errorf(
			"format: recovery journal slot %d exceeds 10-bit range", e.Slot.Slot)
	}
	if e.Operation > 3 {
		return [RecoveryJournalEntrySize]byte{}, vdoerrors.ErrInvalidArgument.Errorf(
			"format: recovery journal operation %d exceeds 2-bit range", e.Operation)
	}

	mappingRaw, err := PackBlockMapEntry(e.Mapping)
	if err != nil {
		return [RecoveryJournalEntrySize]byte{}, err
	}

	var raw [RecoveryJournalEntrySize]byte
	header := uint16(e.Operation&0x3) | (e.Slot.Slot&0x3ff)<<2 | uint16(e.Slot.PBN>>32&0xf)<<12
	PutUint16LE(raw[0:2], header)
	PutUint32LE(raw[2:6], uint32(e.Slot.PBN))
	copy(raw[6:], mappingRaw[:])
	return raw, nil
}

// UnpackRecoveryJournalEntry is the inverse of PackRecoveryJournalEntry.
func UnpackRecoveryJournalEntry(raw [RecoveryJournalEntrySize]byte) (RecoveryJournalEntry, error) {
	header := GetUint16LE(raw[0:2])
	low32 := GetUint32LE(raw[2:6])
	high4 := uint64(header>>12) & 0xf
	var mappingRaw [blockMapEntrySize]byte
	copy(mappingRaw[:], raw[6:])
	mapping, err := UnpackBlockMapEntry(mappingRaw)
	if err != nil {
		return RecoveryJournalEntry{}, err
	}
	return RecoveryJournalEntry{
		Slot: Slot{
			PBN:  (high4 << 32) | uint64(low32),
			Slot: (header >> 2) & 0x3ff,
		},
		Mapping:   mapping,
		Operation: uint8(header & 0x3),
	}, nil
}

// RecoveryJournalBlockHeader is the decoded form of a recovery journal
// block's fixed header (struct recovery_block_header).
type RecoveryJournalBlockHeader struct {
	BlockMapHead       uint64
	SlabJournalHead    uint64
	SequenceNumber     uint64
	Nonce              uint64
	LogicalBlocksUsed  uint64
	BlockMapDataBlocks uint64
	EntryCount         uint16
	CheckByte          uint8
	RecoveryCount      uint8
	MetadataType       uint8
}

// PackRecoveryJournalBlockHeader serializes h into its fixed on-disk
// layout.
func PackRecoveryJournalBlockHeader(h RecoveryJournalBlockHeader) []byte {
	buf := make([]byte, RecoveryJournalBlockHeaderSize)
	PutUint64LE(buf[0:8], h.BlockMapHead)
	PutUint64LE(buf[8:16], h.SlabJournalHead)
	PutUint64LE(buf[16:24], h.SequenceNumber)
	PutUint64LE(buf[24:32], h.Nonce)
	buf[32] = h.MetadataType
	PutUint16LE(buf[33:35], h.EntryCount)
	PutUint64LE(buf[35:43], h.LogicalBlocksUsed)
	PutUint64LE(buf[43:51], h.BlockMapDataBlocks)
	buf[51] = h.CheckByte
	buf[52] = h.RecoveryCount
	return buf
}

// UnpackRecoveryJournalBlockHeader is the inverse of
// PackRecoveryJournalBlockHeader.
func UnpackRecoveryJournalBlockHeader(buf []byte) (RecoveryJournalBlockHeader, error) {
	if len(buf) < RecoveryJournalBlockHeaderSize {
		return RecoveryJournalBlockHeader{}, vdoerrors.ErrCorruptJournal.Errorf(
			"format: recovery journal header truncated: got %d bytes, want %d",
			len(buf), RecoveryJournalBlockHeaderSize)
	}
	return RecoveryJournalBlockHeader{
		BlockMapHead:       GetUint64LE(buf[0:8]),
		SlabJournalHead:    GetUint64LE(buf[8:16]),
		SequenceNumber:     GetUint64LE(buf[16:24]),
		Nonce:              GetUint64LE(buf[24:32]),
		MetadataType:       buf[32],
		EntryCount:         GetUint16LE(buf[33:35]),
		LogicalBlocksUsed:  GetUint64LE(buf[35:43]),
		BlockMapDataBlocks: GetUint64LE(buf[43:51]),
		CheckByte:          buf[51],
		RecoveryCount:      buf[52],
	}, nil
}

// ComputeRecoveryCheckByte computes the protection check byte for a
// given sequence number and journal size, matching
// compute_recovery_check_byte: it changes every trip around the
// (power-of-two-sized) circular journal, and always has its high bit
// set so a zeroed block can never be mistaken for a valid one.
func ComputeRecoveryCheckByte(sequence, size uint64) uint8 {
	return uint8((sequence/size)&0x7f) | 0x80
}

// SectorEntryCapacity returns how many entries the sector numbered
// sectorIndex (0-based) within a full block can hold: the last sector
// of a full block is partially filled.
func SectorEntryCapacity(sectorIndex int, sectorsPerBlock int) int {
	if sectorIndex == sectorsPerBlock-1 {
		return RecoveryJournalEntriesPerLastSector
	}
	return RecoveryJournalEntriesPerSector
}
