package format

import vdoerrors "github.com/vdo/vdo/internal/errors"

// Block map page on-disk layout, grounded on
// original_source/vdo/base/blockMapPage.h's struct block_map_page (a
// packed_version_number, a PageHeader carrying nonce/pbn/initialized,
// and a flexible array of block_map_entry) and the classic VDO 5-byte
// leaf-entry packing (36-bit PBN + 4-bit mapping state).

const (
	// versionSize is sizeof(struct packed_version_number): a major and
	// minor uint16.
	versionSize = 4

	// pageHeaderSize is sizeof(PageHeader): nonce(8) + pbn(8) +
	// unused_long_word(8) + initialized(1) + 3 unused bytes = 28.
	pageHeaderSize = 28

	// BlockMapPageHeaderSize is the total fixed header preceding a
	// block map page's entries.
	BlockMapPageHeaderSize = versionSize + pageHeaderSize

	// blockMapEntrySize is sizeof(block_map_entry): a 36-bit PBN packed
	// with a 4-bit mapping state into 5 bytes.
	blockMapEntrySize = 5

	// EntriesPerPage is the number of block_map_entry slots a single
	// block map page holds.
	EntriesPerPage = (BlockSize - BlockMapPageHeaderSize) / blockMapEntrySize

	// TreeHeight is the number of levels in a block map tree, root page
	// down to leaf page inclusive.
	TreeHeight = 5

	maxPBN = 1<<36 - 1
)

// BlockMapPageHeader is the decoded fixed header of a block map page:
// which VDO instance (by nonce) formatted it, which physical block it
// lives at, and whether it has completed its double-write
// initialization (is_block_map_page_initialized).
type BlockMapPageHeader struct {
	VersionMajor uint16
	VersionMinor uint16
	Nonce        uint64
	PBN          uint64
	Initialized  bool
}

// PackBlockMapPageHeader serializes h into its fixed on-disk layout.
func PackBlockMapPageHeader(h BlockMapPageHeader) []byte {
	buf := make([]byte, BlockMapPageHeaderSize)
	PutUint16LE(buf[0:2], h.VersionMajor)
	PutUint16LE(buf[2:4], h.VersionMinor)
	PutUint64LE(buf[4:12], h.Nonce)
	PutUint64LE(buf[12:20], h.PBN)
	if h.Initialized {
		buf[versionSize+8+8+8] = 1
	}
	return buf
}

// UnpackBlockMapPageHeader is the inverse of PackBlockMapPageHeader.
func UnpackBlockMapPageHeader(buf []byte) (BlockMapPageHeader, error) {
	if len(buf) < BlockMapPageHeaderSize {
		return BlockMapPageHeader{}, vdoerrors.ErrCorruptJournal.Errorf(
			"format: block map page header truncated: got %d bytes, want %d", len(buf), BlockMapPageHeaderSize)
	}
	return BlockMapPageHeader{
		VersionMajor: GetUint16LE(buf[0:2]),
		VersionMinor: GetUint16LE(buf[2:4]),
		Nonce:        GetUint64LE(buf[4:12]),
		PBN:          GetUint64LE(buf[12:20]),
		Initialized:  buf[versionSize+8+8+8] != 0,
	}, nil
}

// PackBlockMapEntry packs a physical block number and mapping state into
// the 5-byte leaf/interior entry encoding (36 bits of PBN, 4 bits of
// state).
func PackBlockMapEntry(m Mapping) ([blockMapEntrySize]byte, error) {
	if m.PBN > maxPBN {
		return [blockMapEntrySize]byte{}, vdoerrors.ErrInvalidArgument.Errorf(
			"format: block map PBN %d exceeds 36-bit range", m.PBN)
	}
	state, err := EncodeState(m.State)
	if err != nil {
		return [blockMapEntrySize]byte{}, err
	}
	var raw [blockMapEntrySize]byte
	raw[0] = byte(m.PBN)
	raw[1] = byte(m.PBN >> 8)
	raw[2] = byte(m.PBN >> 16)
	raw[3] = byte(m.PBN >> 24)
	raw[4] = byte(m.PBN>>32) & 0x0f
	raw[4] |= (state & 0x0f) << 4
	return raw, nil
}

// UnpackBlockMapEntry is the inverse of PackBlockMapEntry.
func UnpackBlockMapEntry(raw [blockMapEntrySize]byte) (Mapping, error) {
	pbn := uint64(raw[0]) | uint64(raw[1])<<8 | uint64(raw[2])<<16 |
		uint64(raw[3])<<24 | uint64(raw[4]&0x0f)<<32
	state, err := DecodeState((raw[4] >> 4) & 0x0f)
	if err != nil {
		return Mapping{}, err
	}
	return Mapping{PBN: pbn, State: state}, nil
}
