package vio

import (
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/format"
	"github.com/vdo/vdo/internal/vio/compress"
)

// ReadPhase is one step of the read path (vio-read.c's read_block_mapping
// -> read_block -> complete_data_vio, simpler than the write path since
// there is no dedupe decision to make).
type ReadPhase uint8

const (
	ReadStart ReadPhase = iota
	ReadMapping
	ReadBlock
	ReadDecompress
	ReadDone
)

func (p ReadPhase) String() string {
	names := [...]string{"start", "read-mapping", "read-block", "decompress", "done"}
	if int(p) < len(names) {
		return names[p]
	}
	return "unknown"
}

// ReadVio is one logical block's read in flight. A read that targets an
// unmapped or zero-block LBN never touches physical storage at all
// (vio-read.c's zero-fill short-circuit); a read of a compressed fragment
// decompresses the whole coalesced physical block and slices out its own
// fragment.
type ReadVio struct {
	LBN     uint64
	Mapping format.Mapping
	Phase   ReadPhase
	Err     error

	// Data holds the result: BlockSize zero bytes for an unmapped/zero
	// read, or the requested fragment/whole block otherwise.
	Data []byte
}

// NewRead creates a read-vio beginning the read path for lbn.
func NewRead(lbn uint64) *ReadVio {
	return &ReadVio{LBN: lbn, Phase: ReadStart}
}

// SetMapping supplies the LBN's current block-map mapping (read by the
// logical zone) and, for an unmapped or zero-block LBN, completes the
// read immediately with a zero-filled block.
func (r *ReadVio) SetMapping(m format.Mapping) error {
	if r.Phase != ReadStart {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: SetMapping called in phase %s", r.Phase)
	}
	r.Mapping = m
	r.Phase = ReadMapping

	if !m.IsMapped() || m.State == format.MappingZeroBlock {
		r.Data = make([]byte, format.BlockSize)
		r.Phase = ReadDone
		return nil
	}
	r.Phase = ReadBlock
	return nil
}

// SetPhysicalData supplies the raw bytes read back from Mapping.PBN. An
// uncompressed mapping completes directly; a compressed mapping moves to
// ReadDecompress so the caller can hand the whole coalesced block to
// FinishDecompress along with the fragment directory needed to slice out
// this read's own slot.
func (r *ReadVio) SetPhysicalData(raw []byte) error {
	if r.Phase != ReadBlock {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: SetPhysicalData called in phase %s", r.Phase)
	}
	if !r.Mapping.State.IsCompressed() {
		if len(raw) != format.BlockSize {
			return vdoerrors.ErrIOError.Errorf("vio: read block wrong size: got %d want %d", len(raw), format.BlockSize)
		}
		r.Data = raw
		r.Phase = ReadDone
		return nil
	}
	r.Phase = ReadDecompress
	return nil
}

// FinishDecompress completes a compressed read, given the coalesced
// block's fragment directory (as produced by the packer, see
// internal/vio/packer.go's Bin.Pack) and a Decompressor matching the
// algorithm the block was written with.
func (r *ReadVio) FinishDecompress(raw []byte, dir FragmentDirectory, decompressor compress.Decompressor) error {
	if r.Phase != ReadDecompress {
		return vdoerrors.ErrInvalidAdminState.Errorf("vio: FinishDecompress called in phase %s", r.Phase)
	}
	slot, ok := r.Mapping.State.SlotOf()
	if !ok {
		return vdoerrors.ErrCorruptJournal.Errorf("vio: mapping state %d is not a compressed slot", r.Mapping.State)
	}
	frag, ok := dir.Fragment(slot)
	if !ok {
		return vdoerrors.ErrCorruptJournal.Errorf("vio: compressed block has no fragment at slot %d", slot)
	}
	compressed := raw[frag.Offset : frag.Offset+frag.CompressedLen]
	dst := make([]byte, frag.UncompressedLen)
	if err := decompressor.DecompressInto(dst, compressed); err != nil {
		return err
	}
	r.Data = dst
	r.Phase = ReadDone
	return nil
}

// Done reports whether this read has completed.
func (r *ReadVio) Done() bool { return r.Phase == ReadDone }

// ApplyPartialWrite implements the read-modify-write cycle
// (modify_for_partial_write): overlays update atop the bytes already read
// at [offset, offset+len(update)), returning the full block ready to be
// handed to NewWrite.
func ApplyPartialWrite(original []byte, offset int, update []byte) []byte {
	out := make([]byte, len(original))
	copy(out, original)
	copy(out[offset:], update)
	return out
}

// IsZeroBlock reports whether data is entirely zero, letting the write
// path map it as MappingZeroBlock instead of allocating and writing a
// real physical block (zero-block short-circuit, mirrored
// from the read path's equivalent optimization).
func IsZeroBlock(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
