package vio

import (
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/format"
	"github.com/vdo/vdo/internal/vio/compress"
)

// Fragment describes where one data-vio's compressed content lives within
// a coalesced physical block.
type Fragment struct {
	Offset          int
	CompressedLen   int
	UncompressedLen int
}

// FragmentDirectory is the packed layout of a coalesced physical block:
// where each slot's fragment lies within the block (packer.c's
// compressed_block_header + slot array). Bin.Pack reserves room for it
// at the start of the block but does not write it there; it returns the
// directory to the caller, and a later read needs that value to locate a
// fragment by slot.
type FragmentDirectory struct {
	fragments []Fragment
}

// Fragment returns fragment slot's location, if present.
func (d FragmentDirectory) Fragment(slot int) (Fragment, bool) {
	if slot < 0 || slot >= len(d.fragments) {
		return Fragment{}, false
	}
	f := d.fragments[slot]
	if f.CompressedLen == 0 {
		return Fragment{}, false
	}
	return f, true
}

// Bin is one of the packer's input bins (DEFAULT_PACKER_INPUT_BINS in the
// original): a partially-filled coalesced block accumulating compressed
// fragments from independent data-vios until it is full or drained by
// Packer.Flush (packer.c's struct packer_bin). This package has no flush
// timer and no memory-pressure flush.
type Bin struct {
	capacity  int // format.BlockSize, minus directory overhead
	used      int
	fragments []compressedFragment
}

type compressedFragment struct {
	vio  *DataVio
	data []byte
}

func directoryOverhead(slots int) int {
	// One Fragment record's worth of header per slot, plus the
	// compressor's own varint length prefix.
	return slots*3*8 + compress.FragmentHeaderSize
}

// NewBin creates an empty bin sized to accept up to
// format.MaxCompressedSlots fragments in one physical block.
func NewBin() *Bin {
	overhead := directoryOverhead(format.MaxCompressedSlots)
	return &Bin{capacity: format.BlockSize - overhead}
}

// Add attempts to add vio's already-compressed data to the bin. It fails
// (returns false) if the bin has no room or is already holding the
// maximum fragment count, in which case the caller should flush this bin
// and try a fresh one (packer.c's add_to_bin / select_bin).
func (b *Bin) Add(vio *DataVio, compressed []byte) bool {
	if len(b.fragments) >= format.MaxCompressedSlots {
		return false
	}
	if b.used+len(compressed) > b.capacity {
		return false
	}
	b.fragments = append(b.fragments, compressedFragment{vio: vio, data: compressed})
	b.used += len(compressed)
	return true
}

// Full reports whether the bin has no more usable room, matching the
// packer's is_bin_full check.
func (b *Bin) Full() bool {
	return len(b.fragments) >= format.MaxCompressedSlots || b.used >= b.capacity
}

// Empty reports whether the bin holds no fragments.
func (b *Bin) Empty() bool { return len(b.fragments) == 0 }

// Count returns the number of fragments currently held.
func (b *Bin) Count() int { return len(b.fragments) }

// Pack lays out the bin's fragments into one physical block's worth of
// bytes (packer.c's pack_fragments_into_block), assigning each fragment a
// slot in arrival order, and returns the directory a later read needs to
// locate them. The returned block is always exactly format.BlockSize
// bytes, zero-padded if the fragments don't fill it.
func (b *Bin) Pack() ([]byte, FragmentDirectory, error) {
	if b.Empty() {
		return nil, FragmentDirectory{}, vdoerrors.ErrInvalidArgument.Errorf("vio: cannot pack an empty bin")
	}
	block := make([]byte, format.BlockSize)
	dir := FragmentDirectory{fragments: make([]Fragment, len(b.fragments))}

	offset := directoryOverhead(len(b.fragments))
	for slot, frag := range b.fragments {
		if offset+len(frag.data) > format.BlockSize {
			return nil, FragmentDirectory{}, vdoerrors.ErrVolumeOverflow.Errorf(
				"vio: packed bin overflowed block size at slot %d", slot)
		}
		copy(block[offset:], frag.data)
		dir.fragments[slot] = Fragment{
			Offset:          offset,
			CompressedLen:   len(frag.data),
			UncompressedLen: len(frag.vio.Data),
		}
		frag.vio.EnterCompress(true, slot)
		offset += len(frag.data)
	}
	return block, dir, nil
}

// Fragments returns the data-vios held in the bin, for claiming fragment
// locks once the coalesced block is assigned a PBN.
func (b *Bin) Fragments() []*DataVio {
	out := make([]*DataVio, len(b.fragments))
	for i, f := range b.fragments {
		out[i] = f.vio
	}
	return out
}

// Packer owns a fixed set of input bins that compressed writes are routed
// into, coalescing up to format.MaxCompressedSlots fragments per physical
// block. Grounded on packer.c's struct
// packer and its DEFAULT_PACKER_INPUT_BINS bin ring; this package omits
// the original's separate output-bin pool since Go's goroutine-per-flush
// model doesn't need a bounded concurrent-write pool distinct from the
// bin list itself.
type Packer struct {
	bins        []*Bin
	compressor  compress.Compressor
	algorithm   compress.Algorithm
	compression bool
}

// NewPacker creates a packer with binCount input bins, compressing
// fragments with algo. Compression starts enabled; see SetCompression.
func NewPacker(binCount int, algo compress.Algorithm) *Packer {
	bins := make([]*Bin, binCount)
	for i := range bins {
		bins[i] = NewBin()
	}
	compressor, _ := compress.Get(algo)
	return &Packer{bins: bins, compressor: compressor, algorithm: algo, compression: true}
}

// SetCompression toggles compression on/off, matching the
// set-compression admin command (spec.md §6). When disabled, Submit
// always rejects fragments so every write falls back to WriteBlock
// uncompressed.
func (p *Packer) SetCompression(enabled bool) { p.compression = enabled }

// CompressionEnabled reports the current set-compression state.
func (p *Packer) CompressionEnabled() bool { return p.compression }

// Submit compresses vio's data and offers it to the first bin with room,
// returning the bin it landed in (now Full if it just became so) or nil
// if compression is disabled or every bin is full (the caller then writes
// vio's data uncompressed instead, matching vio-write.c's
// "if (compressing and not mooted and has no waiters)" gate falling
// through to write_block).
func (p *Packer) Submit(vio *DataVio) *Bin {
	if !p.compression {
		return nil
	}
	compressed := p.compressor.Compress(nil, vio.Data)
	if len(compressed) >= len(vio.Data) {
		// Incompressible: packing it would waste space for no benefit.
		return nil
	}
	for _, bin := range p.bins {
		if bin.Full() {
			continue
		}
		if bin.Add(vio, compressed) {
			return bin
		}
	}
	return nil
}

// FullBins returns every bin currently at capacity, ready to be flushed.
func (p *Packer) FullBins() []*Bin {
	var full []*Bin
	for _, b := range p.bins {
		if b.Full() && !b.Empty() {
			full = append(full, b)
		}
	}
	return full
}

// Flush returns every non-empty bin regardless of fullness, replacing
// each with a fresh one, for use by the admin drain-packer phase
// which must empty the packer rather than wait
// for bins to fill naturally.
func (p *Packer) Flush() []*Bin {
	var drained []*Bin
	for i, b := range p.bins {
		if !b.Empty() {
			drained = append(drained, b)
			p.bins[i] = NewBin()
		}
	}
	return drained
}
