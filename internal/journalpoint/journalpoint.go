// Package journalpoint implements the total-ordered position of an entry
// within a recovery journal or slab journal.
package journalpoint

import "encoding/binary"

// Point is the absolute position of an entry: (sequence_number, entry_count).
type Point struct {
	SequenceNumber uint64
	EntryCount     uint16
}

// Zero is the invalid, unset point (sequence number 0).
var Zero = Point{}

// Valid reports whether p references a real entry; a point with sequence
// number 0 is not valid.
func (p Point) Valid() bool { return p.SequenceNumber > 0 }

// Advance moves p forward by one entry, wrapping entryCount into the
// sequence number when entriesPerBlock is reached.
func Advance(p Point, entriesPerBlock uint16) Point {
	p.EntryCount++
	if p.EntryCount == entriesPerBlock {
		p.SequenceNumber++
		p.EntryCount = 0
	}
	return p
}

// Before reports whether a strictly precedes b in the journal's total
// order (a strict total order).
func Before(a, b Point) bool {
	if a.SequenceNumber != b.SequenceNumber {
		return a.SequenceNumber < b.SequenceNumber
	}
	return a.EntryCount < b.EntryCount
}

// Equivalent reports whether a and b reference the same logical position.
func Equivalent(a, b Point) bool {
	return a.SequenceNumber == b.SequenceNumber && a.EntryCount == b.EntryCount
}

// Packed is the little-endian on-disk encoding of a Point: the low-order 48
// bits of the sequence number shifted up 16 bits, or'd with the 16-bit
// entry count.
type Packed [8]byte

// Pack encodes p into its on-disk representation.
func Pack(p Point) Packed {
	native := (p.SequenceNumber << 16) | uint64(p.EntryCount)
	var out Packed
	binary.LittleEndian.PutUint64(out[:], native)
	return out
}

// Unpack decodes a Packed back into a Point. Pack then Unpack is the
// identity for every valid Point whose sequence number fits in 48 bits.
func Unpack(p Packed) Point {
	native := binary.LittleEndian.Uint64(p[:])
	return Point{
		SequenceNumber: native >> 16,
		EntryCount:     uint16(native & 0xffff),
	}
}
