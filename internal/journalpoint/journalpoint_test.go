package journalpoint

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		p := Point{
			SequenceNumber: uint64(r.Int63n(1 << 48)),
			EntryCount:     uint16(r.Intn(1 << 16)),
		}
		require.Equal(t, p, Unpack(Pack(p)))
	}
}

func TestBeforeIsStrictTotalOrder(t *testing.T) {
	a := Point{SequenceNumber: 1, EntryCount: 5}
	b := Point{SequenceNumber: 1, EntryCount: 6}
	c := Point{SequenceNumber: 2, EntryCount: 0}

	require.True(t, Before(a, b))
	require.True(t, Before(b, c))
	require.True(t, Before(a, c))
	require.False(t, Before(a, a))
	require.False(t, Before(b, a))
}

func TestAdvanceWrapsEntryCountIntoSequence(t *testing.T) {
	p := Point{SequenceNumber: 3, EntryCount: 9}
	p = Advance(p, 10)
	require.Equal(t, Point{SequenceNumber: 4, EntryCount: 0}, p)

	p = Advance(p, 10)
	require.Equal(t, Point{SequenceNumber: 4, EntryCount: 1}, p)
}

func TestEquivalent(t *testing.T) {
	a := Point{SequenceNumber: 7, EntryCount: 2}
	b := Point{SequenceNumber: 7, EntryCount: 2}
	c := Point{SequenceNumber: 7, EntryCount: 3}
	require.True(t, Equivalent(a, b))
	require.False(t, Equivalent(a, c))
}
