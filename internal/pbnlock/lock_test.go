package pbnlock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBorrowReturnRestoresCapacity(t *testing.T) {
	p := NewPool(4)
	require.Equal(t, 4, p.Capacity())

	l1, err := p.Borrow(Write)
	require.NoError(t, err)
	l2, err := p.Borrow(Read)
	require.NoError(t, err)
	require.Equal(t, 2, p.Borrowed())

	p.Return(l1)
	p.Return(l2)
	require.Equal(t, 0, p.Borrowed())

	// Borrowing capacity locks again should all succeed.
	for i := 0; i < 4; i++ {
		_, err := p.Borrow(Read)
		require.NoError(t, err)
	}
	require.Equal(t, 4, p.Borrowed())
}

func TestBorrowPoolEmptyFails(t *testing.T) {
	p := NewPool(1)
	_, err := p.Borrow(Write)
	require.NoError(t, err)
	_, err = p.Borrow(Write)
	require.Error(t, err)
}

func TestReadLockClaimIncrementRespectsLimit(t *testing.T) {
	p := NewPool(1)
	l, err := p.Borrow(Read)
	require.NoError(t, err)
	l.incrementLimit = 2

	require.True(t, l.ClaimIncrement())
	require.True(t, l.ClaimIncrement())
	require.False(t, l.ClaimIncrement())
}

func TestDowngradeWriteToRead(t *testing.T) {
	p := NewPool(1)
	l, err := p.Borrow(Write)
	require.NoError(t, err)
	l.AddHolder()
	l.DowngradeWriteToRead(3)

	require.True(t, l.IsReadLock())
	require.Equal(t, uint32(0), l.HolderCount())
	require.True(t, l.ClaimIncrement())
}

type fakeAllocator struct{ released []uint64 }

func (f *fakeAllocator) ReleaseProvisionalReference(pbn uint64) error {
	f.released = append(f.released, pbn)
	return nil
}

func TestProvisionalReferenceLifecycle(t *testing.T) {
	p := NewPool(1)
	l, err := p.Borrow(Write)
	require.NoError(t, err)
	require.False(t, l.HasProvisionalReference())

	l.AssignProvisionalReference()
	require.True(t, l.HasProvisionalReference())

	alloc := &fakeAllocator{}
	require.NoError(t, l.ReleaseProvisionalReference(42, alloc))
	require.False(t, l.HasProvisionalReference())
	require.Equal(t, []uint64{42}, alloc.released)

	// Releasing again is a no-op.
	require.NoError(t, l.ReleaseProvisionalReference(42, alloc))
	require.Len(t, alloc.released, 1)
}

func TestLockTypeExclusivity(t *testing.T) {
	require.False(t, Read.IsExclusive())
	require.True(t, Write.IsExclusive())
	require.True(t, CompressedWrite.IsExclusive())
	require.True(t, BlockMapWrite.IsExclusive())
}
