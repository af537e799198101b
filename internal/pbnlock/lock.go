// Package pbnlock implements per-physical-block locks and a fixed-capacity
// pool they are borrowed from. A lock is owned for the lifetime
// of a data-vio's reference to a physical block number; at most one
// write-type lock, or any number of compatible read locks, may be held on a
// given PBN at once.
package pbnlock

import (
	"sync/atomic"

	vdoerrors "github.com/vdo/vdo/internal/errors"
)

// Type identifies the kind of PBN lock. Types are ordered so that
// write-class locks (Write, CompressedWrite, BlockMapWrite) are mutually
// exclusive with each other and with Read.
type Type uint8

const (
	Read Type = iota
	Write
	CompressedWrite
	BlockMapWrite
)

// IsExclusive reports whether this lock type is a write-class lock, i.e.
// mutually exclusive with every other lock on the same PBN.
func (t Type) IsExclusive() bool { return t != Read }

// Lock is a single per-PBN lock instance. The zero value is an idle lock
// ready to be (re)initialized by a pool.
type Lock struct {
	typ Type

	// holderCount is the number of data-vios holding or sharing this lock.
	holderCount uint32

	// fragmentLocks is the number of compressed-block writers holding a
	// share of this lock while acquiring a reference to the PBN during
	// packer fragment coalescing.
	fragmentLocks uint8

	hasProvisionalReference bool

	// incrementLimit is, for read locks, the number of reference
	// increments known available on the locked block at acquisition time.
	incrementLimit uint8

	// incrementsClaimed counts claims made against incrementLimit; each
	// claim increments this first, so it can exceed incrementLimit -
	// callers must check the return of ClaimIncrement, not this field.
	incrementsClaimed atomic.Uint32
}

// Initialize resets lock to a fresh lock of the given type. Called only by
// the pool when a lock is borrowed.
func (l *Lock) Initialize(typ Type) {
	*l = Lock{typ: typ}
}

// Type returns the lock's type.
func (l *Lock) Type() Type { return l.typ }

// IsReadLock reports whether this is a read-type lock.
func (l *Lock) IsReadLock() bool { return l.typ == Read }

// HolderCount returns the number of data-vios currently holding this lock.
func (l *Lock) HolderCount() uint32 { return l.holderCount }

// AddHolder increments the holder count, e.g. when another data-vio joins
// a shared read lock.
func (l *Lock) AddHolder() { l.holderCount++ }

// RemoveHolder decrements the holder count.
func (l *Lock) RemoveHolder() {
	if l.holderCount > 0 {
		l.holderCount--
	}
}

// DowngradeWriteToRead converts a write lock to a read lock. The holder
// count is cleared; the caller is responsible for setting the new count and
// the increment limit, matching the original downgradePBNWriteLock.
func (l *Lock) DowngradeWriteToRead(incrementLimit uint8) {
	l.typ = Read
	l.holderCount = 0
	l.incrementLimit = incrementLimit
	l.incrementsClaimed.Store(0)
}

// ClaimIncrement attempts to claim one of the reference-count increments
// available on the locked block. It is safe to call from any thread
// concurrently; it succeeds only while the number of claims made does not
// exceed the limit recorded at acquisition.
func (l *Lock) ClaimIncrement() bool {
	if !l.IsReadLock() {
		return false
	}
	claimed := l.incrementsClaimed.Add(1)
	return claimed <= uint32(l.incrementLimit)
}

// HasProvisionalReference reports whether this lock is responsible for a
// provisional reference on its PBN.
func (l *Lock) HasProvisionalReference() bool { return l.hasProvisionalReference }

// AssignProvisionalReference records that this lock now owns a provisional
// reference.
func (l *Lock) AssignProvisionalReference() { l.hasProvisionalReference = true }

// UnassignProvisionalReference clears provisional-reference ownership
// without releasing it (used when the reference is converted to a real
// increment on commit).
func (l *Lock) UnassignProvisionalReference() { l.hasProvisionalReference = false }

// ProvisionalReleaser releases a provisional reference held on behalf of a
// lock. Implemented by the slab depot's allocator.
type ProvisionalReleaser interface {
	ReleaseProvisionalReference(pbn uint64) error
}

// ReleaseProvisionalReference releases the lock's provisional reference, if
// any, via allocator, and clears the flag. It is a no-op if the lock holds
// no provisional reference.
func (l *Lock) ReleaseProvisionalReference(pbn uint64, allocator ProvisionalReleaser) error {
	if !l.hasProvisionalReference {
		return nil
	}
	if err := allocator.ReleaseProvisionalReference(pbn); err != nil {
		return err
	}
	l.hasProvisionalReference = false
	return nil
}

// AddFragmentLock records that one more compressed-block fragment is
// sharing this compressed-write lock via ClaimIncrement-style coalescing.
func (l *Lock) AddFragmentLock() { l.fragmentLocks++ }

// FragmentLocks returns the number of fragments sharing this lock.
func (l *Lock) FragmentLocks() uint8 { return l.fragmentLocks }

// Pool is a fixed-capacity set of Locks. Borrow fails with a pool-empty
// error rather than allocating, matching  and  (lock-free
// fixed-capacity pools whose acquisition failures enqueue the caller on a
// wait queue at a higher level).
type Pool struct {
	locks    []Lock
	idle     []*Lock
	borrowed int
}

// NewPool allocates a pool with the given capacity, sized to the maximum
// concurrent data-vios plus compressed-write slack.
func NewPool(capacity int) *Pool {
	p := &Pool{
		locks: make([]Lock, capacity),
		idle:  make([]*Lock, 0, capacity),
	}
	for i := range p.locks {
		p.idle = append(p.idle, &p.locks[i])
	}
	return p
}

// Capacity returns the total number of locks in the pool.
func (p *Pool) Capacity() int { return len(p.locks) }

// Borrowed returns the number of locks currently on loan.
func (p *Pool) Borrowed() int { return p.borrowed }

// Borrow removes an idle lock from the pool, initializes it with typ, and
// returns it. Returns a LockError wrapped with vdoerrors.ErrLockError if the
// pool is empty.
func (p *Pool) Borrow(typ Type) (*Lock, error) {
	if len(p.idle) == 0 {
		return nil, vdoerrors.ErrLockError.Errorf("no free PBN locks left to borrow")
	}
	n := len(p.idle) - 1
	l := p.idle[n]
	p.idle = p.idle[:n]
	l.Initialize(typ)
	p.borrowed++
	return l, nil
}

// Return zeroes lock and returns it to the idle list. lock must have been
// borrowed from this pool and must be the last live reference to it.
func (p *Pool) Return(lock *Lock) {
	*lock = Lock{}
	p.idle = append(p.idle, lock)
	p.borrowed--
}
