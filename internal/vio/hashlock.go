// Package vio implements the per-I/O state machines that drive a block
// through VDO's write and read paths: the hash-lock pipeline
// that coalesces concurrent writes of identical content onto a single
// dedupe decision, the data-vio write/read/dedupe-verify/compressed-write
// state machines, and the packer that coalesces small compressed writes
// into shared physical blocks.
//
// Grounded on original_source/vdo/{hash-lock.c, hash-lock.h, vio-write.c,
// vio-read.c, packer.c, packer.h}, translated from the original's
// completion/callback continuation style into explicit Go state values
// advanced by caller-driven transition methods, in the same spirit as this module's other
// state machines (internal/slabdepot's scrubber, internal/recoveryjournal's
// reap cycle).
package vio

import (
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/dedupe"
	"github.com/vdo/vdo/internal/pbnlock"
	"github.com/vdo/vdo/internal/wait"
)

// HashLockState is one state in the hash-lock pipeline
// (, hash-lock.h's enum hash_lock_state). The original
// also has LOCKING/VERIFYING/BYPASSING/DESTROYING states that only matter
// to the kernel's lock directory; this package collapses those into
// Deduping/Unlocking since a single in-process lock directory doesn't need
// the extra bookkeeping states.
type HashLockState uint8

const (
	HashLockInitializing HashLockState = iota
	HashLockQuerying
	HashLockWriting
	HashLockUpdating
	HashLockDeduping
	HashLockUnlocking
)

func (s HashLockState) String() string {
	switch s {
	case HashLockQuerying:
		return "querying"
	case HashLockWriting:
		return "writing"
	case HashLockUpdating:
		return "updating"
	case HashLockDeduping:
		return "deduping"
	case HashLockUnlocking:
		return "unlocking"
	default:
		return "initializing"
	}
}

// HashLock coalesces every data-vio writing the same record name onto one
// dedupe decision: the first arrival drives the index query (or the
// compressed write, if dedupe misses), and every later arrival with the
// same name waits on it instead of repeating the query
// (hash-lock.c's struct hash_lock, acquire_lock/enter_locking_state).
type HashLock struct {
	Name  dedupe.RecordName
	State HashLockState

	// Advice is the duplicate location discovered (or agreed upon), once
	// known.
	Advice dedupe.Advice

	// UpdateAdvice records whether the index should be updated with new
	// (PBN, name) advice once the write completes - mirrors
	// update_advice in hash-lock.h: true until a query finds an
	// existing, verified match.
	UpdateAdvice bool

	// duplicateLock is the PBN read-lock held on the duplicate block
	// while other data-vios are deduping against it
	// (hash_lock.duplicate_lock).
	duplicateLock *pbnlock.Lock

	waiters        wait.Queue
	referenceCount int
}

// NewHashLock creates a lock for name in its initial state, owned by the
// first data-vio to request the dedupe decision.
func NewHashLock(name dedupe.RecordName) *HashLock {
	return &HashLock{Name: name, State: HashLockInitializing, UpdateAdvice: true}
}

// Join adds w to the set of data-vios sharing this lock's decision,
// mirroring enter_hash_lock's attaching of a newly arrived data-vio to an
// existing lock already in flight.
func (l *HashLock) Join(w *wait.Waiter) {
	l.referenceCount++
	if l.State == HashLockDeduping {
		// A decision is already known; wake w immediately rather than
		// queuing it behind a pipeline stage that has already run.
		if w.Callback != nil {
			w.Callback(w, l)
		}
		return
	}
	l.waiters.Enqueue(w)
}

// ReferenceCount returns how many data-vios currently share this lock.
func (l *HashLock) ReferenceCount() int { return l.referenceCount }

// Release drops one reference; when the last one is released, the lock
// transitions to Unlocking so its owner can release duplicateLock and
// return the lock to its pool (bottleneck of
// start_deduping/release_hash_lock_reference).
func (l *HashLock) Release() bool {
	l.referenceCount--
	if l.referenceCount <= 0 {
		l.State = HashLockUnlocking
		return true
	}
	return false
}

// StartQuerying transitions to Querying, the state entered once a new
// lock's first data-vio has finished hashing its data and is about to
// issue a dedupe-index query (hash_data -> acquire_hash_lock ->
// start_querying).
func (l *HashLock) StartQuerying() { l.State = HashLockQuerying }

// ReceiveQueryResult records the index's answer to the query. If the
// index found no advice, the lock moves to Writing (the non-dedupe path,
// compress-or-write-then-update-index); if it found advice, the lock
// moves to Deduping once the caller has attempted (and the caller is
// responsible for attempting) to verify and lock the duplicate block - this
// package only tracks the state transition, since the read-verify I/O
// itself belongs to the data-vio driving this lock.
func (l *HashLock) ReceiveQueryResult(advice dedupe.Advice, found bool) {
	if !found {
		l.State = HashLockWriting
		return
	}
	l.Advice = advice
	l.State = HashLockDeduping
	l.UpdateAdvice = false
	l.waiters.NotifyAll(nil, l)
}

// AcquireDuplicateLock records the PBN read lock taken on the duplicate
// block once Advice has been verified, so later joiners can add their own
// reference-count increment against it via lock.ClaimIncrement().
func (l *HashLock) AcquireDuplicateLock(lock *pbnlock.Lock) { l.duplicateLock = lock }

// DuplicateLock returns the PBN lock on the duplicate block, or nil if
// none is held.
func (l *HashLock) DuplicateLock() *pbnlock.Lock { return l.duplicateLock }

// StartUpdating transitions from Writing/Querying to Updating, entered
// once this data-vio's own write (compressed or not) has committed and
// the dedupe index should be told about the new block
// (vio-write.c's vdo_update_dedupe_index call after a non-dedupe write).
func (l *HashLock) StartUpdating() { l.State = HashLockUpdating }

// Finish transitions the lock to Unlocking and releases every waiter,
// used when a synchronous bypass (e.g. no dedupe index configured) skips
// the query/dedupe states entirely.
func (l *HashLock) Finish() {
	l.State = HashLockUnlocking
	l.waiters.NotifyAll(nil, l)
}

// Pool is a fixed-capacity directory of in-flight hash locks keyed by
// record name, mirroring hash-lock.c's hash_zone lock map plus its free
// list of pooled struct hash_lock instances.
type Pool struct {
	capacity int
	locks    map[dedupe.RecordName]*HashLock
	idle     []*HashLock
}

// NewPool creates a hash-lock directory with room for capacity
// concurrently active locks.
func NewPool(capacity int) *Pool {
	return &Pool{capacity: capacity, locks: make(map[dedupe.RecordName]*HashLock, capacity)}
}

// Acquire returns the existing lock for name, if any is active, or
// allocates a fresh one from the idle free list (or a new allocation if
// the free list is empty and the pool has room). Returns an error if the
// pool is already at capacity and has no idle lock to reuse.
func (p *Pool) Acquire(name dedupe.RecordName) (*HashLock, error) {
	if l, ok := p.locks[name]; ok {
		return l, nil
	}
	var l *HashLock
	if n := len(p.idle); n > 0 {
		l = p.idle[n-1]
		p.idle = p.idle[:n-1]
		*l = *NewHashLock(name)
	} else if len(p.locks) < p.capacity {
		l = NewHashLock(name)
	} else {
		return nil, vdoerrors.ErrLockError.Errorf("vio: hash lock pool exhausted (capacity %d)", p.capacity)
	}
	p.locks[name] = l
	return l, nil
}

// Retire removes l from the active directory and returns it to the idle
// free list, called once Release reports the last reference gone and the
// owner has finished the Unlocking state's cleanup.
func (p *Pool) Retire(l *HashLock) {
	delete(p.locks, l.Name)
	p.idle = append(p.idle, l)
}

// Active returns the number of hash locks currently in use.
func (p *Pool) Active() int { return len(p.locks) }
