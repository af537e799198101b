package zone

import (
	"sync"
	"sync/atomic"
)

// notifierState mirrors read-only-notifier.c's anonymous state enum.
type notifierState int32

const (
	mayNotify notifierState = iota
	notifying
	mayNotNotify
	notified
)

// Listener is called once, on the admin thread, when the VDO enters
// read-only mode (read-only-notifier.c's vdo_read_only_notification).
type Listener func(errCode error)

// ReadOnlyNotifier lets any thread demote the VDO to read-only via a
// lock-free compare-and-swap race, and propagates that fact to every
// registered per-thread listener exactly once.
//
// The original's thread_data array gives each base thread its own cached
// is_read_only bit so a hot-path check never touches the shared atomics;
// this package keeps that shape with a per-thread (here, per registered
// listener group) atomic.Bool.
type ReadOnlyNotifier struct {
	errorClaimed atomic.Bool
	state        atomic.Int32

	mu          sync.Mutex
	readOnlyErr error
	listeners   []threadListeners
}

type threadListeners struct {
	isReadOnly atomic.Bool
	fns        []Listener
}

// NewReadOnlyNotifier creates a notifier with threadCount independent
// per-thread listener groups (one per base thread that needs its own
// cached is_read_only bit, e.g. each logical/physical/hash zone thread).
func NewReadOnlyNotifier(threadCount int) *ReadOnlyNotifier {
	n := &ReadOnlyNotifier{listeners: make([]threadListeners, threadCount)}
	n.state.Store(int32(mayNotify))
	return n
}

// RegisterListener adds fn to be called, on the admin thread, when thread
// threadID's read-only notification fires (read_only_notifier.c's
// vdo_register_read_only_listener).
func (n *ReadOnlyNotifier) RegisterListener(threadID int, fn Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[threadID].fns = append(n.listeners[threadID].fns, fn)
}

// IsReadOnly reports threadID's cached read-only bit, safe to call from
// any thread without synchronization ("each thread caches its
// own is_read_only bit, lock-free").
func (n *ReadOnlyNotifier) IsReadOnly(threadID ...int) bool {
	if len(threadID) == 0 {
		return notifierState(n.state.Load()) == notified || notifierState(n.state.Load()) == notifying
	}
	return n.listeners[threadID[0]].isReadOnly.Load()
}

// EnterReadOnlyMode attempts to put the VDO into read-only mode with the
// given cause. The first caller to win the CAS on the shared error word
// drives the notification; later callers (with this or any other error)
// are no-ops, matching vdo_enter_read_only_mode's "first error wins"
// contract.
func (n *ReadOnlyNotifier) EnterReadOnlyMode(err error) {
	if err == nil {
		return
	}
	if n.errorClaimed.CompareAndSwap(false, true) {
		n.mu.Lock()
		n.readOnlyErr = err
		n.mu.Unlock()
	}
	n.tryNotify()
}

// tryNotify attempts the state CAS from mayNotify to notifying; on
// success it walks every thread's listeners and marks them read-only. If
// notifications are currently disallowed (AllowNotifications(false) was
// called), the attempt is deferred: the state lands in mayNotNotify with
// the error already recorded, and AllowNotifications(true) re-drives the
// notification later ("notifications deferred ... are
// re-scheduled when re-allowed").
func (n *ReadOnlyNotifier) tryNotify() {
	if !n.state.CompareAndSwap(int32(mayNotify), int32(notifying)) {
		return
	}
	n.mu.Lock()
	causeErr := n.readOnlyErr
	for i := range n.listeners {
		tl := &n.listeners[i]
		if tl.isReadOnly.Load() {
			continue
		}
		tl.isReadOnly.Store(true)
		for _, fn := range tl.fns {
			fn(causeErr)
		}
	}
	n.mu.Unlock()
	n.state.CompareAndSwap(int32(notifying), int32(notified))
}

// AllowNotifications toggles whether EnterReadOnlyMode may proceed past
// the mayNotNotify state immediately. Disabling notifications is used
// while the VDO is still loading (before any thread has listeners worth
// calling); re-enabling replays any pending notification recorded while
// disabled.
func (n *ReadOnlyNotifier) AllowNotifications(allow bool) {
	if !allow {
		n.state.CompareAndSwap(int32(mayNotify), int32(mayNotNotify))
		return
	}
	if n.state.CompareAndSwap(int32(mayNotNotify), int32(mayNotify)) {
		if n.errorClaimed.Load() {
			n.tryNotify()
		}
	}
}
