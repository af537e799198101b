// Package wait implements the single-threaded FIFO used to suspend
// operations until a condition elsewhere in their owning zone clears.
//
// A Queue is a circular singly-linked list of waiters with a single tail
// pointer, so Enqueue and Dequeue are both O(1). It is not safe for
// concurrent use: each Queue is owned by exactly one zone (,
// ).
package wait

// Callback is invoked when a waiter is notified. ctx is whatever the
// notifier supplied; it is not interpreted by the queue.
type Callback func(w *Waiter, ctx any)

// Matcher reports whether a waiter should be pulled out of a queue by
// DequeueMatching.
type Matcher func(w *Waiter, ctx any) bool

// Waiter is the queue entry. Callers embed it (or hold a pointer to one) in
// whatever state needs to suspend; the queue itself never looks past the
// next pointer and the callback.
type Waiter struct {
	next     *Waiter
	enqueued bool
	Callback Callback
}

// Queue is a FIFO of waiters.
type Queue struct {
	last *Waiter // tail; last.next is the head
	n    int
}

// Len returns the number of waiters currently enqueued.
func (q *Queue) Len() int { return q.n }

// Empty reports whether the queue has no waiters.
func (q *Queue) Empty() bool { return q.last == nil }

// Enqueue appends w to the tail of the queue. It panics if w is already
// enqueued somewhere, matching the original's ASSERT.
func (q *Queue) Enqueue(w *Waiter) {
	if w.enqueued {
		panic("wait: waiter already enqueued")
	}
	if q.last == nil {
		w.next = w
	} else {
		w.next = q.last.next
		q.last.next = w
	}
	q.last = w
	w.enqueued = true
	q.n++
}

// first returns the head of the queue without removing it.
func (q *Queue) first() *Waiter {
	if q.last == nil {
		return nil
	}
	return q.last.next
}

// DequeueNext removes and returns the head waiter, or nil if empty.
func (q *Queue) DequeueNext() *Waiter {
	first := q.first()
	if first == nil {
		return nil
	}
	if first == q.last {
		q.last = nil
	} else {
		q.last.next = first.next
	}
	first.next = nil
	first.enqueued = false
	q.n--
	return first
}

// NotifyNext dequeues the head waiter and invokes cb (or, if cb is nil, the
// waiter's own Callback) on it. Reports whether a waiter was notified.
func (q *Queue) NotifyNext(cb Callback, ctx any) bool {
	w := q.DequeueNext()
	if w == nil {
		return false
	}
	if cb == nil {
		cb = w.Callback
	}
	cb(w, ctx)
	return true
}

// TransferAll moves every waiter from q into dst, preserving order, leaving
// q empty. dst may already contain waiters; q's waiters are appended.
func (q *Queue) TransferAll(dst *Queue) {
	if q.Empty() {
		return
	}
	if !dst.Empty() {
		fromHead := q.last.next
		toHead := dst.last.next
		dst.last.next = fromHead
		q.last.next = toHead
	}
	dst.last = q.last
	dst.n += q.n
	q.last = nil
	q.n = 0
}

// NotifyAll drains the queue, invoking cb (or each waiter's own Callback
// when cb is nil) on every waiter that was enqueued at the time of the
// call. Waiters re-enqueued by the callback are not revisited, matching
// the original's copy-then-drain approach.
func (q *Queue) NotifyAll(cb Callback, ctx any) {
	var draining Queue
	q.TransferAll(&draining)
	for draining.NotifyNext(cb, ctx) {
	}
}

// DequeueMatching removes every waiter for which match returns true,
// appending them (in order) to matched. Waiters that don't match are left
// in q in their original relative order.
func (q *Queue) DequeueMatching(match Matcher, ctx any, matched *Queue) {
	var iter Queue
	q.TransferAll(&iter)
	for {
		w := iter.DequeueNext()
		if w == nil {
			break
		}
		if match(w, ctx) {
			matched.Enqueue(w)
		} else {
			q.Enqueue(w)
		}
	}
}

// Count returns the number of waiters in the queue (alias of Len, matching
// the original's distinct notify_all/count naming used by callers).
func (q *Queue) Count() int { return q.Len() }
