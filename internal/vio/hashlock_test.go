package vio

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vdo/vdo/internal/dedupe"
	"github.com/vdo/vdo/internal/wait"
)

func testName(b byte) dedupe.RecordName {
	var n dedupe.RecordName
	n[0] = b
	return n
}

func TestHashLockJoinBeforeDecisionQueues(t *testing.T) {
	lock := NewHashLock(testName(1))
	var notified int
	w := &wait.Waiter{Callback: func(*wait.Waiter, any) { notified++ }}

	lock.Join(w)
	require.Equal(t, 1, lock.ReferenceCount())
	require.Equal(t, 0, notified, "querying hasn't resolved yet, so the waiter should not fire")

	lock.StartQuerying()
	lock.ReceiveQueryResult(dedupe.Advice{PBN: 7}, true)
	require.Equal(t, HashLockDeduping, lock.State)
}

func TestHashLockJoinAfterDecisionFiresImmediately(t *testing.T) {
	lock := NewHashLock(testName(2))
	lock.StartQuerying()
	lock.ReceiveQueryResult(dedupe.Advice{PBN: 9}, true)

	var notified int
	w := &wait.Waiter{Callback: func(*wait.Waiter, any) { notified++ }}
	lock.Join(w)
	require.Equal(t, 1, notified, "a joiner arriving once dedupe is decided should be notified right away")
}

func TestHashLockReleaseTransitionsToUnlockingAtZero(t *testing.T) {
	lock := NewHashLock(testName(3))
	lock.Join(&wait.Waiter{})
	lock.Join(&wait.Waiter{})

	require.False(t, lock.Release())
	require.Equal(t, HashLockInitializing, lock.State)
	require.True(t, lock.Release())
	require.Equal(t, HashLockUnlocking, lock.State)
}

func TestHashLockPoolExhaustion(t *testing.T) {
	pool := NewPool(1)
	_, err := pool.Acquire(testName(1))
	require.NoError(t, err)
	_, err = pool.Acquire(testName(2))
	require.Error(t, err)
}

func TestHashLockPoolReusesRetiredLock(t *testing.T) {
	pool := NewPool(1)
	first, err := pool.Acquire(testName(1))
	require.NoError(t, err)
	pool.Retire(first)

	second, err := pool.Acquire(testName(2))
	require.NoError(t, err)
	require.Equal(t, testName(2), second.Name)
	require.Equal(t, HashLockInitializing, second.State)
}
