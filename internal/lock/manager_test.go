package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novadb/internal/index"
	"github.com/tuannm99/novadb/internal/lock"
	"github.com/tuannm99/novadb/internal/txn"
)

func newWiredManagers() (*txn.TransactionManager, *lock.Manager) {
	tm := txn.NewTransactionManager()
	lm := lock.NewManager(tm)
	tm.SetLockManager(lm)
	return tm, lm
}

func TestLockManager_RowLockWithoutTableLockAborts(t *testing.T) {
	tm, lm := newWiredManagers()
	a := tm.Begin(lock.RepeatableRead)

	err := lm.LockRow(a, lock.Shared, 1, index.RID{PageID: 0, SlotNum: 0})
	require.Error(t, err)

	var aborted *lock.TransactionAbortedError
	require.True(t, errors.As(err, &aborted))
	require.Equal(t, lock.TableLockNotPresent, aborted.Reason)
	require.Equal(t, lock.Aborted, a.State())
}

func TestLockManager_UpgradeConflictAbortsSecondUpgrader(t *testing.T) {
	tm, lm := newWiredManagers()
	a := tm.Begin(lock.RepeatableRead)
	b := tm.Begin(lock.RepeatableRead)

	require.NoError(t, lm.LockTable(a, lock.Shared, 7))
	require.NoError(t, lm.LockTable(b, lock.Shared, 7))

	done := make(chan error, 1)
	go func() { done <- lm.LockTable(a, lock.Exclusive, 7) }()

	// Give a's upgrade request time to register before b tries to upgrade too.
	time.Sleep(20 * time.Millisecond)

	err := lm.LockTable(b, lock.Exclusive, 7)
	require.Error(t, err)
	var aborted *lock.TransactionAbortedError
	require.True(t, errors.As(err, &aborted))
	require.Equal(t, lock.UpgradeConflict, aborted.Reason)

	require.NoError(t, lm.UnlockTable(b, 7))
	require.NoError(t, <-done)
	require.Equal(t, lock.Exclusive, must(a.TableLockMode(7)))
}

func must(mode lock.LockMode, ok bool) lock.LockMode {
	if !ok {
		panic("expected lock to be held")
	}
	return mode
}

func TestLockManager_CompatibleSharedLocksBothGrant(t *testing.T) {
	tm, lm := newWiredManagers()
	a := tm.Begin(lock.RepeatableRead)
	b := tm.Begin(lock.RepeatableRead)

	require.NoError(t, lm.LockTable(a, lock.Shared, 1))
	require.NoError(t, lm.LockTable(b, lock.Shared, 1))
}

func TestLockManager_SharedOnReadUncommittedAborts(t *testing.T) {
	tm, lm := newWiredManagers()
	a := tm.Begin(lock.ReadUncommitted)

	err := lm.LockTable(a, lock.Shared, 1)
	require.Error(t, err)
	var aborted *lock.TransactionAbortedError
	require.True(t, errors.As(err, &aborted))
	require.Equal(t, lock.LockSharedOnReadUncommitted, aborted.Reason)
}

func TestLockManager_UnlockTableBeforeRowsAborts(t *testing.T) {
	tm, lm := newWiredManagers()
	a := tm.Begin(lock.RepeatableRead)
	rid := index.RID{PageID: 1, SlotNum: 0}

	require.NoError(t, lm.LockTable(a, lock.IntentionExclusive, 1))
	require.NoError(t, lm.LockRow(a, lock.Exclusive, 1, rid))

	err := lm.UnlockTable(a, 1)
	require.Error(t, err)
	var aborted *lock.TransactionAbortedError
	require.True(t, errors.As(err, &aborted))
	require.Equal(t, lock.TableUnlockedBeforeUnlockingRows, aborted.Reason)
}

func TestLockManager_RepeatableReadShrinksOnSharedUnlock(t *testing.T) {
	tm, lm := newWiredManagers()
	a := tm.Begin(lock.RepeatableRead)

	require.NoError(t, lm.LockTable(a, lock.Shared, 1))
	require.Equal(t, lock.Growing, a.State())
	require.NoError(t, lm.UnlockTable(a, 1))
	require.Equal(t, lock.Shrinking, a.State())

	err := lm.LockTable(a, lock.Shared, 2)
	require.Error(t, err)
	var aborted *lock.TransactionAbortedError
	require.True(t, errors.As(err, &aborted))
	require.Equal(t, lock.LockOnShrinking, aborted.Reason)
}

func TestDeadlockDetector_AbortsYoungestTransactionInCycle(t *testing.T) {
	tm, lm := newWiredManagers()
	t0 := tm.Begin(lock.RepeatableRead)
	t1 := tm.Begin(lock.RepeatableRead)

	r0 := index.RID{PageID: 0, SlotNum: 0}
	r1 := index.RID{PageID: 1, SlotNum: 0}

	require.NoError(t, lm.LockTable(t0, lock.IntentionExclusive, 1))
	require.NoError(t, lm.LockTable(t1, lock.IntentionExclusive, 1))
	require.NoError(t, lm.LockRow(t0, lock.Exclusive, 1, r0))
	require.NoError(t, lm.LockRow(t1, lock.Exclusive, 1, r1))

	t0Blocked := make(chan error, 1)
	t1Blocked := make(chan error, 1)
	go func() { t0Blocked <- lm.LockRow(t0, lock.Exclusive, 1, r1) }()
	time.Sleep(10 * time.Millisecond)
	go func() { t1Blocked <- lm.LockRow(t1, lock.Exclusive, 1, r0) }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lm.RunDeadlockDetector(ctx, 15*time.Millisecond)

	select {
	case err := <-t1Blocked:
		require.Error(t, err)
		var aborted *lock.TransactionAbortedError
		require.True(t, errors.As(err, &aborted))
		require.Equal(t, lock.Deadlock, aborted.Reason)
		require.Equal(t, int64(1), aborted.TxnID)
		// Roll the victim back so its X lock on r1 is released.
		require.NoError(t, tm.AbortTransaction(t1, lock.Deadlock))
	case <-time.After(2 * time.Second):
		t.Fatal("deadlock detector never aborted txn 1")
	}

	select {
	case err := <-t0Blocked:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("txn 0 never completed its lock acquisition after txn 1 was aborted")
	}
}
