package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novadb/internal/index"
	"github.com/tuannm99/novadb/internal/lock"
)

func TestTransactionManager_BeginAssignsMonotonicIDs(t *testing.T) {
	tm := NewTransactionManager()
	a := tm.Begin(lock.RepeatableRead)
	b := tm.Begin(lock.RepeatableRead)

	require.Equal(t, int64(0), a.ID())
	require.Equal(t, int64(1), b.ID())
	require.Equal(t, lock.Growing, a.State())
}

func TestTransaction_TableLockBookkeeping(t *testing.T) {
	tr := newTransaction(0, lock.RepeatableRead)

	_, held := tr.TableLockMode(5)
	require.False(t, held)

	tr.GrantTableLock(lock.Shared, 5)
	mode, held := tr.TableLockMode(5)
	require.True(t, held)
	require.Equal(t, lock.Shared, mode)

	tr.RevokeTableLock(5)
	_, held = tr.TableLockMode(5)
	require.False(t, held)
}

func TestTransaction_HasAnyRowLockOnTable(t *testing.T) {
	tr := newTransaction(0, lock.RepeatableRead)
	require.False(t, tr.HasAnyRowLockOnTable(1))

	rid := index.RID{PageID: 1, SlotNum: 2}
	tr.GrantRowLock(lock.Exclusive, 1, rid)
	require.True(t, tr.HasAnyRowLockOnTable(1))
	require.False(t, tr.HasAnyRowLockOnTable(2))

	tr.RevokeRowLock(1, rid)
	require.False(t, tr.HasAnyRowLockOnTable(1))
}

func TestTransaction_MarkAbortedKeepsFirstReason(t *testing.T) {
	tr := newTransaction(0, lock.RepeatableRead)
	tr.MarkAborted(lock.Deadlock)
	tr.MarkAborted(lock.LockOnShrinking)

	require.Equal(t, lock.Aborted, tr.State())
	require.Equal(t, lock.Deadlock, tr.LastAbortReason())
}

func TestTransaction_EnterShrinkingOnlyFromGrowing(t *testing.T) {
	tr := newTransaction(0, lock.RepeatableRead)
	tr.EnterShrinking()
	require.Equal(t, lock.Shrinking, tr.State())

	tr2 := newTransaction(1, lock.RepeatableRead)
	tr2.MarkAborted(lock.Deadlock)
	tr2.EnterShrinking()
	require.Equal(t, lock.Aborted, tr2.State(), "aborted transactions never move to SHRINKING")
}

func TestTransactionManager_CommitReleasesLocksViaLockManager(t *testing.T) {
	tm := NewTransactionManager()
	lm := lock.NewManager(tm)
	tm.SetLockManager(lm)

	a := tm.Begin(lock.RepeatableRead)
	rid := index.RID{PageID: 0, SlotNum: 0}
	require.NoError(t, lm.LockTable(a, lock.IntentionExclusive, 1))
	require.NoError(t, lm.LockRow(a, lock.Exclusive, 1, rid))

	require.NoError(t, tm.Commit(a))
	require.Equal(t, lock.Committed, a.State())

	_, held := a.TableLockMode(1)
	require.False(t, held, "commit must release every table lock")
	_, held = a.RowLockMode(1, rid)
	require.False(t, held, "commit must release every row lock")
}
