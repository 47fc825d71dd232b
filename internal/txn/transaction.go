// Package txn implements transactions and the transaction manager: the
// GROWING/SHRINKING/COMMITTED/ABORTED state machine, isolation levels,
// and the per-transaction lock sets consulted (and mutated) by the lock
// manager through the lock.TxnHandle interface.
package txn

import (
	"sync"

	"github.com/tuannm99/novadb/internal/index"
	"github.com/tuannm99/novadb/internal/lock"
)

type rowKey struct {
	table int32
	rid   index.RID
}

// Transaction tracks one transaction's two-phase-locking state and the
// tables/rows it currently holds locks on, partitioned by mode.
//
// All fields live behind one mutex; concurrent LockTable/LockRow calls
// on different objects can both mutate the same transaction's lock sets.
type Transaction struct {
	mu sync.Mutex

	id        int64
	isolation lock.IsolationLevel
	state     lock.TxnState
	abortedOn lock.AbortReason

	tableLocks map[int32]lock.LockMode
	rowLocks   map[rowKey]lock.LockMode
}

func newTransaction(id int64, isolation lock.IsolationLevel) *Transaction {
	return &Transaction{
		id:         id,
		isolation:  isolation,
		state:      lock.Growing,
		tableLocks: make(map[int32]lock.LockMode),
		rowLocks:   make(map[rowKey]lock.LockMode),
	}
}

func (t *Transaction) ID() int64                        { return t.id }
func (t *Transaction) IsolationLevel() lock.IsolationLevel { return t.isolation }

func (t *Transaction) State() lock.TxnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) LastAbortReason() lock.AbortReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.abortedOn
}

// MarkAborted flips the transaction to ABORTED, recording reason only
// the first time (a transaction can be targeted by more than one abort
// trigger; the original reason is the meaningful one).
func (t *Transaction) MarkAborted(reason lock.AbortReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == lock.Aborted {
		return
	}
	t.state = lock.Aborted
	t.abortedOn = reason
}

// EnterShrinking moves a GROWING transaction to SHRINKING.
func (t *Transaction) EnterShrinking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == lock.Growing {
		t.state = lock.Shrinking
	}
}

func (t *Transaction) markCommitted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != lock.Aborted {
		t.state = lock.Committed
	}
}

func (t *Transaction) TableLockMode(oid int32) (lock.LockMode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.tableLocks[oid]
	return m, ok
}

func (t *Transaction) GrantTableLock(mode lock.LockMode, oid int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tableLocks[oid] = mode
}

func (t *Transaction) RevokeTableLock(oid int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tableLocks, oid)
}

func (t *Transaction) HasAnyRowLockOnTable(oid int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.rowLocks {
		if k.table == oid {
			return true
		}
	}
	return false
}

func (t *Transaction) RowLockMode(oid int32, rid index.RID) (lock.LockMode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.rowLocks[rowKey{oid, rid}]
	return m, ok
}

func (t *Transaction) GrantRowLock(mode lock.LockMode, oid int32, rid index.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rowLocks[rowKey{oid, rid}] = mode
}

func (t *Transaction) RevokeRowLock(oid int32, rid index.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rowLocks, rowKey{oid, rid})
}

// tableRowSets returns a snapshot of currently held tables and rows, used
// by the transaction manager to release everything on Commit/Abort.
func (t *Transaction) tableRowSets() (tables []int32, rows []rowKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for oid := range t.tableLocks {
		tables = append(tables, oid)
	}
	for k := range t.rowLocks {
		rows = append(rows, k)
	}
	return tables, rows
}
