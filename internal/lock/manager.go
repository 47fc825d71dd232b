package lock

import (
	"log/slog"
	"sync"

	"github.com/tuannm99/novadb/internal/index"
)

const logPrefix = "lock: "

// Manager grants and releases table and row locks under strict
// multi-granularity rules, and runs a background deadlock detector over
// its own request queues.
type Manager struct {
	mu          sync.Mutex
	tableQueues map[int32]*LockRequestQueue
	rowQueues   map[rowKey]*LockRequestQueue
	txnMgr      TxnManager
}

// NewManager wires a lock manager to its transaction manager. The back
// reference exists solely so the deadlock detector can abort a victim;
// the transaction manager is expected to outlive the lock manager. Once
// both exist, the caller wires the reverse pointer with
// TransactionManager.SetLockManager.
func NewManager(txnMgr TxnManager) *Manager {
	return &Manager{
		tableQueues: make(map[int32]*LockRequestQueue),
		rowQueues:   make(map[rowKey]*LockRequestQueue),
		txnMgr:      txnMgr,
	}
}

func checkGrowingAdmission(txn TxnHandle, mode LockMode) error {
	switch txn.State() {
	case Shrinking:
		txn.MarkAborted(LockOnShrinking)
		return &TransactionAbortedError{txn.ID(), LockOnShrinking}
	case Aborted, Committed:
		return &TransactionAbortedError{txn.ID(), txn.LastAbortReason()}
	}
	if txn.IsolationLevel() == ReadUncommitted {
		switch mode {
		case Shared, IntentionShared, SharedIntentionExclusive:
			txn.MarkAborted(LockSharedOnReadUncommitted)
			return &TransactionAbortedError{txn.ID(), LockSharedOnReadUncommitted}
		}
	}
	return nil
}

func (m *Manager) getOrCreateTableQueue(oid int32) *LockRequestQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.tableQueues[oid]
	if !ok {
		q = newLockRequestQueue()
		m.tableQueues[oid] = q
		return q
	}
	q.refs.Inc()
	return q
}

func (m *Manager) releaseTableQueue(oid int32, q *LockRequestQueue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.mu.Lock()
	empty := len(q.requests) == 0
	q.mu.Unlock()
	if q.refs.Dec() && empty {
		delete(m.tableQueues, oid)
	}
}

func (m *Manager) getOrCreateRowQueue(k rowKey) *LockRequestQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rowQueues[k]
	if !ok {
		q = newLockRequestQueue()
		m.rowQueues[k] = q
		return q
	}
	q.refs.Inc()
	return q
}

func (m *Manager) releaseRowQueue(k rowKey, q *LockRequestQueue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.mu.Lock()
	empty := len(q.requests) == 0
	q.mu.Unlock()
	if q.refs.Dec() && empty {
		delete(m.rowQueues, k)
	}
}

// waitForGrant blocks until no other transaction's granted request on q
// is incompatible with mode, or the transaction is aborted out from
// under it (by the deadlock detector or an external caller). Caller
// holds q.mu.
func waitForGrant(q *LockRequestQueue, txn TxnHandle, mode LockMode) error {
	for q.grantedIncompatibleWith(txn.ID(), mode) {
		q.cond.Wait()
		if txn.State() == Aborted {
			q.removeLocked(txn.ID())
			if q.upgrading == txn.ID() {
				q.upgrading = invalidTxnID
			}
			q.cond.Broadcast()
			return &TransactionAbortedError{txn.ID(), txn.LastAbortReason()}
		}
	}
	return nil
}

// LockTable acquires mode on table oid for txn, blocking until granted,
// denied (transaction aborted), or upgraded in place.
func (m *Manager) LockTable(txn TxnHandle, mode LockMode, oid int32) error {
	if err := checkGrowingAdmission(txn, mode); err != nil {
		return err
	}

	q := m.getOrCreateTableQueue(oid)
	defer m.releaseTableQueue(oid, q)

	q.mu.Lock()
	defer q.mu.Unlock()

	if existing := q.findLocked(txn.ID()); existing != nil {
		if existing.Mode == mode {
			return nil
		}
		if q.upgrading != invalidTxnID && q.upgrading != txn.ID() {
			txn.MarkAborted(UpgradeConflict)
			return &TransactionAbortedError{txn.ID(), UpgradeConflict}
		}
		if !CanUpgrade(existing.Mode, mode) {
			txn.MarkAborted(IncompatibleUpgrade)
			return &TransactionAbortedError{txn.ID(), IncompatibleUpgrade}
		}
		q.upgrading = txn.ID()
		existing.Granted = false
		existing.Mode = mode
		if err := waitForGrant(q, txn, mode); err != nil {
			return err
		}
		existing.Granted = true
		q.upgrading = invalidTxnID
		txn.RevokeTableLock(oid)
		txn.GrantTableLock(mode, oid)
		q.cond.Broadcast()
		return nil
	}

	req := &LockRequest{TxnID: txn.ID(), Mode: mode}
	q.requests = append(q.requests, req)
	if err := waitForGrant(q, txn, mode); err != nil {
		return err
	}
	req.Granted = true
	txn.GrantTableLock(mode, oid)
	q.cond.Broadcast()
	return nil
}

// UnlockTable releases txn's lock on table oid, applying the isolation
// level's GROWING->SHRINKING transition rule for S/X unlocks.
func (m *Manager) UnlockTable(txn TxnHandle, oid int32) error {
	if txn.HasAnyRowLockOnTable(oid) {
		txn.MarkAborted(TableUnlockedBeforeUnlockingRows)
		return &TransactionAbortedError{txn.ID(), TableUnlockedBeforeUnlockingRows}
	}

	mode, held := txn.TableLockMode(oid)
	if !held {
		txn.MarkAborted(AttemptedUnlockButNoLockHeld)
		return &TransactionAbortedError{txn.ID(), AttemptedUnlockButNoLockHeld}
	}

	q := m.getOrCreateTableQueue(oid)
	defer m.releaseTableQueue(oid, q)

	q.mu.Lock()
	q.removeLocked(txn.ID())
	q.cond.Broadcast()
	q.mu.Unlock()

	txn.RevokeTableLock(oid)
	applyUnlockTransition(txn, mode)
	return nil
}

func applyUnlockTransition(txn TxnHandle, mode LockMode) {
	if mode != Shared && mode != Exclusive {
		return // intention-mode unlocks never transition state
	}
	if txn.State() != Growing {
		return
	}
	switch txn.IsolationLevel() {
	case RepeatableRead:
		txn.EnterShrinking()
	case ReadCommitted, ReadUncommitted:
		if mode == Exclusive {
			txn.EnterShrinking()
		}
	}
}

func checkRowPrerequisite(txn TxnHandle, mode LockMode, oid int32) error {
	if mode == IntentionShared || mode == IntentionExclusive || mode == SharedIntentionExclusive {
		txn.MarkAborted(AttemptedIntentionLockOnRow)
		return &TransactionAbortedError{txn.ID(), AttemptedIntentionLockOnRow}
	}
	tableMode, held := txn.TableLockMode(oid)
	if !held {
		txn.MarkAborted(TableLockNotPresent)
		return &TransactionAbortedError{txn.ID(), TableLockNotPresent}
	}
	if mode == Exclusive {
		switch tableMode {
		case IntentionExclusive, SharedIntentionExclusive, Exclusive:
		default:
			txn.MarkAborted(TableLockNotPresent)
			return &TransactionAbortedError{txn.ID(), TableLockNotPresent}
		}
	}
	return nil
}

// LockRow acquires mode (S or X) on rid within table oid for txn.
func (m *Manager) LockRow(txn TxnHandle, mode LockMode, oid int32, rid index.RID) error {
	if err := checkGrowingAdmission(txn, mode); err != nil {
		return err
	}
	if err := checkRowPrerequisite(txn, mode, oid); err != nil {
		return err
	}

	k := rowKey{table: oid, rid: rid}
	q := m.getOrCreateRowQueue(k)
	defer m.releaseRowQueue(k, q)

	q.mu.Lock()
	defer q.mu.Unlock()

	if existing := q.findLocked(txn.ID()); existing != nil {
		if existing.Mode == mode {
			return nil
		}
		if q.upgrading != invalidTxnID && q.upgrading != txn.ID() {
			txn.MarkAborted(UpgradeConflict)
			return &TransactionAbortedError{txn.ID(), UpgradeConflict}
		}
		if !CanUpgrade(existing.Mode, mode) {
			txn.MarkAborted(IncompatibleUpgrade)
			return &TransactionAbortedError{txn.ID(), IncompatibleUpgrade}
		}
		q.upgrading = txn.ID()
		existing.Granted = false
		existing.Mode = mode
		if err := waitForGrant(q, txn, mode); err != nil {
			return err
		}
		existing.Granted = true
		q.upgrading = invalidTxnID
		txn.RevokeRowLock(oid, rid)
		txn.GrantRowLock(mode, oid, rid)
		q.cond.Broadcast()
		return nil
	}

	req := &LockRequest{TxnID: txn.ID(), Mode: mode}
	q.requests = append(q.requests, req)
	if err := waitForGrant(q, txn, mode); err != nil {
		return err
	}
	req.Granted = true
	txn.GrantRowLock(mode, oid, rid)
	q.cond.Broadcast()
	return nil
}

// UnlockRow releases txn's lock on rid within table oid.
func (m *Manager) UnlockRow(txn TxnHandle, oid int32, rid index.RID) error {
	mode, held := txn.RowLockMode(oid, rid)
	if !held {
		txn.MarkAborted(AttemptedUnlockButNoLockHeld)
		return &TransactionAbortedError{txn.ID(), AttemptedUnlockButNoLockHeld}
	}

	k := rowKey{table: oid, rid: rid}
	q := m.getOrCreateRowQueue(k)
	defer m.releaseRowQueue(k, q)

	q.mu.Lock()
	q.removeLocked(txn.ID())
	q.cond.Broadcast()
	q.mu.Unlock()

	txn.RevokeRowLock(oid, rid)
	applyUnlockTransition(txn, mode)
	return nil
}

// abortAndWake marks txnID aborted for reason and wakes every waiter so
// it can observe the abort on its next condition-variable check. The
// detector does not track which specific queues the victim was blocked
// on, so it wakes all of them; aborts are rare enough that this is cheap.
func (m *Manager) abortAndWake(txnID int64, reason AbortReason) {
	if err := m.txnMgr.Abort(txnID, reason); err != nil {
		slog.Error(logPrefix+"failed to abort deadlock victim", "txn", txnID, "err", err)
		return
	}
	slog.Warn(logPrefix+"aborted transaction to break deadlock", "txn", txnID)

	m.mu.Lock()
	tableQueues := make([]*LockRequestQueue, 0, len(m.tableQueues))
	for _, q := range m.tableQueues {
		tableQueues = append(tableQueues, q)
	}
	rowQueues := make([]*LockRequestQueue, 0, len(m.rowQueues))
	for _, q := range m.rowQueues {
		rowQueues = append(rowQueues, q)
	}
	m.mu.Unlock()

	for _, q := range tableQueues {
		q.cond.Broadcast()
	}
	for _, q := range rowQueues {
		q.cond.Broadcast()
	}
}
