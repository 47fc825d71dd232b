package txn

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tuannm99/novadb/internal/lock"
)

const logPrefix = "txn: "

// TransactionManager owns the transaction table and the transaction side
// of the lock-manager back reference described in the design notes: the
// caller constructs the lock manager with lock.NewManager(tm) (which only
// needs a narrow lock.TxnManager view of us) and then hands it to this
// manager via SetLockManager.
type TransactionManager struct {
	mu     sync.Mutex
	nextID int64
	txns   map[int64]*Transaction
	lm     *lock.Manager
}

func NewTransactionManager() *TransactionManager {
	return &TransactionManager{txns: make(map[int64]*Transaction)}
}

// SetLockManager wires the lock manager this transaction manager's
// Commit/Abort will release locks through. Must be called once, before
// any Begin, typically right after lock.NewManager(tm) returns.
func (tm *TransactionManager) SetLockManager(lm *lock.Manager) {
	tm.lm = lm
}

// Begin starts a new transaction at the given isolation level.
func (tm *TransactionManager) Begin(isolation lock.IsolationLevel) *Transaction {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	id := tm.nextID
	tm.nextID++
	t := newTransaction(id, isolation)
	tm.txns[id] = t
	slog.Debug(logPrefix+"began transaction", "txn", id, "isolation", isolation)
	return t
}

// GetTransaction returns the transaction with the given id, if any.
func (tm *TransactionManager) GetTransaction(id int64) (*Transaction, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	t, ok := tm.txns[id]
	return t, ok
}

// GetTxn implements lock.TxnManager.
func (tm *TransactionManager) GetTxn(id int64) (lock.TxnHandle, bool) {
	t, ok := tm.GetTransaction(id)
	if !ok {
		return nil, false
	}
	return t, true
}

// Abort implements lock.TxnManager: it is how the deadlock detector (or
// anything else in the lock package) flips a transaction to ABORTED. It
// only marks state; releasing the victim's locks still happens when the
// victim's own goroutine observes ABORTED and calls AbortTransaction below.
func (tm *TransactionManager) Abort(id int64, reason lock.AbortReason) error {
	t, ok := tm.GetTransaction(id)
	if !ok {
		return fmt.Errorf(logPrefix+"abort: unknown transaction %d", id)
	}
	t.MarkAborted(reason)
	return nil
}

// Commit releases every lock txn holds (rows before their table, per
// object) and marks it COMMITTED. A transaction already ABORTED by the
// time Commit is called stays ABORTED; callers must check State first.
func (tm *TransactionManager) Commit(t *Transaction) error {
	if t.State() == lock.Aborted {
		return fmt.Errorf(logPrefix+"commit: transaction %d already aborted: %s", t.ID(), t.LastAbortReason())
	}
	tm.releaseAll(t)
	t.markCommitted()
	slog.Debug(logPrefix+"committed transaction", "txn", t.ID())
	return nil
}

// AbortTransaction rolls txn back: releases every lock it holds and
// marks it ABORTED with reason (a no-op on the state if it is already
// ABORTED from e.g. the deadlock detector).
func (tm *TransactionManager) AbortTransaction(t *Transaction, reason lock.AbortReason) error {
	t.MarkAborted(reason)
	tm.releaseAll(t)
	slog.Debug(logPrefix+"aborted transaction", "txn", t.ID(), "reason", reason)
	return nil
}

func (tm *TransactionManager) releaseAll(t *Transaction) {
	if tm.lm == nil {
		return
	}
	tables, rows := t.tableRowSets()
	for _, rk := range rows {
		if err := tm.lm.UnlockRow(t, rk.table, rk.rid); err != nil {
			slog.Error(logPrefix+"failed to release row lock on commit/abort", "txn", t.ID(), "err", err)
		}
	}
	for _, oid := range tables {
		if err := tm.lm.UnlockTable(t, oid); err != nil {
			slog.Error(logPrefix+"failed to release table lock on commit/abort", "txn", t.ID(), "err", err)
		}
	}
}
