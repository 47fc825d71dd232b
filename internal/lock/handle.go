package lock

import "github.com/tuannm99/novadb/internal/index"

// TxnHandle is the subset of a transaction's state and lock bookkeeping
// the lock manager needs. Declared here rather than imported from the
// txn package so that neither package has to import the other:
// *txn.Transaction implements this interface structurally, and the txn
// package is free to import lock for the LockMode/TxnState/IsolationLevel
// vocabulary.
type TxnHandle interface {
	ID() int64
	State() TxnState
	IsolationLevel() IsolationLevel

	// MarkAborted flips the transaction to ABORTED and records reason,
	// idempotently (a transaction already aborted keeps its first reason).
	MarkAborted(reason AbortReason)
	LastAbortReason() AbortReason
	// EnterShrinking moves a GROWING transaction to SHRINKING; a no-op
	// outside GROWING.
	EnterShrinking()

	TableLockMode(oid int32) (LockMode, bool)
	GrantTableLock(mode LockMode, oid int32)
	RevokeTableLock(oid int32)
	HasAnyRowLockOnTable(oid int32) bool

	RowLockMode(oid int32, rid index.RID) (LockMode, bool)
	GrantRowLock(mode LockMode, oid int32, rid index.RID)
	RevokeRowLock(oid int32, rid index.RID)
}

// TxnManager is the subset of the transaction manager the deadlock
// detector needs: given a victim id, flip it to ABORTED. Waking the
// victim's waiters is done by the lock manager itself, not through this
// interface. Satisfied by *txn.TransactionManager.
type TxnManager interface {
	Abort(txnID int64, reason AbortReason) error
	GetTxn(txnID int64) (TxnHandle, bool)
}
