package lock

import (
	"sync"

	"github.com/tuannm99/novadb/internal/index"
)

// LockRequest is one (txn, mode) entry in an object's request queue.
type LockRequest struct {
	TxnID   int64
	Mode    LockMode
	Granted bool
}

// rowKey identifies a row lockable object: a table and a row within it.
type rowKey struct {
	table int32
	rid   index.RID
}

// LockRequestQueue serializes grants for one lockable object (a table or
// a row) behind a mutex and a condition variable. refs mirrors the
// source's reference-counted queue handle: every in-flight lock or unlock
// call on the queue, blocked waiters included, holds a reference, so the
// manager can prune an empty queue from its map only once nothing is
// using it.
type LockRequestQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	requests  []*LockRequest
	upgrading int64 // INVALID_TXN_ID when no upgrade is in flight
	refs      *RefCount
}

const invalidTxnID int64 = -1

func newLockRequestQueue() *LockRequestQueue {
	q := &LockRequestQueue{upgrading: invalidTxnID, refs: NewRefCount()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *LockRequestQueue) findLocked(txnID int64) *LockRequest {
	for _, r := range q.requests {
		if r.TxnID == txnID {
			return r
		}
	}
	return nil
}

func (q *LockRequestQueue) removeLocked(txnID int64) {
	for i, r := range q.requests {
		if r.TxnID == txnID {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

// grantedIncompatibleWith reports whether some other transaction's
// granted request on this queue is incompatible with mode.
func (q *LockRequestQueue) grantedIncompatibleWith(txnID int64, mode LockMode) bool {
	for _, r := range q.requests {
		if r.TxnID == txnID || !r.Granted {
			continue
		}
		if !IsCompatible(r.Mode, mode) {
			return true
		}
	}
	return false
}
