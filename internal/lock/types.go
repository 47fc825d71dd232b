// Package lock implements a multi-granularity lock manager: table and row
// locks in five modes, an upgrade protocol, isolation-level admission
// rules, and a background wait-for-graph deadlock detector.
package lock

import "fmt"

// LockMode is one of the five multi-granularity lock modes.
type LockMode int

const (
	IntentionShared LockMode = iota
	IntentionExclusive
	Shared
	SharedIntentionExclusive
	Exclusive
)

func (m LockMode) String() string {
	switch m {
	case IntentionShared:
		return "IS"
	case IntentionExclusive:
		return "IX"
	case Shared:
		return "S"
	case SharedIntentionExclusive:
		return "SIX"
	case Exclusive:
		return "X"
	default:
		return "UNKNOWN"
	}
}

// compatible[granted][requested] reports whether a requested mode may be
// granted alongside an already-granted mode on the same object.
var compatible = [5][5]bool{
	IntentionShared:          {IntentionShared: true, IntentionExclusive: true, Shared: true, SharedIntentionExclusive: true, Exclusive: false},
	IntentionExclusive:       {IntentionShared: true, IntentionExclusive: true, Shared: false, SharedIntentionExclusive: false, Exclusive: false},
	Shared:                   {IntentionShared: true, IntentionExclusive: false, Shared: true, SharedIntentionExclusive: false, Exclusive: false},
	SharedIntentionExclusive: {IntentionShared: true, IntentionExclusive: false, Shared: false, SharedIntentionExclusive: false, Exclusive: false},
	Exclusive:                {IntentionShared: false, IntentionExclusive: false, Shared: false, SharedIntentionExclusive: false, Exclusive: false},
}

// IsCompatible reports whether requested may be granted while granted is
// already held by a different transaction on the same object.
func IsCompatible(granted, requested LockMode) bool {
	return compatible[granted][requested]
}

var upgradeTargets = map[LockMode]map[LockMode]bool{
	IntentionShared:          {Shared: true, Exclusive: true, IntentionExclusive: true, SharedIntentionExclusive: true},
	Shared:                   {Exclusive: true, SharedIntentionExclusive: true},
	IntentionExclusive:       {Exclusive: true, SharedIntentionExclusive: true},
	SharedIntentionExclusive: {Exclusive: true},
	Exclusive:                {},
}

// CanUpgrade reports whether from may be upgraded to to per the
// multi-granularity upgrade matrix. Equal modes are not an upgrade; callers
// treat that case as a no-op before consulting CanUpgrade.
func CanUpgrade(from, to LockMode) bool {
	return upgradeTargets[from][to]
}

// TxnState is a transaction's position in the two-phase locking protocol.
type TxnState int

const (
	Growing TxnState = iota
	Shrinking
	Committed
	Aborted
)

func (s TxnState) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsolationLevel governs when a transaction transitions from GROWING to
// SHRINKING and which lock modes it may acquire at all.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ_UNCOMMITTED"
	case ReadCommitted:
		return "READ_COMMITTED"
	case RepeatableRead:
		return "REPEATABLE_READ"
	default:
		return "UNKNOWN"
	}
}

// AbortReason names why the lock manager aborted a transaction.
type AbortReason int

const (
	LockOnShrinking AbortReason = iota
	UpgradeConflict
	IncompatibleUpgrade
	AttemptedIntentionLockOnRow
	TableLockNotPresent
	AttemptedUnlockButNoLockHeld
	TableUnlockedBeforeUnlockingRows
	LockSharedOnReadUncommitted
	Deadlock
)

func (r AbortReason) String() string {
	switch r {
	case LockOnShrinking:
		return "LOCK_ON_SHRINKING"
	case UpgradeConflict:
		return "UPGRADE_CONFLICT"
	case IncompatibleUpgrade:
		return "INCOMPATIBLE_UPGRADE"
	case AttemptedIntentionLockOnRow:
		return "ATTEMPTED_INTENTION_LOCK_ON_ROW"
	case TableLockNotPresent:
		return "TABLE_LOCK_NOT_PRESENT"
	case AttemptedUnlockButNoLockHeld:
		return "ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD"
	case TableUnlockedBeforeUnlockingRows:
		return "TABLE_UNLOCKED_BEFORE_UNLOCKING_ROWS"
	case LockSharedOnReadUncommitted:
		return "LOCK_SHARED_ON_READ_UNCOMMITTED"
	case Deadlock:
		return "DEADLOCK"
	default:
		return "UNKNOWN"
	}
}

// TransactionAbortedError is returned by LockTable/LockRow/UnlockTable/
// UnlockRow whenever the lock manager has flipped the transaction to
// ABORTED as a side effect of the call.
type TransactionAbortedError struct {
	TxnID  int64
	Reason AbortReason
}

func (e *TransactionAbortedError) Error() string {
	return fmt.Sprintf("txn %d aborted: %s", e.TxnID, e.Reason)
}
