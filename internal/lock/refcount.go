package lock

// RefCount backs the shared-ownership handle on a LockRequestQueue: every
// in-flight LockTable/LockRow/UnlockTable/UnlockRow call on the queue,
// including one blocked on its condition variable, holds a reference. A
// queue is only pruned from the map once its count drops to zero while it
// holds no requests.

import (
	"fmt"
	"sync/atomic"
)

type RefCount struct {
	count int32
}

func NewRefCount() *RefCount {
	return &RefCount{count: 1}
}

func (r *RefCount) Inc() {
	atomic.AddInt32(&r.count, 1)
}

func (r *RefCount) Dec() bool {
	newCount := atomic.AddInt32(&r.count, -1)
	if newCount < 0 {
		panic("refcount dropped below zero")
	}
	return newCount == 0
}

func (r *RefCount) Get() int32 {
	return atomic.LoadInt32(&r.count)
}

func (r *RefCount) String() string {
	return fmt.Sprintf("RefCount: %d", r.Get())
}
