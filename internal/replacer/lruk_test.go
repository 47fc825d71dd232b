package replacer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUK_KEqualsTwoTrace(t *testing.T) {
	r := New(5, 2)

	for _, f := range []FrameID{1, 1, 2, 2, 3, 4, 1} {
		r.RecordAccess(f)
	}
	for _, f := range []FrameID{0, 1, 2, 3, 4} {
		r.SetEvictable(f, true)
	}

	require.Equal(t, 4, r.Size())

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(3), victim)

	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(4), victim)

	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(2), victim)
}

func TestLRUK_SizeTracksEvictableCount(t *testing.T) {
	r := New(4, 2)
	r.RecordAccess(0)
	r.RecordAccess(1)
	require.Equal(t, 0, r.Size())

	r.SetEvictable(0, true)
	require.Equal(t, 1, r.Size())

	r.SetEvictable(1, true)
	require.Equal(t, 2, r.Size())

	r.SetEvictable(0, false)
	require.Equal(t, 1, r.Size())
}

func TestLRUK_RemoveThenEvictNeverReturnsRemoved(t *testing.T) {
	r := New(3, 2)
	r.RecordAccess(0)
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.SetEvictable(0, true)
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	r.Remove(1)

	for i := 0; i < 2; i++ {
		victim, ok := r.Evict()
		require.True(t, ok)
		require.NotEqual(t, FrameID(1), victim)
	}

	_, ok := r.Evict()
	require.False(t, ok)
}

func TestLRUK_UnknownFrameOperationsAreNoop(t *testing.T) {
	r := New(4, 2)
	r.SetEvictable(2, true)
	require.Equal(t, 0, r.Size())
	r.Remove(2)
}

func TestLRUK_FewerThanKAccessesPreferredOverCache(t *testing.T) {
	r := New(3, 2)
	r.RecordAccess(0)
	r.RecordAccess(0)
	r.RecordAccess(1)
	r.SetEvictable(0, true)
	r.SetEvictable(1, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(1), victim)
}
