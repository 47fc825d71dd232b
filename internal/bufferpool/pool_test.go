package bufferpool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novadb/internal/storage"
)

func newTestPool(t *testing.T, capacity int) *Pool {
	t.Helper()
	dm, err := storage.NewDiskManager(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	return NewPool(dm, capacity, 2)
}

func TestPool_NewPageMonotonicIDs(t *testing.T) {
	pool := newTestPool(t, 4)

	p0, err := pool.NewPage()
	require.NoError(t, err)
	p1, err := pool.NewPage()
	require.NoError(t, err)

	require.Equal(t, int32(0), p0.ID())
	require.Equal(t, int32(1), p1.ID())
}

func TestPool_BufferPoolWraparoundScenario(t *testing.T) {
	pool := newTestPool(t, 3)

	p1, err := pool.NewPage()
	require.NoError(t, err)
	p2, err := pool.NewPage()
	require.NoError(t, err)
	p3, err := pool.NewPage()
	require.NoError(t, err)

	_, err = pool.NewPage()
	require.ErrorIs(t, err, ErrNoFreeFrame)

	require.True(t, pool.UnpinPage(p1.ID(), false))

	p4, err := pool.NewPage()
	require.NoError(t, err)
	require.NotNil(t, p4)

	require.True(t, pool.UnpinPage(p2.ID(), false))
	require.True(t, pool.UnpinPage(p3.ID(), false))
	require.True(t, pool.UnpinPage(p4.ID(), false))

	got, err := pool.FetchPage(p1.ID())
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestPool_DirtyVictimFlushedBeforeReuse(t *testing.T) {
	pool := newTestPool(t, 1)

	p0, err := pool.NewPage()
	require.NoError(t, err)
	p0.Data[0] = 42
	require.True(t, pool.UnpinPage(p0.ID(), true))

	p1, err := pool.NewPage()
	require.NoError(t, err)
	require.NotNil(t, p1)
	require.True(t, pool.UnpinPage(p1.ID(), false))

	reloaded, err := pool.FetchPage(p0.ID())
	require.NoError(t, err)
	require.Equal(t, byte(42), reloaded.Data[0])
}

func TestPool_UnpinDecrementsPinCount(t *testing.T) {
	pool := newTestPool(t, 4)

	p, err := pool.NewPage()
	require.NoError(t, err)
	require.Equal(t, int32(1), p.PinCount())

	again, err := pool.FetchPage(p.ID())
	require.NoError(t, err)
	require.Equal(t, int32(2), again.PinCount())

	require.True(t, pool.UnpinPage(p.ID(), false))
	require.Equal(t, int32(1), p.PinCount())
	require.True(t, pool.UnpinPage(p.ID(), false))
	require.Equal(t, int32(0), p.PinCount())
}

func TestPool_UnpinUnknownPageReturnsFalse(t *testing.T) {
	pool := newTestPool(t, 4)
	require.False(t, pool.UnpinPage(99, false))
}

func TestPool_FlushAllPagesWritesDirtyFrames(t *testing.T) {
	pool := newTestPool(t, 2)

	p0, err := pool.NewPage()
	require.NoError(t, err)
	p1, err := pool.NewPage()
	require.NoError(t, err)

	p0.Data[10] = 11
	p1.Data[20] = 22
	require.True(t, pool.UnpinPage(p0.ID(), true))
	require.True(t, pool.UnpinPage(p1.ID(), true))

	pool.FlushAllPages()
	require.False(t, p0.IsDirty())
	require.False(t, p1.IsDirty())
}

func TestPool_DeletePageFailsWhilePinned(t *testing.T) {
	pool := newTestPool(t, 2)
	p, err := pool.NewPage()
	require.NoError(t, err)

	ok, err := pool.DeletePage(p.ID())
	require.Error(t, err)
	require.False(t, ok)

	require.True(t, pool.UnpinPage(p.ID(), false))
	ok, err = pool.DeletePage(p.ID())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPool_PageGuardRoundTrip(t *testing.T) {
	pool := newTestPool(t, 2)

	g, err := pool.NewPageGuarded()
	require.NoError(t, err)
	pageID := g.PageID()
	g.Page().Data[0] = 7
	g.MarkDirty()
	g.Drop()
	g.Drop() // idempotent

	rg, err := pool.FetchPageRead(pageID)
	require.NoError(t, err)
	require.Equal(t, byte(7), rg.Page().Data[0])
	rg.Drop()
}

func TestNewPool_DefaultCapacity(t *testing.T) {
	dm, err := storage.NewDiskManager(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	pool := NewPool(dm, 0, 2)
	require.Len(t, pool.frames, 16)

	p, err := pool.NewPage()
	require.NoError(t, err)
	require.NotNil(t, p)
}
