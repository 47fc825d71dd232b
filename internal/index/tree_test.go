package index

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novadb/internal/bufferpool"
	"github.com/tuannm99/novadb/internal/storage"
)

func newTestTree(t *testing.T, leafMax, internalMax uint16) *Tree {
	t.Helper()
	dm, err := storage.NewDiskManager(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	pool := bufferpool.NewPool(dm, 64, 2)
	tree, err := NewTree(pool, leafMax, internalMax, DefaultComparator)
	require.NoError(t, err)
	return tree
}

func rid(n int64) RID { return RID{PageID: int32(n), SlotNum: uint32(n)} }

func TestTree_InsertSplitsLeafAndGetValueScenario(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	for _, k := range []int64{10, 20, 5, 15, 25} {
		ok, err := tree.Insert(k, rid(k))
		require.NoError(t, err)
		require.True(t, ok, "insert of fresh key %d must succeed", k)
	}

	for _, k := range []int64{10, 20, 5, 15, 25} {
		v, found, err := tree.GetValue(k)
		require.NoError(t, err)
		require.True(t, found, "key %d must be found after insert", k)
		require.Equal(t, rid(k), v)
	}

	_, found, err := tree.GetValue(7)
	require.NoError(t, err)
	require.False(t, found)
}

func TestTree_InsertDuplicateRejected(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	ok, err := tree.Insert(42, rid(42))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(42, rid(999))
	require.NoError(t, err)
	require.False(t, ok)

	v, found, err := tree.GetValue(42)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rid(42), v, "rejected duplicate insert must not overwrite the original value")
}

func TestTree_RandomPermutationInsertAndGetValueRoundTrip(t *testing.T) {
	tree := newTestTree(t, 5, 5)

	keys := rand.New(rand.NewSource(1)).Perm(200)
	for _, k := range keys {
		ok, err := tree.Insert(int64(k), rid(int64(k)))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for _, k := range keys {
		v, found, err := tree.GetValue(int64(k))
		require.NoError(t, err)
		require.True(t, found, "key %d missing after insert", k)
		require.Equal(t, rid(int64(k)), v)
	}

	_, found, err := tree.GetValue(int64(-1))
	require.NoError(t, err)
	require.False(t, found)
}

func TestTree_IterationIsStrictlyIncreasingAfterInsertsAndRemoves(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	keys := rand.New(rand.NewSource(2)).Perm(100)
	for _, k := range keys {
		ok, err := tree.Insert(int64(k), rid(int64(k)))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i, k := range keys {
		if i%3 == 0 {
			require.NoError(t, tree.Remove(int64(k)))
		}
	}

	it, err := tree.Begin()
	require.NoError(t, err)

	prev := int64(-1)
	count := 0
	for !it.IsEnd() {
		k, err := it.Key()
		require.NoError(t, err)
		require.Greater(t, k, prev, "iteration must be strictly increasing")
		prev = k
		count++
		require.NoError(t, it.Next())
	}

	removed := 0
	for i := range keys {
		if i%3 == 0 {
			removed++
		}
	}
	require.Equal(t, len(keys)-removed, count)
}

func TestTree_RemoveAbsentKeyIsNoop(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	ok, err := tree.Insert(1, rid(1))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tree.Remove(999))

	v, found, err := tree.GetValue(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rid(1), v)
}

func TestTree_RemoveAllKeysEmptiesTreeToInvalidRoot(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	keys := rand.New(rand.NewSource(3)).Perm(50)
	for _, k := range keys {
		ok, err := tree.Insert(int64(k), rid(int64(k)))
		require.NoError(t, err)
		require.True(t, ok)
	}
	for _, k := range keys {
		require.NoError(t, tree.Remove(int64(k)))
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	require.True(t, it.IsEnd())

	_, found, err := tree.GetValue(int64(keys[0]))
	require.NoError(t, err)
	require.False(t, found)
}

func TestTree_SeekPositionsAtFirstKeyGreaterOrEqual(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	for _, k := range []int64{10, 20, 30, 40, 50} {
		ok, err := tree.Insert(k, rid(k))
		require.NoError(t, err)
		require.True(t, ok)
	}

	it, err := tree.Seek(25)
	require.NoError(t, err)
	require.False(t, it.IsEnd())
	k, err := it.Key()
	require.NoError(t, err)
	require.Equal(t, int64(30), k)

	it, err = tree.Seek(1000)
	require.NoError(t, err)
	require.True(t, it.IsEnd())
}
