package sbtree_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"sbtreeindex/sbtree"
)

func i64(n int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(n))
	return buf
}

func asI64(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b))
}

// runPutGetRemove exercises Put/Get/Size/Remove against enough entries to
// force at least one leaf split on either variant, one algorithm shared
// across both pointer types via a generic test body.
func runPutGetRemove[P sbtree.Ptr](t *testing.T, tree *sbtree.Tree[P], n int64) {
	t.Helper()

	for i := int64(0); i < n; i++ {
		require.NoError(t, tree.Put(i64(i), i64(i*10)), "put %d", i)
	}

	size, err := tree.Size()
	require.NoError(t, err)
	require.Equal(t, n, size)

	for i := int64(0); i < n; i++ {
		v, ok, err := tree.Get(i64(i))
		require.NoError(t, err)
		require.True(t, ok, "key %d should be found", i)
		require.Equal(t, i*10, asI64(v))
	}

	_, ok, err := tree.Get(i64(n + 1000))
	require.NoError(t, err)
	require.False(t, ok)

	removed, err := tree.Remove(i64(5))
	require.NoError(t, err)
	require.True(t, removed)

	_, ok, err = tree.Get(i64(5))
	require.NoError(t, err)
	require.False(t, ok, "removed key must no longer be found")

	size, err = tree.Size()
	require.NoError(t, err)
	require.Equal(t, n-1, size)

	removedAgain, err := tree.Remove(i64(5))
	require.NoError(t, err)
	require.False(t, removedAgain, "removing an absent key reports false, not an error")
}

func TestStandardPutGetRemoveAcrossSplits(t *testing.T) {
	runPutGetRemove(t, newStandardTree(t), 300)
}

func TestBonsaiPutGetRemoveAcrossSplits(t *testing.T) {
	runPutGetRemove(t, newBonsaiTree(t), 300)
}

func runUpdateInPlace[P sbtree.Ptr](t *testing.T, tree *sbtree.Tree[P]) {
	t.Helper()
	require.NoError(t, tree.Put(i64(1), i64(100)))
	require.NoError(t, tree.Put(i64(1), i64(200)), "re-putting an existing key updates it in place")

	v, ok, err := tree.Get(i64(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(200), asI64(v))

	size, err := tree.Size()
	require.NoError(t, err)
	require.Equal(t, int64(1), size, "updating an existing key must not grow tree_size")
}

func TestStandardUpdateInPlace(t *testing.T) { runUpdateInPlace(t, newStandardTree(t)) }
func TestBonsaiUpdateInPlace(t *testing.T)   { runUpdateInPlace(t, newBonsaiTree(t)) }

func runFirstLastKey[P sbtree.Ptr](t *testing.T, tree *sbtree.Tree[P], n int64) {
	t.Helper()
	_, ok, err := tree.FirstKey()
	require.NoError(t, err)
	require.False(t, ok, "an empty tree has no first key")

	for i := int64(0); i < n; i++ {
		require.NoError(t, tree.Put(i64(i), i64(i)))
	}

	first, ok, err := tree.FirstKey()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0), asI64(first))

	last, ok, err := tree.LastKey()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, n-1, asI64(last))
}

func TestStandardFirstLastKey(t *testing.T) { runFirstLastKey(t, newStandardTree(t), 250) }
func TestBonsaiFirstLastKey(t *testing.T)   { runFirstLastKey(t, newBonsaiTree(t), 250) }

func runScans[P sbtree.Ptr](t *testing.T, tree *sbtree.Tree[P], n int64) {
	t.Helper()
	for i := int64(0); i < n; i++ {
		require.NoError(t, tree.Put(i64(i), i64(i)))
	}

	minor, err := tree.ScanMinor(i64(9), true)
	require.NoError(t, err)
	require.Len(t, minor, 10)
	require.Equal(t, int64(0), asI64(minor[0].Key))
	require.Equal(t, int64(9), asI64(minor[len(minor)-1].Key))

	minorExclusive, err := tree.ScanMinor(i64(9), false)
	require.NoError(t, err)
	require.Len(t, minorExclusive, 9)

	major, err := tree.ScanMajor(i64(n-10), true, true)
	require.NoError(t, err)
	require.Len(t, major, 10)
	require.Equal(t, n-10, asI64(major[0].Key))

	_, err = tree.ScanMajor(i64(0), true, false)
	require.Error(t, err, "descending major scans are unsupported")

	between, err := tree.ScanBetween(i64(5), true, i64(15), false)
	require.NoError(t, err)
	require.Len(t, between, 10)
	require.Equal(t, int64(5), asI64(between[0].Key))
	require.Equal(t, int64(14), asI64(between[len(between)-1].Key))
}

func TestStandardScans(t *testing.T) { runScans(t, newStandardTree(t), 200) }
func TestBonsaiScans(t *testing.T)   { runScans(t, newBonsaiTree(t), 200) }

func runClearAndDelete[P sbtree.Ptr](t *testing.T, tree *sbtree.Tree[P], n int64) {
	t.Helper()
	for i := int64(0); i < n; i++ {
		require.NoError(t, tree.Put(i64(i), i64(i)))
	}

	require.NoError(t, tree.Clear())
	size, err := tree.Size()
	require.NoError(t, err)
	require.Zero(t, size)

	_, ok, err := tree.Get(i64(0))
	require.NoError(t, err)
	require.False(t, ok)

	// the root survives Clear and accepts new entries
	require.NoError(t, tree.Put(i64(1), i64(1)))
	size, err = tree.Size()
	require.NoError(t, err)
	require.Equal(t, int64(1), size)

	require.NoError(t, tree.Delete())
}

func TestStandardClearAndDelete(t *testing.T) { runClearAndDelete(t, newStandardTree(t), 200) }
func TestBonsaiClearAndDelete(t *testing.T)   { runClearAndDelete(t, newBonsaiTree(t), 200) }

func runRealBagSize[P sbtree.Ptr](t *testing.T, tree *sbtree.Tree[P]) {
	t.Helper()
	require.NoError(t, tree.Put(i64(0), i64(3)))
	require.NoError(t, tree.Put(i64(1), i64(4)))
	require.NoError(t, tree.Put(i64(2), i64(5)))

	total, err := tree.RealBagSize(i64(0), nil)
	require.NoError(t, err)
	require.Equal(t, int64(12), total)

	withDelta, err := tree.RealBagSize(i64(0), []sbtree.Change{{Key: i64(1), Delta: 10}, {Key: i64(2), Delta: -2}})
	require.NoError(t, err)
	require.Equal(t, int64(20), withDelta)
}

func TestStandardRealBagSize(t *testing.T) { runRealBagSize(t, newStandardTree(t)) }
func TestBonsaiRealBagSize(t *testing.T)   { runRealBagSize(t, newBonsaiTree(t)) }
