package sbtree_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sbtreeindex/sbtree"
	"sbtreeindex/types"
)

func TestStandardStoreAllocateOpenRelease(t *testing.T) {
	tree := newStandardTree(t)
	store := tree.Store.(*sbtree.StandardStore)

	ptr, b, err := store.Allocate(true)
	require.NoError(t, err)
	require.False(t, ptr.IsNil())
	require.True(t, b.IsLeaf())
	require.Zero(t, b.Size())
	require.NoError(t, store.Release(ptr, true))

	reopened, err := store.Open(ptr)
	require.NoError(t, err)
	require.True(t, reopened.IsLeaf())
	require.NoError(t, store.Release(ptr, false))
}

func TestStandardStoreRecycleResetsRegion(t *testing.T) {
	tree := newStandardTree(t)
	store := tree.Store.(*sbtree.StandardStore)

	ptr, b, err := store.Allocate(true)
	require.NoError(t, err)
	_, err = b.AddLeafEntry(0, i64(1), i64(2))
	require.NoError(t, err)
	require.NoError(t, store.Release(ptr, true))

	require.NoError(t, store.Recycle([]types.BucketPointer{ptr, types.NilBucketPointer}))

	reopened, err := store.Open(ptr)
	require.NoError(t, err)
	require.Zero(t, reopened.Size(), "a recycled standard bucket is reset empty")
	require.NoError(t, store.Release(ptr, false))
}

func TestBonsaiStoreAllocateOpenRelease(t *testing.T) {
	tree := newBonsaiTree(t)
	store := tree.Store.(*sbtree.BonsaiStore)

	ptr, b, err := store.Allocate(true)
	require.NoError(t, err)
	require.False(t, ptr.IsNil())
	require.True(t, b.IsLeaf())
	require.NoError(t, store.Release(ptr, true))

	reopened, err := store.Open(ptr)
	require.NoError(t, err)
	require.True(t, reopened.IsLeaf())
	require.NoError(t, store.Release(ptr, false))
}

func TestBonsaiStoreRecycleSplicesFreeList(t *testing.T) {
	tree := newBonsaiTree(t)
	store := tree.Store.(*sbtree.BonsaiStore)

	ptr, _, err := store.Allocate(true)
	require.NoError(t, err)
	require.NoError(t, store.Release(ptr, true))
	require.NoError(t, store.Recycle([]types.BonsaiPointer{ptr}))

	reused, _, err := store.Allocate(true)
	require.NoError(t, err)
	require.True(t, reused.Equal(ptr), "the freed sub-page should be popped back off the free list")
	require.NoError(t, store.Release(reused, true))
}
