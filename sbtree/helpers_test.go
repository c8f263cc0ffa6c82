package sbtree_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sbtreeindex/allocator"
	"sbtreeindex/atomicop"
	"sbtreeindex/diskmgr"
	"sbtreeindex/lockmgr"
	"sbtreeindex/page"
	"sbtreeindex/pagecache"
	"sbtreeindex/sbtree"
	"sbtreeindex/serializer"
	"sbtreeindex/types"
	"sbtreeindex/wal"
)

// newStandardTree wires a full page-per-bucket stack against a scratch
// directory, the same collaborators cmd/sbtreedemo wires for its demo run.
func newStandardTree(t *testing.T) *sbtree.Tree[types.BucketPointer] {
	t.Helper()
	dir := t.TempDir()

	dm := diskmgr.New()
	fileID, err := dm.OpenFile(filepath.Join(dir, "index.db"), page.DefaultSize)
	require.NoError(t, err)
	pages, err := pagecache.New(64, dm)
	require.NoError(t, err)

	walMgr, err := wal.Open(filepath.Join(dir, "wal"))
	require.NoError(t, err)
	t.Cleanup(func() { walMgr.Close() })
	pages.SetWALManager(walMgr)

	ops := atomicop.New(walMgr, lockmgr.New())

	store := &sbtree.StandardStore{
		Pages:           pages,
		FileID:          fileID,
		KeySerializer:   serializer.Int64Serializer{},
		ValueSerializer: serializer.Int64Serializer{},
	}

	rootPg, err := pages.NewPage(fileID, types.PageTypeBucket)
	require.NoError(t, err)
	store.SetRoot(types.BucketPointer(rootPg.ID))
	require.NoError(t, pages.UnpinPage(rootPg.ID, true))

	b, err := store.Open(types.BucketPointer(rootPg.ID))
	require.NoError(t, err)
	b.ResetEmpty(true)
	require.NoError(t, store.Release(types.BucketPointer(rootPg.ID), true))

	return &sbtree.Tree[types.BucketPointer]{
		Store:   store,
		Ops:     ops,
		FileID:  fileID,
		Compare: serializer.CompareInt64,
	}
}

// newBonsaiTree wires the packed-sub-page stack the same way
// cmd/sbtreedemo does, with a small BucketSize so modest put counts
// already exercise page rollover and splits.
func newBonsaiTree(t *testing.T) *sbtree.Tree[types.BonsaiPointer] {
	t.Helper()
	dir := t.TempDir()

	dm := diskmgr.New()
	fileID, err := dm.OpenFile(filepath.Join(dir, "index.db"), page.DefaultSize)
	require.NoError(t, err)
	pages, err := pagecache.New(64, dm)
	require.NoError(t, err)

	walMgr, err := wal.Open(filepath.Join(dir, "wal"))
	require.NoError(t, err)
	t.Cleanup(func() { walMgr.Close() })
	pages.SetWALManager(walMgr)

	ops := atomicop.New(walMgr, lockmgr.New())

	sysPg, err := pages.NewPage(fileID, types.PageTypeSystem)
	require.NoError(t, err)
	allocator.InitSystemBucket(sysPg.Data[:allocator.SystemBucketSize])
	require.NoError(t, pages.UnpinPage(sysPg.ID, true))

	alloc := &allocator.Allocator{
		Pages:         pages,
		FileID:        fileID,
		BucketSize:    256,
		PageSize:      page.DefaultSize,
		BinaryVersion: 1,
	}

	store := &sbtree.BonsaiStore{
		Pages:           pages,
		Allocator:       alloc,
		FileID:          fileID,
		BucketSize:      256,
		KeySerializer:   serializer.Int64Serializer{},
		ValueSerializer: serializer.Int64Serializer{},
	}

	rootPtr, _, err := store.Allocate(true)
	require.NoError(t, err)
	store.SetRoot(rootPtr)
	require.NoError(t, store.Release(rootPtr, true))

	return &sbtree.Tree[types.BonsaiPointer]{
		Store:   store,
		Ops:     ops,
		FileID:  fileID,
		Compare: serializer.CompareInt64,
	}
}
