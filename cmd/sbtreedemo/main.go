// Command sbtreedemo exercises both tree variants end to end against a
// scratch file: create, put, get, size, remove, first key, clear. It is
// not a SQL CLI —
// spec's core index engine has no query surface of its own — just a
// runnable stand-in for the teacher's now-removed database shell.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

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

func main() {
	dir := flag.String("dir", "", "scratch directory (defaults to a temp dir)")
	flag.Parse()

	root := *dir
	if root == "" {
		tmp, err := os.MkdirTemp("", "sbtreedemo-*")
		if err != nil {
			log.Fatalf("mkdir temp: %v", err)
		}
		root = tmp
		defer os.RemoveAll(root)
	}

	if err := runStandard(root); err != nil {
		log.Fatalf("standard demo: %v", err)
	}
	if err := runBonsai(root); err != nil {
		log.Fatalf("bonsai demo: %v", err)
	}
}

func i64Key(n int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(n))
	return buf
}

func runStandard(root string) error {
	dataDir := filepath.Join(root, "standard")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}

	dm := diskmgr.New()
	fileID, err := dm.OpenFile(filepath.Join(dataDir, "index.db"), page.DefaultSize)
	if err != nil {
		return err
	}
	pages, err := pagecache.New(64, dm)
	if err != nil {
		return err
	}

	walMgr, err := wal.Open(filepath.Join(dataDir, "wal"))
	if err != nil {
		return err
	}
	defer walMgr.Close()
	pages.SetWALManager(walMgr)

	locks := lockmgr.New()
	ops := atomicop.New(walMgr, locks)

	store := &sbtree.StandardStore{
		Pages:           pages,
		FileID:          fileID,
		KeySerializer:   serializer.Int64Serializer{},
		ValueSerializer: serializer.Int64Serializer{},
	}

	rootPg, err := pages.NewPage(fileID, types.PageTypeBucket)
	if err != nil {
		return err
	}
	// InitStandard happens through Allocate normally; the very first
	// root page is special-cased here since nothing has allocated it yet.
	store.SetRoot(types.BucketPointer(rootPg.ID))
	if err := pages.UnpinPage(rootPg.ID, true); err != nil {
		return err
	}
	if err := initRootLeaf(store, rootPg.ID); err != nil {
		return err
	}

	tree := &sbtree.Tree[types.BucketPointer]{
		Store:   store,
		Ops:     ops,
		FileID:  fileID,
		Compare: serializer.CompareInt64,
	}

	fmt.Println("=== standard variant ===")
	for i := int64(0); i < 200; i++ {
		if err := tree.Put(i64Key(i), i64Key(i*10)); err != nil {
			return fmt.Errorf("put %d: %w", i, err)
		}
	}
	n, _, err := tree.Get(i64Key(42))
	if err != nil {
		return err
	}
	fmt.Printf("get(42) = %d\n", int64(binary.LittleEndian.Uint64(n)))

	size, err := tree.Size()
	if err != nil {
		return err
	}
	fmt.Printf("tree_size after 200 puts = %d\n", size)

	removed, err := tree.Remove(i64Key(100))
	if err != nil {
		return err
	}
	fmt.Printf("remove(100) = %v\n", removed)

	first, ok, err := tree.FirstKey()
	if err != nil {
		return err
	}
	fmt.Printf("first key = %d (found=%v)\n", int64(binary.LittleEndian.Uint64(first)), ok)

	return pages.FlushAllPages()
}

// initRootLeaf formats a fresh page as an empty leaf bucket so the root
// exists before the first Allocate call. ResetEmpty keeps the page's
// serializer-id bytes (zero on a fresh page); unlike Allocate, it does
// not write the store's serializer ids.
func initRootLeaf(store *sbtree.StandardStore, pageID int64) error {
	b, err := store.Open(types.BucketPointer(pageID))
	if err != nil {
		return err
	}
	b.ResetEmpty(true)
	return store.Release(types.BucketPointer(pageID), true)
}

func runBonsai(root string) error {
	dataDir := filepath.Join(root, "bonsai")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}

	dm := diskmgr.New()
	fileID, err := dm.OpenFile(filepath.Join(dataDir, "index.db"), page.DefaultSize)
	if err != nil {
		return err
	}
	pages, err := pagecache.New(64, dm)
	if err != nil {
		return err
	}

	walMgr, err := wal.Open(filepath.Join(dataDir, "wal"))
	if err != nil {
		return err
	}
	defer walMgr.Close()
	pages.SetWALManager(walMgr)

	locks := lockmgr.New()
	ops := atomicop.New(walMgr, locks)

	sysPg, err := pages.NewPage(fileID, types.PageTypeSystem)
	if err != nil {
		return err
	}
	allocator.InitSystemBucket(sysPg.Data[:allocator.SystemBucketSize])
	if err := pages.UnpinPage(sysPg.ID, true); err != nil {
		return err
	}

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

	rootPtr, rootB, err := store.Allocate(true)
	if err != nil {
		return err
	}
	store.SetRoot(rootPtr)
	if err := store.Release(rootPtr, true); err != nil {
		return err
	}
	_ = rootB

	tree := &sbtree.Tree[types.BonsaiPointer]{
		Store:   store,
		Ops:     ops,
		FileID:  fileID,
		Compare: serializer.CompareInt64,
	}

	fmt.Println("=== bonsai variant ===")
	for i := int64(0); i < 500; i++ {
		if err := tree.Put(i64Key(i), i64Key(i*2)); err != nil {
			return fmt.Errorf("put %d: %w", i, err)
		}
	}
	size, err := tree.Size()
	if err != nil {
		return err
	}
	fmt.Printf("tree_size after 500 puts = %d\n", size)

	if err := tree.Clear(); err != nil {
		return err
	}
	sizeAfterClear, err := tree.Size()
	if err != nil {
		return err
	}
	fmt.Printf("tree_size after clear = %d\n", sizeAfterClear)

	return pages.FlushAllPages()
}
