package sbtree

import (
	"fmt"

	"sbtreeindex/atomicop"
	"sbtreeindex/bucket"
	"sbtreeindex/page"
	"sbtreeindex/pagecache"
	"sbtreeindex/serializer"
	"sbtreeindex/types"
)

// stdBucketAdapter makes *bucket.StandardBucket satisfy Bucket[types.BucketPointer].
type stdBucketAdapter struct{ *bucket.StandardBucket }

func (a stdBucketAdapter) GetLeafEntry(i int32) (LeafEntry, error) {
	e, err := a.StandardBucket.GetLeafEntry(i)
	if err != nil {
		return LeafEntry{}, err
	}
	return LeafEntry{Key: e.Key, Value: e.Value}, nil
}

func (a stdBucketAdapter) GetInternalEntry(i int32) (InternalEntry[types.BucketPointer], error) {
	e, err := a.StandardBucket.GetInternalEntry(i)
	if err != nil {
		return InternalEntry[types.BucketPointer]{}, err
	}
	return InternalEntry[types.BucketPointer]{Key: e.Key, Left: e.Left, Right: e.Right}, nil
}

func (a stdBucketAdapter) LeftSibling() types.BucketPointer  { return a.StandardBucket.LeftSibling() }
func (a stdBucketAdapter) RightSibling() types.BucketPointer { return a.StandardBucket.RightSibling() }

// StandardStore is the page-per-bucket variant's Store: one bucket
// region is one whole page, fetched straight from the page cache.
type StandardStore struct {
	Pages  *pagecache.PageCache
	FileID uint32

	KeySerializer   serializer.Serializer
	ValueSerializer serializer.Serializer
	Encryptor       bucket.Encryptor

	Ops  *atomicop.AtomicOperation // set per atomic operation by the tree
	root types.BucketPointer
}

func (s *StandardStore) Nil() types.BucketPointer { return types.NilBucketPointer }
func (s *StandardStore) Root() types.BucketPointer { return s.root }
func (s *StandardStore) SetRoot(p types.BucketPointer) { s.root = p }

// bindOps satisfies opsBinder so Tree can point every bucket this store
// opens at the atomic operation currently in flight, without Store[P]
// itself needing to know about atomicop.
func (s *StandardStore) bindOps(op *atomicop.AtomicOperation) { s.Ops = op }

func (s *StandardStore) view(pg *page.Page) Bucket[types.BucketPointer] {
	b := &bucket.StandardBucket{
		Region:          pg.Data,
		FileID:          s.FileID,
		PageID:          pg.ID,
		KeySerializer:   s.KeySerializer,
		ValueSerializer: s.ValueSerializer,
		Encryptor:       s.Encryptor,
	}
	// Outside an atomic operation the bucket gets a nil logger, not a
	// non-nil interface wrapping a nil *AtomicOperation.
	if s.Ops != nil {
		b.Logger = s.Ops
	}
	return stdBucketAdapter{b}
}

func (s *StandardStore) Open(ptr types.BucketPointer) (Bucket[types.BucketPointer], error) {
	pg, err := s.Pages.FetchPage(int64(ptr))
	if err != nil {
		return nil, fmt.Errorf("sbtree: open standard bucket %d: %w", ptr, err)
	}
	return s.view(pg), nil
}

func (s *StandardStore) Release(ptr types.BucketPointer, dirty bool) error {
	return s.Pages.UnpinPage(int64(ptr), dirty)
}

func (s *StandardStore) Allocate(leaf bool) (types.BucketPointer, Bucket[types.BucketPointer], error) {
	pg, err := s.Pages.NewPage(s.FileID, types.PageTypeBucket)
	if err != nil {
		return types.NilBucketPointer, nil, fmt.Errorf("sbtree: allocate standard bucket: %w", err)
	}
	keyID, valID := int8(0), int8(0)
	if s.KeySerializer != nil {
		keyID = s.KeySerializer.ID()
	}
	if s.ValueSerializer != nil {
		valID = s.ValueSerializer.ID()
	}
	bucket.InitStandard(pg.Data, keyID, valID, leaf)
	return types.BucketPointer(pg.ID), s.view(pg), nil
}

// Recycle just marks the region empty and leaves the page allocated —
// the standard variant never frees a page back to the filesystem
// within a tree's lifetime (spec §3 "Bucket" lifecycle); pages sit idle
// after clear/delete rather than joining an explicit free list, since
// spec §4.2's free-list allocator is a bonsai-only concept.
func (s *StandardStore) Recycle(roots []types.BucketPointer) error {
	for _, ptr := range roots {
		if ptr.IsNil() {
			continue
		}
		pg, err := s.Pages.FetchPage(int64(ptr))
		if err != nil {
			return fmt.Errorf("sbtree: recycle standard bucket %d: %w", ptr, err)
		}
		bucket.InitStandard(pg.Data, 0, 0, true)
		if err := s.Pages.UnpinPage(int64(ptr), true); err != nil {
			return err
		}
	}
	return nil
}
