package sbtree

import (
	"fmt"

	"sbtreeindex/allocator"
	"sbtreeindex/atomicop"
	"sbtreeindex/bucket"
	"sbtreeindex/page"
	"sbtreeindex/pagecache"
	"sbtreeindex/serializer"
	"sbtreeindex/types"
)

// bonBucketAdapter makes *bucket.BonsaiBucket satisfy Bucket[types.BonsaiPointer].
type bonBucketAdapter struct{ *bucket.BonsaiBucket }

func (a bonBucketAdapter) GetLeafEntry(i int32) (LeafEntry, error) {
	e, err := a.BonsaiBucket.GetLeafEntry(i)
	if err != nil {
		return LeafEntry{}, err
	}
	return LeafEntry{Key: e.Key, Value: e.Value}, nil
}

func (a bonBucketAdapter) GetInternalEntry(i int32) (InternalEntry[types.BonsaiPointer], error) {
	e, err := a.BonsaiBucket.GetInternalEntry(i)
	if err != nil {
		return InternalEntry[types.BonsaiPointer]{}, err
	}
	return InternalEntry[types.BonsaiPointer]{Key: e.Key, Left: e.Left, Right: e.Right}, nil
}

// BonsaiStore is the packed-sub-page variant's Store: many bucket
// regions share one page, carved out by the sub-page allocator.
type BonsaiStore struct {
	Pages     *pagecache.PageCache
	Allocator *allocator.Allocator
	FileID    uint32

	BucketSize      int32
	KeySerializer   serializer.Serializer
	ValueSerializer serializer.Serializer

	Ops  *atomicop.AtomicOperation // set per atomic operation by the tree
	root types.BonsaiPointer
}

func (s *BonsaiStore) Nil() types.BonsaiPointer     { return types.NilBonsaiPointer }
func (s *BonsaiStore) Root() types.BonsaiPointer     { return s.root }
func (s *BonsaiStore) SetRoot(p types.BonsaiPointer) { s.root = p }

func (s *BonsaiStore) bindOps(op *atomicop.AtomicOperation) { s.Ops = op }

func (s *BonsaiStore) view(pg *page.Page, offset int32) Bucket[types.BonsaiPointer] {
	b := &bucket.BonsaiBucket{
		Region:          pg.Data[offset : offset+s.BucketSize],
		FileID:          s.FileID,
		PageIndex:       pg.ID,
		PageOffset:      offset,
		BinVersion:      s.Allocator.BinaryVersion,
		KeySerializer:   s.KeySerializer,
		ValueSerializer: s.ValueSerializer,
	}
	// Outside an atomic operation the bucket gets a nil logger, not a
	// non-nil interface wrapping a nil *AtomicOperation.
	if s.Ops != nil {
		b.Logger = s.Ops
	}
	return bonBucketAdapter{b}
}

func (s *BonsaiStore) Open(ptr types.BonsaiPointer) (Bucket[types.BonsaiPointer], error) {
	pg, err := s.Pages.FetchPage(ptr.PageIndex)
	if err != nil {
		return nil, fmt.Errorf("sbtree: open bonsai bucket %s: %w", ptr, err)
	}
	return s.view(pg, ptr.PageOffset), nil
}

func (s *BonsaiStore) Release(ptr types.BonsaiPointer, dirty bool) error {
	return s.Pages.UnpinPage(ptr.PageIndex, dirty)
}

func (s *BonsaiStore) Allocate(leaf bool) (types.BonsaiPointer, Bucket[types.BonsaiPointer], error) {
	ptr, pg, err := s.Allocator.Allocate()
	if err != nil {
		return types.NilBonsaiPointer, nil, fmt.Errorf("sbtree: allocate bonsai bucket: %w", err)
	}
	keyID, valID := int8(0), int8(0)
	if s.KeySerializer != nil {
		keyID = s.KeySerializer.ID()
	}
	if s.ValueSerializer != nil {
		valID = s.ValueSerializer.ID()
	}
	bucket.InitBonsai(pg.Data[ptr.PageOffset:ptr.PageOffset+s.BucketSize], keyID, valID, leaf)
	ptr.BinaryVersion = s.Allocator.BinaryVersion
	return ptr, s.view(pg, ptr.PageOffset), nil
}

// Recycle hands every root's subtree to the allocator's free-list splice
// (spec §4.2) — the bonsai variant's whole reason to exist over the
// standard one is that deleted sub-pages get reused, not abandoned.
func (s *BonsaiStore) Recycle(roots []types.BonsaiPointer) error {
	return s.Allocator.RecycleSubtrees(roots)
}
