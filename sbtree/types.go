// Package sbtree is the tree engine from spec §4.3: root management,
// downward search, leaf insert with recursive split, leaf delete,
// range/minor/major/between scans, first/last key, clear and delete.
// One generic engine (parameterized on the pointer type) implements the
// algorithm once for both the standard and bonsai variants — grounded
// in control flow on the teacher's storage_engine access layer (search
// a page, mutate, release), generalized from row slots to B+-tree
// entries and from a single pointer kind to two.
package sbtree

// Ptr is satisfied by both types.BucketPointer (standard) and
// types.BonsaiPointer (bonsai).
type Ptr interface {
	comparable
	IsNil() bool
}

// LeafEntry is a decoded (key, value) pair, common to both variants.
type LeafEntry struct {
	Key   []byte
	Value []byte
}

// InternalEntry is a decoded (key, left child, right child) triple.
type InternalEntry[P Ptr] struct {
	Key         []byte
	Left, Right P
}

// Bucket is the subset of bucket.StandardBucket / bucket.BonsaiBucket
// the tree engine drives, parameterized over the pointer type so one
// algorithm implementation serves both variants.
type Bucket[P Ptr] interface {
	Size() int32
	IsLeaf() bool
	Find(cmp func(key []byte) int) int32
	GetKey(i int32) ([]byte, error)
	GetLeafEntry(i int32) (LeafEntry, error)
	GetInternalEntry(i int32) (InternalEntry[P], error)
	AddLeafEntry(i int32, rawKey, rawValue []byte) (bool, error)
	AddInternalEntry(i int32, left, right P, rawKey []byte, updateNeighbors bool) (bool, error)
	Remove(i int32) ([]byte, []byte, error)
	UpdateValue(i int32, rawValue []byte) ([]byte, error)
	Shrink(newSize int32) error
	ResetEmpty(leaf bool)
	AddAllLeaf(keys, values [][]byte) error
	AddAllInternal(keys [][]byte, lefts, rights []P) error
	LeftSibling() P
	RightSibling() P
	SetLeftSibling(P) error
	SetRightSibling(P) error
	TreeSize() int64
	SetTreeSize(int64) error
}

// Store is the variant-specific collaborator: load/allocate/recycle
// bucket views by pointer, and the NULL pointer for that variant.
type Store[P Ptr] interface {
	Open(ptr P) (Bucket[P], error)
	Release(ptr P, dirty bool) error
	Allocate(leaf bool) (P, Bucket[P], error)
	Recycle(roots []P) error
	Nil() P
	Root() P
	SetRoot(P)
}

// BucketSearchResult is the result of a downward search (spec §4.3):
// item_index is the leaf bucket's find() result, path is every bucket
// pointer from root to leaf inclusive.
type BucketSearchResult[P Ptr] struct {
	ItemIndex int32
	Path      []P
}

func (r BucketSearchResult[P]) Leaf() P { return r.Path[len(r.Path)-1] }
