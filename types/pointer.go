// Package types holds the small on-disk value types shared by the bucket,
// allocator and tree engine packages: bucket pointers, page types and the
// bucket flag bitset.
package types

import "fmt"

// PageType tags the first live byte of a page so a page cache miss can
// tell a bucket region apart from a system region on read.
type PageType uint8

const (
	PageTypeUnknown PageType = iota
	PageTypeBucket
	PageTypeSystem
)

// BucketPointer is the standard-variant child/sibling pointer: a single
// page index, -1 when NULL. One bucket occupies one whole page.
type BucketPointer int64

const NilBucketPointer BucketPointer = -1

func (p BucketPointer) IsNil() bool { return p < 0 }

func (p BucketPointer) String() string {
	if p.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("page(%d)", int64(p))
}

// BonsaiPointer is the bonsai-variant child/sibling pointer: (page index,
// byte offset of the sub-page region within that page, binary version).
// PageIndex < 0 is the NULL pointer. The sentinel system pointer is
// BonsaiPointer{PageIndex: 0, PageOffset: 0}.
type BonsaiPointer struct {
	PageIndex     int64
	PageOffset    int32
	BinaryVersion int32
}

var NilBonsaiPointer = BonsaiPointer{PageIndex: -1}

// SystemBonsaiPointer is the fixed location of the per-file system bucket.
func SystemBonsaiPointer(binaryVersion int32) BonsaiPointer {
	return BonsaiPointer{PageIndex: 0, PageOffset: 0, BinaryVersion: binaryVersion}
}

func (p BonsaiPointer) IsNil() bool { return p.PageIndex < 0 }

func (p BonsaiPointer) Equal(o BonsaiPointer) bool {
	return p.PageIndex == o.PageIndex && p.PageOffset == o.PageOffset
}

func (p BonsaiPointer) String() string {
	if p.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("bucket(page=%d,off=%d,v=%d)", p.PageIndex, p.PageOffset, p.BinaryVersion)
}

// BucketFlags is the bucket header bitset described in spec §3.
type BucketFlags uint8

const (
	FlagLeaf    BucketFlags = 0x1
	FlagDeleted BucketFlags = 0x2 // bonsai only
)

func (f BucketFlags) IsLeaf() bool    { return f&FlagLeaf != 0 }
func (f BucketFlags) IsDeleted() bool { return f&FlagDeleted != 0 }
