package allocator

import (
	"fmt"

	"sbtreeindex/bucket"
	"sbtreeindex/page"
	"sbtreeindex/types"
)

// PageSource is the subset of pagecache.PageCache the allocator needs:
// fetch/pin an existing page, allocate a new one, unpin when done.
type PageSource interface {
	FetchPage(pageID int64) (*page.Page, error)
	NewPage(fileID uint32, pageType types.PageType) (*page.Page, error)
	UnpinPage(pageID int64, isDirty bool) error
}

// Allocator is the bonsai sub-page allocator from spec §4.2.
type Allocator struct {
	Pages         PageSource
	FileID        uint32
	BucketSize    int32 // sbtree_bonsai_bucket_size
	PageSize      int32
	BinaryVersion int32
}

func (a *Allocator) systemPage() (*page.Page, *SystemBucket, error) {
	pg, err := a.Pages.FetchPage(0)
	if err != nil {
		return nil, nil, fmt.Errorf("allocator: fetch system page: %w", err)
	}
	return pg, &SystemBucket{Region: pg.Data[:SystemBucketSize]}, nil
}

func (a *Allocator) bucketAt(pg *page.Page, offset int32) *bucket.BonsaiBucket {
	return &bucket.BonsaiBucket{
		Region:     pg.Data[offset : offset+a.BucketSize],
		FileID:     a.FileID,
		PageIndex:  pg.ID,
		PageOffset: offset,
		BinVersion: a.BinaryVersion,
	}
}

// Allocate hands out one bucket region per spec §4.2: free-list pop
// first, else a high-water bump within the current page, else a brand
// new page.
func (a *Allocator) Allocate() (types.BonsaiPointer, *page.Page, error) {
	sysPg, sys, err := a.systemPage()
	if err != nil {
		return types.BonsaiPointer{}, nil, err
	}
	defer a.Pages.UnpinPage(0, true)

	if sys.FreeListLength() > 0 {
		head := sys.FreeListHead()
		headPg, err := a.Pages.FetchPage(head.PageIndex)
		if err != nil {
			return types.BonsaiPointer{}, nil, fmt.Errorf("allocator: fetch free-list head: %w", err)
		}
		reused := a.bucketAt(headPg, head.PageOffset)
		next := reused.FreeListPointer()

		sys.SetFreeListHead(next)
		sys.SetFreeListLength(sys.FreeListLength() - 1)
		return head, headPg, nil
	}

	fsp := sys.FreeSpacePointer()
	if fsp.PageOffset+a.BucketSize <= a.PageSize {
		ptr := fsp
		sys.SetFreeSpacePointer(types.BonsaiPointer{PageIndex: fsp.PageIndex, PageOffset: fsp.PageOffset + a.BucketSize})
		pg, err := a.Pages.FetchPage(fsp.PageIndex)
		if err != nil {
			return types.BonsaiPointer{}, nil, fmt.Errorf("allocator: fetch page for bump allocation: %w", err)
		}
		return ptr, pg, nil
	}

	newPg, err := a.Pages.NewPage(a.FileID, types.PageTypeBucket)
	if err != nil {
		return types.BonsaiPointer{}, nil, fmt.Errorf("allocator: allocate new page: %w", err)
	}
	ptr := types.BonsaiPointer{PageIndex: newPg.ID, PageOffset: 0}
	sys.SetFreeSpacePointer(types.BonsaiPointer{PageIndex: newPg.ID, PageOffset: a.BucketSize})
	_ = sysPg
	return ptr, newPg, nil
}

// RecycleSubtrees walks each root's subtree breadth-first, marks every
// visited bucket DELETED, threads them onto the free list in reverse
// visitation order, and splices the resulting chain onto whatever was
// already on the free list (spec §4.2). A bucket reachable from more
// than one listed root is recycled once.
func (a *Allocator) RecycleSubtrees(roots []types.BonsaiPointer) error {
	var visited []types.BonsaiPointer
	seen := make(map[[2]int64]bool)
	queue := append([]types.BonsaiPointer(nil), roots...)

	for len(queue) > 0 {
		ptr := queue[0]
		queue = queue[1:]
		if ptr.IsNil() {
			continue
		}
		at := [2]int64{int64(ptr.PageIndex), int64(ptr.PageOffset)}
		if seen[at] {
			continue
		}
		seen[at] = true

		pg, err := a.Pages.FetchPage(ptr.PageIndex)
		if err != nil {
			return fmt.Errorf("allocator: fetch page during recycle: %w", err)
		}
		b := a.bucketAt(pg, ptr.PageOffset)

		if !b.IsLeaf() {
			for i := int32(0); i < b.Size(); i++ {
				entry, err := b.GetInternalEntry(i)
				if err != nil {
					a.Pages.UnpinPage(ptr.PageIndex, false)
					return err
				}
				if i == 0 {
					queue = append(queue, entry.Left)
				}
				queue = append(queue, entry.Right)
			}
		}

		visited = append(visited, ptr)
		a.Pages.UnpinPage(ptr.PageIndex, true)
	}

	if len(visited) == 0 {
		return nil
	}

	sysPg, sys, err := a.systemPage()
	if err != nil {
		return err
	}
	defer a.Pages.UnpinPage(0, true)

	// Push visited buckets onto the free list one at a time: each points
	// at the previous head, so the chain runs in reverse visitation order
	// and its tail (the first bucket visited) links onto the existing
	// free-list head.
	existingHead := sys.FreeListHead()
	next := existingHead
	for _, ptr := range visited {
		pg, err := a.Pages.FetchPage(ptr.PageIndex)
		if err != nil {
			return fmt.Errorf("allocator: fetch page during splice: %w", err)
		}
		b := a.bucketAt(pg, ptr.PageOffset)
		if err := b.SetDeleted(); err != nil {
			a.Pages.UnpinPage(ptr.PageIndex, false)
			return err
		}
		if err := b.SetFreeListPointer(next); err != nil {
			a.Pages.UnpinPage(ptr.PageIndex, false)
			return err
		}
		next = ptr
		a.Pages.UnpinPage(ptr.PageIndex, true)
	}

	sys.SetFreeListHead(next)
	sys.SetFreeListLength(sys.FreeListLength() + int32(len(visited)))
	_ = sysPg
	return nil
}
