package allocator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sbtreeindex/bucket"
	"sbtreeindex/page"
	"sbtreeindex/types"
)

// memPageSource is a minimal in-memory PageSource for exercising the
// allocator without a real disk manager or page cache behind it.
type memPageSource struct {
	fileID uint32
	pages  map[int64]*page.Page
	nextID int64
}

func newMemPageSource(fileID uint32) *memPageSource {
	return &memPageSource{fileID: fileID, pages: make(map[int64]*page.Page)}
}

func (m *memPageSource) FetchPage(pageID int64) (*page.Page, error) {
	pg, ok := m.pages[pageID]
	if !ok {
		return nil, types.ErrStateViolation
	}
	return pg, nil
}

func (m *memPageSource) NewPage(fileID uint32, pageType types.PageType) (*page.Page, error) {
	id := m.nextID
	m.nextID++
	pg := page.New(id, fileID, pageType, page.DefaultSize)
	m.pages[id] = pg
	return pg, nil
}

func (m *memPageSource) UnpinPage(pageID int64, isDirty bool) error {
	return nil
}

func newTestAllocator(t *testing.T) (*Allocator, *memPageSource) {
	t.Helper()
	src := newMemPageSource(1)
	sysPg, err := src.NewPage(1, types.PageTypeSystem)
	require.NoError(t, err)
	require.Equal(t, int64(0), sysPg.ID)
	InitSystemBucket(sysPg.Data[:SystemBucketSize])

	return &Allocator{
		Pages:         src,
		FileID:        1,
		BucketSize:    256,
		PageSize:      page.DefaultSize,
		BinaryVersion: 1,
	}, src
}

func TestAllocateBumpsWithinPage(t *testing.T) {
	a, _ := newTestAllocator(t)

	// The free-space pointer starts right after the system header, still
	// on page 0 — the first sub-page buckets are packed alongside it.
	p1, pg1, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, int64(0), p1.PageIndex)
	require.Equal(t, int32(SystemBucketSize), p1.PageOffset)

	p2, pg2, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, p1.PageIndex, p2.PageIndex, "second allocation bumps within the same page")
	require.Equal(t, p1.PageOffset+a.BucketSize, p2.PageOffset)
	require.Equal(t, pg1.ID, pg2.ID)
}

func TestAllocateOverflowsToNewPage(t *testing.T) {
	a, _ := newTestAllocator(t)

	// Keep bumping on page 0 until the next bucket would no longer fit.
	var last types.BonsaiPointer
	for {
		ptr, _, err := a.Allocate()
		require.NoError(t, err)
		if ptr.PageIndex != 0 {
			// allocator already rolled onto a new page this call
			require.Equal(t, int32(0), ptr.PageOffset)
			return
		}
		last = ptr
		if last.PageOffset+a.BucketSize+a.BucketSize > a.PageSize {
			break
		}
	}

	overflow, _, err := a.Allocate()
	require.NoError(t, err)
	require.NotEqual(t, int64(0), overflow.PageIndex, "bump pointer exceeded the page, allocator should open a new one")
	require.Equal(t, int32(0), overflow.PageOffset)
}

func TestRecycleSubtreesReusesFreedSpace(t *testing.T) {
	a, _ := newTestAllocator(t)

	leafPtr, leafPg, err := a.Allocate()
	require.NoError(t, err)
	leaf := a.bucketAt(leafPg, leafPtr.PageOffset)
	bucket.InitBonsai(leaf.Region, 0, 0, true)

	require.NoError(t, a.RecycleSubtrees([]types.BonsaiPointer{leafPtr}))

	reused, _, err := a.Allocate()
	require.NoError(t, err)
	require.True(t, reused.Equal(leafPtr), "allocate should pop the just-recycled bucket off the free list before bumping further")
}

func TestRecycleSubtreesSkipsNilRoots(t *testing.T) {
	a, _ := newTestAllocator(t)
	require.NoError(t, a.RecycleSubtrees([]types.BonsaiPointer{types.NilBonsaiPointer}))
}
