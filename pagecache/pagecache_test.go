package pagecache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sbtreeindex/diskmgr"
	"sbtreeindex/types"
)

func newTestCache(t *testing.T) (*PageCache, uint32) {
	t.Helper()
	dm := diskmgr.New()
	fileID, err := dm.OpenFile(filepath.Join(t.TempDir(), "a.db"), 4096)
	require.NoError(t, err)
	pc, err := New(16, dm)
	require.NoError(t, err)
	return pc, fileID
}

func TestNewPageIsPinnedAndDirty(t *testing.T) {
	pc, fileID := newTestCache(t)
	pg, err := pc.NewPage(fileID, types.PageTypeBucket)
	require.NoError(t, err)
	require.Equal(t, int32(1), pg.PinCount)
	require.True(t, pg.IsDirty)
	require.Equal(t, 1, pc.Size())
}

func TestFetchPageHitsCacheWithoutDisk(t *testing.T) {
	pc, fileID := newTestCache(t)
	pg, err := pc.NewPage(fileID, types.PageTypeBucket)
	require.NoError(t, err)
	require.NoError(t, pc.UnpinPage(pg.ID, true))

	fetched, err := pc.FetchPage(pg.ID)
	require.NoError(t, err)
	require.Same(t, pg, fetched)
	require.Equal(t, int32(1), fetched.PinCount)
}

func TestUnpinUnknownPageErrors(t *testing.T) {
	pc, _ := newTestCache(t)
	err := pc.UnpinPage(42, false)
	require.ErrorIs(t, err, types.ErrStateViolation)
}

func TestFlushPageWritesDirtyPageToDisk(t *testing.T) {
	pc, fileID := newTestCache(t)
	pg, err := pc.NewPage(fileID, types.PageTypeBucket)
	require.NoError(t, err)
	copy(pg.Data[10:], []byte("payload"))
	require.NoError(t, pc.UnpinPage(pg.ID, true))

	require.NoError(t, pc.FlushPage(pg.ID))
	require.False(t, pg.IsDirty)
}

func TestFlushAllPagesClearsDirtyFlags(t *testing.T) {
	pc, fileID := newTestCache(t)
	for i := 0; i < 3; i++ {
		pg, err := pc.NewPage(fileID, types.PageTypeBucket)
		require.NoError(t, err)
		require.NoError(t, pc.UnpinPage(pg.ID, true))
	}

	require.NoError(t, pc.FlushAllPages())
	stats := pc.Stats()
	require.Equal(t, 0, stats.DirtyPages)
}

func TestDeletePageRefusesWhilePinned(t *testing.T) {
	pc, fileID := newTestCache(t)
	pg, err := pc.NewPage(fileID, types.PageTypeBucket)
	require.NoError(t, err)

	err = pc.DeletePage(pg.ID)
	require.ErrorIs(t, err, types.ErrStateViolation)

	require.NoError(t, pc.UnpinPage(pg.ID, false))
	require.NoError(t, pc.DeletePage(pg.ID))
	require.Equal(t, 0, pc.Size())
}

func TestStatsCountsPinnedAndDirty(t *testing.T) {
	pc, fileID := newTestCache(t)
	pg1, err := pc.NewPage(fileID, types.PageTypeBucket) // stays pinned+dirty
	require.NoError(t, err)
	pg2, err := pc.NewPage(fileID, types.PageTypeBucket)
	require.NoError(t, err)
	require.NoError(t, pc.UnpinPage(pg2.ID, false))

	stats := pc.Stats()
	require.Equal(t, 2, stats.TotalPages)
	require.Equal(t, 1, stats.PinnedPages)
	require.Equal(t, 2, stats.DirtyPages) // NewPage always starts dirty
	_ = pg1
}
