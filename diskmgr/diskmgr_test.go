package diskmgr

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sbtreeindex/page"
	"sbtreeindex/types"
)

func TestOpenFileIsIdempotentByPath(t *testing.T) {
	dm := New()
	path := filepath.Join(t.TempDir(), "a.db")

	id1, err := dm.OpenFile(path, 4096)
	require.NoError(t, err)
	id2, err := dm.OpenFile(path, 4096)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestAllocateWriteReadPageRoundTrips(t *testing.T) {
	dm := New()
	path := filepath.Join(t.TempDir(), "a.db")
	fileID, err := dm.OpenFile(path, 4096)
	require.NoError(t, err)

	globalID, err := dm.AllocatePage(fileID)
	require.NoError(t, err)

	pg := page.New(globalID, fileID, types.PageTypeBucket, 4096)
	copy(pg.Data[100:], []byte("hello"))

	require.NoError(t, dm.WritePage(pg))

	reread, err := dm.ReadPage(globalID)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), reread.Data[100:105])
	require.Equal(t, types.PageTypeBucket, reread.PageType)
}

func TestReadPageUnknownReturnsError(t *testing.T) {
	dm := New()
	_, err := dm.ReadPage(999)
	require.ErrorIs(t, err, types.ErrIO)
}

func TestTotalPagesTracksAllocations(t *testing.T) {
	dm := New()
	path := filepath.Join(t.TempDir(), "a.db")
	fileID, err := dm.OpenFile(path, 4096)
	require.NoError(t, err)
	require.Equal(t, int64(0), dm.TotalPages(fileID))

	_, err = dm.AllocatePage(fileID)
	require.NoError(t, err)
	_, err = dm.AllocatePage(fileID)
	require.NoError(t, err)
	require.Equal(t, int64(2), dm.TotalPages(fileID))
}

func TestCloseFileThenOperationsFail(t *testing.T) {
	dm := New()
	path := filepath.Join(t.TempDir(), "a.db")
	fileID, err := dm.OpenFile(path, 4096)
	require.NoError(t, err)

	require.NoError(t, dm.CloseFile(fileID))
	_, err = dm.AllocatePage(fileID)
	require.Error(t, err)
}

func TestReopenAfterCloseRecoversPageCount(t *testing.T) {
	dm := New()
	path := filepath.Join(t.TempDir(), "a.db")
	fileID, err := dm.OpenFile(path, 4096)
	require.NoError(t, err)

	globalID, err := dm.AllocatePage(fileID)
	require.NoError(t, err)
	pg := page.New(globalID, fileID, types.PageTypeBucket, 4096)
	require.NoError(t, dm.WritePage(pg))
	require.NoError(t, dm.CloseFile(fileID))

	dm2 := New()
	fileID2, err := dm2.OpenFile(path, 4096)
	require.NoError(t, err)
	require.Equal(t, int64(1), dm2.TotalPages(fileID2))
}
