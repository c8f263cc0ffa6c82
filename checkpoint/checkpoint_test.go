package checkpoint

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWithNoCheckpointYieldsZeroLSN(t *testing.T) {
	dir := t.TempDir()
	cm, err := New(dir)
	require.NoError(t, err)

	cp, err := cm.Load()
	require.NoError(t, err)
	require.Equal(t, uint64(0), cp.LSN)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cm, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, cm.Save(7, 12345))

	cp, err := cm.Load()
	require.NoError(t, err)
	require.Equal(t, uint32(7), cp.FileID)
	require.Equal(t, uint64(12345), cp.LSN)
	require.Positive(t, cp.Timestamp)
}

func TestSaveOverwritesPreviousCheckpoint(t *testing.T) {
	dir := t.TempDir()
	cm, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, cm.Save(1, 1))
	require.NoError(t, cm.Save(1, 2))

	cp, err := cm.Load()
	require.NoError(t, err)
	require.Equal(t, uint64(2), cp.LSN)
}

func TestLoadRecoversFromCorruptFile(t *testing.T) {
	dir := t.TempDir()
	cm, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, cm.Save(1, 99))

	require.NoError(t, os.WriteFile(cm.checkpointPath, []byte("not json"), 0644))

	cp, err := cm.Load()
	require.NoError(t, err)
	require.Equal(t, uint64(0), cp.LSN, "a corrupt checkpoint should fall back to a full replay")
}

func TestDeleteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	cm, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, cm.Save(1, 1))

	require.NoError(t, cm.Delete())
	require.NoError(t, cm.Delete())

	cp, err := cm.Load()
	require.NoError(t, err)
	require.Equal(t, uint64(0), cp.LSN)
}
