package atomicop

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"sbtreeindex/wal"
)

func TestRunCommitKeepsLoggedSteps(t *testing.T) {
	m := New(nil, nil)
	var undone bool

	err := m.Run(1, true, func(op *AtomicOperation) error {
		return op.LogPageOp(wal.PageOperation{Kind: wal.OpAddEntry, FileID: 1, PageID: 5}, func() error {
			undone = true
			return nil
		})
	})

	require.NoError(t, err)
	require.False(t, undone, "a committed operation must not run its undo steps")
	require.Empty(t, m.active)
}

func TestRunRollsBackOnErrorWhenRequested(t *testing.T) {
	m := New(nil, nil)
	var undone []int

	boom := errors.New("boom")
	err := m.Run(1, true, func(op *AtomicOperation) error {
		for i := 0; i < 3; i++ {
			i := i
			if logErr := op.LogPageOp(wal.PageOperation{Kind: wal.OpAddEntry, FileID: 1, PageID: int64(i)}, func() error {
				undone = append(undone, i)
				return nil
			}); logErr != nil {
				return logErr
			}
		}
		return boom
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, []int{2, 1, 0}, undone, "rollback undoes steps in reverse (LIFO) order")
}

func TestRunKeepsStepsWhenRollbackOnExceptionFalse(t *testing.T) {
	m := New(nil, nil)
	var undone bool

	boom := errors.New("boom")
	err := m.Run(1, false, func(op *AtomicOperation) error {
		if logErr := op.LogPageOp(wal.PageOperation{Kind: wal.OpAddEntry, FileID: 1, PageID: 1}, func() error {
			undone = true
			return nil
		}); logErr != nil {
			return logErr
		}
		return boom
	})

	require.ErrorIs(t, err, boom)
	require.False(t, undone, "rollbackOnException=false should commit whatever was already logged")
}

func TestSetComponentOperationThenCommitSucceeds(t *testing.T) {
	m := New(nil, nil)

	err := m.Run(1, true, func(op *AtomicOperation) error {
		op.SetComponentOperation(wal.ComponentOperation{Kind: wal.ComponentPut, FileID: 1, RawKey: []byte("k")})
		return nil
	})
	require.NoError(t, err)
}

func TestAcquireReleaseLocksAreNoOpsWithoutLockManager(t *testing.T) {
	m := New(nil, nil)
	require.NotPanics(t, func() {
		m.AcquireReadLock(1)
		m.ReleaseReadLock(1)
		m.AcquireWriteLock(1)
		m.ReleaseWriteLock(1)
	})
}
