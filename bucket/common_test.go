package bucket

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindExactMatch(t *testing.T) {
	vals := []int{10, 20, 30, 40}
	idx := Find(int32(len(vals)), func(i int32) int {
		switch {
		case 30 < vals[i]:
			return -1
		case 30 > vals[i]:
			return 1
		default:
			return 0
		}
	})
	require.Equal(t, int32(2), idx)
}

func TestFindInsertionPoint(t *testing.T) {
	vals := []int{10, 20, 30, 40}
	idx := Find(int32(len(vals)), func(i int32) int {
		switch {
		case 25 < vals[i]:
			return -1
		case 25 > vals[i]:
			return 1
		default:
			return 0
		}
	})
	require.Equal(t, int32(-3), idx) // insertion_point=2, -(2+1)
}

func TestFindEmpty(t *testing.T) {
	idx := Find(0, func(i int32) int { return 1 })
	require.Equal(t, int32(-1), idx)
}

func TestCheckEntrySizeRejectsOversized(t *testing.T) {
	require.NoError(t, checkEntrySize(16))
	require.Error(t, checkEntrySize(1<<30))
}
