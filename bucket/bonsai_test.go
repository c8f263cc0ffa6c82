package bucket

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sbtreeindex/serializer"
	"sbtreeindex/types"
)

func newBonsaiLeaf(t *testing.T, regionSize int32) *BonsaiBucket {
	t.Helper()
	region := make([]byte, regionSize)
	InitBonsai(region, serializer.Int64Serializer{}.ID(), serializer.Int64Serializer{}.ID(), true)
	return &BonsaiBucket{
		Region:          region,
		PageIndex:       7,
		PageOffset:      0,
		KeySerializer:   serializer.Int64Serializer{},
		ValueSerializer: serializer.Int64Serializer{},
	}
}

func TestBonsaiBucketInitEmpty(t *testing.T) {
	b := newBonsaiLeaf(t, 256)
	require.True(t, b.IsLeaf())
	require.False(t, b.IsDeleted())
	require.Zero(t, b.Size())
	require.True(t, b.LeftSibling().IsNil())
	require.True(t, b.FreeListPointer().IsNil())
}

func TestBonsaiBucketAddGetRemove(t *testing.T) {
	b := newBonsaiLeaf(t, 256)

	for i, k := range []int64{1, 2, 3} {
		ok, err := b.AddLeafEntry(int32(i), i64(k), i64(k*100))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, int32(3), b.Size())

	e, err := b.GetLeafEntry(1)
	require.NoError(t, err)
	require.Equal(t, i64(2), e.Key)
	require.Equal(t, i64(200), e.Value)

	rk, rv, err := b.Remove(0)
	require.NoError(t, err)
	require.Equal(t, i64(1), rk)
	require.Equal(t, i64(100), rv)
	require.Equal(t, int32(2), b.Size())
}

func TestBonsaiBucketRejectsVariableLengthValue(t *testing.T) {
	region := make([]byte, 256)
	InitBonsai(region, serializer.Int64Serializer{}.ID(), serializer.BytesSerializer{}.ID(), true)
	b := &BonsaiBucket{
		Region:          region,
		KeySerializer:   serializer.Int64Serializer{},
		ValueSerializer: serializer.BytesSerializer{},
	}
	_, err := b.AddLeafEntry(0, i64(1), []byte("abc"))
	require.Error(t, err, "bonsai buckets require a fixed-length value serializer")
}

func TestBonsaiBucketSetDeletedAndFreeListPointer(t *testing.T) {
	b := newBonsaiLeaf(t, 256)
	require.NoError(t, b.SetDeleted())
	require.True(t, b.IsDeleted())

	fl := types.BonsaiPointer{PageIndex: 3, PageOffset: 128}
	require.NoError(t, b.SetFreeListPointer(fl))
	require.True(t, b.FreeListPointer().Equal(fl))
}

func TestBonsaiBucketInternalEntryChildPointers(t *testing.T) {
	region := make([]byte, 256)
	InitBonsai(region, serializer.Int64Serializer{}.ID(), serializer.Int64Serializer{}.ID(), false)
	b := &BonsaiBucket{
		Region:          region,
		PageIndex:       1,
		BinVersion:      2,
		KeySerializer:   serializer.Int64Serializer{},
		ValueSerializer: serializer.Int64Serializer{},
	}

	left := types.BonsaiPointer{PageIndex: 1, PageOffset: 64, BinaryVersion: 2}
	right := types.BonsaiPointer{PageIndex: 1, PageOffset: 128, BinaryVersion: 2}
	ok, err := b.AddInternalEntry(0, left, right, i64(42), false)
	require.NoError(t, err)
	require.True(t, ok)

	e, err := b.GetInternalEntry(0)
	require.NoError(t, err)
	require.True(t, e.Left.Equal(left))
	require.True(t, e.Right.Equal(right))
	require.Equal(t, int32(2), e.Left.BinaryVersion, "binary_version is recovered from the bucket, not stored per child pair")
}

func TestBonsaiBucketResetEmpty(t *testing.T) {
	b := newBonsaiLeaf(t, 256)
	_, err := b.AddLeafEntry(0, i64(1), i64(1))
	require.NoError(t, err)

	b.ResetEmpty(false)
	require.False(t, b.IsLeaf())
	require.Zero(t, b.Size())
}
