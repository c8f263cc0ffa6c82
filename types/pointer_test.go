package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBucketPointerIsNil(t *testing.T) {
	require.True(t, NilBucketPointer.IsNil())
	require.False(t, BucketPointer(0).IsNil())
}

func TestBonsaiPointerIsNilAndEqual(t *testing.T) {
	require.True(t, NilBonsaiPointer.IsNil())

	a := BonsaiPointer{PageIndex: 1, PageOffset: 64, BinaryVersion: 1}
	b := BonsaiPointer{PageIndex: 1, PageOffset: 64, BinaryVersion: 2}
	require.True(t, a.Equal(b), "Equal ignores binary_version")

	c := BonsaiPointer{PageIndex: 1, PageOffset: 128, BinaryVersion: 1}
	require.False(t, a.Equal(c))
}

func TestBucketFlags(t *testing.T) {
	f := FlagLeaf
	require.True(t, f.IsLeaf())
	require.False(t, f.IsDeleted())

	f |= FlagDeleted
	require.True(t, f.IsDeleted())
}
