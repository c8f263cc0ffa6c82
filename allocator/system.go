// Package allocator implements the bonsai-only system bucket and
// sub-page allocator from spec §4.2: a free-list allocator that hands
// out fixed-size bucket regions inside larger pages and recycles them
// when subtrees are deleted. Grounded in shape on dacapoday-smol's
// bptree/recycler.go (BFS over a subtree freeing each visited block),
// generalized from whole-block recycling to the bonsai free-list splice.
package allocator

import (
	"encoding/binary"

	"sbtreeindex/types"
)

// System bucket layout: a fixed header at page 0, offset 0 (spec §9
// "fixed location (page 0, offset 0)"). Not given byte-exact by the
// external spec (only the bonsai bucket layout is); laid out densely in
// declaration order since nothing else shares page 0's low bytes.
const (
	sysFreeListHeadOff   = 0x00 // (i64,i32,i32)
	sysFreeListLengthOff = 0x10 // i32
	sysFreeSpacePtrOff   = 0x14 // (i64,i32,i32)
	SystemBucketSize     = 0x24
)

// SystemBucket is a typed view of page 0's header region (spec §9: "model
// as a typed view of page 0 rather than global state").
type SystemBucket struct {
	Region []byte
}

// InitSystemBucket formats a fresh system bucket: empty free list, high
// water pointer starting right after the system bucket itself.
func InitSystemBucket(region []byte) {
	writeTriple(region, sysFreeListHeadOff, types.NilBonsaiPointer)
	binary.LittleEndian.PutUint32(region[sysFreeListLengthOff:], 0)
	writeTriple(region, sysFreeSpacePtrOff, types.BonsaiPointer{PageIndex: 0, PageOffset: SystemBucketSize})
}

func writeTriple(region []byte, off int32, p types.BonsaiPointer) {
	binary.LittleEndian.PutUint64(region[off:], uint64(p.PageIndex))
	binary.LittleEndian.PutUint32(region[off+8:], uint32(p.PageOffset))
	binary.LittleEndian.PutUint32(region[off+12:], uint32(p.BinaryVersion))
}

func readTriple(region []byte, off int32) types.BonsaiPointer {
	return types.BonsaiPointer{
		PageIndex:     int64(binary.LittleEndian.Uint64(region[off:])),
		PageOffset:    int32(binary.LittleEndian.Uint32(region[off+8:])),
		BinaryVersion: int32(binary.LittleEndian.Uint32(region[off+12:])),
	}
}

func (s *SystemBucket) FreeListHead() types.BonsaiPointer { return readTriple(s.Region, sysFreeListHeadOff) }
func (s *SystemBucket) SetFreeListHead(p types.BonsaiPointer) {
	writeTriple(s.Region, sysFreeListHeadOff, p)
}

func (s *SystemBucket) FreeListLength() int32 {
	return int32(binary.LittleEndian.Uint32(s.Region[sysFreeListLengthOff:]))
}
func (s *SystemBucket) SetFreeListLength(n int32) {
	binary.LittleEndian.PutUint32(s.Region[sysFreeListLengthOff:], uint32(n))
}

func (s *SystemBucket) FreeSpacePointer() types.BonsaiPointer {
	return readTriple(s.Region, sysFreeSpacePtrOff)
}
func (s *SystemBucket) SetFreeSpacePointer(p types.BonsaiPointer) {
	writeTriple(s.Region, sysFreeSpacePtrOff, p)
}
