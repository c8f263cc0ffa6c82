package bucket

import (
	"encoding/binary"

	"sbtreeindex/serializer"
	"sbtreeindex/types"
	"sbtreeindex/wal"
)

// Bonsai bucket header layout, byte exact per spec §6.
const (
	bonFreePointerOff = 0x00
	bonSizeOff        = 0x04
	bonFlagsOff       = 0x08
	bonFreeListOff    = 0x09 // (i64,i32,i32) triple
	bonLeftSibOff     = 0x19
	bonRightSibOff    = 0x29
	bonTreeSizeOff    = 0x39
	bonKeySerIDOff    = 0x41
	bonValSerIDOff    = 0x42
	BonsaiHeaderSize  = 0x43
)

// BonsaiBucket is a sub-page region: Region is a slice into a shared
// page starting at PageOffset, length sbtree_bonsai_bucket_size.
type BonsaiBucket struct {
	Region     []byte
	FileID     uint32
	PageIndex  int64
	PageOffset int32
	BinVersion int32

	KeySerializer   serializer.Serializer
	ValueSerializer serializer.Serializer

	Logger OpLogger
}

func (b *BonsaiBucket) Pointer() types.BonsaiPointer {
	return types.BonsaiPointer{PageIndex: b.PageIndex, PageOffset: b.PageOffset, BinaryVersion: b.BinVersion}
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

// InitBonsai formats a fresh sub-page region as an empty bucket.
func InitBonsai(region []byte, keySerID, valSerID int8, leaf bool) {
	binary.LittleEndian.PutUint32(region[bonFreePointerOff:], uint32(len(region)))
	binary.LittleEndian.PutUint32(region[bonSizeOff:], 0)
	var flags types.BucketFlags
	if leaf {
		flags |= types.FlagLeaf
	}
	region[bonFlagsOff] = byte(flags)
	writeTriple(region, bonFreeListOff, types.NilBonsaiPointer)
	writeTriple(region, bonLeftSibOff, types.NilBonsaiPointer)
	writeTriple(region, bonRightSibOff, types.NilBonsaiPointer)
	binary.LittleEndian.PutUint64(region[bonTreeSizeOff:], 0)
	region[bonKeySerIDOff] = byte(keySerID)
	region[bonValSerIDOff] = byte(valSerID)
}

func (b *BonsaiBucket) FreePointer() int32 { return int32(binary.LittleEndian.Uint32(b.Region[bonFreePointerOff:])) }
func (b *BonsaiBucket) setFreePointer(v int32) {
	binary.LittleEndian.PutUint32(b.Region[bonFreePointerOff:], uint32(v))
}

func (b *BonsaiBucket) Size() int32 { return int32(binary.LittleEndian.Uint32(b.Region[bonSizeOff:])) }
func (b *BonsaiBucket) setSize(v int32) {
	binary.LittleEndian.PutUint32(b.Region[bonSizeOff:], uint32(v))
}

func (b *BonsaiBucket) Flags() types.BucketFlags { return types.BucketFlags(b.Region[bonFlagsOff]) }
func (b *BonsaiBucket) IsLeaf() bool             { return b.Flags().IsLeaf() }
func (b *BonsaiBucket) IsDeleted() bool          { return b.Flags().IsDeleted() }

func (b *BonsaiBucket) LeftSibling() types.BonsaiPointer  { return readTriple(b.Region, bonLeftSibOff) }
func (b *BonsaiBucket) RightSibling() types.BonsaiPointer { return readTriple(b.Region, bonRightSibOff) }
func (b *BonsaiBucket) FreeListPointer() types.BonsaiPointer {
	return readTriple(b.Region, bonFreeListOff)
}
func (b *BonsaiBucket) TreeSize() int64 {
	return int64(binary.LittleEndian.Uint64(b.Region[bonTreeSizeOff:]))
}

func (b *BonsaiBucket) logPageOp(kind wal.PageOperationKind, index int, payload []byte, undo func() error) error {
	if b.Logger == nil {
		return nil
	}
	return b.Logger.LogPageOp(wal.PageOperation{
		Kind:    kind,
		FileID:  b.FileID,
		PageID:  b.PageIndex,
		Index:   index,
		Payload: payload,
	}, undo)
}

func encodeTriple(p types.BonsaiPointer) []byte {
	buf := make([]byte, 16)
	writeTriple(buf, 0, p)
	return buf
}

func decodeTriple(b []byte) types.BonsaiPointer { return readTriple(b, 0) }

func (b *BonsaiBucket) SetLeftSibling(p types.BonsaiPointer) error {
	old := b.LeftSibling()
	writeTriple(b.Region, bonLeftSibOff, p)
	return b.logPageOp(wal.OpSetLeftSibling, 0, encodeTriple(old), func() error {
		writeTriple(b.Region, bonLeftSibOff, old)
		return nil
	})
}

func (b *BonsaiBucket) SetRightSibling(p types.BonsaiPointer) error {
	old := b.RightSibling()
	writeTriple(b.Region, bonRightSibOff, p)
	return b.logPageOp(wal.OpSetRightSibling, 0, encodeTriple(old), func() error {
		writeTriple(b.Region, bonRightSibOff, old)
		return nil
	})
}

func (b *BonsaiBucket) SetTreeSize(n int64) error {
	old := b.TreeSize()
	binary.LittleEndian.PutUint64(b.Region[bonTreeSizeOff:], uint64(n))
	return b.logPageOp(wal.OpSetTreeSize, 0, encodeI64(old), func() error {
		binary.LittleEndian.PutUint64(b.Region[bonTreeSizeOff:], uint64(old))
		return nil
	})
}

// SetDeleted sets the DELETED flag (spec §4.1 set_deleted, bonsai only).
func (b *BonsaiBucket) SetDeleted() error {
	old := b.Region[bonFlagsOff]
	b.Region[bonFlagsOff] = old | byte(types.FlagDeleted)
	return b.logPageOp(wal.OpSetDeleted, 0, []byte{old}, func() error {
		b.Region[bonFlagsOff] = old
		return nil
	})
}

// SetFreeListPointer overwrites free_list_ptr; precondition DELETED.
func (b *BonsaiBucket) SetFreeListPointer(p types.BonsaiPointer) error {
	old := b.FreeListPointer()
	writeTriple(b.Region, bonFreeListOff, p)
	return b.logPageOp(wal.OpSetFreeListPointer, 0, encodeTriple(old), func() error {
		writeTriple(b.Region, bonFreeListOff, old)
		return nil
	})
}

// ResetEmpty reformats this region as a fresh empty bucket (see
// StandardBucket.ResetEmpty — same root-split use, not itself logged).
func (b *BonsaiBucket) ResetEmpty(leaf bool) {
	keyID := b.Region[bonKeySerIDOff]
	valID := b.Region[bonValSerIDOff]
	InitBonsai(b.Region, int8(keyID), int8(valID), leaf)
}
