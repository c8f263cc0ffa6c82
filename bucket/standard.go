package bucket

import (
	"encoding/binary"
	"fmt"

	"sbtreeindex/serializer"
	"sbtreeindex/types"
	"sbtreeindex/wal"
)

// Standard bucket header layout. Spec §6 gives the bonsai layout byte
// exact and says the standard variant "uses single-i64 child pointers
// and omits the bonsai-specific triple" (§6) without naming its own
// offsets; this lays the same fields out in the same order with plain
// i64 pointers in place of the bonsai (i64,i32,i32) triple, replacing
// free_list_ptr (bonsai-only) with values_free_list_first (spec §3).
const (
	stdFreePointerOff  = 0x00
	stdSizeOff         = 0x04
	stdFlagsOff        = 0x08
	stdValuesFreeOff   = 0x09 // values_free_list_first, i64
	stdLeftSibOff      = 0x11 // i64
	stdRightSibOff     = 0x19 // i64
	stdTreeSizeOff     = 0x21 // i64
	stdKeySerIDOff     = 0x29
	stdValSerIDOff     = 0x2A
	StandardHeaderSize = 0x2B
)

// StandardBucket is one page-per-bucket region: the whole page's data
// slice is the bucket region.
type StandardBucket struct {
	Region []byte
	FileID uint32
	PageID int64

	KeySerializer   serializer.Serializer
	ValueSerializer serializer.Serializer
	Encryptor       Encryptor // optional, standard-only (spec §4.1)

	Logger OpLogger
}

// Encryptor matches cryptocodec.Codec's contract (spec §6: optional
// encryption codec, standard variant only).
type Encryptor interface {
	Encrypt([]byte) ([]byte, error)
	Decrypt([]byte) ([]byte, error)
}

// InitStandard formats a fresh region as an empty bucket: free_pointer
// set to REGION_END (== len(region)), size zeroed, flags set to leaf or
// internal.
func InitStandard(region []byte, keySerID, valSerID int8, leaf bool) {
	binary.LittleEndian.PutUint32(region[stdFreePointerOff:], uint32(len(region)))
	binary.LittleEndian.PutUint32(region[stdSizeOff:], 0)
	var flags types.BucketFlags
	if leaf {
		flags |= types.FlagLeaf
	}
	region[stdFlagsOff] = byte(flags)
	nilPtr := types.NilBucketPointer
	binary.LittleEndian.PutUint64(region[stdValuesFreeOff:], uint64(nilPtr))
	binary.LittleEndian.PutUint64(region[stdLeftSibOff:], uint64(nilPtr))
	binary.LittleEndian.PutUint64(region[stdRightSibOff:], uint64(nilPtr))
	binary.LittleEndian.PutUint64(region[stdTreeSizeOff:], 0)
	region[stdKeySerIDOff] = byte(keySerID)
	region[stdValSerIDOff] = byte(valSerID)
}

func (b *StandardBucket) FreePointer() int32 {
	return int32(binary.LittleEndian.Uint32(b.Region[stdFreePointerOff:]))
}

func (b *StandardBucket) setFreePointer(v int32) {
	binary.LittleEndian.PutUint32(b.Region[stdFreePointerOff:], uint32(v))
}

func (b *StandardBucket) Size() int32 {
	return int32(binary.LittleEndian.Uint32(b.Region[stdSizeOff:]))
}

func (b *StandardBucket) setSize(v int32) {
	binary.LittleEndian.PutUint32(b.Region[stdSizeOff:], uint32(v))
}

func (b *StandardBucket) Flags() types.BucketFlags {
	return types.BucketFlags(b.Region[stdFlagsOff])
}

func (b *StandardBucket) IsLeaf() bool { return b.Flags().IsLeaf() }

func (b *StandardBucket) LeftSibling() types.BucketPointer {
	return types.BucketPointer(binary.LittleEndian.Uint64(b.Region[stdLeftSibOff:]))
}

func (b *StandardBucket) RightSibling() types.BucketPointer {
	return types.BucketPointer(binary.LittleEndian.Uint64(b.Region[stdRightSibOff:]))
}

func (b *StandardBucket) TreeSize() int64 {
	return int64(binary.LittleEndian.Uint64(b.Region[stdTreeSizeOff:]))
}

func (b *StandardBucket) ValuesFreeListFirst() types.BucketPointer {
	return types.BucketPointer(binary.LittleEndian.Uint64(b.Region[stdValuesFreeOff:]))
}

// ResetEmpty reformats this region as a fresh empty bucket, keeping the
// same key/value serializer ids but switching leaf/internal — the move
// a root split makes to convert the root bucket into an internal node
// in place (spec §4.3) without disturbing its identity/pointer. Unlike
// the per-entry mutations, this structural reset is not itself logged
// for undo; it runs as one step of a root split that has already
// allocated and filled the two new children, and when Clear reformats
// the root as an empty leaf.
func (b *StandardBucket) ResetEmpty(leaf bool) {
	keyID := b.Region[stdKeySerIDOff]
	valID := b.Region[stdValSerIDOff]
	InitStandard(b.Region, int8(keyID), int8(valID), leaf)
}

func (b *StandardBucket) logPageOp(kind wal.PageOperationKind, index int, payload []byte, undo func() error) error {
	if b.Logger == nil {
		return nil
	}
	return b.Logger.LogPageOp(wal.PageOperation{
		Kind:    kind,
		FileID:  b.FileID,
		PageID:  b.PageID,
		Index:   index,
		Payload: payload,
	}, undo)
}

// SetLeftSibling overwrites the left sibling pointer, logging the old
// value for undo (spec §4.1 set_left_sibling).
func (b *StandardBucket) SetLeftSibling(p types.BucketPointer) error {
	old := b.LeftSibling()
	binary.LittleEndian.PutUint64(b.Region[stdLeftSibOff:], uint64(p))
	return b.logPageOp(wal.OpSetLeftSibling, 0, encodeI64(int64(old)), func() error {
		binary.LittleEndian.PutUint64(b.Region[stdLeftSibOff:], uint64(old))
		return nil
	})
}

func (b *StandardBucket) SetRightSibling(p types.BucketPointer) error {
	old := b.RightSibling()
	binary.LittleEndian.PutUint64(b.Region[stdRightSibOff:], uint64(p))
	return b.logPageOp(wal.OpSetRightSibling, 0, encodeI64(int64(old)), func() error {
		binary.LittleEndian.PutUint64(b.Region[stdRightSibOff:], uint64(old))
		return nil
	})
}

// SetTreeSize overwrites tree_size (meaningful only at the root, I6).
func (b *StandardBucket) SetTreeSize(n int64) error {
	old := b.TreeSize()
	binary.LittleEndian.PutUint64(b.Region[stdTreeSizeOff:], uint64(n))
	return b.logPageOp(wal.OpSetTreeSize, 0, encodeI64(old), func() error {
		binary.LittleEndian.PutUint64(b.Region[stdTreeSizeOff:], uint64(old))
		return nil
	})
}

func (b *StandardBucket) SetValuesFreeListFirst(p types.BucketPointer) error {
	old := b.ValuesFreeListFirst()
	binary.LittleEndian.PutUint64(b.Region[stdValuesFreeOff:], uint64(p))
	return b.logPageOp(wal.OpSetValueFreeListFirstIndex, 0, encodeI64(int64(old)), func() error {
		binary.LittleEndian.PutUint64(b.Region[stdValuesFreeOff:], uint64(old))
		return nil
	})
}

// rawKeyBytesAt returns the key bytes of the entry at entryOff and the
// number of bytes the key occupies there, applying the optional
// encryption codec (spec §4.1: "the key is stored as
// [encrypted_len:i32][ciphertext] and decrypted on read").
func (b *StandardBucket) rawKeyBytesAt(entryOff int32) ([]byte, int32, error) {
	if b.Encryptor == nil {
		n := b.KeySerializer.ObjectSizeInBuffer(b.Region, entryOff)
		return b.Region[entryOff : entryOff+n], n, nil
	}
	encLen := int32(binary.LittleEndian.Uint32(b.Region[entryOff:]))
	cipher := b.Region[entryOff+4 : entryOff+4+encLen]
	plain, err := b.Encryptor.Decrypt(cipher)
	if err != nil {
		return nil, 0, fmt.Errorf("bucket: decrypt key: %w", err)
	}
	return plain, 4 + encLen, nil
}

func (b *StandardBucket) encodeKey(raw []byte) ([]byte, error) {
	if b.Encryptor == nil {
		return raw, nil
	}
	cipher, err := b.Encryptor.Encrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("bucket: encrypt key: %w", err)
	}
	out := make([]byte, 4+len(cipher))
	binary.LittleEndian.PutUint32(out, uint32(len(cipher)))
	copy(out[4:], cipher)
	return out, nil
}

func encodeI64(v int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf
}

func decodeI64(b []byte) int64 { return int64(binary.LittleEndian.Uint64(b)) }
