package bucket

import (
	"encoding/binary"
	"fmt"

	"sbtreeindex/types"
	"sbtreeindex/wal"
)

// BonsaiLeafEntry is the decoded [key][value] pair (spec §4.1: value
// must be fixed length).
type BonsaiLeafEntry struct {
	Key   []byte
	Value []byte
}

// BonsaiInternalEntry is the decoded [left][right][key], where Left and
// Right carry only (page_index, page_offset) — binary_version is
// recovered from the bucket's own BinVersion at read time (spec §4.1).
type BonsaiInternalEntry struct {
	Key         []byte
	Left, Right types.BonsaiPointer
}

const bonsaiChildPairSize = 12 // i64 page_index + i32 page_offset

func (b *BonsaiBucket) entryOffset(i int32) int32 {
	return readSlot(b.Region, BonsaiHeaderSize, i)
}

func (b *BonsaiBucket) Find(cmp func(key []byte) int) int32 {
	size := b.Size()
	return Find(size, func(i int32) int {
		k, err := b.GetKey(i)
		if err != nil {
			panic(err)
		}
		return cmp(k)
	})
}

func (b *BonsaiBucket) GetKey(i int32) ([]byte, error) {
	off := b.entryOffset(i)
	if b.IsLeaf() {
		n := b.KeySerializer.ObjectSizeInBuffer(b.Region, off)
		return b.Region[off : off+n], nil
	}
	keyOff := off + 2*bonsaiChildPairSize
	n := b.KeySerializer.ObjectSizeInBuffer(b.Region, keyOff)
	return b.Region[keyOff : keyOff+n], nil
}

func (b *BonsaiBucket) readChildPair(off int32) types.BonsaiPointer {
	return types.BonsaiPointer{
		PageIndex:     int64(binary.LittleEndian.Uint64(b.Region[off:])),
		PageOffset:    int32(binary.LittleEndian.Uint32(b.Region[off+8:])),
		BinaryVersion: b.BinVersion,
	}
}

func writeChildPair(buf []byte, off int32, p types.BonsaiPointer) {
	binary.LittleEndian.PutUint64(buf[off:], uint64(p.PageIndex))
	binary.LittleEndian.PutUint32(buf[off+8:], uint32(p.PageOffset))
}

func (b *BonsaiBucket) GetLeafEntry(i int32) (BonsaiLeafEntry, error) {
	off := b.entryOffset(i)
	keyLen := b.KeySerializer.ObjectSizeInBuffer(b.Region, off)
	valOff := off + keyLen
	valLen := b.ValueSerializer.FixedLength()
	key := append([]byte(nil), b.Region[off:off+keyLen]...)
	value := append([]byte(nil), b.Region[valOff:valOff+valLen]...)
	return BonsaiLeafEntry{Key: key, Value: value}, nil
}

func (b *BonsaiBucket) GetInternalEntry(i int32) (BonsaiInternalEntry, error) {
	off := b.entryOffset(i)
	left := b.readChildPair(off)
	right := b.readChildPair(off + bonsaiChildPairSize)
	keyOff := off + 2*bonsaiChildPairSize
	keyLen := b.KeySerializer.ObjectSizeInBuffer(b.Region, keyOff)
	key := append([]byte(nil), b.Region[keyOff:keyOff+keyLen]...)
	return BonsaiInternalEntry{Key: key, Left: left, Right: right}, nil
}

func (b *BonsaiBucket) entryByteLen(i int32) int32 {
	off := b.entryOffset(i)
	if b.IsLeaf() {
		keyLen := b.KeySerializer.ObjectSizeInBuffer(b.Region, off)
		return keyLen + b.ValueSerializer.FixedLength()
	}
	keyLen := b.KeySerializer.ObjectSizeInBuffer(b.Region, off+2*bonsaiChildPairSize)
	return 2*bonsaiChildPairSize + keyLen
}

func (b *BonsaiBucket) insertBytes(i int32, entryBytes []byte) (bool, error) {
	if err := checkEntrySize(int32(len(entryBytes))); err != nil {
		return false, err
	}
	size := b.Size()
	fp := b.FreePointer()
	newFP := fp - int32(len(entryBytes))
	posArrayEnd := BonsaiHeaderSize + (size+1)*4
	if newFP < posArrayEnd {
		return false, nil
	}

	copy(b.Region[newFP:fp], entryBytes)
	for k := size; k > i; k-- {
		writeSlot(b.Region, BonsaiHeaderSize, k, readSlot(b.Region, BonsaiHeaderSize, k-1))
	}
	writeSlot(b.Region, BonsaiHeaderSize, i, newFP)

	b.setFreePointer(newFP)
	b.setSize(size + 1)
	return true, nil
}

// AddLeafEntry inserts a (key, fixed-length value) pair at slot i.
func (b *BonsaiBucket) AddLeafEntry(i int32, rawKey, rawValue []byte) (bool, error) {
	if !b.ValueSerializer.IsFixedLength() {
		return false, fmt.Errorf("%w: bonsai requires a fixed-length value serializer", types.ErrStateViolation)
	}
	entry := append(append([]byte(nil), rawKey...), rawValue...)
	ok, err := b.insertBytes(i, entry)
	if err != nil || !ok {
		return ok, err
	}
	if err := b.logPageOp(wal.OpAddEntry, int(i), nil, func() error {
		_, _, uerr := b.removeAt(i)
		return uerr
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (b *BonsaiBucket) AddInternalEntry(i int32, left, right types.BonsaiPointer, rawKey []byte, updateNeighbors bool) (bool, error) {
	buf := make([]byte, 2*bonsaiChildPairSize+len(rawKey))
	writeChildPair(buf, 0, left)
	writeChildPair(buf, bonsaiChildPairSize, right)
	copy(buf[2*bonsaiChildPairSize:], rawKey)

	ok, err := b.insertBytes(i, buf)
	if err != nil || !ok {
		return ok, err
	}

	if updateNeighbors {
		if i > 0 {
			if err := b.patchRightChild(i-1, left); err != nil {
				return false, err
			}
		}
		if i+1 < b.Size() {
			if err := b.patchLeftChild(i+1, right); err != nil {
				return false, err
			}
		}
	}

	if err := b.logPageOp(wal.OpAddEntry, int(i), nil, func() error {
		_, _, uerr := b.removeAt(i)
		return uerr
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (b *BonsaiBucket) patchLeftChild(i int32, left types.BonsaiPointer) error {
	off := b.entryOffset(i)
	old := b.readChildPair(off)
	writeChildPair(b.Region, off, left)
	return b.logPageOp(wal.OpUpdateValue, int(i), encodeTriple(old), func() error {
		writeChildPair(b.Region, off, old)
		return nil
	})
}

func (b *BonsaiBucket) patchRightChild(i int32, right types.BonsaiPointer) error {
	off := b.entryOffset(i) + bonsaiChildPairSize
	old := b.readChildPair(off)
	writeChildPair(b.Region, off, right)
	return b.logPageOp(wal.OpUpdateValue, int(i), encodeTriple(old), func() error {
		writeChildPair(b.Region, off, old)
		return nil
	})
}

func (b *BonsaiBucket) removeAt(i int32) ([]byte, []byte, error) {
	if !b.IsLeaf() {
		return nil, nil, fmt.Errorf("%w: remove called on internal bucket", types.ErrStateViolation)
	}
	entry, err := b.GetLeafEntry(i)
	if err != nil {
		return nil, nil, err
	}

	off := b.entryOffset(i)
	entryLen := b.entryByteLen(i)
	fp := b.FreePointer()
	size := b.Size()

	moveData(b.Region, fp+entryLen, fp, off-fp)
	for k := i; k < size-1; k++ {
		writeSlot(b.Region, BonsaiHeaderSize, k, readSlot(b.Region, BonsaiHeaderSize, k+1))
	}
	for k := int32(0); k < size-1; k++ {
		o := readSlot(b.Region, BonsaiHeaderSize, k)
		if o < off && o >= fp {
			writeSlot(b.Region, BonsaiHeaderSize, k, o+entryLen)
		}
	}

	b.setFreePointer(fp + entryLen)
	b.setSize(size - 1)
	return entry.Key, entry.Value, nil
}

func (b *BonsaiBucket) Remove(i int32) ([]byte, []byte, error) {
	rawKey, rawValue, err := b.removeAt(i)
	if err != nil {
		return nil, nil, err
	}
	if err := b.logPageOp(wal.OpRemove, int(i), nil, func() error {
		saved := b.Logger
		b.Logger = nil
		defer func() { b.Logger = saved }()
		_, aerr := b.AddLeafEntry(i, rawKey, rawValue)
		return aerr
	}); err != nil {
		return nil, nil, err
	}
	return rawKey, rawValue, nil
}

func (b *BonsaiBucket) UpdateValue(i int32, rawValue []byte) ([]byte, error) {
	off := b.entryOffset(i)
	keyLen := b.KeySerializer.ObjectSizeInBuffer(b.Region, off)
	valOff := off + keyLen
	valLen := b.ValueSerializer.FixedLength()
	old := append([]byte(nil), b.Region[valOff:valOff+valLen]...)
	copy(b.Region[valOff:valOff+valLen], rawValue)

	if err := b.logPageOp(wal.OpUpdateValue, int(i), old, func() error {
		copy(b.Region[valOff:valOff+valLen], old)
		return nil
	}); err != nil {
		return nil, err
	}
	return old, nil
}

func (b *BonsaiBucket) Shrink(newSize int32) error {
	size := b.Size()
	if newSize >= size {
		return nil
	}

	type removed struct {
		rawKey, rawValue []byte
		left, right      types.BonsaiPointer
	}
	var dropped []removed
	leaf := b.IsLeaf()
	for i := size - 1; i >= newSize; i-- {
		if leaf {
			e, err := b.GetLeafEntry(i)
			if err != nil {
				return err
			}
			dropped = append(dropped, removed{rawKey: e.Key, rawValue: e.Value})
		} else {
			e, err := b.GetInternalEntry(i)
			if err != nil {
				return err
			}
			dropped = append(dropped, removed{rawKey: e.Key, left: e.Left, right: e.Right})
		}
	}

	keptKeys := make([][]byte, newSize)
	keptVals := make([][]byte, newSize)
	keptLeft := make([]types.BonsaiPointer, newSize)
	keptRight := make([]types.BonsaiPointer, newSize)
	for i := int32(0); i < newSize; i++ {
		if leaf {
			e, err := b.GetLeafEntry(i)
			if err != nil {
				return err
			}
			keptKeys[i], keptVals[i] = e.Key, e.Value
		} else {
			e, err := b.GetInternalEntry(i)
			if err != nil {
				return err
			}
			keptKeys[i], keptLeft[i], keptRight[i] = e.Key, e.Left, e.Right
		}
	}

	keySerID := b.Region[bonKeySerIDOff]
	valSerID := b.Region[bonValSerIDOff]
	saved := b.Logger
	b.Logger = nil
	InitBonsai(b.Region, int8(keySerID), int8(valSerID), leaf)

	for i := int32(0); i < newSize; i++ {
		var ok bool
		var err error
		if leaf {
			ok, err = b.AddLeafEntry(i, keptKeys[i], keptVals[i])
		} else {
			ok, err = b.AddInternalEntry(i, keptLeft[i], keptRight[i], keptKeys[i], false)
		}
		if err != nil {
			b.Logger = saved
			return err
		}
		if !ok {
			b.Logger = saved
			return fmt.Errorf("%w: shrink could not re-pack %d entries", types.ErrStateViolation, newSize)
		}
	}
	b.Logger = saved

	return b.logPageOp(wal.OpShrink, int(newSize), nil, func() error {
		s := b.Logger
		b.Logger = nil
		defer func() { b.Logger = s }()
		for _, d := range dropped {
			var ok bool
			var err error
			if leaf {
				ok, err = b.AddLeafEntry(b.Size(), d.rawKey, d.rawValue)
			} else {
				ok, err = b.AddInternalEntry(b.Size(), d.left, d.right, d.rawKey, false)
			}
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: shrink undo could not restore entry", types.ErrStateViolation)
			}
		}
		return nil
	})
}

func (b *BonsaiBucket) AddAllLeaf(keys, values [][]byte) error {
	if b.Size() != 0 {
		return fmt.Errorf("%w: add_all requires an empty region", types.ErrStateViolation)
	}
	saved := b.Logger
	b.Logger = nil
	for i := range keys {
		ok, err := b.AddLeafEntry(int32(i), keys[i], values[i])
		if err != nil {
			b.Logger = saved
			return err
		}
		if !ok {
			b.Logger = saved
			return fmt.Errorf("%w: add_all overflowed the region", types.ErrRegionFull)
		}
	}
	b.Logger = saved
	return b.logPageOp(wal.OpAddAll, 0, nil, func() error {
		saved := b.Logger
		b.Logger = nil
		defer func() { b.Logger = saved }()
		return b.Shrink(0)
	})
}

func (b *BonsaiBucket) AddAllInternal(keys [][]byte, lefts, rights []types.BonsaiPointer) error {
	if b.Size() != 0 {
		return fmt.Errorf("%w: add_all requires an empty region", types.ErrStateViolation)
	}
	saved := b.Logger
	b.Logger = nil
	for i := range keys {
		ok, err := b.AddInternalEntry(int32(i), lefts[i], rights[i], keys[i], false)
		if err != nil {
			b.Logger = saved
			return err
		}
		if !ok {
			b.Logger = saved
			return fmt.Errorf("%w: add_all overflowed the region", types.ErrRegionFull)
		}
	}
	b.Logger = saved
	return b.logPageOp(wal.OpAddAll, 0, nil, func() error {
		saved := b.Logger
		b.Logger = nil
		defer func() { b.Logger = saved }()
		return b.Shrink(0)
	})
}
