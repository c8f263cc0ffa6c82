package bucket

import (
	"encoding/binary"
	"fmt"

	"sbtreeindex/types"
	"sbtreeindex/wal"
)

// StandardLeafEntry is the decoded [key][is_link][value] triple (spec
// §4.1). IsLink selects whether Value holds an 8-byte external link or
// a serializer-encoded value; this module never sets IsLink (no
// external value store is in scope), but reads and preserves it.
type StandardLeafEntry struct {
	Key    []byte
	IsLink bool
	Value  []byte
}

// StandardInternalEntry is the decoded [left_child][right_child][key].
type StandardInternalEntry struct {
	Key   []byte
	Left  types.BucketPointer
	Right types.BucketPointer
}

func (b *StandardBucket) entryOffset(i int32) int32 {
	return readSlot(b.Region, StandardHeaderSize, i)
}

// Find runs the shared lower-bound search against this bucket's keys.
func (b *StandardBucket) Find(cmp func(key []byte) int) int32 {
	size := b.Size()
	return Find(size, func(i int32) int {
		k, err := b.GetKey(i)
		if err != nil {
			panic(err)
		}
		return cmp(k)
	})
}

// GetKey decodes the key at slot i without touching the value, so
// binary search never pays for value decode.
func (b *StandardBucket) GetKey(i int32) ([]byte, error) {
	off := b.entryOffset(i)
	if b.IsLeaf() {
		key, _, err := b.rawKeyBytesAt(off)
		return key, err
	}
	key, _, err := b.rawKeyBytesAt(off + 16) // skip left_child(8)+right_child(8)
	return key, err
}

// GetLeafEntry decodes the full leaf entry at slot i.
func (b *StandardBucket) GetLeafEntry(i int32) (StandardLeafEntry, error) {
	off := b.entryOffset(i)
	key, n, err := b.rawKeyBytesAt(off)
	if err != nil {
		return StandardLeafEntry{}, err
	}
	isLink := b.Region[off+n] != 0
	valOff := off + n + 1
	var valLen int32
	if isLink {
		valLen = 8
	} else {
		valLen = b.ValueSerializer.ObjectSizeInBuffer(b.Region, valOff)
	}
	value := make([]byte, valLen)
	copy(value, b.Region[valOff:valOff+valLen])
	return StandardLeafEntry{Key: key, IsLink: isLink, Value: value}, nil
}

func (b *StandardBucket) GetInternalEntry(i int32) (StandardInternalEntry, error) {
	off := b.entryOffset(i)
	left := types.BucketPointer(binary.LittleEndian.Uint64(b.Region[off:]))
	right := types.BucketPointer(binary.LittleEndian.Uint64(b.Region[off+8:]))
	key, _, err := b.rawKeyBytesAt(off + 16)
	if err != nil {
		return StandardInternalEntry{}, err
	}
	return StandardInternalEntry{Key: key, Left: left, Right: right}, nil
}

func encodeStandardLeaf(encKey []byte, isLink bool, value []byte) []byte {
	buf := make([]byte, len(encKey)+1+len(value))
	n := copy(buf, encKey)
	if isLink {
		buf[n] = 1
	}
	n++
	copy(buf[n:], value)
	return buf
}

func encodeStandardInternal(left, right types.BucketPointer, encKey []byte) []byte {
	buf := make([]byte, 16+len(encKey))
	binary.LittleEndian.PutUint64(buf[0:], uint64(left))
	binary.LittleEndian.PutUint64(buf[8:], uint64(right))
	copy(buf[16:], encKey)
	return buf
}

// insertBytes grows the entry area downward by len(entryBytes), shifts
// slots [i..size) up by one, and writes the new slot's offset — the
// shared mechanics behind add_leaf_entry and add_entry (spec §4.1,
// "shifts slots [i..) right").
func (b *StandardBucket) insertBytes(i int32, entryBytes []byte) (bool, error) {
	if err := checkEntrySize(int32(len(entryBytes))); err != nil {
		return false, err
	}
	size := b.Size()
	fp := b.FreePointer()
	newFP := fp - int32(len(entryBytes))
	posArrayEnd := StandardHeaderSize + (size+1)*4
	if newFP < posArrayEnd {
		return false, nil // REGION_FULL, transient — caller triggers split
	}

	copy(b.Region[newFP:fp], entryBytes)

	// shift slot directory entries [i, size) up by one slot
	for k := size; k > i; k-- {
		writeSlot(b.Region, StandardHeaderSize, k, readSlot(b.Region, StandardHeaderSize, k-1))
	}
	writeSlot(b.Region, StandardHeaderSize, i, newFP)

	b.setFreePointer(newFP)
	b.setSize(size + 1)
	return true, nil
}

// AddLeafEntry inserts a (key, value) pair at slot i.
func (b *StandardBucket) AddLeafEntry(i int32, rawKey, rawValue []byte) (bool, error) {
	encKey, err := b.encodeKey(rawKey)
	if err != nil {
		return false, err
	}
	entry := encodeStandardLeaf(encKey, false, rawValue)
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

// AddInternalEntry inserts (left, right, key) at slot i, optionally
// patching neighbouring entries' child pointers to agree at the new
// boundary (invariant I4).
func (b *StandardBucket) AddInternalEntry(i int32, left, right types.BucketPointer, rawKey []byte, updateNeighbors bool) (bool, error) {
	encKey, err := b.encodeKey(rawKey)
	if err != nil {
		return false, err
	}
	entry := encodeStandardInternal(left, right, encKey)
	ok, err := b.insertBytes(i, entry)
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

func (b *StandardBucket) patchLeftChild(i int32, left types.BucketPointer) error {
	off := b.entryOffset(i)
	old := binary.LittleEndian.Uint64(b.Region[off:])
	binary.LittleEndian.PutUint64(b.Region[off:], uint64(left))
	return b.logPageOp(wal.OpUpdateValue, int(i), encodeI64(int64(old)), func() error {
		binary.LittleEndian.PutUint64(b.Region[off:], old)
		return nil
	})
}

func (b *StandardBucket) patchRightChild(i int32, right types.BucketPointer) error {
	off := b.entryOffset(i)
	old := binary.LittleEndian.Uint64(b.Region[off+8:])
	binary.LittleEndian.PutUint64(b.Region[off+8:], uint64(right))
	return b.logPageOp(wal.OpUpdateValue, int(i), encodeI64(int64(old)), func() error {
		binary.LittleEndian.PutUint64(b.Region[off+8:], old)
		return nil
	})
}

// removeAt is the unlogged mechanics shared by Remove and its own
// rollback undo: shift the removed entry's bytes out of the entry area
// and compact every slot offset below it.
func (b *StandardBucket) removeAt(i int32) ([]byte, []byte, error) {
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

	// move the entry bytes between free_pointer and this entry up by
	// entryLen, toward REGION_END, to close the gap
	moveData(b.Region, fp+entryLen, fp, off-fp)
	for k := i; k < size-1; k++ {
		writeSlot(b.Region, StandardHeaderSize, k, readSlot(b.Region, StandardHeaderSize, k+1))
	}
	// offsets of entries that lived below `off` (i.e. allocated after
	// this one, so their bytes sit at lower addresses) also shift
	for k := int32(0); k < size-1; k++ {
		o := readSlot(b.Region, StandardHeaderSize, k)
		if o < off && o >= fp {
			writeSlot(b.Region, StandardHeaderSize, k, o+entryLen)
		}
	}

	b.setFreePointer(fp + entryLen)
	b.setSize(size - 1)
	return entry.Key, entry.Value, nil
}

func (b *StandardBucket) entryByteLen(i int32) int32 {
	off := b.entryOffset(i)
	if b.IsLeaf() {
		_, n, _ := b.rawKeyBytesAt(off)
		var valLen int32
		isLink := b.Region[off+n] != 0
		if isLink {
			valLen = 8
		} else {
			valLen = b.ValueSerializer.ObjectSizeInBuffer(b.Region, off+n+1)
		}
		return n + 1 + valLen
	}
	_, n, _ := b.rawKeyBytesAt(off + 16)
	return 16 + n
}

// Remove deletes the leaf entry at slot i and logs its raw image for
// undo.
func (b *StandardBucket) Remove(i int32) ([]byte, []byte, error) {
	entry, err := b.GetLeafEntry(i)
	if err != nil {
		return nil, nil, err
	}
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
	_ = entry
	return rawKey, rawValue, nil
}

// UpdateValue overwrites the value at slot i in place, assuming the new
// value is the same length as the old one (spec §4.1 update_value).
func (b *StandardBucket) UpdateValue(i int32, rawValue []byte) ([]byte, error) {
	off := b.entryOffset(i)
	_, n, err := b.rawKeyBytesAt(off)
	if err != nil {
		return nil, err
	}
	isLink := b.Region[off+n] != 0
	valOff := off + n + 1
	oldLen := b.ValueSerializer.ObjectSizeInBuffer(b.Region, valOff)
	if isLink {
		oldLen = 8
	}
	old := make([]byte, oldLen)
	copy(old, b.Region[valOff:valOff+oldLen])

	copy(b.Region[valOff:valOff+int32(len(rawValue))], rawValue)

	if err := b.logPageOp(wal.OpUpdateValue, int(i), old, func() error {
		copy(b.Region[valOff:valOff+oldLen], old)
		return nil
	}); err != nil {
		return nil, err
	}
	return old, nil
}

// Shrink keeps only the first newSize entries, compacting the region.
func (b *StandardBucket) Shrink(newSize int32) error {
	size := b.Size()
	if newSize >= size {
		return nil
	}

	type removed struct {
		rawKey, rawValue []byte
		left, right      types.BucketPointer
	}
	var dropped []removed
	for i := size - 1; i >= newSize; i-- {
		if b.IsLeaf() {
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

	// Rebuild the region from the kept raw entries on a freshly reset
	// header rather than shifting the entry area by hand — shrink only
	// runs on a split-away half, so the extra copies are not hot path.
	keptKeys := make([][]byte, newSize)
	keptVals := make([][]byte, newSize)
	keptLeft := make([]types.BucketPointer, newSize)
	keptRight := make([]types.BucketPointer, newSize)
	for i := int32(0); i < newSize; i++ {
		if b.IsLeaf() {
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

	leaf := b.IsLeaf()
	keySerID := b.Region[stdKeySerIDOff]
	valSerID := b.Region[stdValSerIDOff]

	// Rebuilding logs its own AddEntry page operations per entry; shrink
	// should log exactly one Shrink record instead, so mute the logger
	// for the rebuild and restore it before logging the shrink itself.
	savedLogger := b.Logger
	b.Logger = nil
	InitStandard(b.Region, int8(keySerID), int8(valSerID), leaf)

	for i := int32(0); i < newSize; i++ {
		var ok bool
		var err error
		if leaf {
			ok, err = b.AddLeafEntry(i, keptKeys[i], keptVals[i])
		} else {
			ok, err = b.AddInternalEntry(i, keptLeft[i], keptRight[i], keptKeys[i], false)
		}
		if err != nil {
			b.Logger = savedLogger
			return err
		}
		if !ok {
			b.Logger = savedLogger
			return fmt.Errorf("%w: shrink could not re-pack %d entries", types.ErrStateViolation, newSize)
		}
	}
	b.Logger = savedLogger

	return b.logPageOp(wal.OpShrink, int(newSize), nil, func() error {
		saved := b.Logger
		b.Logger = nil
		defer func() { b.Logger = saved }()
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

// AddAllLeaf bulk-appends leaf entries into an empty region — used by
// split to fill a freshly allocated bucket in one logged step rather
// than one AddEntry record per entry.
func (b *StandardBucket) AddAllLeaf(keys, values [][]byte) error {
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

func (b *StandardBucket) AddAllInternal(keys [][]byte, lefts, rights []types.BucketPointer) error {
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
