// Package serializer implements the key/value byte serializer contract
// from spec §6: fixed encode/decode primitives the bucket layer calls to
// turn keys and values into the byte strings it stores in entries,
// without needing to know their Go types. Grounded on the teacher's
// storage_engine/serialization.go ValueToBytes/BytesToValue pair, one
// type switch over column type replaced by one Serializer per Go type.
package serializer

import (
	"encoding/binary"
	"fmt"

	"sbtreeindex/types"
)

// Serializer is the collaborator contract spec §6 names. Implementations
// round-trip a Go value to/from a little-endian byte encoding.
type Serializer interface {
	// ID identifies this serializer on disk (key_serializer_id /
	// value_serializer_id in the bucket header).
	ID() int8
	// ObjectSize reports how many bytes obj would serialize to.
	ObjectSize(obj any) int32
	// Serialize writes obj's encoding into buf starting at off, returning
	// the number of bytes written.
	Serialize(obj any, buf []byte, off int32) int32
	// DeserializeFromBuffer decodes one value starting at buf[0].
	DeserializeFromBuffer(buf []byte) (any, error)
	// ObjectSizeInBuffer reports the encoded size of the value starting
	// at buf[pos], without fully decoding it.
	ObjectSizeInBuffer(buf []byte, pos int32) int32
	// IsFixedLength reports whether every encoded value has the same
	// size. Bonsai buckets require this of the value serializer; their
	// keys may be variable length (spec §6).
	IsFixedLength() bool
	// FixedLength is only valid when IsFixedLength() is true.
	FixedLength() int32
}

// Int32Serializer encodes a Go int32 as 4 little-endian bytes.
type Int32Serializer struct{}

func (Int32Serializer) ID() int8                 { return 1 }
func (Int32Serializer) IsFixedLength() bool      { return true }
func (Int32Serializer) FixedLength() int32       { return 4 }
func (Int32Serializer) ObjectSize(any) int32     { return 4 }
func (Int32Serializer) ObjectSizeInBuffer([]byte, int32) int32 { return 4 }

func (Int32Serializer) Serialize(obj any, buf []byte, off int32) int32 {
	v, ok := obj.(int32)
	if !ok {
		panic(fmt.Sprintf("serializer: Int32Serializer given %T", obj))
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(v))
	return 4
}

func (Int32Serializer) DeserializeFromBuffer(buf []byte) (any, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: int32 needs 4 bytes, got %d", types.ErrStateViolation, len(buf))
	}
	return int32(binary.LittleEndian.Uint32(buf[:4])), nil
}

// Int64Serializer encodes a Go int64 as 8 little-endian bytes. Used for
// the fixed 8-byte values in the spec's worked scenarios.
type Int64Serializer struct{}

func (Int64Serializer) ID() int8                 { return 2 }
func (Int64Serializer) IsFixedLength() bool       { return true }
func (Int64Serializer) FixedLength() int32        { return 8 }
func (Int64Serializer) ObjectSize(any) int32      { return 8 }
func (Int64Serializer) ObjectSizeInBuffer([]byte, int32) int32 { return 8 }

func (Int64Serializer) Serialize(obj any, buf []byte, off int32) int32 {
	v, ok := obj.(int64)
	if !ok {
		panic(fmt.Sprintf("serializer: Int64Serializer given %T", obj))
	}
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(v))
	return 8
}

func (Int64Serializer) DeserializeFromBuffer(buf []byte) (any, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("%w: int64 needs 8 bytes, got %d", types.ErrStateViolation, len(buf))
	}
	return int64(binary.LittleEndian.Uint64(buf[:8])), nil
}

// BytesSerializer encodes a []byte as a 4-byte little-endian length
// prefix followed by the raw bytes — variable length, so it cannot serve
// as a bonsai value serializer (spec §6's bonsai is_fixed_length()
// requirement on values rules it out there).
type BytesSerializer struct{}

func (BytesSerializer) ID() int8            { return 3 }
func (BytesSerializer) IsFixedLength() bool  { return false }
func (BytesSerializer) FixedLength() int32   { panic("serializer: BytesSerializer has no fixed length") }

func (BytesSerializer) ObjectSize(obj any) int32 {
	v, ok := obj.([]byte)
	if !ok {
		panic(fmt.Sprintf("serializer: BytesSerializer given %T", obj))
	}
	return 4 + int32(len(v))
}

func (BytesSerializer) Serialize(obj any, buf []byte, off int32) int32 {
	v := obj.([]byte)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(v)))
	copy(buf[off+4:off+4+int32(len(v))], v)
	return 4 + int32(len(v))
}

func (BytesSerializer) DeserializeFromBuffer(buf []byte) (any, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: bytes length prefix needs 4 bytes", types.ErrStateViolation)
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	if uint32(len(buf)) < 4+n {
		return nil, fmt.Errorf("%w: bytes value truncated: want %d have %d", types.ErrStateViolation, 4+n, len(buf))
	}
	out := make([]byte, n)
	copy(out, buf[4:4+n])
	return out, nil
}

func (BytesSerializer) ObjectSizeInBuffer(buf []byte, pos int32) int32 {
	n := binary.LittleEndian.Uint32(buf[pos : pos+4])
	return 4 + int32(n)
}

// Comparator orders two raw, serializer-encoded byte strings the way
// their decoded values compare — binary search (spec §4.1) walks raw
// bytes for moves but always compares through one of these, since the
// on-disk little-endian encoding does not sort the same as its bytes.
type Comparator func(a, b []byte) int

func CompareInt32(a, b []byte) int {
	x := int32(binary.LittleEndian.Uint32(a))
	y := int32(binary.LittleEndian.Uint32(b))
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func CompareInt64(a, b []byte) int {
	x := int64(binary.LittleEndian.Uint64(a))
	y := int64(binary.LittleEndian.Uint64(b))
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// CompareBytes orders raw variable-length keys lexicographically.
func CompareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// ByID resolves a serializer by its on-disk id. Nothing in bucket or
// sbtree calls it: bucket headers store serializer ids, but the
// configured serializers are used on read.
func ByID(id int8) (Serializer, error) {
	switch id {
	case Int32Serializer{}.ID():
		return Int32Serializer{}, nil
	case Int64Serializer{}.ID():
		return Int64Serializer{}, nil
	case BytesSerializer{}.ID():
		return BytesSerializer{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown serializer id %d", types.ErrStateViolation, id)
	}
}
