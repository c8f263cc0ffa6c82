// Package bucket implements the slotted-page bucket layout from spec
// §3/§4.1/§6: header, slot directory, and entry area sharing one
// fixed-size byte region, for both the standard (page-per-bucket) and
// bonsai (packed sub-page) variants. Grounded in shape on the teacher's
// storage_engine/page package (pin/lock a byte buffer, mutate in place)
// generalized from row-slots to B+-tree entries.
package bucket

import (
	"encoding/binary"
	"fmt"

	"sbtreeindex/types"
	"sbtreeindex/wal"
)

// OpLogger is satisfied by *atomicop.AtomicOperation: every bucket
// mutation appends a before-image page operation plus the in-memory
// undo that reverses it (spec §4.4). A nil logger is valid for tests
// that only care about in-memory bucket semantics.
type OpLogger interface {
	LogPageOp(op wal.PageOperation, undo func() error) error
}

// Find is the canonical ascending lower-bound binary search from spec
// §4.1: cmp(i) must return compare(target, keyAt(i)) — negative when
// the sought key precedes slot i, zero on match, positive when it
// follows. Returns the slot index on an exact match, else
// -(insertion_point+1).
func Find(size int32, cmp func(i int32) int) int32 {
	low, high := int32(0), size-1
	for low <= high {
		mid := int32(uint32(low+high) >> 1) // unsigned midpoint, avoids overflow
		c := cmp(mid)
		switch {
		case c == 0:
			return mid
		case c < 0:
			high = mid - 1
		default:
			low = mid + 1
		}
	}
	return -(low + 1)
}

func readSlot(region []byte, posArrayOffset, i int32) int32 {
	return int32(binary.LittleEndian.Uint32(region[posArrayOffset+i*4:]))
}

func writeSlot(region []byte, posArrayOffset, i, val int32) {
	binary.LittleEndian.PutUint32(region[posArrayOffset+i*4:], uint32(val))
}

// moveData is the in-page primitive spec §4.1 requires for every slot
// shift and entry-area shift: Go's builtin copy is memmove-safe against
// overlap, so it serves directly.
func moveData(region []byte, dst, src, length int32) {
	if length == 0 {
		return
	}
	copy(region[dst:dst+length], region[src:src+length])
}

func checkEntrySize(size int32) error {
	if size > types.MaxEntrySize {
		return fmt.Errorf("%w: entry is %d bytes, max is %d", types.ErrEntryTooLarge, size, types.MaxEntrySize)
	}
	return nil
}
