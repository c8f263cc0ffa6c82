package sbtree

import (
	"fmt"

	"sbtreeindex/atomicop"
	"sbtreeindex/serializer"
	"sbtreeindex/types"
	"sbtreeindex/wal"
)

// opsBinder lets Tree hand each freshly-started atomic operation to the
// concrete Store so the bucket views it opens log through it, without
// Store[P] itself depending on atomicop.
type opsBinder interface {
	bindOps(*atomicop.AtomicOperation)
}

// maxSplitRetries bounds Put's search-insert-split loop. A correctly
// functioning split always frees enough room for one more entry at the
// level it ran on, so this only ever fires on a logic defect — never a
// legitimate workload — and exists as a backstop against looping forever.
const maxSplitRetries = 64

// Tree is the generic B+-tree engine from spec §4.3, parameterized over
// the pointer type so one implementation drives both the standard and
// bonsai bucket variants. Grounded in control flow on the teacher's
// storage_engine access pattern (open, mutate, release, one mutex per
// exclusive phase), generalized from row slots to tree entries.
type Tree[P Ptr] struct {
	Store   Store[P]
	Ops     *atomicop.Manager
	FileID  uint32
	Compare serializer.Comparator
}

func (t *Tree[P]) withWrite(fn func(op *atomicop.AtomicOperation) error) error {
	t.Ops.AcquireWriteLock(t.FileID)
	defer t.Ops.ReleaseWriteLock(t.FileID)

	binder, bindable := t.Store.(opsBinder)
	return t.Ops.Run(t.FileID, true, func(op *atomicop.AtomicOperation) error {
		if bindable {
			binder.bindOps(op)
			defer binder.bindOps(nil)
		}
		return fn(op)
	})
}

func (t *Tree[P]) withRead(fn func() error) error {
	t.Ops.AcquireReadLock(t.FileID)
	defer t.Ops.ReleaseReadLock(t.FileID)
	return fn()
}

// findBucket performs the downward search from spec §4.3: descend from
// root following the exact-match-goes-right / insertion-point rule,
// recording every bucket visited so a subsequent split can walk back up.
func (t *Tree[P]) findBucket(key []byte) (*BucketSearchResult[P], error) {
	cmp := func(k []byte) int { return t.Compare(key, k) }

	var path []P
	cur := t.Store.Root()
	for {
		path = append(path, cur)
		b, err := t.Store.Open(cur)
		if err != nil {
			return nil, err
		}
		idx := b.Find(cmp)

		if b.IsLeaf() {
			if err := t.Store.Release(cur, false); err != nil {
				return nil, err
			}
			return &BucketSearchResult[P]{ItemIndex: idx, Path: path}, nil
		}

		size := b.Size()
		var child P
		if idx >= 0 {
			e, err := b.GetInternalEntry(idx)
			if err != nil {
				t.Store.Release(cur, false)
				return nil, err
			}
			child = e.Right
		} else {
			ip := -idx - 1
			if ip >= size {
				e, err := b.GetInternalEntry(size - 1)
				if err != nil {
					t.Store.Release(cur, false)
					return nil, err
				}
				child = e.Right
			} else {
				e, err := b.GetInternalEntry(ip)
				if err != nil {
					t.Store.Release(cur, false)
					return nil, err
				}
				child = e.Left
			}
		}
		if err := t.Store.Release(cur, false); err != nil {
			return nil, err
		}
		cur = child
	}
}

// Get performs a point lookup, absent results reported as (nil, false,
// nil) rather than an error (spec §7 NOT_FOUND).
func (t *Tree[P]) Get(key []byte) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := t.withRead(func() error {
		res, err := t.findBucket(key)
		if err != nil {
			return err
		}
		if res.ItemIndex < 0 {
			return nil
		}
		leafPtr := res.Leaf()
		b, err := t.Store.Open(leafPtr)
		if err != nil {
			return err
		}
		e, err := b.GetLeafEntry(res.ItemIndex)
		if err != nil {
			t.Store.Release(leafPtr, false)
			return err
		}
		if err := t.Store.Release(leafPtr, false); err != nil {
			return err
		}
		value, found = e.Value, true
		return nil
	})
	return value, found, err
}

func (t *Tree[P]) bumpRootTreeSize(delta int64) error {
	root := t.Store.Root()
	b, err := t.Store.Open(root)
	if err != nil {
		return err
	}
	if err := b.SetTreeSize(b.TreeSize() + delta); err != nil {
		t.Store.Release(root, false)
		return err
	}
	return t.Store.Release(root, true)
}

// Put inserts or updates a key (spec §4.3 put): an existing key is
// updated in place and logged with its previous value; a new key is
// inserted, splitting buckets up the path as many times as needed when
// a region reports REGION_FULL, then retried against the reshaped tree.
func (t *Tree[P]) Put(key, value []byte) error {
	return t.withWrite(func(op *atomicop.AtomicOperation) error {
		for attempt := 0; attempt < maxSplitRetries; attempt++ {
			res, err := t.findBucket(key)
			if err != nil {
				return err
			}
			leafPtr := res.Leaf()
			b, err := t.Store.Open(leafPtr)
			if err != nil {
				return err
			}

			if res.ItemIndex >= 0 {
				old, err := b.UpdateValue(res.ItemIndex, value)
				if err != nil {
					t.Store.Release(leafPtr, false)
					return err
				}
				if err := t.Store.Release(leafPtr, true); err != nil {
					return err
				}
				op.SetComponentOperation(wal.ComponentOperation{
					Kind: wal.ComponentPut, FileID: t.FileID, RawKey: key, RawValue: value, RawPrev: old,
				})
				return nil
			}

			insertAt := -res.ItemIndex - 1
			ok, err := b.AddLeafEntry(insertAt, key, value)
			if err != nil {
				t.Store.Release(leafPtr, false)
				return err
			}
			if ok {
				if err := t.Store.Release(leafPtr, true); err != nil {
					return err
				}
				if err := t.bumpRootTreeSize(1); err != nil {
					return err
				}
				op.SetComponentOperation(wal.ComponentOperation{
					Kind: wal.ComponentPut, FileID: t.FileID, RawKey: key, RawValue: value,
				})
				return nil
			}

			if err := t.Store.Release(leafPtr, false); err != nil {
				return err
			}
			if _, _, _, err := t.splitLevel(res.Path, len(res.Path)-1); err != nil {
				return err
			}
			// loop: re-search against the now-split tree and retry the insert
		}
		return fmt.Errorf("%w: put did not converge after %d splits", types.ErrStateViolation, maxSplitRetries)
	})
}

// splitLevel splits the full bucket at path[level] and returns the
// separator key promoted upward together with the two resulting
// children. At level 0 (the root) this is splitRoot: the root bucket's
// identity never changes, it is converted in place into an internal
// node holding the one promoted entry, so the two "children" returned
// are brand new buckets, not the root itself.
func (t *Tree[P]) splitLevel(path []P, level int) (sepKey []byte, left, right P, err error) {
	if level == 0 {
		return t.splitRoot(path[0])
	}

	ptr := path[level]
	b, err := t.Store.Open(ptr)
	if err != nil {
		return nil, left, right, err
	}
	size := b.Size()
	mid := size / 2
	leaf := b.IsLeaf()

	if leaf {
		keys := make([][]byte, size-mid)
		vals := make([][]byte, size-mid)
		for i := mid; i < size; i++ {
			e, gerr := b.GetLeafEntry(i)
			if gerr != nil {
				t.Store.Release(ptr, false)
				return nil, left, right, gerr
			}
			keys[i-mid], vals[i-mid] = e.Key, e.Value
		}
		sepKey = keys[0]

		newPtr, newB, aerr := t.Store.Allocate(true)
		if aerr != nil {
			t.Store.Release(ptr, false)
			return nil, left, right, aerr
		}
		if aerr := newB.AddAllLeaf(keys, vals); aerr != nil {
			t.Store.Release(ptr, false)
			t.Store.Release(newPtr, false)
			return nil, left, right, aerr
		}

		oldRight := b.RightSibling()
		if serr := newB.SetRightSibling(oldRight); serr != nil {
			return nil, left, right, serr
		}
		if serr := newB.SetLeftSibling(ptr); serr != nil {
			return nil, left, right, serr
		}
		if !oldRight.IsNil() {
			rb, oerr := t.Store.Open(oldRight)
			if oerr != nil {
				return nil, left, right, oerr
			}
			if serr := rb.SetLeftSibling(newPtr); serr != nil {
				t.Store.Release(oldRight, false)
				return nil, left, right, serr
			}
			if rerr := t.Store.Release(oldRight, true); rerr != nil {
				return nil, left, right, rerr
			}
		}
		if serr := b.SetRightSibling(newPtr); serr != nil {
			return nil, left, right, serr
		}
		if serr := b.Shrink(mid); serr != nil {
			t.Store.Release(ptr, false)
			return nil, left, right, serr
		}

		if rerr := t.Store.Release(ptr, true); rerr != nil {
			return nil, left, right, rerr
		}
		if rerr := t.Store.Release(newPtr, true); rerr != nil {
			return nil, left, right, rerr
		}
		left, right = ptr, newPtr
	} else {
		midEntry, gerr := b.GetInternalEntry(mid)
		if gerr != nil {
			t.Store.Release(ptr, false)
			return nil, left, right, gerr
		}
		sepKey = midEntry.Key

		keys := make([][]byte, 0, size-mid-1)
		lefts := make([]P, 0, size-mid-1)
		rights := make([]P, 0, size-mid-1)
		for i := mid + 1; i < size; i++ {
			e, gerr := b.GetInternalEntry(i)
			if gerr != nil {
				t.Store.Release(ptr, false)
				return nil, left, right, gerr
			}
			keys = append(keys, e.Key)
			lefts = append(lefts, e.Left)
			rights = append(rights, e.Right)
		}

		newPtr, newB, aerr := t.Store.Allocate(false)
		if aerr != nil {
			t.Store.Release(ptr, false)
			return nil, left, right, aerr
		}
		if aerr := newB.AddAllInternal(keys, lefts, rights); aerr != nil {
			t.Store.Release(ptr, false)
			t.Store.Release(newPtr, false)
			return nil, left, right, aerr
		}
		if serr := b.Shrink(mid); serr != nil {
			t.Store.Release(ptr, false)
			return nil, left, right, serr
		}

		if rerr := t.Store.Release(ptr, true); rerr != nil {
			return nil, left, right, rerr
		}
		if rerr := t.Store.Release(newPtr, true); rerr != nil {
			return nil, left, right, rerr
		}
		left, right = ptr, newPtr
	}

	if ierr := t.insertIntoLevel(path, level-1, sepKey, left, right); ierr != nil {
		return nil, left, right, ierr
	}
	return sepKey, left, right, nil
}

// splitRoot is the root-split special case from spec §4.3: tree_size is
// preserved, two fresh buckets take over the root's former entries, and
// the root bucket is reinitialized in place as an internal node with
// exactly the one promoted entry — its pointer/identity never changes,
// so no caller above it ever needs to learn about a "new root".
func (t *Tree[P]) splitRoot(rootPtr P) (sepKey []byte, left, right P, err error) {
	b, err := t.Store.Open(rootPtr)
	if err != nil {
		return nil, left, right, err
	}
	size := b.Size()
	mid := size / 2
	leaf := b.IsLeaf()
	treeSize := b.TreeSize()

	leftPtr, leftB, err := t.Store.Allocate(leaf)
	if err != nil {
		t.Store.Release(rootPtr, false)
		return nil, left, right, err
	}
	rightPtr, rightB, err := t.Store.Allocate(leaf)
	if err != nil {
		t.Store.Release(rootPtr, false)
		t.Store.Release(leftPtr, false)
		return nil, left, right, err
	}

	if leaf {
		lk := make([][]byte, mid)
		lv := make([][]byte, mid)
		for i := int32(0); i < mid; i++ {
			e, gerr := b.GetLeafEntry(i)
			if gerr != nil {
				return nil, left, right, gerr
			}
			lk[i], lv[i] = e.Key, e.Value
		}
		rk := make([][]byte, size-mid)
		rv := make([][]byte, size-mid)
		for i := mid; i < size; i++ {
			e, gerr := b.GetLeafEntry(i)
			if gerr != nil {
				return nil, left, right, gerr
			}
			rk[i-mid], rv[i-mid] = e.Key, e.Value
		}
		if aerr := leftB.AddAllLeaf(lk, lv); aerr != nil {
			return nil, left, right, aerr
		}
		if aerr := rightB.AddAllLeaf(rk, rv); aerr != nil {
			return nil, left, right, aerr
		}
		if serr := leftB.SetRightSibling(rightPtr); serr != nil {
			return nil, left, right, serr
		}
		if serr := rightB.SetLeftSibling(leftPtr); serr != nil {
			return nil, left, right, serr
		}
		sepKey = rk[0]
	} else {
		lk := [][]byte{}
		ll := []P{}
		lr := []P{}
		for i := int32(0); i < mid; i++ {
			e, gerr := b.GetInternalEntry(i)
			if gerr != nil {
				return nil, left, right, gerr
			}
			lk = append(lk, e.Key)
			ll = append(ll, e.Left)
			lr = append(lr, e.Right)
		}
		midEntry, gerr := b.GetInternalEntry(mid)
		if gerr != nil {
			return nil, left, right, gerr
		}
		sepKey = midEntry.Key

		rk := [][]byte{}
		rl := []P{}
		rr := []P{}
		for i := mid + 1; i < size; i++ {
			e, gerr := b.GetInternalEntry(i)
			if gerr != nil {
				return nil, left, right, gerr
			}
			rk = append(rk, e.Key)
			rl = append(rl, e.Left)
			rr = append(rr, e.Right)
		}
		if aerr := leftB.AddAllInternal(lk, ll, lr); aerr != nil {
			return nil, left, right, aerr
		}
		if aerr := rightB.AddAllInternal(rk, rl, rr); aerr != nil {
			return nil, left, right, aerr
		}
	}

	if rerr := t.Store.Release(rootPtr, false); rerr != nil {
		return nil, left, right, rerr
	}
	if rerr := t.Store.Release(leftPtr, true); rerr != nil {
		return nil, left, right, rerr
	}
	if rerr := t.Store.Release(rightPtr, true); rerr != nil {
		return nil, left, right, rerr
	}

	rb, err := t.Store.Open(rootPtr)
	if err != nil {
		return nil, left, right, err
	}
	rb.ResetEmpty(false)
	if ok, aerr := rb.AddInternalEntry(0, leftPtr, rightPtr, sepKey, false); aerr != nil {
		t.Store.Release(rootPtr, false)
		return nil, left, right, aerr
	} else if !ok {
		t.Store.Release(rootPtr, false)
		return nil, left, right, fmt.Errorf("%w: freshly reset root rejected its one entry", types.ErrStateViolation)
	}
	if serr := rb.SetTreeSize(treeSize); serr != nil {
		t.Store.Release(rootPtr, false)
		return nil, left, right, serr
	}
	if rerr := t.Store.Release(rootPtr, true); rerr != nil {
		return nil, left, right, rerr
	}
	return sepKey, leftPtr, rightPtr, nil
}

// insertIntoLevel inserts a freshly-promoted (key, left, right) separator
// into path[level], splitting that bucket first (and recursing upward)
// if it has no room.
func (t *Tree[P]) insertIntoLevel(path []P, level int, key []byte, left, right P) error {
	if level < 0 {
		return fmt.Errorf("%w: split propagated past the root", types.ErrStateViolation)
	}
	ptr := path[level]
	if ok, err := t.insertSeparatorInto(ptr, key, left, right); err != nil {
		return err
	} else if ok {
		return nil
	}

	sepKey, newLeft, newRight, err := t.splitLevel(path, level)
	if err != nil {
		return err
	}
	target := newLeft
	if t.Compare(key, sepKey) >= 0 {
		target = newRight
	}
	if ok, err := t.insertSeparatorInto(target, key, left, right); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: freshly split internal bucket still rejected its entry", types.ErrStateViolation)
	}
	return nil
}

func (t *Tree[P]) insertSeparatorInto(ptr P, key []byte, left, right P) (bool, error) {
	b, err := t.Store.Open(ptr)
	if err != nil {
		return false, err
	}
	idx := b.Find(func(k []byte) int { return t.Compare(key, k) })
	insertAt := idx
	if idx < 0 {
		insertAt = -idx - 1
	}
	ok, err := b.AddInternalEntry(insertAt, left, right, key, true)
	if err != nil {
		t.Store.Release(ptr, false)
		return false, err
	}
	if !ok {
		if err := t.Store.Release(ptr, false); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, t.Store.Release(ptr, true)
}

// Remove deletes a key (spec §4.3 remove): absent keys report
// (false, nil), present keys are removed from their leaf, tree_size is
// decremented, and the raw removed entry is logged for undo/replay.
func (t *Tree[P]) Remove(key []byte) (bool, error) {
	var removed bool
	err := t.withWrite(func(op *atomicop.AtomicOperation) error {
		res, err := t.findBucket(key)
		if err != nil {
			return err
		}
		if res.ItemIndex < 0 {
			return nil
		}
		leafPtr := res.Leaf()
		b, err := t.Store.Open(leafPtr)
		if err != nil {
			return err
		}
		rawKey, rawValue, err := b.Remove(res.ItemIndex)
		if err != nil {
			t.Store.Release(leafPtr, false)
			return err
		}
		if err := t.Store.Release(leafPtr, true); err != nil {
			return err
		}
		if err := t.bumpRootTreeSize(-1); err != nil {
			return err
		}
		op.SetComponentOperation(wal.ComponentOperation{
			Kind: wal.ComponentRemove, FileID: t.FileID, RawKey: rawKey, RawValue: rawValue,
		})
		removed = true
		return nil
	})
	return removed, err
}

// Size reports the root's tree_size (meaningful only there, I6/I8).
func (t *Tree[P]) Size() (int64, error) {
	var n int64
	err := t.withRead(func() error {
		root := t.Store.Root()
		b, err := t.Store.Open(root)
		if err != nil {
			return err
		}
		n = b.TreeSize()
		return t.Store.Release(root, false)
	})
	return n, err
}

// collectAll walks every bucket in the tree breadth-first, including the
// root only when includeRoot is set: false for Clear (which keeps the
// root), true for Delete (which recycles it too).
func (t *Tree[P]) collectAll(includeRoot bool) ([]P, error) {
	var all []P
	root := t.Store.Root()
	queue := []P{root}
	for len(queue) > 0 {
		ptr := queue[0]
		queue = queue[1:]
		b, err := t.Store.Open(ptr)
		if err != nil {
			return nil, err
		}
		if !b.IsLeaf() {
			size := b.Size()
			for i := int32(0); i < size; i++ {
				e, err := b.GetInternalEntry(i)
				if err != nil {
					t.Store.Release(ptr, false)
					return nil, err
				}
				if i == 0 {
					queue = append(queue, e.Left)
				}
				queue = append(queue, e.Right)
			}
		}
		if err := t.Store.Release(ptr, false); err != nil {
			return nil, err
		}
		if ptr != root || includeRoot {
			all = append(all, ptr)
		}
	}
	return all, nil
}

// Clear recycles every bucket except the root, then reinitializes the
// root in place as an empty leaf with tree_size reset to 0 (spec §4.3).
func (t *Tree[P]) Clear() error {
	return t.withWrite(func(op *atomicop.AtomicOperation) error {
		victims, err := t.collectAll(false)
		if err != nil {
			return err
		}
		if err := t.Store.Recycle(victims); err != nil {
			return err
		}
		root := t.Store.Root()
		b, err := t.Store.Open(root)
		if err != nil {
			return err
		}
		b.ResetEmpty(true)
		if err := t.Store.Release(root, true); err != nil {
			return err
		}
		op.SetComponentOperation(wal.ComponentOperation{Kind: wal.ComponentRemove, FileID: t.FileID})
		return nil
	})
}

// Delete recycles the entire tree, root included.
func (t *Tree[P]) Delete() error {
	return t.withWrite(func(op *atomicop.AtomicOperation) error {
		victims, err := t.collectAll(true)
		if err != nil {
			return err
		}
		if err := t.Store.Recycle(victims); err != nil {
			return err
		}
		op.SetComponentOperation(wal.ComponentOperation{Kind: wal.ComponentRemove, FileID: t.FileID})
		return nil
	})
}

// firstLeaf/lastLeaf descend along the leftmost/rightmost child at every
// level (spec §4.3 first_key/last_key) and return that outermost leaf
// even when it is empty; FirstKey and LastKey then follow the leaf
// sibling links past empty leaves, rather than the sentinel-key
// reimplementation the original used (see DESIGN.md Open Questions).
func (t *Tree[P]) firstLeaf() (P, error) {
	var zero P
	cur := t.Store.Root()
	for {
		b, err := t.Store.Open(cur)
		if err != nil {
			return zero, err
		}
		if b.IsLeaf() {
			t.Store.Release(cur, false)
			return cur, nil
		}
		e, err := b.GetInternalEntry(0)
		if err != nil {
			t.Store.Release(cur, false)
			return zero, err
		}
		t.Store.Release(cur, false)
		cur = e.Left
	}
}

func (t *Tree[P]) lastLeaf() (P, error) {
	var zero P
	cur := t.Store.Root()
	for {
		b, err := t.Store.Open(cur)
		if err != nil {
			return zero, err
		}
		if b.IsLeaf() {
			t.Store.Release(cur, false)
			return cur, nil
		}
		e, err := b.GetInternalEntry(b.Size() - 1)
		if err != nil {
			t.Store.Release(cur, false)
			return zero, err
		}
		t.Store.Release(cur, false)
		cur = e.Right
	}
}

// FirstKey returns the smallest key in the tree.
func (t *Tree[P]) FirstKey() ([]byte, bool, error) {
	var key []byte
	var ok bool
	err := t.withRead(func() error {
		leaf, err := t.firstLeaf()
		if err != nil {
			return err
		}
		b, err := t.Store.Open(leaf)
		if err != nil {
			return err
		}
		// Buckets never merge, so the leftmost leaf can be empty while
		// leaves to its right still hold keys.
		for b.Size() == 0 {
			next := b.RightSibling()
			if err := t.Store.Release(leaf, false); err != nil {
				return err
			}
			if next.IsNil() {
				return nil
			}
			leaf = next
			if b, err = t.Store.Open(leaf); err != nil {
				return err
			}
		}
		defer t.Store.Release(leaf, false)
		e, err := b.GetLeafEntry(0)
		if err != nil {
			return err
		}
		key, ok = e.Key, true
		return nil
	})
	return key, ok, err
}

// LastKey returns the largest key in the tree.
func (t *Tree[P]) LastKey() ([]byte, bool, error) {
	var key []byte
	var ok bool
	err := t.withRead(func() error {
		leaf, err := t.lastLeaf()
		if err != nil {
			return err
		}
		b, err := t.Store.Open(leaf)
		if err != nil {
			return err
		}
		// The rightmost leaf can be empty while leaves to its left still
		// hold keys.
		size := b.Size()
		for size == 0 {
			next := b.LeftSibling()
			if err := t.Store.Release(leaf, false); err != nil {
				return err
			}
			if next.IsNil() {
				return nil
			}
			leaf = next
			if b, err = t.Store.Open(leaf); err != nil {
				return err
			}
			size = b.Size()
		}
		defer t.Store.Release(leaf, false)
		e, err := b.GetLeafEntry(size - 1)
		if err != nil {
			return err
		}
		key, ok = e.Key, true
		return nil
	})
	return key, ok, err
}

// ScanMinor visits every entry with key <= toKey (or < toKey when
// !inclusive) starting from the first leaf, walking right_sibling links.
func (t *Tree[P]) ScanMinor(toKey []byte, inclusive bool) ([]LeafEntry, error) {
	var out []LeafEntry
	err := t.withRead(func() error {
		leaf, err := t.firstLeaf()
		if err != nil {
			return err
		}
		for {
			b, err := t.Store.Open(leaf)
			if err != nil {
				return err
			}
			size := b.Size()
			stop := false
			for i := int32(0); i < size; i++ {
				e, err := b.GetLeafEntry(i)
				if err != nil {
					t.Store.Release(leaf, false)
					return err
				}
				c := t.Compare(e.Key, toKey)
				if c > 0 || (c == 0 && !inclusive) {
					stop = true
					break
				}
				out = append(out, LeafEntry{Key: e.Key, Value: e.Value})
			}
			next := b.RightSibling()
			if err := t.Store.Release(leaf, false); err != nil {
				return err
			}
			if stop || next.IsNil() {
				return nil
			}
			leaf = next
		}
	})
	return out, err
}

// ScanMajor visits every entry with key >= fromKey (or > fromKey when
// !inclusive). Descending iteration is UNSUPPORTED (spec §7).
func (t *Tree[P]) ScanMajor(fromKey []byte, inclusive, ascending bool) ([]LeafEntry, error) {
	if !ascending {
		return nil, fmt.Errorf("%w: descending major scans", types.ErrUnsupported)
	}
	var out []LeafEntry
	err := t.withRead(func() error {
		res, err := t.findBucket(fromKey)
		if err != nil {
			return err
		}
		leaf := res.Leaf()
		start := res.ItemIndex
		if start < 0 {
			start = -start - 1
		} else if !inclusive {
			start++
		}
		for {
			b, err := t.Store.Open(leaf)
			if err != nil {
				return err
			}
			size := b.Size()
			for i := start; i < size; i++ {
				e, err := b.GetLeafEntry(i)
				if err != nil {
					t.Store.Release(leaf, false)
					return err
				}
				out = append(out, LeafEntry{Key: e.Key, Value: e.Value})
			}
			next := b.RightSibling()
			if err := t.Store.Release(leaf, false); err != nil {
				return err
			}
			if next.IsNil() {
				return nil
			}
			leaf = next
			start = 0
		}
	})
	return out, err
}

// ScanBetween visits every entry in [fromKey, toKey] with inclusivity
// controlled independently at each end.
func (t *Tree[P]) ScanBetween(fromKey []byte, fromInclusive bool, toKey []byte, toInclusive bool) ([]LeafEntry, error) {
	var out []LeafEntry
	err := t.withRead(func() error {
		res, err := t.findBucket(fromKey)
		if err != nil {
			return err
		}
		leaf := res.Leaf()
		start := res.ItemIndex
		if start < 0 {
			start = -start - 1
		} else if !fromInclusive {
			start++
		}
		for {
			b, err := t.Store.Open(leaf)
			if err != nil {
				return err
			}
			size := b.Size()
			stop := false
			for i := start; i < size; i++ {
				e, err := b.GetLeafEntry(i)
				if err != nil {
					t.Store.Release(leaf, false)
					return err
				}
				c := t.Compare(e.Key, toKey)
				if c > 0 || (c == 0 && !toInclusive) {
					stop = true
					break
				}
				out = append(out, LeafEntry{Key: e.Key, Value: e.Value})
			}
			next := b.RightSibling()
			if err := t.Store.Release(leaf, false); err != nil {
				return err
			}
			if stop || next.IsNil() {
				return nil
			}
			leaf = next
			start = 0
		}
	})
	return out, err
}

// Change is a signed adjustment applied on top of a stored value when
// computing a RID-bag's real size without materializing every element
// (spec §4's bag-size collaborator: entries carry a base count, callers
// hold uncommitted increments/decrements in memory until flush).
type Change struct {
	Key   []byte
	Delta int64
}

// RealBagSize scans every entry from fromKey forward, summing each
// stored int64 value (little-endian) plus every caller-supplied delta.
// Change.Key is not consulted: a delta adds the same amount whether or
// not its key is stored in the scanned range.
func (t *Tree[P]) RealBagSize(fromKey []byte, changes []Change) (int64, error) {
	entries, err := t.ScanMajor(fromKey, true, true)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		v, err := serializer.Int64Serializer{}.DeserializeFromBuffer(e.Value)
		if err != nil {
			return 0, err
		}
		total += v.(int64)
	}
	for _, c := range changes {
		total += c.Delta
	}
	return total, nil
}
