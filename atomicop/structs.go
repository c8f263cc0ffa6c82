// Package atomicop is the atomic operation manager from spec §4.4: every
// mutating tree operation runs inside one AtomicOperation, which logs a
// coarse component-operation record plus fine-grained page-operation
// before-images, and unwinds them in reverse order on rollback.
package atomicop

import (
	"sync"

	"sbtreeindex/lockmgr"
	"sbtreeindex/wal"
)

// undoStep pairs a logged page operation with the in-memory inverse that
// reapplies its before-image — the bucket layer supplies the closure when
// it calls LogPageOp, since only it knows how to undo its own mutation.
type undoStep struct {
	op   wal.PageOperation
	undo func() error
}

// AtomicOperation is one unit of durability: start, accumulate page
// operations as the tree mutates buckets, end with either a commit (write
// the component operation, keep the page operations) or a rollback (run
// every undo step in reverse, then drop the component operation).
type AtomicOperation struct {
	ID                  uint64
	FileID              uint32
	RollbackOnException bool
	componentOp         *wal.ComponentOperation
	steps               []undoStep
	mgr                 *Manager
	mu                  sync.Mutex
}

// Manager issues AtomicOperations and owns the WAL + lock manager they
// log to and coordinate with.
type Manager struct {
	nextID uint64
	active map[uint64]*AtomicOperation
	wal    *wal.Manager
	locks  *lockmgr.Manager
	mu     sync.Mutex
}
