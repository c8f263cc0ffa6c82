package atomicop

import (
	"fmt"
	"log"
	"sync/atomic"

	"sbtreeindex/lockmgr"
	"sbtreeindex/wal"
)

var Trace = false

func tracef(format string, args ...any) {
	if Trace {
		log.Printf("[AtomicOp] "+format, args...)
	}
}

// New builds a manager over the given WAL and lock manager. A nil wal is
// accepted for tests that exercise rollback bookkeeping without durability.
func New(w *wal.Manager, locks *lockmgr.Manager) *Manager {
	return &Manager{
		nextID: 1,
		active: make(map[uint64]*AtomicOperation),
		wal:    w,
		locks:  locks,
	}
}

// Start begins a new atomic operation scoped to one file (tree). Every
// put/remove/clear entry point calls this once, does its work against the
// returned operation, and calls End exactly once.
func (m *Manager) Start(fileID uint32, rollbackOnException bool) *AtomicOperation {
	id := atomic.AddUint64(&m.nextID, 1) - 1

	op := &AtomicOperation{
		ID:                  id,
		FileID:              fileID,
		RollbackOnException: rollbackOnException,
		mgr:                 m,
	}

	m.mu.Lock()
	m.active[id] = op
	m.mu.Unlock()

	tracef("START id=%d fileID=%d rollbackOnException=%v", id, fileID, rollbackOnException)
	return op
}

// LogPageOp records a fine-grained page mutation's before-image to the
// WAL (when one is attached) and registers its in-memory undo, so a later
// rollback can reapply it. Called by the bucket layer immediately after
// it mutates a page in place.
func (op *AtomicOperation) LogPageOp(pageOp wal.PageOperation, undo func() error) error {
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.mgr.wal != nil {
		if _, err := op.mgr.wal.AppendPageOperation(&pageOp); err != nil {
			return fmt.Errorf("atomicop: log page operation: %w", err)
		}
	}
	op.steps = append(op.steps, undoStep{op: pageOp, undo: undo})
	return nil
}

// SetComponentOperation attaches the coarse create/put/remove record this
// atomic operation represents. Logged on End unless the operation rolls
// back.
func (op *AtomicOperation) SetComponentOperation(c wal.ComponentOperation) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.componentOp = &c
}

// End finishes the atomic operation. rollback=false commits: the
// component operation (if any) is appended to the WAL and the page
// operations already logged stay in effect. rollback=true undoes every
// logged page operation in reverse order (LIFO, matching the order page
// images were taken) and discards the component operation.
func (op *AtomicOperation) End(rollback bool, cause error) error {
	op.mu.Lock()
	defer op.mu.Unlock()

	defer func() {
		op.mgr.mu.Lock()
		delete(op.mgr.active, op.ID)
		op.mgr.mu.Unlock()
	}()

	if !rollback {
		if op.componentOp != nil && op.mgr.wal != nil {
			if _, err := op.mgr.wal.AppendComponentOperation(op.componentOp); err != nil {
				return fmt.Errorf("atomicop: log component operation: %w", err)
			}
		}
		tracef("END id=%d commit", op.ID)
		return nil
	}

	tracef("END id=%d rollback cause=%v steps=%d", op.ID, cause, len(op.steps))
	for i := len(op.steps) - 1; i >= 0; i-- {
		if err := op.steps[i].undo(); err != nil {
			return fmt.Errorf("atomicop: rollback step %d (kind=%v): %w", i, op.steps[i].op.Kind, err)
		}
	}
	return nil
}

// AcquireReadLock takes the shared lock for this operation's file,
// matching spec §5/§6's acquire_read_lock hook used by scans and get that
// run outside a mutating atomic operation's own exclusive lock.
func (m *Manager) AcquireReadLock(fileID uint32) {
	if m.locks != nil {
		m.locks.RLock(fileID)
	}
}

func (m *Manager) ReleaseReadLock(fileID uint32) {
	if m.locks != nil {
		m.locks.RUnlock(fileID)
	}
}

// AcquireWriteLock/ReleaseWriteLock bracket a mutating atomic operation.
func (m *Manager) AcquireWriteLock(fileID uint32) {
	if m.locks != nil {
		m.locks.Lock(fileID)
	}
}

func (m *Manager) ReleaseWriteLock(fileID uint32) {
	if m.locks != nil {
		m.locks.Unlock(fileID)
	}
}
