package atomicop

// Run starts an atomic operation, invokes fn with it, and ends it:
// fn's error triggers a rollback whenever rollbackOnException is set,
// otherwise the operation still commits whatever page operations fn
// managed to log before failing (matching spec §4.4, where only some
// callers want all-or-nothing semantics). The component operation fn
// attaches via SetComponentOperation is written on a clean commit only.
func (m *Manager) Run(fileID uint32, rollbackOnException bool, fn func(op *AtomicOperation) error) error {
	op := m.Start(fileID, rollbackOnException)

	err := fn(op)
	rollback := err != nil && rollbackOnException

	if endErr := op.End(rollback, err); endErr != nil {
		if err != nil {
			return err
		}
		return endErr
	}
	return err
}
