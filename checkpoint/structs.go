// Package checkpoint records the LSN a WAL replay needs to start from,
// so recovery doesn't replay the whole log after every restart. The
// checkpoint file holds one record tagged with its FileID; every Save
// overwrites it, whatever file id it carried.
package checkpoint

import "sync"

// Manager persists checkpoints to a JSON file beside the tree's data file.
type Manager struct {
	checkpointPath string
	mu             sync.RWMutex
}

// Checkpoint is a recovery point: every page and component operation at
// or before LSN is already durable in the tree file, so WAL replay can
// start just past it.
type Checkpoint struct {
	LSN       uint64 `json:"lsn"`
	Timestamp int64  `json:"timestamp"`
	FileID    uint32 `json:"file_id"`
}
