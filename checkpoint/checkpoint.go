package checkpoint

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// New opens a checkpoint manager rooted at dbPath, where the index
// engine's data and WAL files live.
func New(dbPath string) (*Manager, error) {
	return &Manager{
		checkpointPath: filepath.Join(dbPath, "checkpoint.json"),
	}, nil
}

// Save atomically persists a checkpoint: write to a temp file, fsync it,
// then rename over the live checkpoint so a crash mid-write never leaves
// a corrupt file in place.
func (cm *Manager) Save(fileID uint32, lsn uint64) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cp := Checkpoint{
		LSN:       lsn,
		Timestamp: time.Now().Unix(),
		FileID:    fileID,
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	tempPath := cm.checkpointPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("checkpoint: write temp: %w", err)
	}

	tempFile, err := os.OpenFile(tempPath, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("checkpoint: reopen temp: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("checkpoint: sync temp: %w", err)
	}
	tempFile.Close()

	if err := os.Rename(tempPath, cm.checkpointPath); err != nil {
		return fmt.Errorf("checkpoint: rename: %w", err)
	}

	if dir, err := os.Open(filepath.Dir(cm.checkpointPath)); err == nil {
		dir.Sync()
		dir.Close()
	}

	log.Printf("[Checkpoint] saved fileID=%d lsn=%d", fileID, lsn)
	return nil
}

// Load reads the last checkpoint, or LSN 0 if none exists yet (fresh
// file) or the checkpoint file is corrupt (fall back to a full replay).
func (cm *Manager) Load() (*Checkpoint, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if _, err := os.Stat(cm.checkpointPath); os.IsNotExist(err) {
		return &Checkpoint{LSN: 0}, nil
	}

	data, err := os.ReadFile(cm.checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		log.Printf("[Checkpoint] corrupt checkpoint file, restarting replay from LSN 0: %v", err)
		return &Checkpoint{LSN: 0}, nil
	}

	log.Printf("[Checkpoint] loaded fileID=%d lsn=%d", cp.FileID, cp.LSN)
	return &cp, nil
}

// Delete removes the checkpoint file, forcing the next open to replay
// the WAL from the beginning.
func (cm *Manager) Delete() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := os.Remove(cm.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: delete: %w", err)
	}
	return nil
}
