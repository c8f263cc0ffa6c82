// Package diskmgr owns raw file handles and page-level I/O for tree
// files. It tracks the global page-ID space (fileID<<32|localPageNum) so
// the page cache can key pages uniquely across every open file, mirroring
// the teacher's disk_manager/main.go.
package diskmgr

import (
	"fmt"
	"os"

	"sbtreeindex/page"
	"sbtreeindex/types"
)

func New() *DiskManager {
	return &DiskManager{
		files:         make(map[uint32]*FileDescriptor),
		globalPageMap: make(map[int64]uint32),
		nextFileID:    1,
	}
}

// OpenFile opens or creates a tree file and returns its file ID.
func (dm *DiskManager) OpenFile(filePath string, pageSize int) (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	for id, fd := range dm.files {
		if fd.FilePath == filePath {
			return id, nil
		}
	}

	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return 0, fmt.Errorf("diskmgr: open %s: %w", filePath, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("diskmgr: stat %s: %w", filePath, err)
	}

	numPages := stat.Size() / int64(pageSize)
	fileID := dm.nextFileID
	dm.nextFileID++

	fd := &FileDescriptor{
		FileID:     fileID,
		FilePath:   filePath,
		File:       file,
		PageSize:   pageSize,
		NextPageID: numPages,
	}
	dm.files[fileID] = fd

	for local := int64(0); local < numPages; local++ {
		dm.globalPageMap[int64(fileID)<<32|local] = fileID
	}

	return fileID, nil
}

// ReadPage reads one page from disk. The caller passes only the page id;
// the page type comes from the type byte stored on disk.
func (dm *DiskManager) ReadPage(globalPageID int64) (*page.Page, error) {
	dm.mu.RLock()
	fileID, exists := dm.globalPageMap[globalPageID]
	dm.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: page %d not found in global page map", types.ErrIO, globalPageID)
	}

	dm.mu.RLock()
	fd, exists := dm.files[fileID]
	dm.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: file %d not found", types.ErrIO, fileID)
	}

	fd.mu.RLock()
	defer fd.mu.RUnlock()
	if fd.File == nil {
		return nil, fmt.Errorf("%w: file %d is closed", types.ErrIO, fileID)
	}

	localPageID := globalPageID & 0xFFFFFFFF
	offset := localPageID * int64(fd.PageSize)

	pg := page.New(globalPageID, fileID, types.PageTypeUnknown, fd.PageSize)
	n, err := fd.File.ReadAt(pg.Data, offset)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("%w: read page %d of file %d: %v", types.ErrIO, localPageID, fileID, err)
	}
	for i := n; i < fd.PageSize; i++ {
		pg.Data[i] = 0
	}
	if len(pg.Data) > 8 {
		pg.PageType = types.PageType(pg.Data[8])
	}
	return pg, nil
}

// WritePage writes a page back to its file at its local offset.
func (dm *DiskManager) WritePage(pg *page.Page) error {
	dm.mu.RLock()
	fd, exists := dm.files[pg.FileID]
	dm.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: file %d not found", types.ErrIO, pg.FileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.File == nil {
		return fmt.Errorf("%w: file %d is closed", types.ErrIO, pg.FileID)
	}
	if len(pg.Data) != fd.PageSize {
		return fmt.Errorf("%w: page data size %d does not match page size %d", types.ErrStateViolation, len(pg.Data), fd.PageSize)
	}

	pg.Data[8] = byte(pg.PageType)

	localPageID := pg.ID & 0xFFFFFFFF
	offset := localPageID * int64(fd.PageSize)

	if _, err := fd.File.WriteAt(pg.Data, offset); err != nil {
		return fmt.Errorf("%w: write page %d of file %d: %v", types.ErrIO, localPageID, pg.FileID, err)
	}
	if localPageID >= fd.NextPageID {
		fd.NextPageID = localPageID + 1
	}
	pg.IsDirty = false
	return nil
}

// AllocatePage reserves the next local page number for a file. It does not
// touch disk — the page cache writes the page back when it is evicted or
// explicitly flushed.
func (dm *DiskManager) AllocatePage(fileID uint32) (int64, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	fd, exists := dm.files[fileID]
	if !exists {
		return 0, fmt.Errorf("%w: file %d not found", types.ErrIO, fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.File == nil {
		return 0, fmt.Errorf("%w: file %d is closed", types.ErrIO, fileID)
	}

	localPageNum := fd.NextPageID
	fd.NextPageID++

	globalPageID := int64(fileID)<<32 | localPageNum
	dm.globalPageMap[globalPageID] = fileID
	return globalPageID, nil
}

func (dm *DiskManager) PageSize(fileID uint32) int {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if fd, ok := dm.files[fileID]; ok {
		return fd.PageSize
	}
	return page.DefaultSize
}

// Sync forces every open file's OS buffers to disk.
func (dm *DiskManager) Sync() error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, fd := range dm.files {
		fd.mu.Lock()
		if fd.File != nil {
			if err := fd.File.Sync(); err != nil {
				fd.mu.Unlock()
				return fmt.Errorf("%w: sync file %d: %v", types.ErrIO, fd.FileID, err)
			}
		}
		fd.mu.Unlock()
	}
	return nil
}

func (dm *DiskManager) CloseFile(fileID uint32) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	fd, exists := dm.files[fileID]
	if !exists {
		return nil
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.File == nil {
		return nil
	}
	if err := fd.File.Sync(); err != nil {
		return fmt.Errorf("%w: sync before close: %v", types.ErrIO, err)
	}
	if err := fd.File.Close(); err != nil {
		return fmt.Errorf("%w: close file: %v", types.ErrIO, err)
	}
	fd.File = nil
	delete(dm.files, fileID)
	return nil
}

func (dm *DiskManager) CloseAll() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	var lastErr error
	for fileID, fd := range dm.files {
		fd.mu.Lock()
		if fd.File != nil {
			if err := fd.File.Sync(); err != nil {
				lastErr = err
			}
			if err := fd.File.Close(); err != nil {
				lastErr = err
			}
			fd.File = nil
		}
		fd.mu.Unlock()
		delete(dm.files, fileID)
	}
	return lastErr
}

// TotalPages returns the number of pages currently allocated in a file.
func (dm *DiskManager) TotalPages(fileID uint32) int64 {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if fd, ok := dm.files[fileID]; ok {
		return fd.NextPageID
	}
	return 0
}
