// Package page holds the in-memory representation of one fixed-size disk
// page, shared by the disk manager, the page cache and the bucket layer.
package page

import (
	"sync"

	"sbtreeindex/types"
)

// DefaultSize is the default page size in bytes (disk_cache_page_size in
// spec §6, expressed in KB there; 4 KB here matches the teacher's page
// layout and OrientDB's default).
const DefaultSize = 4096

// LSNOffset names byte 0 of page data as the page-LSN position. Nothing
// in this module reads or writes a page LSN there, and no caller assigns
// Page.LSN, so it stays 0.
const LSNOffset = 0

type Page struct {
	ID       int64
	FileID   uint32
	Data     []byte
	IsDirty  bool
	PinCount int32
	PageType types.PageType
	LSN      uint64
	mu       sync.RWMutex
}

func New(id int64, fileID uint32, pageType types.PageType, size int) *Page {
	return &Page{
		ID:       id,
		FileID:   fileID,
		Data:     make([]byte, size),
		PageType: pageType,
	}
}

func (p *Page) Lock()    { p.mu.Lock() }
func (p *Page) Unlock()  { p.mu.Unlock() }
func (p *Page) RLock()   { p.mu.RLock() }
func (p *Page) RUnlock() { p.mu.RUnlock() }
