// Package pagecache is the page cache collaborator described in spec §6:
// load_for_read/load_for_write, release_from_read/release_from_write.
// Pages are cached in an authoritative map (so FlushAllPages can walk
// every resident page) while a ristretto TinyLFU policy decides which
// unpinned page to evict under pressure, replacing the teacher's
// bufferpool.go hand-rolled LRU slice.
package pagecache

import (
	"fmt"
	"log"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/dustin/go-humanize"

	"sbtreeindex/diskmgr"
	"sbtreeindex/page"
	"sbtreeindex/types"
)

var Trace = false

func tracef(format string, args ...any) {
	if Trace {
		log.Printf("[PageCache] "+format, args...)
	}
}

// New creates a page cache with room for roughly `capacity` pages.
func New(capacity int, dm *diskmgr.DiskManager) (*PageCache, error) {
	pc := &PageCache{
		pages:       make(map[int64]*page.Page, capacity),
		capacity:    capacity,
		diskManager: dm,
	}

	policy, err := ristretto.NewCache(&ristretto.Config[int64, *page.Page]{
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity),
		BufferItems: 64,
		Cost:        func(*page.Page) int64 { return 1 },
		OnEvict: func(item *ristretto.Item[*page.Page]) {
			pc.onPolicyEvict(item.Value)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pagecache: build eviction policy: %w", err)
	}
	pc.policy = policy
	return pc, nil
}

func (pc *PageCache) SetWALManager(wal WALFlushedLSNGetter) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.walManager = wal
}

// onPolicyEvict runs (possibly on ristretto's internal goroutine) when the
// TinyLFU policy picks an eviction candidate. A pinned page is re-admitted
// rather than dropped, matching the teacher's "skip pinned pages" loop in
// evictLRU; an unpinned dirty page is flushed (subject to the same
// WAL-covers-page-LSN gate FlushPage enforces) before it leaves the
// authoritative map.
func (pc *PageCache) onPolicyEvict(pg *page.Page) {
	if pg == nil {
		return
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()

	resident, ok := pc.pages[pg.ID]
	if !ok {
		return
	}

	resident.Lock()
	pinned := resident.PinCount > 0
	dirty := resident.IsDirty
	resident.Unlock()

	if pinned {
		pc.policy.Set(pg.ID, resident, 1)
		return
	}

	if dirty {
		if pc.walManager != nil && resident.LSN > pc.walManager.GetFlushedLSN() {
			// Not yet durable — re-admit and try again later.
			pc.policy.Set(pg.ID, resident, 1)
			return
		}
		if pc.diskManager != nil {
			if err := pc.diskManager.WritePage(resident); err != nil {
				tracef("EVICT FLUSH FAILED pageID=%d err=%v", pg.ID, err)
				pc.policy.Set(pg.ID, resident, 1)
				return
			}
			resident.IsDirty = false
		}
	}

	tracef("EVICT pageID=%d dirty=%v", pg.ID, dirty)
	delete(pc.pages, pg.ID)
}

// FetchPage retrieves a page, loading it from disk on a miss. The
// returned page has its pin count incremented; the caller must Unpin it.
func (pc *PageCache) FetchPage(pageID int64) (*page.Page, error) {
	pc.mu.Lock()
	if pg, exists := pc.pages[pageID]; exists {
		pc.mu.Unlock()
		pc.policy.Get(pageID) // bump TinyLFU frequency
		pg.Lock()
		pg.PinCount++
		pg.Unlock()
		tracef("HIT pageID=%d pinCount=%d", pageID, pg.PinCount)
		return pg, nil
	}
	pc.mu.Unlock()

	tracef("MISS pageID=%d — loading from disk", pageID)
	if pc.diskManager == nil {
		return nil, fmt.Errorf("%w: disk manager not set", types.ErrIO)
	}

	pg, err := pc.diskManager.ReadPage(pageID)
	if err != nil {
		return nil, fmt.Errorf("pagecache: read page %d from disk: %w", pageID, err)
	}
	pc.mu.Lock()
	pc.pages[pageID] = pg
	pc.mu.Unlock()
	pc.policy.Set(pageID, pg, 1)

	pg.Lock()
	pg.PinCount++
	pg.Unlock()

	return pg, nil
}

// NewPage allocates a fresh page in the given file and adds it to the
// cache, pinned and dirty.
func (pc *PageCache) NewPage(fileID uint32, pageType types.PageType) (*page.Page, error) {
	if pc.diskManager == nil {
		return nil, fmt.Errorf("%w: disk manager not set", types.ErrIO)
	}

	pageID, err := pc.diskManager.AllocatePage(fileID)
	if err != nil {
		return nil, fmt.Errorf("pagecache: allocate page: %w", err)
	}

	pg := page.New(pageID, fileID, pageType, pc.diskManager.PageSize(fileID))
	pg.IsDirty = true
	pg.PinCount = 1

	pc.mu.Lock()
	pc.pages[pageID] = pg
	pc.mu.Unlock()
	pc.policy.Set(pageID, pg, 1)

	return pg, nil
}

// UnpinPage decrements a page's pin count; a true isDirty marks it dirty.
func (pc *PageCache) UnpinPage(pageID int64, isDirty bool) error {
	pc.mu.Lock()
	pg, exists := pc.pages[pageID]
	pc.mu.Unlock()
	if !exists {
		return fmt.Errorf("%w: page %d not in cache", types.ErrStateViolation, pageID)
	}

	pg.Lock()
	defer pg.Unlock()
	if pg.PinCount > 0 {
		pg.PinCount--
	}
	if isDirty {
		pg.IsDirty = true
	}
	return nil
}

// FlushPage writes one page back to disk if dirty, honoring the
// WAL-covers-page-LSN gate.
func (pc *PageCache) FlushPage(pageID int64) error {
	pc.mu.Lock()
	pg, exists := pc.pages[pageID]
	pc.mu.Unlock()
	if !exists {
		return fmt.Errorf("%w: page %d not in cache", types.ErrStateViolation, pageID)
	}

	pg.Lock()
	defer pg.Unlock()
	if !pg.IsDirty {
		return nil
	}
	if pc.walManager != nil && pg.LSN > pc.walManager.GetFlushedLSN() {
		return fmt.Errorf("sbtree: cannot flush page %d: pageLSN=%d not yet covered by WAL flushedLSN=%d",
			pageID, pg.LSN, pc.walManager.GetFlushedLSN())
	}
	if err := pc.diskManager.WritePage(pg); err != nil {
		return fmt.Errorf("pagecache: flush page %d: %w", pageID, err)
	}
	pg.IsDirty = false
	return nil
}

// FlushAllPages writes every dirty, WAL-covered page back to disk.
func (pc *PageCache) FlushAllPages() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.diskManager == nil {
		return fmt.Errorf("%w: disk manager not set", types.ErrIO)
	}

	for pageID, pg := range pc.pages {
		pg.Lock()
		if pg.IsDirty {
			if pc.walManager != nil && pg.LSN > pc.walManager.GetFlushedLSN() {
				pg.Unlock()
				continue
			}
			if err := pc.diskManager.WritePage(pg); err != nil {
				pg.Unlock()
				return fmt.Errorf("pagecache: flush page %d: %w", pageID, err)
			}
			pg.IsDirty = false
		}
		pg.Unlock()
	}
	return nil
}

// DeletePage drops an unpinned page from the cache without flushing it.
// The tree engine does not call it: recycled buckets stay cached.
func (pc *PageCache) DeletePage(pageID int64) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pg, exists := pc.pages[pageID]
	if !exists {
		return nil
	}
	pg.Lock()
	pinned := pg.PinCount > 0
	pg.Unlock()
	if pinned {
		return fmt.Errorf("%w: cannot delete pinned page %d", types.ErrStateViolation, pageID)
	}
	delete(pc.pages, pageID)
	return nil
}

// Stats reports current occupancy; Size/Capacity are logged with
// go-humanize the way the teacher logs BufferPoolStats with fmt.Printf.
func (pc *PageCache) Stats() Stats {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	s := Stats{TotalPages: len(pc.pages), Capacity: pc.capacity}
	for _, pg := range pc.pages {
		pg.RLock()
		if pg.PinCount > 0 {
			s.PinnedPages++
		}
		if pg.IsDirty {
			s.DirtyPages++
		}
		pg.RUnlock()
	}
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("pages=%s/%s pinned=%d dirty=%d",
		humanize.Comma(int64(s.TotalPages)), humanize.Comma(int64(s.Capacity)), s.PinnedPages, s.DirtyPages)
}

func (pc *PageCache) Size() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.pages)
}

func (pc *PageCache) Capacity() int { return pc.capacity }
