package pagecache

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"sbtreeindex/diskmgr"
	"sbtreeindex/page"
)

// PageCache is the page cache collaborator from spec §6: load/pin on
// read and write, release on every control-flow exit. Eviction policy is
// delegated to a ristretto TinyLFU admission/eviction cache keyed by
// pageID; the authoritative page store stays a plain map (ristretto gives
// no enumeration API, and FlushAllPages needs to walk every resident
// page), so ristretto's OnEvict callback drives which unpinned page gets
// written back and dropped, replacing the teacher's O(n) accessOrder scan.
type PageCache struct {
	pages       map[int64]*page.Page
	capacity    int
	diskManager *diskmgr.DiskManager
	walManager  WALFlushedLSNGetter
	policy      *ristretto.Cache[int64, *page.Page]
	mu          sync.Mutex
}

// Stats mirrors the teacher's BufferPoolStats: page counts only. Its
// String method prints the total and capacity counts with go-humanize's
// thousands separators.
type Stats struct {
	TotalPages  int
	PinnedPages int
	DirtyPages  int
	Capacity    int
}

type WALFlushedLSNGetter interface {
	GetFlushedLSN() uint64
}
