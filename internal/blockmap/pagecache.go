package blockmap

import (
	"sync"

	vdoerrors "github.com/vdo/vdo/internal/errors"
)

// pageEntry is one page cache slot: a Page plus its position in the LRU
// list. Adapted from the teacher's cache.entry (a plain LRU node) into a
// dirty-aware node carrying the era at which it was last written to, so
// the cache can hold back eviction of anything not yet durable.
type pageEntry struct {
	pbn        uint64
	page       *Page
	next, prev *pageEntry
}

// entryList is the same intrusive circular doubly-linked list as the
// teacher's cache package, unchanged in shape; only the payload type
// differs.
type entryList struct{ root pageEntry }

func (l *entryList) init() { l.root.next = &l.root; l.root.prev = &l.root }

func (l *entryList) empty() bool { return l.root.next == &l.root }

func (l *entryList) back() *pageEntry { return l.root.prev }

func (l *entryList) insertAfter(e, at *pageEntry) {
	n := at.next
	at.next = e
	e.prev = at
	e.next = n
	n.prev = e
}

func (l *entryList) remove(e *pageEntry) *pageEntry {
	if e == &l.root {
		panic("blockmap: cannot remove cache root node")
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next = nil
	e.prev = nil
	return e
}

func (l *entryList) pushFront(e *pageEntry) { l.insertAfter(e, &l.root) }

func (l *entryList) moveToFront(e *pageEntry) {
	if l.root.next == e {
		return
	}
	l.insertAfter(l.remove(e), &l.root)
}

// WritebackFunc persists a dirty page's entries to its assigned
// physical block. The page cache calls this during Flush, in era order,
// oldest generation first.
type WritebackFunc func(p *Page) error

// PageCache holds a bounded working set of block map Pages in memory,
// evicting only clean pages so a dirty page is never dropped before its
// writeback completes (era-based dirty-page writeback:
// Era advances as the recovery journal makes progress, and pages dirtied
// in older eras are flushed first so the journal can eventually reap
// past them).
//
// Adapted from the teacher's cache.BlockCache: same LRU eviction
// structure, generalized from a byte-size budget to a page-count budget
// and taught to treat dirty pages as unevictable until flushed.
type PageCache struct {
	maxPages int

	mu    sync.Mutex
	m     map[uint64]*pageEntry
	count int
	lru   entryList

	era uint64
}

// NewPageCache creates a cache holding at most maxPages pages.
func NewPageCache(maxPages int) *PageCache {
	c := &PageCache{maxPages: maxPages, m: make(map[uint64]*pageEntry)}
	c.lru.init()
	return c
}

// Get returns the cached page for pbn, promoting it to most-recently-used,
// or nil if not resident.
func (c *PageCache) Get(pbn uint64) *Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.m[pbn]; e != nil {
		c.lru.moveToFront(e)
		return e.page
	}
	return nil
}

// Insert adds (or refreshes) a page in the cache, evicting clean pages
// as needed to stay within the page budget.
func (c *PageCache) Insert(pbn uint64, page *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.m[pbn]; e != nil {
		e.page = page
		c.lru.moveToFront(e)
		return
	}
	e := &pageEntry{pbn: pbn, page: page}
	c.m[pbn] = e
	c.lru.pushFront(e)
	c.count++
	c.evict()
}

// MarkDirty stamps a resident page as dirty at the cache's current era,
// so Flush knows to write it back before it may be evicted.
func (c *PageCache) MarkDirty(pbn uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.m[pbn]
	if e == nil {
		return vdoerrors.ErrInvalidArgument.Errorf("blockmap: page %d is not resident", pbn)
	}
	e.page.Dirty = true
	e.page.Generation = c.era
	return nil
}

// AdvanceEra bumps the cache's current era, returned for the caller to
// record alongside whatever recovery-journal point triggered the
// advance.
func (c *PageCache) AdvanceEra() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.era++
	return c.era
}

// evict drops clean pages from the tail of the LRU list until the cache
// is back within budget. Dirty pages are skipped (moved conceptually
// unreachable for eviction, matching "we never drop dirty state"); if
// every resident page is dirty, the cache is allowed to exceed its
// budget rather than lose data - callers experiencing sustained pressure
// should call Flush to make room.
func (c *PageCache) evict() {
	if c.count <= c.maxPages {
		return
	}
	e := c.lru.back()
	for e != &c.lru.root && c.count > c.maxPages {
		next := e.prev
		if !e.page.Dirty {
			c.lru.remove(e)
			delete(c.m, e.pbn)
			c.count--
		}
		e = next
	}
}

// Flush calls write on every dirty resident page in ascending
// generation order (oldest first), then marks each clean once write
// returns successfully. It stops and returns the first error
// encountered, leaving later pages untouched so a retry can resume.
func (c *PageCache) Flush(write WritebackFunc) error {
	c.mu.Lock()
	var dirty []*pageEntry
	for e := c.lru.root.next; e != &c.lru.root; e = e.next {
		if e.page.Dirty {
			dirty = append(dirty, e)
		}
	}
	c.mu.Unlock()

	// Sort by generation without pulling in sort for a handful of
	// entries per flush; insertion sort is fine at cache-sized counts.
	for i := 1; i < len(dirty); i++ {
		for j := i; j > 0 && dirty[j].page.Generation < dirty[j-1].page.Generation; j-- {
			dirty[j], dirty[j-1] = dirty[j-1], dirty[j]
		}
	}

	for _, e := range dirty {
		if err := write(e.page); err != nil {
			return err
		}
		c.mu.Lock()
		e.page.Dirty = false
		c.mu.Unlock()
	}
	return nil
}

// Resident returns the number of pages currently cached.
func (c *PageCache) Resident() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
