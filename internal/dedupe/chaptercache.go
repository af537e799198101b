package dedupe

// ChapterCache is a bounded, least-recently-used cache of closed
// chapters - the in-memory stand-in for the sparse index cache
// (original_source/uds/cachedChapterIndex.c/sparseCache.c). Unlike
// internal/blockmap's PageCache, cached chapters are read-only once
// closed, so there is no dirty/writeback concern: eviction simply drops
// the least recently queried chapter.
type ChapterCache struct {
	capacity int
	order    []uint64 // most-recently-used at the back
	chapters map[uint64]*Chapter
}

// NewChapterCache creates a cache holding up to capacity chapters.
func NewChapterCache(capacity int) *ChapterCache {
	return &ChapterCache{
		capacity: capacity,
		chapters: make(map[uint64]*Chapter, capacity),
	}
}

// Get returns the cached chapter for virtualChapter, promoting it to
// most-recently-used, or reports a cache miss.
func (c *ChapterCache) Get(virtualChapter uint64) (*Chapter, bool) {
	ch, ok := c.chapters[virtualChapter]
	if !ok {
		return nil, false
	}
	c.touch(virtualChapter)
	return ch, true
}

// Add inserts ch into the cache, evicting the least recently used
// chapter if the cache is already at capacity (updateSparseCache's
// "make room" step).
func (c *ChapterCache) Add(ch *Chapter) {
	if _, exists := c.chapters[ch.VirtualChapter]; exists {
		c.chapters[ch.VirtualChapter] = ch
		c.touch(ch.VirtualChapter)
		return
	}
	if len(c.chapters) >= c.capacity {
		c.evictLRU()
	}
	c.chapters[ch.VirtualChapter] = ch
	c.order = append(c.order, ch.VirtualChapter)
}

// Contains reports whether virtualChapter is already resident, without
// affecting recency (the barrier message's "already cached" fast path).
func (c *ChapterCache) Contains(virtualChapter uint64) bool {
	_, ok := c.chapters[virtualChapter]
	return ok
}

// Evict drops virtualChapter from the cache, e.g. because it has
// fallen out of the index's retained chapter range.
func (c *ChapterCache) Evict(virtualChapter uint64) {
	if _, ok := c.chapters[virtualChapter]; !ok {
		return
	}
	delete(c.chapters, virtualChapter)
	for i, v := range c.order {
		if v == virtualChapter {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of resident chapters.
func (c *ChapterCache) Len() int { return len(c.chapters) }

// Find searches every resident chapter for name, most recently used
// first, matching get_record's fallback scan once the open chapter has
// missed.
func (c *ChapterCache) Find(name RecordName) (Advice, bool) {
	for i := len(c.order) - 1; i >= 0; i-- {
		if a, ok := c.chapters[c.order[i]].Get(name); ok {
			return a, true
		}
	}
	return Advice{}, false
}

func (c *ChapterCache) touch(virtualChapter uint64) {
	for i, v := range c.order {
		if v == virtualChapter {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, virtualChapter)
}

func (c *ChapterCache) evictLRU() {
	if len(c.order) == 0 {
		return
	}
	lru := c.order[0]
	c.order = c.order[1:]
	delete(c.chapters, lru)
}
