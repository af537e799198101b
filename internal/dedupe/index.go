package dedupe

import (
	"sync"

	vdoerrors "github.com/vdo/vdo/internal/errors"
)

// Index is a single dedupe zone's view of the index: its share of the
// open chapter plus a shared, cache of closed chapters. Grounded on
// original_source/uds/indexZone.c's struct index_zone
// (newestVirtualChapter / oldestVirtualChapter / open chapter) and
// index.c's multi-zone index, collapsed here into a single struct
// since this package doesn't yet model per-zone threads (that lives in
// internal/zone).
type Index struct {
	mu sync.Mutex

	open    *OpenChapter
	cache   *ChapterCache
	oldest  uint64
	newest  uint64
	chapterSpan uint64 // how many virtual chapters are retained on the volume

	onChapterClosed []func(virtualChapter uint64)
}

// Config parameterizes a new Index.
type Config struct {
	RecordsPerChapter int
	CacheChapters     int
	ChapterSpan       uint64 // number of recent chapters retained before the oldest is dropped
}

// New creates an index with an empty open chapter at virtual chapter 0.
func New(cfg Config) *Index {
	return &Index{
		open:        NewOpenChapter(cfg.RecordsPerChapter),
		cache:       NewChapterCache(cfg.CacheChapters),
		chapterSpan: cfg.ChapterSpan,
	}
}

// OnChapterClosed registers a callback invoked whenever this index
// closes its open chapter, mirroring announceChapterClosed's broadcast
// to every other zone (REQUEST_ANNOUNCE_CHAPTER_CLOSED).
func (idx *Index) OnChapterClosed(fn func(virtualChapter uint64)) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.onChapterClosed = append(idx.onChapterClosed, fn)
}

// Put records that name maps to advice, closing and rotating the open
// chapter first if it is full (add_record / open_next_chapter).
func (idx *Index) Put(name RecordName, advice Advice) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.open.IsFull() {
		idx.closeOpenChapterLocked()
	}
	return idx.open.Put(name, advice)
}

// Remove deletes name's record from the open chapter, if present
// there (closed chapters are immutable; a delete against a closed
// chapter's record is handled by the caller recording a tombstone
// advice instead).
func (idx *Index) Remove(name RecordName) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.open.Remove(name)
}

// Query looks up name, checking the open chapter first (LOC_IN_OPEN_CHAPTER)
// then the resident chapter cache (LOC_IN_DENSE/LOC_IN_SPARSE), matching
// get_record's resolution order.
func (idx *Index) Query(name RecordName) (Advice, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if a, ok := idx.open.Get(name); ok {
		return a, true
	}
	return idx.cache.Find(name)
}

// RequestSparseCacheBarrier ensures virtualChapter is resident in the
// cache, the REQUEST_SPARSE_CACHE_BARRIER rendezvous point
// (executeSparseCacheBarrierMessage). Since this package has no zone
// threads of its own, callers in internal/zone synchronize the actual
// barrier across zones; this just performs the "load if missing" half.
func (idx *Index) RequestSparseCacheBarrier(virtualChapter uint64, load func(uint64) (*Chapter, error)) error {
	idx.mu.Lock()
	if idx.cache.Contains(virtualChapter) {
		idx.mu.Unlock()
		return nil
	}
	idx.mu.Unlock()

	chapter, err := load(virtualChapter)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.cache.Add(chapter)
	return nil
}

// CloseOpenChapter forces the current open chapter closed even if not
// yet full, e.g. at shutdown or suspend.
func (idx *Index) CloseOpenChapter() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.open.Size() == 0 {
		return
	}
	idx.closeOpenChapterLocked()
}

// closeOpenChapterLocked must be called with idx.mu held. The
// registered callbacks are invoked synchronously, still holding the
// lock - safe because announceChapterClosed's notification always
// targets other zones' indexes, never this one (a zone never
// registers a callback on itself).
func (idx *Index) closeOpenChapterLocked() {
	closed := idx.open.Close(idx.newest)
	idx.cache.Add(closed)

	closedChapter := idx.newest
	idx.newest++
	if idx.chapterSpan > 0 && idx.newest > idx.chapterSpan {
		oldest := idx.newest - idx.chapterSpan
		if oldest > idx.oldest {
			idx.cache.Evict(idx.oldest)
			idx.oldest = oldest
		}
	}

	for _, cb := range idx.onChapterClosed {
		cb(closedChapter)
	}
}

// NewestVirtualChapter and OldestVirtualChapter expose the index's
// retained chapter range for status reporting.
func (idx *Index) NewestVirtualChapter() uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.newest
}

func (idx *Index) OldestVirtualChapter() uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.oldest
}

// ErrNameNotFound is returned by strict lookups that require a hit.
var ErrNameNotFound = vdoerrors.ErrInvalidArgument
