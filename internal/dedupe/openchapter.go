package dedupe

import (
	"github.com/cockroachdb/swiss"

	vdoerrors "github.com/vdo/vdo/internal/errors"
)

// OpenChapter is the index's in-progress chapter: every record added
// since the last chapter closed, keyed by name. Grounded on
// make_open_chapter_index/put_open_chapter_index_record (chapterIndex.c),
// generalized from the delta-index's list-of-collision-records shape to
// a hash table entry holding a small collision slice, since UDS permits
// (rare) distinct chunks sharing a truncated name.
type OpenChapter struct {
	capacity int
	table    swiss.Map[RecordName, []Advice]
	size     int
}

// NewOpenChapter creates an empty open chapter sized for capacity
// records (geometry.records_per_chapter in the original).
func NewOpenChapter(capacity int) *OpenChapter {
	c := &OpenChapter{capacity: capacity}
	c.table.Init(capacity)
	return c
}

// Size returns the number of records currently held.
func (c *OpenChapter) Size() int { return c.size }

// IsFull reports whether the chapter has reached its record capacity
// and must be closed before another Put (check in add_record's caller,
// open_chapter_zone.c's fill tracking).
func (c *OpenChapter) IsFull() bool { return c.size >= c.capacity }

// Put records that name maps to advice, appending to any existing
// collision list for that name rather than overwriting it - UDS stores
// every colliding record and lets query compare full names, since the
// open chapter index itself only indexes a truncated prefix.
func (c *OpenChapter) Put(name RecordName, advice Advice) error {
	if c.IsFull() {
		return vdoerrors.ErrVolumeOverflow.Errorf("dedupe: open chapter is full (capacity %d)", c.capacity)
	}
	existing, _ := c.table.Get(name)
	c.table.Put(name, append(existing, advice))
	c.size++
	return nil
}

// Get returns the most recently added advice for name, matching
// get_open_chapter_index_record's "most recent wins" resolution of
// within-chapter collisions.
func (c *OpenChapter) Get(name RecordName) (Advice, bool) {
	entries, ok := c.table.Get(name)
	if !ok || len(entries) == 0 {
		return Advice{}, false
	}
	return entries[len(entries)-1], true
}

// Remove deletes name's record entirely (a UDS_DELETE update).
func (c *OpenChapter) Remove(name RecordName) {
	if entries, ok := c.table.Get(name); ok {
		c.table.Delete(name)
		c.size -= len(entries)
	}
}

// Close drains the open chapter into an immutable Chapter assigned the
// given virtual chapter number, and leaves the receiver empty so a
// fresh chapter can be opened in its place (open_next_chapter's
// swap-in-empty-chapter step).
func (c *OpenChapter) Close(virtualChapter uint64) *Chapter {
	records := make(map[RecordName]Advice, c.size)
	c.table.All(func(name RecordName, entries []Advice) bool {
		if len(entries) > 0 {
			records[name] = entries[len(entries)-1]
		}
		return true
	})
	c.table = swiss.Map[RecordName, []Advice]{}
	c.table.Init(c.capacity)
	c.size = 0
	return &Chapter{VirtualChapter: virtualChapter, records: records}
}

// Chapter is an immutable, closed chapter's name index - the in-memory
// stand-in for a volume's on-disk chapter index page set.
type Chapter struct {
	VirtualChapter uint64
	records        map[RecordName]Advice
}

// Get looks up name within this closed chapter.
func (ch *Chapter) Get(name RecordName) (Advice, bool) {
	a, ok := ch.records[name]
	return a, ok
}

// Size returns the number of records in the chapter.
func (ch *Chapter) Size() int { return len(ch.records) }
