package dedupe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func name(b byte) RecordName {
	var n RecordName
	n[0] = b
	return n
}

func TestOpenChapterPutGet(t *testing.T) {
	c := NewOpenChapter(4)
	require.NoError(t, c.Put(name(1), Advice{PBN: 100}))
	a, ok := c.Get(name(1))
	require.True(t, ok)
	require.Equal(t, uint64(100), a.PBN)
	require.Equal(t, 1, c.Size())
}

func TestOpenChapterMostRecentWinsOnCollision(t *testing.T) {
	c := NewOpenChapter(4)
	require.NoError(t, c.Put(name(1), Advice{PBN: 100}))
	require.NoError(t, c.Put(name(1), Advice{PBN: 200}))
	a, ok := c.Get(name(1))
	require.True(t, ok)
	require.Equal(t, uint64(200), a.PBN)
}

func TestOpenChapterIsFullRejectsPut(t *testing.T) {
	c := NewOpenChapter(1)
	require.NoError(t, c.Put(name(1), Advice{PBN: 1}))
	require.True(t, c.IsFull())
	require.Error(t, c.Put(name(2), Advice{PBN: 2}))
}

func TestOpenChapterRemove(t *testing.T) {
	c := NewOpenChapter(4)
	require.NoError(t, c.Put(name(1), Advice{PBN: 1}))
	c.Remove(name(1))
	_, ok := c.Get(name(1))
	require.False(t, ok)
	require.Equal(t, 0, c.Size())
}

func TestOpenChapterCloseResetsAndProducesChapter(t *testing.T) {
	c := NewOpenChapter(4)
	require.NoError(t, c.Put(name(1), Advice{PBN: 1}))
	require.NoError(t, c.Put(name(2), Advice{PBN: 2}))

	ch := c.Close(7)
	require.Equal(t, uint64(7), ch.VirtualChapter)
	require.Equal(t, 2, ch.Size())
	require.Equal(t, 0, c.Size())
	require.False(t, c.IsFull())

	a, ok := ch.Get(name(1))
	require.True(t, ok)
	require.Equal(t, uint64(1), a.PBN)
}

func TestChapterCacheEvictsLRU(t *testing.T) {
	c := NewChapterCache(2)
	c.Add(&Chapter{VirtualChapter: 1, records: map[RecordName]Advice{}})
	c.Add(&Chapter{VirtualChapter: 2, records: map[RecordName]Advice{}})
	c.Add(&Chapter{VirtualChapter: 3, records: map[RecordName]Advice{}})

	_, ok := c.Get(1)
	require.False(t, ok, "chapter 1 should have been evicted")
	require.True(t, c.Contains(2))
	require.True(t, c.Contains(3))
}

func TestChapterCacheGetPromotesRecency(t *testing.T) {
	c := NewChapterCache(2)
	c.Add(&Chapter{VirtualChapter: 1, records: map[RecordName]Advice{}})
	c.Add(&Chapter{VirtualChapter: 2, records: map[RecordName]Advice{}})
	c.Get(1) // touch 1, making 2 the LRU
	c.Add(&Chapter{VirtualChapter: 3, records: map[RecordName]Advice{}})

	require.True(t, c.Contains(1))
	require.False(t, c.Contains(2))
}

func TestIndexPutQueryAcrossOpenAndClosedChapters(t *testing.T) {
	idx := New(Config{RecordsPerChapter: 2, CacheChapters: 4, ChapterSpan: 10})
	require.NoError(t, idx.Put(name(1), Advice{PBN: 1}))
	require.NoError(t, idx.Put(name(2), Advice{PBN: 2}))
	// Chapter is now full; this Put rotates it closed and opens a fresh one.
	require.NoError(t, idx.Put(name(3), Advice{PBN: 3}))

	a, ok := idx.Query(name(1))
	require.True(t, ok, "name 1 should still be found in the closed chapter")
	require.Equal(t, uint64(1), a.PBN)

	a, ok = idx.Query(name(3))
	require.True(t, ok, "name 3 should be found in the new open chapter")
	require.Equal(t, uint64(3), a.PBN)

	require.Equal(t, uint64(1), idx.NewestVirtualChapter())
}

func TestIndexAnnouncesChapterClosed(t *testing.T) {
	idx := New(Config{RecordsPerChapter: 1, CacheChapters: 4, ChapterSpan: 10})
	var closed []uint64
	idx.OnChapterClosed(func(v uint64) { closed = append(closed, v) })

	require.NoError(t, idx.Put(name(1), Advice{PBN: 1}))
	require.NoError(t, idx.Put(name(2), Advice{PBN: 2}))

	require.Equal(t, []uint64{0}, closed)
}

func TestIndexEvictsOldestBeyondChapterSpan(t *testing.T) {
	idx := New(Config{RecordsPerChapter: 1, CacheChapters: 4, ChapterSpan: 1})
	require.NoError(t, idx.Put(name(1), Advice{PBN: 1}))
	require.NoError(t, idx.Put(name(2), Advice{PBN: 2}))
	require.NoError(t, idx.Put(name(3), Advice{PBN: 3}))

	require.Equal(t, uint64(1), idx.OldestVirtualChapter())
	_, ok := idx.Query(name(1))
	require.False(t, ok, "chapter 0 should have aged out of the retained span")
}

func TestIndexSparseCacheBarrierLoadsOnce(t *testing.T) {
	idx := New(Config{RecordsPerChapter: 4, CacheChapters: 4})
	loads := 0
	load := func(v uint64) (*Chapter, error) {
		loads++
		return &Chapter{VirtualChapter: v, records: map[RecordName]Advice{name(9): {PBN: 9}}}, nil
	}

	require.NoError(t, idx.RequestSparseCacheBarrier(5, load))
	require.NoError(t, idx.RequestSparseCacheBarrier(5, load))
	require.Equal(t, 1, loads, "second barrier call should see the chapter already cached")

	a, ok := idx.Query(name(9))
	require.True(t, ok)
	require.Equal(t, uint64(9), a.PBN)
}
