package blockmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageCacheGetInsertRoundTrip(t *testing.T) {
	c := NewPageCache(2)
	require.Nil(t, c.Get(1))

	p := &Page{PBN: 1}
	c.Insert(1, p)
	require.Equal(t, p, c.Get(1))
}

func TestPageCacheEvictsCleanLRUOnly(t *testing.T) {
	c := NewPageCache(2)
	c.Insert(1, &Page{PBN: 1})
	c.Insert(2, &Page{PBN: 2})
	require.NoError(t, c.MarkDirty(1))

	// Inserting a third page must evict page 2 (clean, LRU), not page 1
	// (dirty), even though page 1 is older.
	c.Insert(3, &Page{PBN: 3})
	require.NotNil(t, c.Get(1))
	require.Nil(t, c.Get(2))
	require.NotNil(t, c.Get(3))
}

func TestPageCacheAllowsOverBudgetWhenAllDirty(t *testing.T) {
	c := NewPageCache(1)
	c.Insert(1, &Page{PBN: 1})
	require.NoError(t, c.MarkDirty(1))
	c.Insert(2, &Page{PBN: 2})
	require.NoError(t, c.MarkDirty(2))
	require.Equal(t, 2, c.Resident())
}

func TestPageCacheFlushWritesOldestGenerationFirst(t *testing.T) {
	c := NewPageCache(10)
	c.Insert(1, &Page{PBN: 1})
	c.Insert(2, &Page{PBN: 2})
	c.AdvanceEra()
	require.NoError(t, c.MarkDirty(2))
	c.AdvanceEra()
	require.NoError(t, c.MarkDirty(1))

	var order []uint64
	err := c.Flush(func(p *Page) error {
		order = append(order, p.PBN)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 1}, order)
	require.False(t, c.Get(1).Dirty)
	require.False(t, c.Get(2).Dirty)
}

func TestPageCacheMarkDirtyRequiresResident(t *testing.T) {
	c := NewPageCache(2)
	require.Error(t, c.MarkDirty(99))
}
