package blockmap

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vdo/vdo/internal/format"
)

func TestComputeForestSizeGrowsFromEmpty(t *testing.T) {
	total, boundary := ComputeForestSize(DefaultRootCount, nil, 0, 1000)
	require.Greater(t, total, uint64(0))
	require.Equal(t, uint64(1), boundary.Levels[format.TreeHeight-1])
}

func TestComputeForestSizeIsIncremental(t *testing.T) {
	_, first := ComputeForestSize(DefaultRootCount, nil, 0, 1000)
	totalGrowth, second := ComputeForestSize(DefaultRootCount, &first, 0, 2_000_000)
	require.Greater(t, totalGrowth, uint64(0))
	for h := 0; h < format.TreeHeight; h++ {
		require.GreaterOrEqual(t, second.Levels[h], first.Levels[h])
	}

	// Asking for the same size again should need no new pages.
	noGrowth, _ := ComputeForestSize(DefaultRootCount, &second, 0, 2_000_000)
	require.Equal(t, uint64(0), noGrowth)
}

func TestNewForestAndSlotFor(t *testing.T) {
	f := NewForest(4, 10_000)
	require.Len(t, f.Trees, 4)

	tree, leafIdx, slot, err := f.SlotFor(123)
	require.NoError(t, err)
	require.NotNil(t, tree)
	require.GreaterOrEqual(t, slot, 0)
	require.Less(t, slot, format.EntriesPerPage)

	page, err := tree.PageAt(0, leafIdx)
	require.NoError(t, err)
	require.NotNil(t, page)
}

func TestTreeGrowAddsSegment(t *testing.T) {
	f := NewForest(2, 100)
	initialSegments := len(f.Trees[0].Segments)
	grew := f.GrowToFit(10_000_000)
	require.True(t, grew)
	require.Greater(t, len(f.Trees[0].Segments), initialSegments)

	grewAgain := f.GrowToFit(10_000_000)
	require.False(t, grewAgain)
}

func TestPageAtOutOfRange(t *testing.T) {
	f := NewForest(1, 10)
	_, err := f.Trees[0].PageAt(format.TreeHeight, 0)
	require.Error(t, err)

	_, err = f.Trees[0].PageAt(0, 1_000_000)
	require.Error(t, err)
}
