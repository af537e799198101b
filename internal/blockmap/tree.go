// Package blockmap implements the forest of per-root trees mapping
// logical block numbers to physical mappings, plus the page
// cache that holds a working set of tree pages and leaf pages in memory
// with era-based dirty-page writeback.
//
// Grounded on original_source/vdo/base/forest.c (computeForestSize,
// getTreePageByIndex) and blockMapTree.c/.h.
package blockmap

import (
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/format"
)

// DefaultRootCount is the number of independent trees the forest splits
// the logical address space across, matching VDO's well-known default
// block map root count.
const DefaultRootCount = 60

// Boundary records, for a forest generation, how many pages exist at
// each tree height (index 0 = leaf level, TreeHeight-1 = root level),
// mirroring struct boundary.
type Boundary struct {
	Levels [format.TreeHeight]uint64
}

// computeBucketCount is ceiling division: how many buckets of size
// bucketSize are needed to hold n items.
func computeBucketCount(n, bucketSize uint64) uint64 {
	if bucketSize == 0 {
		return 0
	}
	buckets := n / bucketSize
	if n%bucketSize != 0 {
		buckets++
	}
	return buckets
}

// computeBlockMapPageCount returns how many leaf pages are needed to
// hold the given number of logical entries.
func computeBlockMapPageCount(entries uint64) uint64 {
	return computeBucketCount(entries, format.EntriesPerPage)
}

// ComputeForestSize computes the total number of new pages (across all
// rootCount trees and every level) needed to grow the forest so its
// leaf level can address entries logical blocks, given the forest's
// current size oldSizes (nil if the forest does not yet exist) and how
// many of the leaf pages are already accounted for by flatPageCount
// (pages predating the tree structure, always zero in this
// implementation since VDO's flat-page legacy format is not supported;
// kept as a parameter to mirror the original's signature).
//
// Grounded field-for-field on forest.c's computeNewPages (internally
// named computeForestSize in some VDO releases).
func ComputeForestSize(rootCount int, oldSizes *Boundary, flatPageCount, entries uint64) (uint64, Boundary) {
	leafPages := computeBlockMapPageCount(entries)
	if leafPages < flatPageCount {
		leafPages = 0
	} else {
		leafPages -= flatPageCount
	}
	if leafPages < 1 {
		leafPages = 1
	}

	// Level 0 is the leaf pages per tree; each higher level holds one
	// entry per page of the level below.
	levelSize := computeBucketCount(leafPages, uint64(rootCount))
	var newSizes Boundary
	var totalPages uint64
	for height := 0; height < format.TreeHeight; height++ {
		if height > 0 {
			levelSize = computeBucketCount(levelSize, format.EntriesPerPage)
		}
		newSizes.Levels[height] = levelSize
		newPages := levelSize
		if oldSizes != nil {
			newPages -= oldSizes.Levels[height]
		}
		totalPages += newPages * uint64(rootCount)
	}
	return totalPages, newSizes
}

// Page is one tree or leaf page held in memory: its physical location
// (once allocated), whether it has been written at least twice (so
// recovery can trust a "formatted" bit read back from it), and its
// decoded entries.
type Page struct {
	PBN         uint64
	Initialized bool
	Dirty       bool
	// Generation is the page cache era at which this page was last
	// marked dirty, used to order writeback.
	Generation uint64
	Entries    [format.EntriesPerPage]format.Mapping
}

// Tree is one of the forest's independent root trees, addressable by
// root index. Segments correspond to successive growth operations
// (struct block_map_tree_segment); each segment holds one Page slice
// per height.
type Tree struct {
	RootIndex int
	Segments  [][format.TreeHeight][]*Page
}

// PageAt returns the page at the given height (0 = leaf) and page index
// within that level, searching segments in growth order the way
// getTreePageByIndex walks forest.boundaries.
func (t *Tree) PageAt(height int, pageIndex uint64) (*Page, error) {
	if height < 0 || height >= format.TreeHeight {
		return nil, vdoerrors.ErrOutOfRange.Errorf("blockmap: height %d out of range", height)
	}
	var offset uint64
	for _, segment := range t.Segments {
		pages := segment[height]
		border := offset + uint64(len(pages))
		if pageIndex < border {
			return pages[pageIndex-offset], nil
		}
		offset = border
	}
	return nil, vdoerrors.ErrOutOfRange.Errorf(
		"blockmap: page index %d at height %d not present in tree %d", pageIndex, height, t.RootIndex)
}

// Grow appends a new segment to the tree sized according to newBoundary
// minus oldBoundary at each level, leaving new pages uninitialized
// (PBN==0, Initialized==false) until the allocator assigns and formats
// them (two-phase tree growth: reserve pages, then write
// them).
func (t *Tree) Grow(oldBoundary, newBoundary Boundary) {
	var segment [format.TreeHeight][]*Page
	for height := 0; height < format.TreeHeight; height++ {
		count := newBoundary.Levels[height] - oldBoundary.Levels[height]
		pages := make([]*Page, count)
		for i := range pages {
			pages[i] = &Page{}
		}
		segment[height] = pages
	}
	t.Segments = append(t.Segments, segment)
}

// Forest is the full collection of DefaultRootCount (or caller-chosen)
// independent trees spanning the logical address space.
type Forest struct {
	RootCount int
	Boundary  Boundary
	Trees     []*Tree
}

// NewForest builds an empty forest with rootCount trees, each with a
// single segment sized to address the given number of logical entries.
func NewForest(rootCount int, entries uint64) *Forest {
	_, boundary := ComputeForestSize(rootCount, nil, 0, entries)
	f := &Forest{RootCount: rootCount, Boundary: boundary}
	f.Trees = make([]*Tree, rootCount)
	for i := range f.Trees {
		tree := &Tree{RootIndex: i}
		tree.Grow(Boundary{}, boundary)
		f.Trees[i] = tree
	}
	return f
}

// GrowToFit extends every tree in the forest to address entries
// logical entries, if it does not already. Returns false if the
// current boundary already covers entries (a no-op growth).
func (f *Forest) GrowToFit(entries uint64) bool {
	totalPages, newBoundary := ComputeForestSize(f.RootCount, &f.Boundary, 0, entries)
	if totalPages == 0 {
		return false
	}
	for _, tree := range f.Trees {
		tree.Grow(f.Boundary, newBoundary)
	}
	f.Boundary = newBoundary
	return true
}

// rootForLBN selects which of the forest's trees owns a given logical
// block number, distributing LBNs round-robin across roots the way
// block map addressing interleaves consecutive LBNs across trees for
// parallelism.
func (f *Forest) rootForLBN(lbn uint64) int {
	return int(lbn % uint64(f.RootCount))
}

// leafPageIndex returns which leaf page within its tree addresses lbn.
func leafPageIndex(lbn uint64, rootCount int) uint64 {
	return (lbn / uint64(rootCount)) / format.EntriesPerPage
}

// SlotFor returns the tree, leaf page, and slot within that page that
// addresses the given logical block number.
func (f *Forest) SlotFor(lbn uint64) (tree *Tree, leafPageIndexOut uint64, slot int, err error) {
	root := f.rootForLBN(lbn)
	tree = f.Trees[root]
	leafPageIndexOut = leafPageIndex(lbn, f.RootCount)
	slot = int((lbn / uint64(f.RootCount)) % format.EntriesPerPage)
	return tree, leafPageIndexOut, slot, nil
}
