package vdo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vdo/vdo/config"
	"github.com/vdo/vdo/internal/storageprovider"
)

func testConfig(t *testing.T, line string) *config.Config {
	t.Helper()
	cfg, err := config.Parse(line)
	require.NoError(t, err)
	return cfg
}

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	cfg := testConfig(t, "V0 /dev/vdotest 4096 4096 16 100 deduplication=on compression=on")
	d, err := Format("vol0", cfg, Options{Provider: storageprovider.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	d := newTestDevice(t)
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, d.Write(10, data))

	got, err := d.Read(10)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestReadUnmappedLBNReturnsZeroBlock(t *testing.T) {
	d := newTestDevice(t)
	got, err := d.Read(5)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 4096), got)
}

func TestWriteZeroBlockNeverAllocates(t *testing.T) {
	d := newTestDevice(t)
	before := d.allocator.AllocatedBlocks()
	require.NoError(t, d.Write(3, make([]byte, 4096)))
	require.Equal(t, before, d.allocator.AllocatedBlocks())

	got, err := d.Read(3)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 4096), got)
}

func TestDuplicateWritesDedupe(t *testing.T) {
	d := newTestDevice(t)
	data := make([]byte, 4096)
	for i := range data {
		data[i] = 0xAB
	}
	require.NoError(t, d.Write(0, data))
	allocatedAfterFirst := d.allocator.AllocatedBlocks()

	require.NoError(t, d.Write(1, data))
	require.Equal(t, allocatedAfterFirst, d.allocator.AllocatedBlocks(),
		"a dedupe write must not consume a fresh physical block")

	got0, err := d.Read(0)
	require.NoError(t, err)
	got1, err := d.Read(1)
	require.NoError(t, err)
	require.Equal(t, got0, got1)
	require.Equal(t, data, got1)
}

func TestOverwriteReleasesOldMappingViaDecrement(t *testing.T) {
	d := newTestDevice(t)
	first := make([]byte, 4096)
	first[0] = 1
	second := make([]byte, 4096)
	second[0] = 2

	require.NoError(t, d.Write(7, first))
	require.NoError(t, d.Write(7, second))

	got, err := d.Read(7)
	require.NoError(t, err)
	require.Equal(t, second, got)
}

func TestSetDeduplicationOffSkipsIndex(t *testing.T) {
	d := newTestDevice(t)
	d.SetDeduplication(false)
	require.False(t, d.DeduplicationEnabled())

	data := make([]byte, 4096)
	data[0] = 7
	require.NoError(t, d.Write(0, data))
	require.NoError(t, d.Write(1, data))
	require.Greater(t, d.allocator.AllocatedBlocks(), uint64(1))
}

func TestSetCompressionToggle(t *testing.T) {
	d := newTestDevice(t)
	require.True(t, d.CompressionEnabled())
	d.SetCompression(false)
	require.False(t, d.CompressionEnabled())
}

func TestGrowPhysicalAddsSlab(t *testing.T) {
	d := newTestDevice(t)
	before := len(d.allocator.Slabs())
	require.NoError(t, d.GrowPhysical(context.Background(), 1024))
	require.Equal(t, before+1, len(d.allocator.Slabs()))
	require.Equal(t, uint64(4096+1024), d.PhysicalBlocks())
}

func TestGrowLogicalExtendsForest(t *testing.T) {
	d := newTestDevice(t)
	require.NoError(t, d.GrowLogical(context.Background(), 1<<20))
	// A read far beyond the original small forest must now succeed
	// rather than erroring out of range.
	got, err := d.Read(1 << 19)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 4096), got)
}

func TestSuspendAndResume(t *testing.T) {
	d := newTestDevice(t)
	require.NoError(t, d.Write(0, make([]byte, 4096)))
	require.NoError(t, d.Suspend(context.Background()))
	require.NoError(t, d.Resume(context.Background()))
}

func TestRebuildMarksSlabsForScrubbing(t *testing.T) {
	d := newTestDevice(t)
	require.NoError(t, d.Rebuild(context.Background()))
	for _, slab := range d.allocator.Slabs() {
		require.True(t, slab.IsUnrecovered())
	}
}

func TestWriteRejectsWrongSizedData(t *testing.T) {
	d := newTestDevice(t)
	require.Error(t, d.Write(0, make([]byte, 100)))
}

func TestLoadReopensExistingVolume(t *testing.T) {
	provider := storageprovider.NewMem()
	cfg := testConfig(t, "V0 /dev/vdotest 4096 4096 16 100")
	d, err := Format("vol0", cfg, Options{Provider: provider})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	reopened, err := Load("vol0", cfg, Options{Provider: provider})
	require.NoError(t, err)
	defer reopened.Close()
	for _, slab := range reopened.allocator.Slabs() {
		require.True(t, slab.IsUnrecovered())
	}
}
