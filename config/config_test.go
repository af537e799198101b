package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMinimalLine(t *testing.T) {
	cfg, err := Parse("V0 /dev/sdb 1048576 4096 16 100")
	require.NoError(t, err)
	require.Equal(t, 0, cfg.Version)
	require.Equal(t, "/dev/sdb", cfg.ParentDevice)
	require.Equal(t, uint64(1048576), cfg.PhysicalBlocks)
	require.Equal(t, 4096, cfg.LogicalBlockSize)
	require.Equal(t, uint64(16), cfg.CacheSize)
	require.Equal(t, uint32(100), cfg.BlockMapMaximumAge)
	require.True(t, cfg.Deduplication)
}

func TestParseTrailingDotIsNoOptions(t *testing.T) {
	cfg, err := Parse("V0 /dev/sdb 1048576 512 16 100 .")
	require.NoError(t, err)
	require.Equal(t, 512, cfg.LogicalBlockSize)
}

func TestParseOptionalPairs(t *testing.T) {
	cfg, err := Parse("V2 /dev/sdb 1048576 4096 16 100 maxDiscard=4096 deduplication=off cpu=2 ack=1 bio=4 bioRotationInterval=64 logical=2 physical=2 hash=1")
	require.NoError(t, err)
	require.Equal(t, uint32(4096), cfg.MaxDiscard)
	require.False(t, cfg.Deduplication)
	require.Equal(t, 2, cfg.CPUThreads)
	require.Equal(t, 1, cfg.AckThreads)
	require.Equal(t, 4, cfg.BioThreads)
	require.Equal(t, 64, cfg.BioRotation)
	require.Equal(t, 2, cfg.LogicalZones)
	require.Equal(t, 2, cfg.PhysicalZones)
	require.Equal(t, 1, cfg.HashZones)
}

func TestParseRejectsTooFewFields(t *testing.T) {
	_, err := Parse("V0 /dev/sdb 1048576")
	require.Error(t, err)
}

func TestParseRejectsBadLogicalBlockSize(t *testing.T) {
	_, err := Parse("V0 /dev/sdb 1048576 1024 16 100")
	require.Error(t, err)
}

func TestParseRejectsUnknownKey(t *testing.T) {
	_, err := Parse("V0 /dev/sdb 1048576 4096 16 100 bogus=1")
	require.Error(t, err)
}

func TestParseRejectsMalformedPair(t *testing.T) {
	_, err := Parse("V0 /dev/sdb 1048576 4096 16 100 bogus")
	require.Error(t, err)
}

func TestParseRejectsOutOfRangeMaxDiscard(t *testing.T) {
	_, err := Parse("V0 /dev/sdb 1048576 4096 16 100 maxDiscard=0")
	require.Error(t, err)
}

func TestParseRejectsPartialZoning(t *testing.T) {
	_, err := Parse("V0 /dev/sdb 1048576 4096 16 100 logical=2")
	require.Error(t, err)
}

func TestParseAllowsAllZeroZoning(t *testing.T) {
	cfg, err := Parse("V0 /dev/sdb 1048576 4096 16 100 logical=0 physical=0 hash=0")
	require.NoError(t, err)
	require.Equal(t, 0, cfg.LogicalZones)
}

func TestThreadConfigReflectsParsedZones(t *testing.T) {
	cfg, err := Parse("V0 /dev/sdb 1048576 4096 16 100 logical=3 physical=2 hash=1 bio=2")
	require.NoError(t, err)
	tc := cfg.ThreadConfig()
	require.Equal(t, 3, tc.LogicalZoneCount)
	require.Equal(t, 2, tc.PhysicalZoneCount)
	require.Equal(t, 1, tc.HashZoneCount)
	require.Equal(t, 2, tc.BioThreadCount)
}
