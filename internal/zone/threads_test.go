package zone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThreadConfigValidateRejectsPartialZoning(t *testing.T) {
	cfg := ThreadConfig{LogicalZoneCount: 2, PhysicalZoneCount: 0, HashZoneCount: 1, BioThreadCount: 1}
	require.Error(t, cfg.Validate())
}

func TestThreadConfigValidateAllowsAllZeroOrAllNonzero(t *testing.T) {
	require.NoError(t, ThreadConfig{BioThreadCount: 1}.Validate())
	require.NoError(t, ThreadConfig{
		LogicalZoneCount: 2, PhysicalZoneCount: 3, HashZoneCount: 1, BioThreadCount: 1,
	}.Validate())
}

func TestThreadConfigEffectiveCountsResolveSharedShorthand(t *testing.T) {
	cfg := ThreadConfig{BioThreadCount: 1}
	require.True(t, cfg.Shared())
	require.Equal(t, 1, cfg.EffectiveLogicalZones())
	require.Equal(t, 1, cfg.EffectivePhysicalZones())
	require.Equal(t, 1, cfg.EffectiveHashZones())
}
