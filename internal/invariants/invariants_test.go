package invariants

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeSubClampsOnUnderflowOutsideInvariantBuilds(t *testing.T) {
	if Enabled {
		t.Skip("this test exercises the non-invariant underflow behavior")
	}
	require.Equal(t, uint64(0), SafeSub(uint64(0), uint64(1)))
	require.Equal(t, uint64(3), SafeSub(uint64(5), uint64(2)))
}

func TestSometimesIsAlwaysFalseOutsideInvariantBuilds(t *testing.T) {
	if Enabled {
		t.Skip("this test exercises the non-invariant Sometimes behavior")
	}
	for i := 0; i < 100; i++ {
		require.False(t, Sometimes(100))
	}
}
