package opref_test

import (
	"testing"

	"github.com/drpcorg/regiontree/opref"
	"github.com/stretchr/testify/require"
)

func TestRefCountedReleasesAtZero(t *testing.T) {
	released := 0
	r := opref.NewRefCounted("value", opref.RefNormal, func(string) { released++ })
	clone := r.Clone(opref.RefNormal)
	require.EqualValues(t, 2, r.Live())

	r.Release()
	require.Equal(t, 0, released)
	clone.Release()
	require.Equal(t, 1, released)
}

func TestLastSourceRefExcludedFromLiveness(t *testing.T) {
	released := 0
	r := opref.NewRefCounted("value", opref.RefNormal, func(string) { released++ })
	lastSource := r.Clone(opref.RefLastSource)

	require.EqualValues(t, 1, r.Live())
	lastSource.Release() // no-op: doesn't participate in liveness
	require.Equal(t, 0, released)

	r.Release()
	require.Equal(t, 1, released)
}

func TestReleaseIsIdempotent(t *testing.T) {
	released := 0
	r := opref.NewRefCounted(1, opref.RefNormal, func(int) { released++ })
	r.Release()
	r.Release()
	require.Equal(t, 1, released)
}
