package fieldmask_test

import (
	"testing"

	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/stretchr/testify/require"
)

func TestAlgebra(t *testing.T) {
	a := fieldmask.Of(0, 3, 5)
	b := fieldmask.Of(3, 5, 70)
	c := fieldmask.Of(5, 70)

	lhs := fieldmask.Intersect(fieldmask.Union(a, b), c)
	rhs := fieldmask.Union(fieldmask.Intersect(a, c), fieldmask.Intersect(b, c))
	require.True(t, fieldmask.Equal(lhs, rhs))

	diff := fieldmask.Difference(a, b)
	require.True(t, fieldmask.Equal(diff, fieldmask.Intersect(a, fieldmask.Difference(fieldmask.Of(0, 1, 2, 3, 4, 5, 6), b))))

	require.True(t, a.And(a).Equals(a))
	require.False(t, a.And(a).IsEmpty())
}

func TestSetClearIsSet(t *testing.T) {
	var m fieldmask.FieldMask
	require.True(t, m.IsEmpty())
	m.Set(17)
	require.True(t, m.IsSet(17))
	require.False(t, m.IsSet(16))
	m.Clear(17)
	require.True(t, m.IsEmpty())
}

func TestDisjointOverlaps(t *testing.T) {
	a := fieldmask.Of(0, 1, 2)
	b := fieldmask.Of(3, 4)
	require.True(t, fieldmask.Disjoint(a, b))
	require.False(t, fieldmask.Overlaps(a, b))

	c := fieldmask.Of(2, 9)
	require.False(t, fieldmask.Disjoint(a, c))
	require.True(t, fieldmask.Overlaps(a, c))
}

func TestPackUnpackRoundTrip(t *testing.T) {
	m := fieldmask.Of(1, 64, 130, 4000)
	packed := m.Pack()
	unpacked, rest, ok := fieldmask.Unpack(packed)
	require.True(t, ok)
	require.Empty(t, rest)
	require.True(t, fieldmask.Equal(m, unpacked))
}

func TestCountAndFields(t *testing.T) {
	m := fieldmask.Of(2, 5, 9)
	require.Equal(t, 3, m.Count())
	require.Equal(t, []fieldmask.FieldID{2, 5, 9}, m.Fields())
}

func TestCloneIndependence(t *testing.T) {
	m := fieldmask.Of(1, 2)
	c := m.Clone()
	c.Set(99)
	require.False(t, m.IsSet(99))
	require.True(t, c.IsSet(99))
}
