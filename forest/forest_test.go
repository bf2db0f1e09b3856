package forest_test

import (
	"testing"

	"github.com/drpcorg/regiontree/forest"
	"github.com/stretchr/testify/require"
)

func TestDisjointPartitionDominanceAndIntersection(t *testing.T) {
	f := forest.New()
	root := f.NewRoot()
	part := f.NewPartition(root, true)
	r0 := f.NewChild(part, 0)
	r1 := f.NewChild(part, 1)

	require.True(t, root.Dominates(r0))
	require.True(t, root.Dominates(r1))
	require.False(t, r0.Dominates(r1))
	require.False(t, r0.IntersectsWith(r1))
	require.True(t, root.IntersectsWith(r0))
	require.Equal(t, 2, r0.Depth())
	require.True(t, part.AreAllChildrenDisjoint())
}

func TestAliasedPartitionIntersects(t *testing.T) {
	f := forest.New()
	root := f.NewRoot()
	part := f.NewPartition(root, false)
	r0 := f.NewChild(part, 0)
	r1 := f.NewChild(part, 1)

	require.True(t, r0.IntersectsWith(r1))
}

func TestChildLookup(t *testing.T) {
	f := forest.New()
	root := f.NewRoot()
	part := f.NewPartition(root, true)
	r0 := f.NewChild(part, 7)

	got, ok := part.Child(7)
	require.True(t, ok)
	require.Equal(t, r0.ID(), got.ID())

	_, ok = part.Child(8)
	require.False(t, ok)
}
