package instanceset_test

import (
	"testing"

	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/drpcorg/regiontree/instanceset"
	"github.com/stretchr/testify/require"
)

func TestAddGetInlineAndOverflow(t *testing.T) {
	s := instanceset.New()
	require.Equal(t, 0, s.Len())

	s.Add(instanceset.InstanceRef{Manager: 1, Valid: fieldmask.Of(0)})
	s.Add(instanceset.InstanceRef{Manager: 2, Valid: fieldmask.Of(1)})
	require.Equal(t, 2, s.Len())

	r0, ok := s.Get(0)
	require.True(t, ok)
	require.EqualValues(t, 1, r0.Manager)

	r1, ok := s.Get(1)
	require.True(t, ok)
	require.EqualValues(t, 2, r1.Manager)

	_, ok = s.Get(2)
	require.False(t, ok)
}

func TestCloneCopyOnWrite(t *testing.T) {
	s := instanceset.New()
	s.Add(instanceset.InstanceRef{Manager: 1, Valid: fieldmask.Of(0)})

	clone := s.Clone()
	clone.Add(instanceset.InstanceRef{Manager: 2, Valid: fieldmask.Of(1)})

	require.Equal(t, 1, s.Len())
	require.Equal(t, 2, clone.Len())
}

func TestByField(t *testing.T) {
	s := instanceset.New()
	s.Add(instanceset.InstanceRef{Manager: 1, Valid: fieldmask.Of(0, 1)})
	s.Add(instanceset.InstanceRef{Manager: 2, Valid: fieldmask.Of(5)})

	matches := s.ByField(fieldmask.Of(1))
	require.Len(t, matches, 1)
	require.EqualValues(t, 1, matches[0].Manager)
}

func TestRemove(t *testing.T) {
	s := instanceset.New()
	s.Add(instanceset.InstanceRef{Manager: 1, Valid: fieldmask.Of(0)})
	s.Add(instanceset.InstanceRef{Manager: 2, Valid: fieldmask.Of(1)})
	s.Add(instanceset.InstanceRef{Manager: 3, Valid: fieldmask.Of(2)})

	s.Remove(2)
	require.Equal(t, 2, s.Len())
	for _, r := range s.All() {
		require.NotEqualValues(t, 2, r.Manager)
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	s := instanceset.New()
	s.Add(instanceset.InstanceRef{Manager: 1, Valid: fieldmask.Of(0, 3)})
	s.Add(instanceset.InstanceRef{Manager: 2, Valid: fieldmask.Of(70)})

	packed := s.Pack()
	unpacked, rest, ok := instanceset.Unpack(packed)
	require.True(t, ok)
	require.Empty(t, rest)
	require.Equal(t, s.Len(), unpacked.Len())

	for i, r := range s.All() {
		got, ok := unpacked.Get(instanceset.Index(i))
		require.True(t, ok)
		require.Equal(t, r.Manager, got.Manager)
		require.True(t, fieldmask.Equal(r.Valid, got.Valid))
	}
}
