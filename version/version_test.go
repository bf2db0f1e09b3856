package version_test

import (
	"testing"

	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/drpcorg/regiontree/forest"
	"github.com/drpcorg/regiontree/runtimeevt"
	"github.com/drpcorg/regiontree/version"
	"github.com/stretchr/testify/require"
)

func TestAssignOwnerDeterministic(t *testing.T) {
	a := version.AssignOwner(1, 7, 4)
	b := version.AssignOwner(1, 7, 4)
	require.Equal(t, a, b)
}

func TestAssignOwnerZeroSpaces(t *testing.T) {
	require.Equal(t, runtimeevt.AddressSpace(0), version.AssignOwner(1, 7, 0))
}

func TestVersionManagerOwnerComputesFromParent(t *testing.T) {
	f := forest.New()
	root := f.NewRoot()
	part := f.NewPartition(root, false)
	reg := f.NewChild(part, 0)

	parent := version.NewVersionManager(1, root, 0, 0, nil)
	parentEvt := parent.PerformVersioningAnalysis(nil)
	parentEvt.Wait()
	require.Equal(t, version.Ready, parent.CurrentState())
	require.Len(t, parent.Sets(), 1)

	vm := version.NewVersionManager(1, reg, 0, 0, nil)
	evt := vm.PerformVersioningAnalysis(parent)
	evt.Wait()
	require.Equal(t, version.Ready, vm.CurrentState())
	require.NotEmpty(t, vm.Sets())
	require.True(t, vm.HasEquivalenceSets())
}

func TestVersionManagerConcurrentCallersShareEvent(t *testing.T) {
	f := forest.New()
	root := f.NewRoot()
	vm := version.NewVersionManager(1, root, 0, 0, nil)

	e1 := vm.PerformVersioningAnalysis(nil)
	e2 := vm.PerformVersioningAnalysis(nil)
	require.Same(t, e1, e2)
	e1.Wait()
	require.Equal(t, version.Ready, vm.CurrentState())
}

func TestVersionManagerReadyIsIdempotent(t *testing.T) {
	f := forest.New()
	root := f.NewRoot()
	vm := version.NewVersionManager(1, root, 0, 0, nil)
	vm.PerformVersioningAnalysis(nil).Wait()

	evt := vm.PerformVersioningAnalysis(nil)
	require.True(t, evt.Ready())
}

func TestVersionManagerNonOwnerRequestsRemoteAndBecomesReady(t *testing.T) {
	f := forest.New()
	root := f.NewRoot()
	rt := runtimeevt.NewLocalRuntime(0)
	vm := version.NewVersionManager(1, root, 0, 1, rt)

	evt := vm.PerformVersioningAnalysis(nil)
	evt.Wait()
	require.Equal(t, version.Ready, vm.CurrentState())
}

func TestHandleResponseResolvesDistributedIDs(t *testing.T) {
	f := forest.New()
	root := f.NewRoot()
	vm := version.NewVersionManager(1, root, 0, 1, nil)

	want := version.NewEquivalenceSet(root, nil)
	did := want.DID
	vm.HandleResponse(version.VersionManagerResponse{DIDs: []version.DistributedID{did}}, func(d version.DistributedID) *version.EquivalenceSet {
		if d == did {
			return want
		}
		return nil
	})

	require.Equal(t, version.Ready, vm.CurrentState())
	sets := vm.Sets()
	require.Len(t, sets, 1)
	require.Equal(t, want.DID, sets[0].DID)
}

func TestEquivalenceSetAcquireSharedDoesNotBlockReaders(t *testing.T) {
	f := forest.New()
	root := f.NewRoot()
	es := version.NewEquivalenceSet(root, nil)

	r1, a1 := es.Acquire(version.Shared)
	r2, a2 := es.Acquire(version.Shared)
	r1.Wait()
	r2.Wait()
	a1.Fire()
	a2.Fire()
}

func TestEquivalenceSetAcquireExclusiveSerializes(t *testing.T) {
	f := forest.New()
	root := f.NewRoot()
	es := version.NewEquivalenceSet(root, nil)

	r1, a1 := es.Acquire(version.Exclusive)
	r1.Wait()

	r2, _ := es.Acquire(version.Exclusive)
	require.False(t, r2.Ready())
	a1.Fire()
	r2.Wait()
}

func TestEquivalenceSetSplitPreservesCoverage(t *testing.T) {
	f := forest.New()
	root := f.NewRoot()
	part := f.NewPartition(root, false)
	sub := f.NewChild(part, 0)

	es := version.NewEquivalenceSet(root, nil)
	overlap, rest := es.Split(sub)
	require.Equal(t, sub.ID(), overlap.Expression.ID())
	require.Equal(t, root.ID(), rest.Expression.ID())
	require.NotEqual(t, overlap.DID, rest.DID)
}

func TestVersionInfoMakeReadyAndClear(t *testing.T) {
	f := forest.New()
	root := f.NewRoot()
	vi := version.NewVersionInfo()
	es := version.NewEquivalenceSet(root, nil)
	vi.RecordEquivalenceSet(es)

	ready, applied := vi.MakeReady(version.Shared, fieldmask.Of(0))
	require.Len(t, ready, 1)
	require.Len(t, applied, 1)
	ready[0].Wait()
	applied[0].Fire()

	require.Len(t, vi.EquivalenceSets(), 1)
	vi.Clear()
	require.Empty(t, vi.EquivalenceSets())
}

func TestWireVersionManagerRequestRoundTrip(t *testing.T) {
	req := version.VersionManagerRequest{RemoteManagerPtr: 7, ContextUID: 42, IsRegion: true, Handle: 99}
	enc := version.EncodeVersionManagerRequest(req)
	dec, ok := version.DecodeVersionManagerRequest(enc)
	require.True(t, ok)
	require.Equal(t, req, dec)
}

func TestWireVersionManagerResponseRoundTrip(t *testing.T) {
	resp := version.VersionManagerResponse{
		RemoteManagerPtr: 3,
		DIDs:             []version.DistributedID{version.NewDistributedID(), version.NewDistributedID()},
	}
	enc := version.EncodeVersionManagerResponse(resp)
	dec, ok := version.DecodeVersionManagerResponse(enc)
	require.True(t, ok)
	require.Equal(t, resp, dec)
}

func TestWireEquivalenceSetResponseRoundTrip(t *testing.T) {
	resp := version.EquivalenceSetResponse{DID: version.NewDistributedID(), Expression: []byte{1, 2, 3}}
	enc := version.EncodeEquivalenceSetResponse(resp)
	dec, ok := version.DecodeEquivalenceSetResponse(enc)
	require.True(t, ok)
	require.Equal(t, resp, dec)
}
