package analyzer_test

import (
	"testing"

	"github.com/drpcorg/regiontree/analyzer"
	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/drpcorg/regiontree/forest"
	"github.com/drpcorg/regiontree/instanceset"
	"github.com/drpcorg/regiontree/logical"
	"github.com/drpcorg/regiontree/opref"
	"github.com/drpcorg/regiontree/restrict"
	"github.com/drpcorg/regiontree/version"
	"github.com/stretchr/testify/require"
)

type fakeOp struct {
	id   opref.OpID
	gen  opref.Generation
	name string
	deps map[opref.OpID]bool
}

func newFakeOp(id opref.OpID, name string) *fakeOp {
	return &fakeOp{id: id, name: name, deps: make(map[opref.OpID]bool)}
}

func (f *fakeOp) RegisterDependence(prior opref.Operation, priorGen opref.Generation) bool {
	if prior.Generation() != priorGen {
		return false
	}
	f.deps[prior.UniqueID()] = true
	return true
}
func (f *fakeOp) Generation() opref.Generation { return f.gen }
func (f *fakeOp) UniqueID() opref.OpID         { return f.id }
func (f *fakeOp) TaskName() string             { return f.name }
func (f *fakeOp) DependsOn(id opref.OpID) bool { return f.deps[id] }

const ctx analyzer.ContextID = 1

func newEngine() *analyzer.Engine {
	return analyzer.NewEngine(0, 1, nil)
}

// TestAnalyzeVersionSingleSpaceOwnerComputesRoot exercises analyze_version
// end to end on a single-space deployment: the root's VersionManager is
// its own owner, computes with no parent, and yields one covering
// EquivalenceSet.
func TestAnalyzeVersionSingleSpaceOwnerComputesRoot(t *testing.T) {
	f := forest.New()
	r := f.NewRoot()
	e := newEngine()

	info := version.NewVersionInfo()
	mask := fieldmask.Of(0)
	ready, applied := e.AnalyzeVersion(ctx, r, version.Shared, mask, info)

	require.Len(t, ready, 1)
	require.Len(t, applied, 1)
	ready[0].Wait()
	for _, a := range applied {
		a.Fire()
	}
	require.Len(t, info.EquivalenceSets(), 1)
}

// TestAnalyzeVersionChildInheritsFromParent checks that a child node's
// manager computes by intersecting/splitting the parent's sets, per
// §4.3, rather than starting from scratch.
func TestAnalyzeVersionChildInheritsFromParent(t *testing.T) {
	f := forest.New()
	root := f.NewRoot()
	part := f.NewPartition(root, true)
	child := f.NewChild(part, 0)

	e := newEngine()
	info := version.NewVersionInfo()
	mask := fieldmask.Of(0)

	ready, applied := e.AnalyzeVersion(ctx, child, version.Shared, mask, info)
	for _, r := range ready {
		r.Wait()
	}
	for _, a := range applied {
		a.Fire()
	}
	require.NotEmpty(t, info.EquivalenceSets())
	require.Equal(t, child.ID(), info.EquivalenceSets()[0].Expression.ID())
}

// TestAnalyzeLogicalWriteThenReadDependsAndCloses mirrors the unit-level
// logical test but driven through the facade, confirming the wiring
// between Engine.AnalyzeLogical and the underlying logical.Analyzer.
func TestAnalyzeLogicalWriteThenReadDependsAndCloses(t *testing.T) {
	f := forest.New()
	r := f.NewRoot()
	part := f.NewPartition(r, true)
	_ = f.NewChild(part, 0)
	_ = f.NewChild(part, 1)

	e := newEngine()
	opA := newFakeOp(1, "A")
	opB := newFakeOp(2, "B")
	mask := fieldmask.Of(0)

	userA := logical.NewLogicalUser(opA, 0, logical.Usage{Privilege: logical.ReadWrite, RedopID: logical.NoRedop}, mask)
	closeA := e.AnalyzeLogical(ctx, r, userA, logical.AccessContext{IsLeaf: false, Child: 0, Disjoint: true})
	require.Nil(t, closeA)

	userB := logical.NewLogicalUser(opB, 0, logical.Usage{Privilege: logical.ReadOnly, RedopID: logical.NoRedop}, mask)
	closeB := e.AnalyzeLogical(ctx, r, userB, logical.AccessContext{IsLeaf: true})

	require.NotNil(t, closeB)
	require.True(t, opB.DependsOn(closeB.AsLogicalUser().Op.UniqueID()))
}

// TestInvalidateAllTearsDownVersionManager exercises invalidate_context
// end to end: invalidating a context's logical state must also drop its
// VersionManager (via the VersioningInvalidationHook wiring), so a
// subsequent analyze_version recomputes from scratch rather than
// returning stale equivalence sets.
func TestInvalidateAllTearsDownVersionManager(t *testing.T) {
	f := forest.New()
	r := f.NewRoot()
	e := newEngine()

	info1 := version.NewVersionInfo()
	mask := fieldmask.Of(0)
	ready, applied := e.AnalyzeVersion(ctx, r, version.Shared, mask, info1)
	for _, rv := range ready {
		rv.Wait()
	}
	for _, a := range applied {
		a.Fire()
	}
	firstSets := info1.EquivalenceSets()
	require.Len(t, firstSets, 1)

	e.InvalidateAll(ctx)

	info2 := version.NewVersionInfo()
	ready2, applied2 := e.AnalyzeVersion(ctx, r, version.Shared, mask, info2)
	for _, rv := range ready2 {
		rv.Wait()
	}
	for _, a := range applied2 {
		a.Fire()
	}
	secondSets := info2.EquivalenceSets()
	require.Len(t, secondSets, 1)
	require.NotEqual(t, firstSets[0].DID, secondSets[0].DID)
}

// TestRestrictionAttachAcquireReleaseDetach exercises the §4.2
// acquisition nesting cycle (S5) end to end through the facade.
func TestRestrictionAttachAcquireReleaseDetach(t *testing.T) {
	f := forest.New()
	r := f.NewRoot()
	e := newEngine()
	op := newFakeOp(1, "A")
	tree := restrict.RegionTreeID(1)
	mask := fieldmask.Of(0, 1)

	require.NoError(t, e.RecordAttach(ctx, tree, op, r, instanceset.ManagerHandle(7), mask))

	info := e.FindRestrictions(ctx, tree, r, mask)
	require.True(t, fieldmask.Equal(mask, info.Fields))
	require.Contains(t, info.Managers, instanceset.ManagerHandle(7))

	require.NoError(t, e.RecordAcquire(ctx, tree, op, r, mask))
	acquired := e.FindRestrictions(ctx, tree, r, mask)
	require.True(t, acquired.Fields.IsEmpty())

	require.NoError(t, e.RecordRelease(ctx, tree, op, r, mask))
	released := e.FindRestrictions(ctx, tree, r, mask)
	require.True(t, fieldmask.Equal(mask, released.Fields))

	require.NoError(t, e.RecordDetach(ctx, tree, op, r, mask))
	require.True(t, e.FindRestrictions(ctx, tree, r, mask).Fields.IsEmpty())
}

// TestRestrictionInterferingAttachFails covers the InterferingRestriction
// error path of §4.2/§7 through the facade.
func TestRestrictionInterferingAttachFails(t *testing.T) {
	f := forest.New()
	r := f.NewRoot()
	e := newEngine()
	op := newFakeOp(1, "A")
	tree := restrict.RegionTreeID(1)
	mask := fieldmask.Of(0)

	require.NoError(t, e.RecordAttach(ctx, tree, op, r, instanceset.ManagerHandle(1), mask))
	err := e.RecordAttach(ctx, tree, op, r, instanceset.ManagerHandle(2), mask)
	require.Error(t, err)
}
