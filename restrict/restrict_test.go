package restrict_test

import (
	"testing"

	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/drpcorg/regiontree/forest"
	"github.com/drpcorg/regiontree/instanceset"
	"github.com/drpcorg/regiontree/opref"
	"github.com/drpcorg/regiontree/restrict"
	"github.com/stretchr/testify/require"
)

type fakeOp struct {
	id   opref.OpID
	gen  opref.Generation
	name string
}

func (f *fakeOp) RegisterDependence(opref.Operation, opref.Generation) bool { return true }
func (f *fakeOp) Generation() opref.Generation                              { return f.gen }
func (f *fakeOp) UniqueID() opref.OpID                                      { return f.id }
func (f *fakeOp) TaskName() string                                          { return f.name }

const ctx restrict.ContextID = 1
const tree restrict.RegionTreeID = 1

func TestNestingRoundTrip(t *testing.T) {
	f := forest.New()
	r := f.NewRoot()
	op := &fakeOp{id: 1, name: "t"}
	tr := restrict.NewTracker()

	fields := fieldmask.Of(0)
	require.NoError(t, tr.RecordAttach(ctx, tree, op, r, 42, fields))
	require.NoError(t, tr.RecordAcquire(ctx, tree, op, r, fields))
	require.NoError(t, tr.RecordRelease(ctx, tree, op, r, fields))
	require.NoError(t, tr.RecordDetach(ctx, tree, op, r, fields))

	require.True(t, tr.IsEmpty(ctx, tree))
}

func TestAcquireReleaseRestoresManager(t *testing.T) {
	f := forest.New()
	r := f.NewRoot()
	op := &fakeOp{id: 1, name: "t"}
	tr := restrict.NewTracker()

	fields := fieldmask.Of(0)
	require.NoError(t, tr.RecordAttach(ctx, tree, op, r, 99, fields))

	info := tr.FindRestrictions(ctx, tree, r, fields)
	require.True(t, fieldmask.Equal(info.Fields, fields))
	require.Equal(t, []instanceset.ManagerHandle{99}, info.Managers)

	require.NoError(t, tr.RecordAcquire(ctx, tree, op, r, fields))
	info = tr.FindRestrictions(ctx, tree, r, fields)
	require.True(t, info.Fields.IsEmpty())

	require.NoError(t, tr.RecordRelease(ctx, tree, op, r, fields))
	info = tr.FindRestrictions(ctx, tree, r, fields)
	require.True(t, fieldmask.Equal(info.Fields, fields))
	require.Equal(t, []instanceset.ManagerHandle{99}, info.Managers)
}

func TestInterferingRestrictionSameNodeOverlap(t *testing.T) {
	f := forest.New()
	r := f.NewRoot()
	op := &fakeOp{id: 1, name: "t"}
	tr := restrict.NewTracker()

	fields := fieldmask.Of(0)
	require.NoError(t, tr.RecordAttach(ctx, tree, op, r, 1, fields))
	err := tr.RecordAttach(ctx, tree, op, r, 2, fields)
	require.Error(t, err)
}

func TestPartialAcquireRejected(t *testing.T) {
	f := forest.New()
	r := f.NewRoot()
	op := &fakeOp{id: 1, name: "t"}
	tr := restrict.NewTracker()

	fields := fieldmask.Of(0, 1)
	require.NoError(t, tr.RecordAttach(ctx, tree, op, r, 1, fields))
	err := tr.RecordAcquire(ctx, tree, op, r, fieldmask.Of(0))
	require.Error(t, err)
}

func TestInterferingAcquireRejected(t *testing.T) {
	f := forest.New()
	r := f.NewRoot()
	op := &fakeOp{id: 1, name: "t"}
	tr := restrict.NewTracker()

	fields := fieldmask.Of(0)
	require.NoError(t, tr.RecordAttach(ctx, tree, op, r, 1, fields))
	require.NoError(t, tr.RecordAcquire(ctx, tree, op, r, fields))
	err := tr.RecordAcquire(ctx, tree, op, r, fields)
	require.Error(t, err)
}
