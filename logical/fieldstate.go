package logical

import (
	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/drpcorg/regiontree/forest"
)

// OpenState is one of the ten enumerated states a FieldState can be in
// (spec.md §3).
type OpenState int

const (
	NotOpen OpenState = iota
	OpenReadOnly
	OpenReadWrite
	OpenSingleReduce
	OpenMultiReduce
	OpenReadOnlyProj
	OpenReadWriteProj
	OpenReadWriteProjDisjointShallow
	OpenReduceProj
	OpenReduceProjDirty
)

func (s OpenState) String() string {
	switch s {
	case NotOpen:
		return "NotOpen"
	case OpenReadOnly:
		return "OpenReadOnly"
	case OpenReadWrite:
		return "OpenReadWrite"
	case OpenSingleReduce:
		return "OpenSingleReduce"
	case OpenMultiReduce:
		return "OpenMultiReduce"
	case OpenReadOnlyProj:
		return "OpenReadOnlyProj"
	case OpenReadWriteProj:
		return "OpenReadWriteProj"
	case OpenReadWriteProjDisjointShallow:
		return "OpenReadWriteProjDisjointShallow"
	case OpenReduceProj:
		return "OpenReduceProj"
	case OpenReduceProjDirty:
		return "OpenReduceProjDirty"
	default:
		return "Unknown"
	}
}

func (s OpenState) isProjection() bool {
	return s == OpenReadOnlyProj || s == OpenReadWriteProj || s == OpenReadWriteProjDisjointShallow ||
		s == OpenReduceProj || s == OpenReduceProjDirty
}

// RebuildTimeoutReset is the value rebuild_timeout resets to whenever a
// close actually happens on that FieldState (resolves the §9 Open
// Question on the decrement/reset schedule: decrement once per
// analysis step the FieldState survives without a close; reset here).
const RebuildTimeoutReset = 8

// FieldState summarizes how a node's children are open for a sub-mask
// of fields (spec.md §3).
type FieldState struct {
	ValidFields fieldmask.FieldMask
	OpenState   OpenState
	Redop       int32

	Projection     *Projection
	OpenChildren   map[forest.Color]fieldmask.FieldMask
	RebuildTimeout int
}

func newFieldState(mask fieldmask.FieldMask, state OpenState, redop int32, proj *Projection) *FieldState {
	return &FieldState{
		ValidFields:    mask.Clone(),
		OpenState:      state,
		Redop:          redop,
		Projection:     proj,
		OpenChildren:   make(map[forest.Color]fieldmask.FieldMask),
		RebuildTimeout: RebuildTimeoutReset,
	}
}

// mergeableWith implements the tie-break rule: FieldStates merge when
// they share open_state, redop, and projection identity/space (spec.md
// §4.1 "Tie-breaks and edge cases").
func (fs *FieldState) mergeableWith(other *FieldState) bool {
	if fs.OpenState != other.OpenState || fs.Redop != other.Redop {
		return false
	}
	switch {
	case fs.Projection == nil && other.Projection == nil:
		return true
	case fs.Projection == nil || other.Projection == nil:
		return false
	default:
		return fs.Projection.FnID == other.Projection.FnID && fs.Projection.Domain.Equal(other.Projection.Domain)
	}
}

func (fs *FieldState) mergeFrom(other *FieldState) {
	fs.ValidFields = fieldmask.Union(fs.ValidFields, other.ValidFields)
	for c, m := range other.OpenChildren {
		fs.OpenChildren[c] = fieldmask.Union(fs.OpenChildren[c], m)
	}
}

func (fs *FieldState) openChild(c forest.Color, mask fieldmask.FieldMask) {
	fs.OpenChildren[c] = fieldmask.Union(fs.OpenChildren[c], mask)
	fs.ValidFields = fieldmask.Union(fs.ValidFields, mask)
}

// degradeToReadWrite clears fs's redop (to NoRedop) and moves it to OpenReadWrite —
// the §4.1 rule for a disjoint partition where redop aliasing let
// reductions coexist across children: "the merged FieldState's redop is
// zeroed and the state degrades to OpenReadWrite."
func (fs *FieldState) degradeToReadWrite() {
	fs.Redop = NoRedop
	fs.OpenState = OpenReadWrite
}

// ProjectionEpoch is a monotonically advancing epoch id per field,
// used to collapse structurally-identical projection launches without
// replaying full dependence analysis (spec.md §2 item 3, GLOSSARY).
type ProjectionEpoch struct {
	Epoch       uint64
	ValidFields fieldmask.FieldMask
	FnID        ProjectionID
}
