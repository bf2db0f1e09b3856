package logical

import (
	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/drpcorg/regiontree/instanceset"
	"github.com/drpcorg/regiontree/opref"
)

// DefaultTimeout is the number of epoch-filter passes a LogicalUser
// survives in the current-epoch list before it is pushed to previous
// (spec.md §3, §5: "not a wall-clock timeout").
const DefaultTimeout = 1

// LogicalUser is `GenericUser ⊕ (op_handle, op_generation, req_index,
// timeout)` (spec.md §3).
type LogicalUser struct {
	GenericUser
	Op       opref.Operation
	OpGen    opref.Generation
	ReqIndex int
	Timeout  int

	// Projection is non-nil when this requirement was issued through an
	// index-space projection (spec.md §4.1 "Projection states").
	Projection *Projection
}

// NewLogicalUser builds a LogicalUser snapshotting op's current
// generation.
func NewLogicalUser(op opref.Operation, reqIndex int, usage Usage, mask fieldmask.FieldMask) *LogicalUser {
	return &LogicalUser{
		GenericUser: GenericUser{Usage: usage, Mask: mask},
		Op:          op,
		OpGen:       op.Generation(),
		ReqIndex:    reqIndex,
		Timeout:     DefaultTimeout,
	}
}

// Stale reports whether op has moved past the generation this user was
// recorded against (a recycled operation slot, spec.md §3).
func (u *LogicalUser) Stale() bool {
	return u.Op.Generation() != u.OpGen
}

// PhysicalUser is the physical-stage counterpart of LogicalUser: a
// GenericUser bound to the InstanceSet the mapper chose, handed to the
// versioning layer once logical analysis completes (spec.md §2 item 2).
type PhysicalUser struct {
	GenericUser
	Op        opref.Operation
	Instances *instanceset.InstanceSet
}
