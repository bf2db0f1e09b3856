package logical

import (
	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/drpcorg/regiontree/forest"
	"github.com/drpcorg/regiontree/opref"
)

// ClosedUser is a prior user whose access is being subsumed by a close
// operation: it carries enough to let later operations depending on
// the close op reach back to what actually needs waiting on, should a
// caller want to inspect the close's provenance (spec.md §4.4).
type ClosedUser struct {
	User *LogicalUser
	Mask fieldmask.FieldMask
}

// CloseOp is the synthetic close operation built by LogicalCloser: a
// ReadWrite/Exclusive access over the closing sub-tree that stands in
// for every ClosedUser at the parent's current-epoch user list
// (spec.md §4.1 "Close operation emission", §4.4).
type CloseOp struct {
	Node        forest.Node
	Mask        fieldmask.FieldMask
	ClosedUsers []ClosedUser
	asUser      *LogicalUser
}

// closeSeq numbers synthetic close operations so each gets a distinct
// opref.OpID without a real Operation collaborator behind it.
var closeSeq uint64

// AsLogicalUser returns the CloseOp as the LogicalUser it registers
// itself as in the parent's current-epoch list. The close op carries
// its own synthetic Operation so RegisterDependence calls against it
// resolve normally.
func (c *CloseOp) AsLogicalUser() *LogicalUser {
	if c.asUser == nil {
		closeSeq++
		op := &syntheticCloseOperation{id: opref.OpID(closeSeq)}
		c.asUser = &LogicalUser{
			GenericUser: GenericUser{
				Usage: Usage{Privilege: ReadWrite, Exclusive: true, RedopID: NoRedop},
				Mask:  c.Mask,
			},
			Op:      op,
			OpGen:   op.Generation(),
			Timeout: DefaultTimeout,
		}
	}
	return c.asUser
}

// syntheticCloseOperation is the minimal opref.Operation a CloseOp
// needs to be recorded as a LogicalUser and depended upon; it never
// goes stale (close ops are single-shot, generation 0 forever) and
// accepts every dependence registration.
type syntheticCloseOperation struct {
	id opref.OpID
}

func (s *syntheticCloseOperation) RegisterDependence(opref.Operation, opref.Generation) bool { return true }
func (s *syntheticCloseOperation) Generation() opref.Generation                              { return 0 }
func (s *syntheticCloseOperation) UniqueID() opref.OpID                                      { return s.id }
func (s *syntheticCloseOperation) TaskName() string                                          { return "close" }

// LogicalCloser accumulates the close operations and their closed-user
// dependencies produced during a single analysis step at one node
// (spec.md §2 item 6, §4.1 "Close operation emission"). It is created
// fresh per AnalyzeLogical call; there is nothing to reuse across steps.
type LogicalCloser struct {
	Node  forest.Node
	Closes []*CloseOp
}

func newLogicalCloser(node forest.Node) *LogicalCloser {
	return &LogicalCloser{Node: node}
}

// EmitClose records a new CloseOp over mask, inheriting closedUsers,
// and registers a dependence from the close op onto each of them
// (spec.md §4.1: "records every prior user under the closed children
// as a closed-user... Dependencies of the incoming user U on the
// closed prior users are satisfied transitively through the close
// op").
func (lc *LogicalCloser) EmitClose(mask fieldmask.FieldMask, closedUsers []ClosedUser) *CloseOp {
	c := &CloseOp{Node: lc.Node, Mask: mask.Clone(), ClosedUsers: closedUsers}
	closeUser := c.AsLogicalUser()
	for _, cu := range closedUsers {
		closeUser.Op.RegisterDependence(cu.User.Op, cu.User.OpGen)
	}
	lc.Closes = append(lc.Closes, c)
	return c
}
