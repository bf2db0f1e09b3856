// Package logical implements the logical dependence analyzer of
// spec.md §4.1, §4.4, §4.5: the per-(node, context) state machine that
// decides which prior operations a new region requirement must wait
// for, and when a sub-tree needs to be closed before a broader access
// can proceed. Grounded on protocol/net.go's per-key xsync.MapOf
// registry for the (node, context) -> *LogicalState lookup, and on the
// teacher's flat sentinel/struct style throughout.
package logical

import "github.com/drpcorg/regiontree/fieldmask"

// Privilege is the access mode half of a Usage (spec.md §3).
type Privilege int

const (
	NoAccess Privilege = iota
	ReadOnly
	ReadWrite
	WriteDiscard
	Reduce
)

func (p Privilege) String() string {
	switch p {
	case NoAccess:
		return "NoAccess"
	case ReadOnly:
		return "ReadOnly"
	case ReadWrite:
		return "ReadWrite"
	case WriteDiscard:
		return "WriteDiscard"
	case Reduce:
		return "Reduce"
	default:
		return "Unknown"
	}
}

// NoRedop marks a Usage as not a reduction.
const NoRedop int32 = -1

// Usage is `(privilege, exclusivity, redop)` (spec.md §3). Exclusive
// distinguishes a usage that must not interleave with any concurrent
// access to the same instance. The analyzer sets it only on close-op
// usages, and Conflicts does not consult it.
type Usage struct {
	Privilege Privilege
	Exclusive bool
	RedopID   int32 // NoRedop unless Privilege == Reduce.
}

// IsWrite reports whether this usage mutates its target.
func (u Usage) IsWrite() bool {
	switch u.Privilege {
	case ReadWrite, WriteDiscard, Reduce:
		return true
	default:
		return false
	}
}

// Conflicts implements the §4.1 conflict test between two usages
// already known to overlap on fields: both read-only never conflicts;
// same nonzero redop on both sides never conflicts (the reductions
// commute); everything else is a true dependency, anti-dependencies
// and write-after-read included (the analyzer does not distinguish
// edge kinds beyond "must-wait").
func Conflicts(a, b Usage) bool {
	if a.Privilege == ReadOnly && b.Privilege == ReadOnly {
		return false
	}
	if a.Privilege == Reduce && b.Privilege == Reduce && a.RedopID == b.RedopID {
		return false
	}
	return true
}

// GenericUser is `(usage, field_mask)` (spec.md §3).
type GenericUser struct {
	Usage Usage
	Mask  fieldmask.FieldMask
}

// ProjectionID identifies a projection function by the caller's own
// notion of identity (e.g. a function pointer or a registered index);
// the analyzer only ever compares ProjectionIDs for equality.
type ProjectionID uint64

// LaunchDomain is the index-launch domain a projection ranges over.
// Represented as an inclusive integer interval [Lo, Hi], the shape
// every example in spec.md §8 (`[0,7]`, `[0,3]`) actually uses.
type LaunchDomain struct {
	Lo, Hi int
}

// Dominates reports whether d contains every point of other.
func (d LaunchDomain) Dominates(other LaunchDomain) bool {
	return d.Lo <= other.Lo && other.Hi <= d.Hi
}

func (d LaunchDomain) Equal(other LaunchDomain) bool {
	return d.Lo == other.Lo && d.Hi == other.Hi
}

// Projection describes the projection function and launch domain
// carried by a region requirement that uses index-space projection
// (spec.md §4.1 "Projection states").
type Projection struct {
	FnID ProjectionID
	Domain LaunchDomain
	// DisjointShallow marks a depth-zero projection onto a disjoint
	// partition where every launch point maps to a unique disjoint
	// child — the condition that selects OpenReadWriteProjDisjointShallow.
	DisjointShallow bool
}
