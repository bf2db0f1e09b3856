// Package opref defines the Operation boundary interface the analyzer
// is driven against (§6 Outbound: register_dependence, get_generation,
// get_unique_op_id), plus the reference-counting handle used for every
// cross-component handle named in §9's Reference-counting note
// (PhysicalManager, EquivalenceSet, VersionState).
package opref

import "sync/atomic"

// OpID is an operation's stable unique identifier (op_unique_id in the
// error envelope and the wire format).
type OpID uint64

// Generation distinguishes recycled operation slots — a LogicalUser
// becomes stale once its operation's current generation exceeds the
// generation recorded at analysis time (spec.md §3).
type Generation uint64

// Operation is the external collaborator the analyzer calls into for
// everything it doesn't own: registering a dependence edge, reading
// the current generation, and reading the stable id (§6 Outbound).
type Operation interface {
	// RegisterDependence records that this operation must wait for
	// prior, which was valid as of priorGen. Returns whether the edge
	// was newly added (false if prior is stale or the edge already
	// existed).
	RegisterDependence(prior Operation, priorGen Generation) bool
	Generation() Generation
	UniqueID() OpID
	TaskName() string
}

// RefKind distinguishes which cross-component handles participate in
// liveness counting. This resolves the §9 Open Question on
// LastSourceRef: the original conditions reference addition on a
// compile-time constant kind; here RefLastSource is the concrete
// list of "reference sources [that] do not participate in liveness" —
// it exists only to give the producer of a value one more tick to
// finish writing before the consumer's reference would otherwise be
// the last one standing, so it must never be the ref that keeps an
// object alive.
type RefKind int

const (
	RefNormal RefKind = iota
	RefDeferred
	RefLastSource
)

// CountsTowardLiveness reports whether a reference of this kind should
// be counted when deciding whether an object is still in use.
func (k RefKind) CountsTowardLiveness() bool { return k != RefLastSource }

// Ref is a small owning handle around a reference-counted value T: it
// increments the shared counter on creation and Clone, and decrements
// on Release, the way §9 asks for ("encapsulating them in a small
// owning handle whose destructor decrements and drops") without
// requiring callers to manage raw inc/dec calls — adapted from the
// atomic-swap reference idiom the teacher uses for its counter values.
type Ref[T any] struct {
	value   T
	kind    RefKind
	count   *atomic.Int64
	onZero  func(T)
	released atomic.Bool
}

// NewRefCounted creates the first Ref to a value, with its own backing
// counter starting at 1. onZero, if non-nil, runs exactly once when
// the last live reference (by CountsTowardLiveness) is released.
func NewRefCounted[T any](value T, kind RefKind, onZero func(T)) *Ref[T] {
	r := &Ref[T]{value: value, kind: kind, count: new(atomic.Int64), onZero: onZero}
	if kind.CountsTowardLiveness() {
		r.count.Store(1)
	}
	return r
}

// Clone returns a new handle to the same value and counter, optionally
// with a different RefKind (e.g. taking a RefDeferred handle off a
// RefNormal one).
func (r *Ref[T]) Clone(kind RefKind) *Ref[T] {
	if kind.CountsTowardLiveness() {
		r.count.Add(1)
	}
	return &Ref[T]{value: r.value, kind: kind, count: r.count, onZero: r.onZero}
}

// Value returns the referenced value.
func (r *Ref[T]) Value() T { return r.value }

// Kind returns the handle's RefKind.
func (r *Ref[T]) Kind() RefKind { return r.kind }

// Release drops this handle's hold on the value. Safe to call at most
// meaningfully once; subsequent calls are no-ops.
func (r *Ref[T]) Release() {
	if !r.released.CompareAndSwap(false, true) {
		return
	}
	if !r.kind.CountsTowardLiveness() {
		return
	}
	if r.count.Add(-1) == 0 && r.onZero != nil {
		r.onZero(r.value)
	}
}

// Live reports the current live-reference count.
func (r *Ref[T]) Live() int64 { return r.count.Load() }
