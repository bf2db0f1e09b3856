// Package version implements the equivalence-set-based versioning
// layer of spec.md §4.3/§4.6: EquivalenceSet, the per-(node,context)
// VersionManager state machine, and VersionInfo, the per-operation
// snapshot handed to the physical mapping stage. Grounded on
// index_manager.go's lazily-computed, per-key-locked cache pattern
// (classCache/hashIndexCache, a per-fid sync.Mutex) as the model for a
// VersionManager's Uninitialized->Ready computation and an
// EquivalenceSet's fine-grained lock.
package version

import (
	"sync"

	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/drpcorg/regiontree/forest"
	"github.com/drpcorg/regiontree/instanceset"
	"github.com/drpcorg/regiontree/opref"
	"github.com/drpcorg/regiontree/runtimeevt"
	"github.com/google/uuid"
)

// DistributedID is an EquivalenceSet's globally stable id. Minted as a
// UUIDv7 (time-ordered, coordination-free) rather than an incrementing
// counter, so two owners can allocate ids without talking to each
// other first — grounded on protocol/net.go's uuid.Must(uuid.NewV7())
// peer-naming idiom.
type DistributedID uuid.UUID

func NewDistributedID() DistributedID { return DistributedID(uuid.Must(uuid.NewV7())) }

func (d DistributedID) String() string { return uuid.UUID(d).String() }

// AccessKind says whether a versioning request needs exclusive access
// (any writing usage) or can proceed as a shared reader (§4.3
// Per-equivalence-set operation).
type AccessKind int

const (
	Shared AccessKind = iota
	Exclusive
)

// EquivalenceSet is a unit of version-equivalent sub-region: an
// index-space expression (here, a forest.Node — see Split for the
// caveat this implies), a set of valid views, and a fine-grained lock.
type EquivalenceSet struct {
	DID        DistributedID
	Expression forest.Node

	mu         sync.RWMutex
	validViews *instanceset.InstanceSet

	// writeMu serializes exclusive acquisitions so that a second
	// writer queues behind the first instead of racing the readiness
	// event, matching §4.3: "the set's fine-grained lock is taken and
	// the returned readiness event fires only after all prior readers
	// drain."
	writeMu sync.Mutex
}

// NewEquivalenceSet creates a fresh EquivalenceSet over expression,
// inheriting the given valid views (nil for "no valid data yet").
func NewEquivalenceSet(expression forest.Node, validViews *instanceset.InstanceSet) *EquivalenceSet {
	if validViews == nil {
		validViews = instanceset.New()
	}
	return &EquivalenceSet{
		DID:        NewDistributedID(),
		Expression: expression,
		validViews: validViews,
	}
}

// ValidViews returns the set's currently-valid physical views.
func (es *EquivalenceSet) ValidViews() *instanceset.InstanceSet {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.validViews.Clone()
}

// SetValidViews replaces the set's valid views (called once a write's
// applied event fires and the new data becomes the valid copy).
func (es *EquivalenceSet) SetValidViews(v *instanceset.InstanceSet) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.validViews = v
}

// Acquire requests access to es with the given kind. It
// returns a ready event (fires once the request may proceed — i.e.
// once prior conflicting accesses have drained) and an applied event
// the caller must fire once its own access completes, so the next
// acquirer can proceed. Per §5, acquiring never blocks the calling
// goroutine: the lock is taken on a dedicated goroutine and readiness
// is reported through the event.
func (es *EquivalenceSet) Acquire(kind AccessKind) (ready *runtimeevt.Event, applied *runtimeevt.Event) {
	ready = runtimeevt.NewEvent()
	applied = runtimeevt.NewEvent()

	switch kind {
	case Exclusive:
		go func() {
			es.writeMu.Lock()
			es.mu.Lock()
			ready.Fire()
			poisoned := applied.Wait()
			es.mu.Unlock()
			es.writeMu.Unlock()
			_ = poisoned
		}()
	default:
		go func() {
			es.mu.RLock()
			ready.Fire()
			applied.Wait()
			es.mu.RUnlock()
		}()
	}
	return ready, applied
}

// Split divides es into an overlap piece (covering reqNode, inheriting
// es's valid views) and leaves es itself standing for "the rest" of
// its original expression. This is a deliberate simplification: the
// spec's index-space-expression algebra (arbitrary set difference over
// a distributed expression type) is an external collaborator's
// concern (§1); the minimal concrete forest this repository ships only
// has forest.Node-shaped expressions, which cannot represent "es's
// expression minus reqNode" as a new node. The overlap piece is
// therefore real and independently lockable; the non-overlap piece is
// represented by the original, unmodified es, which still soundly
// covers every point it covered before (splitting "never reduces
// completeness", per §4.3).
func (es *EquivalenceSet) Split(reqNode forest.Node) (overlap *EquivalenceSet, rest *EquivalenceSet) {
	overlap = NewEquivalenceSet(reqNode, es.ValidViews())
	return overlap, es
}

// AsRef wraps es in a reference-counted handle, used by VersionInfo to
// keep the set alive for as long as any VersionInfo references it
// (§3 Ownership: "EquivalenceSet is shared (ref-counted) between the
// owning VersionManager and every VersionInfo currently referencing
// it").
func (es *EquivalenceSet) AsRef(kind opref.RefKind, onZero func(*EquivalenceSet)) *opref.Ref[*EquivalenceSet] {
	return opref.NewRefCounted(es, kind, onZero)
}

// Covers reports whether any of es's valid views holds a field in
// mask.
func (es *EquivalenceSet) Covers(mask fieldmask.FieldMask) bool {
	es.mu.RLock()
	defer es.mu.RUnlock()
	for _, ref := range es.validViews.All() {
		if fieldmask.Overlaps(ref.Valid, mask) {
			return true
		}
	}
	return false
}
