// Package restrict implements the restriction/acquisition tracker of
// spec.md §4.2: a per-context coordinator that enforces user-declared
// coherence windows over the region forest. Restrictions and
// Acquisitions cross-reference each other in the abstract model; per
// §9's guidance this is built as a plain parent-owns-child tree (no
// mutually-referential owned objects, no back-pointers) rather than a
// general graph, with the per-context coordinator's top-level registry
// keyed by region-tree id the way protocol/net.go keys its connection
// registry by name in an xsync.MapOf.
package restrict

import (
	"sync"

	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/drpcorg/regiontree/forest"
	"github.com/drpcorg/regiontree/instanceset"
	"github.com/drpcorg/regiontree/opref"
	"github.com/drpcorg/regiontree/rtierr"
	"github.com/drpcorg/regiontree/rtimetrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// ContextID names the task-context a Tracker instance is scoped to.
type ContextID uint64

// RegionTreeID names a distinct region tree within a context (§4.2:
// "a set of top-level Restrictions keyed by region tree id").
type RegionTreeID uint64

// Restriction is a user-declared window in which manager owns fields
// at node; acquisitions nest inside it.
type Restriction struct {
	Node        forest.Node
	Fields      fieldmask.FieldMask
	Manager     instanceset.ManagerHandle
	Acquisitions []*Acquisition
}

// Acquisition is a carved-out hole inside a Restriction during which
// the runtime re-assumes coherence authority; restrictions nest inside
// it (re-attaching while acquired).
type Acquisition struct {
	Node         forest.Node
	Fields       fieldmask.FieldMask
	Restrictions []*Restriction
}

// acquiredFields returns the union of fields currently held loose by
// acquisitions directly nested in r.
func (r *Restriction) acquiredFields() fieldmask.FieldMask {
	var m fieldmask.FieldMask
	for _, a := range r.Acquisitions {
		m = fieldmask.Union(m, a.Fields)
	}
	return m
}

// restrictedFields returns the fields of r that are NOT currently
// carved out by a nested acquisition.
func (r *Restriction) restrictedFields() fieldmask.FieldMask {
	return fieldmask.Difference(r.Fields, r.acquiredFields())
}

type contextState struct {
	mu    sync.Mutex
	trees map[RegionTreeID][]*Restriction
}

// Tracker is the per-context Restriction/Acquisition coordinator.
type Tracker struct {
	contexts *xsync.MapOf[ContextID, *contextState]
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{contexts: xsync.NewMapOf[ContextID, *contextState]()}
}

func (t *Tracker) stateFor(ctx ContextID) *contextState {
	cs, _ := t.contexts.LoadOrCompute(ctx, func() *contextState {
		return &contextState{trees: make(map[RegionTreeID][]*Restriction)}
	})
	return cs
}

func envelopeFor(op opref.Operation, ctxID ContextID) rtierr.Envelope {
	return rtierr.Envelope{
		OpUniqueID:      uint64(op.UniqueID()),
		TaskName:        op.TaskName(),
		ContextUniqueID: uint64(ctxID),
	}
}

// walk visits every Restriction reachable from roots, recursing
// through nested Acquisitions/Restrictions, depth-first.
func walk(roots []*Restriction, visit func(*Restriction)) {
	for _, r := range roots {
		visit(r)
		for _, a := range r.Acquisitions {
			walk(a.Restrictions, visit)
		}
	}
}

// RecordAttach adds a Restriction at node for fields, bound to
// manager. Fails with InterferingRestriction if it overlaps an
// existing, currently-restricted (non-acquired) Restriction; succeeds
// by nesting under the innermost dominating Acquisition hole
// otherwise.
func (t *Tracker) RecordAttach(ctx ContextID, tree RegionTreeID, op opref.Operation, node forest.Node, manager instanceset.ManagerHandle, fields fieldmask.FieldMask) error {
	cs := t.stateFor(ctx)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var hole *Acquisition
	var blocking *Restriction
	walk(cs.trees[tree], func(r *Restriction) {
		if blocking != nil {
			return
		}
		if fieldmask.Overlaps(r.restrictedFields(), fields) {
			blocking = r
			return
		}
		// walk is pre-order, so a hole found deeper overrides an outer one.
		for _, a := range r.Acquisitions {
			if fieldmask.Overlaps(a.Fields, fields) && a.Node.Dominates(node) {
				hole = a
				return
			}
		}
	})

	if blocking != nil {
		rtimetrics.RestrictionConflicts.WithLabelValues("interfering_restriction").Inc()
		return rtierr.New(rtierr.InterferingRestriction, envelopeFor(op, ctx))
	}

	nr := &Restriction{Node: node, Fields: fields.Clone(), Manager: manager}
	if hole != nil {
		hole.Restrictions = append(hole.Restrictions, nr)
	} else {
		cs.trees[tree] = append(cs.trees[tree], nr)
	}
	return nil
}

// RecordAcquire carves an acquisition hole covering the entirety of
// the matching Restriction's fields. Fails with PartialAcquire if node
// does not dominate the restriction, or if fields only partially cover
// it (partial acquire is illegal — the whole restricted node must be
// acquired at once). Fails with InterferingAcquire if another
// acquisition already holds any of the overlapping fields loose.
func (t *Tracker) RecordAcquire(ctx ContextID, tree RegionTreeID, op opref.Operation, node forest.Node, fields fieldmask.FieldMask) error {
	cs := t.stateFor(ctx)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var target *Restriction
	var interfering bool
	walk(cs.trees[tree], func(r *Restriction) {
		if target != nil || interfering {
			return
		}
		if !fieldmask.Overlaps(r.Fields, fields) {
			return
		}
		for _, a := range r.Acquisitions {
			if fieldmask.Overlaps(a.Fields, fields) {
				interfering = true
				return
			}
		}
		target = r
	})

	if interfering {
		rtimetrics.RestrictionConflicts.WithLabelValues("interfering_acquire").Inc()
		return rtierr.New(rtierr.InterferingAcquire, envelopeFor(op, ctx))
	}
	if target == nil {
		// Nothing restricted here: acquiring already-free fields is a
		// no-op, not an error — there is no restriction to violate.
		return nil
	}
	if !node.Dominates(target.Node) {
		rtimetrics.RestrictionConflicts.WithLabelValues("partial_acquire").Inc()
		return rtierr.New(rtierr.PartialAcquire, envelopeFor(op, ctx))
	}
	if !fieldmask.Difference(target.restrictedFields(), fields).IsEmpty() {
		rtimetrics.RestrictionConflicts.WithLabelValues("partial_acquire").Inc()
		return rtierr.New(rtierr.PartialAcquire, envelopeFor(op, ctx))
	}

	target.Acquisitions = append(target.Acquisitions, &Acquisition{
		Node:   target.Node,
		Fields: target.restrictedFields(),
	})
	return nil
}

// RecordRelease closes the innermost matching Acquisition at node for
// fields. Fields still covered by a nested Restriction attached while
// the acquisition was open stay with that nested Restriction; the
// surplus reverts to being restricted by the enclosing Restriction.
func (t *Tracker) RecordRelease(ctx ContextID, tree RegionTreeID, op opref.Operation, node forest.Node, fields fieldmask.FieldMask) error {
	cs := t.stateFor(ctx)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var owner *Restriction
	var found *Acquisition
	// walk is pre-order, so a match found deeper overrides an outer one.
	walk(cs.trees[tree], func(r *Restriction) {
		for _, a := range r.Acquisitions {
			if a.Node.ID() == node.ID() && fieldmask.Overlaps(a.Fields, fields) {
				found = a
				owner = r
				return
			}
		}
	})
	if found == nil {
		return nil
	}

	released := fieldmask.Intersect(found.Fields, fields)
	var nestedCovered fieldmask.FieldMask
	for _, nr := range found.Restrictions {
		nestedCovered = fieldmask.Union(nestedCovered, nr.Fields)
	}
	surplus := fieldmask.Difference(released, nestedCovered)
	found.Fields = fieldmask.Difference(found.Fields, surplus)

	if found.Fields.IsEmpty() && len(found.Restrictions) == 0 {
		kept := owner.Acquisitions[:0]
		for _, a := range owner.Acquisitions {
			if a != found {
				kept = append(kept, a)
			}
		}
		owner.Acquisitions = kept
	}
	return nil
}

// RecordDetach removes the matching Restriction at node; mask must
// match exactly.
func (t *Tracker) RecordDetach(ctx ContextID, tree RegionTreeID, op opref.Operation, node forest.Node, fields fieldmask.FieldMask) error {
	cs := t.stateFor(ctx)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	removeFromSlice := func(list []*Restriction) ([]*Restriction, bool) {
		for i, r := range list {
			if r.Node.ID() == node.ID() && fieldmask.Equal(r.Fields, fields) {
				return append(list[:i], list[i+1:]...), true
			}
		}
		return list, false
	}

	if updated, ok := removeFromSlice(cs.trees[tree]); ok {
		cs.trees[tree] = updated
		return nil
	}

	var removed bool
	var recurse func(roots []*Restriction)
	recurse = func(roots []*Restriction) {
		for _, r := range roots {
			for _, a := range r.Acquisitions {
				if updated, ok := removeFromSlice(a.Restrictions); ok {
					a.Restrictions = updated
					removed = true
					return
				}
				recurse(a.Restrictions)
				if removed {
					return
				}
			}
			if removed {
				return
			}
		}
	}
	recurse(cs.trees[tree])
	return nil
}

// RestrictInfo is the result of FindRestrictions: for each field still
// restricted at the queried node, the set of managers that must be
// kept coherent.
type RestrictInfo struct {
	Fields   fieldmask.FieldMask
	Managers []instanceset.ManagerHandle
}

// FindRestrictions reports, for each field in mask still restricted at
// node, the managers that must be kept coherent (§4.2).
func (t *Tracker) FindRestrictions(ctx ContextID, tree RegionTreeID, node forest.Node, mask fieldmask.FieldMask) RestrictInfo {
	cs := t.stateFor(ctx)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var info RestrictInfo
	seen := make(map[instanceset.ManagerHandle]bool)
	walk(cs.trees[tree], func(r *Restriction) {
		if !r.Node.Dominates(node) {
			return
		}
		overlap := fieldmask.Intersect(r.restrictedFields(), mask)
		if overlap.IsEmpty() {
			return
		}
		info.Fields = fieldmask.Union(info.Fields, overlap)
		if !seen[r.Manager] {
			seen[r.Manager] = true
			info.Managers = append(info.Managers, r.Manager)
		}
	})
	return info
}

// IsEmpty reports whether the tracker holds no restrictions at all for
// the given (context, tree) — used by the §8 property 7 nesting test.
func (t *Tracker) IsEmpty(ctx ContextID, tree RegionTreeID) bool {
	cs := t.stateFor(ctx)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.trees[tree]) == 0
}
