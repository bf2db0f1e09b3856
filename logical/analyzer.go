package logical

import (
	"log/slog"

	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/drpcorg/regiontree/forest"
	"github.com/drpcorg/regiontree/rtelog"
	"github.com/drpcorg/regiontree/rtimetrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// ContextID names the task-context an Analyzer's LogicalStates are
// scoped to. Kept as its own type (rather than importing restrict's or
// version's) per §9's "no process-wide singletons" note — each package
// resolves `(node, context_id) -> &mut LogicalState`-equivalents behind
// its own lock, with a top-level facade reconciling the types.
type ContextID uint64

type nodeContextKey struct {
	ctx  ContextID
	node forest.IndexSpaceID
}

// VersioningInvalidationHook lets a caller (the top-level analyzer
// facade, which owns the VersionManagers) be notified when a node's
// logical state is torn down, so it can tear down the matching
// VersionManager in step — spec.md §6's "invalidate_context... clears
// all LogicalStates and VersionManagers" without logical/ importing
// version/.
type VersioningInvalidationHook interface {
	InvalidateContext(ctx ContextID, node forest.IndexSpaceID)
}

// Analyzer implements the §4.1 logical dependence analyzer: a registry
// of per-(node, context) LogicalState, driven by AnalyzeLogical.
// Grounded on protocol/net.go's xsync.MapOf-keyed registry pattern.
type Analyzer struct {
	states *xsync.MapOf[nodeContextKey, *LogicalState]
	Log    rtelog.Logger
	Hook   VersioningInvalidationHook
}

// NewAnalyzer returns an empty Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		states: xsync.NewMapOf[nodeContextKey, *LogicalState](),
		Log:    rtelog.NewDefaultLogger(slog.LevelWarn),
	}
}

func (a *Analyzer) stateFor(ctx ContextID, node forest.Node) *LogicalState {
	key := nodeContextKey{ctx: ctx, node: node.ID()}
	ls, _ := a.states.LoadOrCompute(key, newLogicalState)
	return ls
}

func (a *Analyzer) dropState(ctx ContextID, node forest.Node) {
	a.states.Delete(nodeContextKey{ctx: ctx, node: node.ID()})
	if a.Hook != nil {
		a.Hook.InvalidateContext(ctx, node.ID())
	}
}

func (a *Analyzer) invalidateVersioning(ctx ContextID, node forest.Node) {
	if a.Hook != nil {
		a.Hook.InvalidateContext(ctx, node.ID())
	}
}

// AccessContext carries the descent-specific facts the per-node
// procedure needs beyond the user itself: whether this step targets
// the node directly (a leaf of the requirement's path) or descends
// into a specific child, and whether that child's partition is
// provably disjoint (spec.md §4.1's open/close transition rules
// depend on this throughout).
type AccessContext struct {
	IsLeaf   bool
	Child    forest.Color
	Disjoint bool
}

// AnalyzeLogical performs the §4.1 per-node procedure for user at
// node, within ctx. It returns the CloseOp emitted at this node, if
// any (nil otherwise).
func (a *Analyzer) AnalyzeLogical(ctx ContextID, node forest.Node, user *LogicalUser, ac AccessContext) *CloseOp {
	ls := a.stateFor(ctx, node)
	ls.mu.Lock()
	defer ls.mu.Unlock()

	closer := newLogicalCloser(node)
	var emitted *CloseOp

	// Step 1: decide whether any existing FieldState needs a close.
	for _, fs := range ls.FieldStates {
		overlap := fieldmask.Intersect(fs.ValidFields, user.Mask)
		if overlap.IsEmpty() {
			continue
		}
		if fs.RebuildTimeout > 0 {
			fs.RebuildTimeout--
		}
		if needsClose(fs, user, ac) {
			closedUsers := a.collectClosedUsers(ls, overlap)
			emitted = closer.EmitClose(overlap, closedUsers)
			shrinkFieldState(fs, overlap)
			fs.RebuildTimeout = RebuildTimeoutReset
			rtimetrics.CloseOperationsEmitted.WithLabelValues(fs.OpenState.String()).Inc()
		} else if isProjectionTransition(fs, user) {
			ls.bumpProjectionEpoch(overlap, projectionFnID(user))
		} else if fs.OpenState == OpenMultiReduce && user.Usage.Privilege == Reduce &&
			user.Usage.RedopID == fs.Redop && ac.Disjoint && !ac.IsLeaf {
			fs.openChild(ac.Child, overlap)
		} else if fs.OpenState == OpenSingleReduce && user.Usage.Privilege == Reduce &&
			user.Usage.RedopID == fs.Redop && ac.Disjoint && !ac.IsLeaf && !fs.hasOpenChild(ac.Child) {
			fs.OpenState = OpenMultiReduce
			fs.openChild(ac.Child, overlap)
		}
	}
	ls.compact()

	if emitted != nil {
		a.removeClosedFromCurrent(ls, emitted.ClosedUsers)
		ls.Current = append(ls.Current, emitted.AsLogicalUser())
	}

	// Step 2: filter prior users against the incoming one.
	stillCurrent := ls.Current[:0]
	for _, p := range ls.Current {
		overlap := fieldmask.Intersect(p.Mask, user.Mask)
		if !overlap.IsEmpty() && !p.Stale() && Conflicts(p.Usage, user.Usage) {
			user.Op.RegisterDependence(p.Op, p.OpGen)
			p.Mask = fieldmask.Difference(p.Mask, overlap)
		}
		if p.Mask.IsEmpty() {
			continue
		}
		p.Timeout--
		if p.Timeout <= 0 {
			ls.Previous = append(ls.Previous, p)
			continue
		}
		stillCurrent = append(stillCurrent, p)
	}
	ls.Current = stillCurrent

	// Previous-list users are always filtered after use: examine once
	// for conflicts, then drop (spec.md §4.1 step 2).
	for _, p := range ls.Previous {
		overlap := fieldmask.Intersect(p.Mask, user.Mask)
		if !overlap.IsEmpty() && !p.Stale() && Conflicts(p.Usage, user.Usage) {
			user.Op.RegisterDependence(p.Op, p.OpGen)
		}
	}
	ls.Previous = nil

	// Step 3: open the node to reflect this step's access.
	a.openFor(ls, user, ac)

	// Step 4: append U to the current-epoch user list.
	ls.Current = append(ls.Current, &LogicalUser{
		GenericUser: GenericUser{Usage: user.Usage, Mask: user.Mask.Clone()},
		Op:          user.Op,
		OpGen:       user.OpGen,
		ReqIndex:    user.ReqIndex,
		Timeout:     DefaultTimeout,
		Projection:  user.Projection,
	})

	return emitted
}

func (a *Analyzer) collectClosedUsers(ls *LogicalState, overlap fieldmask.FieldMask) []ClosedUser {
	var out []ClosedUser
	for _, p := range ls.Current {
		o := fieldmask.Intersect(p.Mask, overlap)
		if !o.IsEmpty() && !p.Stale() {
			out = append(out, ClosedUser{User: p, Mask: o})
		}
	}
	return out
}

func (a *Analyzer) removeClosedFromCurrent(ls *LogicalState, closed []ClosedUser) {
	closedSet := make(map[*LogicalUser]fieldmask.FieldMask, len(closed))
	for _, cu := range closed {
		closedSet[cu.User] = cu.Mask
	}
	kept := ls.Current[:0]
	for _, p := range ls.Current {
		if m, ok := closedSet[p]; ok {
			p.Mask = fieldmask.Difference(p.Mask, m)
			if p.Mask.IsEmpty() {
				continue
			}
		}
		kept = append(kept, p)
	}
	ls.Current = kept
}

func shrinkFieldState(fs *FieldState, overlap fieldmask.FieldMask) {
	fs.ValidFields = fieldmask.Difference(fs.ValidFields, overlap)
	for c, m := range fs.OpenChildren {
		m = fieldmask.Difference(m, overlap)
		if m.IsEmpty() {
			delete(fs.OpenChildren, c)
		} else {
			fs.OpenChildren[c] = m
		}
	}
}

func (fs *FieldState) hasOpenChild(c forest.Color) bool {
	m, ok := fs.OpenChildren[c]
	return ok && !m.IsEmpty()
}

// needsClose implements the §4.1 open/close transition rules.
func needsClose(fs *FieldState, user *LogicalUser, ac AccessContext) bool {
	switch fs.OpenState {
	case OpenReadOnly:
		return user.Usage.IsWrite() || user.Usage.Privilege == Reduce
	case OpenReadWrite:
		if ac.IsLeaf {
			return true
		}
		if fs.hasOpenChild(ac.Child) {
			return false
		}
		return !ac.Disjoint
	case OpenSingleReduce:
		if user.Usage.Privilege != Reduce || user.Usage.RedopID != fs.Redop {
			return true
		}
		if ac.IsLeaf {
			return false
		}
		if fs.hasOpenChild(ac.Child) {
			return false
		}
		return !ac.Disjoint
	case OpenMultiReduce:
		if user.Usage.Privilege != Reduce || user.Usage.RedopID != fs.Redop {
			return true
		}
		return false
	case OpenReadOnlyProj, OpenReadWriteProj, OpenReadWriteProjDisjointShallow, OpenReduceProj, OpenReduceProjDirty:
		if user.Projection == nil {
			return true
		}
		if fs.Projection == nil || fs.Projection.FnID != user.Projection.FnID {
			return true
		}
		if fs.Projection.Domain.Equal(user.Projection.Domain) || fs.Projection.Domain.Dominates(user.Projection.Domain) {
			return false
		}
		return true
	default:
		return false
	}
}

func isProjectionTransition(fs *FieldState, user *LogicalUser) bool {
	if fs.OpenState.isProjection() && user.Projection == nil {
		return true
	}
	if !fs.OpenState.isProjection() && user.Projection != nil {
		return true
	}
	return false
}

func projectionFnID(user *LogicalUser) ProjectionID {
	if user.Projection == nil {
		return 0
	}
	return user.Projection.FnID
}

// openFor applies step 3: open/merge a FieldState reflecting this
// step's access, coalescing afterward per the tie-break rule.
func (a *Analyzer) openFor(ls *LogicalState, user *LogicalUser, ac AccessContext) {
	desired := desiredState(user)

	var target *FieldState
	for _, fs := range ls.FieldStates {
		if fs.OpenState == desired && sameRedop(fs, user) && sameProjection(fs, user) {
			target = fs
			break
		}
	}
	if target == nil {
		target = newFieldState(fieldmask.FieldMask{}, desired, redopOf(user), user.Projection)
		ls.FieldStates = append(ls.FieldStates, target)
	}

	switch {
	case ac.IsLeaf:
		target.ValidFields = fieldmask.Union(target.ValidFields, user.Mask)
	default:
		target.openChild(ac.Child, user.Mask)
	}

	// An OpenMultiReduce FieldState is not degraded to OpenReadWrite
	// here (degradeToReadWrite has no caller), so a later non-reduce
	// access to it still closes it in needsClose.
	ls.coalesce()
}

func desiredState(user *LogicalUser) OpenState {
	if user.Projection != nil {
		switch user.Usage.Privilege {
		case ReadOnly:
			return OpenReadOnlyProj
		case Reduce:
			return OpenReduceProj
		default:
			if user.Projection.DisjointShallow {
				return OpenReadWriteProjDisjointShallow
			}
			return OpenReadWriteProj
		}
	}
	switch user.Usage.Privilege {
	case ReadOnly:
		return OpenReadOnly
	case Reduce:
		return OpenSingleReduce
	default:
		return OpenReadWrite
	}
}

func redopOf(user *LogicalUser) int32 {
	if user.Usage.Privilege == Reduce {
		return user.Usage.RedopID
	}
	return NoRedop
}

func sameRedop(fs *FieldState, user *LogicalUser) bool {
	return fs.Redop == redopOf(user)
}

func sameProjection(fs *FieldState, user *LogicalUser) bool {
	switch {
	case fs.Projection == nil && user.Projection == nil:
		return true
	case fs.Projection == nil || user.Projection == nil:
		return false
	default:
		return fs.Projection.FnID == user.Projection.FnID && fs.Projection.Domain.Equal(user.Projection.Domain)
	}
}

// InvalidateContext clears every LogicalState recorded for ctx,
// notifying the versioning hook for each node torn down. Idempotent: a
// second call finds nothing left to clear (§8 property 3).
func (a *Analyzer) InvalidateContext(ctx ContextID) {
	var toDelete []nodeContextKey
	a.states.Range(func(key nodeContextKey, _ *LogicalState) bool {
		if key.ctx == ctx {
			toDelete = append(toDelete, key)
		}
		return true
	})
	for _, key := range toDelete {
		a.states.Delete(key)
		if a.Hook != nil {
			a.Hook.InvalidateContext(ctx, key.node)
		}
	}
}
