// Package analyzer implements the top-level dispatcher of spec.md §2
// ("a top-level dispatcher walks a region requirement's path... calls
// into the logical analyzer... hands the requirement to the
// versioning layer") and §6's Inbound API. Engine binds logical,
// restrict, and version into one facade, the way chotki.go's Chotki
// struct binds its own independently-locked sub-components (syncs,
// hooks, outq) behind one object. Engine.AnalyzeLogical analyzes one
// node per call; walking a requirement's path node by node is left to
// the caller. AnalyzeVersion resolves the node's ancestor chain itself.
package analyzer

import (
	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/drpcorg/regiontree/forest"
	"github.com/drpcorg/regiontree/instanceset"
	"github.com/drpcorg/regiontree/logical"
	"github.com/drpcorg/regiontree/opref"
	"github.com/drpcorg/regiontree/restrict"
	"github.com/drpcorg/regiontree/rtelog"
	"github.com/drpcorg/regiontree/runtimeevt"
	"github.com/drpcorg/regiontree/version"
	"github.com/puzpuzpuz/xsync/v3"
)

// ContextID is the one context-id type every inbound Engine call uses.
// logical, restrict, and version each keep their own package-scoped
// ContextID (a plain uint64, per §9's "no process-wide singletons" —
// each package resolves its own per-context state behind its own
// lock); Engine is the single place that reconciles them, since a
// trivial same-underlying-type cast is all reconciliation requires.
type ContextID uint64

func (c ContextID) logical() logical.ContextID   { return logical.ContextID(c) }
func (c ContextID) restrict() restrict.ContextID { return restrict.ContextID(c) }
func (c ContextID) version() version.ContextID   { return version.ContextID(c) }

type versionManagerKey struct {
	ctx  ContextID
	node forest.IndexSpaceID
}

// Engine is the analyzer's inbound surface: analyze_logical,
// analyze_version, record_attach/acquire/release/detach,
// find_restrictions, invalidate_context (spec.md §6).
type Engine struct {
	Self       runtimeevt.AddressSpace
	SpaceCount int
	Runtime    runtimeevt.Runtime
	Log        rtelog.Logger

	logicalAnalyzer *logical.Analyzer
	restrictTracker *restrict.Tracker

	managers *xsync.MapOf[versionManagerKey, *version.VersionManager]
}

// NewEngine builds an Engine bound to the local address space self,
// using spaceCount address spaces for ownership assignment and rt for
// remote VersionManager messaging (rt may be nil for a single-space
// deployment, e.g. in tests).
func NewEngine(self runtimeevt.AddressSpace, spaceCount int, rt runtimeevt.Runtime) *Engine {
	e := &Engine{
		Self:            self,
		SpaceCount:      spaceCount,
		Runtime:         rt,
		Log:             rtelog.Nop{},
		logicalAnalyzer: logical.NewAnalyzer(),
		restrictTracker: restrict.NewTracker(),
		managers:        xsync.NewMapOf[versionManagerKey, *version.VersionManager](),
	}
	e.logicalAnalyzer.Hook = e
	return e
}

// InvalidateContext implements logical.VersioningInvalidationHook: a
// node's logical state was just torn down, so drop its VersionManager
// too (§6: invalidate_context clears both LogicalStates and
// VersionManagers for the context).
func (e *Engine) InvalidateContext(ctx logical.ContextID, node forest.IndexSpaceID) {
	e.managers.Delete(versionManagerKey{ctx: ContextID(ctx), node: node})
}

// InvalidateAll invalidates every logical and version state recorded
// for ctx, the public entry point for §6's invalidate_context (the
// logical half triggers InvalidateContext above via the hook; managers
// of nodes that never had a logical state are dropped directly).
func (e *Engine) InvalidateAll(ctx ContextID) {
	e.logicalAnalyzer.InvalidateContext(ctx.logical())
	var stale []versionManagerKey
	e.managers.Range(func(key versionManagerKey, _ *version.VersionManager) bool {
		if key.ctx == ctx {
			stale = append(stale, key)
		}
		return true
	})
	for _, key := range stale {
		e.managers.Delete(key)
	}
}

// AnalyzeLogical performs §4.1 top to bottom on one requirement at one
// node (analyze_logical).
func (e *Engine) AnalyzeLogical(ctx ContextID, node forest.Node, user *logical.LogicalUser, ac logical.AccessContext) *logical.CloseOp {
	return e.logicalAnalyzer.AnalyzeLogical(ctx.logical(), node, user, ac)
}

// managerFor resolves (ctx, node)'s VersionManager, creating it (with
// the correct owner) on first use.
func (e *Engine) managerFor(ctx ContextID, node forest.Node) *version.VersionManager {
	key := versionManagerKey{ctx: ctx, node: node.ID()}
	vm, _ := e.managers.LoadOrCompute(key, func() *version.VersionManager {
		owner := version.AssignOwner(ctx.version(), node.ID(), e.SpaceCount)
		return version.NewVersionManager(ctx.version(), node, e.Self, owner, e.Runtime)
	})
	return vm
}

// resolveChain walks node's ancestry root-to-leaf, ensuring every
// VersionManager from the root down to node exists and has completed
// its versioning analysis (computing from its already-ready parent, as
// §4.3 requires), then returns node's own manager.
func (e *Engine) resolveChain(ctx ContextID, node forest.Node) *version.VersionManager {
	chain := []forest.Node{node}
	for cur := node; ; {
		p, ok := cur.Parent()
		if !ok {
			break
		}
		chain = append(chain, p)
		cur = p
	}

	var parent, vm *version.VersionManager
	for i := len(chain) - 1; i >= 0; i-- {
		vm = e.managerFor(ctx, chain[i])
		vm.PerformVersioningAnalysis(parent).Wait()
		parent = vm
	}
	return vm
}

// AnalyzeVersion is the analyze_version entry point of §6: it resolves
// node's VersionManager chain, records every covering EquivalenceSet
// onto info, and returns the ready/applied events the caller must
// sequence the physical mapping stage on (§4.3 Per-equivalence-set
// operation).
func (e *Engine) AnalyzeVersion(ctx ContextID, node forest.Node, kind version.AccessKind, mask fieldmask.FieldMask, info *version.VersionInfo) (ready, applied []*runtimeevt.Event) {
	vm := e.resolveChain(ctx, node)
	for _, es := range vm.Sets() {
		info.RecordEquivalenceSet(es)
	}
	return info.MakeReady(kind, mask)
}

// RecordAttach, RecordAcquire, RecordRelease, RecordDetach, and
// FindRestrictions simply forward to the restrict.Tracker with the
// reconciled ContextID — the restriction/acquisition half of §6's
// Inbound API.
func (e *Engine) RecordAttach(ctx ContextID, tree restrict.RegionTreeID, op opref.Operation, node forest.Node, manager instanceset.ManagerHandle, fields fieldmask.FieldMask) error {
	return e.restrictTracker.RecordAttach(ctx.restrict(), tree, op, node, manager, fields)
}

func (e *Engine) RecordAcquire(ctx ContextID, tree restrict.RegionTreeID, op opref.Operation, node forest.Node, fields fieldmask.FieldMask) error {
	return e.restrictTracker.RecordAcquire(ctx.restrict(), tree, op, node, fields)
}

func (e *Engine) RecordRelease(ctx ContextID, tree restrict.RegionTreeID, op opref.Operation, node forest.Node, fields fieldmask.FieldMask) error {
	return e.restrictTracker.RecordRelease(ctx.restrict(), tree, op, node, fields)
}

func (e *Engine) RecordDetach(ctx ContextID, tree restrict.RegionTreeID, op opref.Operation, node forest.Node, fields fieldmask.FieldMask) error {
	return e.restrictTracker.RecordDetach(ctx.restrict(), tree, op, node, fields)
}

func (e *Engine) FindRestrictions(ctx ContextID, tree restrict.RegionTreeID, node forest.Node, mask fieldmask.FieldMask) restrict.RestrictInfo {
	return e.restrictTracker.FindRestrictions(ctx.restrict(), tree, node, mask)
}
