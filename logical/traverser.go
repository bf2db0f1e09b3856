package logical

import "github.com/drpcorg/regiontree/forest"

// Disposition is a visitor's verdict at one node: whether the shared
// driver should keep descending.
type Disposition int

const (
	Continue Disposition = iota
	Stop
)

// Visitor is the `visit_region`/`visit_partition` contract every
// traverser exposes (spec.md §4.5).
type Visitor interface {
	VisitRegion(forest.RegionNode) Disposition
	VisitPartition(forest.PartitionNode) Disposition
}

// Kind names one of the six closed traverser variants (spec.md §4.5,
// §9 "keep the variant closed"). Rather than six separate virtual
// hierarchies, Kind tags a single Traverser type so its visit methods
// switch on kind once instead of dispatching through an open set of
// implementations.
type Kind int

const (
	LogicalPathRegistrar Kind = iota
	LogicalRegistrar
	CurrentInitializer
	CurrentInvalidator
	DeletionInvalidator
	VersioningInvalidator
)

// Traverser is the closed tagged variant naming one of the six
// visitors named in §4.5, plus whatever per-kind payload it needs.
// Each kind implements Visitor by delegating to the Analyzer method
// appropriate to its purpose.
type Traverser struct {
	Kind Kind
	a    *Analyzer
	ctx  ContextID

	// Path records the child colors a caller associates with this
	// traverser. Neither the visit methods nor Drive read it.
	Path []forest.Color
}

// NewTraverser constructs a Traverser of the given kind bound to a
// (analyzer, context), storing path in Traverser.Path.
func NewTraverser(kind Kind, a *Analyzer, ctx ContextID, path []forest.Color) *Traverser {
	return &Traverser{Kind: kind, a: a, ctx: ctx, Path: path}
}

// VisitRegion implements Visitor for every Kind: the registrar kinds
// change no state and continue; CurrentInitializer and the
// *Invalidator family act on every region they see.
func (t *Traverser) VisitRegion(r forest.RegionNode) Disposition {
	switch t.Kind {
	case LogicalPathRegistrar, LogicalRegistrar:
		// Registration itself happens via Analyzer.AnalyzeLogical at
		// each step of the walk the caller drives; the traverser here
		// only decides whether to keep going.
		return Continue
	case CurrentInitializer:
		// Touching stateFor is enough to materialize a fresh LogicalState
		// for r under ctx if one doesn't exist yet.
		t.a.stateFor(t.ctx, r)
		return Continue
	case CurrentInvalidator:
		ls := t.a.stateFor(t.ctx, r)
		ls.mu.Lock()
		ls.Current = nil
		ls.Previous = nil
		ls.mu.Unlock()
		return Continue
	case DeletionInvalidator:
		t.a.dropState(t.ctx, r)
		return Continue
	case VersioningInvalidator:
		t.a.invalidateVersioning(t.ctx, r)
		return Continue
	default:
		return Stop
	}
}

// VisitPartition implements Visitor; partitions themselves never carry
// a LogicalState in this design (only regions do, per §3's "LogicalState
// is owned by its region-tree node"), so every kind simply continues
// into the partition's children.
func (t *Traverser) VisitPartition(forest.PartitionNode) Disposition {
	return Continue
}

// Drive walks root depth-first using v, stopping a branch when a
// visitor returns Stop. It always visits the whole sub-tree under
// root (every partition of a region, every child of a partition);
// there is no single-path mode.
func Drive(root forest.Node, v Visitor) {
	var disp Disposition
	if r, ok := root.(forest.RegionNode); ok {
		disp = v.VisitRegion(r)
		if disp == Stop {
			return
		}
		for _, p := range r.Partitions() {
			Drive(p, v)
		}
		return
	}
	if p, ok := root.(forest.PartitionNode); ok {
		disp = v.VisitPartition(p)
		if disp == Stop {
			return
		}
		for _, c := range p.Children() {
			Drive(c, v)
		}
	}
}
