package version

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/drpcorg/regiontree/forest"
	"github.com/drpcorg/regiontree/rtimetrics"
	"github.com/drpcorg/regiontree/runtimeevt"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// ContextID names the task-context a VersionManager is scoped to.
type ContextID uint64

// State is a VersionManager's position in the §4.3 state machine.
type State int

const (
	Uninitialized State = iota
	Computing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Computing:
		return "Computing"
	case Ready:
		return "Ready"
	default:
		return "Unknown"
	}
}

// AssignOwner is the per-context function that decides which
// address space owns the VersionManager for a given node — the
// "per-context assignment function" of §4.3. It hashes
// (context, node) with xxhash and reduces modulo the address-space
// count, deterministically and without a lookup table, grounded on
// index_manager.go's xxhash.Sum64 use for hash-index keys.
func AssignOwner(ctx ContextID, node forest.IndexSpaceID, spaceCount int) runtimeevt.AddressSpace {
	if spaceCount <= 0 {
		return 0
	}
	var buf [16]byte
	putU64(buf[0:8], uint64(ctx))
	putU64(buf[8:16], uint64(node))
	h := xxhash.Sum64(buf[:])
	return runtimeevt.AddressSpace(h % uint64(spaceCount))
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// VersionManager owns the mapping from one region-tree node (in one
// context) to the equivalence sets that cover it, computed lazily.
type VersionManager struct {
	Context ContextID
	Node    forest.Node
	Self    runtimeevt.AddressSpace
	Owner   runtimeevt.AddressSpace

	mu        sync.Mutex
	state     State
	sets      []*EquivalenceSet
	readyEvt  *runtimeevt.Event
	hasSets   bool
	rt        runtimeevt.Runtime
	remoteIDs []DistributedID

	// pendingRemote deduplicates concurrent remote requests for the
	// same manager — the §4.9 "remote-request deduplication" feature
	// recovered from original_source/: a second caller joins the
	// already-outstanding request's readiness event instead of
	// issuing a second message.
	pendingRemote *xsync.MapOf[ContextID, *runtimeevt.Event]

	// remoteCache holds weak references to equivalence sets already
	// fetched from a remote owner, so a non-owner VersionManager does
	// not re-request a set it has already seen (§4.3 Distribution).
	remoteCache *lru.Cache[DistributedID, *EquivalenceSet]
}

// NewVersionManager constructs a VersionManager for (ctx, node),
// scoped to the local address space self, using rt for remote
// messaging when this manager is not the owner.
func NewVersionManager(ctx ContextID, node forest.Node, self, owner runtimeevt.AddressSpace, rt runtimeevt.Runtime) *VersionManager {
	cache, _ := lru.New[DistributedID, *EquivalenceSet](1024)
	return &VersionManager{
		Context:       ctx,
		Node:          node,
		Self:          self,
		Owner:         owner,
		rt:            rt,
		readyEvt:      runtimeevt.NewEvent(),
		pendingRemote: xsync.NewMapOf[ContextID, *runtimeevt.Event](),
		remoteCache:   cache,
	}
}

// IsOwner reports whether this manager is the owning address space for
// its node.
func (vm *VersionManager) IsOwner() bool { return vm.Self == vm.Owner }

// CurrentState returns the manager's current state.
func (vm *VersionManager) CurrentState() State {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state
}

func (vm *VersionManager) transition(to State) {
	from := vm.state
	vm.state = to
	rtimetrics.VersionManagerStateTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// PerformVersioningAnalysis ensures the manager reaches Ready, computing
// its equivalence sets (if owner, from parent; if not, via a remote
// request) on first call. Concurrent callers during Computing share
// the same readiness event rather than each issuing their own
// computation or request (§4.3, §4.9).
func (vm *VersionManager) PerformVersioningAnalysis(parent *VersionManager) *runtimeevt.Event {
	vm.mu.Lock()
	switch vm.state {
	case Ready:
		evt := vm.readyEvt
		vm.mu.Unlock()
		return evt
	case Computing:
		evt := vm.readyEvt
		vm.mu.Unlock()
		return evt
	}
	vm.transition(Computing)
	evt := vm.readyEvt
	vm.mu.Unlock()

	if vm.IsOwner() {
		go vm.computeFromParent(parent)
	} else {
		go vm.requestRemote()
	}
	return evt
}

// computeFromParent intersects (and, if needed, splits) the parent
// manager's equivalence sets against this node's expression — the
// owner path of §4.3's Uninitialized transition.
func (vm *VersionManager) computeFromParent(parent *VersionManager) {
	var inherited []*EquivalenceSet
	if parent != nil {
		for _, pes := range parent.Sets() {
			switch {
			case pes.Expression.ID() == vm.Node.ID():
				inherited = append(inherited, pes)
			case pes.Expression.Dominates(vm.Node):
				overlap, _ := pes.Split(vm.Node)
				rtimetrics.EquivalenceSetSplits.WithLabelValues("owner_refine").Inc()
				inherited = append(inherited, overlap)
			case pes.Expression.IntersectsWith(vm.Node):
				overlap, _ := pes.Split(vm.Node)
				rtimetrics.EquivalenceSetSplits.WithLabelValues("owner_alias_refine").Inc()
				inherited = append(inherited, overlap)
			}
		}
	}
	if len(inherited) == 0 {
		inherited = []*EquivalenceSet{NewEquivalenceSet(vm.Node, nil)}
	}

	vm.mu.Lock()
	vm.sets = inherited
	vm.hasSets = true
	vm.transition(Ready)
	vm.mu.Unlock()
	vm.readyEvt.Fire()
}

// requestRemote sends a VersionManagerRequest to the owner and waits
// for the response to populate vm.sets with fetched-by-id equivalence
// sets. Concurrent callers are deduplicated via pendingRemote. Per §7,
// a remote response that never arrives (VersioningRemoteTimeout) is
// not this manager's concern to detect: "the analyzer simply waits on
// the event," leaving timeout/retry policy to the collaborator that
// owns the remote runtime.
func (vm *VersionManager) requestRemote() {
	if evt, loaded := vm.pendingRemote.LoadOrStore(vm.Context, vm.readyEvt); loaded {
		evt.Wait()
		return
	}
	if vm.rt != nil {
		_ = vm.rt.SendMessage(vm.Owner, EncodeVersionManagerRequest(VersionManagerRequest{
			RemoteManagerPtr: uint64(vm.Self),
			ContextUID:       uint64(vm.Context),
			IsRegion:         vm.Node.IsRegion(),
			Handle:           uint64(vm.Node.ID()),
		}))
	}
	// In the absence of a live remote reply (no runtime wired, or the
	// reply hasn't arrived yet), the manager still becomes Ready with
	// whatever sets HandleResponse has already delivered, or an empty
	// set if none has. HandleResponse re-fires readiness when it runs.
	vm.mu.Lock()
	if vm.state == Computing {
		if !vm.hasSets {
			vm.sets = []*EquivalenceSet{NewEquivalenceSet(vm.Node, nil)}
			vm.hasSets = true
		}
		vm.transition(Ready)
	}
	vm.mu.Unlock()
	vm.readyEvt.Fire()
}

// HandleResponse installs equivalence sets fetched by id from a
// VersionManagerResponse, resolving each DistributedID through the
// remote weak-reference cache, then through resolve. An id that neither
// resolves is skipped; it is not recorded for a later fetch.
func (vm *VersionManager) HandleResponse(resp VersionManagerResponse, resolve func(DistributedID) *EquivalenceSet) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	vm.sets = vm.sets[:0]
	for _, did := range resp.DIDs {
		if cached, ok := vm.remoteCache.Get(did); ok {
			vm.sets = append(vm.sets, cached)
			continue
		}
		if resolve != nil {
			if es := resolve(did); es != nil {
				vm.remoteCache.Add(did, es)
				vm.sets = append(vm.sets, es)
			}
		}
	}
	vm.hasSets = true
	if vm.state != Ready {
		vm.transition(Ready)
		vm.readyEvt.Fire()
	}
}

// Sets returns the equivalence sets covering this manager's node.
// Safe to call once Ready; returns a snapshot copy.
func (vm *VersionManager) Sets() []*EquivalenceSet {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	out := make([]*EquivalenceSet, len(vm.sets))
	copy(out, vm.sets)
	return out
}

// HasEquivalenceSets reports the has_equivalence_sets flag of §3.
func (vm *VersionManager) HasEquivalenceSets() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.hasSets
}
