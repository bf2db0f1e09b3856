package version

import (
	"sync"

	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/drpcorg/regiontree/opref"
	"github.com/drpcorg/regiontree/runtimeevt"
)

// VersionInfo is a per-requirement, per-operation snapshot of the
// equivalence sets relevant to one region requirement (§4.6): the
// immutable object handed across the logical/physical boundary.
type VersionInfo struct {
	mu   sync.Mutex
	refs []*opref.Ref[*EquivalenceSet]
}

// NewVersionInfo returns an empty VersionInfo.
func NewVersionInfo() *VersionInfo { return &VersionInfo{} }

// RecordEquivalenceSet records es against this VersionInfo, taking a
// counted reference to it (§3: "VersionInfo... owns a counted
// reference to each recorded set").
func (vi *VersionInfo) RecordEquivalenceSet(es *EquivalenceSet) {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	vi.refs = append(vi.refs, es.AsRef(opref.RefNormal, nil))
}

// MakeReady requests access with kind to every recorded equivalence
// set and returns one ready and one applied event per set, which the
// caller must wait on before mapping, and signal on completion,
// respectively (§4.3 Per-equivalence-set operation). mask does not
// narrow which sets are acquired.
func (vi *VersionInfo) MakeReady(kind AccessKind, mask fieldmask.FieldMask) (readyEvents, appliedEvents []*runtimeevt.Event) {
	vi.mu.Lock()
	refs := append([]*opref.Ref[*EquivalenceSet]{}, vi.refs...)
	vi.mu.Unlock()

	for _, ref := range refs {
		es := ref.Value()
		ready, applied := es.Acquire(kind)
		readyEvents = append(readyEvents, ready)
		appliedEvents = append(appliedEvents, applied)
	}
	return readyEvents, appliedEvents
}

// Clear releases every recorded reference and resets the snapshot —
// the §4.6 Clear contract.
func (vi *VersionInfo) Clear() {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	for _, ref := range vi.refs {
		ref.Release()
	}
	vi.refs = nil
}

// EquivalenceSets returns the equivalence sets currently recorded.
func (vi *VersionInfo) EquivalenceSets() []*EquivalenceSet {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	out := make([]*EquivalenceSet, len(vi.refs))
	for i, r := range vi.refs {
		out[i] = r.Value()
	}
	return out
}
