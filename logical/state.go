package logical

import (
	"sync"

	"github.com/drpcorg/regiontree/fieldmask"
)

// LogicalState aggregates field-states, two epochs of user lists, and
// projection epochs for one region-tree node within one context
// (spec.md §2 item 5, §3). Access is serialized by mu, held for the
// duration of one (operation, requirement) analysis step — the §5
// "per-node serialization" rule.
type LogicalState struct {
	mu sync.Mutex

	FieldStates []*FieldState
	Current     []*LogicalUser
	Previous    []*LogicalUser

	ProjectionEpochs []*ProjectionEpoch
}

func newLogicalState() *LogicalState {
	return &LogicalState{}
}

// coalesce merges any pair of FieldStates that have become mergeable
// (spec.md §4.1 "when multiple FieldStates would merge... they are
// coalesced after each incoming analysis step"). Caller holds ls.mu.
func (ls *LogicalState) coalesce() {
	out := ls.FieldStates[:0]
	for _, fs := range ls.FieldStates {
		merged := false
		for _, kept := range out {
			if kept.mergeableWith(fs) {
				kept.mergeFrom(fs)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, fs)
		}
	}
	ls.FieldStates = out
}

// compact drops FieldStates whose ValidFields has gone empty.
func (ls *LogicalState) compact() {
	out := ls.FieldStates[:0]
	for _, fs := range ls.FieldStates {
		if !fs.ValidFields.IsEmpty() {
			out = append(out, fs)
		}
	}
	ls.FieldStates = out
}

// bumpProjectionEpoch advances the epoch for mask — the §4.1 rule that
// "any transition out of a projection state, and any non-projection
// access overlapping projection fields, advances the projection epoch
// for those fields."
func (ls *LogicalState) bumpProjectionEpoch(mask fieldmask.FieldMask, fn ProjectionID) {
	for _, pe := range ls.ProjectionEpochs {
		if fieldmask.Overlaps(pe.ValidFields, mask) {
			pe.ValidFields = fieldmask.Difference(pe.ValidFields, mask)
		}
	}
	ls.ProjectionEpochs = append(ls.ProjectionEpochs, &ProjectionEpoch{
		Epoch:       ls.nextEpoch(),
		ValidFields: mask.Clone(),
		FnID:        fn,
	})
}

func (ls *LogicalState) nextEpoch() uint64 {
	var max uint64
	for _, pe := range ls.ProjectionEpochs {
		if pe.Epoch > max {
			max = pe.Epoch
		}
	}
	return max + 1
}

// reset clears every FieldState, user list, and projection epoch of
// one node. Analyzer.InvalidateContext does not call it; it deletes
// the whole LogicalState instead.
func (ls *LogicalState) reset() {
	ls.FieldStates = nil
	ls.Current = nil
	ls.Previous = nil
	ls.ProjectionEpochs = nil
}
