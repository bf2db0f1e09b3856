// Package instanceset implements the boundary to physical
// collaborators (spec.md §4.7): a copy-on-write small-vector of
// (manager handle, valid fields, ready event) triples, with
// single-element inline storage to avoid heap allocation in the common
// case, plus wire-format pack/unpack.
package instanceset

import (
	"encoding/binary"

	"github.com/drpcorg/regiontree/fieldmask"
	"github.com/drpcorg/regiontree/runtimeevt"
)

// ManagerHandle is the stable distributed id of a physical instance
// manager (§6 Outbound: "Physical manager: stable distributed id").
type ManagerHandle uint64

// Index is the small-vector position type: a plain uint32 alias, not a
// type parameter.
type Index = uint32

// InstanceRef is one (manager, valid fields, ready event) triple.
type InstanceRef struct {
	Manager ManagerHandle
	Valid   fieldmask.FieldMask
	Ready   *runtimeevt.Event
}

// InstanceSet is a copy-on-write small vector of InstanceRef. The
// first element is stored inline (avoiding a heap allocation for the
// overwhelmingly common single-instance case); further elements spill
// into an overflow slice. A shared InstanceSet becomes unique on first
// mutation via the `shared` flag, matching the
// counters/atomic_counter.go atomic-swap-on-mutate idiom generalized
// from "one CRDT value" to "a small vector."
type InstanceSet struct {
	inline   InstanceRef
	hasInline bool
	overflow []InstanceRef
	shared   bool
}

// New returns an empty InstanceSet.
func New() *InstanceSet { return &InstanceSet{} }

// Of returns an InstanceSet containing exactly the given refs.
func Of(refs ...InstanceRef) *InstanceSet {
	s := New()
	for _, r := range refs {
		s.Add(r)
	}
	return s
}

// Clone returns a handle sharing the same backing storage, marked
// shared so that the first mutation on either handle forces a private
// copy first.
func (s *InstanceSet) Clone() *InstanceSet {
	s.shared = true
	clone := *s
	clone.shared = true
	return &clone
}

// ensurePrivate clones backing storage if this handle is marked
// shared, so mutation never affects another outstanding clone.
func (s *InstanceSet) ensurePrivate() {
	if !s.shared {
		return
	}
	if s.overflow != nil {
		cp := make([]InstanceRef, len(s.overflow))
		copy(cp, s.overflow)
		s.overflow = cp
	}
	s.shared = false
}

// Len returns the number of refs in the set.
func (s *InstanceSet) Len() int {
	n := 0
	if s.hasInline {
		n++
	}
	return n + len(s.overflow)
}

// Get returns the ref at position i in stable iteration order (inline
// first, then overflow in append order).
func (s *InstanceSet) Get(i Index) (InstanceRef, bool) {
	idx := int(i)
	if s.hasInline {
		if idx == 0 {
			return s.inline, true
		}
		idx--
	}
	if idx < 0 || idx >= len(s.overflow) {
		return InstanceRef{}, false
	}
	return s.overflow[idx], true
}

// All returns every ref in stable iteration order.
func (s *InstanceSet) All() []InstanceRef {
	out := make([]InstanceRef, 0, s.Len())
	if s.hasInline {
		out = append(out, s.inline)
	}
	out = append(out, s.overflow...)
	return out
}

// Add appends a ref, copying backing storage first if shared.
func (s *InstanceSet) Add(ref InstanceRef) {
	s.ensurePrivate()
	if !s.hasInline {
		s.inline = ref
		s.hasInline = true
		return
	}
	s.overflow = append(s.overflow, ref)
}

// ByField returns every ref whose Valid mask overlaps m — the
// field-masked lookup contract of §4.7.
func (s *InstanceSet) ByField(m fieldmask.FieldMask) []InstanceRef {
	var out []InstanceRef
	for _, r := range s.All() {
		if fieldmask.Overlaps(r.Valid, m) {
			out = append(out, r)
		}
	}
	return out
}

// Remove drops every ref for the given manager, copying backing
// storage first if shared.
func (s *InstanceSet) Remove(mgr ManagerHandle) {
	s.ensurePrivate()
	if len(s.overflow) > 0 {
		filtered := s.overflow[:0]
		for _, r := range s.overflow {
			if r.Manager != mgr {
				filtered = append(filtered, r)
			}
		}
		s.overflow = filtered
	}
	if s.hasInline && s.inline.Manager == mgr {
		if len(s.overflow) > 0 {
			s.inline = s.overflow[0]
			s.overflow = s.overflow[1:]
		} else {
			s.hasInline = false
			s.inline = InstanceRef{}
		}
	}
}

// Pack serializes the set (manager handle + field mask per ref; ready
// events are transient and not part of the wire representation).
func (s *InstanceSet) Pack() []byte {
	refs := s.All()
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(len(refs)))
	for _, r := range refs {
		var hdr [8]byte
		binary.LittleEndian.PutUint64(hdr[:], uint64(r.Manager))
		out = append(out, hdr[:]...)
		body := r.Valid.Pack()
		var blen [4]byte
		binary.LittleEndian.PutUint32(blen[:], uint32(len(body)))
		out = append(out, blen[:]...)
		out = append(out, body...)
	}
	return out
}

// Unpack deserializes a previously-packed InstanceSet. Unpacked refs
// carry no Ready event (the caller must attach one, since readiness is
// a runtime property, not wire state).
func Unpack(data []byte) (*InstanceSet, []byte, bool) {
	if len(data) < 4 {
		return nil, data, false
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	data = data[4:]
	out := New()
	for i := uint32(0); i < n; i++ {
		if len(data) < 12 {
			return nil, data, false
		}
		mgr := ManagerHandle(binary.LittleEndian.Uint64(data[0:8]))
		blen := binary.LittleEndian.Uint32(data[8:12])
		data = data[12:]
		if uint32(len(data)) < blen {
			return nil, data, false
		}
		mask, _, ok := fieldmask.Unpack(data[:blen])
		if !ok {
			return nil, data, false
		}
		data = data[blen:]
		out.Add(InstanceRef{Manager: mgr, Valid: mask})
	}
	return out, data, true
}
