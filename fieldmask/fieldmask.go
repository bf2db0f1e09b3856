// Package fieldmask implements a dense bit-set over a field space's
// field indices: union, intersection, difference, emptiness, equality,
// and set-disjointness, each in O(words). Masks are only meaningful
// when compared within a single field space; the package does not
// itself track which field space a mask belongs to (that's the
// caller's job, same as the region forest tracks which index space an
// expression belongs to).
package fieldmask

import (
	"math/bits"
)

// word is the storage unit backing a FieldMask.
type word = uint64

const wordBits = 64

// FieldMask is a dense bit-set over field indices 0..N. The zero value
// is the empty mask.
type FieldMask struct {
	words []word
}

// FieldID indexes into a field space.
type FieldID uint32

// New returns an empty FieldMask sized to hold at least numFields bits.
func New(numFields int) FieldMask {
	if numFields <= 0 {
		return FieldMask{}
	}
	return FieldMask{words: make([]word, (numFields+wordBits-1)/wordBits)}
}

// Of returns a FieldMask with exactly the given fields set.
func Of(fields ...FieldID) FieldMask {
	var m FieldMask
	for _, f := range fields {
		m.Set(f)
	}
	return m
}

func wordIndex(f FieldID) int { return int(f) / wordBits }
func bitIndex(f FieldID) uint { return uint(f) % wordBits }

func (m *FieldMask) ensure(n int) {
	if len(m.words) >= n {
		return
	}
	grown := make([]word, n)
	copy(grown, m.words)
	m.words = grown
}

// Set sets field f.
func (m *FieldMask) Set(f FieldID) {
	m.ensure(wordIndex(f) + 1)
	m.words[wordIndex(f)] |= word(1) << bitIndex(f)
}

// Clear clears field f.
func (m *FieldMask) Clear(f FieldID) {
	if wordIndex(f) >= len(m.words) {
		return
	}
	m.words[wordIndex(f)] &^= word(1) << bitIndex(f)
}

// IsSet reports whether field f is set.
func (m FieldMask) IsSet(f FieldID) bool {
	if wordIndex(f) >= len(m.words) {
		return false
	}
	return m.words[wordIndex(f)]&(word(1)<<bitIndex(f)) != 0
}

func maxLen(a, b []word) int {
	if len(a) > len(b) {
		return len(a)
	}
	return len(b)
}

func at(w []word, i int) word {
	if i >= len(w) {
		return 0
	}
	return w[i]
}

// Union returns a | b.
func Union(a, b FieldMask) FieldMask {
	n := maxLen(a.words, b.words)
	out := make([]word, n)
	for i := range out {
		out[i] = at(a.words, i) | at(b.words, i)
	}
	return FieldMask{words: out}
}

// Intersect returns a & b.
func Intersect(a, b FieldMask) FieldMask {
	n := maxLen(a.words, b.words)
	out := make([]word, n)
	for i := range out {
		out[i] = at(a.words, i) & at(b.words, i)
	}
	return trim(out)
}

// Difference returns a &^ b, i.e. a - b.
func Difference(a, b FieldMask) FieldMask {
	n := len(a.words)
	out := make([]word, n)
	for i := range out {
		out[i] = at(a.words, i) &^ at(b.words, i)
	}
	return trim(out)
}

// trim drops trailing all-zero words so that Equal can compare by
// value regardless of how each mask grew.
func trim(w []word) FieldMask {
	n := len(w)
	for n > 0 && w[n-1] == 0 {
		n--
	}
	return FieldMask{words: w[:n]}
}

// Union/Intersect/Difference as methods for ergonomic chaining.
func (m FieldMask) Or(o FieldMask) FieldMask   { return Union(m, o) }
func (m FieldMask) And(o FieldMask) FieldMask  { return Intersect(m, o) }
func (m FieldMask) Sub(o FieldMask) FieldMask  { return Difference(m, o) }

// IsEmpty reports whether no field bit is set.
func (m FieldMask) IsEmpty() bool {
	for _, w := range m.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Equal reports whether a and b have exactly the same bits set.
func Equal(a, b FieldMask) bool {
	n := maxLen(a.words, b.words)
	for i := 0; i < n; i++ {
		if at(a.words, i) != at(b.words, i) {
			return false
		}
	}
	return true
}

func (m FieldMask) Equals(o FieldMask) bool { return Equal(m, o) }

// Disjoint reports whether a and b share no set bit.
func Disjoint(a, b FieldMask) bool {
	n := maxLen(a.words, b.words)
	for i := 0; i < n; i++ {
		if at(a.words, i)&at(b.words, i) != 0 {
			return false
		}
	}
	return true
}

func (m FieldMask) DisjointFrom(o FieldMask) bool { return Disjoint(m, o) }

// Overlaps reports whether a and b share at least one set bit —
// the complement of Disjoint, named the way §4.1's "tie-breaks" text
// uses "overlaps" for FieldState mergeability checks.
func Overlaps(a, b FieldMask) bool { return !Disjoint(a, b) }

// Count returns the number of set bits.
func (m FieldMask) Count() int {
	n := 0
	for _, w := range m.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Clone returns an independent copy of m.
func (m FieldMask) Clone() FieldMask {
	if len(m.words) == 0 {
		return FieldMask{}
	}
	out := make([]word, len(m.words))
	copy(out, m.words)
	return FieldMask{words: out}
}

// Fields returns the set field ids in ascending order.
func (m FieldMask) Fields() []FieldID {
	var out []FieldID
	for i, w := range m.words {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			out = append(out, FieldID(i*wordBits+tz))
			w &= w - 1
		}
	}
	return out
}

// Pack serializes m to bytes: a uint32 word count followed by that
// many little-endian uint64 words, matching the teacher's
// length-prefixed wire idiom (protocol/tlv.go's header-then-body
// shape) at the value level.
func (m FieldMask) Pack() []byte {
	out := make([]byte, 4+8*len(m.words))
	putU32(out[0:4], uint32(len(m.words)))
	for i, w := range m.words {
		putU64(out[4+8*i:4+8*i+8], w)
	}
	return out
}

// Unpack deserializes a FieldMask previously produced by Pack.
func Unpack(data []byte) (FieldMask, []byte, bool) {
	if len(data) < 4 {
		return FieldMask{}, data, false
	}
	n := int(getU32(data[0:4]))
	need := 4 + 8*n
	if len(data) < need {
		return FieldMask{}, data, false
	}
	words := make([]word, n)
	for i := 0; i < n; i++ {
		words[i] = getU64(data[4+8*i : 4+8*i+8])
	}
	return trim(words), data[need:], true
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
