// Package bitset provides a roaring-bitmap-backed set of dense row
// ordinals, used by the planner and executor to represent row-id
// universes without materializing slices of ids.
package bitset

import "github.com/RoaringBitmap/roaring"

// Set is a mutable set of uint32 row ordinals backed by a roaring bitmap.
// Row ordinals are dense positions into a shard's row-id column, assigned
// at discovery time; they are not stable across re-discovery.
type Set struct {
	bm *roaring.Bitmap
}

// New returns an empty Set.
func New() *Set {
	return &Set{bm: roaring.New()}
}

// FromSlice builds a Set containing the given ordinals.
func FromSlice(ordinals []uint32) *Set {
	return &Set{bm: roaring.BitmapOf(ordinals...)}
}

// Full returns a Set containing every ordinal in [0, n).
func Full(n uint32) *Set {
	bm := roaring.New()
	bm.AddRange(0, uint64(n))
	return &Set{bm: bm}
}

func (s *Set) Add(ordinal uint32) { s.bm.Add(ordinal) }

func (s *Set) Contains(ordinal uint32) bool { return s.bm.Contains(ordinal) }

func (s *Set) Len() int { return int(s.bm.GetCardinality()) }

// Slice returns the ordinals in ascending order.
func (s *Set) Slice() []uint32 { return s.bm.ToArray() }

// Clone returns an independent copy.
func (s *Set) Clone() *Set { return &Set{bm: s.bm.Clone()} }

// And returns the intersection of s and other, leaving both unmodified.
func (s *Set) And(other *Set) *Set {
	return &Set{bm: roaring.And(s.bm, other.bm)}
}

// Or returns the union of s and other, leaving both unmodified.
func (s *Set) Or(other *Set) *Set {
	return &Set{bm: roaring.Or(s.bm, other.bm)}
}

// AndNot returns the ordinals in s that are not in other.
func (s *Set) AndNot(other *Set) *Set {
	return &Set{bm: roaring.AndNot(s.bm, other.bm)}
}

// Iterator walks the set's ordinals in ascending order.
func (s *Set) Iterator() roaring.IntPeekable {
	return s.bm.Iterator()
}

// IsEmpty reports whether the set has no members.
func (s *Set) IsEmpty() bool { return s.bm.IsEmpty() }
