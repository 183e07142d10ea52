package bitset

import "testing"

func TestFromSliceAndContains(t *testing.T) {
	s := FromSlice([]uint32{1, 3, 5})
	if !s.Contains(3) || s.Contains(2) {
		t.Fatalf("unexpected membership")
	}
	if s.Len() != 3 {
		t.Fatalf("expected len 3, got %d", s.Len())
	}
}

func TestFull(t *testing.T) {
	s := Full(4)
	if s.Len() != 4 {
		t.Fatalf("expected 4 ordinals, got %d", s.Len())
	}
	for i := uint32(0); i < 4; i++ {
		if !s.Contains(i) {
			t.Fatalf("expected %d to be present", i)
		}
	}
}

func TestAndOrAndNot(t *testing.T) {
	a := FromSlice([]uint32{1, 2, 3})
	b := FromSlice([]uint32{2, 3, 4})

	and := a.And(b)
	if and.Len() != 2 || !and.Contains(2) || !and.Contains(3) {
		t.Fatalf("unexpected AND result: %v", and.Slice())
	}

	or := a.Or(b)
	if or.Len() != 4 {
		t.Fatalf("unexpected OR cardinality: %d", or.Len())
	}

	diff := a.AndNot(b)
	if diff.Len() != 1 || !diff.Contains(1) {
		t.Fatalf("unexpected AndNot result: %v", diff.Slice())
	}

	// a and b must be unmodified by the set operations.
	if a.Len() != 3 || b.Len() != 3 {
		t.Fatalf("operands mutated: a=%d b=%d", a.Len(), b.Len())
	}
}

func TestCloneIndependence(t *testing.T) {
	a := FromSlice([]uint32{1})
	clone := a.Clone()
	clone.Add(2)
	if a.Contains(2) {
		t.Fatal("clone mutation leaked into original")
	}
}

func TestIsEmpty(t *testing.T) {
	if !New().IsEmpty() {
		t.Fatal("new set should be empty")
	}
	if FromSlice([]uint32{1}).IsEmpty() {
		t.Fatal("non-empty set reported empty")
	}
}
