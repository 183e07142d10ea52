package planner

import "testing"

func TestFilterEqNeq(t *testing.T) {
	f := Filter{Op: OpEq, Value: "fox"}
	if ok, _ := f.Matches("fox"); !ok {
		t.Fatal("expected eq match")
	}
	if ok, _ := f.Matches("dog"); ok {
		t.Fatal("expected eq mismatch")
	}
}

func TestFilterNumericOrdering(t *testing.T) {
	f := Filter{Op: OpGt, Value: float64(1)}
	cases := []struct {
		v    any
		want bool
	}{
		{float64(2), true},
		{int64(1), false},
		{float32(0.5), false},
	}
	for _, c := range cases {
		got, err := f.Matches(c.v)
		if err != nil {
			t.Fatalf("matches(%v): %v", c.v, err)
		}
		if got != c.want {
			t.Fatalf("matches(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestFilterNilNeverMatchesOrdering(t *testing.T) {
	f := Filter{Op: OpGte, Value: float64(0)}
	if ok, _ := f.Matches(nil); ok {
		t.Fatal("expected nil to never satisfy an ordering filter")
	}
}

func TestFilterInNotIn(t *testing.T) {
	f := Filter{Op: OpIn, Values: []any{"a", "b"}}
	if ok, _ := f.Matches("b"); !ok {
		t.Fatal("expected 'b' in {a,b}")
	}
	if ok, _ := f.Matches("c"); ok {
		t.Fatal("expected 'c' not in {a,b}")
	}

	nf := Filter{Op: OpNotIn, Values: []any{"a", "b"}}
	if ok, _ := nf.Matches("c"); !ok {
		t.Fatal("expected 'c' not_in {a,b}")
	}
}

func TestFilterExists(t *testing.T) {
	present := Filter{Op: OpExists}
	if ok, _ := present.Matches("anything"); !ok {
		t.Fatal("expected a non-nil value to satisfy a default exists filter")
	}
	if ok, _ := present.Matches(nil); ok {
		t.Fatal("expected nil to fail a default exists filter")
	}

	absent := Filter{Op: OpExists, Value: false}
	if ok, _ := absent.Matches(nil); !ok {
		t.Fatal("expected nil to satisfy exists=false")
	}
	if ok, _ := absent.Matches("x"); ok {
		t.Fatal("expected a present value to fail exists=false")
	}
}

func TestFilterUnorderableTypesErrors(t *testing.T) {
	f := Filter{Key: "x", Op: OpGt, Value: "abc"}
	_, err := f.Matches(true)
	if err == nil {
		t.Fatal("expected an error comparing bool against string")
	}
}
