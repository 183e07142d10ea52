package planner

import (
	"fmt"

	"github.com/lilacdata/lilac/lilaerr"
)

// FilterOp is a comparison operator a Filter applies to one column's value.
type FilterOp string

const (
	OpEq     FilterOp = "eq"
	OpNeq    FilterOp = "neq"
	OpGt     FilterOp = "gt"
	OpGte    FilterOp = "gte"
	OpLt     FilterOp = "lt"
	OpLte    FilterOp = "lte"
	OpIn     FilterOp = "in"
	OpNotIn  FilterOp = "not_in"
	OpExists FilterOp = "exists"
)

// Filter is one predicate over a column selector or alias.
type Filter struct {
	Key    string
	Op     FilterOp
	Value  any
	Values []any
}

// Matches reports whether value satisfies the filter. A nil value fails
// every ordering op, matches Eq/In only against a nil comparand, passes
// Neq/NotIn against non-nil comparands, and under Exists matches only
// when Value is false.
func (f Filter) Matches(value any) (bool, error) {
	switch f.Op {
	case OpEq:
		return equalValues(value, f.Value), nil
	case OpNeq:
		return !equalValues(value, f.Value), nil
	case OpIn:
		for _, v := range f.Values {
			if equalValues(value, v) {
				return true, nil
			}
		}
		return false, nil
	case OpNotIn:
		for _, v := range f.Values {
			if equalValues(value, v) {
				return false, nil
			}
		}
		return true, nil
	case OpExists:
		want := true
		if b, ok := f.Value.(bool); ok {
			want = b
		}
		return (value != nil) == want, nil
	case OpGt, OpGte, OpLt, OpLte:
		if value == nil {
			return false, nil
		}
		cmp, ok := compareValues(value, f.Value)
		if !ok {
			return false, lilaerr.New(lilaerr.KindInvalidFilter, f.Key, "cannot order %T against %T", value, f.Value)
		}
		switch f.Op {
		case OpGt:
			return cmp > 0, nil
		case OpGte:
			return cmp >= 0, nil
		case OpLt:
			return cmp < 0, nil
		default: // OpLte
			return cmp <= 0, nil
		}
	default:
		return false, lilaerr.New(lilaerr.KindInvalidFilter, f.Key, "unknown filter op %q", f.Op)
	}
}

// CompareValues exposes compareValues for other engine packages (the
// executor's sort stages, stats' min/max) that need the same
// numeric-aware, string-fallback ordering a Filter uses.
func CompareValues(a, b any) (int, bool) { return compareValues(a, b) }

// EqualValues exposes equalValues for other engine packages.
func EqualValues(a, b any) bool { return equalValues(a, b) }

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareValues orders a against b, returning -1/0/1 the way a three-way
// comparator does. Numeric values compare numerically; anything else
// compares as its string form.
func compareValues(a, b any) (int, bool) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint64:
		return float64(t), true
	default:
		return 0, false
	}
}
