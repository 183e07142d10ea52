package schema

import (
	"fmt"
	"time"
)

// Infer derives a schema by examining a sample of decoded JSON-like records
// (map[string]any / []any / scalars) and merging the per-record inference,
// per spec §4.1's "infer a schema from a sample of records".
func Infer(records []any) (*Schema, error) {
	acc := Empty()
	for i, rec := range records {
		m, ok := rec.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("schema: infer: record %d is not an object", i)
		}
		f, err := inferRecord(m)
		if err != nil {
			return nil, fmt.Errorf("schema: infer: record %d: %w", i, err)
		}
		merged, err := mergeField(acc.Root, f, nil)
		if err != nil {
			return nil, fmt.Errorf("schema: infer: record %d conflicts with prior records: %w", i, err)
		}
		acc = &Schema{Root: merged}
	}
	return acc, nil
}

func inferRecord(m map[string]any) (*Field, error) {
	order := make([]string, 0, len(m))
	fields := make(map[string]*Field, len(m))
	for k := range m {
		order = append(order, k)
	}
	for k, v := range m {
		f, err := inferValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		fields[k] = f
	}
	return NewRecord(order, fields), nil
}

func inferValue(v any) (*Field, error) {
	switch t := v.(type) {
	case nil:
		// Nulls carry no type information on their own; default to a
		// nullable string leaf, the most permissive scalar. Merge with a
		// same-path, differently-typed sibling in a later record will
		// surface as a DtypeConflict, which is the correct signal.
		return NewLeaf(DTypeString), nil
	case map[string]any:
		return inferRecord(t)
	case []any:
		if len(t) == 0 {
			return NewRepeated(NewLeaf(DTypeString)), nil
		}
		elem, err := inferValue(t[0])
		if err != nil {
			return nil, err
		}
		for i := 1; i < len(t); i++ {
			next, err := inferValue(t[i])
			if err != nil {
				return nil, err
			}
			elem, err = mergeField(elem, next, Path{WildcardSegment})
			if err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
		}
		return NewRepeated(elem), nil
	case bool:
		return NewLeaf(DTypeBoolean), nil
	case string:
		return NewLeaf(DTypeString), nil
	case float64:
		if t == float64(int64(t)) {
			return NewLeaf(DTypeInt64), nil
		}
		return NewLeaf(DTypeFloat64), nil
	case int, int32, int64:
		return NewLeaf(DTypeInt64), nil
	case float32:
		return NewLeaf(DTypeFloat32), nil
	case time.Time:
		return NewLeaf(DTypeTimestamp), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
