package schema

import "fmt"

// MergeRows implements spec §3 invariant 5: a row's logical value is the
// cell-wise recursive merge of its source row and all signal rows sharing
// the same row-id. Record children union, list children zip element-wise,
// and leaves follow the Cell merge rule (MergeCells).
//
// Rows are generic decoded-JSON values: map[string]any for records,
// []any for repeated fields, and scalars/{value,...} envelopes for leaves.
func MergeRows(rows ...any) (any, error) {
	var acc any
	first := true
	for _, r := range rows {
		if r == nil {
			continue
		}
		if first {
			acc = r
			first = false
			continue
		}
		merged, err := mergeValue(acc, r)
		if err != nil {
			return nil, err
		}
		acc = merged
	}
	return acc, nil
}

func mergeValue(a, b any) (any, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		// A bare map could either be a record or a leaf's {value,...}
		// envelope. Envelopes are recognized by the presence of "value".
		_, aHasValue := am["value"]
		_, bHasValue := bm["value"]
		if aHasValue || bHasValue {
			return mergeLeafMaps(am, bm)
		}
		return mergeRecordMaps(am, bm)
	}
	al, aIsList := a.([]any)
	bl, bIsList := b.([]any)
	if aIsList && bIsList {
		return zipLists(al, bl)
	}
	if aIsMap != bIsMap {
		// One side is a map and the other is not: a record promoted from a
		// leaf (schema.Merge's leaf-to-record promotion) or a {value,...}
		// envelope. Either way the bare scalar folds under the map's
		// "value" key instead of being treated as a primitive conflict.
		rec, scalar := am, b
		if bIsMap {
			rec, scalar = bm, a
		}
		return mergeRecordMaps(map[string]any{"value": scalar}, rec)
	}
	// Neither side is a map here: compare both as cells.
	cellA := Lift(a)
	cellB := Lift(b)
	merged, err := MergeCells(cellA, cellB)
	if err != nil {
		return nil, err
	}
	return merged.Lower(), nil
}

func mergeLeafMaps(a, b map[string]any) (any, error) {
	merged, err := MergeCells(Lift(a), Lift(b))
	if err != nil {
		return nil, err
	}
	return merged.Lower(), nil
}

func mergeRecordMaps(a, b map[string]any) (any, error) {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if existing, ok := out[k]; ok {
			merged, err := mergeValue(existing, v)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = merged
		} else {
			out[k] = v
		}
	}
	return out, nil
}

func zipLists(a, b []any) ([]any, error) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]any, n)
	for i := 0; i < n; i++ {
		var av, bv any
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		merged, err := mergeValue(av, bv)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = merged
	}
	return out, nil
}
