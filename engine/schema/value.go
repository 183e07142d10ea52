package schema

import "fmt"

// Cell is a value at a leaf path. A cell is either a bare primitive, or the
// {value: prim, ...extras} envelope used whenever a signal annotates the
// same position with additional properties (spec §3). Readers must treat
// the two forms as semantically equal for the same position.
type Cell struct {
	Value  any
	Extras map[string]any
}

// Lift interprets a raw decoded JSON value as a Cell, unwrapping the
// {value, ...} envelope when present.
func Lift(raw any) Cell {
	if m, ok := raw.(map[string]any); ok {
		if v, hasValue := m["value"]; hasValue {
			extras := make(map[string]any, len(m)-1)
			for k, v := range m {
				if k != "value" {
					extras[k] = v
				}
			}
			if len(extras) == 0 {
				extras = nil
			}
			return Cell{Value: v, Extras: extras}
		}
	}
	return Cell{Value: raw}
}

// Lower renders a Cell back to its on-disk/in-row shape: a bare value when
// there are no extras, or the {value, ...extras} envelope otherwise.
func (c Cell) Lower() any {
	if len(c.Extras) == 0 {
		return c.Value
	}
	out := make(map[string]any, len(c.Extras)+1)
	for k, v := range c.Extras {
		out[k] = v
	}
	out["value"] = c.Value
	return out
}

// MergeCells implements the cell merge rule: primitive vs {value, ...}
// lifts to {value, ...}; primitive vs primitive must be equal or it is an
// error; extras from both sides union, with extra's keys winning on
// collision.
func MergeCells(base, extra Cell) (Cell, error) {
	if base.Value != nil && extra.Value != nil && !valuesEqual(base.Value, extra.Value) {
		return Cell{}, fmt.Errorf("schema: conflicting primitive values %v vs %v", base.Value, extra.Value)
	}
	out := Cell{Value: base.Value}
	if out.Value == nil {
		out.Value = extra.Value
	}
	if len(base.Extras) > 0 || len(extra.Extras) > 0 {
		out.Extras = make(map[string]any, len(base.Extras)+len(extra.Extras))
		for k, v := range base.Extras {
			out.Extras[k] = v
		}
		for k, v := range extra.Extras {
			out.Extras[k] = v
		}
	}
	return out, nil
}

func valuesEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
