// Package stats computes per-leaf statistics and grouped counts over a
// store view (spec §4.8). Both operations select the target leaf with
// selector.Unnest: each matched leaf occurrence (including every element
// under a repeated wildcard) becomes one independent sample, which is
// where the selector's Flatten/Unnest distinction actually takes effect —
// Select itself returns the same per-row slice either way, and it is the
// caller here that explodes it into one logical row per occurrence.
package stats

import (
	"context"
	"fmt"
	"math"

	"github.com/lilacdata/lilac/engine/planner"
	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/engine/selector"
	"github.com/lilacdata/lilac/engine/store"
	"github.com/lilacdata/lilac/lilaerr"
)

// approxDistinctSampleSize is the fixed large N spec §4.8 describes:
// approximate distinct count is taken from the first N non-null values
// encountered, not a full scan.
const approxDistinctSampleSize = 10000

// numAutoBins is spec §4.8's NUM_AUTO_BINS: the number of equal-width
// bins auto-derived from a numeric leaf's min/max when no bins are
// declared.
const numAutoBins = 10

// tooManyDistinctThreshold is the "threshold" spec §4.8 refers to for
// the TooManyDistinct sentinel on unbinned, unbounded group-bys.
const tooManyDistinctThreshold = 1000

// Stats is one leaf path's summary (spec §6 stats() result).
type Stats struct {
	TotalCount     int
	ApproxDistinct int
	Min            any
	Max            any
	AvgTextLength  *float64
}

// Compute gathers Stats for path over every row in view.
func Compute(ctx context.Context, view *store.View, path string) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, lilaerr.Wrap(lilaerr.KindCancelled, path, err)
	}
	sel, err := selector.Compile(view.Schema, schema.ParsePath(path))
	if err != nil {
		return nil, err
	}

	values, err := collect(sel, view, nil, nil)
	if err != nil {
		return nil, err
	}

	st := &Stats{}
	seen := make(map[string]struct{}, approxDistinctSampleSize)
	var textLenSum, textLenCount int64
	var min, max any

	for _, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(float64); ok && sel.Field.Dtype.IsFloat() && math.IsNaN(s) {
			continue
		}
		st.TotalCount++

		if st.TotalCount <= approxDistinctSampleSize {
			seen[toKey(v)] = struct{}{}
		}

		if sel.Field.Dtype == schema.DTypeString {
			if s, ok := v.(string); ok {
				textLenSum += int64(len([]rune(s)))
				textLenCount++
			}
		}

		if sel.Field.Dtype.IsOrdered() {
			if min == nil {
				min, max = v, v
				continue
			}
			if cmp, ok := planner.CompareValues(v, min); ok && cmp < 0 {
				min = v
			}
			if cmp, ok := planner.CompareValues(v, max); ok && cmp > 0 {
				max = v
			}
		}
	}

	st.ApproxDistinct = len(seen)
	if sel.Field.Dtype.IsOrdered() {
		st.Min, st.Max = min, max
	}
	if textLenCount > 0 {
		avg := float64(textLenSum) / float64(textLenCount)
		st.AvgTextLength = &avg
	}
	return st, nil
}

// collect runs sel over every row in view that passes filters, exploding
// each row's selected occurrences into one flat slice of samples.
func collect(sel *selector.Selector, view *store.View, filters []planner.Filter, selCache map[string]*selector.Selector) ([]any, error) {
	if selCache == nil {
		selCache = make(map[string]*selector.Selector)
	}
	var out []any
	for _, row := range view.Rows {
		ok, err := matchesFilters(view, filters, selCache, row.Value)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		v, err := sel.Select(selector.Unnest, row.Value)
		if err != nil {
			return nil, err
		}
		if list, isList := v.([]any); isList {
			out = append(out, list...)
		} else {
			out = append(out, v)
		}
	}
	return out, nil
}

func matchesFilters(view *store.View, filters []planner.Filter, selCache map[string]*selector.Selector, rowValue any) (bool, error) {
	for _, f := range filters {
		sel, ok := selCache[f.Key]
		if !ok {
			var err error
			sel, err = selector.Compile(view.Schema, schema.ParsePath(f.Key))
			if err != nil {
				return false, err
			}
			selCache[f.Key] = sel
		}
		val, err := sel.Select(selector.Structured, rowValue)
		if err != nil {
			return false, err
		}
		matched, err := f.Matches(val)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func toKey(v any) string {
	return fmt.Sprintf("%v", v)
}
