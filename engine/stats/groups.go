package stats

import (
	"context"
	"sort"
	"strconv"

	"github.com/lilacdata/lilac/engine/planner"
	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/engine/selector"
	"github.com/lilacdata/lilac/engine/store"
	"github.com/lilacdata/lilac/lilaerr"
)

// GroupsRequest is select_groups' input (spec §6).
type GroupsRequest struct {
	Path    string
	Filters []planner.Filter
	// Bins overrides auto-binning; empty means "use the field's declared
	// bin hints, or auto-bin a numeric leaf, or group by raw value".
	Bins []schema.Bin
	// SortByCount orders by count instead of by value/bin order.
	SortByCount bool
	Desc        bool
	Limit       int
}

// GroupCount is one bucket's label (a raw value or a bin label) and count.
type GroupCount struct {
	Value string
	Count int
}

// GroupsResult is select_groups' output.
type GroupsResult struct {
	Counts          []GroupCount
	Bins            []schema.Bin
	TooManyDistinct bool
}

// ComputeGroups runs req against view.
func ComputeGroups(ctx context.Context, view *store.View, req GroupsRequest) (*GroupsResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, lilaerr.Wrap(lilaerr.KindCancelled, req.Path, err)
	}
	sel, err := selector.Compile(view.Schema, schema.ParsePath(req.Path))
	if err != nil {
		return nil, err
	}

	values, err := collect(sel, view, req.Filters, nil)
	if err != nil {
		return nil, err
	}

	bins := req.Bins
	if len(bins) == 0 {
		bins = sel.Field.Bins
	}
	if len(bins) == 0 && sel.Field.Dtype.IsNumeric() {
		bins = autoBins(values, sel.Field.Dtype)
	}

	if len(bins) > 0 {
		return groupByBins(bins, values, req)
	}
	return groupByValue(values, req)
}

// autoBins derives spec §4.8's NUM_AUTO_BINS equal-width bins from the
// sample's own min/max, open-ended on the first and last bucket.
func autoBins(values []any, dtype schema.DType) []schema.Bin {
	var min, max float64
	have := false
	for _, v := range values {
		f, ok := asFloat(v)
		if !ok || (dtype.IsFloat() && isNaN(f)) {
			continue
		}
		if !have {
			min, max = f, f
			have = true
			continue
		}
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
	}
	if !have {
		return nil
	}
	if max <= min {
		return []schema.Bin{{Label: formatBinEdge(min), Start: nil, End: nil}}
	}

	width := (max - min) / float64(numAutoBins)
	bins := make([]schema.Bin, numAutoBins)
	for i := 0; i < numAutoBins; i++ {
		start := min + float64(i)*width
		end := min + float64(i+1)*width
		b := schema.Bin{Label: binLabel(start, end, i == 0, i == numAutoBins-1)}
		if i > 0 {
			s := start
			b.Start = &s
		}
		if i < numAutoBins-1 {
			e := end
			b.End = &e
		}
		bins[i] = b
	}
	return bins
}

func binLabel(start, end float64, first, last bool) string {
	switch {
	case first:
		return "<" + formatBinEdge(end)
	case last:
		return ">=" + formatBinEdge(start)
	default:
		return "[" + formatBinEdge(start) + ", " + formatBinEdge(end) + ")"
	}
}

func formatBinEdge(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func groupByBins(bins []schema.Bin, values []any, req GroupsRequest) (*GroupsResult, error) {
	counts := make([]int, len(bins))
	for _, v := range values {
		f, ok := asFloat(v)
		if !ok || isNaN(f) {
			continue
		}
		for i, b := range bins {
			if binContains(b, f) {
				counts[i]++
				break
			}
		}
	}

	out := make([]GroupCount, len(bins))
	for i, b := range bins {
		out[i] = GroupCount{Value: b.Label, Count: counts[i]}
	}
	sortGroups(out, req)
	return &GroupsResult{Counts: applyLimit(out, req.Limit), Bins: bins}, nil
}

func binContains(b schema.Bin, v float64) bool {
	if b.Start != nil && v < *b.Start {
		return false
	}
	if b.End != nil && v >= *b.End {
		return false
	}
	return true
}

func groupByValue(values []any, req GroupsRequest) (*GroupsResult, error) {
	counts := make(map[string]int)
	for _, v := range values {
		if v == nil {
			continue
		}
		counts[toKey(v)]++
	}

	if len(counts) > tooManyDistinctThreshold {
		return &GroupsResult{TooManyDistinct: true}, nil
	}

	out := make([]GroupCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, GroupCount{Value: k, Count: c})
	}
	sortGroups(out, req)
	return &GroupsResult{Counts: applyLimit(out, req.Limit)}, nil
}

func sortGroups(out []GroupCount, req GroupsRequest) {
	sort.SliceStable(out, func(i, j int) bool {
		if req.SortByCount {
			if req.Desc {
				return out[i].Count > out[j].Count
			}
			return out[i].Count < out[j].Count
		}
		if req.Desc {
			return out[i].Value > out[j].Value
		}
		return out[i].Value < out[j].Value
	})
}

func applyLimit(out []GroupCount, limit int) []GroupCount {
	if limit > 0 && limit < len(out) {
		return out[:limit]
	}
	return out
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

func isNaN(f float64) bool {
	return f != f
}
