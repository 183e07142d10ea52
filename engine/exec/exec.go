// Package exec runs a compiled query plan against an open store view, in
// the strict stage order the planner's routing implies (spec §4.7).
package exec

import (
	"context"
	"sort"
	"time"

	"github.com/lilacdata/lilac/engine/planner"
	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/engine/selector"
	"github.com/lilacdata/lilac/engine/store"
	"github.com/lilacdata/lilac/engine/udf"
	"github.com/lilacdata/lilac/engine/vectorindex"
	"github.com/lilacdata/lilac/lilaerr"
	"github.com/lilacdata/lilac/pkg/bitset"
	"github.com/lilacdata/lilac/pkg/fn"
	"github.com/lilacdata/lilac/pkg/metrics"
)

// Metrics is the package-level registry Execute reports to.
var Metrics = metrics.New()

var (
	executeDuration = Metrics.Histogram("lilac_exec_execute_duration_seconds", "Latency of one Execute call through the full stage pipeline", nil)
	executeErrors   = Metrics.Counter("lilac_exec_execute_errors_total", "Execute calls that returned an error")
	rowsReturned    = Metrics.Histogram("lilac_exec_rows_returned", "Rows returned per Execute call", []float64{1, 10, 50, 100, 500, 1000, 5000, 10000})
)

// Row is one output row: its row-id, per-selector materialized values
// keyed by column key, and, when combine_columns was requested, a single
// merged nested record.
type Row struct {
	RowID    string
	Columns  map[string]any
	Combined any
}

// Result is select_rows' structural output (spec §6 Query API).
type Result struct {
	Rows              []Row
	TotalMatchingRows int
}

// Executor runs Plans against one View.
type Executor struct {
	View  *store.View
	Index vectorindex.Index
	UDF   *udf.Runner
}

// New returns an Executor over view. index may be nil if the dataset has
// no vector-backed signals and the plan never references one. A default
// Runner is used when runner is nil.
func New(view *store.View, index vectorindex.Index, runner *udf.Runner) *Executor {
	if runner == nil {
		runner = udf.New(0, 0)
	}
	return &Executor{View: view, Index: index, UDF: runner}
}

// candidate is one row carried through the pipeline, alongside the values
// already materialized for each requested column, keyed by column key. A
// later selector can read an earlier one's output this way (the concept
// search label column chains off its score column's alias, see
// engine/planner).
type candidate struct {
	row     store.Row
	columns map[string]any
	// spans holds the match span a TextToSpan udf emitted alongside its
	// column's value, keyed by column key. Kept separate from columns so
	// filters/sort/chaining see the plain value while combine_columns
	// can still render the {value, span} envelope.
	spans map[string]*schema.Span
}

// execState is the value threaded through the staged pipeline.
type execState struct {
	plan           *planner.Plan
	combineColumns bool

	allowed *bitset.Set // non-nil when the vector top-K shortcut ran; ordinals into e.View.Rows
	candidates []*candidate
	limited    bool // true once limit/offset has been applied
	total      int

	selectors map[string]*selector.Selector
}

func (e *Executor) selectorFor(st *execState, path string) (*selector.Selector, error) {
	if sel, ok := st.selectors[path]; ok {
		return sel, nil
	}
	sel, err := selector.Compile(e.View.Schema, schema.ParsePath(path))
	if err != nil {
		return nil, err
	}
	st.selectors[path] = sel
	return sel, nil
}

// Execute runs plan against e's view.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan, combineColumns bool) (*Result, error) {
	start := time.Now()
	result, err := e.execute(ctx, plan, combineColumns)
	executeDuration.Since(start)
	if err != nil {
		executeErrors.Inc()
		return nil, err
	}
	rowsReturned.Observe(float64(len(result.Rows)))
	return result, nil
}

func (e *Executor) execute(ctx context.Context, plan *planner.Plan, combineColumns bool) (*Result, error) {
	st := &execState{plan: plan, combineColumns: combineColumns, selectors: make(map[string]*selector.Selector)}

	pipeline := fn.Pipeline(
		fn.TracedStage("exec.vector_topk_shortcut", e.stepVectorTopK),
		fn.TracedStage("exec.pre_udf", e.stepPreUDF),
		fn.TracedStage("exec.udf_columns", e.stepUDFColumns),
		fn.TracedStage("exec.post_udf", e.stepPostUDF),
		fn.TracedStage("exec.combine", e.stepCombine),
	)

	r := pipeline(ctx, st)
	final, err := r.Unwrap()
	if err != nil {
		return nil, err
	}
	return final.toResult(), nil
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return lilaerr.Wrap(lilaerr.KindCancelled, "", err)
	}
	return nil
}

// stepVectorTopK performs the plan's vector top-K shortcut, if any, ahead
// of the pre-UDF stage, turning its hits into a row-id allowlist the rest
// of the pipeline filters against (spec §4.7 rule 4).
func (e *Executor) stepVectorTopK(ctx context.Context, st *execState) fn.Result[*execState] {
	if err := checkCancelled(ctx); err != nil {
		return fn.Err[*execState](err)
	}
	if st.plan.TopK == nil {
		return fn.Ok(st)
	}
	if e.Index == nil {
		return fn.Err[*execState](lilaerr.New(lilaerr.KindVectorIndexMissing, st.plan.TopK.ColumnAlias,
			"plan requires a vector top-k shortcut but no vector index is configured"))
	}
	hits, err := e.Index.TopK(ctx, st.plan.TopK.QueryVector, st.plan.TopK.K, nil)
	if err != nil {
		return fn.Err[*execState](err)
	}
	allowed := bitset.New()
	for _, h := range hits {
		if row, ok := e.View.RowByID(h.Key.RowID); ok {
			allowed.Add(row.Ordinal)
		}
	}
	st.allowed = allowed
	return fn.Ok(st)
}

// stepPreUDF evaluates pre-UDF filters and, when safe, pre-UDF sort plus
// limit/offset, materializing the candidate batch (spec §4.7 step 2).
func (e *Executor) stepPreUDF(ctx context.Context, st *execState) fn.Result[*execState] {
	if err := checkCancelled(ctx); err != nil {
		return fn.Err[*execState](err)
	}

	candidates := make([]*candidate, 0, len(e.View.Rows))
	for _, row := range e.View.Rows {
		if st.allowed != nil && !st.allowed.Contains(row.Ordinal) {
			continue
		}
		ok, err := e.matchesAll(st, st.plan.PreFilters, row.Value)
		if err != nil {
			return fn.Err[*execState](err)
		}
		if !ok {
			continue
		}
		candidates = append(candidates, &candidate{row: row, columns: make(map[string]any), spans: make(map[string]*schema.Span)})
	}

	if st.plan.PreSort != nil {
		sorted, err := e.sortCandidates(st, candidates, st.plan.PreSort, func(c *candidate) (any, error) {
			sel, err := e.selectorFor(st, st.plan.PreSort.Key)
			if err != nil {
				return nil, err
			}
			return sel.Select(selector.Structured, c.row.Value)
		})
		if err != nil {
			return fn.Err[*execState](err)
		}
		candidates = sorted
	}

	// Pushing the limit down here is only safe when nothing downstream can
	// still shrink the matched set: no post-UDF sort (plan already says
	// so via PrePushLimit) and no post-UDF filters either.
	if st.plan.PrePushLimit && len(st.plan.PostFilters) == 0 {
		st.total = len(candidates)
		candidates = paginate(candidates, st.plan.Limit, st.plan.Offset)
		st.limited = true
	}

	st.candidates = candidates
	return fn.Ok(st)
}

func (e *Executor) matchesAll(st *execState, filters []planner.Filter, row any) (bool, error) {
	for _, f := range filters {
		sel, err := e.selectorFor(st, f.Key)
		if err != nil {
			return false, err
		}
		val, err := sel.Select(selector.Structured, row)
		if err != nil {
			return false, err
		}
		ok, err := f.Matches(val)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func paginate(candidates []*candidate, limit, offset int) []*candidate {
	if offset > len(candidates) {
		return nil
	}
	candidates = candidates[offset:]
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	return candidates
}

func (e *Executor) sortCandidates(st *execState, candidates []*candidate, spec *planner.SortSpec, valueOf func(*candidate) (any, error)) ([]*candidate, error) {
	type kv struct {
		c *candidate
		v any
	}
	kvs := make([]kv, len(candidates))
	for i, c := range candidates {
		v, err := valueOf(c)
		if err != nil {
			return nil, err
		}
		kvs[i] = kv{c, v}
	}
	isNaN := func(v any) bool {
		switch f := v.(type) {
		case float64:
			return f != f
		case float32:
			return f != f
		}
		return false
	}
	sort.SliceStable(kvs, func(i, j int) bool {
		// NaN keys never enter the comparison; they sort after every
		// other key in either direction.
		if iNaN, jNaN := isNaN(kvs[i].v), isNaN(kvs[j].v); iNaN || jNaN {
			return !iNaN && jNaN
		}
		cmp, ok := planner.CompareValues(kvs[i].v, kvs[j].v)
		if !ok {
			return false
		}
		if spec.Desc {
			return cmp > 0
		}
		return cmp < 0
	})
	out := make([]*candidate, len(kvs))
	for i, pair := range kvs {
		out[i] = pair.c
	}
	return out, nil
}

// stepPostUDF applies post-UDF filters and sort, then the final
// limit/offset if it wasn't already pushed down (spec §4.7 step 5).
func (e *Executor) stepPostUDF(ctx context.Context, st *execState) fn.Result[*execState] {
	if err := checkCancelled(ctx); err != nil {
		return fn.Err[*execState](err)
	}

	candidates := st.candidates
	if len(st.plan.PostFilters) > 0 {
		filtered := make([]*candidate, 0, len(candidates))
		for _, c := range candidates {
			ok := true
			for _, f := range st.plan.PostFilters {
				m, err := f.Matches(c.columns[f.Key])
				if err != nil {
					return fn.Err[*execState](err)
				}
				if !m {
					ok = false
					break
				}
			}
			if ok {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	if st.plan.PostSort != nil {
		sorted, err := e.sortCandidates(st, candidates, st.plan.PostSort, func(c *candidate) (any, error) {
			return c.columns[st.plan.PostSort.Key], nil
		})
		if err != nil {
			return fn.Err[*execState](err)
		}
		candidates = sorted
	}

	if !st.limited {
		st.total = len(candidates)
		candidates = paginate(candidates, st.plan.Limit, st.plan.Offset)
	}

	st.candidates = candidates
	return fn.Ok(st)
}

// stepCombine rebuilds each candidate's selected fragments into one nested
// record when combine_columns was requested (spec §4.7 step 6).
func (e *Executor) stepCombine(ctx context.Context, st *execState) fn.Result[*execState] {
	if err := checkCancelled(ctx); err != nil {
		return fn.Err[*execState](err)
	}
	if !st.combineColumns {
		return fn.Ok(st)
	}
	for _, c := range st.candidates {
		fragments := make([]any, 0, len(st.plan.Columns)+1)
		for _, col := range st.plan.Columns {
			v, ok := c.columns[col.Key()]
			if !ok {
				continue
			}
			if span, hasSpan := c.spans[col.Key()]; hasSpan {
				cell := schema.Cell{Value: v, Extras: map[string]any{"span": map[string]any{"start": span.Start, "end": span.End}}}
				v = cell.Lower()
			}
			fragments = append(fragments, nestAtPath(schema.ParsePath(col.Key()), v))
		}
		merged, err := schema.MergeRows(fragments...)
		if err != nil {
			return fn.Err[*execState](lilaerr.Wrap(lilaerr.KindDtypeConflict, "", err))
		}
		out := map[string]any{"row_id": c.row.RowID}
		if m, ok := merged.(map[string]any); ok {
			for k, v := range m {
				out[k] = v
			}
		} else if merged != nil {
			out["value"] = merged
		}
		c.columns["__combined"] = out
	}
	return fn.Ok(st)
}

// nestAtPath wraps value in nested maps so it sits at path in a row tree,
// the same convention engine/store's view join uses for signal fragments.
func nestAtPath(p schema.Path, value any) any {
	if len(p) == 0 {
		return value
	}
	seg := p[0]
	rest := nestAtPath(p[1:], value)
	if seg == schema.WildcardSegment {
		return rest
	}
	return map[string]any{seg: rest}
}

func (st *execState) toResult() *Result {
	rows := make([]Row, len(st.candidates))
	for i, c := range st.candidates {
		combined := c.columns["__combined"]
		delete(c.columns, "__combined")
		rows[i] = Row{RowID: c.row.RowID, Columns: c.columns, Combined: combined}
	}
	return &Result{Rows: rows, TotalMatchingRows: st.total}
}
