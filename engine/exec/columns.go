package exec

import (
	"context"

	"github.com/lilacdata/lilac/engine/planner"
	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/engine/selector"
	"github.com/lilacdata/lilac/engine/udf"
	"github.com/lilacdata/lilac/engine/vectorindex"
	"github.com/lilacdata/lilac/lilaerr"
	"github.com/lilacdata/lilac/pkg/fn"
)

// stepUDFColumns evaluates every requested column against the materialized
// candidate batch, in plan order so a chained column (concept search's
// label, which reads its own score column's output) sees its dependency's
// value already populated (spec §4.7 step 3).
func (e *Executor) stepUDFColumns(ctx context.Context, st *execState) fn.Result[*execState] {
	if err := checkCancelled(ctx); err != nil {
		return fn.Err[*execState](err)
	}
	for _, col := range st.plan.Columns {
		if err := e.evaluateColumn(ctx, st, col); err != nil {
			return fn.Err[*execState](err)
		}
	}
	return fn.Ok(st)
}

// columnInput is one candidate's resolved value for a column, before the
// UDF (if any) runs over it.
type columnInput struct {
	cand       *candidate
	value      any
	parentSpan *schema.Span
}

func (e *Executor) evaluateColumn(ctx context.Context, st *execState, col planner.ColumnSelector) error {
	inputs := make([]columnInput, len(st.candidates))
	for i, c := range st.candidates {
		in, err := e.resolveColumnInput(st, col, c)
		if err != nil {
			return err
		}
		inputs[i] = in
	}

	if col.UDF == nil {
		for i, c := range st.candidates {
			c.columns[col.Key()] = inputs[i].value
		}
		return nil
	}

	switch col.UDF.Spec.Kind {
	case udf.KindTextToText, udf.KindTextToSpan, udf.KindTextToEmbedding:
		return e.runComputeColumn(ctx, st, col, inputs)
	case udf.KindEmbeddingToScore:
		return e.runScoreColumn(ctx, st, col, inputs)
	case udf.KindEmbeddingToTopK:
		return lilaerr.New(lilaerr.KindUdfContractViolation, col.Key(),
			"embedding_to_topk udf %q cannot be evaluated as a per-row column; it only drives the planner's top-k shortcut", col.UDF.Spec.Name)
	default:
		return lilaerr.New(lilaerr.KindUdfContractViolation, col.Key(), "unknown udf kind %q", col.UDF.Spec.Kind)
	}
}

// resolveColumnInput projects col's input value for one candidate. An
// InputAny udf whose Path names an already-computed column's key reads
// that column's materialized output instead of selecting from the row,
// so chained columns (concept label over its score column) compose.
func (e *Executor) resolveColumnInput(st *execState, col planner.ColumnSelector, c *candidate) (columnInput, error) {
	if col.UDF != nil && col.UDF.Spec.InputKind == udf.InputAny {
		if v, ok := c.columns[col.Path]; ok {
			return columnInput{cand: c, value: v}, nil
		}
	}

	sel, err := e.selectorFor(st, col.Path)
	if err != nil {
		return columnInput{}, err
	}
	val, err := sel.Select(selector.Structured, c.row.Value)
	if err != nil {
		return columnInput{}, err
	}

	var parentSpan *schema.Span
	if sel.Field.Dtype == schema.DTypeStringSpan {
		parentSpan, err = sel.SelectSpan(c.row.Value)
		if err != nil {
			return columnInput{}, err
		}
	}
	return columnInput{cand: c, value: val, parentSpan: parentSpan}, nil
}

// runComputeColumn dispatches Text{Text,Span,Embedding} udfs through the
// runner's Compute/Run path, which itself preserves sparse nulls.
func (e *Executor) runComputeColumn(ctx context.Context, st *execState, col planner.ColumnSelector, inputs []columnInput) error {
	udfInputs := make([]udf.Input, len(inputs))
	for i, in := range inputs {
		udfInputs[i] = udf.Input{
			RowID:      in.cand.row.RowID,
			SpanIndex:  0,
			Value:      in.value,
			ParentSpan: in.parentSpan,
		}
	}
	outputs, err := e.UDF.Run(ctx, col.UDF, udfInputs, e.Index)
	if err != nil {
		return err
	}
	for i, out := range outputs {
		c := inputs[i].cand
		c.columns[col.Key()] = out.Value
		if out.Span != nil {
			c.spans[col.Key()] = out.Span
		}
	}
	return nil
}

// runScoreColumn dispatches EmbeddingToScore udfs through the runner's
// VectorCompute path, which has no sparse-null handling of its own since
// it deals in index keys rather than Input batches; dense filtering
// happens here instead.
func (e *Executor) runScoreColumn(ctx context.Context, st *execState, col planner.ColumnSelector, inputs []columnInput) error {
	if e.Index == nil {
		return lilaerr.New(lilaerr.KindVectorIndexMissing, col.Key(), "udf %q requires a vector index", col.UDF.Spec.Name)
	}

	keys := make([]vectorindex.Key, 0, len(inputs))
	denseAt := make([]int, 0, len(inputs))
	for i, in := range inputs {
		if in.value == nil {
			continue
		}
		keys = append(keys, vectorindex.Key{RowID: in.cand.row.RowID, SpanIndex: 0})
		denseAt = append(denseAt, i)
	}
	if len(keys) == 0 {
		return nil
	}

	scores, err := e.UDF.RunVectorCompute(ctx, col.UDF, keys, e.Index)
	if err != nil {
		return err
	}
	for i, score := range scores {
		inputs[denseAt[i]].cand.columns[col.Key()] = score
	}
	return nil
}
