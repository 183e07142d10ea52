// Package manifestwriter is compute_signal's commit path: it runs a UDF
// over a dataset's current view, shapes the outputs into fragments and a
// schema subtree, and commits a new signal shard through the store's
// atomic append (spec §4.9, §5).
package manifestwriter

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/engine/selector"
	"github.com/lilacdata/lilac/engine/store"
	"github.com/lilacdata/lilac/engine/udf"
	"github.com/lilacdata/lilac/engine/vectorindex"
	"github.com/lilacdata/lilac/lilaerr"
	"github.com/lilacdata/lilac/pkg/eventbus"
)

// Writer owns the collaborators compute_signal and delete_signal need to
// turn a UDF run into a committed shard.
type Writer struct {
	Store  *store.Store
	Runner *udf.Runner
	Index  vectorindex.Index
	Bus    *eventbus.Bus
}

// New constructs a Writer. bus may be nil: eventing is best-effort.
func New(s *store.Store, runner *udf.Runner, index vectorindex.Index, bus *eventbus.Bus) *Writer {
	return &Writer{Store: s, Runner: runner, Index: index, Bus: bus}
}

// commitRetry bounds how long AppendSignalShard's atomic write is retried
// against transient filesystem errors before giving up (spec §5: shard
// commits are independent of other writers, but the underlying fs can
// still hiccup on a single attempt).
var commitRetry = backoff.NewExponentialBackOff(
	backoff.WithInitialInterval(100*time.Millisecond),
	backoff.WithMaxInterval(2*time.Second),
	backoff.WithMaxElapsedTime(10*time.Second),
)

// ComputeSignal runs u over path's current values in datasetDir's view and
// commits the result as a new signal shard (spec §4.4 "compute_signal").
// path is the UDF's input selection path; the signal's own output lands at
// a new child path, path + "." + u.Spec.Name, so the merged schema never
// needs to reconcile two different dtypes at the same leaf.
func (w *Writer) ComputeSignal(ctx context.Context, datasetDir, path string, u *udf.UDF) error {
	switch u.Spec.Kind {
	case udf.KindEmbeddingToScore, udf.KindEmbeddingToTopK:
		return lilaerr.New(lilaerr.KindUdfContractViolation, path,
			"signal %q is query-time only (kind %s), cannot be committed to a shard", u.Spec.Name, u.Spec.Kind)
	}

	view, err := store.OpenView(w.Store, datasetDir)
	if err != nil {
		return err
	}
	sel, err := selector.Compile(view.Schema, schema.ParsePath(path))
	if err != nil {
		return err
	}

	inputs, err := buildInputs(sel, view)
	if err != nil {
		return err
	}

	outputs, err := w.Runner.Run(ctx, u, inputs, w.Index)
	if err != nil {
		return err
	}

	fragments := make([]store.Fragment, 0, len(outputs))
	for i, out := range outputs {
		val := fragmentValue(u, out)
		if val == nil {
			continue
		}
		fragments = append(fragments, store.Fragment{RowID: inputs[i].RowID, Value: val})
	}

	enrichedPath := path + "." + u.Spec.Name
	manifest := &store.SignalManifest{
		DataSchema:   nestSchema(schema.ParsePath(enrichedPath), u.Spec.OutputSchema),
		Signal:       store.SignalDescriptor{Name: u.Spec.Name, Params: u.Spec.Params},
		EnrichedPath: enrichedPath,
	}
	if u.Spec.Kind == udf.KindTextToEmbedding {
		manifest.EmbeddingFilenamePrefix = store.SignalKey(u.Spec.Name, enrichedPath)
	}

	if err := w.commit(ctx, datasetDir, manifest, fragments); err != nil {
		return err
	}

	if w.Bus != nil {
		_ = w.Bus.PublishSignalComputed(ctx, eventbus.SignalComputedEvent{
			Dataset:    datasetDir,
			SignalName: u.Spec.Name,
			Path:       enrichedPath,
			RowCount:   len(fragments),
			At:         time.Now(),
		})
	}
	return nil
}

// DeleteSignal removes a previously committed signal's shard and manifest
// so it stops contributing to the dataset's view (spec §4.2).
func (w *Writer) DeleteSignal(ctx context.Context, datasetDir, signalName, enrichedPath string) error {
	if err := w.Store.DeleteSignalSubtree(datasetDir, signalName, enrichedPath); err != nil {
		return err
	}
	if w.Bus != nil {
		_ = w.Bus.PublishSignalDeleted(ctx, eventbus.SignalDeletedEvent{
			Dataset:    datasetDir,
			SignalName: signalName,
			Path:       enrichedPath,
			At:         time.Now(),
		})
	}
	return nil
}

// buildInputs projects path's current value (and, for string_span leaves,
// the parent span to offset chained spans against) out of every row of
// view into a dense udf.Input slice, preserving sparsity: a row whose
// value is absent at path carries a nil Value (rule 1).
func buildInputs(sel *selector.Selector, view *store.View) ([]udf.Input, error) {
	inputs := make([]udf.Input, len(view.Rows))
	for i, row := range view.Rows {
		val, err := sel.Select(selector.Structured, row.Value)
		if err != nil {
			return nil, err
		}
		in := udf.Input{RowID: row.RowID, SpanIndex: 0, Value: val}
		if val != nil && sel.Field.Dtype == schema.DTypeStringSpan {
			span, err := sel.SelectSpan(row.Value)
			if err != nil {
				return nil, err
			}
			in.ParentSpan = span
		}
		inputs[i] = in
	}
	return inputs, nil
}

// fragmentValue shapes one UDF output into the raw value a shard row
// stores, mirroring engine/exec's combine-column envelope convention: a
// span gets folded in as a Cell extra alongside the value, except for
// embedding signals, whose shard rows carry only the span the embedding
// was computed over — the vector itself already moved to the vector
// index inside Runner.Run (spec §4.5 rule 4: "row-store records only span
// positions"). A nil Value with no span means this row contributed
// nothing and is dropped entirely.
func fragmentValue(u *udf.UDF, out udf.Output) any {
	if u.Spec.Kind == udf.KindTextToEmbedding {
		if out.Span == nil {
			return nil
		}
		return map[string]any{"start": out.Span.Start, "end": out.Span.End}
	}
	if out.Value == nil && out.Span == nil {
		return nil
	}
	if out.Span == nil {
		return out.Value
	}
	cell := schema.Cell{
		Value:  out.Value,
		Extras: map[string]any{"span": map[string]any{"start": out.Span.Start, "end": out.Span.End}},
	}
	return cell.Lower()
}

// nestSchema wraps leaf in nested record/repeated fields so it sits at
// enrichedPath, matching how engine/store's AppendSignalShard expects a
// signal manifest's DataSchema to already be shaped at the full dataset
// path (see store_test.go's TestAppendSignalShardJoinsIntoView).
func nestSchema(p schema.Path, leaf *schema.Field) *schema.Schema {
	return &schema.Schema{Root: wrapField(p, leaf)}
}

func wrapField(p schema.Path, leaf *schema.Field) *schema.Field {
	if len(p) == 0 {
		return leaf
	}
	seg := p[0]
	rest := wrapField(p[1:], leaf)
	if seg == schema.WildcardSegment {
		return schema.NewRepeated(rest)
	}
	return schema.NewRecord([]string{seg}, map[string]*schema.Field{seg: rest})
}

// commit wraps Store.AppendSignalShard in exponential backoff retry, the
// first real consumer of cenkalti/backoff/v4 in this engine: a single
// fs hiccup shouldn't fail a signal run that otherwise computed cleanly.
func (w *Writer) commit(ctx context.Context, datasetDir string, manifest *store.SignalManifest, fragments []store.Fragment) error {
	b := backoff.WithContext(commitRetry, ctx)
	return backoff.Retry(func() error {
		return w.Store.AppendSignalShard(datasetDir, manifest, fragments)
	}, b)
}
