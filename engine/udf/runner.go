package udf

import (
	"context"

	"github.com/lilacdata/lilac/engine/vectorindex"
	"github.com/lilacdata/lilac/lilaerr"
	"github.com/lilacdata/lilac/pkg/fn"
)

// Runner dispatches Compute/VectorCompute/VectorTopK calls over bounded
// worker pools, enforcing the UDF contract (spec §4.5).
type Runner struct {
	// Workers bounds concurrent compute chunks.
	Workers int
	// ChunkSize is how many dense inputs each worker call receives.
	ChunkSize int
}

// New returns a Runner with sane defaults for zero/negative fields.
func New(workers, chunkSize int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	if chunkSize <= 0 {
		chunkSize = 64
	}
	return &Runner{Workers: workers, ChunkSize: chunkSize}
}

// Run executes a TextToText/TextToSpan/TextToEmbedding UDF over inputs,
// preserving null positions, enforcing the batch contract, offsetting
// spans, and persisting embeddings to index when the UDF emits vectors.
func (r *Runner) Run(ctx context.Context, u *UDF, inputs []Input, index vectorindex.Index) ([]Output, error) {
	if u.Hooks.Compute == nil {
		return nil, lilaerr.New(lilaerr.KindUdfContractViolation, u.Spec.Name,
			"udf %q (kind %s) has no compute hook", u.Spec.Name, u.Spec.Kind)
	}

	dense := make([]Input, 0, len(inputs))
	denseAt := make([]int, 0, len(inputs))
	for i, in := range inputs {
		if in.Value == nil {
			continue
		}
		dense = append(dense, in)
		denseAt = append(denseAt, i)
	}

	chunks := fn.Chunk(dense, r.ChunkSize)
	chunkResults := fn.ParMapResult(chunks, r.Workers, func(chunk []Input) fn.Result[[]Output] {
		return r.computeChunk(ctx, u, chunk)
	})

	outputs := make([]Output, len(inputs))
	pos := 0
	for _, cr := range chunkResults {
		vals, err := cr.Unwrap()
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			outputs[denseAt[pos]] = v
			pos++
		}
	}

	if u.Spec.ProducesSpans {
		offsetSpans(inputs, outputs)
	}

	if u.Spec.Kind == KindTextToEmbedding {
		if index == nil {
			return nil, lilaerr.New(lilaerr.KindVectorIndexMissing, u.Spec.Name,
				"embedding udf %q requires a vector index", u.Spec.Name)
		}
		if err := persistEmbeddings(ctx, index, inputs, outputs); err != nil {
			return nil, err
		}
	}

	return outputs, nil
}

// computeChunk invokes the UDF's Compute hook over one chunk, recovering
// a panic into a UdfContractViolation rather than crashing the query.
func (r *Runner) computeChunk(ctx context.Context, u *UDF, chunk []Input) (result fn.Result[[]Output]) {
	defer func() {
		if rec := recover(); rec != nil {
			result = fn.Err[[]Output](lilaerr.New(lilaerr.KindUdfContractViolation, u.Spec.Name,
				"compute panicked: %v", rec))
		}
	}()

	out, err := u.Hooks.Compute(ctx, chunk)
	if err != nil {
		return fn.Err[[]Output](lilaerr.Wrap(lilaerr.KindUdfContractViolation, u.Spec.Name, err))
	}
	if len(out) != len(chunk) {
		return fn.Err[[]Output](lilaerr.New(lilaerr.KindUdfContractViolation, u.Spec.Name,
			"compute returned %d outputs for %d inputs", len(out), len(chunk)))
	}
	return fn.Ok(out)
}

// offsetSpans shifts every emitted span by its input's parent span start,
// so chained spans index into the original string (rule 3).
func offsetSpans(inputs []Input, outputs []Output) {
	for i := range outputs {
		if outputs[i].Span == nil || inputs[i].ParentSpan == nil {
			continue
		}
		offset := outputs[i].Span.Offset(inputs[i].ParentSpan.Start)
		outputs[i].Span = &offset
	}
}

// persistEmbeddings writes every non-nil output vector to index keyed by
// (row-id, span-index), then nulls the in-memory vector so the row-store
// write path never sees an inline embedding (rule 4).
func persistEmbeddings(ctx context.Context, index vectorindex.Index, inputs []Input, outputs []Output) error {
	entries := make([]vectorindex.Entry, 0, len(outputs))
	for i, out := range outputs {
		if out.Vector == nil {
			continue
		}
		entries = append(entries, vectorindex.Entry{
			Key:    vectorindex.Key{RowID: inputs[i].RowID, SpanIndex: inputs[i].SpanIndex},
			Vector: out.Vector,
		})
	}
	if len(entries) == 0 {
		return nil
	}
	if err := index.Add(ctx, entries); err != nil {
		return lilaerr.Wrap(lilaerr.KindVectorIndexMissing, "", err)
	}
	for i := range outputs {
		outputs[i].Vector = nil
	}
	return nil
}

// RunVectorCompute executes an EmbeddingToScore UDF's per-row scoring
// hook, enforcing the same 1-1 output contract as Compute.
func (r *Runner) RunVectorCompute(ctx context.Context, u *UDF, keys []vectorindex.Key, index vectorindex.Index) (scores []float32, err error) {
	if u.Hooks.VectorCompute == nil {
		return nil, lilaerr.New(lilaerr.KindUdfContractViolation, u.Spec.Name,
			"udf %q has no vector_compute hook", u.Spec.Name)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = lilaerr.New(lilaerr.KindUdfContractViolation, u.Spec.Name, "vector_compute panicked: %v", rec)
		}
	}()

	scores, err = u.Hooks.VectorCompute(ctx, keys, index)
	if err != nil {
		return nil, lilaerr.Wrap(lilaerr.KindUdfContractViolation, u.Spec.Name, err)
	}
	if len(scores) != len(keys) {
		return nil, lilaerr.New(lilaerr.KindUdfContractViolation, u.Spec.Name,
			"vector_compute returned %d scores for %d keys", len(scores), len(keys))
	}
	return scores, nil
}

// RunVectorTopK executes an EmbeddingToTopK UDF's global ranking hook.
func (r *Runner) RunVectorTopK(ctx context.Context, u *UDF, k int, index vectorindex.Index, prefix map[string]bool) (hits []vectorindex.Hit, err error) {
	if u.Hooks.VectorTopK == nil {
		return nil, lilaerr.New(lilaerr.KindUdfContractViolation, u.Spec.Name,
			"udf %q has no vector_topk hook", u.Spec.Name)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = lilaerr.New(lilaerr.KindUdfContractViolation, u.Spec.Name, "vector_topk panicked: %v", rec)
		}
	}()
	return u.Hooks.VectorTopK(ctx, k, index, prefix)
}
