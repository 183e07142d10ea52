// Package udf implements the signal runner: batch dispatch over
// user-defined functions, with sparse preservation, the batch contract,
// span offsetting, and embedding persistence (spec §4.5).
package udf

import (
	"context"

	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/engine/vectorindex"
)

// InputKind is the shape of value a UDF consumes.
type InputKind string

const (
	InputText          InputKind = "text"
	InputTextEmbedding InputKind = "text_embedding"
	InputAny           InputKind = "any"
)

// Kind is the tagged variant a signal belongs to. No subtype hierarchy:
// the Kind picks which of Hooks' functions the Runner calls.
type Kind string

const (
	KindTextToText      Kind = "text_to_text"
	KindTextToSpan      Kind = "text_to_span"
	KindTextToEmbedding Kind = "text_to_embedding"
	KindEmbeddingToScore Kind = "embedding_to_score"
	KindEmbeddingToTopK  Kind = "embedding_to_topk"
)

// Spec identifies a signal and shapes its output.
type Spec struct {
	Name   string
	Params map[string]any

	InputKind InputKind
	Kind      Kind

	// OutputSchema is the schema subtree attached at the enriched path.
	OutputSchema *schema.Field

	// ProducesSpans marks outputs whose Span field the Runner must
	// offset against the input's parent span (rule 3).
	ProducesSpans bool
}

// Input is one row's value fed to a UDF. A nil Value marks the row as
// absent for this signal (sparse preservation rule 1); RowID and
// SpanIndex key any embedding the UDF emits for this row back into the
// vector index.
type Input struct {
	RowID     string
	SpanIndex int
	Value     any

	// ParentSpan is set when Value itself came from resolving a
	// string_span leaf, so emitted spans can be offset against it.
	ParentSpan *schema.Span
}

// Output is one UDF result, aligned 1-1 with its Input.
type Output struct {
	Value  any
	Span   *schema.Span
	Vector []float32
}

// Hooks are the lifecycle functions a signal may implement. Kind decides
// which ones the Runner actually calls; the rest may be left nil.
type Hooks struct {
	Setup    func(ctx context.Context) error
	Teardown func(ctx context.Context) error

	// Compute serves TextToText, TextToSpan, and TextToEmbedding kinds:
	// it receives the dense subsequence in order and must return exactly
	// one Output per Input (batch contract, rule 2).
	Compute func(ctx context.Context, batch []Input) ([]Output, error)

	// VectorCompute serves EmbeddingToScore: a per-row score against
	// whatever query the UDF closed over, looked up through index.
	VectorCompute func(ctx context.Context, keys []vectorindex.Key, index vectorindex.Index) ([]float32, error)

	// VectorTopK serves EmbeddingToTopK: a global ranking restricted to
	// prefix's row-ids (or all rows when prefix is nil).
	VectorTopK func(ctx context.Context, k int, index vectorindex.Index, prefix map[string]bool) ([]vectorindex.Hit, error)
}

// UDF is a signal: identity/contract plus the hooks that implement it.
type UDF struct {
	Spec  Spec
	Hooks Hooks
}
