package udf

import (
	"context"
	"fmt"
	"strings"

	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/engine/vectorindex"
)

// NewKeyword builds the UDF the planner synthesizes for a keyword search
// (spec §4.6 search synthesis, keyword case): a case-insensitive
// substring match on a string leaf that emits a match span and leaves
// the row null when there is no match, so it composes with the sparse
// null-filter convention everywhere else in the engine.
func NewKeyword(term string) *UDF {
	needle := strings.ToLower(term)
	return &UDF{
		Spec: Spec{
			Name:          "keyword",
			Params:        map[string]any{"term": term},
			InputKind:     InputText,
			Kind:          KindTextToSpan,
			OutputSchema:  schema.NewLeaf(schema.DTypeStringSpan),
			ProducesSpans: true,
		},
		Hooks: Hooks{
			Compute: func(_ context.Context, batch []Input) ([]Output, error) {
				out := make([]Output, len(batch))
				for i, in := range batch {
					text, _ := in.Value.(string)
					idx := strings.Index(strings.ToLower(text), needle)
					if idx < 0 {
						continue
					}
					span := schema.Span{Start: idx, End: idx + len(term)}
					out[i] = Output{Value: true, Span: &span}
				}
				return out, nil
			},
		},
	}
}

// EmbeddingProvider computes one embedding vector per input text, in
// order. Implementations batch internally as they see fit (e.g. one
// HTTP round trip per batch).
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NewTextEmbedding builds a TextToEmbedding UDF around an
// EmbeddingProvider, for the semantic-search synthesis case and for
// compute_signal calls that add an embedding column directly.
func NewTextEmbedding(name string, provider EmbeddingProvider) *UDF {
	return &UDF{
		Spec: Spec{
			Name:         name,
			InputKind:    InputText,
			Kind:         KindTextToEmbedding,
			OutputSchema: schema.NewLeaf(schema.DTypeEmbedding),
		},
		Hooks: Hooks{
			Compute: func(ctx context.Context, batch []Input) ([]Output, error) {
				texts := make([]string, len(batch))
				for i, in := range batch {
					texts[i], _ = in.Value.(string)
				}
				vectors, err := provider.EmbedBatch(ctx, texts)
				if err != nil {
					return nil, err
				}
				if len(vectors) != len(batch) {
					return nil, fmt.Errorf("udf: embedding provider returned %d vectors for %d texts", len(vectors), len(batch))
				}
				out := make([]Output, len(batch))
				for i, v := range vectors {
					out[i] = Output{Vector: v}
				}
				return out, nil
			},
		},
	}
}

// NewSemanticScore builds the EmbeddingToScore UDF the planner synthesizes
// for a semantic search (spec §4.6 search synthesis, semantic case): a
// per-row cosine score against a fixed query vector. There is no bulk
// get-by-key on vectorindex.Index, so each row's score is fetched via a
// k=1 TopK restricted to that row's own id — the same contract the
// top-K shortcut itself relies on, just narrowed to one row.
func NewSemanticScore(name string, query []float32) *UDF {
	return &UDF{
		Spec: Spec{
			Name:         name,
			InputKind:    InputTextEmbedding,
			Kind:         KindEmbeddingToScore,
			OutputSchema: schema.NewLeaf(schema.DTypeFloat32),
		},
		Hooks: Hooks{
			VectorCompute: func(ctx context.Context, keys []vectorindex.Key, index vectorindex.Index) ([]float32, error) {
				scores := make([]float32, len(keys))
				for i, key := range keys {
					hits, err := index.TopK(ctx, query, 1, map[string]bool{key.RowID: true})
					if err != nil {
						return nil, err
					}
					for _, h := range hits {
						if h.Key == key {
							scores[i] = h.Score
						}
					}
				}
				return scores, nil
			},
		},
	}
}

// NewSemanticTopK builds the EmbeddingToTopK UDF the planner's top-K
// shortcut invokes directly against the vector index.
func NewSemanticTopK(name string, query []float32) *UDF {
	return &UDF{
		Spec: Spec{
			Name:         name,
			InputKind:    InputTextEmbedding,
			Kind:         KindEmbeddingToTopK,
			OutputSchema: schema.NewLeaf(schema.DTypeFloat32),
		},
		Hooks: Hooks{
			VectorTopK: func(ctx context.Context, k int, index vectorindex.Index, prefix map[string]bool) ([]vectorindex.Hit, error) {
				return index.TopK(ctx, query, k, prefix)
			},
		},
	}
}
