// Package vectorindex defines the pluggable vector-similarity index
// contract used by embedding-backed signals and the query planner's
// top-K shortcut (spec §4.4).
package vectorindex

import "context"

// Key identifies one embedding within a row: the row it belongs to and
// the position of the span it was computed over, since a single row may
// carry more than one embedding (e.g. one per sentence span).
type Key struct {
	RowID     string
	SpanIndex int
}

// Entry is one vector to add to the index.
type Entry struct {
	Key    Key
	Vector []float32
}

// Hit is a top-K search result.
type Hit struct {
	Key   Key
	Score float32
}

// Index is the pluggable vector-similarity capability. The default
// implementation is an in-memory dense matrix (package memory);
// alternates (Qdrant, HNSW, ...) honor the same contract.
type Index interface {
	// Add batch-inserts vectors.
	Add(ctx context.Context, entries []Entry) error

	// TopK returns the K nearest entries to query, ranked by cosine
	// similarity (inner product on L2-normalized vectors), restricted to
	// prefix's row-ids when prefix is non-nil. Ties break by Key order.
	TopK(ctx context.Context, query []float32, k int, prefix map[string]bool) ([]Hit, error)

	// Persist saves the index so a later process can Load it back.
	Persist(ctx context.Context, dest string) error

	// Load restores an index previously written by Persist.
	Load(ctx context.Context, src string) error
}

// Less orders two keys for deterministic tie-breaking: row-id first,
// then span index (spec §4.4 "ties are broken by key order").
func (k Key) Less(other Key) bool {
	if k.RowID != other.RowID {
		return k.RowID < other.RowID
	}
	return k.SpanIndex < other.SpanIndex
}
