// Package memory implements an in-memory dense-matrix vector index, the
// default vectorindex.Index implementation (spec §4.4).
package memory

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"
	"sync"

	billy "github.com/go-git/go-billy/v5"

	"github.com/lilacdata/lilac/engine/vectorindex"
	"github.com/lilacdata/lilac/pkg/datasetfs"
	"github.com/lilacdata/lilac/pkg/fn"
)

// Index is a dense, L2-normalized matrix of vectors kept entirely in
// memory. Similarity is inner product on normalized vectors, which is
// equivalent to cosine similarity.
type Index struct {
	mu      sync.RWMutex
	keys    []vectorindex.Key
	vectors [][]float32
	byKey   map[vectorindex.Key]int
	fs      billy.Filesystem
}

// New returns an empty in-memory index that persists to fs when Persist
// is called. A nil fs defaults to an in-memory filesystem, suitable for
// tests and scratch indexes that are never reopened.
func New(fs ...billy.Filesystem) *Index {
	var chosen billy.Filesystem
	if len(fs) > 0 && fs[0] != nil {
		chosen = fs[0]
	} else {
		chosen = datasetfs.Memory()
	}
	return &Index{byKey: make(map[vectorindex.Key]int), fs: chosen}
}

var _ vectorindex.Index = (*Index)(nil)

func (idx *Index) Add(ctx context.Context, entries []vectorindex.Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, e := range entries {
		normalized := normalize(e.Vector)
		if pos, ok := idx.byKey[e.Key]; ok {
			idx.vectors[pos] = normalized
			continue
		}
		idx.byKey[e.Key] = len(idx.keys)
		idx.keys = append(idx.keys, e.Key)
		idx.vectors = append(idx.vectors, normalized)
	}
	return nil
}

func (idx *Index) TopK(ctx context.Context, query []float32, k int, prefix map[string]bool) ([]vectorindex.Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	q := normalize(query)

	type scored struct {
		key   vectorindex.Key
		score float32
	}
	candidates := make([]scored, 0, len(idx.keys))
	for i, key := range idx.keys {
		if prefix != nil && !prefix[key.RowID] {
			continue
		}
		candidates = append(candidates, scored{key: key, score: innerProduct(q, idx.vectors[i])})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].key.Less(candidates[j].key)
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	hits := make([]vectorindex.Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = vectorindex.Hit{Key: candidates[i].key, Score: candidates[i].score}
	}
	return hits, nil
}

// persistedEntry is the JSON-side-table row; vectors themselves are
// written as a flat binary block so large indexes don't pay JSON's
// per-float encoding overhead.
type persistedEntry struct {
	RowID     string `json:"row_id"`
	SpanIndex int    `json:"span_index"`
	Offset    int64  `json:"offset"`
	Dims      int    `json:"dims"`
}

func (idx *Index) Persist(ctx context.Context, dest string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var vecBuf bytes.Buffer
	entries := make([]persistedEntry, len(idx.keys))
	var offset int64
	for i, key := range idx.keys {
		vec := idx.vectors[i]
		entries[i] = persistedEntry{RowID: key.RowID, SpanIndex: key.SpanIndex, Offset: offset, Dims: len(vec)}
		for _, f := range vec {
			if err := binary.Write(&vecBuf, binary.LittleEndian, f); err != nil {
				return err
			}
		}
		offset += int64(len(vec) * 4)
	}

	meta, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := datasetfs.WriteFile(idx.fs, dest+".meta.json", meta); err != nil {
		return err
	}
	return datasetfs.WriteFile(idx.fs, dest+".vectors.bin", vecBuf.Bytes())
}

func (idx *Index) Load(ctx context.Context, src string) error {
	meta, err := datasetfs.ReadFile(idx.fs, src+".meta.json")
	if err != nil {
		return err
	}
	var entries []persistedEntry
	if err := json.Unmarshal(meta, &entries); err != nil {
		return err
	}
	vecData, err := datasetfs.ReadFile(idx.fs, src+".vectors.bin")
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.keys = make([]vectorindex.Key, 0, len(entries))
	idx.vectors = make([][]float32, 0, len(entries))
	idx.byKey = make(map[vectorindex.Key]int, len(entries))

	for _, e := range entries {
		vec := make([]float32, e.Dims)
		r := bytes.NewReader(vecData[e.Offset : e.Offset+int64(e.Dims*4)])
		for i := range vec {
			if err := binary.Read(r, binary.LittleEndian, &vec[i]); err != nil {
				return err
			}
		}
		key := vectorindex.Key{RowID: e.RowID, SpanIndex: e.SpanIndex}
		idx.byKey[key] = len(idx.keys)
		idx.keys = append(idx.keys, key)
		idx.vectors = append(idx.vectors, vec)
	}
	return nil
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return append([]float32(nil), v...)
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f / norm
	}
	return out
}

func innerProduct(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// AddParallel adds entries using a bounded worker pool for the
// normalization step, useful when batching large embedding outputs from
// a UDF. Grounded on pkg/fn.ParMap's bounded-parallelism shape.
func (idx *Index) AddParallel(ctx context.Context, entries []vectorindex.Entry, workers int) error {
	normalized := fn.ParMap(entries, workers, func(e vectorindex.Entry) vectorindex.Entry {
		return vectorindex.Entry{Key: e.Key, Vector: normalize(e.Vector)}
	})
	return idx.Add(ctx, normalized)
}
