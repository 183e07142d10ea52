// Package planner compiles a query (columns, filters, searches, sort,
// pagination) into a Plan the executor runs: which filters/sort apply
// before UDF evaluation, which after, and whether a vector top-K
// shortcut replaces "score everything then sort" (spec §4.6).
package planner

import (
	"context"
	"fmt"

	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/engine/udf"
	"github.com/lilacdata/lilac/lilaerr"
)

// SearchKind is the kind of synthesized search the planner expands into
// a UDF column (spec §4.6 rule 1, search synthesis cases a-c).
type SearchKind string

const (
	SearchKeyword  SearchKind = "keyword"
	SearchSemantic SearchKind = "semantic"
	SearchConcept  SearchKind = "concept"
)

// Search is a user-facing search request bound to a path.
type Search struct {
	Kind SearchKind
	Path string
	// Alias names the synthesized score column; defaults to
	// "search_<kind>_<index>" when empty (concept search appends
	// "_<namespace>_<concept_name>" to that default).
	Alias string

	// Term is the needle for SearchKeyword.
	Term string

	// QueryVector is the already-embedded query for SearchSemantic and
	// SearchConcept (the engine does not embed query text itself; the
	// caller supplies the vector, e.g. from the same embedding provider
	// used to compute the column).
	QueryVector []float32

	// Namespace/ConceptName identify the concept for SearchConcept.
	Namespace   string
	ConceptName string
	// ConceptLabels buckets the concept score into a human label,
	// lowest threshold first; a score takes the label of the last entry
	// whose threshold it is at or above, and an empty label when it is
	// below every threshold.
	ConceptLabels []ConceptLabel
}

// ConceptLabel is one score threshold/label pair for concept search
// (a simplified stand-in for the external concept learner's own
// labeling, which is out of this engine's scope).
type ConceptLabel struct {
	Threshold float32
	Label     string
}

// ColumnSelector is one requested output column: a path, optional alias,
// and optional attached UDF that computes the column's value from the
// path's raw cell.
type ColumnSelector struct {
	Path  string
	Alias string
	UDF   *udf.UDF
}

// Key is the name other clauses (filters, sort) reference this column
// by: its alias if set, otherwise its path.
func (c ColumnSelector) Key() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Path
}

// SortSpec orders rows by a column key.
type SortSpec struct {
	Key  string
	Desc bool
}

// Query is the engine's query input (spec §4.6).
type Query struct {
	Columns  []ColumnSelector
	Filters  []Filter
	Searches []Search
	Sort     *SortSpec
	Limit    int
	Offset   int
}

// TopKShortcut replaces scoring every row then sorting with a direct
// vector_topk call, per spec §4.6 rule 4.
type TopKShortcut struct {
	ColumnAlias string
	QueryVector []float32
	K           int
}

// Plan is the compiled, routed form of a Query.
type Plan struct {
	Columns []ColumnSelector

	PreFilters  []Filter
	PostFilters []Filter

	PreSort  *SortSpec
	PostSort *SortSpec

	// PrePushLimit is false when a post-UDF sort is present, since the
	// pre-UDF stage cannot know which rows the post-UDF sort will keep.
	PrePushLimit bool

	TopK *TopKShortcut

	Limit  int
	Offset int
}

// Compile normalizes a Query against sch into a Plan.
func Compile(sch *schema.Schema, q *Query) (*Plan, error) {
	columns := append([]ColumnSelector(nil), q.Columns...)
	sort := q.Sort
	queryVectors := make(map[string][]float32)

	var searchFilters []Filter
	for i, s := range q.Searches {
		expanded, filters, vector, err := expandSearch(sch, i, s)
		if err != nil {
			return nil, err
		}
		columns = append(columns, expanded...)
		searchFilters = append(searchFilters, filters...)
		if vector != nil {
			queryVectors[expanded[0].Key()] = vector
		}
		if sort == nil && (s.Kind == SearchSemantic || s.Kind == SearchConcept) {
			sort = &SortSpec{Key: expanded[0].Key(), Desc: true}
		}
	}

	if err := validateEmbeddingColumns(sch, columns); err != nil {
		return nil, err
	}

	udfKeys := make(map[string]bool, len(columns))
	for _, c := range columns {
		if c.UDF != nil {
			udfKeys[c.Key()] = true
		}
	}

	var preFilters, postFilters []Filter
	for _, f := range append(append([]Filter(nil), q.Filters...), searchFilters...) {
		if udfKeys[f.Key] {
			postFilters = append(postFilters, f)
		} else {
			preFilters = append(preFilters, f)
		}
	}

	plan := &Plan{
		Columns:      columns,
		PreFilters:   preFilters,
		PostFilters:  postFilters,
		PrePushLimit: true,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}

	if sort != nil {
		if sort.Key == "" {
			return nil, lilaerr.New(lilaerr.KindSortKeyUnknown, sort.Key, "empty sort key")
		}
		if udfKeys[sort.Key] {
			plan.PostSort = sort
			plan.PrePushLimit = false
		} else {
			plan.PreSort = sort
		}
	}

	if plan.PostSort != nil && plan.PostSort.Desc && q.Limit > 0 {
		if qv, ok := queryVectors[plan.PostSort.Key]; ok {
			plan.TopK = &TopKShortcut{
				ColumnAlias: plan.PostSort.Key,
				QueryVector: qv,
				K:           q.Limit + q.Offset,
			}
		}
	}

	return plan, nil
}

// expandSearch turns one Search into its synthesized column(s), the
// filter that makes a keyword search actually exclude non-matching rows
// (spec §4.6 rule 1a: keyword search is a substring filter, not just a
// scored column), and the query vector driving the top-k shortcut, if any.
func expandSearch(sch *schema.Schema, index int, s Search) ([]ColumnSelector, []Filter, []float32, error) {
	switch s.Kind {
	case SearchKeyword:
		if _, err := sch.GetLeaf(schema.ParsePath(s.Path)); err != nil {
			return nil, nil, nil, err
		}
		alias := s.Alias
		if alias == "" {
			alias = fmt.Sprintf("search_keyword_%d", index)
		}
		col := ColumnSelector{Path: s.Path, Alias: alias, UDF: udf.NewKeyword(s.Term)}
		filter := Filter{Key: alias, Op: OpEq, Value: true}
		return []ColumnSelector{col}, []Filter{filter}, nil, nil

	case SearchSemantic:
		if _, err := requireEmbeddingLeaf(sch, s.Path, "semantic search"); err != nil {
			return nil, nil, nil, err
		}
		alias := s.Alias
		if alias == "" {
			alias = fmt.Sprintf("search_semantic_%d", index)
		}
		return []ColumnSelector{{Path: s.Path, Alias: alias, UDF: udf.NewSemanticScore(alias, s.QueryVector)}}, nil, s.QueryVector, nil

	case SearchConcept:
		if _, err := requireEmbeddingLeaf(sch, s.Path, "concept search"); err != nil {
			return nil, nil, nil, err
		}
		alias := s.Alias
		if alias == "" {
			alias = fmt.Sprintf("search_concept_%d_%s_%s", index, s.Namespace, s.ConceptName)
		}
		scoreCol := ColumnSelector{Path: s.Path, Alias: alias, UDF: udf.NewSemanticScore(alias, s.QueryVector)}
		labelCol := ColumnSelector{Path: alias, Alias: alias + "_label", UDF: newConceptLabelUDF(s.ConceptLabels)}
		return []ColumnSelector{scoreCol, labelCol}, nil, s.QueryVector, nil

	default:
		return nil, nil, nil, lilaerr.New(lilaerr.KindUnknownSearchKind, s.Path, "unknown search kind %q", s.Kind)
	}
}

// requireEmbeddingLeaf resolves path to a leaf and requires it be an
// embedding, collapsing both "no such path" and "wrong dtype" into
// KindEmbeddingNotComputed (spec.md:106: "if missing, fail with
// EmbeddingNotComputed") rather than letting the raw PathNotFound/NotALeaf
// error from schema.Get leak through unwrapped.
func requireEmbeddingLeaf(sch *schema.Schema, path, use string) (*schema.Field, error) {
	leaf, err := sch.GetLeaf(schema.ParsePath(path))
	if err != nil {
		return nil, lilaerr.New(lilaerr.KindEmbeddingNotComputed, path, "%s requires an embedding column at %q", use, path)
	}
	if leaf.Dtype != schema.DTypeEmbedding {
		return nil, lilaerr.New(lilaerr.KindEmbeddingNotComputed, path, "%s requires an embedding column at %q", use, path)
	}
	return leaf, nil
}

// newConceptLabelUDF buckets a score UDF's own output into a human label.
// Its Path points at the score column's alias rather than a physical
// schema path — the executor resolves InputAny selectors whose Path
// names an already-computed UDF alias by reading that column's output
// instead of re-selecting from the row (a deliberate extension beyond
// the out-of-scope concept learner, which the engine treats as external).
func newConceptLabelUDF(buckets []ConceptLabel) *udf.UDF {
	return &udf.UDF{
		Spec: udf.Spec{
			Name:         "concept_label",
			InputKind:    udf.InputAny,
			Kind:         udf.KindTextToText,
			OutputSchema: schema.NewLeaf(schema.DTypeString),
		},
		Hooks: udf.Hooks{
			Compute: func(_ context.Context, batch []udf.Input) ([]udf.Output, error) {
				out := make([]udf.Output, len(batch))
				for i, in := range batch {
					score, ok := in.Value.(float32)
					if !ok {
						if f, fok := in.Value.(float64); fok {
							score, ok = float32(f), true
						}
					}
					if !ok {
						continue
					}
					out[i] = udf.Output{Value: labelForScore(score, buckets)}
				}
				return out, nil
			},
		},
	}
}

func labelForScore(score float32, buckets []ConceptLabel) string {
	label := ""
	for _, b := range buckets {
		if score >= b.Threshold {
			label = b.Label
		}
	}
	return label
}

func validateEmbeddingColumns(sch *schema.Schema, columns []ColumnSelector) error {
	for _, c := range columns {
		if c.UDF == nil || c.UDF.Spec.InputKind != udf.InputTextEmbedding {
			continue
		}
		if _, err := requireEmbeddingLeaf(sch, c.Path, fmt.Sprintf("udf %q", c.UDF.Spec.Name)); err != nil {
			return err
		}
	}
	return nil
}
