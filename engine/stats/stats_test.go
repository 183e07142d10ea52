package stats

import (
	"context"
	"math"
	"testing"

	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/engine/store"
)

func testSchema() *schema.Schema {
	return schema.New([]string{"text", "n", "tags"}, map[string]*schema.Field{
		"text": schema.NewLeaf(schema.DTypeString),
		"n":    schema.NewLeaf(schema.DTypeFloat64),
		"tags": schema.NewRepeated(schema.NewLeaf(schema.DTypeString)),
	})
}

func testView(rows ...map[string]any) *store.View {
	storeRows := make([]store.Row, len(rows))
	for i, r := range rows {
		storeRows[i] = store.Row{RowID: r["row_id"].(string), Value: r}
	}
	return store.NewView(testSchema(), storeRows)
}

func TestComputeStatsNumericMinMaxAndDistinct(t *testing.T) {
	view := testView(
		map[string]any{"row_id": "a", "n": 1.0},
		map[string]any{"row_id": "b", "n": 5.0},
		map[string]any{"row_id": "c", "n": 5.0},
		map[string]any{"row_id": "d", "n": math.NaN()},
	)

	st, err := Compute(context.Background(), view, "n")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if st.TotalCount != 3 {
		t.Fatalf("expected 3 non-NaN values counted, got %d", st.TotalCount)
	}
	if st.Min != 1.0 || st.Max != 5.0 {
		t.Fatalf("expected min=1 max=5, got min=%v max=%v", st.Min, st.Max)
	}
	if st.ApproxDistinct != 2 {
		t.Fatalf("expected approx distinct 2 (1 and 5), got %d", st.ApproxDistinct)
	}
}

func TestComputeStatsAvgTextLength(t *testing.T) {
	view := testView(
		map[string]any{"row_id": "a", "text": "ab"},
		map[string]any{"row_id": "b", "text": "abcd"},
	)

	st, err := Compute(context.Background(), view, "text")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if st.AvgTextLength == nil || *st.AvgTextLength != 3 {
		t.Fatalf("expected avg text length 3, got %v", st.AvgTextLength)
	}
}

func TestComputeStatsRepeatedLeafExplodesOnePerElement(t *testing.T) {
	view := testView(
		map[string]any{"row_id": "a", "tags": []any{"x", "y"}},
		map[string]any{"row_id": "b", "tags": []any{"y"}},
	)

	st, err := Compute(context.Background(), view, "tags.*")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if st.TotalCount != 3 {
		t.Fatalf("expected 3 tag occurrences across both rows, got %d", st.TotalCount)
	}
	if st.ApproxDistinct != 2 {
		t.Fatalf("expected 2 distinct tags (x, y), got %d", st.ApproxDistinct)
	}
}

func TestComputeStatsCancelledContextFails(t *testing.T) {
	view := testView(map[string]any{"row_id": "a", "n": 1.0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Compute(ctx, view, "n"); err == nil {
		t.Fatal("expected a cancellation error")
	}
}
