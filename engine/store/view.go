package store

import (
	"time"

	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/lilaerr"
	"github.com/lilacdata/lilac/pkg/metrics"
)

// Metrics is the package-level registry OpenView reports to. Exported so
// a host process can render it (metrics.Registry.Handler) alongside its
// own; nothing in this package starts an HTTP server for it.
var Metrics = metrics.New()

var (
	openViewDuration = Metrics.Histogram("lilac_store_open_view_duration_seconds", "Latency of OpenView's discovery, shard reads, and row-id join", nil)
	openViewErrors   = Metrics.Counter("lilac_store_open_view_errors_total", "OpenView calls that returned an error")
	shardReadsTotal  = Metrics.Counter("lilac_store_shard_reads_total", "Shard files read across all OpenView calls")
)

// Row is one logical row of a View: its row-id, dense ordinal position
// (stable only for the lifetime of the View), and merged value tree.
type Row struct {
	RowID   string
	Ordinal uint32
	Value   any
}

// View is the logical table formed by the row-id equi-join of a
// dataset's source shard and every signal shard (spec §4.2 "open view").
// Row-id is selected from the source only; signal contributions are
// sparse and absent rows simply don't merge anything at that path.
type View struct {
	Schema *schema.Schema
	Rows   []Row

	byRowID map[string]int // row-id -> index into Rows
}

// NewView builds a View directly from an already-joined set of rows,
// assigning ordinals by slice position. Used by tests and by callers that
// construct a view without going through OpenView's manifest discovery.
func NewView(sch *schema.Schema, rows []Row) *View {
	v := &View{Schema: sch, byRowID: make(map[string]int, len(rows))}
	for i, r := range rows {
		r.Ordinal = uint32(i)
		v.byRowID[r.RowID] = len(v.Rows)
		v.Rows = append(v.Rows, r)
	}
	return v
}

// RowByID returns the merged row for a given row-id.
func (v *View) RowByID(rowID string) (Row, bool) {
	idx, ok := v.byRowID[rowID]
	if !ok {
		return Row{}, false
	}
	return v.Rows[idx], true
}

// OpenView discovers the dataset's manifests and joins every contributing
// shard on row-id into a single logical table.
func OpenView(s *Store, datasetDir string) (*View, error) {
	start := time.Now()
	view, err := openView(s, datasetDir)
	openViewDuration.Since(start)
	if err != nil {
		openViewErrors.Inc()
	}
	return view, err
}

func openView(s *Store, datasetDir string) (*View, error) {
	d, err := discoverDataset(s.fs, datasetDir, s.cache)
	if err != nil {
		return nil, lilaerr.Wrap(lilaerr.KindShardMissing, datasetDir, err)
	}
	if d.Source == nil {
		return nil, lilaerr.New(lilaerr.KindShardMissing, datasetDir, "no source manifest found")
	}

	mergedSchema := d.Source.DataSchema
	for _, sm := range d.Signals {
		mergedSchema, err = schema.Merge(mergedSchema, sm.DataSchema)
		if err != nil {
			return nil, err
		}
	}

	view := &View{Schema: mergedSchema, byRowID: make(map[string]int)}

	for _, file := range d.Source.Files {
		frags, err := readShardFile(s.fs, file)
		shardReadsTotal.Inc()
		if err != nil {
			return nil, err
		}
		for _, f := range frags {
			if _, exists := view.byRowID[f.RowID]; exists {
				continue
			}
			view.byRowID[f.RowID] = len(view.Rows)
			view.Rows = append(view.Rows, Row{
				RowID:   f.RowID,
				Ordinal: uint32(len(view.Rows)),
				Value:   f.Value,
			})
		}
	}

	for _, sm := range d.Signals {
		enriched := schema.ParsePath(sm.EnrichedPath)
		for _, file := range sm.Files {
			frags, err := readShardFile(s.fs, file)
			shardReadsTotal.Inc()
			if err != nil {
				return nil, err
			}
			for _, f := range frags {
				idx, ok := view.byRowID[f.RowID]
				if !ok {
					continue // signal row with no matching source row; ignored
				}
				nested := nestAtPath(enriched, f.Value)
				merged, err := schema.MergeRows(view.Rows[idx].Value, nested)
				if err != nil {
					return nil, lilaerr.Wrap(lilaerr.KindDtypeConflict, sm.EnrichedPath, err)
				}
				view.Rows[idx].Value = merged
			}
		}
	}

	return view, nil
}

// nestAtPath wraps value in nested maps so it sits at the given path in a
// full row tree. Wildcard segments pass through unwrapped: the value at
// that point must already be shaped as the list the repeated field
// expects, aligned by the signal that produced it.
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
