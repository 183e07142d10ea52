package main

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/segmentio/parquet-go"

	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/engine/store"
	"github.com/lilacdata/lilac/pkg/datasetfs"
)

// shardTestRow mirrors engine/store's unexported shardRow layout, since
// an external test can't reach across the package boundary to write one
// through the real shard writer.
type shardTestRow struct {
	RowID    string `parquet:"row_id"`
	Fragment []byte `parquet:"fragment"`
}

func writeTestShard(t *testing.T, fs billy.Filesystem, path string, values map[string]string) {
	t.Helper()
	rowIDs := make([]string, 0, len(values))
	for id := range values {
		rowIDs = append(rowIDs, id)
	}
	sort.Strings(rowIDs)

	rows := make([]shardTestRow, len(rowIDs))
	for i, id := range rowIDs {
		data, err := json.Marshal(map[string]any{"text": values[id]})
		if err != nil {
			t.Fatalf("marshal fragment: %v", err)
		}
		rows[i] = shardTestRow{RowID: id, Fragment: data}
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[shardTestRow](&buf)
	if _, err := w.Write(rows); err != nil {
		t.Fatalf("write parquet rows: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	if err := datasetfs.WriteFile(fs, path, buf.Bytes()); err != nil {
		t.Fatalf("write shard file: %v", err)
	}
}

// seedDataset writes a two-row source dataset directly to an OS-backed
// temp directory, so every openStore() call this test makes (each one
// opens its own Store/billy.Filesystem) sees the same on-disk state.
func seedDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	fs := datasetfs.Open(dir)

	sourceSchema := schema.New([]string{"text"}, map[string]*schema.Field{
		"text": schema.NewLeaf(schema.DTypeString),
	})
	if err := datasetfs.EnsureDir(fs, "/ds"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	shard := "/ds/data-00000-of-00001.parquet"
	writeTestShard(t, fs, shard, map[string]string{"r1": "hello world", "r2": "bonjour"})
	manifest := &store.SourceManifest{Files: []string{shard}, DataSchema: sourceSchema}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := datasetfs.WriteFile(fs, "/ds/manifest.json", data); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return dir
}

// resetGlobals restores the package-level flag-bound state RunE
// functions read from, so tests don't leak state into each other.
func resetGlobals(t *testing.T, root string) {
	t.Helper()
	rootDir = root
	indexBackend = "memory"
	qdrantAddr = ""
	qdrantCollection = ""
	natsURL = ""
	runnerWorkers = 0
	runnerChunkSize = 0
}

func TestManifestCmdPrintsSchema(t *testing.T) {
	dir := seedDataset(t)
	resetGlobals(t, dir)
	manifestDataset = "/ds"

	var out bytes.Buffer
	manifestCmd.SetOut(&out)
	if err := manifestCmd.RunE(manifestCmd, nil); err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if !strings.Contains(out.String(), `"text"`) {
		t.Fatalf("expected schema in manifest output, got %s", out.String())
	}
}

func TestStatsCmdComputesTextLength(t *testing.T) {
	dir := seedDataset(t)
	resetGlobals(t, dir)
	statsDataset = "/ds"
	statsPath = "text"

	var out bytes.Buffer
	statsCmd.SetOut(&out)
	if err := statsCmd.RunE(statsCmd, nil); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out.String(), `"TotalCount": 2`) {
		t.Fatalf("expected TotalCount 2 in stats output, got %s", out.String())
	}
	if !strings.Contains(out.String(), `"AvgTextLength": 9`) {
		t.Fatalf("expected AvgTextLength 9 in stats output, got %s", out.String())
	}
}

func TestComputeSignalThenQueryLengthColumn(t *testing.T) {
	dir := seedDataset(t)
	resetGlobals(t, dir)
	computeSignalDataset = "/ds"
	computeSignalPath = "text"
	computeSignalName = "length"
	computeSignalParams = nil

	if err := computeSignalCmd.RunE(computeSignalCmd, nil); err != nil {
		t.Fatalf("compute-signal: %v", err)
	}

	req := `{
		"dataset": "/ds",
		"columns": [{"path": "text.length", "alias": "length"}]
	}`
	queryCmd.SetIn(strings.NewReader(req))
	var out bytes.Buffer
	queryCmd.SetOut(&out)
	if err := queryCmd.RunE(queryCmd, nil); err != nil {
		t.Fatalf("query: %v", err)
	}

	var result struct {
		Rows []struct {
			RowID   string         `json:"RowID"`
			Columns map[string]any `json:"Columns"`
		} `json:"Rows"`
	}
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("decode query result: %v\n%s", err, out.String())
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	found := false
	for _, row := range result.Rows {
		if row.RowID == "r1" {
			found = true
			if row.Columns["length"] != float64(11) {
				t.Fatalf("expected length 11 for 'hello world', got %v", row.Columns["length"])
			}
		}
	}
	if !found {
		t.Fatal("expected r1 in query result")
	}
}

func TestComputeSignalKeywordThenDeleteSignal(t *testing.T) {
	dir := seedDataset(t)
	resetGlobals(t, dir)
	computeSignalDataset = "/ds"
	computeSignalPath = "text"
	computeSignalName = "keyword"
	computeSignalParams = map[string]string{"keyword": "hello"}

	if err := computeSignalCmd.RunE(computeSignalCmd, nil); err != nil {
		t.Fatalf("compute-signal: %v", err)
	}

	view, err := store.OpenView(openStore(), "/ds")
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	if !view.Schema.HasPath(schema.ParsePath("text.keyword")) {
		t.Fatal("expected text.keyword to exist after compute-signal")
	}

	deleteSignalDataset = "/ds"
	deleteSignalName = "keyword"
	deleteSignalEnrichedPath = "text.keyword"
	if err := deleteSignalCmd.RunE(deleteSignalCmd, nil); err != nil {
		t.Fatalf("delete-signal: %v", err)
	}

	view, err = store.OpenView(openStore(), "/ds")
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	if view.Schema.HasPath(schema.ParsePath("text.keyword")) {
		t.Fatal("expected text.keyword to be gone after delete-signal")
	}
}

func TestBuildSignalUnknownNameErrors(t *testing.T) {
	if _, err := buildSignal("nonexistent", nil); err == nil {
		t.Fatal("expected an error for an unregistered signal name")
	}
}
