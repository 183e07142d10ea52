package store

import (
	"bytes"
	"encoding/json"
	"sort"

	billy "github.com/go-git/go-billy/v5"
	"github.com/segmentio/parquet-go"

	"github.com/lilacdata/lilac/lilaerr"
	"github.com/lilacdata/lilac/pkg/datasetfs"
)

// shardRow is the physical parquet row shape every shard file uses.
// Fragment carries the JSON-encoded value subtree the shard contributes
// for that row-id; arbitrary nesting is represented as a blob rather
// than translated into native nested parquet columns (see DESIGN.md).
type shardRow struct {
	RowID    string `parquet:"row_id"`
	Fragment []byte `parquet:"fragment"`
}

// Fragment is a decoded shard row: the row-id plus its contributed value
// tree (a map[string]any, []any, or scalar, matching the JSON wire
// format used throughout the schema package).
type Fragment struct {
	RowID string
	Value any
}

// writeShardFile encodes fragments as parquet rows, sorted by row-id so
// that repeated discovery of the same shard produces byte-stable output.
func writeShardFile(fs billy.Filesystem, path string, fragments []Fragment) error {
	rows := make([]shardRow, len(fragments))
	for i, f := range fragments {
		data, err := json.Marshal(f.Value)
		if err != nil {
			return lilaerr.Wrap(lilaerr.KindManifestCorrupt, path, err)
		}
		rows[i] = shardRow{RowID: f.RowID, Fragment: data}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].RowID < rows[j].RowID })

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[shardRow](&buf)
	if _, err := w.Write(rows); err != nil {
		return lilaerr.Wrap(lilaerr.KindManifestCorrupt, path, err)
	}
	if err := w.Close(); err != nil {
		return lilaerr.Wrap(lilaerr.KindManifestCorrupt, path, err)
	}
	return datasetfs.WriteFile(fs, path, buf.Bytes())
}

// readShardFile decodes every row of a shard file back into fragments.
func readShardFile(fs billy.Filesystem, path string) ([]Fragment, error) {
	data, err := datasetfs.ReadFile(fs, path)
	if err != nil {
		return nil, lilaerr.Wrap(lilaerr.KindShardMissing, path, err)
	}

	r := parquet.NewGenericReader[shardRow](bytes.NewReader(data))
	defer r.Close()

	out := make([]Fragment, 0, r.NumRows())
	buf := make([]shardRow, 256)
	for {
		n, err := r.Read(buf)
		for _, row := range buf[:n] {
			var v any
			if uerr := json.Unmarshal(row.Fragment, &v); uerr != nil {
				return nil, lilaerr.Wrap(lilaerr.KindManifestCorrupt, path, uerr)
			}
			out = append(out, Fragment{RowID: row.RowID, Value: v})
		}
		if err != nil {
			break
		}
	}
	return out, nil
}
