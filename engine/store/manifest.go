package store

import (
	"encoding/json"
	"fmt"

	"github.com/lilacdata/lilac/engine/schema"
	"github.com/lilacdata/lilac/lilaerr"
)

// SourceManifest describes the base shard(s) ingest produced for a
// dataset, per the on-disk layout's manifest.json (spec §6).
type SourceManifest struct {
	Files      []string       `json:"files"`
	DataSchema *schema.Schema `json:"data_schema"`
	Source     map[string]any `json:"source,omitempty"`
}

// SignalDescriptor names the signal that produced a shard and the
// parameters it ran with.
type SignalDescriptor struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// SignalManifest describes one signal shard: its files, the schema
// fragment it contributes, the enriched path it attaches to, and (for
// embedding signals) the vector-index file prefix.
type SignalManifest struct {
	Files                  []string         `json:"files"`
	ParquetID              string           `json:"parquet_id"`
	DataSchema             *schema.Schema   `json:"data_schema"`
	Signal                 SignalDescriptor `json:"signal"`
	EnrichedPath           string           `json:"enriched_path"`
	EmbeddingFilenamePrefix string          `json:"embedding_filename_prefix,omitempty"`
}

// SignalKey is the directory-safe name under which a signal manifest is
// stored: "<path-with-wildcards-stripped>_<signal_name>", one directory
// directly under the dataset directory. Signal directories are not
// nested by path.
func SignalKey(signalName, enrichedPath string) string {
	return fmt.Sprintf("%s_%s", stripWildcards(enrichedPath), signalName)
}

func stripWildcards(path string) string {
	p := schema.ParsePath(path)
	out := make([]string, 0, len(p))
	for _, seg := range p {
		if seg == schema.WildcardSegment {
			continue
		}
		out = append(out, seg)
	}
	return schema.Path(out).String()
}

func marshalManifest(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, lilaerr.Wrap(lilaerr.KindManifestCorrupt, "", err)
	}
	return data, nil
}

func unmarshalSourceManifest(data []byte) (*SourceManifest, error) {
	var m SourceManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, lilaerr.Wrap(lilaerr.KindManifestCorrupt, "", err)
	}
	return &m, nil
}

func unmarshalSignalManifest(data []byte) (*SignalManifest, error) {
	var m SignalManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, lilaerr.Wrap(lilaerr.KindManifestCorrupt, "", err)
	}
	return &m, nil
}
