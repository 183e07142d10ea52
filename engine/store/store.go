// Package store implements the columnar dataset store: row-id-keyed
// parquet shards for a source plus independently-written signal shards,
// discovered and joined on demand into a logical view.
package store

import (
	"os"
	"path"

	billy "github.com/go-git/go-billy/v5"

	"github.com/lilacdata/lilac/lilaerr"
	"github.com/lilacdata/lilac/pkg/datasetfs"
)

// Store owns a filesystem root under which one or more dataset
// directories live, plus the shared discovery cache and per-dataset
// lock registry that serialize writers (spec §5).
type Store struct {
	fs    billy.Filesystem
	cache *discoveryCache
	locks *lockRegistry
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithPersistentCache attaches a sqlite-backed discovery cache so
// process restarts don't force a full rescan of unchanged datasets.
func WithPersistentCache(dbPath string) Option {
	return func(s *Store) {
		if c, err := openPersistentCache(dbPath); err == nil {
			s.cache = c
		}
	}
}

// New constructs a Store rooted at fs.
func New(fs billy.Filesystem, opts ...Option) *Store {
	s := &Store{fs: fs, cache: newDiscoveryCache(), locks: newLockRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases any resources the store opened (e.g. a persistent
// cache database).
func (s *Store) Close() error {
	return s.cache.close()
}

// ManifestInfo summarizes a dataset for the manifest() API (spec §6).
type ManifestInfo struct {
	DatasetName string
	Schema      any
	NumRows     int
}

// Manifest returns summary information about a dataset.
func (s *Store) Manifest(datasetDir string) (ManifestInfo, error) {
	view, err := OpenView(s, datasetDir)
	if err != nil {
		return ManifestInfo{}, err
	}
	return ManifestInfo{
		DatasetName: path.Base(datasetDir),
		Schema:      view.Schema,
		NumRows:     len(view.Rows),
	}, nil
}

// AppendSignalShard atomically writes a new signal shard's data file
// then its manifest — the manifest write is the linearization point
// (spec §4.9). Readers that open a view before the manifest write lands
// never see a partially-written shard.
func (s *Store) AppendSignalShard(datasetDir string, manifest *SignalManifest, fragments []Fragment) error {
	lock := s.locks.forDataset(datasetDir)
	lock.Lock()
	defer lock.Unlock()

	signalDir := path.Join(datasetDir, SignalKey(manifest.Signal.Name, manifest.EnrichedPath))
	if err := datasetfs.EnsureDir(s.fs, signalDir); err != nil {
		return lilaerr.Wrap(lilaerr.KindCommitConflict, datasetDir, err)
	}

	dataFile := path.Join(signalDir, "data-00000-of-00001.parquet")
	if err := writeShardFile(s.fs, dataFile, fragments); err != nil {
		return err
	}
	manifest.Files = []string{dataFile}
	if manifest.ParquetID == "" {
		manifest.ParquetID = signalDir
	}

	data, err := marshalManifest(manifest)
	if err != nil {
		return err
	}
	manifestFile := path.Join(signalDir, signalManifestName)
	if err := datasetfs.WriteFile(s.fs, manifestFile, data); err != nil {
		return lilaerr.Wrap(lilaerr.KindCommitConflict, datasetDir, err)
	}
	s.cache.invalidate(datasetDir)
	return nil
}

// DeleteSignalSubtree removes the manifest and shard files that
// contributed the signal at enrichedPath, so subsequent view-opens stop
// including it (spec §4.2).
func (s *Store) DeleteSignalSubtree(datasetDir, signalName, enrichedPath string) error {
	lock := s.locks.forDataset(datasetDir)
	lock.Lock()
	defer lock.Unlock()

	signalDir := path.Join(datasetDir, SignalKey(signalName, enrichedPath))
	if err := removeAll(s.fs, signalDir); err != nil {
		return err
	}
	s.cache.invalidate(datasetDir)
	return nil
}

func removeAll(fs billy.Filesystem, dir string) error {
	infos, err := fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, info := range infos {
		child := path.Join(dir, info.Name())
		if info.IsDir() {
			if err := removeAll(fs, child); err != nil {
				return err
			}
			continue
		}
		if err := fs.Remove(child); err != nil {
			return err
		}
	}
	return fs.Remove(dir)
}
