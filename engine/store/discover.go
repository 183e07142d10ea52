package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	_ "modernc.org/sqlite"

	"github.com/lilacdata/lilac/pkg/datasetfs"
)

const (
	sourceManifestName = "manifest.json"
	signalManifestName = "signal_manifest.json"
)

// discovery is the result of scanning a dataset directory: the source
// manifest plus every signal manifest, source-first then in discovery
// order (spec §4.2).
type discovery struct {
	Source  *SourceManifest
	Signals []*SignalManifest
	MaxMod  time.Time
}

// discoveryCache memoizes discovery results per dataset directory, keyed
// by the directory tree's maximum modification time (spec §5: discovery
// is recomputed only when that max-mtime changes).
type discoveryCache struct {
	mu    sync.Mutex
	byDir map[string]discovery

	db *sql.DB // optional, persists across process restarts
}

func newDiscoveryCache() *discoveryCache {
	return &discoveryCache{byDir: make(map[string]discovery)}
}

// openPersistentCache attaches a sqlite-backed persistence layer so a
// restarted process can skip a full rescan of an unchanged directory.
func openPersistentCache(dbPath string) (*discoveryCache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS discovery_cache (
		dataset_dir TEXT PRIMARY KEY,
		max_mod_unix INTEGER NOT NULL,
		payload TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	c := newDiscoveryCache()
	c.db = db
	return c, nil
}

// invalidate drops any cached discovery for datasetDir, forcing the next
// discoverDataset call to rescan. Writers call this after a successful
// commit or delete so readers never have to rely solely on mtime
// granularity to observe the change.
func (c *discoveryCache) invalidate(datasetDir string) {
	c.mu.Lock()
	delete(c.byDir, datasetDir)
	c.mu.Unlock()
	if c.db != nil {
		_, _ = c.db.Exec(`DELETE FROM discovery_cache WHERE dataset_dir = ?`, datasetDir)
	}
}

func (c *discoveryCache) close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// discoverDataset scans datasetDir for a source manifest and every
// signal manifest beneath it, reusing the cached result when the
// directory's max modification time hasn't advanced.
func discoverDataset(fs billy.Filesystem, datasetDir string, cache *discoveryCache) (discovery, error) {
	maxMod, err := maxModTime(fs, datasetDir)
	if err != nil {
		return discovery{}, err
	}

	cache.mu.Lock()
	if cached, ok := cache.byDir[datasetDir]; ok && !cached.MaxMod.Before(maxMod) {
		cache.mu.Unlock()
		return cached, nil
	}
	cache.mu.Unlock()

	if persisted, ok := cache.loadPersisted(datasetDir, maxMod); ok {
		cache.mu.Lock()
		cache.byDir[datasetDir] = persisted
		cache.mu.Unlock()
		return persisted, nil
	}

	d, err := scanDataset(fs, datasetDir)
	if err != nil {
		return discovery{}, err
	}
	d.MaxMod = maxMod

	cache.mu.Lock()
	cache.byDir[datasetDir] = d
	cache.mu.Unlock()
	cache.savePersisted(datasetDir, d)

	return d, nil
}

// persistedDiscovery is the JSON payload stored in the sqlite cache.
type persistedDiscovery struct {
	Source  *SourceManifest   `json:"source"`
	Signals []*SignalManifest `json:"signals"`
}

func (c *discoveryCache) loadPersisted(datasetDir string, maxMod time.Time) (discovery, bool) {
	if c.db == nil {
		return discovery{}, false
	}
	var maxModUnix int64
	var payload string
	row := c.db.QueryRow(`SELECT max_mod_unix, payload FROM discovery_cache WHERE dataset_dir = ?`, datasetDir)
	if err := row.Scan(&maxModUnix, &payload); err != nil {
		return discovery{}, false
	}
	if maxModUnix < maxMod.Unix() {
		return discovery{}, false
	}
	var persisted persistedDiscovery
	if err := json.Unmarshal([]byte(payload), &persisted); err != nil {
		return discovery{}, false
	}
	return discovery{Source: persisted.Source, Signals: persisted.Signals, MaxMod: maxMod}, true
}

func (c *discoveryCache) savePersisted(datasetDir string, d discovery) {
	if c.db == nil {
		return
	}
	payload, err := json.Marshal(persistedDiscovery{Source: d.Source, Signals: d.Signals})
	if err != nil {
		return
	}
	_, _ = c.db.Exec(`INSERT INTO discovery_cache(dataset_dir, max_mod_unix, payload) VALUES(?,?,?)
		ON CONFLICT(dataset_dir) DO UPDATE SET max_mod_unix=excluded.max_mod_unix, payload=excluded.payload`,
		datasetDir, d.MaxMod.Unix(), string(payload))
}

func scanDataset(fs billy.Filesystem, datasetDir string) (discovery, error) {
	var d discovery

	sourcePath := path.Join(datasetDir, sourceManifestName)
	data, err := datasetfs.ReadFile(fs, sourcePath)
	if err != nil {
		return d, err
	}
	source, err := unmarshalSourceManifest(data)
	if err != nil {
		return d, err
	}
	d.Source = source

	var signalPaths []string
	if err := walkSignalManifests(fs, datasetDir, &signalPaths); err != nil {
		return d, err
	}
	sort.Strings(signalPaths)

	for _, p := range signalPaths {
		data, err := datasetfs.ReadFile(fs, p)
		if err != nil {
			return d, err
		}
		sm, err := unmarshalSignalManifest(data)
		if err != nil {
			return d, err
		}
		d.Signals = append(d.Signals, sm)
	}
	return d, nil
}

func walkSignalManifests(fs billy.Filesystem, dir string, out *[]string) error {
	infos, err := fs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, info := range infos {
		child := path.Join(dir, info.Name())
		if info.IsDir() {
			if err := walkSignalManifests(fs, child, out); err != nil {
				return err
			}
			continue
		}
		if info.Name() == signalManifestName {
			*out = append(*out, child)
		}
	}
	return nil
}

func maxModTime(fs billy.Filesystem, dir string) (time.Time, error) {
	var max time.Time
	var walk func(string) error
	walk = func(d string) error {
		infos, err := fs.ReadDir(d)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, info := range infos {
			if info.ModTime().After(max) {
				max = info.ModTime()
			}
			if info.IsDir() {
				if err := walk(path.Join(d, info.Name())); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(dir); err != nil {
		return time.Time{}, err
	}
	return max, nil
}
