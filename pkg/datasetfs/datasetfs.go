// Package datasetfs resolves the billy.Filesystem a dataset's directory
// tree is stored under. Production datasets live on an OS-backed
// filesystem rooted at the dataset's directory; tests and ephemeral
// scratch datasets use an in-memory filesystem so no disk I/O is needed.
package datasetfs

import (
	"io"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
)

// Open returns a billy.Filesystem rooted at root. An empty root returns
// an in-memory filesystem; any other value opens (and, if needed,
// creates) an OS directory at that path.
func Open(root string) billy.Filesystem {
	if root == "" {
		return memfs.New()
	}
	return osfs.New(root)
}

// Memory returns a fresh in-memory filesystem, used for tests and
// transient datasets that are never persisted to disk.
func Memory() billy.Filesystem {
	return memfs.New()
}

// EnsureDir creates dir (and parents) on fs if it does not already exist.
func EnsureDir(fs billy.Filesystem, dir string) error {
	return fs.MkdirAll(dir, 0o755)
}

// ReadFile reads the entire contents of name from fs.
func ReadFile(fs billy.Filesystem, name string) ([]byte, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// WriteFile writes data to name on fs, truncating any existing contents.
func WriteFile(fs billy.Filesystem, name string, data []byte) error {
	f, err := fs.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// Exists reports whether name exists on fs.
func Exists(fs billy.Filesystem, name string) bool {
	_, err := fs.Stat(name)
	return err == nil
}
