// Package catalog provides the server's authoritative list of files
// available for download, backed by a flat directory.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a file is absent from the catalog.
var ErrNotFound = errors.New("file not found in catalog")

// ErrBadName is returned for names that could escape the catalog directory.
var ErrBadName = errors.New("invalid file name")

// Entry identifies a file known to the server.
type Entry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Catalog is a flat-directory file catalog. Entries are created by dropping
// files into the directory and destroyed by Delete; the catalog itself never
// writes file content.
type Catalog struct {
	dir string
}

// Open opens a catalog rooted at dir, creating the directory if needed.
func Open(dir string) (*Catalog, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}
	return &Catalog{dir: abs}, nil
}

// Dir returns the catalog's root directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// List returns all regular files in the catalog.
func (c *Catalog) List() ([]Entry, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		out = append(out, Entry{Name: e.Name(), Size: info.Size()})
	}
	return out, nil
}

// Has reports whether name exists in the catalog.
func (c *Catalog) Has(name string) bool {
	path, err := c.resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Path returns the on-disk path for a catalog entry.
func (c *Catalog) Path(name string) (string, error) {
	path, err := c.resolve(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

// Delete removes a file from the catalog.
func (c *Catalog) Delete(name string) error {
	path, err := c.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// resolve validates name and maps it to a path inside the catalog directory.
func (c *Catalog) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrBadName
	}
	return filepath.Join(c.dir, name), nil
}
