package downloader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a content-addressed file cache for downloaded resources. Files
// are keyed by the SHA-256 of their source URL, so a resource re-requested
// under the same URL resolves without touching the network. An LRU index
// keeps the hot keys in memory; a miss there falls back to a stat, so cache
// contents survive process restarts.
type Cache struct {
	dir   string
	index *lru.Cache[string, string]
}

// NewCache creates the cache directory if needed.
func NewCache(dir string, maxEntries int) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	index, err := lru.New[string, string](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Cache{dir: dir, index: index}, nil
}

// Get returns the cached file path for url, if present.
func (c *Cache) Get(url string) (string, bool) {
	path := c.path(url)
	if _, ok := c.index.Get(cacheKey(url)); ok {
		return path, true
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	c.index.Add(cacheKey(url), path)
	return path, true
}

// Put stores the contents of r for url, atomically: the data lands in a
// temp file first and is renamed into place only after a complete write.
// Returns the final path and the number of bytes written.
func (c *Cache) Put(url string, r io.Reader) (string, int64, error) {
	final := c.path(url)

	tmp, err := os.CreateTemp(c.dir, "dl-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("write cache entry: %w", err)
	}

	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", 0, fmt.Errorf("publish cache entry: %w", err)
	}
	c.index.Add(cacheKey(url), final)
	return final, n, nil
}

// Remove drops the entry for url, if any. Retries use this to force a fresh
// fetch after a corrupt download.
func (c *Cache) Remove(url string) {
	c.index.Remove(cacheKey(url))
	os.Remove(c.path(url))
}

func (c *Cache) path(url string) string {
	return filepath.Join(c.dir, cacheKey(url)+".dat")
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
