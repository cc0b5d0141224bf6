package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// fileCache maps paths to a value computed from the file content. An entry
// is only reused while the file keeps the size and mtime it had when the
// value was computed.
type fileCache[V any] struct {
	path    string
	entries map[string]cacheEntry[V]
}

type cacheEntry[V any] struct {
	Size     int64 `json:"size"`
	Modified int64 `json:"modified"`
	Value    V     `json:"value"`
}

// loadCache reads the cache file. A missing file yields an empty cache.
func loadCache[V any](path string) (*fileCache[V], error) {
	c := &fileCache[V]{path: path, entries: make(map[string]cacheEntry[V])}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("read cache %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		c.entries = make(map[string]cacheEntry[V])
		return c, fmt.Errorf("parse cache %s: %w", path, err)
	}
	return c, nil
}

func (c *fileCache[V]) get(f File) (V, bool) {
	e, ok := c.entries[f.Path]
	if !ok || e.Size != f.Size || e.Modified != f.Modified.UnixNano() {
		var zero V
		return zero, false
	}
	return e.Value, true
}

func (c *fileCache[V]) put(f File, v V) {
	c.entries[f.Path] = cacheEntry[V]{Size: f.Size, Modified: f.Modified.UnixNano(), Value: v}
}

// prune drops entries whose file no longer exists
func (c *fileCache[V]) prune() int {
	removed := 0
	for p := range c.entries {
		if _, err := os.Lstat(p); errors.Is(err, os.ErrNotExist) {
			delete(c.entries, p)
			removed++
		}
	}
	return removed
}

func (c *fileCache[V]) save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	return writeFileAtomic(c.path, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(c.entries)
	})
}

// openCache loads the named cache when caching is on. The returned cache is
// nil when caching is off or the cache directory is unknown.
func openCache[V any](c *Common, name string, deleteOutdated bool) *fileCache[V] {
	if !c.useCache || c.cacheDir == "" {
		return nil
	}
	cache, err := loadCache[V](filepath.Join(c.cacheDir, name))
	if err != nil {
		c.msgs.warn("%v", err)
	}
	if deleteOutdated {
		if n := cache.prune(); n > 0 {
			c.log.Debug("pruned cache", "cache", name, "removed", n)
		}
	}
	return cache
}

func saveCache[V any](c *Common, cache *fileCache[V]) {
	if cache == nil {
		return
	}
	if err := cache.save(); err != nil {
		c.msgs.warn("Cannot save cache: %v", err)
	}
}
