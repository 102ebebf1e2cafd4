package gitsync

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CacheStatus describes the on-disk repository cache.
type CacheStatus struct {
	CacheDir   string    `json:"cache_dir"`
	CacheSize  string    `json:"cache_size"`
	AppsLoaded int       `json:"apps_loaded"`
	LastSync   time.Time `json:"last_sync,omitzero"`
}

// Status reports the current cache state.
func (c *Coordinator) Status() CacheStatus {
	return CacheStatus{
		CacheDir:   c.CacheDir,
		CacheSize:  c.cacheSize(),
		AppsLoaded: c.catalog.Len(),
		LastSync:   c.catalog.LastSync(),
	}
}

// ClearCache deletes every repository checkout under the cache root and
// empties the published catalog. It returns how many entries were removed.
// Callers are expected to trigger a full sync afterwards.
func (c *Coordinator) ClearCache() (int, error) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	// Take every known repository lock so no in-flight single-repo sync is
	// reading a directory while it disappears.
	c.mu.Lock()
	held := make([]*sync.Mutex, 0, len(c.locks))
	for _, lock := range c.locks {
		held = append(held, lock)
	}
	c.mu.Unlock()
	for _, lock := range held {
		lock.Lock()
	}
	defer func() {
		for _, lock := range held {
			lock.Unlock()
		}
	}()

	entries, err := os.ReadDir(c.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			c.catalog.Replace(nil)
			return 0, nil
		}
		return 0, fmt.Errorf("read cache dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		path := filepath.Join(c.CacheDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", path, err)
		}
		removed++
		if c.Logger != nil {
			c.Logger.Info("Deleted cache entry", "path", path)
		}
	}

	c.catalog.Replace(nil)
	return removed, nil
}

// cacheSize walks the cache root and reports its total size in a
// human-readable unit.
func (c *Coordinator) cacheSize() string {
	var total int64
	err := filepath.WalkDir(c.CacheDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, infoErr := d.Info(); infoErr == nil {
				total += info.Size()
			}
		}
		return nil
	})
	if err != nil {
		return "unknown"
	}

	size := float64(total)
	for _, unit := range []string{"B", "KB", "MB"} {
		if size < 1024 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.2f GB", size)
}
