// Package cache keeps downloaded tracks on disk so repeat requests skip the
// download entirely. Files are named after the sanitised track title and the
// cache is bounded: once the directory exceeds its byte limit, the least
// recently played files are evicted first.
package cache

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"mradio/internal/metrics"
)

// DefaultMaxBytes bounds the cache directory at 1 GiB.
const DefaultMaxBytes = 1 << 30

// Sanitise strips the characters that are unsafe in filenames across
// platforms. The sanitised title is the cache key, so two titles differing
// only in stripped characters share one cache slot.
func Sanitise(title string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return -1
		}
		return r
	}, title)
}

// FileCache is a size-bounded directory of cached MP3 files. A single
// mutex serialises admissions and evictions against LRU touches.
type FileCache struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger

	mu sync.Mutex
}

// New creates the cache rooted at dir, creating the directory if needed.
// maxBytes <= 0 selects DefaultMaxBytes.
func New(dir string, maxBytes int64, logger *slog.Logger) (*FileCache, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

// Path returns where the given title lives (or would live) in the cache.
func (c *FileCache) Path(title string) string {
	return filepath.Join(c.dir, Sanitise(title)+".mp3")
}

// Lookup returns the cached file for title if present. A hit refreshes the
// file's access time so eviction ordering tracks actual playback.
func (c *FileCache) Lookup(title string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path := c.Path(title)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		c.logger.Warn("cache touch failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	return path, true
}

// Admit moves the file at src into the cache under title and evicts old
// entries if the cache grew past its limit. Returns the cached path.
func (c *FileCache) Admit(title, src string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dst := c.Path(title)
	if err := moveFile(src, dst); err != nil {
		return "", err
	}
	if err := c.evict(); err != nil {
		c.logger.Warn("cache eviction failed", slog.String("error", err.Error()))
	}
	return dst, nil
}

// Size returns the total bytes currently held.
func (c *FileCache) Size() (int64, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

type cacheEntry struct {
	path    string
	size    int64
	touched time.Time
}

// evict removes least-recently-used files until the cache fits maxBytes.
// Caller holds c.mu.
func (c *FileCache) evict() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	var files []cacheEntry
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, cacheEntry{
			path:    filepath.Join(c.dir, e.Name()),
			size:    info.Size(),
			touched: info.ModTime(),
		})
		total += info.Size()
	}
	metrics.CacheSizeBytes.Set(float64(total))
	if total <= c.maxBytes {
		return nil
	}
	sort.Slice(files, func(i, j int) bool {
		// Equal mtimes happen on coarse filesystems; the path tie-break
		// keeps the eviction order deterministic.
		if files[i].touched.Equal(files[j].touched) {
			return files[i].path < files[j].path
		}
		return files[i].touched.Before(files[j].touched)
	})
	for _, f := range files {
		if total <= c.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			c.logger.Warn("cache remove failed", slog.String("path", f.path), slog.String("error", err.Error()))
			continue
		}
		total -= f.size
		metrics.CacheEvictionsTotal.Inc()
		c.logger.Info("evicted cached track", slog.String("path", f.path), slog.Int64("size", f.size))
	}
	metrics.CacheSizeBytes.Set(float64(total))
	return nil
}

// moveFile renames src to dst, copying when rename crosses filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
