package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/awardscan/scrapecore/models"
)

// keyPattern is the only accepted key shape. Anything else (path
// separators, dots, empty) is rejected before touching the filesystem.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Entry is the on-disk representation: one JSON file per key.
type Entry struct {
	Value      json.RawMessage `json:"value"`
	Expiration time.Time       `json:"expiration"`
}

// Cache is a filesystem-backed TTL cache for scrape results.
// A zero-root cache is a valid no-op cache: every read misses and every
// write is dropped.
type Cache struct {
	root string
	ttl  time.Duration
	now  func() time.Time
}

// New creates a Cache rooted at dir with the given default TTL. dir may be
// empty to disable caching.
func New(dir string, ttl time.Duration) *Cache {
	return &Cache{root: dir, ttl: ttl, now: time.Now}
}

// Key builds a filesystem-safe cache key from arbitrary parts.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte("|"))
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Enabled reports whether this cache can serve the given TTL at all.
func (c *Cache) Enabled(ttl time.Duration) bool {
	return c != nil && c.root != "" && c.effectiveTTL(ttl) > 0
}

func (c *Cache) effectiveTTL(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return c.ttl
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.root, key+".json")
}

// Get returns the cached value for key, or ok=false on a miss. Reading an
// expired entry deletes the backing file and reports a miss (lazy
// eviction). A missing file is a clean miss; any other I/O failure is a
// CACHE_ERROR.
func (c *Cache) Get(key string) (json.RawMessage, bool, error) {
	if c.root == "" {
		return nil, false, nil
	}
	if !keyPattern.MatchString(key) {
		return nil, false, models.NewScrapeError(
			models.ErrCodeCache, fmt.Sprintf("invalid cache key %q", key), nil)
	}

	data, err := os.ReadFile(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, models.NewScrapeError(models.ErrCodeCache, "cache read failed", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// A corrupt entry behaves like an expired one.
		_ = os.Remove(c.path(key))
		return nil, false, nil
	}
	if c.now().After(e.Expiration) {
		if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("cache: failed to evict expired entry", "key", key, "error", err)
		}
		return nil, false, nil
	}
	return e.Value, true, nil
}

// Set persists value under key with the given TTL (default TTL when <= 0).
func (c *Cache) Set(key string, value any, ttl time.Duration) error {
	if c.root == "" {
		return nil
	}
	if !keyPattern.MatchString(key) {
		return models.NewScrapeError(
			models.ErrCodeCache, fmt.Sprintf("invalid cache key %q", key), nil)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeCache, "cache value not serializable", err)
	}
	data, err := json.Marshal(Entry{
		Value:      raw,
		Expiration: c.now().Add(c.effectiveTTL(ttl)),
	})
	if err != nil {
		return models.NewScrapeError(models.ErrCodeCache, "cache entry marshal failed", err)
	}
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return models.NewScrapeError(models.ErrCodeCache, "cache dir creation failed", err)
	}
	if err := os.WriteFile(c.path(key), data, 0o644); err != nil {
		return models.NewScrapeError(models.ErrCodeCache, "cache write failed", err)
	}
	return nil
}

// RunAndCache wraps fn with a cache lookup under key. An unexpired hit
// returns the cached raw value without invoking fn; otherwise fn runs and,
// on success, its result is persisted with ttl. When caching is disabled
// (no root, zero TTL, or read=false) fn runs unconditionally.
func (c *Cache) RunAndCache(ctx context.Context, key string, ttl time.Duration, read, write bool, fn func(context.Context) (any, error)) (any, error) {
	if !c.Enabled(ttl) || key == "" {
		return fn(ctx)
	}
	if read {
		if raw, ok, err := c.Get(key); err != nil {
			return nil, err
		} else if ok {
			slog.Debug("result cache hit", "key", key)
			return raw, nil
		}
	}

	value, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	if write && value != nil {
		if err := c.Set(key, value, ttl); err != nil {
			// A failed write never fails the computation that produced
			// the value.
			slog.Warn("result cache write failed", "key", key, "error", err)
		}
	}
	return value, nil
}

// Sweep removes every entry under the root, expired or not.
func (c *Cache) Sweep() error {
	if c.root == "" {
		return nil
	}
	entries, err := os.ReadDir(c.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return models.NewScrapeError(models.ErrCodeCache, "cache sweep failed", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(c.root, e.Name())); err != nil {
			slog.Warn("cache: sweep could not remove entry", "entry", e.Name(), "error", err)
		}
	}
	return nil
}
