package cache

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const lockName = ".lock"

// Entry is one cached summary.
type Entry struct {
	Key       string    `json:"key"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"createdAt"`
	TTL       int       `json:"ttl"`
}

func (e Entry) expired(ttlSeconds int) bool {
	return ttlSeconds > 0 && time.Since(e.CreatedAt) > time.Duration(ttlSeconds)*time.Second
}

// Cache stores generated summaries on disk, one JSON file per key.
// Writers from several prsum processes serialise on a lock file in the
// cache directory.
type Cache struct {
	dir        string
	ttlSeconds int
	enabled    bool

	// mu serialises writers inside this process; lock does so across processes.
	mu   sync.Mutex
	lock *flock.Flock
}

// New creates a Cache. If dir is empty the default cache directory is used.
func New(enabled bool, dir string, ttlSeconds int) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false}, nil
	}
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{
		dir:        dir,
		ttlSeconds: ttlSeconds,
		enabled:    true,
		lock:       flock.New(filepath.Join(dir, lockName)),
	}, nil
}

// Get returns the cached response for key. Expired entries miss.
func (c *Cache) Get(key string) (string, bool) {
	if !c.enabled {
		return "", false
	}
	entry, err := readEntry(c.entryPath(key))
	if err != nil || entry.expired(c.ttlSeconds) {
		return "", false
	}
	return entry.Response, true
}

// Put stores response under key. The file is written to a temporary name
// and renamed so readers never see a partial entry.
func (c *Cache) Put(key, response string) error {
	if !c.enabled {
		return nil
	}
	data, err := json.Marshal(Entry{
		Key:       HashKey(key),
		Response:  response,
		CreatedAt: time.Now(),
		TTL:       c.ttlSeconds,
	})
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}

	unlock, err := c.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	path := c.entryPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return os.Rename(tmp, path)
}

// Clear removes every entry and returns how many were removed. With
// expiredOnly set, live entries are kept.
func (c *Cache) Clear(expiredOnly bool) (int, error) {
	if !c.enabled || c.dir == "" {
		return 0, nil
	}
	unlock, err := c.acquire()
	if err != nil {
		return 0, err
	}
	defer unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}
	var removed int
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(c.dir, e.Name())
		if expiredOnly {
			entry, err := readEntry(path)
			if err == nil && !entry.expired(c.ttlSeconds) {
				continue
			}
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Stats describes the cache contents.
type Stats struct {
	Dir        string `json:"dir"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"totalBytes"`
	Expired    int    `json:"expired"`
}

// Stats returns information about the cache.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{Dir: c.dir}
	if !c.enabled || c.dir == "" {
		return stats, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("reading cache directory: %w", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.TotalBytes += info.Size()

		entry, err := readEntry(filepath.Join(c.dir, e.Name()))
		if err == nil && entry.expired(c.ttlSeconds) {
			stats.Expired++
		}
	}
	return stats, nil
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string {
	return c.dir
}

// Enabled reports whether caching is on.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// HashKey creates a SHA-256 hash of the given key material.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// BuildKey derives a cache key from everything that influences a
// generation. The prompt must already be redacted.
func BuildKey(provider, model string, temperature float64, maxTokens int, system, prompt string) string {
	t := strconv.FormatFloat(temperature, 'f', -1, 64)
	return HashKey(provider + "\x00" + model + "\x00" + t + "\x00" + strconv.Itoa(maxTokens) + "\x00" + system + "\x00" + prompt)
}

func (c *Cache) acquire() (func(), error) {
	c.mu.Lock()
	if err := c.lock.Lock(); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("locking cache: %w", err)
	}
	return func() {
		c.lock.Unlock()
		c.mu.Unlock()
	}, nil
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, HashKey(key)+".json")
}

func readEntry(path string) (Entry, error) {
	var entry Entry
	data, err := os.ReadFile(path)
	if err != nil {
		return entry, err
	}
	err = json.Unmarshal(data, &entry)
	return entry, err
}

// DefaultDir returns the platform cache directory for prsum.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "prsum"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "prsum"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "prsum", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "prsum", "cache"), nil
	default:
		return filepath.Join(home, ".cache", "prsum"), nil
	}
}
