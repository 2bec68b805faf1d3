// Package cache persists standardized fetch results per (plugin, target)
// pair so repeat lookups within the TTL never touch the provider.
//
// Entries live as one JSON file per key under a cache root. Expiry is
// lazy: a stale entry reads as a miss and stays on disk until the next
// successful Put overwrites it.
package cache

import (
	"crypto/sha256"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mr-tron/base58"

	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/geo"
	"github.com/geosift/geosift/logger"
)

// DefaultTTL is how long a cache entry stays fresh.
const DefaultTTL = 24 * time.Hour

// Manager reads and writes the on-disk cache. Concurrent Get/Put against
// the same key are safe: writes land via temp-file-then-rename, so a
// reader sees either the old or the new entry, never a torn file.
type Manager struct {
	root     string
	ttl      time.Duration
	now      func() time.Time
	disabled bool
}

// entry is the on-disk envelope around a cached payload. Plugin and
// Target are recorded for inspection; the file name alone is the key.
type entry struct {
	Plugin    string                     `json:"plugin"`
	Target    string                     `json:"target"`
	CreatedAt time.Time                  `json:"created_at"`
	Locations []geo.StandardizedLocation `json:"locations"`
}

// NewManager returns a cache rooted at the given directory with the
// default TTL.
func NewManager(root string) *Manager {
	return NewManagerWithTTL(root, DefaultTTL)
}

// NewManagerWithTTL returns a cache with an explicit TTL. A zero or
// negative TTL falls back to the default.
func NewManagerWithTTL(root string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		root: root,
		ttl:  ttl,
		now:  time.Now,
	}
}

// NewManagerWithClock is NewManagerWithTTL with an injectable clock for
// expiry tests.
func NewManagerWithClock(root string, ttl time.Duration, now func() time.Time) *Manager {
	m := NewManagerWithTTL(root, ttl)
	if now != nil {
		m.now = now
	}
	return m
}

// NewDisabledManager returns a manager that never touches disk: every
// Get misses and every Put is dropped. It satisfies pipelines that
// require a manager when configuration has caching turned off.
func NewDisabledManager() *Manager {
	return &Manager{ttl: DefaultTTL, now: time.Now, disabled: true}
}

// Root returns the cache directory.
func (m *Manager) Root() string {
	return m.root
}

// TTL returns the configured entry lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Key derives the file-safe cache key for a (plugin, target) pair. The
// NUL separator keeps ("ab","c") and ("a","bc") distinct.
func Key(pluginName, targetKey string) string {
	sum := sha256.Sum256([]byte(pluginName + "\x00" + targetKey))
	return base58.Encode(sum[:])
}

// Path returns where the entry for a (plugin, target) pair lives.
func (m *Manager) Path(pluginName, targetKey string) string {
	return filepath.Join(m.root, Key(pluginName, targetKey)+".json")
}

// Get returns the cached locations for a (plugin, target) pair. Any
// problem with the entry (absent, unreadable, corrupt, expired) reads
// as a miss, never an error.
func (m *Manager) Get(pluginName, targetKey string) ([]geo.StandardizedLocation, bool) {
	if m.disabled {
		return nil, false
	}
	path := m.Path(pluginName, targetKey)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Debugw("Cache entry unreadable, treating as miss",
				"plugin", pluginName,
				"path", path,
				"error", err)
		}
		return nil, false
	}

	var cached entry
	if err := json.Unmarshal(data, &cached); err != nil {
		logger.Debugw("Cache entry corrupt, treating as miss",
			"plugin", pluginName,
			"path", path,
			"error", err)
		return nil, false
	}

	age := m.now().Sub(cached.CreatedAt)
	if age >= m.ttl {
		// Stale entries stay on disk until the next Put overwrites them
		logger.Debugw("Cache entry expired",
			"plugin", pluginName,
			"target", targetKey,
			"cache_age", age)
		return nil, false
	}

	logger.Debugw("Cache hit",
		"plugin", pluginName,
		"target", targetKey,
		"locations", len(cached.Locations),
		"cache_age", age)
	return cached.Locations, true
}

// Put stores the locations for a (plugin, target) pair, replacing any
// previous entry. The write lands atomically via a temp file rename.
func (m *Manager) Put(pluginName, targetKey string, locations []geo.StandardizedLocation) error {
	if m.disabled {
		return nil
	}
	if err := os.MkdirAll(m.root, config.DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create cache directory %s", m.root)
	}

	data, err := json.Marshal(entry{
		Plugin:    pluginName,
		Target:    targetKey,
		CreatedAt: m.now().UTC(),
		Locations: locations,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode cache entry")
	}

	path := m.Path(pluginName, targetKey)
	tmp, err := os.CreateTemp(m.root, ".geosift-cache-*")
	if err != nil {
		return errors.Wrap(err, "failed to create cache temp file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to write cache entry %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to write cache entry %s", path)
	}
	if err := os.Chmod(tmpPath, config.DefaultFilePermissions); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to set cache entry permissions %s", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to finalize cache entry %s", path)
	}

	logger.Debugw("Cached fetch results",
		"plugin", pluginName,
		"target", targetKey,
		"locations", len(locations))
	return nil
}

// Invalidate removes the entry for a (plugin, target) pair. Removing an
// absent entry is not an error.
func (m *Manager) Invalidate(pluginName, targetKey string) error {
	if m.disabled {
		return nil
	}
	err := os.Remove(m.Path(pluginName, targetKey))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "failed to remove cache entry")
	}
	return nil
}

// Clear removes every cache entry under the root. Files that do not
// look like cache entries are left alone.
func (m *Manager) Clear() error {
	if m.disabled {
		return nil
	}
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "failed to read cache directory %s", m.root)
	}

	var removed int
	for _, dirEntry := range entries {
		if dirEntry.IsDir() || filepath.Ext(dirEntry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(m.root, dirEntry.Name())
		if err := os.Remove(path); err != nil {
			return errors.Wrapf(err, "failed to remove cache entry %s", path)
		}
		removed++
	}

	logger.Debugw("Cleared cache", "root", m.root, "entries", removed)
	return nil
}

// Prune eagerly removes expired and unreadable entries, returning how
// many were deleted. Fresh entries and files that do not look like cache
// entries stay.
func (m *Manager) Prune() (int, error) {
	if m.disabled {
		return 0, nil
	}
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "failed to read cache directory %s", m.root)
	}

	removed := 0
	for _, dirEntry := range entries {
		if dirEntry.IsDir() || filepath.Ext(dirEntry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(m.root, dirEntry.Name())

		expired := false
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cached entry
		if err := json.Unmarshal(data, &cached); err != nil {
			// Corrupt entries can never become hits again
			expired = true
		} else {
			expired = m.now().Sub(cached.CreatedAt) >= m.ttl
		}
		if !expired {
			continue
		}

		if err := os.Remove(path); err != nil {
			return removed, errors.Wrapf(err, "failed to remove cache entry %s", path)
		}
		removed++
	}

	logger.Debugw("Pruned cache", "root", m.root, "removed", removed)
	return removed, nil
}
