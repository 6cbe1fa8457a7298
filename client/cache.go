package client

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	cacheVersion    = 1
	maxCacheEntries = 512
)

// CacheEntry is a remembered classification.
type CacheEntry struct {
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Locale      string    `json:"locale,omitempty"`
	StoredAt    time.Time `json:"stored_at"`
}

// cacheData is the on-disk JSON structure.
type cacheData struct {
	Version int                   `json:"v"`
	Entries map[string]CacheEntry `json:"entries"`
}

// ResponseCache persists classifications keyed by service, locale and text.
// If no writable directory is found, it operates in-memory only.
type ResponseCache struct {
	mu   sync.Mutex
	dir  string // empty string = in-memory only
	data cacheData
	now  func() time.Time
}

// NewResponseCache looks for a writable cache directory using the cascade:
//  1. $TMPDIR/witan-assist/ (or os.TempDir()/witan-assist/)
//  2. .witan-assist/ in cwd
//  3. in-memory only (no persistence)
func NewResponseCache() *ResponseCache {
	rc := newMemoryCache()

	// Tier 1: tmpdir
	if dir := filepath.Join(os.TempDir(), "witan-assist"); checkWritable(dir) {
		rc.dir = dir
		rc.load()
		return rc
	}

	// Tier 2: cwd/.witan-assist
	if cwd, err := os.Getwd(); err == nil {
		if dir := filepath.Join(cwd, ".witan-assist"); checkWritable(dir) {
			rc.dir = dir
			rc.load()
			return rc
		}
	}

	// Tier 3: in-memory only
	return rc
}

func newMemoryCache() *ResponseCache {
	return &ResponseCache{
		data: cacheData{Version: cacheVersion, Entries: make(map[string]CacheEntry)},
		now:  time.Now,
	}
}

// CacheKey derives the cache key for one classification request. Text is
// compared case-insensitively after trimming, matching the classifier rules.
func CacheKey(baseURL, locale, text string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return "sha256:" + hex.EncodeToString(h[:]) + "@" + locale + "@" + baseURL
}

// Get looks up a cache entry.
func (rc *ResponseCache) Get(key string) (CacheEntry, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	e, ok := rc.data.Entries[key]
	return e, ok
}

// Put stores an entry, dropping the oldest when full, and persists to disk
// if possible.
func (rc *ResponseCache) Put(key string, entry CacheEntry) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if entry.StoredAt.IsZero() {
		entry.StoredAt = rc.now()
	}
	if _, ok := rc.data.Entries[key]; !ok && len(rc.data.Entries) >= maxCacheEntries {
		rc.evictOldest()
	}
	rc.data.Entries[key] = entry
	rc.save()
}

// Evict removes a cache entry.
func (rc *ResponseCache) Evict(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.data.Entries, key)
	rc.save()
}

// Len reports the number of cached entries.
func (rc *ResponseCache) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.data.Entries)
}

func (rc *ResponseCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range rc.data.Entries {
		if oldestKey == "" || e.StoredAt.Before(oldest) {
			oldestKey, oldest = k, e.StoredAt
		}
	}
	delete(rc.data.Entries, oldestKey)
}

func (rc *ResponseCache) load() {
	raw, err := os.ReadFile(filepath.Join(rc.dir, "cache.json"))
	if err != nil {
		return
	}
	var data cacheData
	if err := json.Unmarshal(raw, &data); err != nil || data.Version != cacheVersion || data.Entries == nil {
		return
	}
	rc.data = data
}

func (rc *ResponseCache) save() {
	if rc.dir == "" {
		return
	}
	_ = os.MkdirAll(rc.dir, 0o755)
	raw, err := json.MarshalIndent(rc.data, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(rc.dir, "cache.json"), raw, 0o644)
}

// checkWritable tries to create the directory and write a test file.
func checkWritable(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	marker := filepath.Join(dir, ".writable")
	if err := os.WriteFile(marker, []byte("ok"), 0o644); err != nil {
		return false
	}
	os.Remove(marker)
	return true
}
