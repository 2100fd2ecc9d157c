// Package store holds the process-wide persistent state: the test
// result cache and the payload effectiveness document. Both degrade to
// pass-through on I/O errors; neither may fail a detection job.
package store

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CachedResult is the memoized outcome of one fingerprinted test.
type CachedResult struct {
	Detected   bool      `json:"detected"`
	Executed   bool      `json:"executed"`
	CapturedAt time.Time `json:"captured_at"`
}

// FingerprintOptions are the result-affecting options included in the
// cache key. Anything else (timeouts, logging, retries) must not
// change the fingerprint.
type FingerprintOptions struct {
	Browser         string `json:"browser"`
	VerifyExecution bool   `json:"verifyExecution"`
	SubmitSelector  string `json:"submitSelector"`
}

// fingerprintInput is marshaled with a fixed field order so the key is
// stable across runs regardless of how callers assembled the options.
type fingerprintInput struct {
	URL     string             `json:"url"`
	Locator string             `json:"locator"`
	Payload string             `json:"payload"`
	Options FingerprintOptions `json:"options"`
}

// Fingerprint computes the canonical cache key for a test.
func Fingerprint(url, locator, payload string, opts FingerprintOptions) string {
	data, _ := json.Marshal(fingerprintInput{
		URL:     url,
		Locator: locator,
		Payload: payload,
		Options: opts,
	})
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Cache is a file-per-fingerprint result store.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// NewCache opens (creating if needed) a cache directory.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create cache directory: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) path(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".json")
}

// Exists reports whether a non-expired entry is present. Entries older
// than maxAge are pruned on read; maxAge 0 means entries never expire.
func (c *Cache) Exists(fingerprint string, maxAge time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, err := c.read(fingerprint)
	if err != nil {
		return false
	}
	if maxAge > 0 && time.Since(result.CapturedAt) > maxAge {
		os.Remove(c.path(fingerprint))
		return false
	}
	return true
}

// Get returns the cached result, or nil when absent or unreadable.
func (c *Cache) Get(fingerprint string) *CachedResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, err := c.read(fingerprint)
	if err != nil {
		return nil
	}
	return result
}

func (c *Cache) read(fingerprint string) (*CachedResult, error) {
	data, err := os.ReadFile(c.path(fingerprint))
	if err != nil {
		return nil, err
	}
	var result CachedResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Put writes a result under the fingerprint. Writers are serialized.
func (c *Cache) Put(fingerprint string, result CachedResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(fingerprint), data, 0644)
}

// Clear removes the given fingerprints, or every entry when none given.
func (c *Cache) Clear(fingerprints ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(fingerprints) > 0 {
		for _, fp := range fingerprints {
			os.Remove(c.path(fp))
		}
		return nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			os.Remove(filepath.Join(c.dir, e.Name()))
		}
	}
	return nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Count        int       `json:"count"`
	TotalBytes   int64     `json:"total_bytes"`
	Oldest       time.Time `json:"oldest,omitempty"`
	Newest       time.Time `json:"newest,omitempty"`
	AverageBytes int64     `json:"average_bytes"`
}

// Stats walks the cache directory and aggregates entry sizes and ages.
func (c *Cache) Stats() (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var stats Stats
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return stats, err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Count++
		stats.TotalBytes += info.Size()
		mod := info.ModTime()
		if stats.Oldest.IsZero() || mod.Before(stats.Oldest) {
			stats.Oldest = mod
		}
		if stats.Newest.IsZero() || mod.After(stats.Newest) {
			stats.Newest = mod
		}
	}
	if stats.Count > 0 {
		stats.AverageBytes = stats.TotalBytes / int64(stats.Count)
	}
	return stats, nil
}
