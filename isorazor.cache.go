package isorazor

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// CacheEntry maps a template name to its compiled artifact
type CacheEntry struct {
	Name        string    `json:"name"`
	Fingerprint uint64    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
	Location    string    `json:"location"`
}

// CacheStats holds lookup counters
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Fingerprint hashes template text
func Fingerprint(text string) uint64 {
	return xxhash.Sum64String(text)
}

// GroupFingerprint combines the members of a template group. Members with
// blank text are ignored and the combination is order independent. XOR
// folding means two groups whose differences cancel out (for example two
// members swapping their texts) share a fingerprint; a changed timestamp
// still invalidates such entries.
func GroupFingerprint(members map[string]string) uint64 {
	var fp uint64
	for key, text := range members {
		if strings.TrimSpace(text) == "" {
			continue
		}
		fp ^= Fingerprint(key) ^ Fingerprint(text)
	}
	return fp
}

// ArtifactCache remembers where the artifact of each template name lives.
// Entries never expire; they are replaced by a newer store or evicted.
type ArtifactCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
	hits    int64
	misses  int64
}

// NewArtifactCache creates an empty cache
func NewArtifactCache() *ArtifactCache {
	return &ArtifactCache{entries: make(map[string]CacheEntry)}
}

// Lookup returns the artifact location for name when the entry is still
// valid for text and ts. A zero ts or blank text skips that comparison.
func (c *ArtifactCache) Lookup(name, text string, ts time.Time) (string, bool) {
	var fp *uint64
	if strings.TrimSpace(text) != "" {
		v := Fingerprint(text)
		fp = &v
	}
	return c.lookup(name, fp, ts)
}

// LookupGroup is Lookup for template groups. A nil members map skips the
// fingerprint comparison.
func (c *ArtifactCache) LookupGroup(name string, members map[string]string, ts time.Time) (string, bool) {
	var fp *uint64
	if members != nil {
		v := GroupFingerprint(members)
		fp = &v
	}
	return c.lookup(name, fp, ts)
}

func (c *ArtifactCache) lookup(name string, fp *uint64, ts time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[name]
	valid := ok &&
		(ts.IsZero() || entry.Timestamp.Equal(ts)) &&
		(fp == nil || entry.Fingerprint == *fp)
	if !valid {
		c.misses++
		return "", false
	}
	c.hits++
	return entry.Location, true
}

// Store records the artifact for a single template and returns the
// location it replaced, if any.
func (c *ArtifactCache) Store(name, location, text string, ts time.Time) string {
	return c.put(CacheEntry{Name: name, Fingerprint: Fingerprint(text), Timestamp: ts, Location: location})
}

// StoreGroup records the artifact for a template group
func (c *ArtifactCache) StoreGroup(name, location string, members map[string]string, ts time.Time) string {
	return c.put(CacheEntry{Name: name, Fingerprint: GroupFingerprint(members), Timestamp: ts, Location: location})
}

func (c *ArtifactCache) put(entry CacheEntry) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous := c.entries[entry.Name].Location
	c.entries[entry.Name] = entry
	if previous == entry.Location {
		return ""
	}
	return previous
}

// Get returns the entry for name without validating it
func (c *ArtifactCache) Get(name string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[name]
	return entry, ok
}

// Evict removes name and reports whether it was cached
func (c *ArtifactCache) Evict(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[name]
	delete(c.entries, name)
	return ok
}

// AllNames returns the cached names, sorted
func (c *ArtifactCache) AllNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns a snapshot of all entries sorted by name
func (c *ArtifactCache) Entries() []CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Restore adds entries, replacing any with the same name
func (c *ArtifactCache) Restore(entries []CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.entries[e.Name] = e
	}
}

// Stats returns the lookup counters
func (c *ArtifactCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}
