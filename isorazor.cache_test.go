package isorazor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupFingerprint(t *testing.T) {
	base := map[string]string{"a": "one", "b": "two"}

	t.Run("order independent", func(t *testing.T) {
		assert.Equal(t, GroupFingerprint(base), GroupFingerprint(map[string]string{"b": "two", "a": "one"}))
	})

	t.Run("blank members ignored", func(t *testing.T) {
		assert.Equal(t, GroupFingerprint(base), GroupFingerprint(map[string]string{"a": "one", "b": "two", "c": "  "}))
	})

	t.Run("changes with text", func(t *testing.T) {
		assert.NotEqual(t, GroupFingerprint(base), GroupFingerprint(map[string]string{"a": "one", "b": "three"}))
	})

	t.Run("swapped texts collide", func(t *testing.T) {
		swapped := map[string]string{"a": "two", "b": "one"}
		assert.Equal(t, GroupFingerprint(base), GroupFingerprint(swapped))
	})
}

func TestArtifactCache_Lookup(t *testing.T) {
	c := NewArtifactCache()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "", c.Store("a", "/a1", "text", ts))

	loc, ok := c.Lookup("a", "text", ts)
	require.True(t, ok)
	assert.Equal(t, "/a1", loc)

	_, ok = c.Lookup("a", "", time.Time{})
	assert.True(t, ok, "blank text and zero time skip validation")

	_, ok = c.Lookup("a", "other", ts)
	assert.False(t, ok)
	_, ok = c.Lookup("a", "text", ts.Add(time.Second))
	assert.False(t, ok)
	_, ok = c.Lookup("b", "", time.Time{})
	assert.False(t, ok)

	assert.Equal(t, "/a1", c.Store("a", "/a2", "new", ts))
	assert.Equal(t, "", c.Store("a", "/a2", "new", ts))

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Equal(t, 1, stats.Entries)

	assert.True(t, c.Evict("a"))
	assert.False(t, c.Evict("a"))
}

func TestArtifactCache_LookupGroup(t *testing.T) {
	c := NewArtifactCache()
	members := map[string]string{"x": "1"}
	c.StoreGroup("g", "/g", members, time.Time{})

	_, ok := c.LookupGroup("g", nil, time.Time{})
	assert.True(t, ok)
	_, ok = c.LookupGroup("g", members, time.Time{})
	assert.True(t, ok)
	_, ok = c.LookupGroup("g", map[string]string{"x": "2"}, time.Time{})
	assert.False(t, ok)
}

func TestCachePersisters(t *testing.T) {
	entries := []CacheEntry{
		{Name: "a", Fingerprint: 1, Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Location: "/a"},
		{Name: "b", Fingerprint: 2, Location: "/b"},
	}
	dir := t.TempDir()
	sqlitePersister, err := NewSQLitePersister(filepath.Join(dir, "nested", SQLiteDefaultFileName))
	require.NoError(t, err)

	persisters := map[string]CachePersister{
		"gob":    NewGobPersister(filepath.Join(dir, CacheFileName)),
		"sqlite": sqlitePersister,
	}

	for name, p := range persisters {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			defer p.Close()

			empty, err := p.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty)

			require.NoError(t, p.Save(ctx, entries))
			require.NoError(t, p.Save(ctx, entries[:1]))

			loaded, err := p.Load(ctx)
			require.NoError(t, err)
			if diff := cmp.Diff(entries[:1], loaded, timeEqual); diff != "" {
				t.Errorf("loaded entries mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

var timeEqual = cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
