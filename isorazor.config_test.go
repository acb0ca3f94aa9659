package isorazor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	data := []byte(`
template_dir: artifacts
namespace: My.Templates
render_timeout_ms: 250
read_dirs: [partials, /abs]
isolation: process
workers: 3
persistence:
  enabled: true
  backend: sqlite
storage:
  driver: filesystem
  connection: store
`)

	cfg, err := ParseConfig(data, "/base")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/base", "artifacts"), cfg.TemplateDir)
	assert.Equal(t, []string{filepath.Join("/base", "partials"), "/abs"}, cfg.ReadDirs)
	require.NotNil(t, cfg.RenderTimeoutMs)
	assert.Equal(t, 250, *cfg.RenderTimeoutMs)
	assert.Equal(t, IsolationProcess, cfg.Isolation)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, CacheBackendSQLite, cfg.Persistence.Backend)
	assert.Equal(t, filepath.Join("/base", "store"), cfg.Storage.Connection)
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig([]byte("isolation: thread"), "")
	assert.Error(t, err)

	_, err = ParseConfig([]byte("workers: [1"), "")
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Options(t *testing.T) {
	dir := t.TempDir()
	storeDir := filepath.Join(dir, "store")
	cfgPath := filepath.Join(dir, "isorazor.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
template_dir: artifacts
render_timeout_ms: 0
base_url: /app
persistence:
  enabled: true
  backend: sqlite
storage:
  driver: filesystem
  connection: store
`), 0o600))

	seed, err := NewFilesystemStorage(storeDir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, seed.Save(ctx, &StoredTemplate{Name: "link", Source: `@ResolveUrl("~/home")`}))

	cfg, err := LoadConfig(cfgPath)
	require.NoError(t, err)
	opts, err := cfg.Options()
	require.NoError(t, err)

	tr, err := New(opts...)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "artifacts"), tr.TemplateDir())
	assert.Equal(t, time.Duration(0), tr.cfg.renderTimeout)

	out, err := tr.RenderStored(ctx, "link", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "/app/home", out)
	require.NoError(t, tr.Close())
	assert.FileExists(t, filepath.Join(dir, "artifacts", SQLiteDefaultFileName))
}

func TestConfig_OptionsUnknownBackend(t *testing.T) {
	cfg := &Config{Persistence: PersistenceConfig{Enabled: true, Backend: "redis"}}
	_, err := cfg.Options()
	assert.Error(t, err)

	cfg = &Config{Storage: StorageConfig{Driver: "nope"}}
	_, err = cfg.Options()
	assert.Error(t, err)
}
