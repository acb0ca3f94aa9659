package isorazor

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache persistence backends
const (
	CacheBackendGob    = "gob"
	CacheBackendSQLite = "sqlite"
)

// Config is the YAML form of the Templater options.
//
//	template_dir: /var/lib/isorazor
//	render_timeout_ms: 5000
//	isolation: process
//	persistence:
//	  enabled: true
//	  backend: sqlite
//	storage:
//	  driver: filesystem
//	  connection: /srv/templates
type Config struct {
	TemplateDir     string            `yaml:"template_dir"`
	Namespace       string            `yaml:"namespace"`
	RenderTimeoutMs *int              `yaml:"render_timeout_ms"`
	ReadDirs        []string          `yaml:"read_dirs"`
	BaseType        string            `yaml:"base_type"`
	Imports         []string          `yaml:"imports"`
	BaseURL         string            `yaml:"base_url"`
	Isolation       string            `yaml:"isolation"`
	Workers         int               `yaml:"workers"`
	WorkerCommand   []string          `yaml:"worker_command"`
	WorkerDebug     bool              `yaml:"worker_debug"`
	Persistence     PersistenceConfig `yaml:"persistence"`
	Storage         StorageConfig     `yaml:"storage"`
}

// PersistenceConfig selects how the artifact cache survives restarts
type PersistenceConfig struct {
	Enabled bool `yaml:"enabled"`
	// Backend is "gob" (default) or "sqlite"
	Backend string `yaml:"backend"`
	// Path defaults to a file in the template directory
	Path string `yaml:"path"`
}

// StorageConfig opens a TemplateStorage through the driver registry
type StorageConfig struct {
	Driver     string `yaml:"driver"`
	Connection string `yaml:"connection"`
}

// LoadConfig reads a YAML config file. Relative directories are resolved
// against the file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigError(ErrMsgConfigRead, path, err)
	}
	return ParseConfig(data, filepath.Dir(path))
}

// ParseConfig parses YAML config data, resolving relative paths against base
func ParseConfig(data []byte, base string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewConfigError(ErrMsgConfigParse, base, err)
	}
	switch cfg.Isolation {
	case "", IsolationInProcess, IsolationProcess:
	default:
		return nil, NewValidationError(ErrMsgInvalidIsolation, LogFieldIsolation, cfg.Isolation)
	}

	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) || base == "" {
			return p
		}
		return filepath.Join(base, p)
	}
	cfg.TemplateDir = abs(cfg.TemplateDir)
	for i, dir := range cfg.ReadDirs {
		cfg.ReadDirs[i] = abs(dir)
	}
	cfg.Persistence.Path = abs(cfg.Persistence.Path)
	if cfg.Storage.Driver == StorageDriverNameFilesystem {
		cfg.Storage.Connection = abs(cfg.Storage.Connection)
	}
	return &cfg, nil
}

// Options converts the config to Templater options. Opening the storage or
// the SQLite persister can fail, so this returns an error too.
func (c *Config) Options() ([]Option, error) {
	var opts []Option
	if c.TemplateDir != "" {
		opts = append(opts, WithTemplateDir(c.TemplateDir))
	}
	if c.Namespace != "" {
		opts = append(opts, WithNamespace(c.Namespace))
	}
	if c.RenderTimeoutMs != nil {
		opts = append(opts, WithRenderTimeout(time.Duration(*c.RenderTimeoutMs)*time.Millisecond))
	}
	if len(c.ReadDirs) > 0 {
		opts = append(opts, WithAllowedReadDirs(c.ReadDirs...))
	}
	if c.BaseType != "" {
		opts = append(opts, WithDefaultBaseType(c.BaseType))
	}
	if len(c.Imports) > 0 {
		opts = append(opts, WithDefaultImports(c.Imports...))
	}
	if c.BaseURL != "" {
		opts = append(opts, WithBaseURL(c.BaseURL))
	}
	if c.Isolation != "" {
		opts = append(opts, WithIsolation(c.Isolation))
	}
	if c.Workers > 0 {
		opts = append(opts, WithWorkers(c.Workers))
	}
	if len(c.WorkerCommand) > 0 {
		opts = append(opts, WithWorkerCommand(c.WorkerCommand...))
	}
	if c.WorkerDebug {
		opts = append(opts, WithWorkerDebug(true))
	}

	if c.Persistence.Enabled {
		switch c.Persistence.Backend {
		case "", CacheBackendGob:
			if c.Persistence.Path != "" {
				opts = append(opts, WithCachePersister(NewGobPersister(c.Persistence.Path)))
			} else {
				opts = append(opts, WithPersistence(true))
			}
		case CacheBackendSQLite:
			path := c.Persistence.Path
			if path == "" {
				path = filepath.Join(c.TemplateDir, SQLiteDefaultFileName)
			}
			p, err := NewSQLitePersister(path)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithCachePersister(p))
		default:
			return nil, NewValidationError(ErrMsgConfigParse, MetaKeyKey, c.Persistence.Backend)
		}
	}

	if c.Storage.Driver != "" {
		storage, err := OpenStorage(c.Storage.Driver, c.Storage.Connection)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithStorage(storage))
	}
	return opts, nil
}
