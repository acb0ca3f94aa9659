package isorazor

import (
	"slices"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures a Templater
type Option func(*templaterConfig)

// templaterConfig holds the Templater settings
type templaterConfig struct {
	templateDir    string
	namespace      string
	renderTimeout  time.Duration
	readDirs       []string
	baseType       string
	imports        []string
	persist        bool
	persister      CachePersister
	baseURL        string
	isolation      string
	workers        int
	workerCommand  []string
	workerDebug    bool
	parser         Parser
	compiler       Compiler
	storage        TemplateStorage
	tracerProvider trace.TracerProvider
	logger         *zap.Logger
}

func defaultTemplaterConfig() *templaterConfig {
	return &templaterConfig{
		namespace:     DefaultNamespace,
		renderTimeout: DefaultRenderTimeout,
		baseType:      DefaultBaseType,
		imports:       slices.Clone(DefaultImports),
		isolation:     IsolationInProcess,
		workers:       DefaultWorkerCount,
	}
}

// WithTemplateDir sets where artifacts and the persisted cache live.
// Default: a fresh directory under os.TempDir.
func WithTemplateDir(dir string) Option {
	return func(c *templaterConfig) { c.templateDir = dir }
}

// WithNamespace sets the namespace of compiled template classes.
// Default: "IsolatedTemplates.Template"
func WithNamespace(ns string) Option {
	return func(c *templaterConfig) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

// WithRenderTimeout sets the render deadline. Zero or negative disables it.
// Default: 5s
func WithRenderTimeout(d time.Duration) Option {
	return func(c *templaterConfig) { c.renderTimeout = d }
}

// WithAllowedReadDirs adds directories the ReadText template function may read
func WithAllowedReadDirs(dirs ...string) Option {
	return func(c *templaterConfig) { c.readDirs = append(c.readDirs, dirs...) }
}

// WithDefaultBaseType sets the base type of untyped templates.
// Default: "TemplateBase"
func WithDefaultBaseType(name string) Option {
	return func(c *templaterConfig) {
		if name != "" {
			c.baseType = name
		}
	}
}

// WithDefaultImports replaces the default import list
func WithDefaultImports(imports ...string) Option {
	return func(c *templaterConfig) { c.imports = slices.Clone(imports) }
}

// WithPersistence saves the artifact cache on Close and restores it on New.
// Without WithCachePersister the cache is a gob file in the template
// directory. Default: off
func WithPersistence(enabled bool) Option {
	return func(c *templaterConfig) { c.persist = enabled }
}

// WithCachePersister sets how the cache is persisted and turns persistence on
func WithCachePersister(p CachePersister) Option {
	return func(c *templaterConfig) {
		c.persister = p
		c.persist = p != nil
	}
}

// WithBaseURL sets what "~" expands to in ResolveUrl
func WithBaseURL(url string) Option {
	return func(c *templaterConfig) { c.baseURL = url }
}

// WithIsolation selects IsolationInProcess or IsolationProcess.
// Default: IsolationInProcess
func WithIsolation(mode string) Option {
	return func(c *templaterConfig) { c.isolation = mode }
}

// WithWorkers sets how many idle worker processes are kept.
// Default: 2
func WithWorkers(n int) Option {
	return func(c *templaterConfig) { c.workers = n }
}

// WithWorkerCommand sets the command starting a worker process. Default:
// the current executable.
func WithWorkerCommand(command ...string) Option {
	return func(c *templaterConfig) { c.workerCommand = command }
}

// WithWorkerDebug makes worker processes log to stderr
func WithWorkerDebug(enabled bool) Option {
	return func(c *templaterConfig) { c.workerDebug = enabled }
}

// WithParser replaces the template parser. In-process isolation only.
func WithParser(p Parser) Option {
	return func(c *templaterConfig) { c.parser = p }
}

// WithCompiler replaces the compiler. In-process isolation only.
func WithCompiler(comp Compiler) Option {
	return func(c *templaterConfig) { c.compiler = comp }
}

// WithStorage sets the storage consulted for templates that were never
// compiled.
func WithStorage(s TemplateStorage) Option {
	return func(c *templaterConfig) { c.storage = s }
}

// WithTracerProvider sets the OpenTelemetry provider.
// Default: the global provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *templaterConfig) { c.tracerProvider = tp }
}

// WithLogger sets the logger.
// Default: nil (no logging)
func WithLogger(logger *zap.Logger) Option {
	return func(c *templaterConfig) { c.logger = logger }
}

// CompileOption configures one compile
type CompileOption func(*compileConfig)

type compileConfig struct {
	baseType string
	imports  []string
}

// WithBaseType compiles against the named base type
func WithBaseType(name string) CompileOption {
	return func(c *compileConfig) { c.baseType = name }
}

// WithImports replaces the imports of one compile
func WithImports(imports ...string) CompileOption {
	return func(c *compileConfig) { c.imports = slices.Clone(imports) }
}

// RenderOption configures one render
type RenderOption func(*renderConfig)

type renderConfig struct {
	source      string
	members     map[string]string
	timestamp   time.Time
	encoding    Encoding
	hasEncoding bool
	timeout     time.Duration
	hasTimeout  bool
}

// WithSource requires the cached template to have been compiled from text
func WithSource(text string) RenderOption {
	return func(c *renderConfig) { c.source = text }
}

// WithMembers is WithSource for template groups
func WithMembers(members map[string]string) RenderOption {
	return func(c *renderConfig) { c.members = members }
}

// WithTimestamp requires the cache entry to carry ts
func WithTimestamp(ts time.Time) RenderOption {
	return func(c *renderConfig) { c.timestamp = ts }
}

// WithEncoding sets the output encoding. Default: EncodingHTML
func WithEncoding(e Encoding) RenderOption {
	return func(c *renderConfig) {
		c.encoding = e
		c.hasEncoding = true
	}
}

// WithTimeout overrides the render deadline for one call
func WithTimeout(d time.Duration) RenderOption {
	return func(c *renderConfig) {
		c.timeout = d
		c.hasTimeout = true
	}
}
