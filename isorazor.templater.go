package isorazor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Templater compiles named templates into artifacts, caches them, and
// renders them inside an isolation boundary under a deadline.
type Templater struct {
	cfg       *templaterConfig
	dir       string
	ownsDir   bool
	caps      Capabilities
	cache     *ArtifactCache
	boundary  Boundary
	persister CachePersister
	storage   TemplateStorage
	tracer    trace.Tracer
	logger    *zap.Logger

	mu         sync.Mutex
	closed     bool
	superseded []string
}

// New creates a Templater
func New(opts ...Option) (*Templater, error) {
	cfg := defaultTemplaterConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dir, ownsDir, err := prepareTemplateDir(cfg.templateDir)
	if err != nil {
		return nil, err
	}
	caps := Capabilities{TemplateDir: dir, ReadDirs: cfg.readDirs}

	var boundary Boundary
	switch cfg.isolation {
	case "", IsolationInProcess:
		parser := cfg.parser
		if parser == nil {
			parser = NewRazorParser(logger)
		}
		compiler := cfg.compiler
		if compiler == nil {
			compiler = NewArtifactCompiler(cfg.namespace, logger)
		}
		boundary = NewInProcessBoundary(parser, compiler, caps, logger)
	case IsolationProcess:
		boundary, err = NewProcessBoundary(ProcessBoundaryConfig{
			Command:      cfg.workerCommand,
			Namespace:    cfg.namespace,
			Capabilities: caps,
			Workers:      cfg.workers,
			Debug:        cfg.workerDebug,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, NewValidationError(ErrMsgInvalidIsolation, LogFieldIsolation, cfg.isolation)
	}

	t := &Templater{
		cfg:      cfg,
		dir:      dir,
		ownsDir:  ownsDir,
		caps:     caps,
		cache:    NewArtifactCache(),
		boundary: boundary,
		storage:  cfg.storage,
		tracer:   newTracer(cfg.tracerProvider),
		logger:   logger,
	}
	if cfg.persist {
		t.persister = cfg.persister
		if t.persister == nil {
			t.persister = NewGobPersister(filepath.Join(dir, CacheFileName))
		}
		t.restore()
	}
	return t, nil
}

// MustNew is New that panics on error
func MustNew(opts ...Option) *Templater {
	t, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func prepareTemplateDir(dir string) (string, bool, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "isorazor-")
		if err != nil {
			return "", false, NewConfigError(ErrMsgConfigRead, os.TempDir(), err)
		}
		return tmp, true, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", false, NewConfigError(ErrMsgConfigRead, dir, err)
	}
	if err := os.MkdirAll(abs, TemplateDirPerm); err != nil {
		return "", false, NewConfigError(ErrMsgConfigRead, abs, err)
	}
	return abs, false, nil
}

// TemplateDir returns the absolute directory holding artifacts
func (t *Templater) TemplateDir() string { return t.dir }

// Stats returns the cache counters
func (t *Templater) Stats() CacheStats { return t.cache.Stats() }

// Names returns the cached template and group names, sorted
func (t *Templater) Names() []string { return t.cache.AllNames() }

// Compile compiles text under name unless a valid cache entry exists and
// returns the artifact location.
func (t *Templater) Compile(ctx context.Context, name, text string, ts time.Time, opts ...CompileOption) (location string, err error) {
	cc := t.compileConfig(opts)
	ctx, span := startSpan(ctx, t.tracer, SpanCompile, name, attribute.String(AttrTemplateType, cc.baseType))
	defer func() { endSpan(span, err) }()

	if err := t.check(); err != nil {
		return "", err
	}
	if strings.TrimSpace(name) == "" {
		return "", NewValidationError(ErrMsgEmptyName, "", "")
	}
	if loc, ok := t.cache.Lookup(name, text, ts); ok {
		span.SetAttributes(attribute.Bool(AttrTemplateCached, true))
		t.logger.Debug(LogMsgCompileCacheHit, zap.String(LogFieldName, name))
		return loc, nil
	}

	className := ClassName(name)
	loc, err := t.compile(ctx, &CompileRequest{
		Name:       name,
		Units:      []UnitSource{{Name: name, ClassName: className, Text: text}},
		BaseType:   cc.baseType,
		Imports:    cc.imports,
		OutputPath: t.artifactPath(className),
	})
	if err != nil {
		return "", err
	}
	t.supersede(t.cache.Store(name, loc, text, ts))
	return loc, nil
}

// CompileLayout compiles a layout template
func (t *Templater) CompileLayout(ctx context.Context, name, text string, ts time.Time, opts ...CompileOption) (string, error) {
	return t.Compile(ctx, name, text, ts, append([]CompileOption{WithBaseType(BaseTypeLayout)}, opts...)...)
}

// CompileGroup compiles every member into one artifact cached under group.
// Member classes are named after group and member key.
func (t *Templater) CompileGroup(ctx context.Context, group string, members map[string]string, ts time.Time, opts ...CompileOption) (location string, err error) {
	cc := t.compileConfig(opts)
	ctx, span := startSpan(ctx, t.tracer, SpanCompile, group, attribute.String(AttrTemplateType, cc.baseType))
	defer func() { endSpan(span, err) }()

	if err := t.check(); err != nil {
		return "", err
	}
	if strings.TrimSpace(group) == "" {
		return "", NewValidationError(ErrMsgEmptyName, "", "")
	}
	if len(members) == 0 {
		return "", NewValidationError(ErrMsgEmptyGroup, MetaKeyTemplateName, group)
	}
	if loc, ok := t.cache.LookupGroup(group, members, ts); ok {
		span.SetAttributes(attribute.Bool(AttrTemplateCached, true))
		t.logger.Debug(LogMsgCompileCacheHit, zap.String(LogFieldName, group))
		return loc, nil
	}

	keys := make([]string, 0, len(members))
	for key := range members {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	units := make([]UnitSource, 0, len(keys))
	for _, key := range keys {
		units = append(units, UnitSource{
			Name:      group + GroupMemberSeparator + key,
			ClassName: GroupClassName(group, key),
			Text:      members[key],
		})
	}

	loc, err := t.compile(ctx, &CompileRequest{
		Name:       group,
		Units:      units,
		BaseType:   cc.baseType,
		Imports:    cc.imports,
		OutputPath: t.artifactPath(ClassName(group)),
	})
	if err != nil {
		return "", err
	}
	t.supersede(t.cache.StoreGroup(group, loc, members, ts))
	return loc, nil
}

func (t *Templater) compile(ctx context.Context, req *CompileRequest) (string, error) {
	start := time.Now()
	t.logger.Debug(LogMsgCompileStart, zap.String(LogFieldName, req.Name), zap.Int(LogFieldClasses, len(req.Units)))
	loc, err := t.boundary.Compile(ctx, req)
	if err != nil {
		t.logger.Warn(LogMsgCompileFailed, zap.String(LogFieldName, req.Name), zap.Error(err))
		return "", err
	}
	t.logger.Info(LogMsgCompileDone,
		zap.String(LogFieldName, req.Name),
		zap.String(LogFieldLocation, loc),
		zap.Duration(LogFieldDuration, time.Since(start)))
	return loc, nil
}

// Render renders a compiled template. WithSource and WithTimestamp make the
// cache entry's validity a precondition.
func (t *Templater) Render(ctx context.Context, name string, model any, bag *ViewBag, opts ...RenderOption) (string, error) {
	rc := renderOptions(opts)
	if err := t.check(); err != nil {
		return "", err
	}
	loc, ok := t.cache.Lookup(name, rc.source, rc.timestamp)
	if !ok {
		return "", NewTemplateNotFoundError(name)
	}
	return t.render(ctx, name, loc, QualifiedTypeName(t.cfg.namespace, ClassName(name)), "", model, bag, rc)
}

// RenderGroup renders one member of a compiled group
func (t *Templater) RenderGroup(ctx context.Context, group, member string, model any, bag *ViewBag, opts ...RenderOption) (string, error) {
	rc := renderOptions(opts)
	if err := t.check(); err != nil {
		return "", err
	}
	loc, ok := t.cache.LookupGroup(group, rc.members, rc.timestamp)
	if !ok {
		return "", NewTemplateNotFoundError(group)
	}
	typeName := QualifiedTypeName(t.cfg.namespace, GroupClassName(group, member))
	return t.render(ctx, group+GroupMemberSeparator+member, loc, typeName, group, model, bag, rc)
}

// Parse compiles text if needed and renders it. A nil model compiles an
// untyped template; otherwise the model's registered type is used.
func (t *Templater) Parse(ctx context.Context, name, text string, ts time.Time, model any, bag *ViewBag, opts ...CompileOption) (string, error) {
	if model != nil {
		opts = append([]CompileOption{WithBaseType(BaseTypeForModel(model))}, opts...)
	}
	loc, err := t.Compile(ctx, name, text, ts, opts...)
	if err != nil {
		return "", err
	}
	typeName := QualifiedTypeName(t.cfg.namespace, ClassName(name))
	return t.render(ctx, name, loc, typeName, "", model, bag, renderOptions(nil))
}

// RenderStored renders a template from the configured storage, compiling
// the latest stored version when the cache does not hold it.
func (t *Templater) RenderStored(ctx context.Context, name string, model any, bag *ViewBag, opts ...RenderOption) (string, error) {
	if err := t.check(); err != nil {
		return "", err
	}
	loc, err := t.compileStored(ctx, name)
	if err != nil {
		return "", err
	}
	typeName := QualifiedTypeName(t.cfg.namespace, ClassName(name))
	return t.render(ctx, name, loc, typeName, "", model, bag, renderOptions(opts))
}

// compileStored compiles the latest stored version of name. The stored
// UpdatedAt is the cache timestamp, so unchanged templates hit the cache.
func (t *Templater) compileStored(ctx context.Context, name string) (string, error) {
	if t.storage == nil {
		return "", NewValidationError(ErrMsgNoStorage, MetaKeyTemplateName, name)
	}
	stored, err := t.storage.Get(ctx, name)
	if err != nil {
		return "", err
	}
	opts := []CompileOption{WithBaseType(stored.BaseType())}
	if len(stored.Imports) > 0 {
		opts = append(opts, WithImports(stored.Imports...))
	}
	loc, err := t.Compile(ctx, name, stored.Source, stored.UpdatedAt, opts...)
	if err != nil {
		return "", err
	}
	t.logger.Debug(LogMsgStorageFallback, zap.String(LogFieldName, name), zap.Int(LogFieldVersion, stored.Version))
	return loc, nil
}

// render runs the template on the boundary and enforces the deadline. The
// timer starts when template code starts, so compile and load time of the
// root template do not count against it.
func (t *Templater) render(ctx context.Context, name, location, typeName, group string, model any, bag *ViewBag, rc renderConfig) (out string, err error) {
	timeout := t.cfg.renderTimeout
	if rc.hasTimeout {
		timeout = rc.timeout
	}
	encoding := EncodingHTML
	if rc.hasEncoding {
		encoding = rc.encoding
	}

	ctx, span := startSpan(ctx, t.tracer, SpanRender, name,
		attribute.String(AttrTemplateType, typeName),
		attribute.Int64(AttrRenderTimeoutMs, timeout.Milliseconds()))
	defer func() { endSpan(span, err) }()

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := make(chan struct{})
	var startOnce sync.Once
	req := &RenderRequest{
		Name:     name,
		Location: location,
		TypeName: typeName,
		Model:    model,
		ViewBag:  bag,
		Encoding: encoding,
		BaseURL:  t.cfg.baseURL,
		Resolver: t.resolver(workerCtx, group),
		Started:  func() { startOnce.Do(func() { close(started) }) },
	}

	start := time.Now()
	t.logger.Debug(LogMsgRenderStart, zap.String(LogFieldName, name), zap.String(LogFieldTypeName, typeName))
	done := make(chan callResult, 1)
	go func() {
		out, err := t.boundary.Render(workerCtx, req)
		done <- callResult{out: out, err: err}
	}()

	var deadline <-chan time.Time
	startedCh := started
	for {
		select {
		case res := <-done:
			if res.err != nil {
				t.logger.Warn(LogMsgRenderFailed, zap.String(LogFieldName, name), zap.Error(res.err))
				return "", res.err
			}
			t.logger.Debug(LogMsgRenderDone, zap.String(LogFieldName, name), zap.Duration(LogFieldDuration, time.Since(start)))
			return res.out, nil

		case <-startedCh:
			startedCh = nil
			if timeout > 0 {
				timer := time.NewTimer(timeout)
				defer timer.Stop()
				deadline = timer.C
			}

		case <-deadline:
			cancel()
			<-done
			t.logger.Warn(LogMsgRenderTimeout, zap.String(LogFieldName, name), zap.Duration(LogFieldTimeout, timeout))
			return "", NewTimeoutError(name, timeout)

		case <-ctx.Done():
			cancel()
			<-done
			return "", ctx.Err()
		}
	}
}

// resolver locates nested templates for layouts and includes. Names are
// looked up as cached templates, then as members of the rendering group,
// then in storage.
func (t *Templater) resolver(ctx context.Context, group string) ResolveFunc {
	return func(name string) (*Resolved, error) {
		if entry, ok := t.cache.Get(name); ok {
			return &Resolved{Location: entry.Location, TypeName: QualifiedTypeName(t.cfg.namespace, ClassName(name))}, nil
		}
		if group != "" {
			if entry, ok := t.cache.Get(group); ok {
				return &Resolved{Location: entry.Location, TypeName: QualifiedTypeName(t.cfg.namespace, GroupClassName(group, name))}, nil
			}
		}
		if t.storage == nil {
			return nil, nil
		}
		loc, err := t.compileStored(ctx, name)
		if errors.Is(err, ErrTemplateNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &Resolved{Location: loc, TypeName: QualifiedTypeName(t.cfg.namespace, ClassName(name))}, nil
	}
}

// DeleteTemplate evicts name from the cache and removes its artifact. The
// next compile of name rebuilds it.
func (t *Templater) DeleteTemplate(ctx context.Context, name string) (err error) {
	ctx, span := startSpan(ctx, t.tracer, SpanDeleteTemplate, name)
	defer func() { endSpan(span, err) }()

	if err := t.check(); err != nil {
		return err
	}
	entry, ok := t.cache.Get(name)
	if !ok {
		return nil
	}
	t.cache.Evict(name)
	t.logger.Debug(LogMsgEvicted, zap.String(LogFieldName, name))
	return t.boundary.EvictArtifact(ctx, entry.Location)
}

// Close saves or discards the cache, removes artifacts that are no longer
// referenced, and shuts the boundary down. Later calls fail with
// ErrDisposed.
func (t *Templater) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	superseded := t.superseded
	t.superseded = nil
	t.mu.Unlock()

	var errs []error
	if err := t.boundary.Close(); err != nil {
		errs = append(errs, err)
	}

	remove := superseded
	if t.persister != nil {
		if err := t.persister.Save(context.Background(), t.cache.Entries()); err != nil {
			t.logger.Warn(LogMsgCachePersistError, zap.Error(err))
			errs = append(errs, err)
		} else {
			t.logger.Debug(LogMsgCachePersisted, zap.Int(LogFieldEntries, t.cache.Stats().Entries))
		}
		if err := t.persister.Close(); err != nil {
			errs = append(errs, err)
		}
	} else {
		for _, entry := range t.cache.Entries() {
			remove = append(remove, entry.Location)
		}
	}
	unloadArtifacts(remove...)
	for _, loc := range remove {
		if err := os.Remove(loc); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if t.ownsDir && t.persister == nil {
		if err := os.RemoveAll(t.dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// restore loads persisted entries whose artifacts still exist
func (t *Templater) restore() {
	entries, err := t.persister.Load(context.Background())
	if err != nil {
		t.logger.Warn(LogMsgCachePersistError, zap.Error(err))
		return
	}
	kept := entries[:0]
	for _, entry := range entries {
		if _, err := os.Stat(entry.Location); err == nil {
			kept = append(kept, entry)
		}
	}
	t.cache.Restore(kept)
	t.logger.Debug(LogMsgCacheRestored, zap.Int(LogFieldEntries, len(kept)))
}

func (t *Templater) check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return NewDisposedError()
	}
	return nil
}

// supersede keeps a replaced artifact until Close so in-flight renders of
// the old version can still load it.
func (t *Templater) supersede(location string) {
	if location == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.superseded = append(t.superseded, location)
}

// artifactPath returns a fresh artifact file name for className
func (t *Templater) artifactPath(className string) string {
	return filepath.Join(t.dir, className+"."+uuid.NewString()+ArtifactExtension)
}

func (t *Templater) compileConfig(opts []CompileOption) compileConfig {
	cc := compileConfig{baseType: t.cfg.baseType, imports: t.cfg.imports}
	for _, opt := range opts {
		opt(&cc)
	}
	return cc
}

func renderOptions(opts []RenderOption) renderConfig {
	var rc renderConfig
	for _, opt := range opts {
		opt(&rc)
	}
	return rc
}
