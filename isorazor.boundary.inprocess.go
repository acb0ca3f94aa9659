package isorazor

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// InProcessBoundary runs every call on its own goroutine. A cancelled
// render has its kill flag set; the interpreter stops at the next node or
// loop iteration and the goroutine's result is dropped.
type InProcessBoundary struct {
	parser   Parser
	compiler Compiler
	caps     Capabilities
	logger   *zap.Logger
	lease    *Lease

	mu     sync.Mutex
	loaded map[string]struct{}
	closed bool
}

// NewInProcessBoundary creates an in-process boundary
func NewInProcessBoundary(parser Parser, compiler Compiler, caps Capabilities, logger *zap.Logger) *InProcessBoundary {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &InProcessBoundary{
		parser:   parser,
		compiler: compiler,
		caps:     caps,
		logger:   logger,
		loaded:   make(map[string]struct{}),
	}
	b.lease = NewLease(DefaultLeaseGrace, b.unloadAll)
	logger.Debug(LogMsgBoundaryCreated, zap.String(LogFieldIsolation, IsolationInProcess))
	return b
}

type callResult struct {
	out string
	err error
}

// Compile parses and compiles the request on a worker goroutine
func (b *InProcessBoundary) Compile(ctx context.Context, req *CompileRequest) (string, error) {
	if err := b.enter(); err != nil {
		return "", err
	}
	defer b.lease.Release()

	done := make(chan callResult, 1)
	go func() {
		var res callResult
		defer func() { done <- res }()
		defer recoverRender(req.Name, &res.err)
		res.out, res.err = compileUnits(ctx, b.parser, b.compiler, req)
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Render runs the template on a sacrificial goroutine
func (b *InProcessBoundary) Render(ctx context.Context, req *RenderRequest) (string, error) {
	if err := b.enter(); err != nil {
		return "", err
	}
	defer b.lease.Release()

	var killed atomic.Bool
	done := make(chan callResult, 1)
	go func() {
		var res callResult
		defer func() { done <- res }()
		defer recoverRender(req.Name, &res.err)

		job := newRenderJob(req, b.caps, killed.Load, b.logger)
		job.onLoad = b.track
		res.out, res.err = job.run(nil)
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		killed.Store(true)
		return "", ctx.Err()
	}
}

// EvictArtifact unloads location and deletes the file
func (b *InProcessBoundary) EvictArtifact(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unloadArtifacts(location)
	b.mu.Lock()
	delete(b.loaded, location)
	b.mu.Unlock()

	if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
		return NewBoundaryError(ErrMsgBadArtifact, err)
	}
	b.logger.Debug(LogMsgArtifactRemoved, zap.String(LogFieldLocation, location))
	return nil
}

// Close unloads everything the boundary loaded
func (b *InProcessBoundary) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.lease.Stop()
	b.unloadAll()
	b.logger.Debug(LogMsgBoundaryClosed, zap.String(LogFieldIsolation, IsolationInProcess))
	return nil
}

func (b *InProcessBoundary) enter() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return NewDisposedError()
	}
	b.lease.Acquire()
	return nil
}

func (b *InProcessBoundary) track(location string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loaded[location] = struct{}{}
}

// unloadAll is the lease expiry hook
func (b *InProcessBoundary) unloadAll() {
	b.mu.Lock()
	locations := make([]string, 0, len(b.loaded))
	for loc := range b.loaded {
		locations = append(locations, loc)
	}
	b.loaded = make(map[string]struct{})
	b.mu.Unlock()

	unloadArtifacts(locations...)
	b.logger.Debug(LogMsgLeaseExpired, zap.Int(LogFieldEntries, len(locations)))
}
