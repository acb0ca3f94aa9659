package isorazor

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxWorkerLine bounds one protocol line, which carries a whole render
const maxWorkerLine = 64 << 20

// ProcessBoundaryConfig configures a ProcessBoundary
type ProcessBoundaryConfig struct {
	// Command starts a worker. Empty re-executes the current binary, which
	// must call RunWorkerIfRequested early in main or TestMain.
	Command      []string
	Namespace    string
	Capabilities Capabilities
	// Workers is the number of idle worker processes kept around
	Workers int
	Debug   bool
	Logger  *zap.Logger
}

// ProcessBoundary runs templates in child processes. Children start with an
// empty environment in the template directory. A cancelled call kills its
// child; the pool starts a fresh one on demand.
type ProcessBoundary struct {
	command []string
	cfg     workerConfig
	maxIdle int
	logger  *zap.Logger
	lease   *Lease

	mu     sync.Mutex
	idle   []*workerProc
	busy   map[*workerProc]struct{}
	closed bool
}

// NewProcessBoundary creates a process boundary. No child is started
// before the first call.
func NewProcessBoundary(cfg ProcessBoundaryConfig) (*ProcessBoundary, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	command := cfg.Command
	if len(command) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, NewBoundaryError(ErrMsgWorkerFailed, err)
		}
		command = []string{exe}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkerCount
	}

	b := &ProcessBoundary{
		command: command,
		cfg: workerConfig{
			Namespace:    cfg.Namespace,
			Capabilities: cfg.Capabilities,
			Debug:        cfg.Debug,
		},
		maxIdle: workers,
		logger:  logger,
		busy:    make(map[*workerProc]struct{}),
	}
	b.lease = NewLease(DefaultLeaseGrace, b.stopIdle)
	logger.Debug(LogMsgBoundaryCreated, zap.String(LogFieldIsolation, IsolationProcess))
	return b, nil
}

// Compile compiles the request in a worker
func (b *ProcessBoundary) Compile(ctx context.Context, req *CompileRequest) (string, error) {
	reply, err := b.call(ctx, workerMessage{Op: opCompile, Compile: req}, nil, nil)
	if err != nil {
		return "", err
	}
	return reply.Location, nil
}

// Render renders the request in a worker
func (b *ProcessBoundary) Render(ctx context.Context, req *RenderRequest) (string, error) {
	var model json.RawMessage
	var modelType string
	if req.Model != nil {
		data, err := json.Marshal(req.Model)
		if err != nil {
			return "", NewRenderError(req.Name, err)
		}
		model = data
		modelType = modelTypeName(req.Model)
	}
	payload := &renderPayload{
		Name:      req.Name,
		Location:  req.Location,
		TypeName:  req.TypeName,
		Model:     model,
		ModelType: modelType,
		ViewBag:   req.ViewBag,
		Encoding:  req.Encoding,
		BaseURL:   req.BaseURL,
	}

	reply, err := b.call(ctx, workerMessage{Op: opRender, Render: payload}, req.Resolver, req.Started)
	if err != nil {
		return "", err
	}
	return reply.Output, nil
}

// EvictArtifact deletes the artifact and unloads it from idle workers
func (b *ProcessBoundary) EvictArtifact(ctx context.Context, location string) error {
	b.mu.Lock()
	idle := append([]*workerProc(nil), b.idle...)
	b.mu.Unlock()
	for _, w := range idle {
		// Best effort; a worker that fails here is replaced on its next use.
		_ = w.send(workerMessage{ID: uuid.NewString(), Op: opUnload, Location: location, SentAt: time.Now()})
	}

	if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
		return NewBoundaryError(ErrMsgBadArtifact, err)
	}
	b.logger.Debug(LogMsgArtifactRemoved, zap.String(LogFieldLocation, location))
	return ctx.Err()
}

// Close kills every worker
func (b *ProcessBoundary) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	workers := append([]*workerProc(nil), b.idle...)
	for w := range b.busy {
		workers = append(workers, w)
	}
	b.idle = nil
	b.mu.Unlock()

	b.lease.Stop()
	for _, w := range workers {
		w.stop()
	}
	b.logger.Debug(LogMsgBoundaryClosed, zap.String(LogFieldIsolation, IsolationProcess))
	return nil
}

// call runs one request on a worker and serves its callbacks until the
// result arrives or ctx is done.
func (b *ProcessBoundary) call(ctx context.Context, msg workerMessage, resolver ResolveFunc, started func()) (*workerMessage, error) {
	w, err := b.acquire()
	if err != nil {
		return nil, err
	}
	defer b.lease.Release()

	reply, err := w.call(ctx, msg, resolver, started)
	b.release(w, err == nil)
	if err != nil {
		return nil, err
	}
	if reply.Error != nil {
		return nil, fromWireError(reply.Error)
	}
	return reply, nil
}

func (b *ProcessBoundary) acquire() (*workerProc, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, NewDisposedError()
	}
	b.lease.Acquire()
	if n := len(b.idle); n > 0 {
		w := b.idle[n-1]
		b.idle = b.idle[:n-1]
		b.busy[w] = struct{}{}
		b.mu.Unlock()
		return w, nil
	}
	b.mu.Unlock()

	w, err := b.spawn()
	if err != nil {
		b.lease.Release()
		return nil, err
	}
	b.mu.Lock()
	b.busy[w] = struct{}{}
	b.mu.Unlock()
	return w, nil
}

// release returns a healthy worker to the pool and stops the rest
func (b *ProcessBoundary) release(w *workerProc, healthy bool) {
	b.mu.Lock()
	delete(b.busy, w)
	keep := healthy && !b.closed && !w.exited() && len(b.idle) < b.maxIdle
	if keep {
		b.idle = append(b.idle, w)
	}
	b.mu.Unlock()
	if !keep {
		w.stop()
	}
}

// stopIdle is the lease expiry hook
func (b *ProcessBoundary) stopIdle() {
	b.mu.Lock()
	idle := b.idle
	b.idle = nil
	b.mu.Unlock()
	for _, w := range idle {
		w.stop()
	}
	b.logger.Debug(LogMsgLeaseExpired, zap.Int(LogFieldEntries, len(idle)))
}

func (b *ProcessBoundary) spawn() (*workerProc, error) {
	cfg, err := json.Marshal(b.cfg)
	if err != nil {
		return nil, NewBoundaryError(ErrMsgWorkerFailed, err)
	}

	cmd := exec.Command(b.command[0], b.command[1:]...)
	cmd.Env = []string{EnvWorker + "=" + EnvWorkerOn, EnvWorkerConfig + "=" + string(cfg)}
	if b.cfg.Debug {
		cmd.Env = append(cmd.Env, EnvWorkerDebug+"="+EnvWorkerOn)
	}
	cmd.Dir = b.cfg.Capabilities.TemplateDir
	cmd.Stderr = os.Stderr
	setWorkerProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, NewBoundaryError(ErrMsgWorkerFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, NewBoundaryError(ErrMsgWorkerFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, NewBoundaryError(ErrMsgWorkerFailed, err)
	}

	w := &workerProc{
		cmd:      cmd,
		stdin:    stdin,
		enc:      json.NewEncoder(stdin),
		messages: make(chan workerMessage, 16),
		done:     make(chan struct{}),
		logger:   b.logger,
	}
	go w.readLoop(stdout)
	b.logger.Debug(LogMsgWorkerStarted, zap.Int(LogFieldPID, cmd.Process.Pid))
	return w, nil
}

// workerProc is the host side of one worker process
type workerProc struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	logger   *zap.Logger
	messages chan workerMessage
	done     chan struct{}
	waitErr  error

	writeMu sync.Mutex
	enc     *json.Encoder

	stopOnce sync.Once
}

func (w *workerProc) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64<<10), maxWorkerLine)
	for scanner.Scan() {
		var msg workerMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			w.logger.Warn(LogMsgWorkerProtocol, zap.Error(err))
			continue
		}
		w.messages <- msg
	}
	w.waitErr = w.cmd.Wait()
	close(w.messages)
	close(w.done)
	w.logger.Debug(LogMsgWorkerExited, zap.Int(LogFieldPID, w.cmd.Process.Pid))
}

func (w *workerProc) send(msg workerMessage) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.enc.Encode(msg); err != nil {
		return NewBoundaryError(ErrMsgWorkerFailed, err)
	}
	return nil
}

func (w *workerProc) call(ctx context.Context, msg workerMessage, resolver ResolveFunc, started func()) (*workerMessage, error) {
	msg.ID = uuid.NewString()
	msg.SentAt = time.Now()
	if err := w.send(msg); err != nil {
		return nil, err
	}

	for {
		select {
		case m, ok := <-w.messages:
			if !ok {
				return nil, NewBoundaryError(ErrMsgWorkerFailed, w.waitErr)
			}
			switch m.Op {
			case opStarted:
				if started != nil {
					started()
				}
			case opResolve:
				reply := workerMessage{ID: m.ID, Op: opResolved, SentAt: time.Now()}
				if resolver != nil {
					resolved, err := resolver(m.Name)
					reply.Resolved = resolved
					reply.Error = toWireError(err)
				}
				if err := w.send(reply); err != nil {
					return nil, err
				}
			case opResult:
				if m.ID != msg.ID {
					w.logger.Warn(LogMsgWorkerProtocol, zap.String(LogFieldName, m.ID))
					continue
				}
				return &m, nil
			}
		case <-ctx.Done():
			w.kill()
			return nil, ctx.Err()
		}
	}
}

func (w *workerProc) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// kill terminates the worker at once
func (w *workerProc) kill() {
	killWorker(w.cmd)
	w.logger.Debug(LogMsgWorkerKilled, zap.Int(LogFieldPID, w.cmd.Process.Pid))
}

// stop closes stdin so the worker exits, killing it if it lingers
func (w *workerProc) stop() {
	w.stopOnce.Do(func() {
		w.stdin.Close()
		select {
		case <-w.done:
		case <-time.After(DefaultShutdownTimeout):
			w.kill()
		}
	})
}
