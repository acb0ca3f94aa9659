package isorazor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunWorkerIfRequested serves the worker protocol on stdin/stdout and exits
// when the process was started as a worker. Call it first thing in main or
// TestMain; it returns false in every other process.
func RunWorkerIfRequested() bool {
	if os.Getenv(EnvWorker) != EnvWorkerOn {
		return false
	}
	if err := ServeWorker(context.Background(), os.Stdin, os.Stdout); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
	return true
}

// ServeWorker answers worker requests read from r until r is exhausted or
// ctx is done. Configuration is taken from the environment.
func ServeWorker(ctx context.Context, r io.Reader, w io.Writer) error {
	var cfg workerConfig
	if raw := os.Getenv(EnvWorkerConfig); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return NewConfigError(ErrMsgConfigParse, EnvWorkerConfig, err)
		}
	}
	if os.Getenv(EnvWorkerDebug) == EnvWorkerOn {
		cfg.Debug = true
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}

	logger := zap.NewNop()
	if cfg.Debug {
		if l, err := zap.NewProduction(); err == nil {
			logger = l.With(zap.Int(LogFieldPID, os.Getpid()))
		}
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &workerServer{
		cfg:      cfg,
		logger:   logger,
		enc:      json.NewEncoder(w),
		pending:  make(map[string]chan workerMessage),
		requests: make(chan workerMessage, 4),
		parser:   NewRazorParser(logger),
		compiler: NewArtifactCompiler(cfg.Namespace, logger),
	}
	go s.readLoop(ctx, r)

	for {
		select {
		case msg, ok := <-s.requests:
			if !ok {
				s.inflight.Wait()
				return s.readErr
			}
			s.handle(ctx, msg)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// workerServer is the worker side of the protocol
type workerServer struct {
	cfg      workerConfig
	logger   *zap.Logger
	parser   Parser
	compiler Compiler

	writeMu sync.Mutex
	enc     *json.Encoder

	mu       sync.Mutex
	pending  map[string]chan workerMessage
	requests chan workerMessage
	readErr  error
	inflight sync.WaitGroup
}

// readLoop routes resolved replies to their waiters and queues the rest
func (s *workerServer) readLoop(ctx context.Context, r io.Reader) {
	defer close(s.requests)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxWorkerLine)
	for scanner.Scan() {
		var msg workerMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			s.logger.Warn(LogMsgWorkerProtocol, zap.Error(err))
			continue
		}
		if msg.Op == opResolved {
			s.mu.Lock()
			ch, ok := s.pending[msg.ID]
			delete(s.pending, msg.ID)
			s.mu.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}
		select {
		case s.requests <- msg:
		case <-ctx.Done():
			return
		}
	}
	s.readErr = scanner.Err()

	// Input is gone; wake anything still waiting on the host.
	s.mu.Lock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.mu.Unlock()
}

func (s *workerServer) send(msg workerMessage) error {
	msg.SentAt = time.Now()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.enc.Encode(msg)
}

func (s *workerServer) handle(ctx context.Context, msg workerMessage) {
	switch msg.Op {
	case opCompile:
		s.inflight.Add(1)
		go s.reply(msg.ID, func(reply *workerMessage) error {
			if msg.Compile == nil {
				return NewBoundaryError(ErrMsgWorkerProtocol, nil)
			}
			location, err := compileUnits(ctx, s.parser, s.compiler, msg.Compile)
			reply.Location = location
			return err
		})
	case opRender:
		s.inflight.Add(1)
		go s.reply(msg.ID, func(reply *workerMessage) error {
			if msg.Render == nil {
				return NewBoundaryError(ErrMsgWorkerProtocol, nil)
			}
			out, err := s.render(ctx, msg.Render)
			reply.Output = out
			return err
		})
	case opUnload:
		unloadArtifacts(msg.Location)
	default:
		s.logger.Warn(LogMsgWorkerProtocol, zap.String(LogFieldName, msg.Op))
	}
}

// reply runs fn and sends its outcome as the result of request id
func (s *workerServer) reply(id string, fn func(reply *workerMessage) error) {
	defer s.inflight.Done()
	reply := workerMessage{ID: id, Op: opResult}
	var err error
	func() {
		defer recoverRender(id, &err)
		err = fn(&reply)
	}()
	reply.Error = toWireError(err)
	if sendErr := s.send(reply); sendErr != nil {
		s.logger.Warn(LogMsgWorkerProtocol, zap.Error(sendErr))
	}
}

func (s *workerServer) render(ctx context.Context, p *renderPayload) (string, error) {
	req := &RenderRequest{
		Name:     p.Name,
		Location: p.Location,
		TypeName: p.TypeName,
		ViewBag:  p.ViewBag,
		Encoding: p.Encoding,
		BaseURL:  p.BaseURL,
		Resolver: func(name string) (*Resolved, error) { return s.resolve(ctx, name) },
		Started: func() {
			_ = s.send(workerMessage{ID: uuid.NewString(), Op: opStarted, Name: p.Name})
		},
	}
	stop := func() bool { return ctx.Err() != nil }
	job := newRenderJob(req, s.cfg.Capabilities, stop, s.logger)
	return job.run(func(baseType string) (any, error) {
		model, err := decodeModel(baseType, p.ModelType, p.Model)
		if errors.Is(err, ErrModelMismatch) {
			return nil, err
		}
		if err != nil {
			return nil, NewRenderError(p.Name, err)
		}
		return model, nil
	})
}

// resolve asks the host to locate a nested template and waits for it
func (s *workerServer) resolve(ctx context.Context, name string) (*Resolved, error) {
	id := uuid.NewString()
	ch := make(chan workerMessage, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()

	if err := s.send(workerMessage{ID: id, Op: opResolve, Name: name}); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, NewBoundaryError(ErrMsgWorkerFailed, err)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, NewBoundaryError(ErrMsgWorkerFailed, io.ErrUnexpectedEOF)
		}
		if msg.Error != nil {
			return nil, fromWireError(msg.Error)
		}
		return msg.Resolved, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
