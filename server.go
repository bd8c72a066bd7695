package pinkeep

import (
	"context"
	"errors"
	"io"
	"sync"

	"pkt.systems/pinkeep/core"
	"pkt.systems/pinkeep/httpapi"
	"pkt.systems/pinkeep/internal/eventbus"
	"pkt.systems/pinkeep/internal/nativemsg"
	"pkt.systems/pinkeep/schema"
	"pkt.systems/pslog"
)

// Server composes the sync engine, the browser connection, and the list
// editor UI.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service         schema.ServiceConfig
	HTTP            httpapi.Config
	MaxMessageBytes int
	BusDepth        int
}

// ServerDeps captures dependencies required to build the server. Exactly one
// of Host or a native port (In/Out) provides the browser.
type ServerDeps struct {
	Store  core.Store
	Host   core.Host
	In     io.Reader
	Out    io.Writer
	Bus    *eventbus.Bus
	Logger pslog.Logger
	// OnChange is called after every pinned set change.
	OnChange func()
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableEngine bool
	enableHTTP   bool
}

// WithEngine enables the event-driven recorder and reconciler.
func WithEngine() ServerOption {
	return func(o *serverOptions) { o.enableEngine = true }
}

// WithHTTP enables the list editor UI server.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// New constructs a composable pinkeep server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableEngine && !options.enableHTTP {
		return nil, errors.New("no services enabled")
	}
	if deps.Store == nil {
		return nil, errors.New("store dependency is required")
	}
	if deps.Host == nil && (deps.In == nil || deps.Out == nil) {
		return nil, errors.New("host or native port is required")
	}
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized

	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	bus := deps.Bus
	if bus == nil {
		bus = eventbus.NewWithDepth(logger, cfg.BusDepth)
	}

	srv := &compositeServer{
		cfg:     cfg,
		options: options,
		bus:     bus,
		logger:  logger,
	}

	host := deps.Host
	if host == nil {
		srv.bridge = nativemsg.NewBridge(deps.In, deps.Out, nativemsg.Options{
			MaxIncoming: cfg.MaxMessageBytes,
			Publisher:   bus,
			Logger:      logger,
		})
		host = srv.bridge
	}

	changes := changeFanout{deps.OnChange, srv.notifyHTTP}
	serviceDeps := core.ServiceDeps{
		Host:     host,
		Store:    deps.Store,
		Logger:   logger,
		OnChange: changes.notify,
	}

	editor, err := core.NewListEditor(cfg.Service, serviceDeps)
	if err != nil {
		return nil, err
	}
	srv.editor = editor
	if srv.bridge != nil {
		srv.bridge.SetHandler(nativemsg.NewPinHandler(editor))
	}

	if options.enableEngine {
		engine, err := core.NewEngine(cfg.Service, serviceDeps)
		if err != nil {
			return nil, err
		}
		srv.engine = engine
	}
	if options.enableHTTP {
		srv.httpSrv = httpapi.NewServer(cfg.HTTP, editor, httpapi.NewHub(logger))
	}
	return srv, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	bus     *eventbus.Bus
	bridge  *nativemsg.Bridge
	editor  *core.ListEditor
	engine  *core.Engine
	httpSrv *httpapi.Server
	logger  pslog.Logger

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	errCh      chan error
	engineDone chan struct{}
	started    bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(pslog.ContextWithLogger(ctx, s.logger))
	s.errCh = make(chan error, 3)
	s.engineDone = make(chan struct{})
	s.started = true
	runCtx := s.ctx
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"engine", s.options.enableEngine,
		"http", s.options.enableHTTP,
		"native", s.bridge != nil,
		"http_addr", s.cfg.HTTP.Addr,
		"restore_delay", s.cfg.Service.RestoreDelay.String(),
		"restore_on_startup", s.cfg.Service.RestoreOnStartup,
	)

	if s.engine != nil {
		events, unsubscribe := s.bus.SubscribeLossless()
		go func() {
			defer close(s.engineDone)
			defer unsubscribe()
			if err := s.engine.Run(runCtx, events); err != nil {
				log.Error("engine failed", "err", err)
				s.errCh <- err
			}
		}()
	} else {
		close(s.engineDone)
	}
	if s.bridge != nil {
		go func() {
			err := s.bridge.Run(runCtx)
			if err != nil {
				log.Error("native port failed", "err", err)
				s.errCh <- err
				return
			}
			// The browser closed the port; there is nothing left to serve.
			log.Info("native port done")
			s.cancel()
		}()
	}
	if s.httpSrv != nil && s.cfg.HTTP.Addr != "" {
		go func() {
			if err := httpapi.ListenAndServe(runCtx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				// Another host instance may own the port; the engine keeps running.
				log.Warn("http server failed", "addr", s.cfg.HTTP.Addr, "err", err)
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		<-s.engineDone
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	done := s.engineDone
	s.mu.Unlock()
	if !started {
		return nil
	}
	log := s.logger
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}

func (s *compositeServer) notifyHTTP() {
	if s.httpSrv == nil {
		return
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.httpSrv.NotifyChanged(ctx)
}
