package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/pinkeep/internal/logx"
	"pkt.systems/pinkeep/schema"
	"pkt.systems/pslog"
)

// Engine reacts to host events by recording snapshots and restoring pinned
// tabs. It keeps no state between reactions; every reaction runs to
// completion on its own and overlapping reactions rely on the idempotence of
// RecordSnapshot and Restore.
type Engine struct {
	cfg        schema.ServiceConfig
	recorder   *Recorder
	reconciler *Reconciler
	timer      Timer
	onChange   func()
	log        pslog.Logger
	inflight   sync.WaitGroup
}

// NewEngine constructs an Engine with its recorder and reconciler.
func NewEngine(cfg schema.ServiceConfig, deps ServiceDeps) (*Engine, error) {
	cfg, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	recorder, err := NewRecorder(cfg, deps)
	if err != nil {
		return nil, err
	}
	reconciler, err := NewReconciler(cfg, deps)
	if err != nil {
		return nil, err
	}
	timer := deps.Timer
	if timer == nil {
		timer = defaultTimer
	}
	return &Engine{
		cfg:        cfg,
		recorder:   recorder,
		reconciler: reconciler,
		timer:      timer,
		onChange:   deps.OnChange,
		log:        loggerOrDefault(deps.Logger),
	}, nil
}

// Recorder returns the engine's snapshot recorder.
func (e *Engine) Recorder() *Recorder {
	return e.recorder
}

// Reconciler returns the engine's restoration reconciler.
func (e *Engine) Reconciler() *Reconciler {
	return e.reconciler
}

// Run handles events until the channel closes or ctx is done, then waits for
// reactions already started.
func (e *Engine) Run(ctx context.Context, events <-chan schema.HostEvent) error {
	e.log.Info("engine start", "restore_delay_ms", e.cfg.RestoreDelay.Milliseconds(), "restore_on_startup", e.cfg.RestoreOnStartup)
	defer e.log.Info("engine stopped")
	for {
		select {
		case <-ctx.Done():
			e.Wait()
			return nil
		case event, ok := <-events:
			if !ok {
				e.Wait()
				return nil
			}
			e.HandleEvent(ctx, event)
		}
	}
}

// HandleEvent starts the reaction for event without waiting for it.
func (e *Engine) HandleEvent(ctx context.Context, event schema.HostEvent) {
	log := logx.WithEvent(e.log, event)
	switch event.Type {
	case schema.EventStartup:
		if !e.cfg.RestoreOnStartup {
			log.Debug("startup restore disabled")
			return
		}
		e.spawn(func() { e.restore(ctx, schema.DefaultScope()) })
	case schema.EventWindowCreated:
		if event.Window == nil || event.Window.Type != schema.WindowNormal {
			log.Trace("window ignored")
			return
		}
		scope := schema.WindowScope(event.Window.ID)
		e.after(e.cfg.RestoreDelay, func() { e.restore(ctx, scope) })
	default:
		if !ShouldRecord(event) {
			return
		}
		e.spawn(func() { e.record(ctx) })
	}
}

// Wait blocks until all started reactions, including pending delayed
// restores, have finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) spawn(fn func()) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		fn()
	}()
}

func (e *Engine) after(delay time.Duration, fn func()) {
	if delay <= 0 {
		e.spawn(fn)
		return
	}
	e.inflight.Add(1)
	e.timer(delay, func() {
		defer e.inflight.Done()
		fn()
	})
}

func (e *Engine) record(ctx context.Context) {
	if _, err := e.recorder.RecordSnapshot(ctx); err != nil {
		// The previous value stays in place; the next trigger resyncs.
		return
	}
	e.notify()
}

func (e *Engine) restore(ctx context.Context, scope schema.Scope) {
	log := logx.WithScope(e.log, scope)
	if err := ctx.Err(); err != nil {
		log.Debug("restore abandoned", "err", err)
		return
	}
	result, err := e.reconciler.Restore(ctx, scope)
	if err != nil {
		if errors.Is(err, schema.ErrWindowNotFound) {
			log.Debug("restore scope gone", "err", err)
		} else {
			log.Warn("restore failed", "err", err)
		}
	}
	if len(result.Created) > 0 {
		e.notify()
	}
}

func (e *Engine) notify() {
	if e.onChange != nil {
		e.onChange()
	}
}
