package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pinkeep/core"
	"pkt.systems/pinkeep/internal/appconfig"
	"pkt.systems/pinkeep/internal/memhost"
	"pkt.systems/pinkeep/schema"
	"pkt.systems/pslog"
)

func newSimulateCmd() *cobra.Command {
	var cfgPath string
	var seeds []string
	var fromStore bool
	var newPin string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a browser session against an in-memory browser",
		Long: "Replay a browser session against an in-memory browser: start with one " +
			"window, pin a new tab, then open a second window. The configured " +
			"store is read at most once and never written.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			logger := pslog.Ctx(cmd.Context())
			seed := seeds
			if fromStore {
				seed, err = readSavedPins(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
			}
			sim, err := newSimulation(cfg.ServiceConfig(), seed, logger)
			if err != nil {
				return err
			}
			return sim.run(cmd.Context(), cmd.OutOrStdout(), newPin)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringArrayVar(&seeds, "url", nil, "saved pinned URL to start with (repeatable)")
	cmd.Flags().BoolVar(&fromStore, "from-store", false, "start with a copy of the configured store")
	cmd.Flags().StringVar(&newPin, "pin", "https://example.com/", "URL the simulated user pins")
	return cmd
}

func readSavedPins(ctx context.Context, cfg appconfig.Config, logger pslog.Logger) ([]string, error) {
	store, closeFn, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeFn() }()
	editor, err := core.NewListEditor(cfg.ServiceConfig(), core.ServiceDeps{Store: store, Logger: logger})
	if err != nil {
		return nil, err
	}
	return editor.List(ctx)
}

// eventQueue buffers host events so the simulation can hand them to the
// engine one batch at a time.
type eventQueue struct {
	mu     sync.Mutex
	events []schema.HostEvent
}

func (q *eventQueue) Publish(event schema.HostEvent) {
	q.mu.Lock()
	q.events = append(q.events, event)
	q.mu.Unlock()
}

func (q *eventQueue) take() []schema.HostEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

type simulation struct {
	cfg    schema.ServiceConfig
	queue  *eventQueue
	host   *memhost.Host
	store  *memhost.Store
	engine *core.Engine
	editor *core.ListEditor
}

func newSimulation(cfg schema.ServiceConfig, seed []string, logger pslog.Logger) (*simulation, error) {
	queue := &eventQueue{}
	host := memhost.New(queue)
	store := memhost.NewStore()
	cfg, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	if len(seed) > 0 {
		data, err := json.Marshal(core.Dedupe(seed))
		if err != nil {
			return nil, err
		}
		if err := store.Set(context.Background(), cfg.StorageKey, data); err != nil {
			return nil, err
		}
	}
	deps := core.ServiceDeps{
		Host:   host,
		Store:  store,
		Logger: logger,
		// Simulated time: delayed restores fire at once.
		Timer: func(_ time.Duration, fn func()) { go fn() },
	}
	engine, err := core.NewEngine(cfg, deps)
	if err != nil {
		return nil, err
	}
	editor, err := core.NewListEditor(cfg, deps)
	if err != nil {
		return nil, err
	}
	return &simulation{cfg: cfg, queue: queue, host: host, store: store, engine: engine, editor: editor}, nil
}

// settle feeds queued events to the engine until reactions stop producing
// new ones.
func (s *simulation) settle(ctx context.Context) {
	for {
		events := s.queue.take()
		if len(events) == 0 {
			return
		}
		for _, event := range events {
			s.engine.HandleEvent(ctx, event)
		}
		s.engine.Wait()
	}
}

func (s *simulation) run(ctx context.Context, w io.Writer, newPin string) error {
	first := s.host.OpenWindow(schema.WindowNormal)
	if _, err := s.host.OpenTab(first.ID, "about:newtab", false); err != nil {
		return err
	}
	s.settle(ctx)
	s.queue.Publish(schema.HostEvent{Type: schema.EventStartup})
	s.settle(ctx)
	if err := s.report(ctx, w, "browser started"); err != nil {
		return err
	}

	if newPin != "" {
		tab, err := s.host.OpenTab(first.ID, newPin, false)
		if err != nil {
			return err
		}
		s.settle(ctx)
		if _, err := s.host.SetPinned(tab.ID, true); err != nil {
			return err
		}
		s.settle(ctx)
		if err := s.report(ctx, w, "user pinned "+newPin); err != nil {
			return err
		}
	}

	second := s.host.OpenWindow(schema.WindowNormal)
	if _, err := s.host.OpenTab(second.ID, "about:newtab", false); err != nil {
		return err
	}
	s.settle(ctx)
	return s.report(ctx, w, "second window opened")
}

func (s *simulation) report(ctx context.Context, w io.Writer, step string) error {
	saved, err := s.editor.List(ctx)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "== %s\n", step); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "saved: %d\n", len(saved)); err != nil {
		return err
	}
	for i, url := range saved {
		if _, err := fmt.Fprintf(w, "  %d\t%s\n", i, url); err != nil {
			return err
		}
	}
	for _, tab := range s.host.Tabs() {
		mark := " "
		if tab.Pinned {
			mark = "*"
		}
		if _, err := fmt.Fprintf(w, "window %d %s %s\n", tab.WindowID, mark, tab.URL); err != nil {
			return err
		}
	}
	return nil
}
