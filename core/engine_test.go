package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"pkt.systems/pinkeep/internal/eventbus"
	"pkt.systems/pinkeep/internal/memhost"
	"pkt.systems/pinkeep/schema"
)

// manualTimer records scheduled callbacks and runs them on demand.
type manualTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (m *manualTimer) schedule(d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, d)
	m.fns = append(m.fns, fn)
}

func (m *manualTimer) fire() {
	m.mu.Lock()
	fns := m.fns
	m.fns = nil
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func newTestEngine(t *testing.T, cfg schema.ServiceConfig, host Host, store Store, timer *manualTimer) *Engine {
	t.Helper()
	deps := ServiceDeps{Host: host, Store: store}
	if timer != nil {
		deps.Timer = timer.schedule
	}
	engine, err := NewEngine(cfg, deps)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestEngineWindowCreatedRestoresAfterDelay(t *testing.T) {
	host := memhost.New(nil)
	store := memhost.NewStore()
	seedPinned(t, store, "A", "B")
	timer := &manualTimer{}
	cfg := testConfig()
	cfg.RestoreDelay = 1500 * time.Millisecond
	engine := newTestEngine(t, cfg, host, store, timer)

	w := host.OpenWindow(schema.WindowNormal)
	engine.HandleEvent(context.Background(), schema.HostEvent{Type: schema.EventWindowCreated, Window: &w})
	if len(host.Created()) != 0 {
		t.Fatalf("expected no restore before the delay elapses")
	}
	if len(timer.delays) != 1 || timer.delays[0] != 1500*time.Millisecond {
		t.Fatalf("expected one timer of 1.5s, got %v", timer.delays)
	}
	// Native session restore lands during the delay.
	openTab(t, host, w.ID, "A", true)
	timer.fire()
	engine.Wait()

	created := host.Created()
	if len(created) != 1 || created[0].URL != "B" {
		t.Fatalf("expected only B restored, got %+v", created)
	}
	if id, ok := created[0].Scope.WindowID(); !ok || id != w.ID {
		t.Fatalf("expected restore into window %d, got %+v", w.ID, created[0])
	}
}

func TestEngineIgnoresNonNormalWindows(t *testing.T) {
	host := memhost.New(nil)
	store := memhost.NewStore()
	seedPinned(t, store, "A")
	timer := &manualTimer{}
	engine := newTestEngine(t, testConfig(), host, store, timer)

	for _, kind := range []schema.WindowType{schema.WindowPopup, schema.WindowDevTools, schema.WindowPanel, schema.WindowApp} {
		w := host.OpenWindow(kind)
		engine.HandleEvent(context.Background(), schema.HostEvent{Type: schema.EventWindowCreated, Window: &w})
	}
	engine.HandleEvent(context.Background(), schema.HostEvent{Type: schema.EventWindowCreated})
	timer.fire()
	engine.Wait()
	if len(host.Created()) != 0 {
		t.Fatalf("expected no restores for non-normal windows, got %+v", host.Created())
	}
}

func TestEngineStaleWindowAfterDelay(t *testing.T) {
	host := memhost.New(nil)
	store := memhost.NewStore()
	seedPinned(t, store, "A")
	timer := &manualTimer{}
	cfg := testConfig()
	cfg.RestoreDelay = time.Second
	engine := newTestEngine(t, cfg, host, store, timer)

	w := host.OpenWindow(schema.WindowNormal)
	engine.HandleEvent(context.Background(), schema.HostEvent{Type: schema.EventWindowCreated, Window: &w})
	host.CloseWindow(w.ID)
	timer.fire()
	engine.Wait()
	for _, tab := range host.Tabs() {
		t.Fatalf("expected no tabs after stale restore, got %+v", tab)
	}
}

func TestEngineStartupRestoresDefaultScope(t *testing.T) {
	host := memhost.New(nil)
	store := memhost.NewStore()
	seedPinned(t, store, "A", "B")
	w := host.OpenWindow(schema.WindowNormal)
	openTab(t, host, w.ID, "B", true)
	engine := newTestEngine(t, testConfig(), host, store, nil)

	engine.HandleEvent(context.Background(), schema.HostEvent{Type: schema.EventStartup})
	engine.Wait()
	created := host.Created()
	if len(created) != 1 || created[0].URL != "A" || !created[0].Scope.IsDefault() {
		t.Fatalf("expected A restored in default scope, got %+v", created)
	}
}

func TestEngineStartupRestoreCanBeDisabled(t *testing.T) {
	host := memhost.New(nil)
	store := memhost.NewStore()
	seedPinned(t, store, "A")
	host.OpenWindow(schema.WindowNormal)
	cfg := testConfig()
	cfg.RestoreOnStartup = false
	engine := newTestEngine(t, cfg, host, store, nil)

	engine.HandleEvent(context.Background(), schema.HostEvent{Type: schema.EventStartup})
	engine.Wait()
	if len(host.Created()) != 0 {
		t.Fatalf("expected no startup restore, got %+v", host.Created())
	}
}

func TestEngineInstalledSeedsStore(t *testing.T) {
	host := memhost.New(nil)
	store := memhost.NewStore()
	w := host.OpenWindow(schema.WindowNormal)
	openTab(t, host, w.ID, "A", true)
	engine := newTestEngine(t, testConfig(), host, store, nil)

	engine.HandleEvent(context.Background(), schema.HostEvent{Type: schema.EventInstalled})
	engine.Wait()
	stored, ok := storedPinned(t, store)
	if !ok || !equalURLs(stored, []string{"A"}) {
		t.Fatalf("expected store seeded with A, got %v (ok=%v)", stored, ok)
	}
	if len(host.Created()) != 0 {
		t.Fatalf("expected install not to restore")
	}
}

func TestEngineIgnoresIrrelevantUpdates(t *testing.T) {
	host := memhost.New(nil)
	store := memhost.NewStore()
	w := host.OpenWindow(schema.WindowNormal)
	tab := openTab(t, host, w.ID, "A", false)
	engine := newTestEngine(t, testConfig(), host, store, nil)

	engine.HandleEvent(context.Background(), schema.HostEvent{Type: schema.EventTabUpdated, TabID: tab.ID, Change: schema.TabChange{URL: "B"}, Tab: &tab})
	engine.HandleEvent(context.Background(), schema.HostEvent{Type: schema.EventTabCreated, TabID: tab.ID, Tab: &tab})
	engine.Wait()
	if _, ok := storedPinned(t, store); ok {
		t.Fatalf("expected no snapshot for unpinned tab activity")
	}
}

func TestEngineOnChangeAfterRecord(t *testing.T) {
	host := memhost.New(nil)
	store := memhost.NewStore()
	host.OpenWindow(schema.WindowNormal)
	var mu sync.Mutex
	changes := 0
	engine, err := NewEngine(testConfig(), ServiceDeps{
		Host:  host,
		Store: store,
		OnChange: func() {
			mu.Lock()
			changes++
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.HandleEvent(context.Background(), schema.HostEvent{Type: schema.EventTabRemoved, TabID: 9})
	engine.Wait()
	mu.Lock()
	defer mu.Unlock()
	if changes != 1 {
		t.Fatalf("expected one change notification, got %d", changes)
	}
}

func TestEngineRunTracksLiveHost(t *testing.T) {
	bus := eventbus.New(nil)
	events, cancel := bus.Subscribe()
	defer cancel()
	host := memhost.New(bus)
	store := memhost.NewStore()
	engine := newTestEngine(t, testConfig(), host, store, nil)

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx, events) }()

	w := host.OpenWindow(schema.WindowNormal)
	a := openTab(t, host, w.ID, "A", false)
	if _, err := host.SetPinned(a.ID, true); err != nil {
		t.Fatalf("pin: %v", err)
	}
	waitForStored(t, store, []string{"A"})
	openTab(t, host, w.ID, "B", true)
	waitForStored(t, store, []string{"A", "B"})

	if _, err := host.Navigate(a.ID, "A2"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	waitForStored(t, store, []string{"A2", "B"})

	if err := host.CloseTab(a.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitForStored(t, store, []string{"B"})

	stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("engine did not stop")
	}
}

func TestEngineRunStopsWhenChannelCloses(t *testing.T) {
	host := memhost.New(nil)
	engine := newTestEngine(t, testConfig(), host, memhost.NewStore(), nil)
	events := make(chan schema.HostEvent)
	close(events)
	if err := engine.Run(context.Background(), events); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestNewEngineRejectsNegativeDelay(t *testing.T) {
	cfg := testConfig()
	cfg.RestoreDelay = -time.Second
	if _, err := NewEngine(cfg, ServiceDeps{Host: memhost.New(nil), Store: memhost.NewStore()}); err == nil {
		t.Fatalf("expected error for negative delay")
	}
}

func waitForStored(t *testing.T, store Store, want []string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last []string
	for time.Now().Before(deadline) {
		if got, ok := storedPinned(t, store); ok {
			last = got
			if equalURLs(got, want) {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for stored %v (last=%v)", want, last)
}
