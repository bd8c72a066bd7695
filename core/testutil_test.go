package core

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"pkt.systems/pinkeep/internal/memhost"
	"pkt.systems/pinkeep/schema"
	"pkt.systems/pslog"
)

const testKey = schema.DefaultStorageKey

func testConfig() schema.ServiceConfig {
	cfg := schema.DefaultServiceConfig()
	cfg.RestoreDelay = 0
	return cfg
}

func seedPinned(t *testing.T, store Store, urls ...string) {
	t.Helper()
	data, err := json.Marshal(urls)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	if err := store.Set(context.Background(), testKey, data); err != nil {
		t.Fatalf("seed store: %v", err)
	}
}

func storedPinned(t *testing.T, store Store) ([]string, bool) {
	t.Helper()
	data, ok, err := store.Get(context.Background(), testKey)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	if !ok {
		return nil, false
	}
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		t.Fatalf("decode store: %v", err)
	}
	return urls, true
}

func equalURLs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func openTab(t *testing.T, host *memhost.Host, id schema.WindowID, url string, pinned bool) schema.Tab {
	t.Helper()
	tab, err := host.OpenTab(id, url, pinned)
	if err != nil {
		t.Fatalf("open tab %q: %v", url, err)
	}
	return tab
}

func createdURLs(reqs []schema.CreateTabRequest) []string {
	out := make([]string, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, req.URL)
	}
	return out
}

// sequenceHost answers successive pinned queries with successive states.
type sequenceHost struct {
	mu     sync.Mutex
	states [][]schema.Tab
	calls  int
}

func (h *sequenceHost) QueryTabs(_ context.Context, _ schema.TabQuery) ([]schema.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := h.calls
	if idx >= len(h.states) {
		idx = len(h.states) - 1
	}
	h.calls++
	return append([]schema.Tab(nil), h.states[idx]...), nil
}

func (h *sequenceHost) CreateTab(_ context.Context, req schema.CreateTabRequest) (schema.Tab, error) {
	return schema.Tab{URL: req.URL, Pinned: req.Pinned}, nil
}

func (h *sequenceHost) UpdateTab(_ context.Context, req schema.UpdateTabRequest) (schema.Tab, error) {
	return schema.Tab{ID: req.TabID, Pinned: req.Pinned}, nil
}

// gatedStore holds the first Set until release is closed.
type gatedStore struct {
	*memhost.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		Store:   memhost.NewStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *gatedStore) Set(ctx context.Context, key string, value []byte) error {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.Store.Set(ctx, key, value)
}

type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *logCapture) entries(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, line := range bytes.Split(c.buf.Bytes(), []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		entry := map[string]any{}
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("parse log entry: %v", err)
		}
		out = append(out, entry)
	}
	return out
}

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.DebugLevel,
		VerboseFields: true,
	})
}
