package integration_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/pinkeep"
	"pkt.systems/pinkeep/httpapi"
	"pkt.systems/pinkeep/internal/memhost"
	"pkt.systems/pinkeep/internal/nativemsg"
	"pkt.systems/pinkeep/internal/persist"
	"pkt.systems/pinkeep/schema"
	"pkt.systems/pslog"
)

// extension plays the browser side of the native port. Tab state lives in an
// in-memory host whose lifecycle events are forwarded to the daemon.
type extension struct {
	t    *testing.T
	host *memhost.Host
	in   io.Reader
	out  *io.PipeWriter

	wmu      sync.Mutex
	mu       sync.Mutex
	nextID   atomic.Uint64
	pending  map[string]chan nativemsg.Envelope
	lastCall atomic.Int64
}

func newExtension(t *testing.T, in io.Reader, out *io.PipeWriter) *extension {
	ext := &extension{t: t, in: in, out: out, pending: make(map[string]chan nativemsg.Envelope)}
	ext.host = memhost.New(ext)
	return ext
}

// Publish forwards a host lifecycle event to the daemon.
func (e *extension) Publish(event schema.HostEvent) {
	ev := event
	// Sends fail once the port is closed; the daemon is gone by then.
	_ = e.send(nativemsg.Envelope{Kind: nativemsg.KindEvent, Event: &ev})
}

func (e *extension) serve() {
	for {
		payload, err := nativemsg.ReadMessage(e.in, nativemsg.MaxOutgoing)
		if err != nil {
			return
		}
		var env nativemsg.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			e.t.Errorf("extension decode: %v", err)
			return
		}
		switch env.Kind {
		case nativemsg.KindResponse:
			e.mu.Lock()
			ch := e.pending[env.ID]
			delete(e.pending, env.ID)
			e.mu.Unlock()
			if ch != nil {
				ch <- env
			}
		case nativemsg.KindRequest:
			e.lastCall.Store(time.Now().UnixNano())
			go e.reply(env)
		}
	}
}

func (e *extension) reply(req nativemsg.Envelope) {
	resp := nativemsg.Envelope{Kind: nativemsg.KindResponse, ID: req.ID}
	result, err := e.handle(req)
	if err != nil {
		resp.Error = &nativemsg.Error{Code: wireCode(err), Message: err.Error()}
	} else {
		resp.Result, _ = json.Marshal(result)
	}
	_ = e.send(resp)
}

type wireQuery struct {
	Pinned        *bool            `json:"pinned"`
	Active        *bool            `json:"active"`
	WindowID      *schema.WindowID `json:"windowId"`
	CurrentWindow bool             `json:"currentWindow"`
}

type wireCreate struct {
	WindowID *schema.WindowID `json:"windowId"`
	URL      string           `json:"url"`
	Pinned   bool             `json:"pinned"`
	Active   bool             `json:"active"`
}

type wireUpdate struct {
	TabID  schema.TabID `json:"tabId"`
	Pinned bool         `json:"pinned"`
}

func (e *extension) handle(req nativemsg.Envelope) (any, error) {
	ctx := context.Background()
	switch req.Method {
	case nativemsg.MethodTabsQuery:
		var p wireQuery
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		query := schema.TabQuery{Pinned: p.Pinned != nil && *p.Pinned, Active: p.Active != nil && *p.Active}
		if p.WindowID != nil {
			scope := schema.WindowScope(*p.WindowID)
			query.Scope = &scope
		} else if p.CurrentWindow {
			scope := schema.DefaultScope()
			query.Scope = &scope
		}
		return e.host.QueryTabs(ctx, query)
	case nativemsg.MethodTabsCreate:
		var p wireCreate
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		scope := schema.DefaultScope()
		if p.WindowID != nil {
			scope = schema.WindowScope(*p.WindowID)
		}
		return e.host.CreateTab(ctx, schema.CreateTabRequest{Scope: scope, URL: p.URL, Pinned: p.Pinned, Active: p.Active})
	case nativemsg.MethodTabsUpdate:
		var p wireUpdate
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		return e.host.UpdateTab(ctx, schema.UpdateTabRequest{TabID: p.TabID, Pinned: p.Pinned})
	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
}

func wireCode(err error) string {
	switch {
	case errors.Is(err, schema.ErrWindowNotFound):
		return nativemsg.CodeWindowNotFound
	case errors.Is(err, schema.ErrTabNotFound):
		return nativemsg.CodeTabNotFound
	default:
		return nativemsg.CodeInternal
	}
}

// call sends a request to the daemon and waits for its response.
func (e *extension) call(method string, params any, out any) error {
	id := "ext-" + strconv.FormatUint(e.nextID.Add(1), 10)
	ch := make(chan nativemsg.Envelope, 1)
	e.mu.Lock()
	e.pending[id] = ch
	e.mu.Unlock()
	req := nativemsg.Envelope{Kind: nativemsg.KindRequest, ID: id, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = data
	}
	if err := e.send(req); err != nil {
		return err
	}
	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if out != nil {
			return json.Unmarshal(resp.Result, out)
		}
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for %s response", method)
	}
}

func (e *extension) send(env nativemsg.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	e.wmu.Lock()
	defer e.wmu.Unlock()
	return nativemsg.WriteMessage(e.out, payload)
}

// hangUp closes the port as the browser does when the extension unloads.
func (e *extension) hangUp() {
	_ = e.out.Close()
}

type testDaemon struct {
	server   pinkeep.Server
	ext      *extension
	store    *persist.Store
	storeKey string
	baseURL  string
	cancel   context.CancelFunc
	done     chan struct{}
	exitErr  error
}

func newTestDaemon(t *testing.T, seed []string) *testDaemon {
	t.Helper()
	store, err := persist.NewStore(filepath.Join(t.TempDir(), "pins.json"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := schema.DefaultServiceConfig()
	cfg.RestoreDelay = 0
	if len(seed) > 0 {
		data, err := json.Marshal(seed)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.Set(context.Background(), cfg.StorageKey, data); err != nil {
			t.Fatal(err)
		}
	}

	toHostR, toHostW := io.Pipe()
	fromHostR, fromHostW := io.Pipe()
	ext := newExtension(t, fromHostR, toHostW)
	go ext.serve()

	addr := freeAddr(t)
	logger := pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true, MinLevel: pslog.InfoLevel})
	server, err := pinkeep.New(pinkeep.ServerConfig{
		Service: cfg,
		HTTP:    httpapi.Config{Addr: addr},
	}, pinkeep.ServerDeps{
		Store:  store,
		In:     toHostR,
		Out:    fromHostW,
		Logger: logger,
	}, pinkeep.WithEngine(), pinkeep.WithHTTP())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := server.Start(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	d := &testDaemon{
		server:   server,
		ext:      ext,
		store:    store,
		storeKey: cfg.StorageKey,
		baseURL:  "http://" + addr,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go func() {
		d.exitErr = server.Wait()
		close(d.done)
	}()
	t.Cleanup(func() {
		cancel()
		ext.hangUp()
		_ = fromHostR.Close()
		_, _ = d.exited(5 * time.Second)
	})
	waitForHTTP(t, d.baseURL+"/api/pins")
	return d
}

// settle waits until the daemon has stopped calling into the browser, so
// reactions to earlier events have finished.
func (d *testDaemon) settle(t *testing.T) {
	t.Helper()
	time.Sleep(100 * time.Millisecond)
	ok := eventually(3*time.Second, func() bool {
		return time.Since(time.Unix(0, d.ext.lastCall.Load())) > 250*time.Millisecond
	})
	if !ok {
		t.Fatalf("daemon kept calling the browser")
	}
}

// exited reports whether the daemon's Wait returned within timeout, and
// what it returned.
func (d *testDaemon) exited(timeout time.Duration) (bool, error) {
	select {
	case <-d.done:
		return true, d.exitErr
	case <-time.After(timeout):
		return false, nil
	}
}

func (d *testDaemon) savedPins(t *testing.T) []string {
	t.Helper()
	data, ok, err := d.store.Get(context.Background(), d.storeKey)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		return nil
	}
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		t.Fatal(err)
	}
	return urls
}

func (d *testDaemon) waitForSaved(t *testing.T, want []string) {
	t.Helper()
	var last []string
	ok := eventually(3*time.Second, func() bool {
		last = d.savedPins(t)
		return equalStrings(last, want)
	})
	if !ok {
		t.Fatalf("saved pins = %v, want %v", last, want)
	}
}

func (d *testDaemon) waitForPinnedIn(t *testing.T, window schema.WindowID, want []string) {
	t.Helper()
	var last []string
	ok := eventually(3*time.Second, func() bool {
		last = pinnedIn(d.ext.host.Tabs(), window)
		return equalStrings(last, want)
	})
	if !ok {
		t.Fatalf("window %d pinned = %v, want %v", window, last, want)
	}
}

func pinnedIn(tabs []schema.Tab, window schema.WindowID) []string {
	var out []string
	for _, tab := range tabs {
		if tab.WindowID == window && tab.Pinned {
			out = append(out, tab.URL)
		}
	}
	return out
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}

func waitForHTTP(t *testing.T, url string) {
	t.Helper()
	ok := eventually(5*time.Second, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})
	if !ok {
		t.Fatalf("http server at %s did not come up", url)
	}
}

func readJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode >= 300 {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatal(err)
	}
}

func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func equalStrings(a, b []string) bool {
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

func containsString(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}

func requireLong(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}
