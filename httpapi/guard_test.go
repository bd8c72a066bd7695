package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"pkt.systems/pinkeep/core"
	"pkt.systems/pinkeep/internal/memhost"
	"pkt.systems/pinkeep/schema"
)

const guardAddr = "127.0.0.1:27487"

func newGuardedHandler(t *testing.T) (http.Handler, *memhost.Host, *memhost.Store) {
	t.Helper()
	host := memhost.New(nil)
	store := memhost.NewStore()
	editor, err := core.NewListEditor(schema.DefaultServiceConfig(), core.ServiceDeps{Host: host, Store: store})
	if err != nil {
		t.Fatalf("new editor: %v", err)
	}
	w := host.OpenWindow(schema.WindowNormal)
	if _, err := host.OpenTab(w.ID, "https://active.example/", false); err != nil {
		t.Fatalf("open tab: %v", err)
	}
	return NewServer(Config{Addr: guardAddr}, editor, nil).Handler(), host, store
}

func TestGuardRejectsForeignRequests(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
		host   string
		origin string
		header bool
	}{
		{"foreign origin add", http.MethodPost, "/api/pins/current", guardAddr, "https://evil.example", true},
		{"foreign origin delete", http.MethodDelete, "/api/pins/0", guardAddr, "https://evil.example", true},
		{"simple post without header", http.MethodPost, "/api/pins/current", guardAddr, "", false},
		{"same origin without header", http.MethodPost, "/api/pins/current", guardAddr, "http://" + guardAddr, false},
		{"rebound host list", http.MethodGet, "/api/pins", "evil.example:27487", "", false},
		{"rebound host page", http.MethodGet, "/", "evil.example", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, host, store := newGuardedHandler(t)
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Host = tc.host
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.header {
				req.Header.Set(RequestHeader, "1")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
			}
			if len(host.Updated()) != 0 {
				t.Fatalf("rejected request reached the browser: %+v", host.Updated())
			}
			if _, ok, _ := store.Get(context.Background(), schema.DefaultStorageKey); ok {
				t.Fatalf("rejected request wrote the store")
			}
		})
	}
}

func TestGuardAllowsLocalRequests(t *testing.T) {
	cases := []struct {
		name   string
		host   string
		origin string
	}{
		{"page fetch", guardAddr, "http://" + guardAddr},
		{"cli without origin", guardAddr, ""},
		{"localhost name", "localhost:27487", "http://localhost:27487"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, host, _ := newGuardedHandler(t)
			req := httptest.NewRequest(http.MethodPost, "/api/pins/current", nil)
			req.Host = tc.host
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			req.Header.Set(RequestHeader, "1")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			var body pinsResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if strings.Join(body.URLs, ",") != "https://active.example/" {
				t.Fatalf("unexpected urls %v", body.URLs)
			}
			if len(host.Updated()) != 1 {
				t.Fatalf("expected one pin update, got %+v", host.Updated())
			}
		})
	}
}

func TestGuardReadsNeedNoHeader(t *testing.T) {
	handler, _, _ := newGuardedHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/pins", nil)
	req.Host = guardAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListenHosts(t *testing.T) {
	cases := []struct {
		addr string
		want []string
	}{
		{":27487", []string{"127.0.0.1:27487", "[::1]:27487", "localhost:27487"}},
		{"127.0.0.1:80", []string{"127.0.0.1:80", "[::1]:80", "localhost:80"}},
		{"pins.lan:9000", []string{"pins.lan:9000"}},
	}
	for _, tc := range cases {
		got := listenHosts(tc.addr)
		sort.Strings(got)
		if strings.Join(got, ",") != strings.Join(tc.want, ",") {
			t.Fatalf("listenHosts(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestGuardAcceptsBaseURLOrigin(t *testing.T) {
	g := newRequestGuard(Config{Addr: guardAddr, BaseURL: "https://pins.example.com"})
	req := httptest.NewRequest(http.MethodDelete, "/api/pins/0", nil)
	req.Host = "pins.example.com"
	req.Header.Set("Origin", "https://pins.example.com")
	req.Header.Set(RequestHeader, "1")
	if err := g.check(req); err != nil {
		t.Fatalf("expected base url origin to pass: %v", err)
	}
}
