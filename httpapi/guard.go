package httpapi

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"pkt.systems/pslog"
)

// RequestHeader must be present on every request that changes the pinned
// set. A cross-origin page cannot add it without a preflight, which the
// server never answers.
const RequestHeader = "X-Pinkeep-Request"

// requestGuard keeps other websites away from the loopback UI. Requests
// must name a Host the server listens as, and state-changing requests must
// be same-origin and carry RequestHeader.
type requestGuard struct {
	// hosts is empty when no listen address is configured; any Host passes.
	hosts   map[string]struct{}
	origins map[string]struct{}
}

func newRequestGuard(cfg Config) requestGuard {
	g := requestGuard{
		hosts:   make(map[string]struct{}),
		origins: make(map[string]struct{}),
	}
	if addr := strings.TrimSpace(cfg.Addr); addr != "" {
		for _, h := range listenHosts(addr) {
			g.hosts[h] = struct{}{}
		}
	}
	if raw := strings.TrimSpace(cfg.BaseURL); raw != "" {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			g.hosts[strings.ToLower(u.Host)] = struct{}{}
			g.origins[strings.ToLower(u.Scheme+"://"+u.Host)] = struct{}{}
		}
	}
	return g
}

// listenHosts lists the Host header values a browser sends for addr. A
// wildcard or loopback bind answers to every loopback name.
func listenHosts(addr string) []string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return []string{strings.ToLower(addr)}
	}
	host = strings.ToLower(host)
	names := []string{host}
	switch host {
	case "", "0.0.0.0", "::", "127.0.0.1", "::1", "localhost":
		names = []string{"127.0.0.1", "localhost", "::1"}
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, net.JoinHostPort(name, port))
	}
	return out
}

func (g requestGuard) check(r *http.Request) error {
	if len(g.hosts) > 0 {
		if _, ok := g.hosts[strings.ToLower(r.Host)]; !ok {
			return errors.New("unexpected host")
		}
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return nil
	}
	if origin := r.Header.Get("Origin"); origin != "" && !g.sameOrigin(origin, r.Host) {
		return errors.New("cross-origin request")
	}
	if r.Header.Get(RequestHeader) == "" {
		return errors.New("missing " + RequestHeader + " header")
	}
	return nil
}

func (g requestGuard) sameOrigin(origin, host string) bool {
	if _, ok := g.origins[strings.ToLower(origin)]; ok {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

func (g requestGuard) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.check(r); err != nil {
			pslog.Ctx(r.Context()).Warn("http request rejected",
				"method", r.Method,
				"host", r.Host,
				"origin", r.Header.Get("Origin"),
				"err", err,
			)
			writeError(w, http.StatusForbidden, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
