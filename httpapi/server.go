package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/pinkeep/schema"
	"pkt.systems/pslog"
)

// PinEditor is the list editing surface the UI drives.
type PinEditor interface {
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, index int) ([]string, error)
	AddCurrentTab(ctx context.Context) ([]string, error)
}

// Server serves the list editor UI and its JSON API.
type Server struct {
	cfg      Config
	editor   PinEditor
	hub      *Hub
	basePath string
	baseHref string
	guard    requestGuard
}

// NewServer constructs an HTTP server. Stream clients learn about changes
// through NotifyChanged, which the owner wires to the editor's change hook.
func NewServer(cfg Config, editor PinEditor, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub(nil)
	}
	return &Server{
		cfg:      cfg,
		editor:   editor,
		hub:      hub,
		basePath: cleanBasePath(cfg.BasePath),
		baseHref: pageBaseHref(cfg.BaseURL, cfg.BasePath),
		guard:    newRequestGuard(cfg),
	}
}

// Hub returns the stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// NotifyChanged re-reads the pinned set and pushes it to stream clients.
func (s *Server) NotifyChanged(ctx context.Context) {
	urls, err := s.editor.List(ctx)
	if err != nil {
		pslog.Ctx(ctx).Warn("http notify list failed", "err", err)
		return
	}
	s.hub.PublishPins(urls)
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.FS(staticFS))))

	mux.HandleFunc("GET /api/pins", s.handleList)
	mux.HandleFunc("DELETE /api/pins/{index}", s.handleDelete)
	mux.HandleFunc("POST /api/pins/current", s.handleAddCurrent)
	mux.HandleFunc("GET /api/stream", s.handleStream)

	return mountAt(s.basePath, withRequestLogging(s.guard.wrap(mux)))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := renderIndex(s.baseHref)
	if err != nil {
		pslog.Ctx(r.Context()).Error("http index render failed", "err", err)
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, "index.html", page.modTime, bytes.NewReader(page.body))
}

type pinsResponse struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	urls, err := s.editor.List(r.Context())
	if err != nil {
		pslog.Ctx(r.Context()).Warn("http list failed", "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, pinsResponse{URLs: nonNil(urls)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	log := pslog.Ctx(r.Context())
	raw := r.PathValue("index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid index %q", raw))
		return
	}
	urls, err := s.editor.Delete(r.Context(), index)
	if err != nil {
		log.Warn("http delete failed", "index", index, "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	log.Info("http delete ok", "index", index, "remaining", len(urls))
	writeJSON(w, http.StatusOK, pinsResponse{URLs: nonNil(urls)})
}

func (s *Server) handleAddCurrent(w http.ResponseWriter, r *http.Request) {
	log := pslog.Ctx(r.Context())
	urls, err := s.editor.AddCurrentTab(r.Context())
	if err != nil {
		log.Warn("http add current failed", "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	log.Info("http add current ok", "count", len(urls))
	writeJSON(w, http.StatusOK, pinsResponse{URLs: nonNil(urls)})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := pslog.Ctx(r.Context())

	// Subscribe before reading the snapshot so no change slips between them.
	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	urls, err := s.editor.List(r.Context())
	if err != nil {
		log.Warn("http stream snapshot failed", "err", err)
		writeError(w, statusFor(err), err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	_ = writeSSEvent(w, StreamEvent{
		Seq:       s.hub.Seq(),
		Type:      EventSnapshot,
		URLs:      nonNil(urls),
		Timestamp: time.Now(),
	})
	flusher.Flush()

	log.Info("http stream opened", "urls", len(urls))
	for {
		select {
		case <-r.Context().Done():
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, schema.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrNoActiveTab):
		return http.StatusConflict
	case errors.Is(err, schema.ErrHostUnavailable),
		errors.Is(err, schema.ErrTabNotFound),
		errors.Is(err, schema.ErrWindowNotFound):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func nonNil(urls []string) []string {
	if urls == nil {
		return []string{}
	}
	return urls
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, strings.TrimSpace(string(data)))
	return nil
}
