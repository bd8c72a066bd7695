package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"pkt.systems/pslog"
)

// statusWriter remembers what a handler wrote so the access line can
// report it.
type statusWriter struct {
	http.ResponseWriter
	code    int
	written int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

// Flush keeps the event stream working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}

// withRequestLogging tags each request with a req_id on the context logger
// and logs one line when the handler returns.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		logger := pslog.Ctx(r.Context()).With("req_id", uuid.NewString())
		r = r.WithContext(pslog.ContextWithLogger(r.Context(), logger))
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status(),
			"bytes", sw.written,
			"remote", r.RemoteAddr,
			"elapsed_ms", time.Since(began).Milliseconds(),
		)
	})
}
