package logging

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// statusRecorderPool reuses response wrappers across requests
var statusRecorderPool = sync.Pool{
	New: func() any {
		return &statusRecorder{status: http.StatusOK}
	},
}

// quietPaths are served without a request log line
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// RequestLogger logs one structured line per request. Static assets and
// probe endpoints are skipped. Server errors log at Error, client errors at Warn.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if quietPaths[r.URL.Path] || strings.HasPrefix(r.URL.Path, "/static/") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			rec := statusRecorderPool.Get().(*statusRecorder)
			rec.ResponseWriter = w
			rec.status = http.StatusOK
			rec.bytes = 0
			defer statusRecorderPool.Put(rec)

			next.ServeHTTP(rec, r)

			requestID := middleware.GetReqID(r.Context())
			if requestID == "" {
				requestID = "unknown"
			}

			attrs := []any{
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
			}
			if r.URL.RawQuery != "" {
				attrs = append(attrs, "query", r.URL.RawQuery)
			}
			attrs = append(attrs,
				"remote_addr", r.RemoteAddr,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)

			switch {
			case rec.status >= http.StatusInternalServerError:
				logger.ErrorContext(r.Context(), "HTTP request", attrs...)
			case rec.status >= http.StatusBadRequest:
				logger.WarnContext(r.Context(), "HTTP request", attrs...)
			default:
				logger.InfoContext(r.Context(), "HTTP request", attrs...)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(data []byte) (int, error) {
	n, err := w.ResponseWriter.Write(data)
	w.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
