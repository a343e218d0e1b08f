package logging

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestRequestLoggerSkipsQuietPaths(t *testing.T) {
	var out strings.Builder
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/metrics", "/static/app.css"} {
		out.Reset()
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

		if out.Len() != 0 {
			t.Errorf("expected no log line for %s, got %q", path, out.String())
		}
	}
}

func TestRequestLoggerFields(t *testing.T) {
	var out strings.Builder
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/patients?x=1", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-42"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	line := out.String()
	for _, want := range []string{"level=INFO", "request_id=req-42", "method=POST", "path=/admin/patients", "query=x=1", "status=201", "bytes=5"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %q: %s", want, line)
		}
	}
}

func TestRequestLoggerLevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusNotFound, "level=WARN"},
		{http.StatusUnprocessableEntity, "level=WARN"},
		{http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tt := range tests {
		var out strings.Builder
		logger := slog.New(slog.NewTextHandler(&out, nil))
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin", nil))

		if !strings.Contains(out.String(), tt.level) {
			t.Errorf("status %d: expected %s, got %q", tt.status, tt.level, out.String())
		}
		if !strings.Contains(out.String(), "request_id=unknown") {
			t.Errorf("missing request id fallback: %q", out.String())
		}
	}
}
