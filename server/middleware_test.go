package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/giygas/mini-emr/config"
)

func TestGetTokenCost(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		path         string
		expectedCost int64
	}{
		{"landing page", http.MethodGet, "/", 0},
		{"metrics", http.MethodGet, "/metrics", 0},
		{"health", http.MethodGet, "/health", 2},
		{"dosage picker", http.MethodGet, "/api/catalog/selection", 2},
		{"login", http.MethodPost, "/api/login", 50},
		{"catalog", http.MethodGet, "/api/catalog", 10},
		{"patients api", http.MethodGet, "/api/patients", 10},
		{"portal dashboard", http.MethodGet, "/portal", 10},
		{"portal patient", http.MethodGet, "/portal/3", 10},
		{"admin form post", http.MethodPost, "/admin/patients/3/appointments", 20},
		{"admin page", http.MethodGet, "/admin/patients/3", 5},
		{"admin home", http.MethodGet, "/admin", 5},
		{"unknown", http.MethodGet, "/unknown", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if got := getTokenCost(req); got != tt.expectedCost {
				t.Errorf("getTokenCost(%s %s) = %d, want %d", tt.method, tt.path, got, tt.expectedCost)
			}
		})
	}
}

func TestRealIPMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		xff        string
		remoteAddr string
		want       string
	}{
		{"single forwarded address", true, "203.0.113.1", "192.168.1.1:12345", "203.0.113.1"},
		{"forwarded chain keeps the client", true, "203.0.113.1, 10.0.0.1", "192.168.1.1:12345", "203.0.113.1"},
		{"no header strips the port", true, "", "192.168.1.1:12345", "192.168.1.1"},
		{"no header ipv6", true, "", "[::1]:8080", "::1"},
		{"header ignored without proxy", false, "203.0.113.1", "192.168.1.1:12345", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			var seen string
			RealIPMiddleware(tt.trustProxy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = r.RemoteAddr
			})).ServeHTTP(httptest.NewRecorder(), req)

			if seen != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", seen, tt.want)
			}
		})
	}
}

func TestBlockDirectAccessMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name         string
		requireProxy bool
		remoteAddr   string
		header       string
		code         int
	}{
		{"disabled lets everyone in", false, "198.51.100.7:5000", "", http.StatusOK},
		{"localhost ipv4", true, "127.0.0.1:5000", "", http.StatusOK},
		{"localhost ipv6", true, "[::1]:5000", "", http.StatusOK},
		{"proxied", true, "198.51.100.7:5000", "X-Forwarded-For", http.StatusOK},
		{"real ip header", true, "198.51.100.7:5000", "X-Real-IP", http.StatusOK},
		{"direct remote", true, "198.51.100.7:5000", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.header != "" {
				req.Header.Set(tt.header, "203.0.113.1")
			}
			rec := httptest.NewRecorder()
			BlockDirectAccessMiddleware(tt.requireProxy)(ok).ServeHTTP(rec, req)
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	cfg := &config.Config{MaxRequestBody: 64, MaxHeaderSize: 256}
	handler := RequestSizeMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	small := httptest.NewRequest(http.MethodPost, "/admin/patients", strings.NewReader("name=a"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, small)
	if rec.Code != http.StatusOK {
		t.Errorf("small body = %d, want 200", rec.Code)
	}

	large := httptest.NewRequest(http.MethodPost, "/admin/patients", strings.NewReader(strings.Repeat("x", 65)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, large)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("large body = %d, want 413", rec.Code)
	}

	headers := httptest.NewRequest(http.MethodGet, "/", nil)
	headers.Header.Set("X-Padding", strings.Repeat("y", 300))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, headers)
	if rec.Code != http.StatusRequestHeaderFieldsTooLarge {
		t.Errorf("large headers = %d, want 431", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter()
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	login := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// 1000 tokens at 50 per login
	for i := 0; i < 20; i++ {
		if code := login("203.0.113.1"); code != http.StatusOK {
			t.Fatalf("login %d = %d, want 200", i, code)
		}
	}
	if code := login("203.0.113.1"); code != http.StatusTooManyRequests {
		t.Errorf("21st login = %d, want 429", code)
	}
	if code := login("203.0.113.2"); code != http.StatusOK {
		t.Errorf("other client = %d, want its own bucket", code)
	}

	if remaining := rl.sweep(); remaining != 2 {
		t.Errorf("sweep kept %d buckets, want 2 drained ones", remaining)
	}
	rl.getBucket("203.0.113.3")
	if remaining := rl.sweep(); remaining != 2 {
		t.Errorf("sweep should drop the full bucket, kept %d", remaining)
	}
}
