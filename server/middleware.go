package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/giygas/mini-emr/config"
	"github.com/giygas/mini-emr/logging"
	"github.com/giygas/mini-emr/metrics"
	"github.com/juju/ratelimit"
)

const (
	bucketRate     = 3
	bucketCapacity = 1000
)

// RealIPMiddleware strips the port from RemoteAddr. When trustProxy is set it
// uses the first X-Forwarded-For address instead; otherwise the header is
// client-controlled and ignored.
func RealIPMiddleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if xff := r.Header.Get("X-Forwarded-For"); trustProxy && xff != "" {
				if idx := strings.Index(xff, ","); idx != -1 {
					xff = xff[:idx]
				}
				r.RemoteAddr = strings.TrimSpace(xff)
			} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				r.RemoteAddr = host
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BlockDirectAccessMiddleware rejects requests without proxy headers unless
// they come from localhost. It is a no-op when requireProxy is false.
func BlockDirectAccessMiddleware(requireProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !requireProxy {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Real-IP") != "" || r.Header.Get("X-Forwarded-For") != "" {
				next.ServeHTTP(w, r)
				return
			}

			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if host == "127.0.0.1" || host == "::1" || host == "localhost" {
				next.ServeHTTP(w, r)
				return
			}

			logging.Warn("Direct access blocked", "remote_addr", r.RemoteAddr, "user_agent", r.UserAgent())
			http.Error(w, "Direct access not allowed", http.StatusForbidden)
		})
	}
}

// RequestSizeMiddleware rejects oversized bodies and headers and caps body reads
func RequestSizeMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > cfg.MaxRequestBody {
				logging.Warn("Request body too large",
					"content_length", r.ContentLength,
					"max_allowed", cfg.MaxRequestBody,
					"remote_addr", r.RemoteAddr)
				respondWithJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
					"error": fmt.Sprintf("Request body too large. Maximum allowed size is %d bytes", cfg.MaxRequestBody),
				})
				return
			}

			headerSize := int64(0)
			for key, values := range r.Header {
				headerSize += int64(len(key))
				for _, value := range values {
					headerSize += int64(len(value))
				}
			}
			if headerSize > cfg.MaxHeaderSize {
				logging.Warn("Request headers too large",
					"header_size", headerSize,
					"max_allowed", cfg.MaxHeaderSize,
					"remote_addr", r.RemoteAddr)
				respondWithJSON(w, http.StatusRequestHeaderFieldsTooLarge, map[string]string{
					"error": fmt.Sprintf("Request headers too large. Maximum allowed size is %d bytes", cfg.MaxHeaderSize),
				})
				return
			}

			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxRequestBody)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter keeps one token bucket per client address
type RateLimiter struct {
	clients map[string]*ratelimit.Bucket
	mu      sync.RWMutex
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*ratelimit.Bucket),
	}
}

func (rl *RateLimiter) getBucket(clientIP string) *ratelimit.Bucket {
	rl.mu.RLock()
	bucket, exists := rl.clients[clientIP]
	rl.mu.RUnlock()
	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if bucket, exists = rl.clients[clientIP]; !exists {
		bucket = ratelimit.NewBucketWithRate(bucketRate, bucketCapacity)
		rl.clients[clientIP] = bucket
		metrics.RateLimiterBuckets.Set(float64(len(rl.clients)))
	}
	return bucket
}

// sweep drops buckets that have refilled completely and returns how many remain
func (rl *RateLimiter) sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, bucket := range rl.clients {
		if bucket.Available() == bucket.Capacity() {
			delete(rl.clients, ip)
		}
	}
	metrics.RateLimiterBuckets.Set(float64(len(rl.clients)))
	return len(rl.clients)
}

// Cleanup sweeps idle buckets every interval until ctx is done
func (rl *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// getTokenCost prices a request. Static pages are cheap, login is expensive.
func getTokenCost(r *http.Request) int64 {
	path := r.URL.Path

	switch path {
	case "/", "/favicon.ico", "/metrics":
		return 0
	case "/health", "/api/ping", "/api/catalog/selection":
		return 2
	case "/api/login":
		return 50
	case "/api/catalog", "/api/patients":
		return 10
	}

	switch {
	case strings.HasPrefix(path, "/admin/") && r.Method == http.MethodPost:
		return 20
	case path == "/portal" || strings.HasPrefix(path, "/portal/"):
		return 10
	}

	return 5
}

// Middleware rejects clients that ran out of tokens with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bucket := rl.getBucket(r.RemoteAddr)
		tokenCost := getTokenCost(r)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(bucketCapacity))
		w.Header().Set("X-RateLimit-Rate", strconv.Itoa(bucketRate))

		if bucket.TakeAvailable(tokenCost) < tokenCost {
			logging.Warn("Rate limit exceeded", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "60")
			respondWithJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":   http.StatusText(http.StatusTooManyRequests),
				"message": "Rate limit exceeded. Please try again later.",
				"code":    http.StatusTooManyRequests,
			})
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(bucket.Available(), 10))
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logging.Error("Failed to encode JSON response", "error", err)
		}
	}
}
