package ratelimit_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/d9705996/clientportal/internal/ratelimit"
	"github.com/stretchr/testify/assert"
)

// countingLimiter allows the first n hits per key.
type countingLimiter struct {
	mu   sync.Mutex
	hits map[string]int
	err  error
}

func (c *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits[key]++
	return c.hits[key] <= limit, nil
}

func reject(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTooManyRequests) }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	l := &countingLimiter{hits: map[string]int{}}
	h := ratelimit.Middleware(l, "faq", 2, false, slog.New(slog.DiscardHandler), reject)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/faq", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "60", w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodPost, "/api/faq", nil)
	req.RemoteAddr = "198.51.100.1:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "other clients are unaffected")
}

func TestMiddleware_FailsOpen(t *testing.T) {
	l := &countingLimiter{err: errors.New("redis down")}
	h := ratelimit.Middleware(l, "contact", 1, false, slog.New(slog.DiscardHandler), reject)(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/contact", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNoop(t *testing.T) {
	ok, err := ratelimit.Noop{}.Allow(context.Background(), "k", 0, time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:1234"
	assert.Equal(t, "192.0.2.10", ratelimit.ClientIP(req, false))
	assert.Equal(t, "192.0.2.10", ratelimit.ClientIP(req, true))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "192.0.2.10", ratelimit.ClientIP(req, false), "header ignored without a trusted proxy")
	assert.Equal(t, "203.0.113.5", ratelimit.ClientIP(req, true))
}

func TestMiddleware_ForwardedForCannotDodgeLimit(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		want       []int
	}{
		{"direct", false, []int{200, 429, 429}},
		{"behind proxy", true, []int{200, 200, 200}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := &countingLimiter{hits: map[string]int{}}
			h := ratelimit.Middleware(l, "contact", 1, tc.trustProxy, slog.New(slog.DiscardHandler), reject)(okHandler())

			codes := make([]int, 0, 3)
			for _, forwarded := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
				req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
				req.RemoteAddr = "203.0.113.7:5555"
				req.Header.Set("X-Forwarded-For", forwarded)
				w := httptest.NewRecorder()
				h.ServeHTTP(w, req)
				codes = append(codes, w.Code)
			}
			assert.Equal(t, tc.want, codes)
		})
	}
}

func TestNewRedis_InvalidURL(t *testing.T) {
	_, err := ratelimit.NewRedis("not a url")
	assert.Error(t, err)
}
