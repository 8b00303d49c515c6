package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func newTestLimiter(config Config) *Limiter {
	l := NewLimiter(config)
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l.now = clock.now
	l.lastCleanup = clock.t
	return l
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.False(t, config.Enabled)
	assert.Equal(t, 100.0, config.RequestsPerSecond)
	assert.Equal(t, 200, config.Burst)
	assert.Equal(t, 10000, config.MaxKeys)
	assert.Equal(t, 10*time.Minute, config.IdleTimeout)
}

func TestLimiter_Allow(t *testing.T) {
	t.Run("disabled always allows", func(t *testing.T) {
		l := newTestLimiter(Config{RequestsPerSecond: 1, Burst: 1, MaxKeys: 10, IdleTimeout: time.Minute})

		for i := 0; i < 5; i++ {
			assert.True(t, l.Allow("client"))
		}
		assert.Equal(t, 0, l.Keys())
	})

	t.Run("burst is enforced per key", func(t *testing.T) {
		l := newTestLimiter(Config{Enabled: true, RequestsPerSecond: 0.001, Burst: 2, MaxKeys: 10, IdleTimeout: time.Hour})

		assert.True(t, l.Allow("a"))
		assert.True(t, l.Allow("a"))
		assert.False(t, l.Allow("a"))

		assert.True(t, l.Allow("b"))
		assert.Equal(t, 2, l.Keys())
	})
}

func TestLimiter_Cleanup(t *testing.T) {
	t.Run("max keys evicts least recently used", func(t *testing.T) {
		l := newTestLimiter(Config{Enabled: true, RequestsPerSecond: 10, Burst: 10, MaxKeys: 3, IdleTimeout: time.Hour})

		for i := 0; i < 5; i++ {
			l.Allow(fmt.Sprintf("client-%d", i))
		}

		assert.Equal(t, 3, l.Keys())
		l.mu.Lock()
		_, newest := l.limiters["client-4"]
		_, oldest := l.limiters["client-0"]
		l.mu.Unlock()
		assert.True(t, newest)
		assert.False(t, oldest)
	})

	t.Run("idle buckets are dropped", func(t *testing.T) {
		l := newTestLimiter(Config{Enabled: true, RequestsPerSecond: 10, Burst: 10, MaxKeys: 100, IdleTimeout: 10 * time.Millisecond})

		l.Allow("idle")
		for i := 0; i < 20; i++ {
			l.Allow("busy")
		}

		l.mu.Lock()
		_, idle := l.limiters["idle"]
		l.mu.Unlock()
		assert.False(t, idle)
	})
}

func TestLimiter_HTTPMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	t.Run("disabled rate limiting", func(t *testing.T) {
		l := newTestLimiter(Config{RequestsPerSecond: 1, Burst: 1, MaxKeys: 10, IdleTimeout: time.Minute})
		limited := l.HTTPMiddleware(IPBasedKey)(handler)

		for i := 0; i < 3; i++ {
			req := httptest.NewRequest("GET", "/api/stats", nil)
			rr := httptest.NewRecorder()
			limited.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusOK, rr.Code)
		}
	})

	t.Run("empty key allows request", func(t *testing.T) {
		l := newTestLimiter(Config{Enabled: true, RequestsPerSecond: 0.001, Burst: 1, MaxKeys: 10, IdleTimeout: time.Minute})
		limited := l.HTTPMiddleware(func(*http.Request) string { return "" })(handler)

		for i := 0; i < 3; i++ {
			rr := httptest.NewRecorder()
			limited.ServeHTTP(rr, httptest.NewRequest("GET", "/api/stats", nil))
			assert.Equal(t, http.StatusOK, rr.Code)
		}
	})

	t.Run("over the limit returns 429", func(t *testing.T) {
		l := newTestLimiter(Config{Enabled: true, RequestsPerSecond: 0.001, Burst: 1, MaxKeys: 10, IdleTimeout: time.Minute})
		limited := l.HTTPMiddleware(IPBasedKey)(handler)

		req := httptest.NewRequest("GET", "/api/stats", nil)
		req.RemoteAddr = "192.168.1.1:12345"

		rr := httptest.NewRecorder()
		limited.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "0.001", rr.Header().Get("X-RateLimit-Limit"))

		rr = httptest.NewRecorder()
		limited.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	})
}

func TestIPBasedKey(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{"remote address", nil, "192.168.1.1:12345", "ip:192.168.1.1"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "192.168.1.1:12345", "ip:10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.9"}, "192.168.1.1:12345", "ip:10.0.0.9"},
		{"remote without port", nil, "192.168.1.7", "ip:192.168.1.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, IPBasedKey(req))
		})
	}
}
