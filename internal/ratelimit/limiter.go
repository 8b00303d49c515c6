// Package ratelimit throttles HTTP clients of the cache API with one token
// bucket per client key.
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fastsearch-cache/internal/common/logging"
)

// Config controls the per-client buckets.
type Config struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gt=0"`
	Burst             int           `yaml:"burst" validate:"gt=0"`
	MaxKeys           int           `yaml:"max_keys" validate:"gt=0"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" validate:"gt=0"`
}

// DefaultConfig returns a disabled limiter allowing 100 rps per client.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 100,
		Burst:             200,
		MaxKeys:           10000,
		IdleTimeout:       10 * time.Minute,
	}
}

type entry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Limiter hands out one rate.Limiter per key.
type Limiter struct {
	mu          sync.Mutex
	config      Config
	limiters    map[string]*entry
	lastCleanup time.Time
	now         func() time.Time
}

func NewLimiter(config Config) *Limiter {
	return &Limiter{
		config:      config,
		limiters:    make(map[string]*entry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow reports whether key may make one more request now.
func (l *Limiter) Allow(key string) bool {
	if !l.config.Enabled {
		return true
	}
	return l.limiterFor(key).AllowN(l.now(), 1)
}

// Keys returns the number of tracked clients.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) > l.config.IdleTimeout {
		l.cleanup(now)
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst), lastUsed: now}
		l.limiters[key] = e
		if len(l.limiters) > l.config.MaxKeys {
			l.cleanup(now)
		}
	}
	e.lastUsed = now
	return e.limiter
}

// cleanup drops idle buckets, then the least recently used ones while
// still over MaxKeys. Callers hold l.mu.
func (l *Limiter) cleanup(now time.Time) {
	l.lastCleanup = now
	for key, e := range l.limiters {
		if now.Sub(e.lastUsed) > l.config.IdleTimeout {
			delete(l.limiters, key)
		}
	}
	if len(l.limiters) <= l.config.MaxKeys {
		return
	}

	keys := make([]string, 0, len(l.limiters))
	for key := range l.limiters {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return l.limiters[keys[i]].lastUsed.Before(l.limiters[keys[j]].lastUsed)
	})
	for _, key := range keys[:len(keys)-l.config.MaxKeys] {
		delete(l.limiters, key)
	}
}

// HTTPMiddleware rejects requests over the limit with 429.
func (l *Limiter) HTTPMiddleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%g", l.config.RequestsPerSecond))
			if !l.Allow(key) {
				logging.Warn("Rate limit exceeded", logging.Field{Key: "client", Value: key})
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPBasedKey keys requests by client address, honouring proxy headers.
func IPBasedKey(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip == "" {
		ip = r.Header.Get("X-Real-IP")
	}
	if ip == "" {
		ip = r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
	}
	return "ip:" + ip
}
