package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastsearch-cache/internal/common/logging"
)

type recordedOperation struct {
	operation string
	success   bool
}

type recorder struct {
	mu  sync.Mutex
	ops []recordedOperation
}

func (r *recorder) RecordOperation(operation string, _ time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOperation{operation, success})
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("generates an id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

		id := rr.Header().Get(RequestIDHeader)
		assert.Contains(t, id, "req-")
		assert.Empty(t, seen)
	})

	t.Run("keeps the caller id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
		assert.Equal(t, "abc-123", seen)
	})
}

func TestLoggingMiddleware_CapturesStatus(t *testing.T) {
	var wrapped *responseWriter
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped, _ = w.(*responseWriter)
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/cache/key?x=1", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	require.NotNil(t, wrapped)
	assert.Equal(t, http.StatusTeapot, wrapped.statusCode)
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &recorder{}
	router := mux.NewRouter()
	router.Use(MetricsMiddleware(rec))
	router.HandleFunc("/ok/{key}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Name("cache_get")
	router.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}).Name("cache_clear")
	router.HandleFunc("/anonymous", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/ok/a", "/fail", "/anonymous"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	assert.Equal(t, []recordedOperation{
		{"cache_get", true},
		{"cache_clear", false},
		{"unknown", true},
	}, rec.ops)
}

func TestMiddlewareChain_SharesWriter(t *testing.T) {
	rec := &recorder{}
	router := mux.NewRouter()
	router.Use(RequestIDMiddleware, LoggingMiddleware, MetricsMiddleware(rec))
	router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, logging.WithContext(r.Context()))
		http.Error(w, "boom", http.StatusInternalServerError)
	}).Name("boom")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
	assert.Equal(t, []recordedOperation{{"boom", false}}, rec.ops)
}
