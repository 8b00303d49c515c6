package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"fastsearch-cache/internal/cache"
	"fastsearch-cache/internal/common/logging"
)

// Cache entry handlers

type setRequest struct {
	Value json.RawMessage `json:"value"`
	TTL   *Duration       `json:"ttl,omitempty"`
	Tags  []string        `json:"tags,omitempty"`
}

type counterRequest struct {
	Step    *int64   `json:"step,omitempty"`
	Initial int64    `json:"initial,omitempty"`
	TTL     Duration `json:"ttl,omitempty"`
}

type invalidateRequest struct {
	Tags []string `json:"tags"`
}

// GetValue returns a cached value
// @Summary Get a cached value
// @Description Looks the key up level by level, promoting hits into faster levels
// @Tags cache
// @Produce json
// @Param key path string true "Cache key"
// @Success 200 {object} map[string]interface{} "Key and its JSON value"
// @Failure 404 {string} string "Key not found"
// @Router /api/cache/{key} [get]
func (h *Handlers) GetValue(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	ctx := logging.ContextWithCacheKey(r.Context(), key)

	value, ok := h.cache.GetBytes(ctx, key)
	if !ok {
		http.Error(w, "Key not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":   key,
		"value": json.RawMessage(value),
	})
}

// HeadValue reports whether a key is cached without counting a read
// @Summary Check a key
// @Tags cache
// @Param key path string true "Cache key"
// @Success 200 "Key is cached"
// @Failure 404 "Key not found"
// @Router /api/cache/{key} [head]
func (h *Handlers) HeadValue(w http.ResponseWriter, r *http.Request) {
	if !h.cache.Exists(r.Context(), mux.Vars(r)["key"]) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// PutValue stores a value
// @Summary Store a value
// @Description Writes the value into every configured level. ttl is a duration string or seconds and defaults to the cache default TTL.
// @Tags cache
// @Accept json
// @Produce json
// @Param key path string true "Cache key"
// @Param request body setRequest true "Value, ttl and tags"
// @Success 200 {object} map[string]interface{} "Stored"
// @Failure 400 {string} string "Invalid request"
// @Failure 503 {string} string "No level accepted the write"
// @Router /api/cache/{key} [put]
func (h *Handlers) PutValue(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req setRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Value) == 0 {
		http.Error(w, "value is required", http.StatusBadRequest)
		return
	}

	var opts []cache.SetOption
	if req.TTL != nil {
		opts = append(opts, cache.WithTTL(time.Duration(*req.TTL)))
	}
	if len(req.Tags) > 0 {
		opts = append(opts, cache.WithTags(req.Tags...))
	}

	ctx := logging.ContextWithCacheKey(r.Context(), key)
	if err := h.cache.Set(ctx, key, req.Value, opts...); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":    key,
		"stored": true,
	})
}

// DeleteValue removes a key from every level
// @Summary Delete a key
// @Tags cache
// @Produce json
// @Param key path string true "Cache key"
// @Success 200 {object} map[string]interface{} "Whether every level dropped the key"
// @Router /api/cache/{key} [delete]
func (h *Handlers) DeleteValue(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	deleted := h.cache.Delete(logging.ContextWithCacheKey(r.Context(), key), key)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":     key,
		"deleted": deleted,
	})
}

// IncrementValue adds step to a counter
// @Summary Increment a counter
// @Description Adds step (default 1) under the cache lock. A missing or non-numeric value starts from initial.
// @Tags cache
// @Accept json
// @Produce json
// @Param key path string true "Cache key"
// @Param request body counterRequest false "step, initial and ttl"
// @Success 200 {object} map[string]interface{} "New counter value"
// @Failure 409 {string} string "Counter is locked"
// @Router /api/cache/{key}/increment [post]
func (h *Handlers) IncrementValue(w http.ResponseWriter, r *http.Request) {
	h.count(w, r, h.cache.Increment)
}

// DecrementValue subtracts step from a counter
// @Summary Decrement a counter
// @Tags cache
// @Accept json
// @Produce json
// @Param key path string true "Cache key"
// @Param request body counterRequest false "step, initial and ttl"
// @Success 200 {object} map[string]interface{} "New counter value"
// @Failure 409 {string} string "Counter is locked"
// @Router /api/cache/{key}/decrement [post]
func (h *Handlers) DecrementValue(w http.ResponseWriter, r *http.Request) {
	h.count(w, r, h.cache.Decrement)
}

type counterFunc func(ctx context.Context, key string, step, initial int64, ttl time.Duration) (int64, error)

func (h *Handlers) count(w http.ResponseWriter, r *http.Request, op counterFunc) {
	key := mux.Vars(r)["key"]

	var req counterRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	step := int64(1)
	if req.Step != nil {
		step = *req.Step
	}

	value, err := op(logging.ContextWithCacheKey(r.Context(), key), key, step, req.Initial, time.Duration(req.TTL))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

// InvalidateTags removes every key carrying one of the tags
// @Summary Invalidate by tags
// @Tags cache
// @Accept json
// @Produce json
// @Param request body invalidateRequest true "Tags to invalidate"
// @Success 200 {object} map[string]interface{} "Number of removed keys"
// @Failure 400 {string} string "No tags given"
// @Router /api/cache/invalidate [post]
func (h *Handlers) InvalidateTags(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Tags) == 0 {
		http.Error(w, "tags are required", http.StatusBadRequest)
		return
	}

	removed := h.cache.InvalidateByTags(r.Context(), req.Tags...)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tags":    req.Tags,
		"removed": removed,
	})
}

// ClearCache empties levels
// @Summary Clear the cache
// @Description Clears the given levels (memory, persistent, distributed or 1-3), or everything when no level is given
// @Tags cache
// @Produce json
// @Param level query string false "Level to clear, repeatable or comma separated"
// @Success 200 {object} map[string]interface{} "Cleared levels"
// @Failure 400 {string} string "Unknown level"
// @Failure 503 {string} string "An adapter failed to clear"
// @Router /api/cache/clear [post]
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	var levels []cache.Level
	for _, raw := range r.URL.Query()["level"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			level, err := cache.ParseLevel(part)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			levels = append(levels, level)
		}
	}

	if err := h.cache.Clear(r.Context(), levels...); err != nil {
		h.writeError(w, r, err)
		return
	}

	cleared := make([]string, 0, len(levels))
	for _, level := range levels {
		cleared = append(cleared, level.String())
	}
	if len(levels) == 0 {
		for _, level := range h.cache.Levels() {
			cleared = append(cleared, level.String())
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": cleared,
	})
}

// CleanExpired sweeps expired items
// @Summary Remove expired items
// @Tags cache
// @Produce json
// @Success 200 {object} map[string]interface{} "Number of removed items"
// @Router /api/cache/clean [post]
func (h *Handlers) CleanExpired(w http.ResponseWriter, r *http.Request) {
	removed := h.cache.CleanExpired(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
	})
}
