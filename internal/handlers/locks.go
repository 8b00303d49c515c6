package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// defaultLockTTL applies when a lock request names no ttl.
const defaultLockTTL = 30 * time.Second

type lockRequest struct {
	TTL Duration `json:"ttl,omitempty"`
}

// AcquireLock takes the cache lock for a key
// @Summary Acquire a lock
// @Description Takes the lock without waiting. The returned token is needed to release it.
// @Tags locks
// @Accept json
// @Produce json
// @Param key path string true "Lock key"
// @Param request body lockRequest false "Lock lifetime, default 30s"
// @Success 201 {object} map[string]interface{} "Lock token"
// @Failure 409 {string} string "Lock is held"
// @Failure 503 {string} string "No level supports locking"
// @Router /api/locks/{key} [post]
func (h *Handlers) AcquireLock(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req lockRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ttl := time.Duration(req.TTL)
	if ttl == 0 {
		ttl = defaultLockTTL
	}

	token, err := h.cache.Lock(r.Context(), key, ttl)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"key":   key,
		"token": token,
		"ttl":   Duration(ttl),
	})
}

// ReleaseLock releases a lock held with token
// @Summary Release a lock
// @Tags locks
// @Param key path string true "Lock key"
// @Param token query string true "Token returned by AcquireLock"
// @Success 204 "Released"
// @Failure 400 {string} string "Missing token"
// @Failure 409 {string} string "Lock not held with this token"
// @Router /api/locks/{key} [delete]
func (h *Handlers) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	if !h.cache.Unlock(r.Context(), key, token) {
		http.Error(w, "Lock not held with this token", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
