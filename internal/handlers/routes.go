package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Register mounts the cache API and the health endpoint on router. Every
// route is named so request metrics can label it.
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet).Name("health")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet).Name("stats")

	api.HandleFunc("/cache/invalidate", h.InvalidateTags).Methods(http.MethodPost).Name("cache_invalidate")
	api.HandleFunc("/cache/clear", h.ClearCache).Methods(http.MethodPost).Name("cache_clear")
	api.HandleFunc("/cache/clean", h.CleanExpired).Methods(http.MethodPost).Name("cache_clean")

	api.HandleFunc("/cache/{key}", h.GetValue).Methods(http.MethodGet).Name("cache_get")
	api.HandleFunc("/cache/{key}", h.HeadValue).Methods(http.MethodHead).Name("cache_exists")
	api.HandleFunc("/cache/{key}", h.PutValue).Methods(http.MethodPut).Name("cache_set")
	api.HandleFunc("/cache/{key}", h.DeleteValue).Methods(http.MethodDelete).Name("cache_delete")
	api.HandleFunc("/cache/{key}/increment", h.IncrementValue).Methods(http.MethodPost).Name("cache_increment")
	api.HandleFunc("/cache/{key}/decrement", h.DecrementValue).Methods(http.MethodPost).Name("cache_decrement")

	api.HandleFunc("/locks/{key}", h.AcquireLock).Methods(http.MethodPost).Name("lock_acquire")
	api.HandleFunc("/locks/{key}", h.ReleaseLock).Methods(http.MethodDelete).Name("lock_release")
}
