package handlers

import (
	"net/http"

	"fastsearch-cache/internal/health"
)

// Statistics handlers

// GetStats returns cache statistics
// @Summary Get cache statistics
// @Description Returns hit/miss counters, memory level usage, tag index size and per-adapter details
// @Tags statistics
// @Produce json
// @Success 200 {object} cache.Stats "Cache statistics"
// @Router /api/stats [get]
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Statistics(r.Context()))
}

// GetHealth returns the cache health report
// @Summary Get cache health
// @Description Evaluates hit rate, memory and disk usage. Responds 503 when the cache is critical.
// @Tags statistics
// @Produce json
// @Success 200 {object} health.Report "Healthy or warning"
// @Failure 503 {object} health.Report "Critical"
// @Router /health [get]
func (h *Handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := h.health.Report(r.Context())

	status := http.StatusOK
	if report.Status == health.StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
