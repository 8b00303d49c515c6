package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"fastsearch-cache/internal/handlers"
	"fastsearch-cache/internal/middleware"
	"fastsearch-cache/internal/ratelimit"
)

// SetupRoutes configures all application routes
func (app *App) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware)
	if app.Metrics != nil {
		router.Use(middleware.MetricsMiddleware(app.Metrics))
		router.Handle(app.Config.Metrics.Path, app.Metrics.Handler()).Methods(http.MethodGet).Name("metrics")
	}
	router.Use(app.RateLimiter.HTTPMiddleware(ratelimit.IPBasedKey))

	handlers.New(app.Cache, app.Health).Register(router)
	return router
}
