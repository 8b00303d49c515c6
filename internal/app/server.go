package app

import (
	"fastsearch-cache/internal/common/logging"
	"fastsearch-cache/internal/server"
)

// RunServer creates the HTTP server for the cache API.
func (app *App) RunServer() *server.Server {
	router := app.SetupRoutes()

	protocol := "http"
	if app.Config.TLSCert != "" && app.Config.TLSKey != "" {
		protocol = "https"
	}
	app.Logger.Info("Starting cache API",
		logging.Field{Key: "port", Value: app.Config.Port},
		logging.Field{Key: "protocol", Value: protocol})

	return server.New(router, app.Config.Port, app.Config.TLSCert, app.Config.TLSKey)
}
