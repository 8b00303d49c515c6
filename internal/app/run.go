package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fastsearch-cache/internal/common/logging"
	"fastsearch-cache/internal/config"
)

// Run is the main entry point for the application
func Run() error {
	// Load environment variables
	_ = godotenv.Load()

	runtime.GOMAXPROCS(runtime.NumCPU())

	var warmOnly bool
	flag.BoolVar(&warmOnly, "warm-only", false, "Load CACHE_WARM_FILE into the cache and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("Failed to load configuration", err)
		return err
	}

	if err := logging.InitGlobalLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		logging.Error("Failed to initialize logging", err)
		return err
	}
	defer logging.MustSync()

	logging.Info("Starting fastsearch cache",
		logging.Field{Key: "cpus", Value: runtime.NumCPU()},
		logging.Field{Key: "instance_id", Value: cfg.InstanceID},
	)

	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Close()

	if _, err := app.WarmFromFile(ctx); err != nil {
		logging.Error("Cache warm-up failed", err)
		if warmOnly {
			return err
		}
	}
	if warmOnly {
		return nil
	}

	srv := app.RunServer()
	if err := srv.Start(); err != nil {
		logging.Error("Server failed to start", err)
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-srv.Errors():
	}

	logging.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server forced to shutdown", err)
		return err
	}

	if err := app.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Error during app shutdown", logging.Err(err))
	}

	logging.Info("Server exited")
	return serveErr
}
