package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"inquiry_server/config"
	"inquiry_server/internal/bootstrap"
	"inquiry_server/pkg/logger"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Initialize logger early
	logger.Init(logger.Config{
		Level:   logger.LevelInfo,
		Service: "inquiry",
	})

	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	mode := flag.String("mode", "serve", "Run mode: serve, drain")
	drainLimit := flag.Int("limit", 0, "Drain limit (0 = host-mode default)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	switch *mode {
	case "serve":
		runServer(cfg)
	case "drain":
		runDrain(cfg, *drainLimit)
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
}

func runServer(cfg *config.Config) {
	app, sched, cleanup, err := bootstrap.NewAPI(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize API: %v", err)
	}
	defer cleanup()

	// Graceful shutdown with timeout
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down (timeout: %v)...", shutdownTimeout)

		if sched != nil {
			sched.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- app.Shutdown()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Error("Error shutting down: %v", err)
			} else {
				logger.Info("Server shut down gracefully")
			}
		case <-ctx.Done():
			logger.Warn("Shutdown timed out, forcing exit")
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("Starting server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

// runDrain performs a single drain invocation and exits. Used by external
// schedulers that prefer a one-shot process over the built-in cron.
func runDrain(cfg *config.Config, limit int) {
	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DrainSoftDeadline+5*time.Minute)
	defer cancel()

	report, err := deps.Drainer.Drain(ctx, limit)
	if err != nil {
		logger.Fatal("Drain failed: %v", err)
	}

	logger.WithFields(map[string]any{
		"fetched":   report.Fetched,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"poisoned":  report.Poisoned,
	}).Info("Drain complete")
}
