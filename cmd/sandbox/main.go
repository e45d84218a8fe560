package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/paycheckout/internal/app"
	"github.com/utafrali/paycheckout/internal/config"
	"github.com/utafrali/paycheckout/internal/sandbox"
	"github.com/utafrali/paycheckout/pkg/logger"
)

func main() {
	// Load configuration from SANDBOX_ prefixed environment variables.
	cfg, err := config.LoadSandbox()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize structured logger.
	log := logger.New(sandbox.ServiceName, cfg.LogLevel)
	log.Info("starting sandbox order backend",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("scenario", cfg.Scenario),
	)

	application, err := app.NewSandbox(cfg, log)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create a context that is canceled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Run the application. This blocks until shutdown.
	if err := application.Run(ctx); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("sandbox order backend stopped")
}
