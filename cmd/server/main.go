// Package main is the entry point for the records collector API.
//
// The main package stays minimal:
// 1. Read configuration (environment, optional .env file)
// 2. Create the logger
// 3. Build and start the server
//
// All actual logic lives in internal/.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/records-collector/internal/config"
	"github.com/sakif/records-collector/internal/server"
)

func main() {
	envFile := flag.String("env", ".env", "optional env file; real environment variables take precedence")
	flag.Parse()

	// === 1. READ CONFIGURATION ===
	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	// === 3. DATABASE DIRECTORY ===
	// os.MkdirAll is a no-op when the directory exists (like `mkdir -p`).
	if cfg.DatabasePath != ":memory:" {
		dbDir := filepath.Dir(cfg.DatabasePath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. CREATE AND START THE SERVER ===
	ctx := context.Background()
	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
