// Package main is the entry point for the city polls API server.
//
// The main package stays minimal:
//  1. Read configuration (flags, environment, .env)
//  2. Create the logger
//  3. Hand both to internal/server and start it
//
// Usage:
//
//	JWT_SECRET=$(openssl rand -hex 32) go run ./cmd/server -p 8080 -d data/polls.db
package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/citypolls/internal/config"
	"github.com/sakif/citypolls/internal/server"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(2)
	}

	logger := newLogger(os.Stdout, cfg)

	// The data directory is created on first run (like `mkdir -p`).
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger builds a text logger for terminals, or JSON for log shippers.
func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
