// Package main is the entry point for the recipe-share server.
//
// main only reads configuration, builds the logger and hands both to
// internal/server. Configuration comes from config.yaml with environment
// overrides, e.g.
//
//	SESSION_SECRET=$(openssl rand -hex 32) SERVER_PORT=9000 go run ./cmd/server
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/sakif/recipe-share/internal/config"
	"github.com/sakif/recipe-share/internal/server"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	srv, err := server.New(context.Background(), cfg, logger)
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

// newLogger builds the process logger: human-readable text when
// log.pretty is set, JSON otherwise, at the level named by log.level.
func newLogger(cfg config.Log) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Pretty {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
