// Command branchmind runs the workspace-scoped reasoning and task store
// as a stdio JSON-RPC service, speaking the strict-10 tool envelope
// described in spec.md over the framed transport in internal/rpcserver.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/antigravity-dev/branchmind/internal/config"
	"github.com/antigravity-dev/branchmind/internal/graph"
	"github.com/antigravity-dev/branchmind/internal/nextengine"
	"github.com/antigravity-dev/branchmind/internal/registry"
	"github.com/antigravity-dev/branchmind/internal/rpcserver"
	"github.com/antigravity-dev/branchmind/internal/store"
	"github.com/antigravity-dev/branchmind/internal/think"
)

// configureLogger builds the process logger, following the teacher's
// cmd/cortex/main.go pattern: JSON by default, text under -dev, level
// selected from the configured log_level string.
func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func main() {
	configPath := flag.String("config", "branchmind.toml", "path to config file")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	workspaceDir := flag.String("workspace-dir", "", "override general.workspace_dir from the config file")
	dbName := flag.String("db", "branchmind.db", "sqlite file name under the workspace directory")
	flag.Parse()

	var cfg *config.Config
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "branchmind: failed to load config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	if *workspaceDir != "" {
		cfg.General.WorkspaceDir = *workspaceDir
	}

	logger := configureLogger(cfg.General.LogLevel, *dev)
	slog.SetDefault(logger)
	logger.Info("branchmind starting", "config", *configPath, "workspace_dir", cfg.General.WorkspaceDir)

	if err := os.MkdirAll(cfg.General.WorkspaceDir, 0o755); err != nil {
		logger.Error("failed to create workspace dir", "dir", cfg.General.WorkspaceDir, "error", err)
		os.Exit(1)
	}
	dbPath := filepath.Join(cfg.General.WorkspaceDir, *dbName)

	st, err := store.Open(dbPath, logger.With("component", "store"))
	if err != nil {
		logger.Error("failed to open store", "db", dbPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	graphEngine := graph.New(st)
	thinkSvc := think.New(st, graphEngine)
	nextEngine := nextengine.New(st)

	svc := registry.Services{
		Store:     st,
		Graph:     graphEngine,
		Think:     thinkSvc,
		Next:      nextEngine,
		Workspace: cfg.General.WorkspaceDir,
	}
	reg := registry.Build(svc)

	srv := rpcserver.New(reg, st, cfg, logger.With("component", "rpc"), os.Stdin, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("rpcserver exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("branchmind stopped")
}
