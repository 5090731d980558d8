package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"briefly/internal/config"
	"briefly/internal/fetcher"
	"briefly/internal/filter"
	"briefly/internal/notify"
	"briefly/internal/scheduler"
	"briefly/internal/storage"
	"briefly/internal/summary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	f := fetcher.New(http.DefaultClient)
	f.SetTimeout(cfg.RequestTimeout)

	engine := filter.NewEngine(store, log)
	summarizer := summary.New(store, cfg, log)
	aiEngine := filter.NewAIEngine(store, summarizer, log)
	notifier := notify.New(http.DefaultClient, log)

	sched := scheduler.New(store, f, engine, aiEngine, summarizer, notifier, cfg.FetchInterval, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting briefly", "fetch_interval", cfg.FetchInterval)

	sched.Start(ctx)

	<-ctx.Done()

	sched.Stop()
	log.Info("briefly stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
