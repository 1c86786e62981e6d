// Command publish pushes local assets and their checklist results to the
// central Postgres database named by CENTRAL_DATABASE_URL.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/yourorg/stigkeeper/internal/config"
	"github.com/yourorg/stigkeeper/internal/db"
	"github.com/yourorg/stigkeeper/internal/pgsync"
	"github.com/yourorg/stigkeeper/internal/worker"
)

func main() {
	var (
		configPath = flag.String("config", "stigkeeper.yaml", "YAML configuration file")
		dbPath     = flag.String("db", "", "SQLite database path (overrides STIGKEEPER_DB)")
		assetID    = flag.Int64("asset", 0, "publish only this asset id (0 = all)")
	)
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config", err)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	if cfg.CentralDatabaseURL == "" {
		fatal("publish", errors.New("CENTRAL_DATABASE_URL is not set"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	central, err := pgsync.Open(ctx, cfg.CentralDatabaseURL)
	if err != nil {
		fatal("central db open", err)
	}
	defer central.Close()
	if err := central.Ping(ctx); err != nil {
		fatal("central db ping", err)
	}
	if err := central.EnsureSchema(ctx); err != nil {
		if pgsync.InsufficientPrivilege(err) {
			logger.Warn("ensure schema skipped due insufficient privilege", "error", err)
		} else {
			fatal("ensure schema", err)
		}
	}

	store, err := db.Open(ctx, db.Config{Path: cfg.DatabasePath, Logger: logger})
	if err != nil {
		fatal("db open", err)
	}
	defer store.Close()

	runner := worker.NewRunner(store, logger, cfg.ProgressInterval)
	res, err := runner.Run(ctx, &worker.PublishJob{Store: store, Central: central, AssetID: *assetID})
	if err != nil {
		fatal("publish", err)
	}
	logger.Info("publish complete", "assets", res.Counts["assets"], "results", res.Counts["results"], "warnings", len(res.Warnings))
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
