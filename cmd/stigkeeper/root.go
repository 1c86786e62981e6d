package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourorg/stigkeeper/internal/config"
	"github.com/yourorg/stigkeeper/internal/db"
	"github.com/yourorg/stigkeeper/internal/model"
	"github.com/yourorg/stigkeeper/internal/s3"
	"github.com/yourorg/stigkeeper/internal/worker"
)

// app is the state shared by every subcommand once the root pre-run hook
// has loaded configuration and opened the database.
type app struct {
	configPath string
	dbPath     string
	debug      bool

	cfg    config.Config
	logger *slog.Logger
	store  *db.Store
	runner *worker.Runner
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "stigkeeper",
		Short:         "Track STIG compliance checklists for assets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.store != nil {
				return a.store.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "stigkeeper.yaml", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides STIGKEEPER_DB)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newCCICmd(a),
		newSTIGCmd(a),
		newAssetCmd(a),
		newCheckCmd(a),
		newCKLCmd(a),
		newEMASSCmd(a),
		newReportCmd(a),
		newJobsCmd(a),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	config.LoadDotEnv()
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DatabasePath = a.dbPath
	}
	if a.debug {
		cfg.LogLevel = "debug"
	}
	a.cfg = cfg
	a.logger = newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	a.store, err = db.Open(ctx, db.Config{
		Path:     cfg.DatabasePath,
		PoolSize: cfg.WorkerConcurrency + 2,
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DatabasePath, err)
	}
	a.runner = worker.NewRunner(a.store, a.logger, cfg.ProgressInterval)
	a.runner.OnProgress = printProgress
	a.runner.RecoverStaleJobs(ctx)
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// printProgress writes status changes and warnings to stderr. Step-only
// events carry no stage change and are skipped.
func printProgress(ev model.ProgressEvent) {
	if ev.Detail != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", ev.Detail)
		return
	}
	if ev.Stage == "" {
		return
	}
	fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", ev.Pct(), ev.Stage)
}

// objectStore returns the S3 client when object storage is configured.
func (a *app) objectStore() (*s3.Client, error) {
	if !a.cfg.S3Enabled() {
		return nil, nil
	}
	return s3.New(a.cfg.S3Endpoint, a.cfg.S3AccessKey, a.cfg.S3SecretKey, a.cfg.S3UseSSL)
}

// publish returns the upload target for generated reports, if any.
func (a *app) publish(upload bool) (worker.Publish, error) {
	if !upload {
		return worker.Publish{}, nil
	}
	if a.cfg.ReportsBucket == "" {
		return worker.Publish{}, errors.New("--upload needs REPORTS_BUCKET")
	}
	client, err := a.objectStore()
	if err != nil {
		return worker.Publish{}, err
	}
	if client == nil {
		return worker.Publish{}, errors.New("--upload needs S3_ENDPOINT and S3_ACCESS_KEY")
	}
	return worker.Publish{Uploader: client, Bucket: a.cfg.ReportsBucket}, nil
}

// run executes a job and prints its counts and outputs to stdout.
func (a *app) run(cmd *cobra.Command, job worker.Job) error {
	res, err := a.runner.Run(cmd.Context(), job)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	keys := make([]string, 0, len(res.Counts))
	for k := range res.Counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", humanize.Comma(int64(res.Counts[k])), k))
	}
	summary := "nothing changed"
	if len(parts) > 0 {
		summary = strings.Join(parts, ", ")
	}
	fmt.Fprintf(out, "%s: %s", job.Kind(), summary)
	if n := len(res.Warnings); n > 0 {
		fmt.Fprintf(out, " (%d %s)", n, plural(n, "warning"))
	}
	fmt.Fprintln(out)
	for _, path := range res.Outputs {
		fmt.Fprintf(out, "wrote %s\n", path)
	}
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
