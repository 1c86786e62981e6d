package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/stigkeeper/internal/db"
	"github.com/yourorg/stigkeeper/internal/model"
)

// Job is a one-shot unit of work run by a Runner on its own goroutine.
type Job interface {
	Kind() string
	Run(ctx context.Context, p *Progress) (Result, error)
}

type Result struct {
	// Counts holds per-job tallies such as "ccis" or "stigs".
	Counts   map[string]int
	Outputs  []string
	Warnings []string
}

func (r *Result) count(key string, n int) {
	if r.Counts == nil {
		r.Counts = make(map[string]int)
	}
	r.Counts[key] += n
}

type Runner struct {
	store    *db.Store
	logger   *slog.Logger
	interval time.Duration
	// OnProgress receives status changes and warnings as they happen.
	OnProgress func(model.ProgressEvent)
}

func NewRunner(store *db.Store, logger *slog.Logger, flushInterval time.Duration) *Runner {
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Runner{store: store, logger: logger, interval: flushInterval}
}

// Run records the job, runs it on a new goroutine and blocks until it
// finishes. Progress is flushed to the jobs table on a ticker while it runs.
func (r *Runner) Run(ctx context.Context, job Job) (Result, error) {
	id := uuid.NewString()
	logger := r.logger.With("job", id, "kind", job.Kind())
	if err := r.store.CreateJob(ctx, id, job.Kind()); err != nil {
		return Result{}, fmt.Errorf("create job: %w", err)
	}
	if err := r.store.MarkRunning(ctx, id); err != nil {
		return Result{}, fmt.Errorf("start job: %w", err)
	}
	logger.Info("job started")
	start := time.Now()

	p := newProgress(id, logger, r.OnProgress)
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- outcome{err: fmt.Errorf("job panicked: %v", v)}
			}
		}()
		res, err := job.Run(ctx, p)
		done <- outcome{res: res, err: err}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	var out outcome
wait:
	for {
		select {
		case out = <-done:
			break wait
		case <-ticker.C:
			r.flush(ctx, id, p, logger)
		}
	}

	out.res.Warnings = p.Warnings()
	dbctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if out.err != nil {
		logger.Error("job failed", "error", out.err, "elapsed", time.Since(start).Round(time.Millisecond))
		if err := r.store.MarkFailed(dbctx, id, out.err.Error(), len(out.res.Warnings)); err != nil {
			logger.Error("mark failed", "error", err)
		}
		return out.res, out.err
	}
	_, stage, _ := p.snapshot()
	if stage == "" {
		stage = "completed"
	}
	if err := r.store.MarkDone(dbctx, id, stage, len(out.res.Warnings)); err != nil {
		logger.Error("mark done", "error", err)
	}
	logger.Info("job completed", "warnings", len(out.res.Warnings), "elapsed", time.Since(start).Round(time.Millisecond))
	return out.res, nil
}

// flush persists a progress snapshot. A bulk load may be holding the write
// lock, so failures are logged and the next tick tries again.
func (r *Runner) flush(ctx context.Context, id string, p *Progress, logger *slog.Logger) {
	pct, stage, warnings := p.snapshot()
	fctx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()
	if err := r.store.UpdateProgress(fctx, id, pct, stage, warnings); err != nil {
		logger.Debug("progress flush skipped", "error", err)
	}
}

// RecoverStaleJobs fails jobs a crashed process left queued or running.
func (r *Runner) RecoverStaleJobs(ctx context.Context) {
	n, err := r.store.FailStaleRunning(ctx, "interrupted: process exited before the job finished")
	if err != nil {
		r.logger.Warn("recover stale jobs", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("failed stale jobs", "count", n)
	}
}
