package db

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yourorg/stigkeeper/internal/model"
)

const jobColumns = `id, kind, status, progress_pct, progress_msg, warnings, error_msg,
	created_at, started_at, finished_at FROM jobs`

func nowText() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(stmt *sqlite.Stmt, col int) *time.Time {
	if stmt.ColumnIsNull(col) {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, stmt.ColumnText(col))
	if err != nil {
		return nil
	}
	return &t
}

func scanJob(stmt *sqlite.Stmt) model.Job {
	j := model.Job{
		ID:          stmt.ColumnText(0),
		Kind:        stmt.ColumnText(1),
		Status:      model.JobStatus(stmt.ColumnText(2)),
		ProgressPct: stmt.ColumnInt(3),
		ProgressMsg: stmt.ColumnText(4),
		Warnings:    stmt.ColumnInt(5),
		ErrorMsg:    stmt.ColumnText(6),
		StartedAt:   parseTime(stmt, 8),
		FinishedAt:  parseTime(stmt, 9),
	}
	if t := parseTime(stmt, 7); t != nil {
		j.CreatedAt = *t
	}
	return j
}

func (s *Store) CreateJob(ctx context.Context, id, kind string) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `INSERT INTO jobs (id, kind, status, created_at) VALUES (?, ?, 'queued', ?)`,
			&sqlitex.ExecOptions{Args: []any{id, kind, nowText()}})
		return constraintErr(err, "job "+id)
	})
}

func (s *Store) MarkRunning(ctx context.Context, id string) error {
	return s.execJob(ctx, `
		UPDATE jobs SET status = 'running', started_at = ?, progress_pct = 0, progress_msg = 'starting'
		WHERE id = ? AND status = 'queued'`, nowText(), id)
}

// UpdateProgress never moves the percentage backwards and only touches
// running jobs.
func (s *Store) UpdateProgress(ctx context.Context, id string, pct int, msg string, warnings int) error {
	return s.execJob(ctx, `
		UPDATE jobs
		SET progress_msg = CASE WHEN ? >= progress_pct THEN ? ELSE progress_msg END,
		    progress_pct = MAX(progress_pct, ?),
		    warnings = ?
		WHERE id = ? AND status = 'running'`, pct, msg, pct, warnings, id)
}

func (s *Store) MarkDone(ctx context.Context, id, msg string, warnings int) error {
	return s.execJob(ctx, `
		UPDATE jobs SET status = 'done', finished_at = ?, progress_pct = 100, progress_msg = ?, warnings = ?
		WHERE id = ?`, nowText(), msg, warnings, id)
}

func (s *Store) MarkFailed(ctx context.Context, id, errMsg string, warnings int) error {
	return s.execJob(ctx, `
		UPDATE jobs SET status = 'failed', finished_at = ?, error_msg = ?, warnings = ?,
		       progress_msg = CASE WHEN progress_msg = '' THEN ? ELSE progress_msg END
		WHERE id = ? AND status IN ('queued', 'running')`, nowText(), errMsg, warnings, errMsg, id)
}

func (s *Store) execJob(ctx context.Context, query string, args ...any) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
	})
}

// FailStaleRunning fails jobs a previous process left queued or running and
// returns how many it touched.
func (s *Store) FailStaleRunning(ctx context.Context, reason string) (int, error) {
	n := 0
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			UPDATE jobs SET status = 'failed', finished_at = ?, error_msg = ?
			WHERE status IN ('queued', 'running')`,
			&sqlitex.ExecOptions{Args: []any{nowText(), reason}})
		n = conn.Changes()
		return err
	})
	return n, err
}

func (s *Store) GetJob(ctx context.Context, id string) (model.Job, error) {
	var j model.Job
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+jobColumns+` WHERE id = ?`, &sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				j, found = scanJob(stmt), true
				return nil
			},
		})
	})
	if err == nil && !found {
		err = fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return j, err
}

// ListJobs returns the most recent jobs first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []model.Job
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+jobColumns+` ORDER BY created_at DESC LIMIT ?`, &sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanJob(stmt))
				return nil
			},
		})
	})
	return out, err
}
