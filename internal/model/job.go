package model

import "time"

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

type Job struct {
	ID          string
	Kind        string
	Status      JobStatus
	ProgressPct int
	ProgressMsg string
	Warnings    int
	ErrorMsg    string
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// ProgressEvent is a single progress notification emitted by a running job.
type ProgressEvent struct {
	JobID  string
	Done   int
	Total  int
	Stage  string
	Detail string
	TS     time.Time
}

// Pct maps the done/total counters onto 0-100.
func (e ProgressEvent) Pct() int {
	if e.Total <= 0 {
		return 0
	}
	p := e.Done * 100 / e.Total
	if p > 100 {
		return 100
	}
	return p
}
