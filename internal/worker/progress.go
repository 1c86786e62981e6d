package worker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/yourorg/stigkeeper/internal/model"
)

// Progress collects what a running job reports. Jobs call it from their own
// goroutine; the runner reads snapshots from another.
type Progress struct {
	mu       sync.Mutex
	jobID    string
	done     int
	total    int
	stage    string
	warnings []string
	logger   *slog.Logger
	notify   func(model.ProgressEvent)
}

func newProgress(jobID string, logger *slog.Logger, notify func(model.ProgressEvent)) *Progress {
	return &Progress{jobID: jobID, logger: logger, notify: notify}
}

// Init resets the step counter to done out of total.
func (p *Progress) Init(total, done int) {
	p.mu.Lock()
	p.total, p.done = total, done
	ev := p.eventLocked("")
	p.mu.Unlock()
	p.emit(ev)
}

// Step advances the counter by n.
func (p *Progress) Step(n int) {
	p.mu.Lock()
	p.done += n
	if p.total > 0 && p.done > p.total {
		p.done = p.total
	}
	p.mu.Unlock()
}

func (p *Progress) Status(stage string) {
	p.mu.Lock()
	p.stage = stage
	ev := p.eventLocked("")
	p.mu.Unlock()
	p.logger.Debug("job status", "job", p.jobID, "status", stage)
	p.emit(ev)
}

// Warn records a non-fatal problem; the job keeps going.
func (p *Progress) Warn(msg string) {
	p.mu.Lock()
	p.warnings = append(p.warnings, msg)
	ev := p.eventLocked(msg)
	p.mu.Unlock()
	p.logger.Warn("job warning", "job", p.jobID, "warning", msg)
	p.emit(ev)
}

func (p *Progress) Warnings() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.warnings...)
}

func (p *Progress) snapshot() (pct int, stage string, warnings int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev := p.eventLocked("")
	return ev.Pct(), p.stage, len(p.warnings)
}

func (p *Progress) eventLocked(detail string) model.ProgressEvent {
	return model.ProgressEvent{
		JobID:  p.jobID,
		Done:   p.done,
		Total:  p.total,
		Stage:  p.stage,
		Detail: detail,
		TS:     time.Now(),
	}
}

func (p *Progress) emit(ev model.ProgressEvent) {
	if p.notify != nil {
		p.notify(ev)
	}
}
