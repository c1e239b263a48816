package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/osvaldoandrade/formfill/pkg/domain"
	"github.com/osvaldoandrade/formfill/pkg/persistence"
)

// JobLog is the writer side of one job's log buffer. It owns the job's
// structured state so that every state change travels with the log line
// that announces it.
//
// Writes are best-effort: a failed append is reported through slog and the
// job carries on.
type JobLog struct {
	store  persistence.JobStorage
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	state domain.JobState
}

func NewJobLog(store persistence.JobStorage, state domain.JobState, now func() time.Time, logger *slog.Logger) *JobLog {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobLog{store: store, now: now, logger: logger, state: state}
}

func (l *JobLog) JobID() string { return l.state.JobID }

// Line appends message without touching the state record.
func (l *JobLog) Line(ctx context.Context, message string) {
	l.write(ctx, message, nil)
}

// Update applies fn to the state and appends message together with the
// new state in one write.
func (l *JobLog) Update(ctx context.Context, message string, fn func(*domain.JobState)) {
	l.write(ctx, message, fn)
}

// State returns a copy of the current state.
func (l *JobLog) State() domain.JobState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *JobLog) write(ctx context.Context, message string, fn func(*domain.JobState)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var st *domain.JobState
	if fn != nil {
		fn(&l.state)
		l.state.UpdatedAt = now.UTC()
		cp := l.state
		st = &cp
	}
	if err := l.store.Append(ctx, l.state.JobID, domain.NewLogEntry(now, message), st); err != nil {
		l.logger.Warn("job log append failed", "jobId", l.state.JobID, "message", message, "err", err)
	}
}
