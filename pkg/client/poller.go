package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/osvaldoandrade/formfill/internal/backoff"
	"github.com/osvaldoandrade/formfill/pkg/domain"
)

var ErrWatchTimeout = errors.New("job did not reach a terminal state in time")

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateFinished State = "finished"
	StateError    State = "error"
	StateTimeout  State = "timeout"
)

func (s State) Terminal() bool {
	return s == StateFinished || s == StateError || s == StateTimeout
}

type Line struct {
	domain.LogEntry
	Level domain.LogLevel
}

// Snapshot is the local view of a job. Logs is replaced on every
// successful poll, never appended to.
type Snapshot struct {
	JobID  string
	State  State
	Logs   []Line
	Status *domain.JobState
	// Err is the most recent transient fetch error, cleared by a good poll.
	Err error
}

type WatchOptions struct {
	// Interval is the base poll period. Default 1s.
	Interval time.Duration
	// MaxInterval caps the backoff applied while the buffer is unchanged.
	// Default 8s.
	MaxInterval time.Duration
	// MaxDuration bounds the whole watch. Default 10m.
	MaxDuration time.Duration
	OnUpdate    func(Snapshot)
	OnError     func(error)
}

func (o *WatchOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.MaxInterval < o.Interval {
		o.MaxInterval = 8 * o.Interval
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 10 * time.Minute
	}
}

// Submit validates the form URL, fires the start request without waiting for
// it and then watches the job. A failed start is reported through OnError;
// the log buffer stays the source of truth.
func (c *Client) Submit(ctx context.Context, req domain.JobRequest, opts WatchOptions) (Snapshot, error) {
	if err := ValidateFormURL(req.FormURL); err != nil {
		return Snapshot{JobID: req.JobID, State: StateIdle}, err
	}
	if strings.TrimSpace(req.JobID) == "" {
		req.JobID = c.newJobID()
	}

	startCtx := context.WithoutCancel(ctx)
	go func() {
		if _, err := c.StartJob(startCtx, req); err != nil && opts.OnError != nil {
			opts.OnError(fmt.Errorf("start job: %w", err))
		}
	}()

	return c.Watch(ctx, req.JobID, opts)
}

// Watch polls the job's log buffer until it reaches a terminal state, the
// maximum duration elapses or ctx is cancelled.
func (c *Client) Watch(ctx context.Context, jobID string, opts WatchOptions) (Snapshot, error) {
	opts.defaults()
	snap := Snapshot{JobID: jobID, State: StateRunning, Logs: []Line{}}
	deadline := time.Now().Add(opts.MaxDuration)

	unchanged := 0
	lastLen := 0
	delay := opts.Interval
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-timer.C:
		}

		logs, err := c.GetLogs(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return snap, ctx.Err()
			}
			snap.Err = err
			unchanged++
			if opts.OnError != nil {
				opts.OnError(fmt.Errorf("poll logs: %w", err))
			}
		} else {
			if len(logs.Entries) != lastLen {
				unchanged = 0
			} else {
				unchanged++
			}
			lastLen = len(logs.Entries)
			snap.Err = nil
			snap.Logs = classify(logs.Entries)
			snap.Status = logs.Status
			snap.State = deriveState(logs)
			if opts.OnUpdate != nil {
				opts.OnUpdate(snap)
			}
			if snap.State.Terminal() {
				return snap, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			snap.State = StateTimeout
			if opts.OnUpdate != nil {
				opts.OnUpdate(snap)
			}
			return snap, ErrWatchTimeout
		}
		delay = backoff.Compute(backoff.Exponential, opts.Interval, opts.MaxInterval, unchanged, nil)
		if delay > remaining {
			delay = remaining
		}
		timer.Reset(delay)
	}
}

func classify(entries []domain.LogEntry) []Line {
	out := make([]Line, len(entries))
	for i, e := range entries {
		out[i] = Line{LogEntry: e, Level: domain.Classify(e.Message)}
	}
	return out
}

// deriveState prefers the structured status. The sentinel fallback only
// looks at the most recent entry.
func deriveState(l Logs) State {
	if l.Status != nil {
		switch l.Status.Status {
		case domain.StatusSucceeded:
			return StateFinished
		case domain.StatusFailed:
			return StateError
		default:
			return StateRunning
		}
	}
	if len(l.Entries) == 0 {
		return StateRunning
	}
	switch st, ok := domain.StatusFromMessage(l.Entries[len(l.Entries)-1].Message); {
	case !ok:
		return StateRunning
	case st == domain.StatusFailed:
		return StateError
	default:
		return StateFinished
	}
}
