package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/osvaldoandrade/formfill/pkg/domain"
)

var (
	// ErrNotFound is returned when a key does not exist or has expired
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a key already exists
	ErrAlreadyExists = errors.New("already exists")
)

// PluginPersistence provides storage operations for persistence plugins.
// This is the main interface that all persistence backends must implement.
type PluginPersistence interface {
	// JobStorage returns the job log sink and state store
	JobStorage() JobStorage

	// LockStorage returns the lease lock implementation
	LockStorage() LockStorage

	// Health checks if the persistence backend is healthy
	Health(ctx context.Context) error

	// Close releases resources held by the persistence backend
	Close() error
}

// JobStorage is the per-job log buffer and its companion state record.
// Every write refreshes the retention window of both.
type JobStorage interface {
	// Claim reserves jobID. It returns false when the id was already claimed
	// inside the retention window.
	Claim(ctx context.Context, jobID string) (bool, error)

	// Append adds one entry to the job's buffer. When state is non-nil it is
	// written in the same atomic step.
	Append(ctx context.Context, jobID string, entry domain.LogEntry, state *domain.JobState) error

	// Read returns the whole buffer, or an empty slice for unknown or expired ids.
	Read(ctx context.Context, jobID string) ([]domain.LogEntry, error)

	// State returns ErrNotFound for unknown or expired ids.
	State(ctx context.Context, jobID string) (*domain.JobState, error)
}

// LockStorage is a lease-based mutual exclusion primitive. Tokens identify
// the holder so that an expired holder can never release a successor's lease.
type LockStorage interface {
	// TryAcquire returns ok=false without error when the lock is held.
	TryAcquire(ctx context.Context, key string, token string, lease time.Duration) (bool, error)

	// Extend refreshes the lease. It returns false if token no longer holds key.
	Extend(ctx context.Context, key string, token string, lease time.Duration) (bool, error)

	// Release is a no-op when token no longer holds key.
	Release(ctx context.Context, key string, token string) error
}
