package services

import (
	"context"

	"github.com/osvaldoandrade/formfill/pkg/domain"
	"github.com/osvaldoandrade/formfill/pkg/persistence"
)

// JobQueryService is the read side of the job log sink.
type JobQueryService interface {
	Logs(ctx context.Context, jobID string) ([]domain.LogEntry, error)
	// State returns persistence.ErrNotFound for unknown or expired jobs.
	State(ctx context.Context, jobID string) (*domain.JobState, error)
}

type jobQueryService struct {
	jobs persistence.JobStorage
}

func NewJobQueryService(jobs persistence.JobStorage) JobQueryService {
	return &jobQueryService{jobs: jobs}
}

func (s *jobQueryService) Logs(ctx context.Context, jobID string) ([]domain.LogEntry, error) {
	return s.jobs.Read(ctx, jobID)
}

func (s *jobQueryService) State(ctx context.Context, jobID string) (*domain.JobState, error) {
	return s.jobs.State(ctx, jobID)
}
