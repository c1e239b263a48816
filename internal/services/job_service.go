package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/osvaldoandrade/formfill/internal/answers"
	"github.com/osvaldoandrade/formfill/internal/metrics"
	"github.com/osvaldoandrade/formfill/internal/providers"
	"github.com/osvaldoandrade/formfill/pkg/config"
	"github.com/osvaldoandrade/formfill/pkg/domain"
	"github.com/osvaldoandrade/formfill/pkg/persistence"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidRequest = errors.New("invalid job request")
	ErrJobExists      = errors.New("job already started")
	ErrLockTimeout    = errors.New("timed out waiting for job lock")
)

// JobService runs a job end to end. Start returns only once the job has
// reached a terminal state; the result envelope is always populated, the
// error classifies failures for the transport layer.
type JobService interface {
	Start(ctx context.Context, req domain.JobRequest) (domain.StartResult, error)
}

type JobServiceConfig struct {
	MaxSubmissions   int
	LockScope        string
	LockWait         time.Duration
	LockLease        time.Duration
	LockPollInterval time.Duration
	DefaultModel     string
}

type jobService struct {
	jobs      persistence.JobStorage
	locks     persistence.LockStorage
	engine    SubmissionService
	factory   answers.GeneratorFactory
	notifier  CompletionNotifier
	logger    *slog.Logger
	now       func() time.Time
	cfg       JobServiceConfig
	rngMu     sync.Mutex
	rng       *rand.Rand
	newJobID  func() string
	lockToken func() string
}

func NewJobService(
	jobs persistence.JobStorage,
	locks persistence.LockStorage,
	engine SubmissionService,
	factory answers.GeneratorFactory,
	notifier CompletionNotifier,
	logger *slog.Logger,
	now func() time.Time,
	cfg JobServiceConfig,
) JobService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if cfg.MaxSubmissions <= 0 || cfg.MaxSubmissions > domain.MaxSubmissions {
		cfg.MaxSubmissions = domain.MaxSubmissions
	}
	if cfg.LockScope == "" {
		cfg.LockScope = config.LockScopeGlobal
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 20 * time.Second
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = 60 * time.Second
	}
	if cfg.LockPollInterval <= 0 {
		cfg.LockPollInterval = 250 * time.Millisecond
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = domain.DefaultGeminiModel
	}
	return &jobService{
		jobs:      jobs,
		locks:     locks,
		engine:    engine,
		factory:   factory,
		notifier:  notifier,
		logger:    logger,
		now:       now,
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		newJobID:  uuid.NewString,
		lockToken: uuid.NewString,
	}
}

func (s *jobService) Start(ctx context.Context, req domain.JobRequest) (domain.StartResult, error) {
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		jobID = s.newJobID()
	}
	formURL := strings.TrimSpace(req.FormURL)
	if formURL == "" {
		return domain.StartResult{Success: false, Message: "Form URL is required", JobID: jobID}, ErrInvalidRequest
	}

	claimed, err := s.jobs.Claim(ctx, jobID)
	if err != nil {
		return domain.StartResult{Success: false, Message: err.Error(), JobID: jobID}, fmt.Errorf("claim job: %w", err)
	}
	if !claimed {
		return domain.StartResult{Success: false, Message: ErrJobExists.Error(), JobID: jobID}, ErrJobExists
	}

	// From here on the job must reach a terminal line even if the caller
	// goes away.
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "formfill.job", trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	metrics.JobsStartedTotal.Inc()
	count := domain.ClampSubmissions(req.SubmissionCount, s.cfg.MaxSubmissions)
	start := s.now()
	log := NewJobLog(s.jobs, domain.JobState{
		JobID:     jobID,
		FormURL:   formURL,
		Status:    domain.StatusRunning,
		Total:     count,
		StartedAt: start.UTC(),
	}, s.now, s.logger)
	log.Update(ctx, "Job started", func(*domain.JobState) {})

	gen := domain.GenerationConfig{
		APIKey:       strings.TrimSpace(req.GeminiAPIKey),
		Model:        strings.TrimSpace(req.GeminiModel),
		SystemPrompt: strings.TrimSpace(req.GeminiSystemPrompt),
	}
	if gen.Enabled() {
		if gen.Model == "" {
			gen.Model = s.cfg.DefaultModel
		}
		log.Line(ctx, fmt.Sprintf("Gemini enabled (model: %s)", gen.Model))
	} else {
		log.Line(ctx, "Gemini disabled (fallback mode)")
	}

	runErr := s.runLocked(ctx, formURL, func(ctx context.Context) error {
		s.rngMu.Lock()
		seed := s.rng.Int63()
		s.rngMu.Unlock()
		templated := answers.NewTemplated(rand.New(rand.NewSource(seed)), s.now)
		strategy := answers.New(ctx, gen, s.factory, templated, s.logger)
		_, err := s.engine.Run(ctx, JobSpec{FormURL: formURL, Count: count, Strategy: strategy, Log: log})
		return err
	})

	var result domain.StartResult
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "job failed")
		log.Update(ctx, domain.SentinelError+": "+runErr.Error(), func(st *domain.JobState) {
			st.Status = domain.StatusFailed
			st.Error = runErr.Error()
		})
		result = domain.StartResult{Success: false, Message: runErr.Error(), JobID: jobID}
	} else {
		log.Update(ctx, domain.SentinelCompleted, func(st *domain.JobState) {
			st.Status = domain.StatusSucceeded
		})
		result = domain.StartResult{Success: true, Message: "Completed", JobID: jobID}
	}

	final := log.State()
	metrics.JobsCompletedTotal.WithLabelValues(string(final.Status)).Inc()
	metrics.JobDurationSeconds.WithLabelValues(string(final.Status)).Observe(s.now().Sub(start).Seconds())
	s.logger.Info("job finished", "jobId", jobID, "status", final.Status, "submitted", final.Submitted, "total", final.Total)

	if s.notifier != nil && strings.TrimSpace(req.CallbackURL) != "" {
		s.notifier.Notify(ctx, req.CallbackURL, final)
	}
	return result, runErr
}

// runLocked holds the job lock for the duration of fn. The lease is
// extended in the background so long jobs keep it; it is released on
// every path.
func (s *jobService) runLocked(ctx context.Context, formURL string, fn func(context.Context) error) error {
	key := s.lockKey(formURL)
	token := s.lockToken()

	waitStart := time.Now()
	if err := s.acquire(ctx, key, token); err != nil {
		outcome := "error"
		if errors.Is(err, ErrLockTimeout) {
			outcome = "timeout"
		}
		metrics.LockWaitSeconds.WithLabelValues(outcome).Observe(time.Since(waitStart).Seconds())
		return err
	}
	metrics.LockWaitSeconds.WithLabelValues("acquired").Observe(time.Since(waitStart).Seconds())

	keepCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.keepAlive(keepCtx, key, token)
	}()
	defer func() {
		stop()
		wg.Wait()
		if err := s.locks.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn("job lock release failed", "key", key, "err", err)
		}
	}()

	return fn(ctx)
}

func (s *jobService) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(s.cfg.LockWait)
	for {
		ok, err := s.locks.TryAcquire(ctx, key, token, s.cfg.LockLease)
		if err != nil {
			return fmt.Errorf("acquire job lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w after %s", ErrLockTimeout, s.cfg.LockWait)
		}
		if err := sleepOrDone(ctx, s.cfg.LockPollInterval); err != nil {
			return err
		}
	}
}

func (s *jobService) keepAlive(ctx context.Context, key, token string) {
	every := s.cfg.LockLease / 3
	if every <= 0 {
		every = time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ok, err := s.locks.Extend(ctx, key, token, s.cfg.LockLease)
			if err != nil {
				s.logger.Warn("job lock extend failed", "key", key, "err", err)
				continue
			}
			if !ok {
				s.logger.Warn("job lock lost", "key", key)
				return
			}
		}
	}
}

func (s *jobService) lockKey(formURL string) string {
	if s.cfg.LockScope != config.LockScopeForm {
		return "formfill:lock:global"
	}
	id, err := providers.FormIDFromURL(formURL)
	if err != nil {
		sum := sha256.Sum256([]byte(formURL))
		id = hex.EncodeToString(sum[:8])
	}
	return "formfill:lock:form:" + id
}
