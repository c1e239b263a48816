package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/osvaldoandrade/formfill/internal/answers"
	"github.com/osvaldoandrade/formfill/internal/metrics"
	"github.com/osvaldoandrade/formfill/internal/providers"
	"github.com/osvaldoandrade/formfill/pkg/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("formfill/services")

// JobSpec is everything the engine needs to run one job.
type JobSpec struct {
	FormURL  string
	Count    int
	Strategy answers.Strategy
	Log      *JobLog
}

// Summary counts what the engine did before it returned.
type Summary struct {
	Fields      int
	Submitted   int
	Skipped     int
	FieldErrors int
}

// SubmissionService resolves a form once and submits Count synthetic
// responses to it, strictly one after another.
type SubmissionService interface {
	Run(ctx context.Context, spec JobSpec) (Summary, error)
}

type submissionService struct {
	forms providers.FormProvider
}

func NewSubmissionService(forms providers.FormProvider) SubmissionService {
	return &submissionService{forms: forms}
}

func (s *submissionService) Run(ctx context.Context, spec JobSpec) (Summary, error) {
	var sum Summary
	ctx, span := tracer.Start(ctx, "formfill.engine.run", trace.WithAttributes(
		attribute.String("job.id", spec.Log.JobID()),
		attribute.Int("job.count", spec.Count),
	))
	defer span.End()

	spec.Log.Line(ctx, "Opening form")
	fields, err := s.forms.Fields(ctx, spec.FormURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open form")
		return sum, fmt.Errorf("open form: %w", err)
	}
	sum.Fields = len(fields)
	spec.Log.Line(ctx, fmt.Sprintf("Found %d items", len(fields)))

	for i := 1; i <= spec.Count; i++ {
		if err := s.submitOne(ctx, spec, fields, i, &sum); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submit")
			return sum, err
		}
	}
	return sum, nil
}

func (s *submissionService) submitOne(ctx context.Context, spec JobSpec, fields []domain.Field, i int, sum *Summary) error {
	ctx, span := tracer.Start(ctx, "formfill.engine.response", trace.WithAttributes(attribute.Int("response.index", i)))
	defer span.End()

	spec.Log.Line(ctx, fmt.Sprintf("Creating response %d/%d", i, spec.Count))

	resp := domain.Response{Answers: make([]domain.Answer, 0, len(fields))}
	for _, f := range fields {
		v, err := spec.Strategy.Answer(ctx, f)
		switch {
		case errors.Is(err, answers.ErrSkipped):
			sum.Skipped++
			metrics.FieldErrorsTotal.WithLabelValues(string(f.Type), "skipped").Inc()
			spec.Log.Line(ctx, fmt.Sprintf("%s: %s %s field %q", domain.SentinelWarn, domain.SentinelSkipped, f.Type, f.Title))
		case err != nil:
			sum.FieldErrors++
			metrics.FieldErrorsTotal.WithLabelValues(string(f.Type), "error").Inc()
			spec.Log.Line(ctx, fmt.Sprintf("%s on %q: %s", domain.SentinelError, f.Title, err.Error()))
		default:
			resp.Answers = append(resp.Answers, domain.Answer{FieldID: f.ID, Title: f.Title, Type: f.Type, Value: v})
			switch f.Type {
			case domain.FieldText:
				spec.Log.Line(ctx, "TEXT answered")
			case domain.FieldParagraphText:
				spec.Log.Line(ctx, "PARAGRAPH answered")
			}
		}
	}

	if err := s.forms.Submit(ctx, spec.FormURL, resp); err != nil {
		return fmt.Errorf("submit response %d: %w", i, err)
	}
	sum.Submitted++
	metrics.ResponsesSubmittedTotal.Inc()
	spec.Log.Update(ctx, fmt.Sprintf("Response %d submitted", i), func(st *domain.JobState) {
		st.Submitted = i
	})
	return nil
}
