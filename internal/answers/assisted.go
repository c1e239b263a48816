package answers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/osvaldoandrade/formfill/internal/metrics"
	"github.com/osvaldoandrade/formfill/pkg/domain"
)

// Kinds passed to a Generator.
const (
	KindShort     = "short"
	KindParagraph = "paragraph"
)

// Generator produces free text for a question. A blank result or an error
// means "no answer".
type Generator interface {
	Generate(ctx context.Context, question string, kind string) (string, error)
}

// GeneratorFactory builds a Generator bound to one job's GenerationConfig.
type GeneratorFactory func(ctx context.Context, cfg domain.GenerationConfig) (Generator, error)

// Assisted delegates TEXT and PARAGRAPH_TEXT to a Generator and everything
// else to the templated strategy.
type Assisted struct {
	templated *Templated
	gen       Generator
	logger    *slog.Logger
}

func NewAssisted(templated *Templated, gen Generator, logger *slog.Logger) *Assisted {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assisted{templated: templated, gen: gen, logger: logger}
}

func (a *Assisted) Answer(ctx context.Context, f domain.Field) (any, error) {
	switch f.Type {
	case domain.FieldText:
		return a.generate(ctx, f, KindShort), nil
	case domain.FieldParagraphText:
		return a.generate(ctx, f, KindParagraph), nil
	default:
		return a.templated.Answer(ctx, f)
	}
}

func (a *Assisted) generate(ctx context.Context, f domain.Field, kind string) string {
	start := time.Now()
	text, err := a.gen.Generate(ctx, f.Title, kind)
	metrics.GenerationLatencySeconds.Observe(time.Since(start).Seconds())

	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		metrics.GenerationRequestsTotal.WithLabelValues("fallback").Inc()
		attrs := []any{"field", f.Title, "kind", kind}
		if err != nil {
			attrs = append(attrs, "err", err)
		}
		a.logger.Warn("assisted generation fell back to template", attrs...)
		return a.templated.ShortText()
	}
	metrics.GenerationRequestsTotal.WithLabelValues("success").Inc()
	return text
}

// New picks the strategy for a job. Without an API key no generator is
// constructed. A factory failure degrades to templated answers.
func New(ctx context.Context, cfg domain.GenerationConfig, factory GeneratorFactory, templated *Templated, logger *slog.Logger) Strategy {
	if !cfg.Enabled() || factory == nil {
		return templated
	}
	if logger == nil {
		logger = slog.Default()
	}
	gen, err := factory(ctx, cfg)
	if err != nil {
		logger.Warn("generator unavailable, using templated answers", "model", cfg.Model, "err", err)
		return templated
	}
	return NewAssisted(templated, gen, logger)
}
