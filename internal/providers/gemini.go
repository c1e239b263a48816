package providers

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/osvaldoandrade/formfill/internal/answers"
	"github.com/osvaldoandrade/formfill/pkg/domain"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const promptTemplate = "Answer the question uniquely.\nQuestion: %s\nType: %s\nSeed: %s"

// BuildPrompt renders the generation prompt. The seed keeps repeated
// questions from producing identical answers.
func BuildPrompt(question, kind, seed string) string {
	return fmt.Sprintf(promptTemplate, question, kind, seed)
}

// GeminiOptions are process-wide generator settings; per-job settings come
// from domain.GenerationConfig.
type GeminiOptions struct {
	// MinInterval spaces consecutive calls of one job. Zero disables pacing.
	MinInterval time.Duration
	// Timeout bounds a single call.
	Timeout time.Duration
	// BaseURL overrides the Gemini API endpoint.
	BaseURL    string
	HTTPClient *http.Client
	Rand       *rand.Rand
	Now        func() time.Time
}

type geminiGenerator struct {
	client       *genai.Client
	model        string
	systemPrompt string
	limiter      *rate.Limiter
	timeout      time.Duration

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewGeminiGeneratorFactory returns a factory that builds one generator per
// job. Each generator has its own pacing limiter.
func NewGeminiGeneratorFactory(opts GeminiOptions) answers.GeneratorFactory {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	var rngMu sync.Mutex
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return func(ctx context.Context, cfg domain.GenerationConfig) (answers.Generator, error) {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("gemini api key is required")
		}
		cc := &genai.ClientConfig{
			APIKey:     cfg.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: opts.HTTPClient,
		}
		if opts.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
		}
		client, err := genai.NewClient(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}

		limit := rate.Inf
		if opts.MinInterval > 0 {
			limit = rate.Every(opts.MinInterval)
		}
		model := strings.TrimSpace(cfg.Model)
		if model == "" {
			model = domain.DefaultGeminiModel
		}

		rngMu.Lock()
		seed := opts.Rand.Int63()
		rngMu.Unlock()

		return &geminiGenerator{
			client:       client,
			model:        model,
			systemPrompt: strings.TrimSpace(cfg.SystemPrompt),
			limiter:      rate.NewLimiter(limit, 1),
			timeout:      opts.Timeout,
			rng:          rand.New(rand.NewSource(seed)),
			now:          opts.Now,
		}, nil
	}
}

func (g *geminiGenerator) Generate(ctx context.Context, question string, kind string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("generation pacing: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{}
	if g.systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(g.systemPrompt, genai.RoleUser)
	}
	contents := []*genai.Content{genai.NewContentFromText(BuildPrompt(question, kind, g.seed()), genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	var out strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part != nil && part.Text != "" {
					out.WriteString(part.Text)
				}
			}
			if out.Len() > 0 {
				break
			}
		}
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	return text, nil
}

// seed is an RFC3339 timestamp followed by a random base36 suffix.
func (g *geminiGenerator) seed() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, 11)
	for i := range b {
		b[i] = alphabet[g.rng.Intn(len(alphabet))]
	}
	return g.now().UTC().Format(time.RFC3339Nano) + string(b)
}
