package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/osvaldoandrade/formfill/internal/backoff"
	"github.com/osvaldoandrade/formfill/internal/metrics"
	"github.com/osvaldoandrade/formfill/internal/ratelimit"
	"github.com/osvaldoandrade/formfill/internal/tracing"
	"github.com/osvaldoandrade/formfill/pkg/domain"
)

const (
	HeaderTimestamp = "X-Formfill-Timestamp"
	HeaderSignature = "X-Formfill-Signature"
)

// CompletionNotifier posts a job's terminal state to its callback URL.
// Delivery is asynchronous and retried; failures are only logged.
type CompletionNotifier interface {
	Notify(ctx context.Context, callbackURL string, state domain.JobState)
}

type completionNotifier struct {
	logger      *slog.Logger
	client      *http.Client
	secret      string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	now         func() time.Time

	limiter ratelimit.Limiter
	bucket  ratelimit.Bucket
}

func NewCompletionNotifier(logger *slog.Logger, client *http.Client, secret string, maxAttempts int, baseDelay, maxDelay time.Duration, limiter ratelimit.Limiter, bucket ratelimit.Bucket) CompletionNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}
	return &completionNotifier{
		logger:      logger,
		client:      client,
		secret:      secret,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		now:         time.Now,
		limiter:     limiter,
		bucket:      bucket,
	}
}

type completionPayload struct {
	JobID       string           `json:"jobId"`
	FormURL     string           `json:"formUrl"`
	Status      domain.JobStatus `json:"status"`
	Total       int              `json:"total"`
	Submitted   int              `json:"submitted"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt time.Time        `json:"completedAt"`
}

func (s *completionNotifier) Notify(ctx context.Context, callbackURL string, st domain.JobState) {
	callbackURL = strings.TrimSpace(callbackURL)
	if callbackURL == "" {
		return
	}
	b, _ := json.Marshal(completionPayload{
		JobID:       st.JobID,
		FormURL:     st.FormURL,
		Status:      st.Status,
		Total:       st.Total,
		Submitted:   st.Submitted,
		Error:       st.Error,
		StartedAt:   st.StartedAt,
		CompletedAt: st.UpdatedAt,
	})
	go s.sendWithRetry(context.WithoutCancel(ctx), st.JobID, callbackURL, b)
}

func (s *completionNotifier) sendWithRetry(ctx context.Context, jobID, url string, body []byte) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if s.limiter != nil && s.bucket.Enabled() {
			for {
				dec, err := s.limiter.Allow(ctx, ratelimit.ScopeCallback, url, s.bucket)
				if err != nil {
					// Fail open.
					break
				}
				if dec.Allowed {
					break
				}
				metrics.RateLimitHitsTotal.WithLabelValues(string(ratelimit.ScopeCallback), "callback_url").Inc()
				if sleepOrDone(ctx, dec.RetryAfter) != nil {
					return
				}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			s.logger.Warn("completion callback rejected", "jobId", jobID, "url", url, "err", err)
			metrics.WebhookDeliveriesTotal.WithLabelValues("completion", "failure").Inc()
			return
		}
		req.Header.Set("Content-Type", "application/json")
		tracing.InjectHeaders(ctx, req.Header)
		s.addSignature(req, body)
		resp, err := s.client.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_ = resp.Body.Close()
			metrics.WebhookDeliveriesTotal.WithLabelValues("completion", "success").Inc()
			return
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		if attempt < s.maxAttempts {
			_ = sleepOrDone(ctx, s.backoffDelay(attempt))
		}
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues("completion", "failure").Inc()
	s.logger.Warn("completion callback failed", "jobId", jobID, "url", url, "attempts", s.maxAttempts)
}

func (s *completionNotifier) backoffDelay(attempt int) time.Duration {
	return backoff.Compute(backoff.Exponential, s.baseDelay, s.maxDelay, attempt-1, nil)
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *completionNotifier) addSignature(req *http.Request, body []byte) {
	if strings.TrimSpace(s.secret) == "" {
		return
	}
	ts := s.now().UTC().Unix()
	req.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", ts))
	req.Header.Set(HeaderSignature, Sign(s.secret, ts, body))
}

// Sign returns hex(HMAC-SHA256(secret, "<ts>." + body)). Receivers recompute
// it from the timestamp header and the raw body.
func Sign(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
