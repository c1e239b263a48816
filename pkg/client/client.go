// Package client talks to a formfill server: it starts jobs and follows
// their log buffers until a terminal state is observed.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/osvaldoandrade/formfill/pkg/domain"

	"github.com/google/uuid"
)

var ErrJobNotFound = errors.New("job not found")

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("error (%d): %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	newJobID       func() string
}

type Option func(*Client)

// WithHTTPClient replaces the transport. Start requests last as long as the
// job, so the client should not carry a short overall Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRequestTimeout bounds every call except StartJob. Default 10s.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

func WithJobIDGenerator(fn func() string) Option {
	return func(c *Client) { c.newJobID = fn }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		requestTimeout: 10 * time.Second,
		newJobID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Logs is one authoritative read of a job's buffer.
type Logs struct {
	Entries []domain.LogEntry
	// Status is nil for servers that only keep the log buffer.
	Status *domain.JobState
}

type logsBody struct {
	Success bool              `json:"success"`
	Logs    []domain.LogEntry `json:"logs"`
	Status  *domain.JobState  `json:"status,omitempty"`
}

func (c *Client) request(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var buf io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, out, nil
}

func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

// StartJob runs a job and returns once the server reports a terminal state.
// The envelope is decoded for error statuses too.
func (c *Client) StartJob(ctx context.Context, req domain.JobRequest) (domain.StartResult, error) {
	status, resp, err := c.request(ctx, http.MethodPost, "/v1/formfill/jobs", req)
	if err != nil {
		return domain.StartResult{JobID: req.JobID}, err
	}
	var out domain.StartResult
	if jerr := json.Unmarshal(resp, &out); jerr != nil && status < 300 {
		return out, fmt.Errorf("decode start result: %w", jerr)
	}
	if status >= 300 {
		return out, &APIError{StatusCode: status, Body: string(resp)}
	}
	return out, nil
}

func (c *Client) GetLogs(ctx context.Context, jobID string) (Logs, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	status, resp, err := c.request(ctx, http.MethodGet, "/?jobId="+url.QueryEscape(jobID), nil)
	if err != nil {
		return Logs{}, err
	}
	if status >= 300 {
		return Logs{}, &APIError{StatusCode: status, Body: string(resp)}
	}
	var body logsBody
	if err := json.Unmarshal(resp, &body); err != nil {
		return Logs{}, fmt.Errorf("decode logs: %w", err)
	}
	if body.Logs == nil {
		body.Logs = []domain.LogEntry{}
	}
	return Logs{Entries: body.Logs, Status: body.Status}, nil
}

func (c *Client) GetJob(ctx context.Context, jobID string) (*domain.JobState, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	status, resp, err := c.request(ctx, http.MethodGet, "/v1/formfill/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if status >= 300 {
		return nil, &APIError{StatusCode: status, Body: string(resp)}
	}
	var st domain.JobState
	if err := json.Unmarshal(resp, &st); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &st, nil
}

// Health probes GET /, which answers a plain "OK".
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	status, resp, err := c.request(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK || strings.TrimSpace(string(resp)) != "OK" {
		return &APIError{StatusCode: status, Body: string(resp)}
	}
	return nil
}
