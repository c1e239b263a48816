package domain

import (
	"encoding"
	"time"
)

type JobStatus string

const (
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further writes are expected for the job.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

const (
	MinSubmissions     = 1
	MaxSubmissions     = 50
	DefaultGeminiModel = "gemini-2.5-flash"
)

// JobRequest is the start payload. Field names follow the wire format
// used by the browser client, which predates the Go service.
type JobRequest struct {
	JobID              string `json:"jobId"`
	FormURL            string `json:"formUrl"`
	SubmissionCount    int    `json:"submissionCount"`
	GeminiAPIKey       string `json:"geminiApiKey,omitempty"`
	GeminiModel        string `json:"geminiModel,omitempty"`
	GeminiSystemPrompt string `json:"geminiSystemPrompt,omitempty"`
	CallbackURL        string `json:"callbackUrl,omitempty"`
}

// StartResult is the envelope returned by the start endpoint.
type StartResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobID   string `json:"jobId"`
}

// JobState is the structured terminal-state record kept next to the log
// buffer. It shares the buffer's retention window.
type JobState struct {
	JobID     string    `json:"jobId"`
	FormURL   string    `json:"formUrl,omitempty"`
	Status    JobStatus `json:"status"`
	Total     int       `json:"total"`
	Submitted int       `json:"submitted"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GenerationConfig carries the assisted-answer settings for exactly one job.
type GenerationConfig struct {
	APIKey       string
	Model        string
	SystemPrompt string
}

func (g GenerationConfig) Enabled() bool { return g.APIKey != "" }

// ClampSubmissions forces n into [MinSubmissions, limit].
func ClampSubmissions(n int, limit int) int {
	if limit <= 0 || limit > MaxSubmissions {
		limit = MaxSubmissions
	}
	if n < MinSubmissions {
		return MinSubmissions
	}
	if n > limit {
		return limit
	}
	return n
}

var (
	_ encoding.BinaryMarshaler = JobStatus("")
	_ encoding.TextMarshaler   = JobStatus("")
)

func (s JobStatus) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s JobStatus) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }
