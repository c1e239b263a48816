package domain

import (
	"strings"
	"time"
)

// Sentinel substrings the polling client matches on. Changing any of these
// breaks status derivation in deployed clients.
const (
	SentinelFinished  = "Job finished"
	SentinelCompleted = "Job completed successfully"
	SentinelError     = "ERROR"
	SentinelFailed    = "failed"
	SentinelWarn      = "WARN"
	SentinelSkipped   = "Skipped"
)

// LogTimeLayout matches the ISO-8601 strings the browser client renders.
const LogTimeLayout = "2006-01-02T15:04:05.000Z07:00"

type LogEntry struct {
	Time    string `json:"time"`
	Message string `json:"message"`
}

func NewLogEntry(now time.Time, message string) LogEntry {
	return LogEntry{Time: now.UTC().Format(LogTimeLayout), Message: message}
}

type LogLevel string

const (
	LogNormal  LogLevel = "normal"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// Classify is presentation-only; server code must not branch on it.
func Classify(message string) LogLevel {
	switch {
	case strings.Contains(message, SentinelError) || strings.Contains(message, SentinelFailed):
		return LogError
	case strings.Contains(message, SentinelWarn) || strings.Contains(message, SentinelSkipped):
		return LogWarning
	default:
		return LogNormal
	}
}

// StatusFromMessage derives a terminal status from the most recent log line.
// ok is false while the job is still running.
func StatusFromMessage(message string) (JobStatus, bool) {
	switch {
	case strings.Contains(message, SentinelFinished) || strings.Contains(message, SentinelCompleted):
		return StatusSucceeded, true
	case strings.Contains(message, SentinelError):
		return StatusFailed, true
	default:
		return StatusRunning, false
	}
}
