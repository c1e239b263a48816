package domain

import (
	"testing"
	"time"
)

func TestJobStatusMarshalText(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
		want   string
	}{
		{"running", StatusRunning, "running"},
		{"succeeded", StatusSucceeded, "succeeded"},
		{"failed", StatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.status.MarshalText()
			if err != nil {
				t.Errorf("MarshalText() error = %v", err)
				return
			}
			if string(got) != tt.want {
				t.Errorf("MarshalText() = %v, want %v", string(got), tt.want)
			}
		})
	}
}

func TestJobStatusTerminal(t *testing.T) {
	if StatusRunning.Terminal() {
		t.Error("running must not be terminal")
	}
	if !StatusSucceeded.Terminal() || !StatusFailed.Terminal() {
		t.Error("succeeded and failed must be terminal")
	}
}

func TestClampSubmissions(t *testing.T) {
	tests := []struct {
		name  string
		in    int
		limit int
		want  int
	}{
		{"zero", 0, 50, 1},
		{"negative", -7, 50, 1},
		{"in range", 12, 50, 12},
		{"upper edge", 50, 50, 50},
		{"above", 999, 50, 50},
		{"custom limit", 30, 10, 10},
		{"limit above hard cap", 80, 100, 50},
		{"unset limit", 80, 0, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampSubmissions(tt.in, tt.limit); got != tt.want {
				t.Errorf("ClampSubmissions(%d, %d) = %d, want %d", tt.in, tt.limit, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want LogLevel
	}{
		{"Job started", LogNormal},
		{"ERROR: form not found", LogError},
		{"submission failed", LogError},
		{`WARN: Skipped RATING field "Stars"`, LogWarning},
		{"Skipped upload", LogWarning},
		{"Response 1 submitted", LogNormal},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := Classify(tt.msg); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestStatusFromMessage(t *testing.T) {
	tests := []struct {
		msg      string
		want     JobStatus
		terminal bool
	}{
		{"Job completed successfully", StatusSucceeded, true},
		{"Job finished", StatusSucceeded, true},
		{"ERROR: lock wait timed out", StatusFailed, true},
		{`ERROR on "Name": boom`, StatusFailed, true},
		{"Creating response 1/3", StatusRunning, false},
		{`WARN: Skipped FILE_UPLOAD field "CV"`, StatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got, ok := StatusFromMessage(tt.msg)
			if got != tt.want || ok != tt.terminal {
				t.Errorf("StatusFromMessage(%q) = (%v, %v), want (%v, %v)", tt.msg, got, ok, tt.want, tt.terminal)
			}
		})
	}
}

func TestNewLogEntryFormatsUTCMillis(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	e := NewLogEntry(time.Date(2024, 5, 1, 9, 30, 15, 123_456_789, loc), "hello")
	if e.Time != "2024-05-01T12:30:15.123Z" {
		t.Errorf("Time = %q", e.Time)
	}
	if e.Message != "hello" {
		t.Errorf("Message = %q", e.Message)
	}
}

func TestResponseHas(t *testing.T) {
	r := Response{Answers: []Answer{{FieldID: "a"}, {FieldID: "b"}}}
	if !r.Has("a") || r.Has("c") {
		t.Errorf("unexpected Has results for %+v", r)
	}
}

func TestGenerationConfigEnabled(t *testing.T) {
	if (GenerationConfig{}).Enabled() {
		t.Error("empty config must be disabled")
	}
	if !(GenerationConfig{APIKey: "k"}).Enabled() {
		t.Error("config with key must be enabled")
	}
}
