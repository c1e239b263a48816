package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var seen string
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		seen = RequestIDFrom(c.Request.Context())
		c.String(http.StatusOK, "OK")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	got := rec.Header().Get(HeaderRequestID)
	if got == "" || got != seen {
		t.Fatalf("header %q, context %q", got, seen)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != "abc-123" {
		t.Fatalf("incoming id not preserved: %q", got)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", 200))
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); len(got) != 36 {
		t.Fatalf("oversized id should be replaced, got %q", got)
	}
}

func TestLoggerMiddlewareAccessLine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	r := gin.New()
	r.Use(RequestIDMiddleware(), LoggerMiddleware(logger))
	r.GET("/v1/formfill/jobs/:id", func(c *gin.Context) {
		if _, ok := c.Get("logger"); !ok {
			t.Error("logger not stored on context")
		}
		c.Status(http.StatusNotFound)
	})
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "OK") })

	req := httptest.NewRequest(http.MethodGet, "/v1/formfill/jobs/j1", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode access line %q: %v", buf.String(), err)
	}
	if line["msg"] != "http request" || line["route"] != "/v1/formfill/jobs/:id" {
		t.Fatalf("unexpected line: %v", line)
	}
	if line["status"] != float64(http.StatusNotFound) || line["request_id"] != "req-1" {
		t.Fatalf("unexpected line: %v", line)
	}

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if buf.Len() != 0 {
		t.Fatalf("health probe should log at debug, got %q", buf.String())
	}
}

func TestTracingMiddlewareRecordsRouteSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := gin.New()
	r.Use(RequestIDMiddleware(), TracingMiddleware(""))
	r.GET("/v1/formfill/jobs/:id", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/formfill/jobs/j9", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "HTTP GET /v1/formfill/jobs/:id" {
		t.Fatalf("span name = %q", s.Name())
	}
	if s.Status().Code != codes.Error {
		t.Fatalf("expected error status for 500, got %v", s.Status().Code)
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["formfill.job_id"].AsString() != "j9" {
		t.Fatalf("missing job id attribute: %v", attrs)
	}
	if attrs["http.request_id"].AsString() == "" {
		t.Fatalf("missing request id attribute: %v", attrs)
	}
}
