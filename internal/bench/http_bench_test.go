package bench

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/formfill/pkg/app"
	"github.com/osvaldoandrade/formfill/pkg/config"
	"github.com/osvaldoandrade/formfill/pkg/domain"
)

const benchFormURL = "https://docs.google.com/forms/d/bench/edit"

// benchForms serves a fixed form and discards submissions so the benchmark
// measures the job pipeline, not a form backend.
type benchForms struct{}

func (benchForms) Fields(ctx context.Context, formURL string) ([]domain.Field, error) {
	return []domain.Field{
		{ID: "q1", Type: domain.FieldText, Title: "Name"},
		{ID: "q2", Type: domain.FieldParagraphText, Title: "About"},
		{ID: "q3", Type: domain.FieldMultipleChoice, Title: "Color", Choices: []string{"red", "blue"}},
		{ID: "q4", Type: domain.FieldScale, Title: "Score", LowerBound: 1, UpperBound: 5},
		{ID: "q5", Type: domain.FieldGrid, Title: "Grid", Rows: []string{"a", "b"}, Columns: []string{"x", "y"}},
	}, nil
}

func (benchForms) Submit(ctx context.Context, formURL string, r domain.Response) error { return nil }

func newBenchApp(b *testing.B, storage string) *app.Application {
	b.Helper()
	gin.SetMode(gin.ReleaseMode)

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis start: %v", err)
	}
	b.Cleanup(mr.Close)

	cfg := &config.Config{
		Env:              "dev",
		Timezone:         "UTC",
		LogLevel:         "error",
		LogFormat:        "json",
		StorageProvider:  storage,
		RedisAddr:        mr.Addr(),
		LogTTLSeconds:    600,
		MaxSubmissions:   50,
		LockScope:        config.LockScopeGlobal,
		LockWaitSeconds:  5,
		LockLeaseSeconds: 60,
		FormProvider:     "http",

		// Benchmarks keep rate limiting disabled.
		RateLimit: config.RateLimitConfig{},
	}

	a, err := app.NewApplication(cfg, app.WithFormProvider(benchForms{}))
	if err != nil {
		b.Fatalf("app init: %v", err)
	}
	app.SetupMappings(a)
	b.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func doRequest(b *testing.B, h http.Handler, method, path string, body []byte) (int, []byte) {
	b.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code, w.Body.Bytes()
}

func benchmarkStartJob(b *testing.B, storage string, count int) {
	a := newBenchApp(b, storage)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		body := []byte(fmt.Sprintf(`{"jobId":"bench-%d","formUrl":%q,"submissionCount":%d}`, i, benchFormURL, count))
		status, resp := doRequest(b, a.Engine, http.MethodPost, "/", body)
		if status != http.StatusOK {
			b.Fatalf("start status %d body=%s", status, string(resp))
		}
	}
}

func BenchmarkHTTP_StartJob_Redis(b *testing.B)  { benchmarkStartJob(b, "redis", 1) }
func BenchmarkHTTP_StartJob_Memory(b *testing.B) { benchmarkStartJob(b, "memory", 1) }
func BenchmarkHTTP_StartJob_Redis10(b *testing.B) {
	benchmarkStartJob(b, "redis", 10)
}

func BenchmarkHTTP_PollLogs(b *testing.B) {
	a := newBenchApp(b, "redis")

	body := []byte(fmt.Sprintf(`{"jobId":"poll","formUrl":%q,"submissionCount":20}`, benchFormURL))
	if status, resp := doRequest(b, a.Engine, http.MethodPost, "/", body); status != http.StatusOK {
		b.Fatalf("start status %d body=%s", status, string(resp))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		status, resp := doRequest(b, a.Engine, http.MethodGet, "/?jobId=poll", nil)
		if status != http.StatusOK {
			b.Fatalf("logs status %d body=%s", status, string(resp))
		}
	}
}
