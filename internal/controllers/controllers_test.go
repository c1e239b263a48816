package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/osvaldoandrade/formfill/internal/services"
	"github.com/osvaldoandrade/formfill/pkg/domain"
	"github.com/osvaldoandrade/formfill/pkg/persistence"

	"github.com/gin-gonic/gin"
)

type fakeJobs struct {
	res domain.StartResult
	err error
	got domain.JobRequest
}

func (f *fakeJobs) Start(ctx context.Context, req domain.JobRequest) (domain.StartResult, error) {
	f.got = req
	return f.res, f.err
}

type fakeQuery struct {
	logs     map[string][]domain.LogEntry
	states   map[string]*domain.JobState
	stateErr error
}

func (f *fakeQuery) Logs(ctx context.Context, jobID string) ([]domain.LogEntry, error) {
	if l, ok := f.logs[jobID]; ok {
		return l, nil
	}
	return []domain.LogEntry{}, nil
}

func (f *fakeQuery) State(ctx context.Context, jobID string) (*domain.JobState, error) {
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	if st, ok := f.states[jobID]; ok {
		return st, nil
	}
	return nil, persistence.ErrNotFound
}

func newRouter(jobs services.JobService, q services.JobQueryService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/", NewStartJobController(jobs).Handle)
	r.GET("/", NewGetLogsController(q).Handle)
	r.GET("/v1/formfill/jobs/:id", NewGetJobController(q).Handle)
	r.GET("/v1/formfill/jobs/:id/logs", NewGetLogsController(q).Handle)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	// Mirror the browser client's no-cors request.
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartJobStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{services.ErrInvalidRequest, http.StatusBadRequest},
		{services.ErrJobExists, http.StatusConflict},
		{fmt.Errorf("%w after 20s", services.ErrLockTimeout), http.StatusServiceUnavailable},
		{errors.New("open form: boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		jobs := &fakeJobs{res: domain.StartResult{Success: tc.err == nil, Message: "m", JobID: "j"}, err: tc.err}
		w := do(newRouter(jobs, &fakeQuery{}), http.MethodPost, "/", `{"jobId":"j","formUrl":"https://docs.google.com/forms/d/x/edit","submissionCount":3}`)
		if w.Code != tc.want {
			t.Errorf("err=%v: status %d, want %d", tc.err, w.Code, tc.want)
		}
		var res domain.StartResult
		if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if res.JobID != "j" || res.Message != "m" {
			t.Errorf("unexpected envelope %+v", res)
		}
		if jobs.got.SubmissionCount != 3 || jobs.got.FormURL == "" {
			t.Errorf("request not bound: %+v", jobs.got)
		}
	}
}

func TestStartJobInvalidBody(t *testing.T) {
	w := do(newRouter(&fakeJobs{}, &fakeQuery{}), http.MethodPost, "/", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"success":false`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestRootWithoutJobIDIsHealthCheck(t *testing.T) {
	w := do(newRouter(&fakeJobs{}, &fakeQuery{}), http.MethodGet, "/", "")
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
}

func TestGetLogsByQueryAndPath(t *testing.T) {
	q := &fakeQuery{
		logs: map[string][]domain.LogEntry{
			"j1": {{Time: "2024-05-01T00:00:00.000Z", Message: "Job started"}},
		},
		states: map[string]*domain.JobState{"j1": {JobID: "j1", Status: domain.StatusRunning}},
	}
	r := newRouter(&fakeJobs{}, q)

	for _, path := range []string{"/?jobId=j1", "/v1/formfill/jobs/j1/logs"} {
		w := do(r, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, w.Code)
		}
		var body struct {
			Success bool              `json:"success"`
			Logs    []domain.LogEntry `json:"logs"`
			Status  *domain.JobState  `json:"status"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !body.Success || len(body.Logs) != 1 || body.Logs[0].Message != "Job started" {
			t.Fatalf("%s: unexpected body %+v", path, body)
		}
		if body.Status == nil || body.Status.JobID != "j1" || body.Status.Status != domain.StatusRunning {
			t.Fatalf("%s: unexpected body %+v", path, body)
		}
	}
}

func TestGetLogsUnknownJobReturnsEmptyList(t *testing.T) {
	w := do(newRouter(&fakeJobs{}, &fakeQuery{}), http.MethodGet, "/?jobId=nope", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if got := w.Body.String(); got != `{"logs":[],"success":true}` {
		t.Fatalf("body = %s", got)
	}
}

func TestGetLogsStateFailureStillServesLogs(t *testing.T) {
	q := &fakeQuery{stateErr: errors.New("redis down")}
	w := do(newRouter(&fakeJobs{}, q), http.MethodGet, "/?jobId=j", "")
	if w.Code != http.StatusOK || strings.Contains(w.Body.String(), "status") {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

func TestGetJob(t *testing.T) {
	q := &fakeQuery{states: map[string]*domain.JobState{"j1": {JobID: "j1", Status: domain.StatusSucceeded, Total: 2, Submitted: 2}}}
	r := newRouter(&fakeJobs{}, q)

	w := do(r, http.MethodGet, "/v1/formfill/jobs/j1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var st domain.JobState
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Status != domain.StatusSucceeded || st.Submitted != 2 {
		t.Fatalf("unexpected state %+v", st)
	}

	w = do(r, http.MethodGet, "/v1/formfill/jobs/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", w.Code)
	}

	w = do(newRouter(&fakeJobs{}, &fakeQuery{stateErr: errors.New("boom")}), http.MethodGet, "/v1/formfill/jobs/j1", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", w.Code)
	}
}

type fakeHealth struct{ err error }

func (f fakeHealth) Health(ctx context.Context) error { return f.err }

func TestHealthController(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tc := range []struct {
		name string
		err  error
		code int
	}{
		{"healthy", nil, http.StatusOK},
		{"down", errors.New("dial tcp: refused"), http.StatusServiceUnavailable},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/healthz", NewHealthController(fakeHealth{tc.err}).Handle)
			rec := do(r, http.MethodGet, "/healthz", "")
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
		})
	}
}
