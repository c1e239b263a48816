package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/osvaldoandrade/formfill/internal/answers"
	"github.com/osvaldoandrade/formfill/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSpec(t *testing.T, jobID string, count int) (JobSpec, *JobLog) {
	t.Helper()
	store := newMemoryStore(t).JobStorage()
	l := NewJobLog(store, domain.JobState{JobID: jobID, Status: domain.StatusRunning, Total: count}, nil, nil)
	tmpl := answers.NewTemplated(rand.New(rand.NewSource(7)), func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) })
	return JobSpec{FormURL: testFormURL, Count: count, Strategy: tmpl, Log: l}, l
}

func TestSubmissionServiceLogsEveryStep(t *testing.T) {
	forms := &stubForms{fields: []domain.Field{
		{ID: "q1", Type: domain.FieldText, Title: "Name"},
		{ID: "q2", Type: domain.FieldParagraphText, Title: "Bio"},
		{ID: "q3", Type: domain.FieldRating, Title: "Stars"},
		{ID: "q4", Type: domain.FieldMultipleChoice, Title: "Colour"},
		{ID: "q5", Type: domain.FieldFileUpload, Title: "CV"},
		{ID: "q6", Type: domain.FieldDate, Title: "When"},
	}}
	spec, l := newSpec(t, "job-1", 1)

	sum, err := NewSubmissionService(forms).Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, Summary{Fields: 6, Submitted: 1, Skipped: 2, FieldErrors: 1}, sum)

	assert.Equal(t, []string{
		"Opening form",
		"Found 6 items",
		"Creating response 1/1",
		"TEXT answered",
		"PARAGRAPH answered",
		`WARN: Skipped RATING field "Stars"`,
		`ERROR on "Colour": invalid field: no choices`,
		`WARN: Skipped FILE_UPLOAD field "CV"`,
		"Response 1 submitted",
	}, messages(t, l.store, "job-1"))

	require.Len(t, forms.submitted, 1)
	resp := forms.submitted[0]
	assert.True(t, resp.Has("q1"))
	assert.True(t, resp.Has("q6"))
	assert.False(t, resp.Has("q3"), "skipped fields are omitted")
	assert.False(t, resp.Has("q4"), "failed fields are omitted")
	assert.Equal(t, 1, l.State().Submitted)
}

func TestSubmissionServiceFormWithNoFields(t *testing.T) {
	forms := &stubForms{}
	spec, l := newSpec(t, "job-empty", 2)

	sum, err := NewSubmissionService(forms).Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Submitted)
	assert.Equal(t, []string{
		"Opening form",
		"Found 0 items",
		"Creating response 1/2",
		"Response 1 submitted",
		"Creating response 2/2",
		"Response 2 submitted",
	}, messages(t, l.store, "job-empty"))
}

func TestSubmissionServiceAbortsOnResolutionFailure(t *testing.T) {
	forms := &stubForms{fieldsErr: errors.New("form not found")}
	spec, l := newSpec(t, "job-2", 3)

	_, err := NewSubmissionService(forms).Run(context.Background(), spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open form")
	assert.Equal(t, []string{"Opening form"}, messages(t, l.store, "job-2"))
	assert.Zero(t, forms.count())
}

func TestSubmissionServiceAbortsOnCommitFailure(t *testing.T) {
	forms := &stubForms{fields: []domain.Field{{ID: "q1", Type: domain.FieldTime, Title: "At"}}, failAfter: 1}
	spec, l := newSpec(t, "job-3", 3)

	sum, err := NewSubmissionService(forms).Run(context.Background(), spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submit response 2")
	assert.Equal(t, 1, sum.Submitted)

	msgs := messages(t, l.store, "job-3")
	assert.Equal(t, "Creating response 2/3", msgs[len(msgs)-1])
	assert.NotContains(t, msgs, "Creating response 3/3")
}
