package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/osvaldoandrade/formfill/internal/ratelimit"
	"github.com/osvaldoandrade/formfill/pkg/domain"
	"github.com/osvaldoandrade/formfill/pkg/persistence"
	"github.com/osvaldoandrade/formfill/pkg/persistence/memory"
)

const testFormURL = "https://docs.google.com/forms/d/form-1/edit"

func newMemoryStore(t *testing.T) persistence.PluginPersistence {
	t.Helper()
	p, err := memory.NewPlugin(persistence.PluginConfig{LogTTL: 10 * time.Minute, Now: time.Now})
	if err != nil {
		t.Fatalf("memory plugin: %v", err)
	}
	return p
}

type stubForms struct {
	mu        sync.Mutex
	fields    []domain.Field
	fieldsErr error
	// failAfter makes Submit fail once this many responses have been accepted.
	failAfter int
	submitted []domain.Response
}

func (f *stubForms) Fields(ctx context.Context, formURL string) ([]domain.Field, error) {
	if f.fieldsErr != nil {
		return nil, f.fieldsErr
	}
	return f.fields, nil
}

func (f *stubForms) Submit(ctx context.Context, formURL string, r domain.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.submitted) >= f.failAfter {
		return errors.New("backend rejected response")
	}
	f.submitted = append(f.submitted, r)
	return nil
}

func (f *stubForms) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func messages(t *testing.T, store persistence.JobStorage, jobID string) []string {
	t.Helper()
	logs, err := store.Read(context.Background(), jobID)
	if err != nil {
		t.Fatalf("read logs: %v", err)
	}
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.Message
	}
	return out
}

type failingStore struct {
	persistence.JobStorage
}

func (failingStore) Append(ctx context.Context, jobID string, entry domain.LogEntry, state *domain.JobState) error {
	return errors.New("redis down")
}

var ratelimitOff = ratelimit.Bucket{}
