package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/osvaldoandrade/formfill/pkg/domain"
	"github.com/osvaldoandrade/formfill/pkg/persistence"
)

// Plugin implements PluginPersistence for in-memory storage.
// It is primarily for tests and single-process development runs; state is
// lost on restart and is not shared between instances.
type Plugin struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	jobs   map[string]*jobBuffer
	claims map[string]time.Time
	leases map[string]*lease
}

type jobBuffer struct {
	entries   []domain.LogEntry
	state     *domain.JobState
	expiresAt time.Time
}

type lease struct {
	token     string
	expiresAt time.Time
}

// NewPlugin creates a new in-memory persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	ttl := config.LogTTL
	if ttl <= 0 {
		ttl = 600 * time.Second
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Plugin{
		ttl:    ttl,
		now:    now,
		jobs:   make(map[string]*jobBuffer),
		claims: make(map[string]time.Time),
		leases: make(map[string]*lease),
	}, nil
}

// JobStorage returns the job log sink
func (p *Plugin) JobStorage() persistence.JobStorage {
	return &jobStorage{plugin: p}
}

// LockStorage returns the lease lock
func (p *Plugin) LockStorage() persistence.LockStorage {
	return &lockStorage{plugin: p}
}

// Health always returns nil for in-memory storage
func (p *Plugin) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op for in-memory storage
func (p *Plugin) Close() error {
	return nil
}

func init() {
	persistence.RegisterProvider("memory", NewPlugin)
}

// liveJob returns the buffer for jobID, dropping it first if expired.
// Caller must hold p.mu.
func (p *Plugin) liveJob(jobID string, now time.Time) *jobBuffer {
	b, ok := p.jobs[jobID]
	if !ok {
		return nil
	}
	if !now.Before(b.expiresAt) {
		delete(p.jobs, jobID)
		return nil
	}
	return b
}

// sweep drops every expired claim, buffer and lease. It runs on each claim,
// so memory stays bounded by the jobs started within one retention window.
// Caller must hold p.mu.
func (p *Plugin) sweep(now time.Time) {
	for id, exp := range p.claims {
		if !now.Before(exp) {
			delete(p.claims, id)
		}
	}
	for id, b := range p.jobs {
		if !now.Before(b.expiresAt) {
			delete(p.jobs, id)
		}
	}
	for key, l := range p.leases {
		if !now.Before(l.expiresAt) {
			delete(p.leases, key)
		}
	}
}

type jobStorage struct {
	plugin *Plugin
}

func (s *jobStorage) Claim(ctx context.Context, jobID string) (bool, error) {
	if strings.TrimSpace(jobID) == "" {
		return false, fmt.Errorf("empty job id")
	}
	p := s.plugin
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.sweep(now)
	if exp, ok := p.claims[jobID]; ok && now.Before(exp) {
		return false, nil
	}
	p.claims[jobID] = now.Add(p.ttl)
	return true, nil
}

func (s *jobStorage) Append(ctx context.Context, jobID string, entry domain.LogEntry, state *domain.JobState) error {
	p := s.plugin
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	b := p.liveJob(jobID, now)
	if b == nil {
		b = &jobBuffer{}
		p.jobs[jobID] = b
	}
	b.entries = append(b.entries, entry)
	if state != nil {
		cp := *state
		b.state = &cp
	}
	b.expiresAt = now.Add(p.ttl)
	if _, ok := p.claims[jobID]; ok {
		p.claims[jobID] = b.expiresAt
	}
	return nil
}

func (s *jobStorage) Read(ctx context.Context, jobID string) ([]domain.LogEntry, error) {
	p := s.plugin
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.liveJob(jobID, p.now())
	if b == nil {
		return []domain.LogEntry{}, nil
	}
	out := make([]domain.LogEntry, len(b.entries))
	copy(out, b.entries)
	return out, nil
}

func (s *jobStorage) State(ctx context.Context, jobID string) (*domain.JobState, error) {
	p := s.plugin
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.liveJob(jobID, p.now())
	if b == nil || b.state == nil {
		return nil, persistence.ErrNotFound
	}
	cp := *b.state
	return &cp, nil
}

type lockStorage struct {
	plugin *Plugin
}

func (s *lockStorage) TryAcquire(ctx context.Context, key string, token string, ttl time.Duration) (bool, error) {
	p := s.plugin
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if l, ok := p.leases[key]; ok && now.Before(l.expiresAt) {
		return false, nil
	}
	p.leases[key] = &lease{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *lockStorage) Extend(ctx context.Context, key string, token string, ttl time.Duration) (bool, error) {
	p := s.plugin
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	l, ok := p.leases[key]
	if !ok || l.token != token || !now.Before(l.expiresAt) {
		return false, nil
	}
	l.expiresAt = now.Add(ttl)
	return true, nil
}

func (s *lockStorage) Release(ctx context.Context, key string, token string) error {
	p := s.plugin
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.leases[key]; ok && l.token == token {
		delete(p.leases, key)
	}
	return nil
}
