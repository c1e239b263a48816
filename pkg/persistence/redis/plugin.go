package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/osvaldoandrade/formfill/internal/repository"
	"github.com/osvaldoandrade/formfill/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis-specific configuration
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
}

// Plugin implements PluginPersistence for Redis/KVRocks
type Plugin struct {
	client   *redis.Client
	logRepo  repository.LogRepository
	lockRepo repository.LockRepository
}

// NewPlugin creates a new Redis persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	var cfg Config
	if len(config.Config) > 0 {
		if err := json.Unmarshal(config.Config, &cfg); err != nil {
			return nil, fmt.Errorf("redis plugin config: %w", err)
		}
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis plugin config: addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})

	return &Plugin{
		client:   client,
		logRepo:  repository.NewLogRepository(client, config.LogTTL),
		lockRepo: repository.NewLockRepository(client),
	}, nil
}

// JobStorage returns the job log sink
func (p *Plugin) JobStorage() persistence.JobStorage {
	return p.logRepo
}

// LockStorage returns the lease lock
func (p *Plugin) LockStorage() persistence.LockStorage {
	return p.lockRepo
}

// Client exposes the underlying connection for components that share it
// (rate limiting, metrics collection).
func (p *Plugin) Client() *redis.Client {
	return p.client
}

// Health checks if Redis is healthy
func (p *Plugin) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases Redis connection
func (p *Plugin) Close() error {
	return p.client.Close()
}

func init() {
	persistence.RegisterProvider("redis", NewPlugin)
}
