package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/osvaldoandrade/formfill/pkg/domain"
	"github.com/osvaldoandrade/formfill/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

// LogRepository is the Redis job log sink. The buffer is a LIST so that an
// append is a single RPUSH; the list, the state record and the claim marker
// all have their TTL refreshed inside one MULTI on every write.
type LogRepository interface {
	persistence.JobStorage
}

type logRedisRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLogRepository(rdb *redis.Client, ttl time.Duration) LogRepository {
	if ttl <= 0 {
		ttl = 600 * time.Second
	}
	return &logRedisRepo{rdb: rdb, ttl: ttl}
}

func KeyJobLogs(jobID string) string  { return fmt.Sprintf("formfill:job:%s:logs", jobID) }
func KeyJobState(jobID string) string { return fmt.Sprintf("formfill:job:%s:state", jobID) }
func KeyJobClaim(jobID string) string { return fmt.Sprintf("formfill:job:%s:claim", jobID) }

func (r *logRedisRepo) Claim(ctx context.Context, jobID string) (bool, error) {
	if strings.TrimSpace(jobID) == "" {
		return false, fmt.Errorf("empty job id")
	}
	ok, err := r.rdb.SetNX(ctx, KeyJobClaim(jobID), time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX claim: %w", err)
	}
	return ok, nil
}

func (r *logRedisRepo) Append(ctx context.Context, jobID string, entry domain.LogEntry, state *domain.JobState) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	var stateJSON []byte
	if state != nil {
		if stateJSON, err = json.Marshal(state); err != nil {
			return fmt.Errorf("marshal job state: %w", err)
		}
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, KeyJobLogs(jobID), string(b))
		pipe.PExpire(ctx, KeyJobLogs(jobID), r.ttl)
		if stateJSON != nil {
			pipe.Set(ctx, KeyJobState(jobID), string(stateJSON), r.ttl)
		} else {
			pipe.PExpire(ctx, KeyJobState(jobID), r.ttl)
		}
		pipe.PExpire(ctx, KeyJobClaim(jobID), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append log: %w", err)
	}
	return nil
}

func (r *logRedisRepo) Read(ctx context.Context, jobID string) ([]domain.LogEntry, error) {
	raw, err := r.rdb.LRange(ctx, KeyJobLogs(jobID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis LRANGE logs: %w", err)
	}
	out := make([]domain.LogEntry, 0, len(raw))
	for _, js := range raw {
		var e domain.LogEntry
		if err := json.Unmarshal([]byte(js), &e); err != nil {
			return nil, fmt.Errorf("unmarshal log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *logRedisRepo) State(ctx context.Context, jobID string) (*domain.JobState, error) {
	js, err := r.rdb.Get(ctx, KeyJobState(jobID)).Result()
	if err == redis.Nil || (err == nil && js == "") {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET state: %w", err)
	}
	var st domain.JobState
	if err := json.Unmarshal([]byte(js), &st); err != nil {
		return nil, fmt.Errorf("unmarshal job state: %w", err)
	}
	return &st, nil
}
