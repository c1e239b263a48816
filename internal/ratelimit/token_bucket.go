package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Scope names what is being limited. Each scope owns its own key prefix,
// so a subject limited under one scope is unaffected in another.
type Scope string

const (
	// ScopeStart limits job starts per client IP.
	ScopeStart Scope = "start"
	// ScopeCallback paces completion callbacks per callback URL.
	ScopeCallback Scope = "callback"
)

func (s Scope) prefix() string {
	name := strings.TrimSpace(string(s))
	if name == "" {
		name = "default"
	}
	return "formfill:rl:" + name + ":"
}

// Bucket is a token bucket refilled at RequestsPerMinute and holding at most
// BurstSize tokens. A zero bucket disables limiting.
type Bucket struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

func (b Bucket) Enabled() bool {
	return b.RequestsPerMinute > 0 && b.BurstSize > 0
}

func (b Bucket) tokensPerMilli() float64 {
	return float64(b.RequestsPerMinute) / float64(time.Minute.Milliseconds())
}

// retention is how long an idle bucket is kept: two full refills plus slack,
// clamped to [30s, 1h]. An idle bucket past that point is full anyway.
func (b Bucket) retention() time.Duration {
	const (
		floor   = 30 * time.Second
		ceiling = time.Hour
	)
	if !b.Enabled() {
		return 2 * time.Minute
	}
	refill := time.Duration(b.BurstSize) * time.Minute / time.Duration(b.RequestsPerMinute)
	d := 2*refill + 5*time.Second
	switch {
	case d < floor:
		return floor
	case d > ceiling:
		return ceiling
	}
	return d
}

type Decision struct {
	Allowed bool
	// Remaining is the number of whole tokens left after this decision.
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, scope Scope, subject string, bucket Bucket) (Decision, error)
}

type TokenBucketLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewTokenBucketLimiter(rdb *redis.Client) *TokenBucketLimiter {
	return &TokenBucketLimiter{rdb: rdb, now: time.Now}
}

// WithClock replaces the refill clock; used by tests.
func (l *TokenBucketLimiter) WithClock(now func() time.Time) *TokenBucketLimiter {
	l.now = now
	return l
}

// Key returns the Redis key holding the bucket of subject within scope.
// Subjects are hashed so raw IPs and URLs never appear in key names.
func Key(scope Scope, subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "unknown"
	}
	sum := sha256.Sum256([]byte(subject))
	return scope.prefix() + hex.EncodeToString(sum[:])
}

// The bucket is a hash {tokens, at}. Time is in milliseconds and the script
// replies {allowed, remaining, retryMillis}.
var takeTokenScript = redis.NewScript(`
local per_ms = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", KEYS[1], "tokens", "at")
local tokens = tonumber(state[1]) or burst
local at = tonumber(state[2]) or now
if at > now then at = now end

tokens = math.min(burst, tokens + (now - at) * per_ms)

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) / per_ms)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "at", now)
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return {allowed, math.floor(tokens), wait}
`)

// Allow takes one token from subject's bucket in scope. A nil limiter or a
// disabled bucket always allows.
func (l *TokenBucketLimiter) Allow(ctx context.Context, scope Scope, subject string, bucket Bucket) (Decision, error) {
	if l == nil || l.rdb == nil || !bucket.Enabled() {
		return Decision{Allowed: true}, nil
	}

	reply, err := takeTokenScript.Run(ctx, l.rdb, []string{Key(scope, subject)},
		bucket.tokensPerMilli(),
		bucket.BurstSize,
		l.now().UnixMilli(),
		bucket.retention().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis ratelimit %s: %w", scope, err)
	}
	if len(reply) != 3 {
		return Decision{}, fmt.Errorf("redis ratelimit %s: unexpected reply %v", scope, reply)
	}

	dec := Decision{Allowed: reply[0] == 1, Remaining: int(reply[1])}
	if !dec.Allowed {
		dec.RetryAfter = time.Duration(math.Max(float64(reply[2]), 1)) * time.Millisecond
	}
	return dec, nil
}
