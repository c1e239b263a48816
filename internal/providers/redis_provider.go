package providers

import (
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedisProvider returns the client shared by the rate limiter and the
// metrics collector. Storage plugins open their own connection.
func NewRedisProvider(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}
