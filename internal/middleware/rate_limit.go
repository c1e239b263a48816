package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/formfill/internal/metrics"
	"github.com/osvaldoandrade/formfill/internal/ratelimit"
	"github.com/osvaldoandrade/formfill/pkg/config"
)

const HeaderRateLimitRemaining = "X-RateLimit-Remaining"

// RateLimitStart throttles job starts per client IP.
func RateLimitStart(lim ratelimit.Limiter, cfg *config.Config) gin.HandlerFunc {
	return rateLimitClient(lim, ratelimit.ScopeStart, cfg.RateLimit.Start)
}

func rateLimitClient(lim ratelimit.Limiter, scope ratelimit.Scope, bcfg config.RateLimitBucketConfig) gin.HandlerFunc {
	bucket := ratelimit.Bucket{RequestsPerMinute: bcfg.RequestsPerMinute, BurstSize: bcfg.BurstSize}
	return func(c *gin.Context) {
		if lim == nil || !bucket.Enabled() {
			c.Next()
			return
		}

		dec, err := lim.Allow(c.Request.Context(), scope, c.ClientIP(), bucket)
		if err != nil {
			// Fail open to avoid turning Redis hiccups into outages.
			slog.Default().Warn("rate limit check failed", "scope", scope, "err", err)
			c.Next()
			return
		}
		c.Header(HeaderRateLimitRemaining, strconv.Itoa(dec.Remaining))
		if dec.Allowed {
			c.Next()
			return
		}

		retryAfterSeconds := int(math.Ceil(dec.RetryAfter.Seconds()))
		if retryAfterSeconds <= 0 {
			retryAfterSeconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		metrics.RateLimitHitsTotal.WithLabelValues(string(scope), "client_ip").Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success":           false,
			"message":           "rate limit exceeded",
			"retryAfterSeconds": retryAfterSeconds,
		})
	}
}
