package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	jobLogsPattern = "formfill:job:*:logs"
	lockPattern    = "formfill:lock:*"
	scanPageSize   = 500
)

type redisCollector struct {
	rdb    *redis.Client
	logger *slog.Logger

	locksHeldDesc   *prometheus.Desc
	buffersLiveDesc *prometheus.Desc
}

func newRedisCollector(rdb *redis.Client, logger *slog.Logger) *redisCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCollector{
		rdb:    rdb,
		logger: logger,
		locksHeldDesc: prometheus.NewDesc(
			"formfill_locks_held",
			"Job locks currently held (1 for a busy global lock).",
			nil,
			nil,
		),
		buffersLiveDesc: prometheus.NewDesc(
			"formfill_job_buffers_live",
			"Job log buffers that have not yet expired.",
			nil,
			nil,
		),
	}
}

func (c *redisCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.locksHeldDesc
	ch <- c.buffersLiveDesc
}

func (c *redisCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	locks, err := c.countKeys(ctx, lockPattern)
	if err != nil {
		c.logger.Warn("prometheus redis collector failed", "err", err)
		return
	}
	buffers, err := c.countKeys(ctx, jobLogsPattern)
	if err != nil {
		c.logger.Warn("prometheus redis collector failed", "err", err)
		return
	}

	emitGauge(ch, c.locksHeldDesc, float64(locks))
	emitGauge(ch, c.buffersLiveDesc, float64(buffers))
}

func (c *redisCollector) countKeys(ctx context.Context, pattern string) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, scanPageSize).Result()
		if err != nil {
			return 0, err
		}
		n += len(keys)
		if next == 0 {
			return n, nil
		}
		cursor = next
	}
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerRedisCollectorOnce sync.Once

func RegisterRedisCollector(rdb *redis.Client, logger *slog.Logger) {
	registerRedisCollectorOnce.Do(func() {
		prometheus.MustRegister(newRedisCollector(rdb, logger))
	})
}
