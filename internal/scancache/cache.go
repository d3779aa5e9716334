package scancache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/edgecomet/siteguard/internal/common/redis"
	"github.com/edgecomet/siteguard/internal/risk"
)

const keyPrefix = "siteguard:scan:"

// Recorder receives lookup outcomes.
type Recorder interface {
	RecordScanCacheHit()
	RecordScanCacheMiss()
	RecordScanCacheError()
}

// Key returns the Redis key holding the assessment of url.
func Key(url string) string {
	return keyPrefix + fmt.Sprintf("%016x", xxhash.Sum64String(url))
}

type entry struct {
	Domain   string    `json:"domain"`
	Score    float64   `json:"score"`
	Block    bool      `json:"block"`
	ScoredAt time.Time `json:"scored_at"`
}

// RedisCache stores assessments in Redis as JSON. Redis failures are logged
// and reported as misses so scoring never depends on the cache.
type RedisCache struct {
	client   *redis.Client
	ttl      time.Duration
	recorder Recorder
	logger   *zap.Logger
}

// NewRedisCache creates a cache. ttl of zero keeps entries until evicted.
// recorder may be nil.
func NewRedisCache(client *redis.Client, ttl time.Duration, recorder Recorder, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		client:   client,
		ttl:      ttl,
		recorder: recorder,
		logger:   logger,
	}
}

func (c *RedisCache) Get(ctx context.Context, url string) (risk.Assessment, bool) {
	key := Key(url)

	raw, found, err := c.client.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Scan cache lookup failed", zap.String("key", key), zap.Error(err))
		c.recordError()
		return risk.Assessment{}, false
	}
	if !found {
		c.recordMiss()
		return risk.Assessment{}, false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.logger.Warn("Discarding unreadable scan cache entry", zap.String("key", key), zap.Error(err))
		c.recordError()
		return risk.Assessment{}, false
	}

	c.recordHit()
	return risk.Assessment{Domain: e.Domain, Score: e.Score, Block: e.Block}, true
}

func (c *RedisCache) Set(ctx context.Context, url string, a risk.Assessment) {
	key := Key(url)

	data, err := json.Marshal(entry{
		Domain:   a.Domain,
		Score:    a.Score,
		Block:    a.Block,
		ScoredAt: time.Now().UTC(),
	})
	if err != nil {
		c.logger.Warn("Failed to encode scan cache entry", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Scan cache store failed", zap.String("key", key), zap.Error(err))
		c.recordError()
		return
	}

	c.logger.Debug("Scan cached", zap.String("key", key), zap.Duration("ttl", c.ttl))
}

func (c *RedisCache) recordHit() {
	if c.recorder != nil {
		c.recorder.RecordScanCacheHit()
	}
}

func (c *RedisCache) recordMiss() {
	if c.recorder != nil {
		c.recorder.RecordScanCacheMiss()
	}
}

func (c *RedisCache) recordError() {
	if c.recorder != nil {
		c.recorder.RecordScanCacheError()
	}
}

// Noop never stores anything; used when the scan cache is disabled.
type Noop struct{}

func (Noop) Get(ctx context.Context, url string) (risk.Assessment, bool) {
	return risk.Assessment{}, false
}

func (Noop) Set(ctx context.Context, url string, a risk.Assessment) {}
