package cache

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"armonyco/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "armonyco:cache:"

// Redis shares cache entries between instances. Errors are logged and
// treated as misses.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, defaultTTL time.Duration) *Redis {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: defaultTTL}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.rdb.Get(ctx, redisPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache: redis get failed", "key", key, "error", err)
		}
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.ttl
	}
	if err := r.rdb.Set(ctx, redisPrefix+key, value, ttl).Err(); err != nil {
		slog.Warn("cache: redis set failed", "key", key, "error", err)
	}
}

func (r *Redis) Invalidate(ctx context.Context, key string) {
	if err := r.rdb.Del(ctx, redisPrefix+key).Err(); err != nil {
		slog.Warn("cache: redis delete failed", "key", key, "error", err)
	}
}

func (r *Redis) InvalidatePattern(ctx context.Context, pattern *regexp.Regexp) int {
	var matched []string
	iter := r.rdb.Scan(ctx, 0, redisPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), redisPrefix)
		if pattern.MatchString(key) {
			matched = append(matched, iter.Val())
		}
	}
	if err := iter.Err(); err != nil {
		slog.Warn("cache: redis scan failed", "error", err)
	}
	if len(matched) == 0 {
		return 0
	}
	n, err := r.rdb.Del(ctx, matched...).Result()
	if err != nil {
		slog.Warn("cache: redis delete failed", "keys", len(matched), "error", err)
		return 0
	}
	return int(n)
}

func (r *Redis) Clear(ctx context.Context) {
	r.InvalidatePattern(ctx, regexp.MustCompile(".*"))
}

var _ Store = (*Redis)(nil)
