// Package cache holds short-lived response caches for dashboard reads.
// Entries may be stale for up to their TTL; nothing here is a source of truth.
package cache

import (
	"context"
	"regexp"
	"time"
)

const DefaultTTL = 5 * time.Second

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value for ttl; ttl <= 0 uses the store default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
	// InvalidatePattern removes every key matching pattern and returns the count.
	InvalidatePattern(ctx context.Context, pattern *regexp.Regexp) int
	Clear(ctx context.Context)
}

// CreditsKey is the cache key of an organization's credits summary.
func CreditsKey(organizationID string) string {
	return "credits:" + organizationID
}
