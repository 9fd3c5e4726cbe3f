package cache

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, 5*time.Second), mr
}

func TestRedis_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	c.Set(ctx, "k", []byte("v"), 0)
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
	assert.Equal(t, 5*time.Second, mr.TTL(redisPrefix+"k"))

	mr.FastForward(6 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedis_InvalidatePattern(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	c.Set(ctx, CreditsKey("org-1"), []byte("1"), 0)
	c.Set(ctx, CreditsKey("org-2"), []byte("2"), 0)
	c.Set(ctx, "growth:org-1", []byte("3"), time.Minute)
	require.NoError(t, mr.Set("unrelated", "x"))

	n := c.InvalidatePattern(ctx, regexp.MustCompile(`^credits:`))
	assert.Equal(t, 2, n)
	_, ok := c.Get(ctx, "growth:org-1")
	assert.True(t, ok)

	c.Invalidate(ctx, "growth:org-1")
	_, ok = c.Get(ctx, "growth:org-1")
	assert.False(t, ok)

	c.Set(ctx, "x", []byte("1"), 0)
	c.Clear(ctx)
	_, ok = c.Get(ctx, "x")
	assert.False(t, ok)
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedis_ErrorsAreMisses(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)
	mr.Close()

	c.Set(ctx, "k", []byte("v"), 0)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}
