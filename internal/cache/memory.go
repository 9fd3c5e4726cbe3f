package cache

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"armonyco/internal/metrics"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a process-local TTL cache. It is not shared between instances.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

type MemoryOption func(*Memory)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(defaultTTL time.Duration, opts ...MemoryOption) *Memory {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	m := &Memory{
		entries: make(map[string]entry),
		ttl:     defaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the value while now <= set time + ttl. An expired entry is
// evicted on access.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		metrics.CacheRequestsTotal.WithLabelValues("expired").Inc()
		return nil, false
	}
	metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.mu.Lock()
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
}

func (m *Memory) Invalidate(_ context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *Memory) InvalidatePattern(_ context.Context, pattern *regexp.Regexp) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k := range m.entries {
		if pattern.MatchString(k) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

func (m *Memory) Clear(_ context.Context) {
	m.mu.Lock()
	m.entries = make(map[string]entry)
	m.mu.Unlock()
}

// Sweep removes every expired entry and returns how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweeper runs Memory.Sweep on an interval until its context is cancelled.
type Sweeper struct {
	cache    *Memory
	interval time.Duration
}

func NewSweeper(c *Memory, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{cache: c, interval: interval}
}

func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.cache.Sweep(); n > 0 {
				slog.Debug("cache: swept expired entries", "count", n)
			}
		}
	}
}

func (s *Sweeper) Stop(context.Context) error {
	return nil
}

var _ Store = (*Memory)(nil)
