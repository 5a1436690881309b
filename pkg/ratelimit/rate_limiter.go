package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eventdraw/internal/shared/constants"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Config describes one limit: Requests per WindowDuration per identity
type Config struct {
	Enabled        bool          `json:"enabled"`
	WindowDuration time.Duration `json:"window_duration"`
	Requests       int           `json:"requests"`
	WhitelistedIPs []string      `json:"whitelisted_ips"`
}

// Result represents rate limit check result
type Result struct {
	Allowed   bool  `json:"allowed"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}

// Limiter decides whether identity may make another request in scope
type Limiter interface {
	Allow(ctx context.Context, scope, identity string) (*Result, error)
}

// slidingWindowScript trims the window, counts, and records the request only when under the limit.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local current = redis.call('ZCARD', key)
if current >= limit then
	redis.call('PEXPIRE', key, window_ms)
	return {0, 0}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window_ms)
return {1, limit - current - 1}
`)

// RedisLimiter is a sliding-window limiter shared by every instance on the same redis
type RedisLimiter struct {
	client *redis.Client
	config *Config
}

func NewRedisLimiter(client *redis.Client, config *Config) *RedisLimiter {
	return &RedisLimiter{client: client, config: config}
}

func (r *RedisLimiter) Allow(ctx context.Context, scope, identity string) (*Result, error) {
	now := time.Now()
	if !r.config.Enabled {
		return unlimited(r.config, now), nil
	}

	windowStart := now.Add(-r.config.WindowDuration)
	values, err := slidingWindowScript.Run(ctx, r.client,
		[]string{constants.BuildRateLimitKey(scope, identity)},
		windowStart.UnixMilli(),
		now.UnixMilli(),
		r.config.Requests,
		r.config.WindowDuration.Milliseconds(),
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis eval failed: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	return &Result{
		Allowed:   values[0] == 1,
		Limit:     r.config.Requests,
		Remaining: int(values[1]),
		ResetTime: now.Add(r.config.WindowDuration).Unix(),
	}, nil
}

// LocalLimiter keeps a token bucket per key in memory. Used when redis is not configured.
type LocalLimiter struct {
	config  *Config
	mu      sync.Mutex
	entries map[string]*localEntry
	idleTTL time.Duration
}

type localEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewLocalLimiter(config *Config) *LocalLimiter {
	return &LocalLimiter{
		config:  config,
		entries: make(map[string]*localEntry),
		idleTTL: 15 * time.Minute,
	}
}

func (l *LocalLimiter) Allow(ctx context.Context, scope, identity string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now()
	if !l.config.Enabled {
		return unlimited(l.config, now), nil
	}

	lim := l.get(constants.BuildRateLimitKey(scope, identity), now)
	allowed := lim.AllowN(now, 1)
	remaining := int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   allowed,
		Limit:     l.config.Requests,
		Remaining: remaining,
		ResetTime: now.Add(l.config.WindowDuration).Unix(),
	}, nil
}

func (l *LocalLimiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ent, ok := l.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	// refill evenly so a full bucket takes one window
	every := rate.Every(l.config.WindowDuration / time.Duration(max(l.config.Requests, 1)))
	lim := rate.NewLimiter(every, l.config.Requests)
	l.entries[key] = &localEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup drops buckets that have not been used for a while
func (l *LocalLimiter) Cleanup() {
	cutoff := time.Now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// StartJanitor runs Cleanup every interval until ctx is done
func (l *LocalLimiter) StartJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}

func unlimited(cfg *Config, now time.Time) *Result {
	return &Result{
		Allowed:   true,
		Limit:     cfg.Requests,
		Remaining: cfg.Requests,
		ResetTime: now.Add(cfg.WindowDuration).Unix(),
	}
}
