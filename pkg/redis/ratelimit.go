package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var ErrRateLimitExceeded = errors.New("rate limit exceeded")

type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
	// RetryIn is how long until the next request would be admitted. Zero when Allowed.
	RetryIn time.Duration
}

// KEYS: window zset, block flag. ARGV: now ms, limit, window ms.
// Replies {allowed, remaining, retry_ms}.
var slidingWindow = goredis.NewScript(`
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local window = tonumber(ARGV[3])

local blocked = redis.call("PTTL", KEYS[2])
if blocked > 0 then
	return {0, 0, blocked}
end

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local used = redis.call("ZCARD", KEYS[1])
if used >= limit then
	local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
	local retry = 0
	if oldest[2] then
		retry = tonumber(oldest[2]) + window - now
	end
	return {0, 0, retry}
end

redis.call("ZADD", KEYS[1], now, now .. ":" .. redis.call("INCR", KEYS[1] .. ":seq"))
redis.call("PEXPIRE", KEYS[1], window)
redis.call("PEXPIRE", KEYS[1] .. ":seq", window)
return {1, limit - used - 1, 0}
`)

// RateLimiter counts requests per key in a sliding window shared by every instance, and can
// shut a key off entirely for a while after a provider pushes back.
type RateLimiter struct {
	client *Client
	prefix string
	now    func() time.Time
}

func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RateLimiter{client: client, prefix: prefix, now: time.Now}
}

func (r *RateLimiter) keys(key string) (window, block string) {
	return r.prefix + key, r.prefix + key + ":block"
}

// Allow admits one request for key if fewer than limit were admitted during the last window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
	now := r.now()
	windowKey, blockKey := r.keys(key)

	reply, err := slidingWindow.Run(ctx, r.client.rdb, []string{windowKey, blockKey},
		now.UnixMilli(), limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, err
	}
	if len(reply) != 3 {
		return nil, errors.New("rate limiter: malformed script reply")
	}

	retryIn := time.Duration(reply[2]) * time.Millisecond
	result := &RateLimitResult{Allowed: reply[0] == 1, Remaining: reply[1], RetryIn: retryIn, ResetAt: now.Add(window)}
	if !result.Allowed {
		result.ResetAt = now.Add(retryIn)
	}
	return result, nil
}

// BlockFor rejects every request for key during d, e.g. after an HTTP 429.
func (r *RateLimiter) BlockFor(ctx context.Context, key string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	_, blockKey := r.keys(key)
	return r.client.rdb.Set(ctx, blockKey, 1, d).Err()
}

// IsBlocked reports whether key is blocked and for how much longer.
func (r *RateLimiter) IsBlocked(ctx context.Context, key string) (bool, time.Duration, error) {
	_, blockKey := r.keys(key)
	ttl, err := r.client.rdb.PTTL(ctx, blockKey).Result()
	if err != nil {
		return false, 0, err
	}
	// negative ttl: missing key (-2) or no expiry (-1, never set by BlockFor)
	if ttl <= 0 {
		return false, 0, nil
	}
	return true, ttl, nil
}
