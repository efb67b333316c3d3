package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps each key's purchase timestamps in a Redis sorted set, so
// the limit holds across every process sharing the Redis instance.
type RedisLimiter struct {
	client RedisClient
	prefix string
	now    func() time.Time
}

// RedisClient is the subset of *redis.Client and *redis.ClusterClient in use.
type RedisClient interface {
	redis.Scripter
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// NewRedisLimiter creates a limiter using keys under prefix. A nil clock
// means time.Now.
func NewRedisLimiter(client RedisClient, prefix string, now func() time.Time) *RedisLimiter {
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, prefix: prefix, now: now}
}

func (l *RedisLimiter) redisKey(lotteryID, userID string) string {
	return l.prefix + "ratelimit:" + key(lotteryID, userID)
}

// CheckAndRecord implements Limiter. Expiry, count and insert run in one
// script, so concurrent calls for a key cannot both pass the check.
func (l *RedisLimiter) CheckAndRecord(ctx context.Context, lotteryID, userID string, window time.Duration, maxPerWindow int) (*Reservation, error) {
	if window <= 0 || maxPerWindow <= 0 {
		return nil, errors.New("ratelimit: window and limit must be positive")
	}

	now := l.now()
	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()
	id := uuid.NewString()

	res, err := checkAndRecordScript.Run(ctx, l.client,
		[]string{l.redisKey(lotteryID, userID)},
		nowMs, nowMs-windowMs, maxPerWindow, id, windowMs,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("ratelimit: run script: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}

	allowed, ok := res[0].(int64)
	if !ok {
		return nil, fmt.Errorf("ratelimit: unexpected result type from script: %T", res[0])
	}
	if allowed == 1 {
		return &Reservation{LotteryID: lotteryID, UserID: userID, ID: id, At: now}, nil
	}

	retry := window
	if s, ok := res[1].(string); ok {
		if oldest, err := strconv.ParseFloat(s, 64); err == nil {
			retry = time.UnixMilli(int64(oldest)).Add(window).Sub(now)
		}
	}
	return nil, &ExceededError{RetryAfter: retry}
}

// Cancel implements Limiter.
func (l *RedisLimiter) Cancel(ctx context.Context, r *Reservation) error {
	if r == nil {
		return nil
	}
	if err := l.client.ZRem(ctx, l.redisKey(r.LotteryID, r.UserID), r.ID).Err(); err != nil {
		return fmt.Errorf("ratelimit: cancel reservation: %w", err)
	}
	return nil
}

var checkAndRecordScript = redis.NewScript(`
-- KEYS[1]: sorted set of one user's purchases in one lottery, scored by time (ms)
-- ARGV[1]: now (ms)
-- ARGV[2]: cutoff (ms); entries at or before it are outside the window
-- ARGV[3]: max purchases per window
-- ARGV[4]: member id for this purchase
-- ARGV[5]: window (ms), used as key TTL

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])

local count = redis.call('ZCARD', KEYS[1])
local limit = tonumber(ARGV[3])
if count >= limit then
    local oldest = redis.call('ZRANGE', KEYS[1], count - limit, count - limit, 'WITHSCORES')
    return {0, oldest[2]}
end

redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {1, ''}
`)
