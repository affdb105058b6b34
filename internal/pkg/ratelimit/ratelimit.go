// Package ratelimit 实现基于 Redis Lua 脚本的分布式令牌桶，按 key（如客户端 IP）独立计数。
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "todomanager:ratelimit:"

const tokenBucketLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = burst
end
if ts == nil then
  ts = now
end

local delta = math.max(0, now - ts)
tokens = math.min(burst, tokens + (delta * rate) / 1000.0)

local allowed = 0
local wait_ms = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  wait_ms = math.ceil((1 - tokens) * 1000.0 / rate)
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, math.ceil((burst / rate) * 1000.0 * 2))

return {allowed, wait_ms}
`

// Decision 单次限流判定结果。
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter 每个 key 一个令牌桶：rate 为每秒补充的令牌数，burst 为桶容量。
type Limiter struct {
	rdb    *redis.Client
	rate   float64
	burst  float64
	logger *slog.Logger
	script *redis.Script
}

// New 创建限流器。rdb 为 nil 或 rate/burst 非正数时限流关闭。
func New(rdb *redis.Client, logger *slog.Logger, rate, burst float64) *Limiter {
	return &Limiter{
		rdb:    rdb,
		rate:   rate,
		burst:  burst,
		logger: logger,
		script: redis.NewScript(tokenBucketLua),
	}
}

// Enabled 判断限流是否生效。
func (l *Limiter) Enabled() bool {
	return l != nil && l.rdb != nil && l.rate > 0 && l.burst > 0
}

// Allow 为 key 消耗一个令牌，不阻塞。
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}

	now := time.Now().UnixMilli()
	res, err := l.script.Run(ctx, l.rdb, []string{keyPrefix + key}, l.rate, l.burst, now).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit eval: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return Decision{}, fmt.Errorf("ratelimit invalid result")
	}

	d := Decision{
		Allowed:    toInt64(values[0]) == 1,
		RetryAfter: time.Duration(toInt64(values[1])) * time.Millisecond,
	}
	if !d.Allowed && l.logger != nil {
		l.logger.Debug("rate limited", slog.String("key", key), slog.Duration("retry_after", d.RetryAfter))
	}
	return d, nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
