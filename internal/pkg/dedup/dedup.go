// Package dedup 基于 Redis SETNX 保证同一提醒在时间窗口内只发送一次通知。
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "todomanager:reminder:sent:"

// Guard 记录已发送过通知的提醒。rdb 为 nil 时所有提醒都视为首次发送。
type Guard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewGuard(rdb *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{rdb: rdb, ttl: ttl}
}

// Claim 尝试占用提醒的发送权，返回 true 表示本次调用负责发送。
func (g *Guard) Claim(ctx context.Context, reminderID string) (bool, error) {
	if g == nil || g.rdb == nil || reminderID == "" {
		return true, nil
	}
	ok, err := g.rdb.SetNX(ctx, keyPrefix+reminderID, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}

// Release 释放发送权，用于发送失败后允许下次批处理重试。
func (g *Guard) Release(ctx context.Context, reminderID string) error {
	if g == nil || g.rdb == nil || reminderID == "" {
		return nil
	}
	if err := g.rdb.Del(ctx, keyPrefix+reminderID).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}
