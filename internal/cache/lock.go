package cache

import (
	"context"
	"time"

	"fitcoach/storage/redis"
)

// 通过 SetNX 做消息幂等，多个 worker 实例共享同一个标记
const messagePrefix = "message:processed"

// TryMarkMessageProcessing 首次见到 messageID 时返回 true，重复投递返回 false
func TryMarkMessageProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	return redis.Client().SetNX(ctx, redis.Key(messagePrefix, messageID), 1, ttl).Result()
}

// UnmarkMessageProcessing 处理失败需要重试时清除标记
func UnmarkMessageProcessing(ctx context.Context, messageID string) error {
	return redis.Client().Del(ctx, redis.Key(messagePrefix, messageID)).Err()
}

// MarkMessageProcessed 处理成功后延长标记 TTL，覆盖 RabbitMQ 可能的延迟重投
func MarkMessageProcessed(ctx context.Context, messageID string, ttl time.Duration) error {
	return redis.Client().Expire(ctx, redis.Key(messagePrefix, messageID), ttl).Err()
}

// MessageDeduper 把包级幂等函数包装成可注入的对象
type MessageDeduper struct{}

func (MessageDeduper) TryMark(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	return TryMarkMessageProcessing(ctx, messageID, ttl)
}

func (MessageDeduper) Unmark(ctx context.Context, messageID string) error {
	return UnmarkMessageProcessing(ctx, messageID)
}

func (MessageDeduper) MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) error {
	return MarkMessageProcessed(ctx, messageID, ttl)
}
