package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fitcoach/pkg/logger"
	"fitcoach/storage/database"
	"fitcoach/storage/mq"
	"fitcoach/storage/redis"
)

const closeTimeout = 15 * time.Second

// Close 按 MQ -> Redis -> Database 的顺序关闭连接：先停止收发消息，数据库最后关闭
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := CloseContext(ctx); err != nil {
		logger.Logger.Error("Failed to close storage connections", zap.Error(err))
		return
	}
	logger.Logger.Info("All storage connections closed")
}

// CloseContext 关闭全部连接，返回合并后的错误
func CloseContext(ctx context.Context) error {
	steps := []struct {
		name  string
		close func(context.Context) error
	}{
		{"rabbitmq", mq.Close},
		{"redis", redis.Close},
		{"database", database.Close},
	}

	var errs []error
	for _, s := range steps {
		if err := s.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
