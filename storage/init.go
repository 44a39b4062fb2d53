package storage

import (
	"fmt"

	"fitcoach/storage/database"
	"fitcoach/storage/mq"
	"fitcoach/storage/redis"
)

// Init 统一初始化存储层
func Init() error {
	if err := database.Init(); err != nil {
		return fmt.Errorf("init database: %w", err)
	}

	if err := redis.Init(); err != nil {
		return fmt.Errorf("init redis: %w", err)
	}

	if err := mq.Init(); err != nil {
		return fmt.Errorf("init rabbitmq: %w", err)
	}

	return nil
}
